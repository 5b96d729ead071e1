package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCommand()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "serve", "import", "version"})

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "incident-mirror ")
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	t.Setenv("MIRROR_DISCORD__WEBHOOK_ID", "")
	t.Setenv("MIRROR_DISCORD__WEBHOOK_TOKEN", "")

	cmd := newRootCommand()
	cmd.SetArgs([]string{"run"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestImportCommand_RequiresPath(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"import"})

	assert.Error(t, cmd.Execute())
}
