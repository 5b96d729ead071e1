package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CreatesEmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "messages.json")

	s, err := New(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	_, found, err := s.Get(context.Background(), "abc123")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_PutGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	s, err := New(path)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "abc123", "111"))
	require.NoError(t, s.Put(ctx, "def456", "222"))

	id, found, err := s.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "111", id)

	// Overwrite replaces the old id.
	require.NoError(t, s.Put(ctx, "abc123", "333"))
	id, _, err = s.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "333", id)

	entries, err := s.Entries()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"abc123": "333", "def456": "222"}, entries)
}

func TestStore_DocumentLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	s, err := New(path)
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), "abc123", "111"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"abc123\": \"111\"\n}", string(data))
}

func TestStore_ReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"abc123": "999"}`), 0o644))

	s, err := New(path)
	require.NoError(t, err)

	id, found, err := s.Get(context.Background(), "abc123")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "999", id)
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	first, err := New(path)
	require.NoError(t, err)
	require.NoError(t, first.Put(context.Background(), "abc123", "111"))

	second, err := New(path)
	require.NoError(t, err)
	id, found, err := second.Get(context.Background(), "abc123")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "111", id)
}

func TestNew_CorruptFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{nope"},
		{"wrong shape", `["a", "b"]`},
		{"non string values", `{"abc123": 5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "messages.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := New(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestStore_CorruptedAfterOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	s, err := New(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, _, err = s.Get(context.Background(), "abc123")
	assert.ErrorIs(t, err, ErrCorrupt)

	err = s.Put(context.Background(), "abc123", "111")
	assert.ErrorIs(t, err, ErrCorrupt)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "garbage", string(data), "a corrupt file is never overwritten")
}

func TestStore_NullDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	require.NoError(t, os.WriteFile(path, []byte("null"), 0o644))

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "abc123", "111"))

	entries, err := s.Entries()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"abc123": "111"}, entries)
}

func TestStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "messages.json"))
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "abc123", "111"))

	names, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "messages.json", names[0].Name())
}
