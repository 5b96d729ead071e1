//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	pgpool "github.com/bissquit/incident-mirror/internal/pkg/postgres"
	"github.com/bissquit/incident-mirror/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := testutil.NewPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	require.NoError(t, Migrate(container.ConnectionString))
	// Running twice is a no-op.
	require.NoError(t, Migrate(container.ConnectionString))

	pool, err := pgpool.Connect(ctx, pgpool.Config{
		URL:             container.ConnectionString,
		MaxConns:        2,
		ConnMaxLifetime: time.Minute,
		ConnectAttempts: 3,
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewStore(pool)
}

func TestStore_Integration(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, found, err := s.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Put(ctx, "abc123", "111"))
	require.NoError(t, s.Put(ctx, "abc123", "222"))

	id, found, err := s.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "222", id)

	n, err := s.Import(ctx, map[string]string{"abc123": "ignored", "def456": "333"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	id, _, err = s.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "222", id)
}
