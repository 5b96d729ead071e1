package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mirror.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestStore_GetMissing(t *testing.T) {
	s, _ := openTestStore(t)

	id, found, err := s.Get(context.Background(), "abc123")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, id)
}

func TestStore_PutGet(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "abc123", "111"))

	id, found, err := s.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "111", id)
}

func TestStore_PutReplaces(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "abc123", "111"))
	require.NoError(t, s.Put(ctx, "abc123", "222"))

	id, _, err := s.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "222", id)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM message_mappings`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mirror.db")
	ctx := context.Background()

	first, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "abc123", "111"))
	require.NoError(t, first.Close())

	second, err := Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	id, found, err := second.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "111", id)
}

func TestStore_Import(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "abc123", "keep"))

	n, err := s.Import(ctx, map[string]string{
		"abc123": "ignored",
		"def456": "222",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	id, _, err := s.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "keep", id)

	id, found, err := s.Get(ctx, "def456")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "222", id)
}

func TestStore_ClosedDatabase(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Close())

	_, _, err := s.Get(context.Background(), "abc123")
	assert.Error(t, err)
}
