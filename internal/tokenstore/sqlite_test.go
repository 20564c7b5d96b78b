package tokenstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T, path string) *SQLite {
	t.Helper()
	s, err := NewSQLite(path, DefaultAttributes())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.db")

	s1, err := NewSQLite(path, DefaultAttributes())
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, Pair{Access: "a", Refresh: "r"}))
	require.NoError(t, s1.Close())

	s2 := openTestSQLite(t, path)
	p, err := s2.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, Pair{Access: "a", Refresh: "r"}, p)
}

func TestSQLiteSingleRow(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, filepath.Join(t.TempDir(), "tokens.db"))

	require.NoError(t, s.Set(ctx, Pair{Access: "a1", Refresh: "r1"}))
	require.NoError(t, s.Set(ctx, Pair{Access: "a2", Refresh: "r2"}))

	var rows int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM token_pair").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestSQLiteCanceledContext(t *testing.T) {
	s := openTestSQLite(t, filepath.Join(t.TempDir(), "tokens.db"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.Set(ctx, Pair{Access: "a", Refresh: "r"}))

	p, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, p.IsZero(), "canceled write must not leave a partial pair")
}
