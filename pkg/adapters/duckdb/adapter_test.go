package duckdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/themis/pkg/adapter"
	"github.com/leapstack-labs/themis/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapter_Connect(t *testing.T) {
	tests := []struct {
		name      string
		setupPath func(t *testing.T) string
		verify    func(t *testing.T, path string)
	}{
		{
			name: "in-memory",
			setupPath: func(_ *testing.T) string {
				return ":memory:"
			},
		},
		{
			name: "file-based",
			setupPath: func(t *testing.T) string {
				tmpDir := t.TempDir()
				return filepath.Join(tmpDir, "test.duckdb")
			},
			verify: func(t *testing.T, path string) {
				_, err := os.Stat(path)
				assert.False(t, os.IsNotExist(err), "database file was not created")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			adp := New(nil)

			dbPath := tt.setupPath(t)
			require.NoError(t, adp.Connect(ctx, adapter.Config{Path: dbPath}))
			defer func() { _ = adp.Close() }()

			if tt.verify != nil {
				tt.verify(t, dbPath)
			}
		})
	}
}

func TestAdapter_NotConnected(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)

	require.Error(t, adp.Exec(ctx, "SELECT 1"))
	_, err := adp.Cursor(ctx)
	require.Error(t, err)
}

func TestAdapter_Settings(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)
	require.NoError(t, adp.Connect(ctx, adapter.Config{
		Params: map[string]any{"settings": map[string]any{"threads": "2"}},
	}))
	defer func() { _ = adp.Close() }()

	cur, err := adp.Cursor(ctx)
	require.NoError(t, err)
	defer func() { _ = cur.Close() }()

	rows, err := cur.Query(ctx, "SELECT current_setting('threads')")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2", health.AsString(rows[0][0]))
}

func TestAdapter_InvalidParams(t *testing.T) {
	err := New(nil).Connect(context.Background(), adapter.Config{
		Params: map[string]any{"bogus": 1},
	})
	assert.Error(t, err)
}

func TestAdapter_CursorQueriesInformationSchema(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)
	require.NoError(t, adp.Connect(ctx, adapter.Config{}))
	defer func() { _ = adp.Close() }()

	require.NoError(t, adp.Exec(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name VARCHAR)"))

	cur, err := adp.Cursor(ctx)
	require.NoError(t, err)
	defer func() { _ = cur.Close() }()

	rows, err := cur.Query(ctx,
		"SELECT column_name FROM information_schema.columns WHERE table_schema = ? AND table_name = ? ORDER BY ordinal_position",
		adp.DefaultSchema(), "users")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "id", health.AsString(rows[0][0]))
	assert.Equal(t, "name", health.AsString(rows[1][0]))
}
