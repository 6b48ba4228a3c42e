package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/leapstack-labs/themis/internal/testutil"
	"github.com/leapstack-labs/themis/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(filepath.Join(t.TempDir(), "registry.db")))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRules() []health.RuleInfo {
	return []health.RuleInfo{
		{
			ID:          "BIG_TABLE",
			Category:    health.CategoryObject,
			Family:      health.FamilyCount,
			Description: "tables larger than table_size GB",
			Weight:      1,
			MaxScore:    10,
			Thresholds:  map[string]any{"table_size": 10.0},
			Source:      health.SourceBuiltin,
		},
		{
			ID:          "UNION",
			Category:    health.CategoryText,
			Family:      health.FamilyText,
			Description: "UNION without ALL",
			Weight:      5,
			MaxScore:    5,
		},
		{
			ID:          "ORPHAN_VIEWS",
			Category:    health.CategoryExtended,
			Family:      health.FamilyExtended,
			Description: "views referencing dropped tables",
			Weight:      1,
			MaxScore:    5,
			Thresholds:  map[string]any{"limit": 10.0},
			Source:      "rules/extended/orphan_views.star",
		},
	}
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Close())
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)
	ctx := context.Background()

	_, err := store.UpsertRules(ctx, sampleRules())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database not opened")

	_, err = store.ListRules(ctx, "")
	require.Error(t, err)

	require.Error(t, store.Migrate())
}

func TestSQLiteStore_InitSchema(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.GetMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	// running migrations again is a no-op
	require.NoError(t, store.InitSchema())
}

func TestSQLiteStore_UpsertRules(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	inserted, err := store.UpsertRules(ctx, sampleRules())
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	records, err := store.ListRules(ctx, "")
	require.NoError(t, err)
	require.Len(t, records, 3)

	// ordered by category, then id
	assert.Equal(t, health.CategoryExtended, records[0].Category)
	assert.Equal(t, "ORPHAN_VIEWS", records[0].ID)
	assert.Equal(t, "rules/extended/orphan_views.star", records[0].Source)
	assert.Equal(t, map[string]any{"limit": 10.0}, records[0].Thresholds)

	assert.Equal(t, "BIG_TABLE", records[1].ID)
	assert.Equal(t, health.FamilyCount, records[1].Family)
	assert.InDelta(t, 10.0, records[1].MaxScore, 1e-9)
	assert.WithinDuration(t, time.Now(), records[1].RegisteredAt, time.Minute)

	assert.Equal(t, "UNION", records[2].ID)
	assert.Equal(t, health.SourceBuiltin, records[2].Source, "empty source stored as builtin")
	assert.Nil(t, records[2].Thresholds)
}

func TestSQLiteStore_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, err := store.UpsertRules(ctx, sampleRules())
	require.NoError(t, err)

	// second pass with a changed description must not overwrite or duplicate
	again := sampleRules()
	again[0].Description = "changed"
	inserted, err := store.UpsertRules(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	n, err := store.CountRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	records, err := store.ListRules(ctx, health.CategoryObject)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "tables larger than table_size GB", records[0].Description)
}

func TestSQLiteStore_SameIDDifferentCategory(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	rules := []health.RuleInfo{
		{ID: "DUP", Category: health.CategoryObject},
		{ID: "DUP", Category: health.CategoryExtended},
	}
	inserted, err := store.UpsertRules(ctx, rules)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
}

func TestSQLiteStore_ListByCategory(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, err := store.UpsertRules(ctx, sampleRules())
	require.NoError(t, err)

	tests := []struct {
		category health.Category
		want     []string
	}{
		{health.CategoryObject, []string{"BIG_TABLE"}},
		{health.CategoryText, []string{"UNION"}},
		{health.CategoryPlanStat, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			records, err := store.ListRules(ctx, tt.category)
			require.NoError(t, err)
			var ids []string
			for _, r := range records {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSQLiteStore_UpsertEmpty(t *testing.T) {
	store := setupTestStore(t)
	inserted, err := store.UpsertRules(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
}

func TestSQLiteStore_LockTimeout(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.db")

	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(path))
	defer func() { _ = store.Close() }()
	require.NoError(t, store.InitSchema())
	store.SetLockTimeout(100 * time.Millisecond)

	// another process holds the registry lock
	holder := flock.New(path + ".lock")
	locked, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	_, err = store.UpsertRules(ctx, sampleRules())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not acquire registry lock")

	require.NoError(t, holder.Unlock())

	inserted, err := store.UpsertRules(ctx, sampleRules())
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)
}

func TestThresholdsRoundTrip(t *testing.T) {
	s, err := encodeThresholds(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", s)

	m, err := decodeThresholds(s)
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = decodeThresholds("not json")
	require.Error(t, err)
}
