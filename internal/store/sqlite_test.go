package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flathunters/flatwatch/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testListing(id, source string) model.Listing {
	return model.Listing{
		Identifier: id,
		Source:     source,
		Address:    "Teststr. 1, 10115 Berlin",
		Borough:    "Mitte",
		SQM:        "54.3",
		PriceCold:  "612.40",
		PriceTotal: "780.00",
		Rooms:      "2",
	}
}

func TestSQLite_UpsertAndLoad(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertAll(ctx, []model.Listing{
		testListing("id-1", "wbm"),
		testListing("id-2", "wbm"),
	}))

	all, err := st.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Mitte", all["id-1"].Borough)
	assert.False(t, all["id-1"].CreatedAt.IsZero())
	assert.False(t, all["id-1"].UpdatedAt.IsZero())
}

func TestSQLite_UpsertPreservesCreatedAt(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertAll(ctx, []model.Listing{testListing("id-1", "wbm")}))

	all, err := st.LoadAll(ctx)
	require.NoError(t, err)
	created := all["id-1"].CreatedAt

	time.Sleep(10 * time.Millisecond)

	updated := testListing("id-1", "wbm")
	updated.PriceCold = "650.00"
	require.NoError(t, st.UpsertAll(ctx, []model.Listing{updated}))

	all, err = st.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "650.00", all["id-1"].PriceCold)
	assert.Equal(t, created, all["id-1"].CreatedAt)
	assert.True(t, all["id-1"].UpdatedAt.After(created))
}

func TestSQLite_TouchRefreshesWithoutContentChange(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertAll(ctx, []model.Listing{testListing("id-1", "wbm")}))
	before, err := st.LoadAll(ctx)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	n, err := st.Touch(ctx, []string{"id-1", "missing-id"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	after, err := st.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before["id-1"].PriceCold, after["id-1"].PriceCold)
	assert.Equal(t, before["id-1"].CreatedAt, after["id-1"].CreatedAt)
	assert.True(t, after["id-1"].UpdatedAt.After(before["id-1"].UpdatedAt))
}

func TestSQLite_Delete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertAll(ctx, []model.Listing{
		testListing("id-1", "wbm"),
		testListing("id-2", "wbm"),
	}))

	n, err := st.Delete(ctx, []string{"id-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLite_PruneByAge(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertAll(ctx, []model.Listing{
		testListing("stale", "wbm"),
		testListing("fresh", "wbm"),
	}))

	// Backdate the stale listing three days.
	_, err := st.db.ExecContext(ctx,
		`UPDATE listings SET updated_at = ? WHERE identifier = ?`,
		time.Now().UTC().Add(-72*time.Hour), "stale")
	require.NoError(t, err)

	n, err := st.Prune(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := st.LoadAll(ctx)
	require.NoError(t, err)
	assert.NotContains(t, all, "stale")
	assert.Contains(t, all, "fresh")
}

func TestSQLite_BySource(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertAll(ctx, []model.Listing{
		testListing("id-1", "wbm"),
		testListing("id-2", "inberlinwohnen"),
	}))

	wbm, err := st.BySource(ctx, "wbm")
	require.NoError(t, err)
	require.Len(t, wbm, 1)
	assert.Contains(t, wbm, "id-1")
}

func TestSQLite_EmptyBatchesAreNoops(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertAll(ctx, nil))

	n, err := st.Touch(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = st.Delete(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_CycleLog(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.LogCycle(ctx, CycleStats{
		ID:            "cycle-1",
		StartedAt:     time.Now().UTC().Add(-time.Minute),
		Duration:      1500 * time.Millisecond,
		New:           3,
		Reconfirmed:   7,
		Pruned:        1,
		FailedSources: []string{"deutschewohnen"},
	}))
	require.NoError(t, st.LogCycle(ctx, CycleStats{
		ID:        "cycle-2",
		StartedAt: time.Now().UTC(),
		Duration:  900 * time.Millisecond,
	}))

	cycles, err := st.RecentCycles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, cycles, 2)

	// Newest first.
	assert.Equal(t, "cycle-2", cycles[0].ID)
	assert.Equal(t, "cycle-1", cycles[1].ID)
	assert.Equal(t, 3, cycles[1].New)
	assert.Equal(t, []string{"deutschewohnen"}, cycles[1].FailedSources)
	assert.Empty(t, cycles[0].FailedSources)
	assert.Equal(t, 900*time.Millisecond, cycles[0].Duration)
}
