package reconcile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flathunters/flatwatch/internal/model"
	"github.com/flathunters/flatwatch/internal/source"
	"github.com/flathunters/flatwatch/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return New(st), st
}

func listing(id string) model.Listing {
	return model.Listing{
		Identifier: id,
		Source:     "test",
		Address:    "Teststr. 1, 10115 Berlin",
		Borough:    "Mitte",
		SQM:        "54.3",
		PriceCold:  "612.40",
		PriceTotal: "780.00",
		Rooms:      "2",
	}
}

func cycleWith(newIDs []string, reconfirmed ...string) *source.CycleResult {
	c := &source.CycleResult{
		New:         make(map[string]model.Listing),
		Reconfirmed: make(map[string]struct{}),
	}
	for _, id := range newIDs {
		c.New[id] = listing(id)
	}
	for _, id := range reconfirmed {
		c.Reconfirmed[id] = struct{}{}
	}
	return c
}

func TestReconcile_NewListingsArePersisted(t *testing.T) {
	e, st := newTestEngine(t)

	out, err := e.Reconcile(context.Background(), nil, cycleWith([]string{"a", "b", "c"}), 48*time.Hour)
	require.NoError(t, err)

	require.Len(t, out.New, 3)
	assert.Equal(t, "a", out.New[0].Identifier) // sorted
	assert.Len(t, out.Known, 3)

	count, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestReconcile_KnownListingIsTouchedNotReinserted(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Reconcile(ctx, nil, cycleWith([]string{"a"}), 48*time.Hour)
	require.NoError(t, err)
	require.Len(t, first.New, 1)

	// A source reports "a" as new again; the global known-state wins.
	second, err := e.Reconcile(ctx, first.Known, cycleWith([]string{"a", "b"}), 48*time.Hour)
	require.NoError(t, err)

	require.Len(t, second.New, 1)
	assert.Equal(t, "b", second.New[0].Identifier)
	assert.Equal(t, 1, second.Touched)
	assert.Len(t, second.Known, 2)
}

func TestReconcile_ReconfirmedKeepsListingAlive(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	out, err := e.Reconcile(ctx, nil, cycleWith([]string{"a", "b"}), 48*time.Hour)
	require.NoError(t, err)

	// Backdate both rows past the TTL.
	backdate(t, st, -72*time.Hour)

	// "a" is reconfirmed this cycle, so only "b" falls to the prune.
	out, err = e.Reconcile(ctx, out.Known, cycleWith(nil, "a"), 48*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Touched)
	assert.Equal(t, 1, out.Pruned)
	assert.Contains(t, out.Known, "a")
	assert.NotContains(t, out.Known, "b")
}

func TestReconcile_FailedSourceListingsSurvive(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	out, err := e.Reconcile(ctx, nil, cycleWith([]string{"a"}), 48*time.Hour)
	require.NoError(t, err)

	// Next cycle the source fails: no new, no reconfirms, recent rows.
	empty := &source.CycleResult{
		New:         map[string]model.Listing{},
		Reconfirmed: map[string]struct{}{},
		Failed:      []string{"test"},
	}
	out, err = e.Reconcile(ctx, out.Known, empty, 48*time.Hour)
	require.NoError(t, err)

	assert.Zero(t, out.Pruned)
	assert.Contains(t, out.Known, "a")
}

func TestReconcile_EarlyTerminationScenario(t *testing.T) {
	// Known {1,2,3}; an early-termination source reports 4 as new and
	// reconfirms 2. Store ends at {1,2,3,4}, one genuinely new listing.
	e, st := newTestEngine(t)
	ctx := context.Background()

	out, err := e.Reconcile(ctx, nil, cycleWith([]string{"1", "2", "3"}), 48*time.Hour)
	require.NoError(t, err)

	out, err = e.Reconcile(ctx, out.Known, cycleWith([]string{"4"}, "2"), 48*time.Hour)
	require.NoError(t, err)

	require.Len(t, out.New, 1)
	assert.Equal(t, "4", out.New[0].Identifier)
	assert.Equal(t, 1, out.Touched)

	count, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

// backdate shifts every stored row's timestamps so prune thresholds can
// be exercised without sleeping.
func backdate(t *testing.T, st store.Store, offset time.Duration) {
	t.Helper()
	s, ok := st.(*store.SQLiteStore)
	require.True(t, ok)
	ts := time.Now().UTC().Add(offset)
	_, err := s.DB().Exec("UPDATE listings SET created_at = ?, updated_at = ?", ts, ts)
	require.NoError(t, err)
}
