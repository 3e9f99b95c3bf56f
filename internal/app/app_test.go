package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flathunters/flatwatch/internal/apply"
	"github.com/flathunters/flatwatch/internal/config"
	"github.com/flathunters/flatwatch/internal/filter"
	"github.com/flathunters/flatwatch/internal/model"
	"github.com/flathunters/flatwatch/internal/notify"
	"github.com/flathunters/flatwatch/internal/reconcile"
	"github.com/flathunters/flatwatch/internal/source"
	"github.com/flathunters/flatwatch/internal/store"
)

type recordingNotifier struct {
	listings []model.Listing
	texts    []string
}

var _ notify.Notifier = (*recordingNotifier)(nil)

func (r *recordingNotifier) NotifyListing(ctx context.Context, l model.Listing) error {
	r.listings = append(r.listings, l)
	return nil
}

func (r *recordingNotifier) Send(ctx context.Context, text string) error {
	r.texts = append(r.texts, text)
	return nil
}

type feedSource struct {
	name  string
	feed  []model.Listing
	early bool
}

func (f *feedSource) Name() string                   { return f.name }
func (f *feedSource) SupportsEarlyTermination() bool { return f.early }

// Fetch mimics a newest-first feed scan over the static feed slice.
func (f *feedSource) Fetch(ctx context.Context, known map[string]model.Listing) (*source.Result, error) {
	res := source.NewResult()
	for _, l := range f.feed {
		if _, ok := known[l.Identifier]; ok {
			res.Reconfirmed[l.Identifier] = struct{}{}
			if f.early {
				break
			}
			continue
		}
		res.New[l.Identifier] = l
	}
	return res, nil
}

func listing(id string) model.Listing {
	return model.Listing{
		Identifier: "https://example.org/flat/" + id,
		Source:     "testsource",
		Address:    "Teststr. " + id + ", 10115 Berlin",
		Borough:    "Mitte",
		SQM:        "54.3",
		PriceCold:  "612.40",
		PriceTotal: "780.00",
		Rooms:      "2",
	}
}

func newTestApp(t *testing.T, cfg config.Config, sources ...source.Source) (*App, store.Store, *recordingNotifier) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	reg := source.NewRegistry()
	for _, s := range sources {
		reg.Register(s)
	}

	if cfg.Poll.MaxListingAge == 0 {
		cfg.Poll.MaxListingAge = 48 * time.Hour
	}

	notifier := &recordingNotifier{}
	a := New(
		cfg,
		st,
		source.NewRunner(reg, 2, time.Minute),
		reconcile.New(st),
		filter.New(cfg.Filters, nil),
		notifier,
		apply.NewDispatcher(),
	)
	return a, st, notifier
}

func TestRunOnce_EmptyStoreNotifiesEverything(t *testing.T) {
	src := &feedSource{name: "a", feed: []model.Listing{listing("1"), listing("2"), listing("3")}}
	a, st, notifier := newTestApp(t, config.Config{}, src)

	require.NoError(t, a.RunOnce(context.Background()))

	count, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Len(t, notifier.listings, 3)
}

func TestRunOnce_QuietBaselineSendsSummaryOnly(t *testing.T) {
	src := &feedSource{name: "a", feed: []model.Listing{listing("1"), listing("2")}}
	cfg := config.Config{}
	cfg.Poll.QuietBaseline = true
	a, st, notifier := newTestApp(t, cfg, src)

	require.NoError(t, a.RunOnce(context.Background()))

	count, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Empty(t, notifier.listings)
	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "Baseline")
}

func TestRunCycle_EarlyTerminationOnlyNotifiesNew(t *testing.T) {
	// First cycle seeds {1,2,3}; the next feed is [4, 2] newest-first.
	seed := &feedSource{name: "a", early: true, feed: []model.Listing{listing("1"), listing("2"), listing("3")}}
	a, st, notifier := newTestApp(t, config.Config{}, seed)

	ctx := context.Background()
	require.NoError(t, a.RunOnce(ctx))
	require.Len(t, notifier.listings, 3)

	before, err := st.LoadAll(ctx)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	seed.feed = []model.Listing{listing("4"), listing("2")}
	require.NoError(t, a.RunCycle(ctx))

	after, err := st.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, after, 4)

	// Exactly one new notification, for listing 4.
	require.Len(t, notifier.listings, 4)
	assert.Equal(t, listing("4").Identifier, notifier.listings[3].Identifier)

	// 2 was touched, 1 and 3 kept their timestamps.
	id1, id2, id3 := listing("1").Identifier, listing("2").Identifier, listing("3").Identifier
	assert.True(t, after[id2].UpdatedAt.After(before[id2].UpdatedAt))
	assert.Equal(t, before[id1].UpdatedAt, after[id1].UpdatedAt)
	assert.Equal(t, before[id3].UpdatedAt, after[id3].UpdatedAt)
}

func TestRunCycle_FilteredListingsAreStoredButNotNotified(t *testing.T) {
	expensive := listing("1")
	expensive.PriceTotal = "2500.00"
	src := &feedSource{name: "a", feed: []model.Listing{expensive}}

	maxPrice := 1200.0
	cfg := config.Config{}
	cfg.Filters = config.FilterConfig{
		Enabled:    true,
		PriceTotal: config.Range{Max: &maxPrice},
	}
	a, st, notifier := newTestApp(t, cfg, src)

	require.NoError(t, a.RunOnce(context.Background()))

	count, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count, "filtered listings still enter the known-state")
	assert.Empty(t, notifier.listings)
}

func TestRunCycle_WritesCycleLog(t *testing.T) {
	src := &feedSource{name: "a", feed: []model.Listing{listing("1")}}
	a, st, _ := newTestApp(t, config.Config{}, src)

	require.NoError(t, a.RunOnce(context.Background()))

	cycles, err := st.RecentCycles(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, 1, cycles[0].New)
	assert.NotEmpty(t, cycles[0].ID)
}

func TestSuspensionWindow(t *testing.T) {
	a, _, _ := newTestApp(t, config.Config{}, &feedSource{name: "a"})

	at := func(hour int) time.Time {
		return time.Date(2026, 8, 25, hour, 30, 0, 0, time.Local)
	}

	// Plain window 1-6.
	a.cfg.Poll.SuspensionStartHour = 1
	a.cfg.Poll.SuspensionEndHour = 6
	assert.True(t, a.suspended(at(3)))
	assert.False(t, a.suspended(at(0)))
	assert.False(t, a.suspended(at(6)))

	// Window wrapping midnight, 23-6.
	a.cfg.Poll.SuspensionStartHour = 23
	a.cfg.Poll.SuspensionEndHour = 6
	assert.True(t, a.suspended(at(23)))
	assert.True(t, a.suspended(at(2)))
	assert.False(t, a.suspended(at(12)))

	// start == end disables suspension.
	a.cfg.Poll.SuspensionStartHour = 0
	a.cfg.Poll.SuspensionEndHour = 0
	assert.False(t, a.suspended(at(0)))
}

type applyRecorder struct {
	applied []string
}

func (r *applyRecorder) Name() string                   { return "recorder" }
func (r *applyRecorder) CanHandle(l model.Listing) bool { return true }
func (r *applyRecorder) Apply(ctx context.Context, l model.Listing) apply.Result {
	r.applied = append(r.applied, l.Identifier)
	return apply.Result{
		Status:        apply.StatusSuccess,
		ApplicantData: map[string]string{"vorname": "Max"},
		FieldOrder:    []string{"vorname"},
	}
}

func TestRunCycle_SuccessfulApplySendsFollowUp(t *testing.T) {
	src := &feedSource{name: "a", feed: []model.Listing{listing("1")}}
	a, _, notifier := newTestApp(t, config.Config{}, src)

	rec := &applyRecorder{}
	a.dispatcher.Register(rec)

	require.NoError(t, a.RunOnce(context.Background()))

	assert.Equal(t, []string{listing("1").Identifier}, rec.applied)
	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "Application Submitted")
	assert.Contains(t, notifier.texts[0], "Max")
}
