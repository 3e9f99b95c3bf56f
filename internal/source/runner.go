package source

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flathunters/flatwatch/internal/model"
)

// CycleResult aggregates the discovery output of every source polled in
// one cycle.
type CycleResult struct {
	// New maps identifiers to listings no source has reported before.
	New map[string]model.Listing
	// Reconfirmed holds known identifiers seen again this cycle.
	Reconfirmed map[string]struct{}
	// Failed lists sources whose Fetch returned an error, sorted by
	// name. Their previously stored listings must not be pruned.
	Failed []string
}

// Runner polls every registered source concurrently with per-source
// failure isolation: one broken site never costs the cycle.
type Runner struct {
	reg         *Registry
	concurrency int
	timeout     time.Duration
}

// NewRunner creates a Runner. concurrency caps how many sources fetch
// at once; zero or negative means no cap.
func NewRunner(reg *Registry, concurrency int, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Runner{reg: reg, concurrency: concurrency, timeout: timeout}
}

// Run fetches all sources against the known state and merges their
// results. A source error is logged, the source is recorded in Failed,
// and the cycle continues.
func (r *Runner) Run(ctx context.Context, known map[string]model.Listing) (*CycleResult, error) {
	log := zap.L().With(zap.String("component", "source.runner"))

	sources := r.reg.All()
	if len(sources) == 0 {
		log.Warn("no sources registered")
		return &CycleResult{New: map[string]model.Listing{}, Reconfirmed: map[string]struct{}{}}, nil
	}

	log.Info("polling sources",
		zap.Int("count", len(sources)),
		zap.Int("known", len(known)),
	)

	out := &CycleResult{
		New:         make(map[string]model.Listing),
		Reconfirmed: make(map[string]struct{}),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}

	for _, s := range sources {
		s := s
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			sLog := log.With(zap.String("source", s.Name()))

			start := time.Now()
			fetchCtx, cancel := context.WithTimeout(gctx, r.timeout)
			res, err := s.Fetch(fetchCtx, known)
			cancel()
			elapsed := time.Since(start)

			if err != nil {
				sLog.Error("fetch failed", zap.Error(err), zap.Duration("elapsed", elapsed))
				mu.Lock()
				out.Failed = append(out.Failed, s.Name())
				mu.Unlock()
				return nil // don't abort other sources on individual failure
			}

			sLog.Info("fetch complete",
				zap.Int("new", len(res.New)),
				zap.Int("reconfirmed", len(res.Reconfirmed)),
				zap.Duration("elapsed", elapsed),
			)

			mu.Lock()
			for id, l := range res.New {
				out.New[id] = l
			}
			for id := range res.Reconfirmed {
				out.Reconfirmed[id] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(out.Failed)

	log.Info("poll cycle complete",
		zap.Int("new", len(out.New)),
		zap.Int("reconfirmed", len(out.Reconfirmed)),
		zap.Strings("failed_sources", out.Failed),
	)
	return out, nil
}
