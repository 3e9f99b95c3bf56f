// Package reconcile merges per-cycle discovery results into the durable
// known-state. Removal detection only exists for full-snapshot sources;
// for early-termination sources staleness is handled by time (TTL
// pruning), not by absence.
package reconcile

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flathunters/flatwatch/internal/model"
	"github.com/flathunters/flatwatch/internal/source"
	"github.com/flathunters/flatwatch/internal/store"
)

// Outcome is the result of one reconciliation pass.
type Outcome struct {
	// New holds the genuinely new listings of this cycle, sorted by
	// identifier. These are the candidates for filtering and
	// notification.
	New []model.Listing
	// Known is the refreshed known-state after all writes and pruning.
	Known map[string]model.Listing
	// Touched and Pruned are row counts for the cycle log.
	Touched int
	Pruned  int
}

// Engine applies discovery results to the store.
type Engine struct {
	store store.Store
	log   *zap.Logger
}

// New creates a reconciliation engine over the given store.
func New(st store.Store) *Engine {
	return &Engine{
		store: st,
		log:   zap.L().With(zap.String("component", "reconcile")),
	}
}

// Reconcile merges a cycle's discovery output into the store and prunes
// entries older than maxAge. Listings of failed sources are left
// untouched; a transient fetch error never means "these disappeared".
// Any store error aborts the pass and is recoverable next cycle.
func (e *Engine) Reconcile(
	ctx context.Context,
	known map[string]model.Listing,
	cycle *source.CycleResult,
	maxAge time.Duration,
) (*Outcome, error) {
	fresh := make(map[string]model.Listing)
	touch := make(map[string]struct{}, len(cycle.Reconfirmed))
	for id := range cycle.Reconfirmed {
		touch[id] = struct{}{}
	}

	// Re-check claimed-new listings against the global known-state:
	// another source may have surfaced the same identifier already.
	for id, l := range cycle.New {
		if _, ok := known[id]; ok {
			touch[id] = struct{}{}
			continue
		}
		fresh[id] = l
	}

	if len(fresh) > 0 {
		batch := make([]model.Listing, 0, len(fresh))
		for _, l := range fresh {
			batch = append(batch, l)
		}
		if err := e.store.UpsertAll(ctx, batch); err != nil {
			return nil, eris.Wrap(err, "reconcile: persist new listings")
		}
	}

	var touched int
	if len(touch) > 0 {
		ids := make([]string, 0, len(touch))
		for id := range touch {
			ids = append(ids, id)
		}
		n, err := e.store.Touch(ctx, ids)
		if err != nil {
			return nil, eris.Wrap(err, "reconcile: touch reconfirmed listings")
		}
		touched = n
	}

	pruned, err := e.store.Prune(ctx, maxAge)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: prune stale listings")
	}

	updated, err := e.store.LoadAll(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: reload known state")
	}

	out := &Outcome{
		New:     make([]model.Listing, 0, len(fresh)),
		Known:   updated,
		Touched: touched,
		Pruned:  pruned,
	}
	for _, l := range fresh {
		out.New = append(out.New, l)
	}
	sort.Slice(out.New, func(i, j int) bool { return out.New[i].Identifier < out.New[j].Identifier })

	e.log.Info("reconciliation complete",
		zap.Int("new", len(out.New)),
		zap.Int("touched", touched),
		zap.Int("pruned", pruned),
		zap.Int("known", len(updated)),
	)
	return out, nil
}
