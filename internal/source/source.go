// Package source defines the adapter contract for external listing
// sources and the orchestration that runs them each poll cycle.
package source

import (
	"context"

	"github.com/flathunters/flatwatch/internal/model"
)

// Result is one source's discovery output for a cycle.
type Result struct {
	// New maps identifiers to listings not present in the known state.
	New map[string]model.Listing
	// Reconfirmed holds known identifiers the source saw again this
	// cycle. Only early-termination sources populate it; full-snapshot
	// sources report their whole visible set through New minus known.
	Reconfirmed map[string]struct{}
}

// NewResult returns an empty, initialized Result.
func NewResult() *Result {
	return &Result{
		New:         make(map[string]model.Listing),
		Reconfirmed: make(map[string]struct{}),
	}
}

// Source is implemented by each external listing site adapter.
//
// Fetch receives the current known state so adapters whose feed is
// ordered newest-first can stop reading at the first known identifier.
// A failed Fetch must not have partially mutated anything observable;
// the orchestrator simply skips the source for the cycle.
type Source interface {
	// Name returns the unique source identifier (e.g. "inberlinwohnen").
	Name() string

	// SupportsEarlyTermination reports whether the source's feed is
	// guaranteed newest-first, allowing the scan to stop at the first
	// known identifier.
	SupportsEarlyTermination() bool

	// Fetch returns the source's discovery result for this cycle.
	Fetch(ctx context.Context, known map[string]model.Listing) (*Result, error)
}
