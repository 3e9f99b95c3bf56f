// Package store provides durable persistence for known listings.
package store

import (
	"context"
	"time"

	"github.com/flathunters/flatwatch/internal/model"
)

// CycleStats is one poll cycle's outcome, recorded for observability.
type CycleStats struct {
	ID            string        `json:"id"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	New           int           `json:"new"`
	Reconfirmed   int           `json:"reconfirmed"`
	Pruned        int           `json:"pruned"`
	FailedSources []string      `json:"failed_sources,omitempty"`
}

// Store defines the persistence interface for the discovery engine.
// The poll loop is the only writer; batched writes are atomic as a unit.
type Store interface {
	// UpsertAll inserts or updates the given listings in one transaction.
	// created_at is preserved on update, updated_at is always refreshed.
	UpsertAll(ctx context.Context, listings []model.Listing) error

	// Touch refreshes updated_at for the given identifiers without
	// altering content fields. Returns the number of rows touched.
	Touch(ctx context.Context, ids []string) (int, error)

	// Delete removes listings by identifier. Returns the number removed.
	Delete(ctx context.Context, ids []string) (int, error)

	// Prune removes listings whose updated_at is older than maxAge.
	// Returns the number removed.
	Prune(ctx context.Context, maxAge time.Duration) (int, error)

	// Read accessors.
	LoadAll(ctx context.Context) (map[string]model.Listing, error)
	BySource(ctx context.Context, source string) (map[string]model.Listing, error)
	Count(ctx context.Context) (int, error)

	// Cycle log.
	LogCycle(ctx context.Context, stats CycleStats) error
	RecentCycles(ctx context.Context, limit int) ([]CycleStats, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
