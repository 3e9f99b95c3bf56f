package store

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/flathunters/flatwatch/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock satisfies
// it, which keeps the Postgres store unit-testable without a server.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS listings (
	identifier  TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	address     TEXT NOT NULL,
	borough     TEXT NOT NULL,
	sqm         TEXT NOT NULL,
	price_cold  TEXT NOT NULL,
	price_total TEXT NOT NULL,
	rooms       TEXT NOT NULL,
	wbs         BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS poll_cycles (
	id                TEXT PRIMARY KEY,
	started_at        TIMESTAMPTZ NOT NULL,
	duration_ms       BIGINT NOT NULL,
	new_count         INT NOT NULL,
	reconfirmed_count INT NOT NULL,
	pruned_count      INT NOT NULL,
	failed_sources    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_listings_source ON listings(source);
CREATE INDEX IF NOT EXISTS idx_listings_updated_at ON listings(updated_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const postgresUpsert = `
INSERT INTO listings
	(identifier, source, address, borough, sqm, price_cold, price_total, rooms, wbs, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (identifier) DO UPDATE SET
	source      = EXCLUDED.source,
	address     = EXCLUDED.address,
	borough     = EXCLUDED.borough,
	sqm         = EXCLUDED.sqm,
	price_cold  = EXCLUDED.price_cold,
	price_total = EXCLUDED.price_total,
	rooms       = EXCLUDED.rooms,
	wbs         = EXCLUDED.wbs,
	updated_at  = EXCLUDED.updated_at`

func (s *PostgresStore) UpsertAll(ctx context.Context, listings []model.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	for _, l := range listings {
		if _, err := tx.Exec(ctx, postgresUpsert,
			l.Identifier, l.Source, l.Address, l.Borough, l.SQM,
			l.PriceCold, l.PriceTotal, l.Rooms, l.WBS, now, now,
		); err != nil {
			return eris.Wrapf(err, "postgres: upsert %s", l.Identifier)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit upsert")
}

func (s *PostgresStore) Touch(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET updated_at = $1 WHERE identifier = ANY($2)`,
		time.Now().UTC(), ids,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: touch")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE identifier = ANY($1)`, ids)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	tag, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune")
	}
	return int(tag.RowsAffected()), nil
}

const postgresSelect = `SELECT identifier, source, address, borough, sqm, price_cold, price_total, rooms, wbs, created_at, updated_at FROM listings`

func (s *PostgresStore) LoadAll(ctx context.Context) (map[string]model.Listing, error) {
	rows, err := s.pool.Query(ctx, postgresSelect)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load all")
	}
	return scanListings(rows)
}

func (s *PostgresStore) BySource(ctx context.Context, source string) (map[string]model.Listing, error) {
	rows, err := s.pool.Query(ctx, postgresSelect+` WHERE source = $1`, source)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: by source")
	}
	return scanListings(rows)
}

func scanListings(rows pgx.Rows) (map[string]model.Listing, error) {
	defer rows.Close()

	listings := make(map[string]model.Listing)
	for rows.Next() {
		var l model.Listing
		if err := rows.Scan(
			&l.Identifier, &l.Source, &l.Address, &l.Borough, &l.SQM,
			&l.PriceCold, &l.PriceTotal, &l.Rooms, &l.WBS, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan listing")
		}
		listings[l.Identifier] = l
	}
	return listings, eris.Wrap(rows.Err(), "postgres: iterate listings")
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count")
}

func (s *PostgresStore) LogCycle(ctx context.Context, stats CycleStats) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO poll_cycles (id, started_at, duration_ms, new_count, reconfirmed_count, pruned_count, failed_sources)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		stats.ID, stats.StartedAt.UTC(), stats.Duration.Milliseconds(),
		stats.New, stats.Reconfirmed, stats.Pruned, strings.Join(stats.FailedSources, ","),
	)
	return eris.Wrap(err, "postgres: log cycle")
}

func (s *PostgresStore) RecentCycles(ctx context.Context, limit int) ([]CycleStats, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, started_at, duration_ms, new_count, reconfirmed_count, pruned_count, failed_sources
		 FROM poll_cycles ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent cycles")
	}
	defer rows.Close()

	var out []CycleStats
	for rows.Next() {
		var cs CycleStats
		var durationMs int64
		var failed string
		if err := rows.Scan(&cs.ID, &cs.StartedAt, &durationMs, &cs.New, &cs.Reconfirmed, &cs.Pruned, &failed); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cycle")
		}
		cs.Duration = time.Duration(durationMs) * time.Millisecond
		if failed != "" {
			cs.FailedSources = strings.Split(failed, ",")
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate cycles")
}
