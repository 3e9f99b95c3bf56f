package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/flathunters/flatwatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS listings (
	identifier  TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	address     TEXT NOT NULL,
	borough     TEXT NOT NULL,
	sqm         TEXT NOT NULL,
	price_cold  TEXT NOT NULL,
	price_total TEXT NOT NULL,
	rooms       TEXT NOT NULL,
	wbs         INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS poll_cycles (
	id                TEXT PRIMARY KEY,
	started_at        DATETIME NOT NULL,
	duration_ms       INTEGER NOT NULL,
	new_count         INTEGER NOT NULL,
	reconfirmed_count INTEGER NOT NULL,
	pruned_count      INTEGER NOT NULL,
	failed_sources    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_listings_source ON listings(source);
CREATE INDEX IF NOT EXISTS idx_listings_updated_at ON listings(updated_at);
CREATE INDEX IF NOT EXISTS idx_poll_cycles_started_at ON poll_cycles(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance queries.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

const sqliteUpsert = `
INSERT INTO listings
	(identifier, source, address, borough, sqm, price_cold, price_total, rooms, wbs, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(identifier) DO UPDATE SET
	source      = excluded.source,
	address     = excluded.address,
	borough     = excluded.borough,
	sqm         = excluded.sqm,
	price_cold  = excluded.price_cold,
	price_total = excluded.price_total,
	rooms       = excluded.rooms,
	wbs         = excluded.wbs,
	updated_at  = excluded.updated_at
`

func (s *SQLiteStore) UpsertAll(ctx context.Context, listings []model.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, l := range listings {
		if _, err := stmt.ExecContext(ctx,
			l.Identifier, l.Source, l.Address, l.Borough, l.SQM,
			l.PriceCold, l.PriceTotal, l.Rooms, boolToInt(l.WBS), now, now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert %s", l.Identifier)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit upsert")
}

func (s *SQLiteStore) Touch(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `UPDATE listings SET updated_at = ? WHERE identifier IN (` + placeholders(len(ids)) + `)`
	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now().UTC())
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: touch")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `DELETE FROM listings WHERE identifier IN (` + placeholders(len(ids)) + `)`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := s.db.ExecContext(ctx, `DELETE FROM listings WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

const sqliteSelect = `SELECT identifier, source, address, borough, sqm, price_cold, price_total, rooms, wbs, created_at, updated_at FROM listings`

func (s *SQLiteStore) LoadAll(ctx context.Context) (map[string]model.Listing, error) {
	return s.queryListings(ctx, sqliteSelect)
}

func (s *SQLiteStore) BySource(ctx context.Context, source string) (map[string]model.Listing, error) {
	return s.queryListings(ctx, sqliteSelect+` WHERE source = ?`, source)
}

func (s *SQLiteStore) queryListings(ctx context.Context, query string, args ...any) (map[string]model.Listing, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query listings")
	}
	defer rows.Close()

	listings := make(map[string]model.Listing)
	for rows.Next() {
		var l model.Listing
		var wbs int
		if err := rows.Scan(
			&l.Identifier, &l.Source, &l.Address, &l.Borough, &l.SQM,
			&l.PriceCold, &l.PriceTotal, &l.Rooms, &wbs, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan listing")
		}
		l.WBS = wbs != 0
		listings[l.Identifier] = l
	}
	return listings, eris.Wrap(rows.Err(), "sqlite: iterate listings")
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count")
}

func (s *SQLiteStore) LogCycle(ctx context.Context, stats CycleStats) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO poll_cycles (id, started_at, duration_ms, new_count, reconfirmed_count, pruned_count, failed_sources)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		stats.ID, stats.StartedAt.UTC(), stats.Duration.Milliseconds(),
		stats.New, stats.Reconfirmed, stats.Pruned, strings.Join(stats.FailedSources, ","),
	)
	return eris.Wrap(err, "sqlite: log cycle")
}

func (s *SQLiteStore) RecentCycles(ctx context.Context, limit int) ([]CycleStats, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, duration_ms, new_count, reconfirmed_count, pruned_count, failed_sources
		 FROM poll_cycles ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent cycles")
	}
	defer rows.Close()

	var out []CycleStats
	for rows.Next() {
		var cs CycleStats
		var durationMs int64
		var failed string
		if err := rows.Scan(&cs.ID, &cs.StartedAt, &durationMs, &cs.New, &cs.Reconfirmed, &cs.Pruned, &failed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cycle")
		}
		cs.Duration = time.Duration(durationMs) * time.Millisecond
		if failed != "" {
			cs.FailedSources = strings.Split(failed, ",")
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate cycles")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
