// Package store persists canonical signal records and the side cache in
// SQLite. The (signal, metric, region, time) quadruple is the primary key;
// writes are idempotent last-write-wins upserts, so re-ingesting a period
// overwrites instead of duplicating and partial runs self-correct on the
// next pass.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/epimap/epi-signal-etl/internal/domain"
)

// ErrNotFound is returned by query operations when no record exists yet for
// the requested key. It is a "no data yet" condition, not a system fault.
var ErrNotFound = errors.New("store: not found")

const schemaSQL = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS signals (
  signal     TEXT NOT NULL,
  metric     TEXT NOT NULL,
  region_id  TEXT NOT NULL,
  time_key   TEXT NOT NULL,
  value      REAL NOT NULL,
  source     TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (signal, metric, region_id, time_key)
);

CREATE TABLE IF NOT EXISTS cache (
  key        TEXT PRIMARY KEY,
  value      TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_signal_time ON signals(signal, metric, time_key);
CREATE INDEX IF NOT EXISTS idx_signals_region ON signals(region_id);
`

// Store wraps the SQLite database holding signals and the cache table.
// It is safe for concurrent use by parallel source passes: sources write
// disjoint signal namespaces and each upsert is a single statement.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or overwrites the row for the record's exact primary key,
// updating value, source, and the last-updated timestamp. At most one row
// per key exists at all times.
func (s *Store) Upsert(ctx context.Context, rec domain.SignalRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signals(signal, metric, region_id, time_key, value, source, updated_at)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(signal, metric, region_id, time_key)
		DO UPDATE SET value=excluded.value, source=excluded.source, updated_at=excluded.updated_at`,
		rec.Signal, rec.Metric, rec.RegionKey, rec.TimeKey, rec.Value, rec.Source, nowISO(),
	)
	if err != nil {
		return fmt.Errorf("upsert signal %s/%s: %w", rec.Signal, rec.Metric, err)
	}
	return nil
}

// UpsertBatch writes multiple records in one transaction. A failed batch
// leaves no partial rows from that call.
func (s *Store) UpsertBatch(ctx context.Context, recs []domain.SignalRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO signals(signal, metric, region_id, time_key, value, source, updated_at)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(signal, metric, region_id, time_key)
		DO UPDATE SET value=excluded.value, source=excluded.source, updated_at=excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	now := nowISO()
	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx,
			rec.Signal, rec.Metric, rec.RegionKey, rec.TimeKey, rec.Value, rec.Source, now,
		); err != nil {
			return fmt.Errorf("upsert signal %s/%s/%s/%s: %w",
				rec.Signal, rec.Metric, rec.RegionKey, rec.TimeKey, err)
		}
	}
	return tx.Commit()
}

// RegionValue is one region's value at a time key.
type RegionValue struct {
	RegionKey string  `json:"region"`
	Value     float64 `json:"value"`
}

// LatestResult is the newest period snapshot for a (signal, metric) pair.
type LatestResult struct {
	TimeKey string        `json:"time"`
	Values  []RegionValue `json:"values"`
}

// Latest returns the maximum time key present for the pair and all region
// values at that time key. Returns ErrNotFound when no rows exist.
func (s *Store) Latest(ctx context.Context, signal, metric string) (LatestResult, error) {
	var timeKey sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(time_key) FROM signals WHERE signal=? AND metric=?`,
		signal, metric,
	).Scan(&timeKey)
	if err != nil {
		return LatestResult{}, fmt.Errorf("query latest time key: %w", err)
	}
	if !timeKey.Valid {
		return LatestResult{}, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT region_id, value FROM signals
		 WHERE signal=? AND metric=? AND time_key=?
		 ORDER BY region_id`,
		signal, metric, timeKey.String,
	)
	if err != nil {
		return LatestResult{}, fmt.Errorf("query latest values: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	result := LatestResult{TimeKey: timeKey.String}
	for rows.Next() {
		var rv RegionValue
		if err := rows.Scan(&rv.RegionKey, &rv.Value); err != nil {
			return LatestResult{}, fmt.Errorf("scan latest value: %w", err)
		}
		result.Values = append(result.Values, rv)
	}
	if err := rows.Err(); err != nil {
		return LatestResult{}, fmt.Errorf("iterate latest values: %w", err)
	}
	return result, nil
}

// Point is one time-ordered value of a series.
type Point struct {
	TimeKey string  `json:"time"`
	Value   float64 `json:"value"`
}

// Series returns up to limit most recent points for one region, oldest first.
// The scan runs newest-first so the LIMIT bounds work, then the slice is
// reversed: consumers expect chronological order. Returns ErrNotFound when
// no rows exist for the key.
func (s *Store) Series(ctx context.Context, signal, metric, region string, limit int) ([]Point, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT time_key, value FROM signals
		 WHERE signal=? AND metric=? AND region_id=?
		 ORDER BY time_key DESC
		 LIMIT ?`,
		signal, metric, region, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var points []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.TimeKey, &p.Value); err != nil {
			return nil, fmt.Errorf("scan series point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series: %w", err)
	}
	if len(points) == 0 {
		return nil, ErrNotFound
	}

	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// CacheGet reads an opaque text blob from the side cache. Returns
// ErrNotFound when the key is absent.
func (s *Store) CacheGet(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM cache WHERE key=?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("cache get %q: %w", key, err)
	}
	return value, nil
}

// CacheSet writes an opaque text blob to the side cache, replacing any
// previous value for the key.
func (s *Store) CacheSet(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache(key, value, updated_at) VALUES(?,?,?)`,
		key, value, nowISO(),
	)
	if err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

func nowISO() string {
	return domain.Now().UTC().Format(time.RFC3339)
}
