package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS cycles (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	id             TEXT    NOT NULL UNIQUE,
	started_at     INTEGER NOT NULL,
	duration_ms    INTEGER NOT NULL,
	pool_size      INTEGER NOT NULL,
	interval_ms    INTEGER NOT NULL,
	failed         INTEGER NOT NULL,
	cancelled      INTEGER NOT NULL,
	succeeded      INTEGER NOT NULL,
	weight         REAL,
	triggered      INTEGER NOT NULL,
	trigger_reason TEXT    NOT NULL,
	action         TEXT    NOT NULL,
	reason         TEXT    NOT NULL,
	next_pool_size INTEGER NOT NULL,
	bucket         TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cycles_started_at ON cycles(started_at);
`

const selectColumns = `id, started_at, duration_ms, pool_size, interval_ms, failed, cancelled,
	succeeded, weight, triggered, trigger_reason, action, reason, next_pool_size, bucket`

// SQLiteStore persists cycle records in a SQLite database.
//
// Records survive restarts; subscribers are in-process only. When retention
// is positive, only the newest retention rows are kept.
type SQLiteStore struct {
	*hub

	db        *sql.DB
	retention int
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema. Use ":memory:" for a throwaway database.
func OpenSQLite(path string, retention int) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY and keeps :memory: on one connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{hub: newHub(), db: db, retention: retention}, nil
}

// Append inserts rec, prunes rows beyond the retention limit, and notifies
// subscribers.
func (s *SQLiteStore) Append(ctx context.Context, rec CycleRecord) error {
	var weight sql.NullFloat64
	if rec.Weight != nil {
		weight = sql.NullFloat64{Float64: *rec.Weight, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO cycles (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.StartedAt.UnixNano(), rec.DurationMs, rec.PoolSize, rec.IntervalMs,
		rec.Failed, rec.Cancelled, rec.Succeeded, weight, rec.Triggered,
		rec.Trigger, rec.Action, rec.Reason, rec.NextPoolSize, rec.Bucket,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle %s: %w", rec.ID, err)
	}

	if s.retention > 0 {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM cycles WHERE seq <= (SELECT MAX(seq) FROM cycles) - ?`, s.retention)
		if err != nil {
			return fmt.Errorf("failed to prune cycles: %w", err)
		}
	}

	s.publish(rec)
	return nil
}

// Recent returns up to n records, newest first. A non-positive n returns
// every row.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]CycleRecord, error) {
	if n <= 0 {
		n = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM cycles ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []CycleRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cycles: %w", err)
	}
	return out, nil
}

// Latest returns the newest record.
func (s *SQLiteStore) Latest(ctx context.Context) (CycleRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM cycles ORDER BY seq DESC LIMIT 1`)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CycleRecord{}, false, nil
	}
	if err != nil {
		return CycleRecord{}, false, err
	}
	return rec, true, nil
}

// Close closes subscribers and the database.
func (s *SQLiteStore) Close() error {
	s.closeAll()
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (CycleRecord, error) {
	var (
		rec       CycleRecord
		startedAt int64
		weight    sql.NullFloat64
	)
	err := sc.Scan(&rec.ID, &startedAt, &rec.DurationMs, &rec.PoolSize, &rec.IntervalMs,
		&rec.Failed, &rec.Cancelled, &rec.Succeeded, &weight, &rec.Triggered,
		&rec.Trigger, &rec.Action, &rec.Reason, &rec.NextPoolSize, &rec.Bucket)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CycleRecord{}, err
		}
		return CycleRecord{}, fmt.Errorf("failed to scan cycle: %w", err)
	}
	rec.StartedAt = time.Unix(0, startedAt).UTC()
	if weight.Valid {
		w := weight.Float64
		rec.Weight = &w
	}
	return rec, nil
}
