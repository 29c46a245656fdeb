// Package history keeps an append-only log of scrape invocations in a
// local SQLite database. Record files remain the storage of record;
// the log exists so operators can see what ran, with which method, and
// how it ended.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// Run is one logged scrape invocation.
type Run struct {
	ID        string
	URL       string
	Source    string
	ContentID string
	Method    string
	Outcome   string // "success" or "error"
	Error     string
	Duration  time.Duration
	StartedAt time.Time
}

// Log is the invocation log.
type Log struct {
	db *sql.DB
}

// Open creates or opens the log database at path, creating parent
// directories and migrating the schema as needed.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Log{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	url           TEXT NOT NULL,
	source        TEXT NOT NULL DEFAULT '',
	content_id    TEXT NOT NULL DEFAULT '',
	method        TEXT NOT NULL DEFAULT '',
	outcome       TEXT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	started_at_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at_ms);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		return fmt.Errorf("history: read schema version: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("history: write schema version: %w", err)
		}
	}
	return nil
}

// Record appends one run. A missing ID gets a random UUID and a zero
// StartedAt is stamped with the current time.
func (l *Log) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (id, url, source, content_id, method, outcome, error, duration_ms, started_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.URL, run.Source, run.ContentID, run.Method, run.Outcome, run.Error,
		run.Duration.Milliseconds(), run.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("history: record run: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, url, source, content_id, method, outcome, error, duration_ms, started_at_ms
		FROM runs ORDER BY started_at_ms DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var durationMS, startedMS int64
		if err := rows.Scan(&r.ID, &r.URL, &r.Source, &r.ContentID, &r.Method,
			&r.Outcome, &r.Error, &durationMS, &startedMS); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.StartedAt = time.UnixMilli(startedMS).UTC()
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate runs: %w", err)
	}
	return runs, nil
}

// Close releases the database handle.
func (l *Log) Close() error { return l.db.Close() }
