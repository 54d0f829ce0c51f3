// Package history records on-demand test runs in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Run is one recorded invocation.
type Run struct {
	ID        int64         `json:"id"`
	Command   string        `json:"command"`
	Component string        `json:"component"`
	Success   bool          `json:"success"`
	ExitCode  int           `json:"exitCode"`
	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"startedAt"`
	Output    string        `json:"output,omitempty"`
	Stderr    string        `json:"stderr,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	command     TEXT    NOT NULL,
	component   TEXT    NOT NULL,
	success     INTEGER NOT NULL,
	exit_code   INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	started_at  TEXT    NOT NULL,
	output      TEXT    NOT NULL DEFAULT '',
	stderr      TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS runs_component ON runs (component, id);
`

// Store is the run history.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path. The special path
// ":memory:" keeps history in memory.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("history: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: failed to open database: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and ":memory:" is
	// per-connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: failed to connect: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores r and returns its id.
func (s *Store) Record(ctx context.Context, r Run) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (command, component, success, exit_code, duration_ms, started_at, output, stderr)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Command, r.Component, r.Success, r.ExitCode, r.Duration.Milliseconds(),
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.Output, r.Stderr,
	)
	if err != nil {
		return 0, fmt.Errorf("history: record run: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit runs, newest first. A non-empty component
// filters to that component.
func (s *Store) Recent(ctx context.Context, component string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, command, component, success, exit_code, duration_ms, started_at, output, stderr FROM runs`
	args := []interface{}{}
	if component != "" {
		query += ` WHERE component = ?`
		args = append(args, component)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r          Run
			durationMS int64
			startedAt  string
		)
		if err := rows.Scan(&r.ID, &r.Command, &r.Component, &r.Success, &r.ExitCode,
			&durationMS, &startedAt, &r.Output, &r.Stderr); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			r.StartedAt = t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
