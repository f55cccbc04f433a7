// Package runlog keeps a SQLite journal of remote command executions
// and collected log files, so a test session's remote activity can be
// inspected after the fact.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Journal records remote command runs in a SQLite database.
type Journal struct {
	db *sql.DB
}

// RunEntry is one recorded remote command execution.
type RunEntry struct {
	ID          string
	Host        string
	Argv        string
	ReturnCode  int
	StartedAt   time.Time
	Duration    time.Duration
	StdoutBytes int
	StderrBytes int
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal database: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		host TEXT NOT NULL,
		argv TEXT NOT NULL,
		returncode INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		stdout_bytes INTEGER NOT NULL DEFAULT 0,
		stderr_bytes INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS collected_logs (
		id TEXT PRIMARY KEY,
		host TEXT NOT NULL,
		path TEXT NOT NULL,
		collected_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_host ON runs(host);
	CREATE INDEX IF NOT EXISTS idx_logs_host ON collected_logs(host);
	`
	_, err := j.db.Exec(schema)
	return err
}

// RecordRun inserts one run entry. A missing ID is filled in.
func (j *Journal) RecordRun(ctx context.Context, e RunEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, host, argv, returncode, started_at, duration_ms, stdout_bytes, stderr_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Host, e.Argv, e.ReturnCode,
		e.StartedAt.UnixMilli(), e.Duration.Milliseconds(),
		e.StdoutBytes, e.StderrBytes)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecordLog notes that a remote log file was collected from a host.
func (j *Journal) RecordLog(ctx context.Context, host, path string) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO collected_logs (id, host, path, collected_at)
		VALUES (?, ?, ?, ?)`,
		uuid.NewString(), host, path, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("record collected log: %w", err)
	}
	return nil
}

// ListRuns returns recorded runs, newest first, optionally filtered by
// host. limit <= 0 means no limit.
func (j *Journal) ListRuns(ctx context.Context, host string, limit int) ([]RunEntry, error) {
	query := `SELECT id, host, argv, returncode, started_at, duration_ms, stdout_bytes, stderr_bytes
		FROM runs`
	var args []any
	if host != "" {
		query += ` WHERE host = ?`
		args = append(args, host)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		var startedMS, durationMS int64
		if err := rows.Scan(&e.ID, &e.Host, &e.Argv, &e.ReturnCode,
			&startedMS, &durationMS, &e.StdoutBytes, &e.StderrBytes); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.StartedAt = time.UnixMilli(startedMS)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
