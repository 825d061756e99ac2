// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history keeps a local log of generation requests in SQLite, so
// past runs can be inspected without re-reading discussion files.
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

// =============================================================================
// ENTRY
// =============================================================================

// Entry is one logged generation request.
type Entry struct {
	ID          int64
	Timestamp   time.Time
	Flow        string // chat, generate, commit, code
	Binding     string
	Model       string
	PromptChars int
	EstTokens   int
	DurationMS  int64
	Success     bool
	ErrorType   string
}

// =============================================================================
// LOG
// =============================================================================

// Log is the SQLite-backed generation log.
type Log struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS generations (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp    INTEGER NOT NULL,
	flow         TEXT NOT NULL,
	binding      TEXT NOT NULL DEFAULT '',
	model        TEXT NOT NULL DEFAULT '',
	prompt_chars INTEGER NOT NULL DEFAULT 0,
	est_tokens   INTEGER NOT NULL DEFAULT 0,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	success      INTEGER NOT NULL DEFAULT 0,
	error_type   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_generations_timestamp ON generations(timestamp DESC);
`

// Open opens (and creates if needed) the generation log at dbPath.
func Open(dbPath string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to configure history database: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Record appends one entry. The entry's Timestamp defaults to now when zero.
func (l *Log) Record(ctx context.Context, e Entry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO generations
			(timestamp, flow, binding, model, prompt_chars, est_tokens, duration_ms, success, error_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.UnixMilli(), e.Flow, e.Binding, e.Model,
		e.PromptChars, e.EstTokens, e.DurationMS, boolToInt(e.Success), e.ErrorType,
	)
	if err != nil {
		return fmt.Errorf("failed to record generation: %w", err)
	}
	return nil
}

// Recent returns the latest n entries, newest first.
func (l *Log) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, timestamp, flow, binding, model, prompt_chars, est_tokens, duration_ms, success, error_type
		FROM generations
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		var success int
		if err := rows.Scan(&e.ID, &ts, &e.Flow, &e.Binding, &e.Model,
			&e.PromptChars, &e.EstTokens, &e.DurationMS, &success, &e.ErrorType); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		e.Success = success != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the total number of logged generations.
func (l *Log) Count(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generations`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}

// Prune deletes entries older than the cutoff. Returns the number removed.
func (l *Log) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM generations WHERE timestamp < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
