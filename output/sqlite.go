package output

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/justapithecus/sieve/policy"
	"github.com/justapithecus/sieve/types"
)

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS entries (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT    NOT NULL,
	stage       TEXT    NOT NULL,
	byte_offset INTEGER NOT NULL,
	record_idx  INTEGER NOT NULL,
	data        BLOB
)`

const createEntriesIndex = `
CREATE INDEX IF NOT EXISTS idx_entries_run ON entries (run_id, seq)`

const insertEntry = `
INSERT INTO entries (run_id, stage, byte_offset, record_idx, data)
VALUES (?, ?, ?, ?, ?)`

// SQLiteSink appends entries to an SQLite database.
// Each Write is one transaction; entries of a run keep their drain order
// in the seq column.
type SQLiteSink struct {
	mu    sync.Mutex
	conn  *sql.DB
	runID string
}

var _ policy.Sink = (*SQLiteSink)(nil)

// OpenSQLiteSink opens (creating if needed) the database at dbPath.
// Entries are tagged with runID.
func OpenSQLiteSink(ctx context.Context, dbPath, runID string) (*SQLiteSink, error) {
	if runID == "" {
		return nil, fmt.Errorf("sqlite sink requires a run id")
	}
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps writes serialized.
	conn.SetMaxOpenConns(1)

	for _, ddl := range []string{createEntriesTable, createEntriesIndex} {
		if _, err := conn.ExecContext(ctx, ddl); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to create entries schema: %w", err)
		}
	}
	return &SQLiteSink{conn: conn, runID: runID}, nil
}

// Write inserts the batch in one transaction.
func (s *SQLiteSink) Write(ctx context.Context, entries []*types.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertEntry)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, s.runID, e.Stage, e.Pos.Offset, e.Pos.Index, e.Data); err != nil {
			return fmt.Errorf("failed to insert entry at %s: %w", e.Pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Entries returns the entries stored for runID in drain order.
func (s *SQLiteSink) Entries(ctx context.Context, runID string) ([]*types.Entry, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT stage, byte_offset, record_idx, data FROM entries WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Entry
	for rows.Next() {
		e := &types.Entry{}
		if err := rows.Scan(&e.Stage, &e.Pos.Offset, &e.Pos.Index, &e.Data); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.conn.Close()
}
