package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const insertEntry = `
	INSERT INTO journal_entries (
		id, trace_id, backend, endpoint, scenario, outcome,
		request_method, request_path, request_headers, request_body,
		response_headers, response_body, status_code, duration_ms, timestamp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InitDB opens the sqlite journal at dbPath and creates its schema.
func InitDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error setting WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error setting synchronous mode: %w", err)
	}

	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	createTable := `
	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		trace_id TEXT,
		backend TEXT NOT NULL,
		endpoint TEXT,
		scenario TEXT,
		outcome TEXT,
		request_method TEXT NOT NULL,
		request_path TEXT NOT NULL,
		request_headers TEXT,
		request_body TEXT,
		response_headers TEXT,
		response_body TEXT,
		status_code INTEGER,
		duration_ms INTEGER,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	createIndexes := `
	CREATE INDEX IF NOT EXISTS idx_journal_backend ON journal_entries(backend);
	CREATE INDEX IF NOT EXISTS idx_journal_endpoint ON journal_entries(endpoint);
	CREATE INDEX IF NOT EXISTS idx_journal_status ON journal_entries(status_code);
	`

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating journal table: %w", err)
	}

	if _, err := db.Exec(createIndexes); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating indexes: %w", err)
	}

	return db, nil
}

// InsertEntry writes one entry outside of any batch.
func InsertEntry(ctx context.Context, db *sql.DB, entry *Entry) error {
	_, err := db.ExecContext(ctx, insertEntry, entryArgs(entry)...)
	return err
}

func insertBatch(ctx context.Context, db *sql.DB, batch *Batch) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertEntry)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, entry := range batch.Entries {
		if _, err := stmt.ExecContext(ctx, entryArgs(entry)...); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func entryArgs(e *Entry) []any {
	return []any{
		e.ID, e.TraceID, e.Backend, e.Endpoint, e.Scenario, e.Outcome,
		e.RequestMethod, e.RequestPath, e.RequestHeaders, e.RequestBody,
		e.ResponseHeaders, e.ResponseBody, e.StatusCode, e.DurationMs, e.Timestamp.UTC(),
	}
}

// Query returns the most recent entries of backend, newest first. An empty
// backend returns entries of every backend.
func Query(ctx context.Context, db *sql.DB, backend string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, trace_id, backend, endpoint, scenario, outcome,
			request_method, request_path, request_headers, request_body,
			response_headers, response_body, status_code, duration_ms, timestamp
		FROM journal_entries
		WHERE ? = '' OR backend = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?`, backend, backend, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts time.Time
		if err := rows.Scan(
			&e.ID, &e.TraceID, &e.Backend, &e.Endpoint, &e.Scenario, &e.Outcome,
			&e.RequestMethod, &e.RequestPath, &e.RequestHeaders, &e.RequestBody,
			&e.ResponseHeaders, &e.ResponseBody, &e.StatusCode, &e.DurationMs, &ts,
		); err != nil {
			return nil, fmt.Errorf("error scanning journal entry: %w", err)
		}
		e.Timestamp = ts
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
