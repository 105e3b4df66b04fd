// Package store provides the SQLite-backed relational store: one live row
// per entity keyed by primary identifier, plus an append-only history table
// for documents.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id              TEXT PRIMARY KEY,
	title           TEXT NOT NULL DEFAULT '',
	overview        TEXT NOT NULL DEFAULT '',
	notes_plain     TEXT NOT NULL DEFAULT '',
	notes_markdown  TEXT NOT NULL DEFAULT '',
	doc_type        TEXT NOT NULL DEFAULT '',
	creation_source TEXT NOT NULL DEFAULT '',
	public          INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL DEFAULT '',
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS document_history (
	record_id       TEXT NOT NULL,
	document_id     TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	overview        TEXT NOT NULL DEFAULT '',
	notes_plain     TEXT NOT NULL DEFAULT '',
	notes_markdown  TEXT NOT NULL DEFAULT '',
	doc_type        TEXT NOT NULL DEFAULT '',
	creation_source TEXT NOT NULL DEFAULT '',
	public          INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL DEFAULT '',
	captured_at     DATETIME NOT NULL,
	PRIMARY KEY (record_id, captured_at)
);

CREATE INDEX IF NOT EXISTS idx_history_document ON document_history(document_id, captured_at DESC);

CREATE TABLE IF NOT EXISTS calendar_events (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	summary     TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	location    TEXT NOT NULL DEFAULT '',
	start_time  TEXT NOT NULL DEFAULT '',
	end_time    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_events_document ON calendar_events(document_id);

CREATE TABLE IF NOT EXISTS people (
	document_id     TEXT NOT NULL,
	email           TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	response_status TEXT NOT NULL DEFAULT '',
	organizer       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (document_id, email)
);

CREATE TABLE IF NOT EXISTS transcripts (
	document_id     TEXT NOT NULL,
	entry_id        TEXT NOT NULL,
	source          TEXT NOT NULL DEFAULT '',
	text            TEXT NOT NULL DEFAULT '',
	start_timestamp TEXT NOT NULL DEFAULT '',
	end_timestamp   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (document_id, entry_id)
);

CREATE TABLE IF NOT EXISTS templates (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	sections    TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_templates_document ON templates(document_id);
`

// DB wraps a sql.DB with store-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY between the batch writer and the read-only API.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
