package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/starford/munin/internal/apperr"
)

// HistoryRecord is an immutable copy of a document's persisted state taken
// right before an update overwrote it.
type HistoryRecord struct {
	RecordID       string    `json:"record_id"`
	DocumentID     string    `json:"document_id"`
	Title          string    `json:"title"`
	Overview       string    `json:"overview"`
	NotesPlain     string    `json:"notes_plain"`
	NotesMarkdown  string    `json:"notes_markdown"`
	DocType        string    `json:"doc_type"`
	CreationSource string    `json:"creation_source"`
	Public         bool      `json:"public"`
	CreatedAt      string    `json:"created_at"`
	CapturedAt     time.Time `json:"captured_at"`
}

// RecordDocumentHistory copies the currently persisted document row into
// the append-only history table, inside the batch transaction. Must run
// before UpsertDocument overwrites the live row. Reports whether a record
// was written: first-ever ingestion of a document has nothing to preserve
// and is a no-op.
func (b *Batch) RecordDocumentHistory(docID string) (bool, error) {
	var r HistoryRecord
	err := b.tx.QueryRow(`
		SELECT title, overview, notes_plain, notes_markdown, doc_type, creation_source, public, created_at
		FROM documents WHERE id = ?
	`, docID).Scan(&r.Title, &r.Overview, &r.NotesPlain, &r.NotesMarkdown, &r.DocType, &r.CreationSource, &r.Public, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &apperr.StorageError{Op: "read prior document " + docID, Err: err}
	}

	_, err = b.tx.Exec(`
		INSERT INTO document_history (record_id, document_id, title, overview, notes_plain, notes_markdown, doc_type, creation_source, public, created_at, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), docID, r.Title, r.Overview, r.NotesPlain, r.NotesMarkdown, r.DocType, r.CreationSource, r.Public, r.CreatedAt, time.Now().UTC())
	if err != nil {
		return false, &apperr.StorageError{Op: "record history for " + docID, Err: err}
	}
	return true, nil
}

// History returns all historical records for a document, newest first.
func (db *DB) History(docID string) ([]HistoryRecord, error) {
	rows, err := db.conn.Query(`
		SELECT record_id, document_id, title, overview, notes_plain, notes_markdown, doc_type, creation_source, public, created_at, captured_at
		FROM document_history
		WHERE document_id = ?
		ORDER BY captured_at DESC, record_id DESC
	`, docID)
	if err != nil {
		return nil, &apperr.StorageError{Op: "query history for " + docID, Err: err}
	}
	defer rows.Close()

	var out []HistoryRecord
	for rows.Next() {
		var r HistoryRecord
		if err := rows.Scan(&r.RecordID, &r.DocumentID, &r.Title, &r.Overview, &r.NotesPlain, &r.NotesMarkdown,
			&r.DocType, &r.CreationSource, &r.Public, &r.CreatedAt, &r.CapturedAt); err != nil {
			return nil, &apperr.StorageError{Op: "scan history row", Err: err}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountHistory returns the total number of historical records.
func (db *DB) CountHistory() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM document_history`).Scan(&n); err != nil {
		return 0, &apperr.StorageError{Op: "count history", Err: err}
	}
	return n, nil
}
