package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/starford/munin/internal/apperr"
)

// DocumentRow is the live row for a document.
type DocumentRow struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Overview       string    `json:"overview"`
	NotesPlain     string    `json:"notes_plain"`
	NotesMarkdown  string    `json:"notes_markdown"`
	DocType        string    `json:"doc_type"`
	CreationSource string    `json:"creation_source"`
	Public         bool      `json:"public"`
	CreatedAt      string    `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PersonRow is the live row for one attendee of a document.
type PersonRow struct {
	Email          string `json:"email"`
	Name           string `json:"name"`
	ResponseStatus string `json:"response_status"`
	Organizer      bool   `json:"organizer"`
}

// TranscriptRow is the live row for one transcript line.
type TranscriptRow struct {
	EntryID        string `json:"entry_id"`
	Source         string `json:"source"`
	Text           string `json:"text"`
	StartTimestamp string `json:"start_timestamp"`
	EndTimestamp   string `json:"end_timestamp"`
}

const documentColumns = `id, title, overview, notes_plain, notes_markdown, doc_type, creation_source, public, created_at, updated_at`

func scanDocument(row *sql.Row) (*DocumentRow, error) {
	var d DocumentRow
	err := row.Scan(&d.ID, &d.Title, &d.Overview, &d.NotesPlain, &d.NotesMarkdown,
		&d.DocType, &d.CreationSource, &d.Public, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, &apperr.StorageError{Op: "scan document", Err: err}
	}
	return &d, nil
}

// GetDocument returns the live row for id, or apperr.ErrNotFound.
func (db *DB) GetDocument(id string) (*DocumentRow, error) {
	return scanDocument(db.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
}

// ListDocuments returns a page of documents ordered by most recent update,
// plus the total count.
func (db *DB) ListDocuments(limit, offset int) ([]DocumentRow, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents`).Scan(&total); err != nil {
		return nil, 0, &apperr.StorageError{Op: "count documents", Err: err}
	}

	rows, err := db.conn.Query(`
		SELECT `+documentColumns+` FROM documents
		ORDER BY updated_at DESC, id ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, &apperr.StorageError{Op: "list documents", Err: err}
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var d DocumentRow
		if err := rows.Scan(&d.ID, &d.Title, &d.Overview, &d.NotesPlain, &d.NotesMarkdown,
			&d.DocType, &d.CreationSource, &d.Public, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, 0, &apperr.StorageError{Op: "scan document", Err: err}
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// CountDocuments returns the number of live document rows.
func (db *DB) CountDocuments() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, &apperr.StorageError{Op: "count documents", Err: err}
	}
	return n, nil
}

// Attendees returns the attendee rows of a document.
func (db *DB) Attendees(docID string) ([]PersonRow, error) {
	rows, err := db.conn.Query(`
		SELECT email, name, response_status, organizer FROM people
		WHERE document_id = ? ORDER BY email
	`, docID)
	if err != nil {
		return nil, &apperr.StorageError{Op: "list attendees for " + docID, Err: err}
	}
	defer rows.Close()

	var out []PersonRow
	for rows.Next() {
		var p PersonRow
		if err := rows.Scan(&p.Email, &p.Name, &p.ResponseStatus, &p.Organizer); err != nil {
			return nil, &apperr.StorageError{Op: "scan person", Err: err}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Transcript returns the transcript lines of a document in timestamp order.
func (db *DB) Transcript(docID string) ([]TranscriptRow, error) {
	rows, err := db.conn.Query(`
		SELECT entry_id, source, text, start_timestamp, end_timestamp FROM transcripts
		WHERE document_id = ? ORDER BY start_timestamp, entry_id
	`, docID)
	if err != nil {
		return nil, &apperr.StorageError{Op: "list transcript for " + docID, Err: err}
	}
	defer rows.Close()

	var out []TranscriptRow
	for rows.Next() {
		var e TranscriptRow
		if err := rows.Scan(&e.EntryID, &e.Source, &e.Text, &e.StartTimestamp, &e.EndTimestamp); err != nil {
			return nil, &apperr.StorageError{Op: "scan transcript entry", Err: err}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
