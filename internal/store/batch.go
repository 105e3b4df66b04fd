package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/starford/munin/internal/apperr"
	"github.com/starford/munin/internal/snapshot"
)

// Batch is one atomic unit of ingestion writes. All upserts are
// insert-or-replace by primary identifier; nothing is visible to readers
// until Commit.
type Batch struct {
	tx *sql.Tx
}

// BeginBatch opens a transaction scoped to one ingestion batch.
func (db *DB) BeginBatch(ctx context.Context) (*Batch, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, &apperr.StorageError{Op: "begin batch", Err: err}
	}
	return &Batch{tx: tx}, nil
}

// Commit commits the batch transaction.
func (b *Batch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return &apperr.StorageError{Op: "commit batch", Err: err}
	}
	return nil
}

// Rollback aborts the batch transaction.
func (b *Batch) Rollback() error {
	return b.tx.Rollback()
}

// UpsertDocument inserts or replaces the live row for a document.
func (b *Batch) UpsertDocument(d snapshot.Document) error {
	_, err := b.tx.Exec(`
		INSERT INTO documents (id, title, overview, notes_plain, notes_markdown, doc_type, creation_source, public, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			title           = excluded.title,
			overview        = excluded.overview,
			notes_plain     = excluded.notes_plain,
			notes_markdown  = excluded.notes_markdown,
			doc_type        = excluded.doc_type,
			creation_source = excluded.creation_source,
			public          = excluded.public,
			created_at      = excluded.created_at,
			updated_at      = CURRENT_TIMESTAMP
	`, d.ID, d.Title, d.Overview, d.NotesPlain, d.NotesMarkdown, d.Type, d.CreationSource, d.Public, d.CreatedAt)
	if err != nil {
		return &apperr.StorageError{Op: "upsert document " + d.ID, Err: err}
	}
	return nil
}

// UpsertCalendarEvent inserts or replaces a calendar event row.
func (b *Batch) UpsertCalendarEvent(docID string, ev snapshot.CalendarEvent) error {
	_, err := b.tx.Exec(`
		INSERT INTO calendar_events (id, document_id, summary, description, location, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			summary     = excluded.summary,
			description = excluded.description,
			location    = excluded.location,
			start_time  = excluded.start_time,
			end_time    = excluded.end_time
	`, ev.ID, docID, ev.Summary, ev.Description, ev.Location, ev.Start.DateTime, ev.End.DateTime)
	if err != nil {
		return &apperr.StorageError{Op: "upsert calendar event " + ev.ID, Err: err}
	}
	return nil
}

// UpsertPerson inserts or replaces an attendee row, keyed by document and
// email.
func (b *Batch) UpsertPerson(docID string, p snapshot.Person) error {
	_, err := b.tx.Exec(`
		INSERT INTO people (document_id, email, name, response_status, organizer)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id, email) DO UPDATE SET
			name            = excluded.name,
			response_status = excluded.response_status,
			organizer       = excluded.organizer
	`, docID, p.Email, p.Name, p.ResponseStatus, p.Organizer)
	if err != nil {
		return &apperr.StorageError{Op: "upsert person " + p.Email, Err: err}
	}
	return nil
}

// UpsertTranscriptEntry inserts or replaces a transcript line, keyed by
// document and entry id.
func (b *Batch) UpsertTranscriptEntry(docID string, e snapshot.TranscriptEntry) error {
	_, err := b.tx.Exec(`
		INSERT INTO transcripts (document_id, entry_id, source, text, start_timestamp, end_timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, entry_id) DO UPDATE SET
			source          = excluded.source,
			text            = excluded.text,
			start_timestamp = excluded.start_timestamp,
			end_timestamp   = excluded.end_timestamp
	`, docID, e.ID, e.Source, e.Text, e.StartTimestamp, e.EndTimestamp)
	if err != nil {
		return &apperr.StorageError{Op: "upsert transcript entry " + e.ID, Err: err}
	}
	return nil
}

// UpsertTemplate inserts or replaces a template row.
func (b *Batch) UpsertTemplate(docID string, tp snapshot.Template) error {
	sections := "{}"
	if len(tp.Sections) > 0 {
		if json.Valid(tp.Sections) {
			sections = string(tp.Sections)
		}
	}
	_, err := b.tx.Exec(`
		INSERT INTO templates (id, document_id, title, sections)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			title       = excluded.title,
			sections    = excluded.sections
	`, tp.ID, docID, tp.Title, sections)
	if err != nil {
		return &apperr.StorageError{Op: "upsert template " + tp.ID, Err: err}
	}
	return nil
}
