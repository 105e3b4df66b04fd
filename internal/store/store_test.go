package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/munin/internal/apperr"
	"github.com/starford/munin/internal/snapshot"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "munin-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// upsertDoc commits d in its own single-document batch.
func upsertDoc(t *testing.T, db *DB, d snapshot.Document, withHistory bool) {
	t.Helper()
	b, err := db.BeginBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if withHistory {
		if _, err := b.RecordDocumentHistory(d.ID); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.UpsertDocument(d); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"documents", "document_history", "calendar_events", "people", "transcripts", "templates"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestUpsertDocument_InsertThenReplace(t *testing.T) {
	db := testDB(t)
	upsertDoc(t, db, snapshot.Document{ID: "doc-1", Title: "First"}, false)
	upsertDoc(t, db, snapshot.Document{ID: "doc-1", Title: "Renamed"}, false)

	d, err := db.GetDocument("doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if d.Title != "Renamed" {
		t.Errorf("title = %q, want %q", d.Title, "Renamed")
	}
	n, _ := db.CountDocuments()
	if n != 1 {
		t.Errorf("count = %d, want 1 (replace, not append)", n)
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetDocument("missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRecordDocumentHistory_FirstIngestionNoop(t *testing.T) {
	db := testDB(t)
	b, err := db.BeginBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	recorded, err := b.RecordDocumentHistory("doc-1")
	if err != nil {
		t.Fatalf("RecordDocumentHistory: %v", err)
	}
	if recorded {
		t.Error("no prior row: nothing should be recorded")
	}
	if err := b.UpsertDocument(snapshot.Document{ID: "doc-1", Title: "First"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	n, _ := db.CountHistory()
	if n != 0 {
		t.Errorf("history count = %d, want 0", n)
	}
}

func TestRecordDocumentHistory_PreservesPriorState(t *testing.T) {
	db := testDB(t)
	upsertDoc(t, db, snapshot.Document{ID: "doc-1", Title: "Initial Meeting", NotesPlain: "v1"}, true)
	upsertDoc(t, db, snapshot.Document{ID: "doc-1", Title: "Updated Meeting", NotesPlain: "v2"}, true)

	recs, err := db.History("doc-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("history records = %d, want 1", len(recs))
	}
	if recs[0].Title != "Initial Meeting" || recs[0].NotesPlain != "v1" {
		t.Errorf("history should hold the first-ingested state, got %+v", recs[0])
	}
	if recs[0].DocumentID != "doc-1" {
		t.Errorf("document back-reference = %q", recs[0].DocumentID)
	}
	if recs[0].RecordID == "" {
		t.Error("record id should be set")
	}
	if recs[0].CapturedAt.IsZero() {
		t.Error("captured_at should be set")
	}
}

func TestHistory_NewestFirst(t *testing.T) {
	db := testDB(t)
	for _, title := range []string{"v1", "v2", "v3"} {
		upsertDoc(t, db, snapshot.Document{ID: "doc-1", Title: title}, true)
		time.Sleep(5 * time.Millisecond) // distinct capture timestamps
	}

	recs, err := db.History("doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("history records = %d, want 2", len(recs))
	}
	if recs[0].Title != "v2" || recs[1].Title != "v1" {
		t.Errorf("expected newest first (v2, v1), got (%s, %s)", recs[0].Title, recs[1].Title)
	}
	if !recs[0].CapturedAt.After(recs[1].CapturedAt) {
		t.Error("capture timestamps not descending")
	}
}

func TestBatch_RollbackDiscardsAllWrites(t *testing.T) {
	db := testDB(t)
	b, err := db.BeginBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := b.UpsertDocument(snapshot.Document{ID: "doc-1", Title: "A"}); err != nil {
		t.Fatal(err)
	}
	if err := b.UpsertDocument(snapshot.Document{ID: "doc-2", Title: "B"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Rollback(); err != nil {
		t.Fatal(err)
	}

	n, _ := db.CountDocuments()
	if n != 0 {
		t.Errorf("count = %d after rollback, want 0", n)
	}
}

func TestUpsertSubEntities(t *testing.T) {
	db := testDB(t)
	b, err := db.BeginBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := b.UpsertDocument(snapshot.Document{ID: "doc-1"}); err != nil {
		t.Fatal(err)
	}
	ev := snapshot.CalendarEvent{
		ID: "ev-1", Summary: "Weekly Sync",
		Start: snapshot.EventTime{DateTime: "2024-03-01T10:00:00Z"},
		End:   snapshot.EventTime{DateTime: "2024-03-01T10:30:00Z"},
	}
	if err := b.UpsertCalendarEvent("doc-1", ev); err != nil {
		t.Fatal(err)
	}
	if err := b.UpsertPerson("doc-1", snapshot.Person{Email: "a@example.com", Name: "Alice", Organizer: true}); err != nil {
		t.Fatal(err)
	}
	if err := b.UpsertTranscriptEntry("doc-1", snapshot.TranscriptEntry{ID: "t-1", Text: "hello", StartTimestamp: "00:01"}); err != nil {
		t.Fatal(err)
	}
	if err := b.UpsertTemplate("doc-1", snapshot.Template{ID: "tpl-1", Title: "Standup", Sections: []byte(`{"a":1}`)}); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	people, err := db.Attendees("doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(people) != 1 || people[0].Name != "Alice" || !people[0].Organizer {
		t.Errorf("attendees = %+v", people)
	}

	lines, err := db.Transcript("doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0].Text != "hello" {
		t.Errorf("transcript = %+v", lines)
	}
}

func TestListDocuments_Pagination(t *testing.T) {
	db := testDB(t)
	for _, id := range []string{"doc-1", "doc-2", "doc-3"} {
		upsertDoc(t, db, snapshot.Document{ID: id, Title: id}, false)
	}

	page, total, err := db.ListDocuments(2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(page) != 2 {
		t.Errorf("page size = %d, want 2", len(page))
	}
}
