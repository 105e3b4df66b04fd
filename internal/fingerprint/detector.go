package fingerprint

import (
	"encoding/json"

	"github.com/starford/munin/internal/snapshot"
)

// Relevant-field projections. Fingerprints are computed over these fixed
// structs, never over the raw entities, so volatile bookkeeping fields
// (updated_at, sharing and view state) can never count as a change. For
// documents, type and creation_source ARE relevant: a document converted to
// another type is a meaningful change.
//
// Projections hold concrete value types, so a JSON null and an absent field
// both decode to the zero value and fingerprint identically.
type documentFields struct {
	Title          string `json:"title"`
	Overview       string `json:"overview"`
	NotesPlain     string `json:"notes_plain"`
	NotesMarkdown  string `json:"notes_markdown"`
	Type           string `json:"type"`
	CreationSource string `json:"creation_source"`
	Public         bool   `json:"public"`
}

type eventFields struct {
	Summary     string             `json:"summary"`
	Description string             `json:"description"`
	Location    string             `json:"location"`
	Start       snapshot.EventTime `json:"start"`
	End         snapshot.EventTime `json:"end"`
}

type personFields struct {
	Name           string `json:"name"`
	ResponseStatus string `json:"response_status"`
	Organizer      bool   `json:"organizer"`
}

type transcriptFields struct {
	Source         string `json:"source"`
	Text           string `json:"text"`
	StartTimestamp string `json:"start_timestamp"`
	EndTimestamp   string `json:"end_timestamp"`
}

type templateFields struct {
	Title    string `json:"title"`
	Sections any    `json:"sections"`
}

// Detector computes fingerprints over relevant-field projections and
// compares them against the Store. The Store is owned and mutated
// exclusively through the Detector.
type Detector struct {
	store *Store
}

// NewDetector creates a Detector over the given store.
func NewDetector(store *Store) *Detector {
	return &Detector{store: store}
}

// Result is one computed comparison, not yet applied to the Store.
// Separating the comparison (Check*) from the mutation (Commit) lets the
// ingestion engine defer store updates until its batch transaction has
// committed: a rolled-back batch leaves its entities marked changed for the
// next run.
type Result struct {
	Key         Key
	Fingerprint string
	Changed     bool
}

// CheckDocument compares doc against its last-seen fingerprint.
func (d *Detector) CheckDocument(doc snapshot.Document) (Result, error) {
	return d.check(Key{Class: ClassDocument, EntityID: doc.ID}, documentFields{
		Title:          doc.Title,
		Overview:       doc.Overview,
		NotesPlain:     doc.NotesPlain,
		NotesMarkdown:  doc.NotesMarkdown,
		Type:           doc.Type,
		CreationSource: doc.CreationSource,
		Public:         doc.Public,
	})
}

// CheckEvent compares a calendar event, scoped by its owning document.
// Attendees are fingerprinted separately via CheckPerson.
func (d *Detector) CheckEvent(docID string, ev snapshot.CalendarEvent) (Result, error) {
	return d.check(Key{Class: ClassEvent, ScopeID: docID, EntityID: ev.ID}, eventFields{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       ev.Start,
		End:         ev.End,
	})
}

// CheckPerson compares an attendee, scoped by its owning document.
func (d *Detector) CheckPerson(docID string, p snapshot.Person) (Result, error) {
	return d.check(Key{Class: ClassPerson, ScopeID: docID, EntityID: p.Email}, personFields{
		Name:           p.Name,
		ResponseStatus: p.ResponseStatus,
		Organizer:      p.Organizer,
	})
}

// CheckTranscript compares a transcript entry, scoped by its owning document.
func (d *Detector) CheckTranscript(docID string, e snapshot.TranscriptEntry) (Result, error) {
	return d.check(Key{Class: ClassTranscript, ScopeID: docID, EntityID: e.ID}, transcriptFields{
		Source:         e.Source,
		Text:           e.Text,
		StartTimestamp: e.StartTimestamp,
		EndTimestamp:   e.EndTimestamp,
	})
}

// CheckTemplate compares a template artifact, scoped by its owning
// document. The opaque sections payload is re-decoded before hashing so the
// digest does not depend on the key order of the source JSON.
func (d *Detector) CheckTemplate(docID string, tp snapshot.Template) (Result, error) {
	var sections any
	if len(tp.Sections) > 0 {
		if err := json.Unmarshal(tp.Sections, &sections); err != nil {
			sections = string(tp.Sections)
		}
	}
	return d.check(Key{Class: ClassTemplate, ScopeID: docID, EntityID: tp.ID}, templateFields{
		Title:    tp.Title,
		Sections: sections,
	})
}

func (d *Detector) check(k Key, projection any) (Result, error) {
	fp, err := Compute(projection)
	if err != nil {
		return Result{}, err
	}
	old, ok := d.store.Get(k)
	return Result{Key: k, Fingerprint: fp, Changed: !ok || old != fp}, nil
}

// Commit applies changed results to the Store.
func (d *Detector) Commit(results []Result) {
	for _, r := range results {
		if r.Changed {
			d.store.Set(r.Key, r.Fingerprint)
		}
	}
}

// HasChanged is the one-shot variant of Check+Commit for callers that do
// not stage writes behind a transaction.
func (d *Detector) HasChanged(k Key, projection any) (bool, error) {
	fp, err := Compute(projection)
	if err != nil {
		return false, err
	}
	return d.store.CompareAndSet(k, fp), nil
}
