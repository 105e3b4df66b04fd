// Package snapshot decodes the externally produced meeting snapshot file
// into a normalized in-memory entity graph.
package snapshot

import "encoding/json"

// Document is the root entity: one meeting document with its notes.
type Document struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Overview       string         `json:"overview"`
	NotesPlain     string         `json:"notes_plain"`
	NotesMarkdown  string         `json:"notes_markdown"`
	Type           string         `json:"type"`
	CreationSource string         `json:"creation_source"`
	Public         bool           `json:"public"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at"`
	CalendarEvent  *CalendarEvent `json:"google_calendar_event,omitempty"`
}

// CalendarEvent is the calendar entry a document may be attached to.
type CalendarEvent struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
	Attendees   []Person  `json:"attendees"`
}

// EventTime is a calendar timestamp with its source timezone.
type EventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// Person is one attendee of a calendar event. Identified by email, which is
// only unique within the owning document.
type Person struct {
	Email          string `json:"email"`
	Name           string `json:"displayName"`
	ResponseStatus string `json:"responseStatus"`
	Organizer      bool   `json:"organizer"`
}

// TranscriptEntry is one line of a meeting transcript. Its identifier is
// only unique within the owning document.
type TranscriptEntry struct {
	ID             string `json:"id"`
	Source         string `json:"source"`
	Text           string `json:"text"`
	StartTimestamp string `json:"start_timestamp"`
	EndTimestamp   string `json:"end_timestamp"`
}

// Template is a note-template artifact attached to a document. Sections is
// kept opaque: the pipeline stores and fingerprints it without interpreting
// its inner structure.
type Template struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Sections json.RawMessage `json:"sections"`
}

// Graph is the normalized entity graph of one snapshot. Documents keep
// snapshot order; transcripts and templates are looked up by owning
// document identifier.
type Graph struct {
	Documents   []Document
	Transcripts map[string][]TranscriptEntry
	Templates   map[string][]Template
}
