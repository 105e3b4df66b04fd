package api

import (
	"github.com/starford/munin/internal/ingest"
	"github.com/starford/munin/internal/store"
)

// Service exposes read-only views over the ingested store for the API
// layer. The pipeline itself never writes through this service.
type Service struct {
	db      *store.DB
	trigger *ingest.Trigger
}

// NewService creates a new API service. trigger may be nil when the watch
// loop is not running (read-only deployments, tests).
func NewService(db *store.DB, trigger *ingest.Trigger) *Service {
	return &Service{db: db, trigger: trigger}
}

// DocumentDetail is the response payload for a single document.
type DocumentDetail struct {
	store.DocumentRow
	Attendees      []store.PersonRow `json:"attendees"`
	TranscriptRows int               `json:"transcript_rows"`
	HistoryRecords int               `json:"history_records"`
}

// StatusInfo is the response payload for the status endpoint.
type StatusInfo struct {
	State          string            `json:"state"`
	Documents      int               `json:"documents"`
	HistoryRecords int               `json:"history_records"`
	LastCycle      *ingest.CycleInfo `json:"last_cycle,omitempty"`
}

// ListDocuments returns a page of documents and the total count.
func (s *Service) ListDocuments(limit, offset int) ([]store.DocumentRow, int, error) {
	return s.db.ListDocuments(limit, offset)
}

// GetDocument returns the live document row enriched with attendees and
// counts.
func (s *Service) GetDocument(id string) (*DocumentDetail, error) {
	row, err := s.db.GetDocument(id)
	if err != nil {
		return nil, err
	}

	attendees, err := s.db.Attendees(id)
	if err != nil {
		return nil, err
	}
	if attendees == nil {
		attendees = []store.PersonRow{}
	}

	transcript, err := s.db.Transcript(id)
	if err != nil {
		return nil, err
	}

	history, err := s.db.History(id)
	if err != nil {
		return nil, err
	}

	return &DocumentDetail{
		DocumentRow:    *row,
		Attendees:      attendees,
		TranscriptRows: len(transcript),
		HistoryRecords: len(history),
	}, nil
}

// History returns the historical records of a document, newest first. The
// document itself does not need to exist: a never-seen id yields an empty
// history.
func (s *Service) History(id string) ([]store.HistoryRecord, error) {
	recs, err := s.db.History(id)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []store.HistoryRecord{}
	}
	return recs, nil
}

// Status reports store counts and the trigger's current state.
func (s *Service) Status() (*StatusInfo, error) {
	docs, err := s.db.CountDocuments()
	if err != nil {
		return nil, err
	}
	history, err := s.db.CountHistory()
	if err != nil {
		return nil, err
	}

	info := &StatusInfo{
		State:          ingest.StateIdle.String(),
		Documents:      docs,
		HistoryRecords: history,
	}
	if s.trigger != nil {
		info.State = s.trigger.State().String()
		if cycle, ok := s.trigger.LastCycle(); ok {
			info.LastCycle = &cycle
		}
	}
	return info, nil
}
