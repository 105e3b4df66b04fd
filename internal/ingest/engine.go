// Package ingest implements the batched change-detection ingestion pipeline
// and the file-watch trigger that drives it.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/starford/munin/internal/apperr"
	"github.com/starford/munin/internal/fingerprint"
	"github.com/starford/munin/internal/snapshot"
)

// DefaultBatchSize bounds the number of documents per transaction, which in
// turn bounds memory use and the blast radius of a failed batch.
const DefaultBatchSize = 100

// Store is the narrow persistence contract the engine depends on.
type Store interface {
	BeginBatch(ctx context.Context) (Batch, error)
}

// Batch is one atomic unit of writes. RecordDocumentHistory must be called
// before UpsertDocument overwrites the live row; it reports whether a
// record was written (first-ever ingestion preserves nothing).
type Batch interface {
	RecordDocumentHistory(docID string) (bool, error)
	UpsertDocument(d snapshot.Document) error
	UpsertCalendarEvent(docID string, ev snapshot.CalendarEvent) error
	UpsertPerson(docID string, p snapshot.Person) error
	UpsertTranscriptEntry(docID string, e snapshot.TranscriptEntry) error
	UpsertTemplate(docID string, tp snapshot.Template) error
	Commit() error
	Rollback() error
}

// EventFunc is called after a batch commits, once per changed document.
// kind is "created" or "updated".
type EventFunc func(kind, documentID string)

// Engine partitions a snapshot graph into bounded batches and, per batch,
// detects changes, records history, and persists an atomic set of
// mutations. The engine owns transaction boundaries; fingerprint and
// history state are mutated only through the detector and the batch.
type Engine struct {
	store     Store
	detector  *fingerprint.Detector
	batchSize int
	logger    *slog.Logger
	onEvent   EventFunc
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithBatchSize overrides the per-transaction document limit.
func WithBatchSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithEventFunc registers a callback invoked after each committed batch for
// every changed document in it.
func WithEventFunc(fn EventFunc) EngineOption {
	return func(e *Engine) { e.onEvent = fn }
}

// NewEngine creates an ingestion engine over the given store and detector.
func NewEngine(store Store, detector *fingerprint.Detector, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		detector:  detector,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Summary reports what one ingestion cycle did. Counts cover committed
// batches only.
type Summary struct {
	Documents        int `json:"documents"`
	ChangedDocuments int `json:"changed_documents"`
	HistoryRecords   int `json:"history_records"`
	Batches          int `json:"batches"`
	SkippedEntities  int `json:"skipped_entities"`
}

// Ingest runs the full ingestion pipeline over g in bounded batches. A failure
// aborts the current batch only; batches already committed stay committed,
// and the error names the offending document.
func (e *Engine) Ingest(ctx context.Context, g *snapshot.Graph) (*Summary, error) {
	sum := &Summary{Documents: len(g.Documents)}
	for start := 0; start < len(g.Documents); start += e.batchSize {
		end := min(start+e.batchSize, len(g.Documents))
		if err := e.ingestBatch(ctx, g, g.Documents[start:end], sum); err != nil {
			return sum, err
		}
		sum.Batches++
	}
	return sum, nil
}

// docPlan is the precomputed change set for one document. Fingerprints are
// computed concurrently across the batch; all writes happen serially inside
// the batch transaction, which is not safe to share across goroutines.
type docPlan struct {
	doc     snapshot.Document
	skip    bool
	skipped int // sub-entities dropped for missing identity

	// historyWritten is set by applyPlan: a changed document with no
	// history record is a first sighting.
	historyWritten bool

	docRes      fingerprint.Result
	eventRes    *fingerprint.Result
	people      []personPlan
	transcripts []transcriptPlan
	templates   []templatePlan
}

type personPlan struct {
	person snapshot.Person
	res    fingerprint.Result
}

type transcriptPlan struct {
	entry snapshot.TranscriptEntry
	res   fingerprint.Result
}

type templatePlan struct {
	template snapshot.Template
	res      fingerprint.Result
}

// results collects every comparison in the plan for deferred commit to the
// fingerprint store.
func (p *docPlan) results() []fingerprint.Result {
	out := make([]fingerprint.Result, 0, 1+len(p.people)+len(p.transcripts)+len(p.templates))
	out = append(out, p.docRes)
	if p.eventRes != nil {
		out = append(out, *p.eventRes)
	}
	for _, pp := range p.people {
		out = append(out, pp.res)
	}
	for _, tp := range p.transcripts {
		out = append(out, tp.res)
	}
	for _, tm := range p.templates {
		out = append(out, tm.res)
	}
	return out
}

func (e *Engine) ingestBatch(ctx context.Context, g *snapshot.Graph, docs []snapshot.Document, sum *Summary) error {
	plans := make([]docPlan, len(docs))

	grp, _ := errgroup.WithContext(ctx)
	for i := range docs {
		grp.Go(func() error {
			p, err := e.plan(g, docs[i])
			if err != nil {
				return err
			}
			plans[i] = p
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return fmt.Errorf("ingest: plan batch: %w", err)
	}

	batch, err := e.store.BeginBatch(ctx)
	if err != nil {
		return err
	}

	var changed, history int
	var pending []fingerprint.Result
	for i := range plans {
		p := &plans[i]
		sum.SkippedEntities += p.skipped
		if p.skip {
			continue
		}
		h, err := e.applyPlan(batch, p)
		if err != nil {
			_ = batch.Rollback()
			return fmt.Errorf("ingest: document %s: %w", p.doc.ID, err)
		}
		history += h
		if p.docRes.Changed {
			changed++
		}
		pending = append(pending, p.results()...)
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	// Fingerprints are advanced only after the commit, so a rolled-back
	// batch leaves its entities marked changed for the next run.
	e.detector.Commit(pending)
	sum.ChangedDocuments += changed
	sum.HistoryRecords += history

	if e.onEvent != nil {
		for i := range plans {
			p := &plans[i]
			if p.skip || !p.docRes.Changed {
				continue
			}
			kind := "updated"
			if !p.historyWritten {
				kind = "created"
			}
			e.onEvent(kind, p.doc.ID)
		}
	}
	return nil
}

// plan runs change detection for one document and its sub-entities. Pure
// with respect to storage: nothing is written and the fingerprint store is
// only read.
func (e *Engine) plan(g *snapshot.Graph, doc snapshot.Document) (docPlan, error) {
	p := docPlan{doc: doc}
	if doc.ID == "" {
		verr := &apperr.InvalidEntityError{Class: "document", Reason: "missing id"}
		e.logger.Warn("ingest: skipping entity",
			slog.String("error", verr.Error()),
			slog.String("title", doc.Title))
		p.skip = true
		p.skipped++
		return p, nil
	}

	res, err := e.detector.CheckDocument(doc)
	if err != nil {
		return p, err
	}
	p.docRes = res

	if ev := doc.CalendarEvent; ev != nil {
		if ev.ID == "" {
			verr := &apperr.InvalidEntityError{Class: "calendar event", Reason: "missing id"}
			e.logger.Warn("ingest: skipping entity",
				slog.String("error", verr.Error()),
				slog.String("document", doc.ID))
			p.skipped++
		} else {
			r, err := e.detector.CheckEvent(doc.ID, *ev)
			if err != nil {
				return p, err
			}
			p.eventRes = &r
			// Attendees carry their own fingerprints: a person can change
			// (or appear) while the event's own fields stay identical.
			for _, a := range ev.Attendees {
				if a.Email == "" {
					verr := &apperr.InvalidEntityError{Class: "person", Reason: "missing email"}
					e.logger.Warn("ingest: skipping entity",
						slog.String("error", verr.Error()),
						slog.String("document", doc.ID))
					p.skipped++
					continue
				}
				pr, err := e.detector.CheckPerson(doc.ID, a)
				if err != nil {
					return p, err
				}
				p.people = append(p.people, personPlan{person: a, res: pr})
			}
		}
	}

	for _, entry := range g.Transcripts[doc.ID] {
		if entry.ID == "" {
			verr := &apperr.InvalidEntityError{Class: "transcript entry", Reason: "missing id"}
			e.logger.Warn("ingest: skipping entity",
				slog.String("error", verr.Error()),
				slog.String("document", doc.ID))
			p.skipped++
			continue
		}
		r, err := e.detector.CheckTranscript(doc.ID, entry)
		if err != nil {
			return p, err
		}
		p.transcripts = append(p.transcripts, transcriptPlan{entry: entry, res: r})
	}

	for _, tp := range g.Templates[doc.ID] {
		if tp.ID == "" {
			verr := &apperr.InvalidEntityError{Class: "template", Reason: "missing id"}
			e.logger.Warn("ingest: skipping entity",
				slog.String("error", verr.Error()),
				slog.String("document", doc.ID))
			p.skipped++
			continue
		}
		r, err := e.detector.CheckTemplate(doc.ID, tp)
		if err != nil {
			return p, err
		}
		p.templates = append(p.templates, templatePlan{template: tp, res: r})
	}

	return p, nil
}

// applyPlan writes a plan's changed entities into the batch transaction.
// History is recorded strictly before the document row is overwritten.
// Returns the number of history records written.
func (e *Engine) applyPlan(batch Batch, p *docPlan) (int, error) {
	history := 0
	if p.docRes.Changed {
		recorded, err := batch.RecordDocumentHistory(p.doc.ID)
		if err != nil {
			return history, err
		}
		if recorded {
			history++
		}
		p.historyWritten = recorded
		if err := batch.UpsertDocument(p.doc); err != nil {
			return history, err
		}
	}

	if p.eventRes != nil && p.eventRes.Changed {
		if err := batch.UpsertCalendarEvent(p.doc.ID, *p.doc.CalendarEvent); err != nil {
			return history, err
		}
	}
	for _, pp := range p.people {
		if !pp.res.Changed {
			continue
		}
		if err := batch.UpsertPerson(p.doc.ID, pp.person); err != nil {
			return history, err
		}
	}
	for _, tp := range p.transcripts {
		if !tp.res.Changed {
			continue
		}
		if err := batch.UpsertTranscriptEntry(p.doc.ID, tp.entry); err != nil {
			return history, err
		}
	}
	for _, tm := range p.templates {
		if !tm.res.Changed {
			continue
		}
		if err := batch.UpsertTemplate(p.doc.ID, tm.template); err != nil {
			return history, err
		}
	}
	return history, nil
}
