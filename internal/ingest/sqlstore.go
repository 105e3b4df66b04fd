package ingest

import (
	"context"

	"github.com/starford/munin/internal/store"
)

// sqlStore adapts *store.DB to the engine's Store contract.
type sqlStore struct {
	db *store.DB
}

// NewSQLStore wraps the SQLite store for use by the engine.
func NewSQLStore(db *store.DB) Store {
	return sqlStore{db: db}
}

func (s sqlStore) BeginBatch(ctx context.Context) (Batch, error) {
	b, err := s.db.BeginBatch(ctx)
	if err != nil {
		return nil, err
	}
	return b, nil
}
