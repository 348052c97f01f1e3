package audit

import (
	"context"
	"errors"
)

// DefaultQueryMaxLimit caps a single query page.
const DefaultQueryMaxLimit = 100

// QueryEngine is the read-only retrieval surface for dashboards and
// compliance tooling. It never mutates and never strips the stored
// PreviousHash/Signature fields, so callers can always re-verify records
// independently.
type QueryEngine struct {
	store    ChainStore
	maxLimit int
}

// NewQueryEngine creates a QueryEngine over the given store. maxLimit caps
// page sizes; values <= 0 use DefaultQueryMaxLimit.
func NewQueryEngine(store ChainStore, maxLimit int) (*QueryEngine, error) {
	if store == nil {
		return nil, errors.New("chain store is required")
	}
	if maxLimit <= 0 {
		maxLimit = DefaultQueryMaxLimit
	}
	return &QueryEngine{store: store, maxLimit: maxLimit}, nil
}

// Events returns stored events matching the filter. Results default to
// newest-first; the limit is clamped to the engine's maximum and applied
// even when the caller asks for no limit, so UI pagination can never pull
// the whole chain in one page.
func (q *QueryEngine) Events(ctx context.Context, filter Filter) ([]*Event, error) {
	if filter.Limit <= 0 || filter.Limit > q.maxLimit {
		filter.Limit = q.maxLimit
	}
	return q.store.Range(ctx, filter)
}
