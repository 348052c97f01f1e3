package audit

import (
	"context"
	"sync"
)

// InMemoryStore is an in-memory ChainStore used for testing and
// development. Thread-safe; appends are serialized under a single mutex, so
// the compare-and-swap check and the insert are atomic.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []*Event
	byID   map[string]int // event ID -> index in events
}

// NewInMemoryStore creates an empty in-memory chain store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID: make(map[string]int),
	}
}

// Append persists the event if the current tail matches expectedTail.
func (s *InMemoryStore) Append(ctx context.Context, event *Event, expectedTail string) (*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tail := ""
	if len(s.events) > 0 {
		tail = s.events[len(s.events)-1].Signature
	}
	if tail != expectedTail {
		return nil, ErrTailConflict
	}

	stored := event.Clone()
	s.byID[stored.ID] = len(s.events)
	s.events = append(s.events, stored)

	return stored.Clone(), nil
}

// Tail returns the signature of the most recent event, or "" when empty.
func (s *InMemoryStore) Tail(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) == 0 {
		return "", nil
	}
	return s.events[len(s.events)-1].Signature, nil
}

// Range returns events matching the filter in insertion order.
func (s *InMemoryStore) Range(ctx context.Context, filter Filter) ([]*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if filter.AfterID != "" {
		idx, ok := s.byID[filter.AfterID]
		if !ok {
			return nil, ErrCursorNotFound
		}
		start = idx + 1
	}

	var matched []*Event
	for _, e := range s.events[start:] {
		if matchesFilter(e, filter) {
			matched = append(matched, e)
		}
	}

	if !filter.Ascending {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	results := make([]*Event, len(matched))
	for i, e := range matched {
		results[i] = e.Clone()
	}
	return results, nil
}

// Len returns the number of stored events.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// corrupt mutates a stored event in place, bypassing the append-only
// interface. Test-only: simulates backing-store tampering.
func (s *InMemoryStore) corrupt(id string, mutate func(*Event)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byID[id]
	if !ok {
		return false
	}
	mutate(s.events[idx])
	return true
}
