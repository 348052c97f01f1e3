package audit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTailConflict is returned by ChainStore.Append when the chain tail
	// changed between the caller's tail read and the append. The caller must
	// re-read the tail, re-link, re-sign, and retry. This compare-and-swap
	// is what keeps the chain linear and gapless under concurrent writers.
	ErrTailConflict = errors.New("audit chain tail changed during append")

	// ErrCursorNotFound is returned by ChainStore.Range when Filter.AfterID
	// does not identify a stored event.
	ErrCursorNotFound = errors.New("range cursor event not found")
)

// StorageError wraps a persistence failure that survived the recorder's
// bounded retries. Callers decide whether a failed record aborts their own
// operation or is best-effort.
type StorageError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("audit storage failure during %s after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Filter selects a subset of the chain for Range. Zero values mean "no
// constraint". Ordering is always by insertion sequence, never timestamp.
type Filter struct {
	// Types restricts results to the given event types.
	Types []EventType
	// Severity restricts results to a single severity level.
	Severity Severity
	// ActorID restricts results to events by a single principal.
	ActorID string
	// ResourceType and ResourceID restrict results to events touching a
	// resource.
	ResourceType string
	ResourceID   string
	// From and To bound the event timestamp, inclusive on both ends.
	From time.Time
	To   time.Time
	// AfterID is a resume cursor: only events strictly after the event with
	// this ID in insertion order are returned. Meaningful for ascending
	// scans.
	AfterID string
	// Ascending orders results oldest-first (verification order). The
	// default is newest-first (query order).
	Ascending bool
	// Limit caps the number of results (0 = no cap). Offset skips results
	// after ordering and filtering.
	Limit  int
	Offset int
}

// ChainStore is the append-only persistence boundary for the audit chain.
// Append is the only mutation; implementations never update or delete an
// existing event through this interface. The backing store must make an
// appended event durable before Append returns and must preserve insertion
// order on range reads.
type ChainStore interface {
	// Append persists the event if and only if the current chain tail
	// signature equals expectedTail ("" for an empty chain). Returns the
	// stored event, or ErrTailConflict when the tail moved.
	Append(ctx context.Context, event *Event, expectedTail string) (*Event, error)

	// Tail returns the signature of the most recently appended event, or ""
	// when the chain is empty.
	Tail(ctx context.Context) (string, error)

	// Range returns stored events matching the filter, ordered by insertion
	// sequence.
	Range(ctx context.Context, filter Filter) ([]*Event, error)
}

// matchesFilter reports whether the event satisfies every field constraint
// of the filter. Cursor, ordering, and pagination are handled by the store.
func matchesFilter(e *Event, f Filter) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}
