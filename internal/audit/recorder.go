package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Validation errors for Record input.
var (
	// ErrUnknownEventType is returned when the entry's type is not part of
	// the declared taxonomy.
	ErrUnknownEventType = errors.New("unknown audit event type")
	// ErrInvalidSeverity is returned when the entry's severity is not a
	// declared level.
	ErrInvalidSeverity = errors.New("invalid audit event severity")
)

// Default recorder tuning.
const (
	DefaultRecordMaxRetries = 3
	DefaultRecordBackoff    = 25 * time.Millisecond
	DefaultRecordTimeout    = 5 * time.Second
)

// RecorderConfig holds the dependencies and tuning for a Recorder.
type RecorderConfig struct {
	Store  ChainStore
	Signer *Signer

	// Logger is the diagnostic channel for recorder-internal failures. It
	// is deliberately separate from the audit log itself: recording never
	// triggers another audit event. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional; nil disables instrumentation.
	Metrics *Metrics

	// MaxRetries bounds append retries on tail conflicts and transient
	// store failures. Backoff grows linearly per attempt. Timeout bounds
	// the whole Record call so a slow store never blocks the triggering
	// business operation indefinitely.
	MaxRetries int
	Backoff    time.Duration
	Timeout    time.Duration

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// Recorder is the only write path into the audit chain. It builds a
// candidate event from caller input, links it to the current tail, signs it,
// and appends it with a compare-and-swap on the tail.
type Recorder struct {
	store   ChainStore
	signer  *Signer
	logger  *slog.Logger
	metrics *Metrics

	maxRetries int
	backoff    time.Duration
	timeout    time.Duration

	now   func() time.Time
	newID func() string
}

// NewRecorder creates a Recorder. The store and signer are required.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Store == nil {
		return nil, errors.New("chain store is required")
	}
	if cfg.Signer == nil {
		return nil, ErrMissingSecret
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultRecordMaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultRecordBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRecordTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.New().String() }
	}

	return &Recorder{
		store:      cfg.Store,
		signer:     cfg.Signer,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		timeout:    cfg.Timeout,
		now:        cfg.Now,
		newID:      cfg.NewID,
	}, nil
}

// Record validates the entry, links a fresh event to the current chain
// tail, signs it, and appends it. On a tail conflict (a concurrent writer
// won the append) the event is rebuilt against the new tail and retried; a
// stale event is never appended, so the chain stays linear and gapless.
//
// Returns the stored event, a validation error for malformed input, or a
// *StorageError once retries are exhausted. Failures are logged to the
// diagnostic logger, never to the audit log.
func (r *Recorder) Record(ctx context.Context, entry Entry) (*Event, error) {
	if !entry.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, entry.Type)
	}
	if entry.Severity == "" {
		entry.Severity = SeverityInfo
	}
	if !entry.Severity.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeverity, entry.Severity)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := r.now()
	attempts := 0
	failures := 0
	var lastErr error

	for failures < r.maxRetries {
		attempts++

		stored, err := r.attempt(ctx, entry)
		if err == nil {
			r.metrics.ObserveRecord(entry.Type, StatusSuccess, r.now().Sub(started).Seconds())
			return stored, nil
		}
		lastErr = err

		if errors.Is(err, ErrTailConflict) {
			r.metrics.ObserveTailConflict()
			// A concurrent writer won the append. A conflict is progress,
			// not failure, so it does not consume the retry budget; the
			// call timeout is the bound. Retry immediately with a fresh
			// tail.
			if ctx.Err() != nil {
				break
			}
			continue
		}

		failures++
		if ctx.Err() != nil {
			break
		}

		r.logger.Warn("audit append failed, retrying",
			slog.String("event_type", string(entry.Type)),
			slog.Int("attempt", attempts),
			slog.String("error", err.Error()))

		if !sleep(ctx, time.Duration(failures)*r.backoff) {
			break
		}
	}

	r.metrics.ObserveRecord(entry.Type, StatusFailure, r.now().Sub(started).Seconds())
	r.logger.Error("audit record failed",
		slog.String("event_type", string(entry.Type)),
		slog.Int("attempts", attempts),
		slog.String("error", lastErr.Error()))

	return nil, &StorageError{Op: "record", Attempts: attempts, Err: lastErr}
}

// attempt performs one read-link-sign-append cycle.
func (r *Recorder) attempt(ctx context.Context, entry Entry) (*Event, error) {
	tail, err := r.store.Tail(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain tail: %w", err)
	}

	event := &Event{
		ID:           r.newID(),
		Timestamp:    r.now().UTC(),
		Type:         entry.Type,
		Severity:     entry.Severity,
		ActorID:      entry.ActorID,
		SessionID:    entry.SessionID,
		IPAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Action:       entry.Action,
		Metadata:     entry.Metadata,
		PreviousHash: tail,
	}

	signature, err := r.signer.Sign(event)
	if err != nil {
		return nil, err
	}
	event.Signature = signature

	return r.store.Append(ctx, event, tail)
}

// sleep waits for the given duration or until the context is done.
// Returns false if the context ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
