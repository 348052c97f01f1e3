// Package audit implements a tamper-evident audit trail: an append-only,
// hash-chained log of security- and compliance-relevant events with keyed
// signatures, integrity verification, filtered querying, and deterministic
// export for compliance handoff.
//
// Every stored event carries an HMAC signature over its canonical form and
// the signature of the event that preceded it in the chain, so any post-hoc
// modification, reordering, or deletion of stored history is detectable.
package audit

import (
	"time"
)

// Event is a single signed entry in the audit chain. Events are immutable
// once appended; the only lifecycle is creation followed by permanent
// retention.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"event_type"`
	Severity  Severity  `json:"severity"`

	// ActorID is the acting principal; empty for system or unauthenticated
	// events.
	ActorID string `json:"actor_id,omitempty"`

	// Request context, when the event originated from an HTTP request.
	SessionID string `json:"session_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	// What was acted on and how.
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	Action       string `json:"action,omitempty"`

	// Metadata holds domain-specific detail. Values must be
	// JSON-serializable; the canonical form sorts keys, so map ordering
	// never affects the signature.
	Metadata map[string]any `json:"metadata,omitempty"`

	// PreviousHash is the signature of the event that was the chain tail at
	// the moment this event was appended. Empty only for the chain head.
	PreviousHash string `json:"previous_hash,omitempty"`

	// Signature is the keyed signature over the canonical form of every
	// field above. Chain order, not Timestamp, is the source of truth for
	// ordering; the timestamp is informational and may skew across writers.
	Signature string `json:"signature,omitempty"`
}

// Clone returns a deep copy of the event. Stores hand out clones so callers
// can never mutate persisted history through a shared pointer.
func (e *Event) Clone() *Event {
	clone := *e
	if e.Metadata != nil {
		clone.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// Entry is the caller-supplied input for recording a single audit event.
// The recorder fills in the ID, timestamp, chain linkage, and signature.
type Entry struct {
	Type     EventType
	Severity Severity // defaults to SeverityInfo when empty

	ActorID   string
	SessionID string
	IPAddress string
	UserAgent string

	ResourceType string
	ResourceID   string
	Action       string

	Metadata map[string]any
}
