package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMissingSecret is returned when a Signer is constructed without a
// signing secret. A missing secret is fatal: no event may be recorded and no
// verification result can be trusted without it.
var ErrMissingSecret = errors.New("audit signing secret is not configured")

// canonicalVersion marks the canonicalization scheme. Any change to the
// canonical field set or encoding requires a new version value so that
// events signed under the old scheme remain verifiable.
const canonicalVersion = "v1"

// canonicalEvent is the fixed-order serialization of an event used for
// signing. It covers every Event field except Signature. Field order is
// frozen; timestamps are RFC3339Nano in UTC; metadata map keys are sorted by
// encoding/json, so the same logical event always serializes identically.
type canonicalEvent struct {
	Version      string         `json:"v"`
	ID           string         `json:"id"`
	Timestamp    string         `json:"timestamp"`
	Type         string         `json:"event_type"`
	Severity     string         `json:"severity"`
	ActorID      string         `json:"actor_id"`
	SessionID    string         `json:"session_id"`
	IPAddress    string         `json:"ip_address"`
	UserAgent    string         `json:"user_agent"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Action       string         `json:"action"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	PreviousHash string         `json:"previous_hash"`
}

// Signer computes and verifies keyed signatures (HMAC-SHA256, hex-encoded)
// over the canonical form of audit events. The secret is loaded once at
// construction and is immutable for the process lifetime; every recorder and
// verifier in a deployment must share the same secret.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer with the given secret.
// Returns ErrMissingSecret if the secret is empty.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Canonicalize returns the canonical byte form of the event, covering every
// field except Signature.
func (s *Signer) Canonicalize(e *Event) ([]byte, error) {
	payload := canonicalEvent{
		Version:      canonicalVersion,
		ID:           e.ID,
		Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
		Type:         string(e.Type),
		Severity:     string(e.Severity),
		ActorID:      e.ActorID,
		SessionID:    e.SessionID,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Action:       e.Action,
		Metadata:     e.Metadata,
		PreviousHash: e.PreviousHash,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize event %s: %w", e.ID, err)
	}
	return data, nil
}

// Sign computes the hex-encoded HMAC-SHA256 signature of the event's
// canonical form. The event's Signature field is ignored.
func (s *Signer) Sign(e *Event) (string, error) {
	data, err := s.Canonicalize(e)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the event's signature from its stored fields and
// compares it to the stored Signature in constant time. Any mismatch, from
// corruption or tampering of any signed field, returns false.
func (s *Signer) Verify(e *Event) bool {
	data, err := s.Canonicalize(e)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	expected := mac.Sum(nil)

	stored, err := hex.DecodeString(e.Signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, stored)
}
