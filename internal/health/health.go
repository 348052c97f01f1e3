// Package health provides availability checks for the audit trail
// subsystem. The subsystem has a two-state availability model: operational
// (signing secret configured, store reachable) and degraded (missing secret
// or unreachable store). Degraded blocks recording, and verification
// results produced while degraded must not be trusted.
package health

import (
	"context"
	"database/sql"
	"errors"

	"github.com/onnwee/audittrail/internal/audit"
)

// Status is the aggregate availability of the audit subsystem.
type Status string

const (
	// StatusOperational means every check passed: events can be recorded
	// and verification results are trustworthy.
	StatusOperational Status = "operational"
	// StatusDegraded means at least one check failed.
	StatusDegraded Status = "degraded"
)

// ErrSignerNotConfigured indicates the signing secret was never loaded.
var ErrSignerNotConfigured = errors.New("audit signer is not configured")

// Checker is the interface for a single availability check.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// DBChecker checks database connectivity.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a database health checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// ChainChecker checks that the audit chain store can serve reads by
// fetching the current tail.
type ChainChecker struct {
	store audit.ChainStore
}

// NewChainChecker creates a chain store health checker.
func NewChainChecker(store audit.ChainStore) *ChainChecker {
	return &ChainChecker{store: store}
}

// HealthCheck reads the chain tail.
func (c *ChainChecker) HealthCheck(ctx context.Context) error {
	_, err := c.store.Tail(ctx)
	return err
}

// SignerChecker checks that the signing secret was configured.
type SignerChecker struct {
	signer *audit.Signer
}

// NewSignerChecker creates a signer health checker.
func NewSignerChecker(signer *audit.Signer) *SignerChecker {
	return &SignerChecker{signer: signer}
}

// HealthCheck fails when no signer was constructed, which can only happen
// when the signing secret was absent at startup.
func (s *SignerChecker) HealthCheck(ctx context.Context) error {
	if s.signer == nil {
		return ErrSignerNotConfigured
	}
	return nil
}

// Evaluate runs every named check and aggregates the results into the
// two-state availability model. The returned map holds the failure for each
// check that failed; it is empty when the status is operational.
func Evaluate(ctx context.Context, checks map[string]Checker) (Status, map[string]error) {
	failures := make(map[string]error)
	for name, check := range checks {
		if err := check.HealthCheck(ctx); err != nil {
			failures[name] = err
		}
	}
	if len(failures) > 0 {
		return StatusDegraded, failures
	}
	return StatusOperational, failures
}
