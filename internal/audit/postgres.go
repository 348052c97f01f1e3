package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// chainLockID keys the transaction-scoped advisory lock that serializes
// appends. One logical chain per deployment means one lock; a partitioned
// deployment would derive the ID from the partition key.
const chainLockID = int64(0x61756454) // "audT"

// PostgresStore implements ChainStore on PostgreSQL with full transaction
// support. Appends take a pg_advisory_xact_lock so the tail compare and the
// insert are atomic; insertion order is the audit_events.seq BIGSERIAL,
// which is the source of truth for chain order regardless of timestamp
// skew. The store only inserts and selects — there is no update or delete
// path.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a PostgresStore over an open database handle.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

const tailQuery = `
	SELECT COALESCE((SELECT signature FROM audit_events ORDER BY seq DESC LIMIT 1), '')
`

const insertQuery = `
	INSERT INTO audit_events (
		id, created_at, event_type, severity,
		actor_id, session_id, ip_address, user_agent,
		resource_type, resource_id, action, metadata,
		previous_hash, signature
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`

// Append persists the event if the current tail still equals expectedTail.
func (s *PostgresStore) Append(ctx context.Context, event *Event, expectedTail string) (*Event, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Always attempt rollback on function exit (no-op after successful commit)
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			s.logger.Warn("failed to rollback append transaction",
				slog.String("error", err.Error()))
		}
	}()

	// Serialize appends: only one writer holds the chain lock at a time,
	// making the tail check and the insert atomic.
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", chainLockID); err != nil {
		return nil, fmt.Errorf("failed to acquire chain lock: %w", err)
	}

	var tail string
	if err := tx.QueryRowContext(ctx, tailQuery).Scan(&tail); err != nil {
		return nil, fmt.Errorf("failed to read chain tail: %w", err)
	}
	if tail != expectedTail {
		return nil, ErrTailConflict
	}

	var metadata []byte
	if len(event.Metadata) > 0 {
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata for event %s: %w", event.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, insertQuery,
		event.ID,
		event.Timestamp.UTC(),
		string(event.Type),
		string(event.Severity),
		nullable(event.ActorID),
		nullable(event.SessionID),
		nullable(event.IPAddress),
		nullable(event.UserAgent),
		nullable(event.ResourceType),
		nullable(event.ResourceID),
		nullable(event.Action),
		metadata,
		nullable(event.PreviousHash),
		event.Signature,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert audit event %s: %w", event.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit audit event %s: %w", event.ID, err)
	}

	return event.Clone(), nil
}

// Tail returns the signature of the most recently appended event, or ""
// when the chain is empty.
func (s *PostgresStore) Tail(ctx context.Context) (string, error) {
	var tail string
	if err := s.db.QueryRowContext(ctx, tailQuery).Scan(&tail); err != nil {
		return "", fmt.Errorf("failed to read chain tail: %w", err)
	}
	return tail, nil
}

// Range returns events matching the filter ordered by insertion sequence.
func (s *PostgresStore) Range(ctx context.Context, filter Filter) ([]*Event, error) {
	query, args, err := s.buildRangeQuery(ctx, filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}
	return events, nil
}

// buildRangeQuery assembles the filtered SELECT with positional args.
func (s *PostgresStore) buildRangeQuery(ctx context.Context, filter Filter) (string, []any, error) {
	var conditions []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.AfterID != "" {
		var seq int64
		err := s.db.QueryRowContext(ctx,
			"SELECT seq FROM audit_events WHERE id = $1", filter.AfterID).Scan(&seq)
		if err == sql.ErrNoRows {
			return "", nil, ErrCursorNotFound
		}
		if err != nil {
			return "", nil, fmt.Errorf("failed to resolve range cursor: %w", err)
		}
		conditions = append(conditions, fmt.Sprintf("seq > %s", arg(seq)))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = arg(string(t))
		}
		conditions = append(conditions, fmt.Sprintf("event_type IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.Severity != "" {
		conditions = append(conditions, fmt.Sprintf("severity = %s", arg(string(filter.Severity))))
	}
	if filter.ActorID != "" {
		conditions = append(conditions, fmt.Sprintf("actor_id = %s", arg(filter.ActorID)))
	}
	if filter.ResourceType != "" {
		conditions = append(conditions, fmt.Sprintf("resource_type = %s", arg(filter.ResourceType)))
	}
	if filter.ResourceID != "" {
		conditions = append(conditions, fmt.Sprintf("resource_id = %s", arg(filter.ResourceID)))
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= %s", arg(filter.From.UTC())))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at <= %s", arg(filter.To.UTC())))
	}

	query := `
		SELECT id, created_at, event_type, severity,
		       actor_id, session_id, ip_address, user_agent,
		       resource_type, resource_id, action, metadata,
		       previous_hash, signature
		FROM audit_events`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	if filter.Ascending {
		query += " ORDER BY seq ASC"
	} else {
		query += " ORDER BY seq DESC"
	}
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %s", arg(filter.Limit))
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %s", arg(filter.Offset))
	}

	return query, args, nil
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	var event Event
	var actorID, sessionID, ipAddress, userAgent sql.NullString
	var resourceType, resourceID, action, previousHash sql.NullString
	var metadata []byte

	err := rows.Scan(
		&event.ID,
		&event.Timestamp,
		&event.Type,
		&event.Severity,
		&actorID,
		&sessionID,
		&ipAddress,
		&userAgent,
		&resourceType,
		&resourceID,
		&action,
		&metadata,
		&previousHash,
		&event.Signature,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}

	event.Timestamp = event.Timestamp.UTC()
	event.ActorID = actorID.String
	event.SessionID = sessionID.String
	event.IPAddress = ipAddress.String
	event.UserAgent = userAgent.String
	event.ResourceType = resourceType.String
	event.ResourceID = resourceID.String
	event.Action = action.String
	event.PreviousHash = previousHash.String

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for event %s: %w", event.ID, err)
		}
	}

	return &event, nil
}

// nullable maps "" to NULL so optional columns stay NULL instead of storing
// empty strings.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
