//go:build integration

package audit

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres runs a disposable Postgres container, applies the schema
// migration, and returns an open handle.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("audittrail"),
		tcpostgres.WithUsername("audit"),
		tcpostgres.WithPassword("audit"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	migration, err := os.ReadFile(filepath.Join("..", "..", "migrations", "000001_create_audit_events.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := db.ExecContext(ctx, string(migration)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	return db
}

func TestPostgresStore_AppendTailRange(t *testing.T) {
	db := startPostgres(t)
	store := NewPostgresStore(db, nil)
	ctx := context.Background()

	tail, err := store.Tail(ctx)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if tail != "" {
		t.Fatalf("Tail() on empty chain = %q, want empty", tail)
	}

	first := &Event{
		ID:        "11111111-1111-1111-1111-111111111111",
		Timestamp: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Type:      EventAuthLogin,
		Severity:  SeverityInfo,
		ActorID:   "u1",
		IPAddress: "1.2.3.4",
		Metadata:  map[string]any{"method": "password", "mfa": true},
		Signature: "sig-1",
	}
	if _, err := store.Append(ctx, first, ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	tail, err = store.Tail(ctx)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if tail != "sig-1" {
		t.Fatalf("Tail() = %q, want sig-1", tail)
	}

	second := &Event{
		ID:           "22222222-2222-2222-2222-222222222222",
		Timestamp:    time.Date(2026, 5, 1, 12, 1, 0, 0, time.UTC),
		Type:         EventDataAccessed,
		Severity:     SeverityInfo,
		ActorID:      "u1",
		ResourceType: "account",
		ResourceID:   "acct:42",
		PreviousHash: "sig-1",
		Signature:    "sig-2",
	}
	if _, err := store.Append(ctx, second, "sig-1"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// Stale tail must conflict, not append.
	stale := &Event{
		ID:        "33333333-3333-3333-3333-333333333333",
		Timestamp: time.Now().UTC(),
		Type:      EventAuthLogout,
		Severity:  SeverityInfo,
		Signature: "sig-3",
	}
	if _, err := store.Append(ctx, stale, "sig-1"); !errors.Is(err, ErrTailConflict) {
		t.Fatalf("Append() with stale tail error = %v, want ErrTailConflict", err)
	}

	events, err := store.Range(ctx, Filter{Ascending: true})
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Range() returned %d events, want 2", len(events))
	}
	got := events[0]
	if got.ID != first.ID || got.ActorID != "u1" || got.IPAddress != "1.2.3.4" {
		t.Errorf("first event round-trip mismatch: %+v", got)
	}
	if !got.Timestamp.Equal(first.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, first.Timestamp)
	}
	if got.Metadata["method"] != "password" || got.Metadata["mfa"] != true {
		t.Errorf("Metadata round-trip = %v", got.Metadata)
	}
	if got.SessionID != "" || got.UserAgent != "" || got.PreviousHash != "" {
		t.Errorf("optional NULL columns should scan as empty strings: %+v", got)
	}
	if events[1].PreviousHash != "sig-1" {
		t.Errorf("second event PreviousHash = %q, want sig-1", events[1].PreviousHash)
	}
}

func TestPostgresStore_RangeFiltersAndCursor(t *testing.T) {
	db := startPostgres(t)
	store := NewPostgresStore(db, nil)
	ctx := context.Background()

	base := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	ids := []string{
		"aaaaaaaa-0000-0000-0000-000000000001",
		"aaaaaaaa-0000-0000-0000-000000000002",
		"aaaaaaaa-0000-0000-0000-000000000003",
		"aaaaaaaa-0000-0000-0000-000000000004",
	}
	specs := []struct {
		typ      EventType
		severity Severity
		actor    string
	}{
		{EventAuthLogin, SeverityInfo, "u1"},
		{EventPaymentFailed, SeverityError, "u2"},
		{EventDataAccessed, SeverityInfo, "u1"},
		{EventSecurityAlert, SeverityCritical, ""},
	}
	tail := ""
	for i, spec := range specs {
		event := &Event{
			ID:           ids[i],
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			Type:         spec.typ,
			Severity:     spec.severity,
			ActorID:      spec.actor,
			PreviousHash: tail,
			Signature:    "sig-" + ids[i],
		}
		if _, err := store.Append(ctx, event, tail); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		tail = event.Signature
	}

	byType, err := store.Range(ctx, Filter{
		Types:     []EventType{EventAuthLogin, EventDataAccessed},
		Ascending: true,
	})
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if len(byType) != 2 || byType[0].ID != ids[0] || byType[1].ID != ids[2] {
		t.Errorf("type filter = %v, want [%s %s]", idsOf(byType), ids[0], ids[2])
	}

	byActor, err := store.Range(ctx, Filter{ActorID: "u2", Ascending: true})
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if len(byActor) != 1 || byActor[0].ID != ids[1] {
		t.Errorf("actor filter = %v, want [%s]", idsOf(byActor), ids[1])
	}

	window, err := store.Range(ctx, Filter{
		From:      base.Add(time.Minute),
		To:        base.Add(2 * time.Minute),
		Ascending: true,
	})
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if len(window) != 2 {
		t.Errorf("time window = %v, want 2 events", idsOf(window))
	}

	afterCursor, err := store.Range(ctx, Filter{AfterID: ids[1], Ascending: true})
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if len(afterCursor) != 2 || afterCursor[0].ID != ids[2] {
		t.Errorf("cursor range = %v, want events after %s", idsOf(afterCursor), ids[1])
	}

	if _, err := store.Range(ctx, Filter{AfterID: "bbbbbbbb-0000-0000-0000-000000000009"}); !errors.Is(err, ErrCursorNotFound) {
		t.Errorf("Range() with unknown cursor error = %v, want ErrCursorNotFound", err)
	}

	newestFirst, err := store.Range(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if len(newestFirst) != 2 || newestFirst[0].ID != ids[3] {
		t.Errorf("descending limit = %v, want newest first", idsOf(newestFirst))
	}
}

func TestPostgresStore_RecorderAndVerifierEndToEnd(t *testing.T) {
	db := startPostgres(t)
	store := NewPostgresStore(db, nil)
	ctx := context.Background()

	recorder := testRecorder(t, store)
	for i := 0; i < 10; i++ {
		if _, err := recorder.Record(ctx, Entry{Type: EventAPIRequest, ActorID: "u1"}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	verifier, err := NewVerifier(VerifierConfig{Store: store, Signer: testSigner(t), PageSize: 3})
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	report, err := verifier.Verify(ctx, VerifyOptions{})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !report.Valid || report.Scanned != 10 {
		t.Errorf("Verify() = valid:%v scanned:%d, want valid 10-event chain", report.Valid, report.Scanned)
	}
}
