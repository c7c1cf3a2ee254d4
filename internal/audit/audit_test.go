package audit_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"slipway/internal/audit"
	"slipway/internal/db"
	"slipway/internal/domain"
	"slipway/internal/fault"
	"slipway/internal/migrate"
	"slipway/internal/repo"
)

func newLedgerDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	dir := t.TempDir()
	if _, err := db.EnsureWorkspace(dir); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	r := repo.Repo{DB: conn}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	p := domain.Project{ID: "proj-1", Name: "Hull 42", CreatedBy: "tester", CreatedAt: now, UpdatedAt: now}
	if err := r.InsertProject(ctx, tx, p); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return conn, p.ID
}

func mustAppend(t *testing.T, conn *sql.DB, l audit.Ledger, projectID, reason string) domain.AuditEntry {
	t.Helper()
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	e, err := l.Append(ctx, tx, domain.AuditEntry{
		ProjectID:  projectID,
		ChangedBy:  "tester",
		ChangeType: domain.ChangeOther,
		Reason:     reason,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return e
}

func TestAppendAssignsDenseSequence(t *testing.T) {
	conn, projectID := newLedgerDB(t)
	l := audit.Ledger{}

	first := mustAppend(t, conn, l, projectID, "one")
	second := mustAppend(t, conn, l, projectID, "two")
	if first.SequenceNumber != 1 || second.SequenceNumber != 2 {
		t.Fatalf("expected sequences 1,2 got %d,%d", first.SequenceNumber, second.SequenceNumber)
	}
	if first.ID == "" || first.OccurredAt == "" {
		t.Fatalf("append must fill id and timestamp: %+v", first)
	}

	ctx := context.Background()
	entries, err := l.List(ctx, conn, projectID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Reason != "one" || entries[1].Reason != "two" {
		t.Fatalf("unexpected listing: %+v", entries)
	}
	if err := l.Verify(ctx, conn, projectID); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestSequenceCollisionIsConcurrencyError(t *testing.T) {
	conn, projectID := newLedgerDB(t)
	l := audit.Ledger{}
	mustAppend(t, conn, l, projectID, "one")

	// Simulate a lost race: the next sequence slot is taken behind the
	// appender's back.
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO audit_entries(id,project_id,sequence_number,changed_by,change_type,reason,occurred_at)
VALUES ('squatter',?,2,'rival','other','taken','2026-03-01T00:00:00Z')`, projectID); err != nil {
		t.Fatalf("seed collision: %v", err)
	}
	_, err = l.Append(ctx, tx, domain.AuditEntry{
		ID:         "squatter", // forces the UNIQUE violation deterministically
		ProjectID:  projectID,
		ChangedBy:  "tester",
		ChangeType: domain.ChangeOther,
		Reason:     "loses the race",
	})
	var conc fault.ConcurrencyError
	if !errors.As(err, &conc) {
		t.Fatalf("expected concurrency error, got %v", err)
	}
}

func TestVerifyDetectsGap(t *testing.T) {
	conn, projectID := newLedgerDB(t)
	l := audit.Ledger{}
	mustAppend(t, conn, l, projectID, "one")
	mustAppend(t, conn, l, projectID, "two")
	mustAppend(t, conn, l, projectID, "three")

	ctx := context.Background()
	if _, err := conn.ExecContext(ctx, `DELETE FROM audit_entries WHERE project_id=? AND sequence_number=2`, projectID); err != nil {
		t.Fatalf("punch gap: %v", err)
	}
	err := l.Verify(ctx, conn, projectID)
	var cons fault.ConsistencyError
	if !errors.As(err, &cons) {
		t.Fatalf("expected consistency error for gapped ledger, got %v", err)
	}
}
