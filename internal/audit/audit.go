// Package audit maintains the per-project change ledger. Entries are
// append-only and carry a dense sequence number starting at 1; the
// UNIQUE(project_id, sequence_number) constraint turns a lost race between
// two writers into a retryable error instead of a gap or a duplicate.
package audit

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"slipway/internal/domain"
	"slipway/internal/fault"
)

type Ledger struct {
	Now func() time.Time
}

func (l Ledger) now() string {
	if l.Now == nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return l.Now().UTC().Format(time.RFC3339)
}

// Append assigns the next sequence number and writes the entry inside the
// caller's transaction. A sequence collision surfaces as ConcurrencyError so
// the engine can roll back and retry the whole operation.
func (l Ledger) Append(ctx context.Context, tx *sql.Tx, e domain.AuditEntry) (domain.AuditEntry, error) {
	var last int64
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence_number),0) FROM audit_entries WHERE project_id=?`, e.ProjectID).Scan(&last)
	if err != nil {
		return e, err
	}
	e.SequenceNumber = last + 1
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt == "" {
		e.OccurredAt = l.now()
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO audit_entries(id,project_id,sequence_number,baseline_id,change_request_id,
changed_by,approved_by,change_type,reason,schedule_impact_days,stakeholder_comments,reviewer_comments,stage_id,occurred_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.ProjectID, e.SequenceNumber, optional(e.BaselineID), optional(e.ChangeRequestID),
		e.ChangedBy, optional(e.ApprovedBy), e.ChangeType, e.Reason, optionalInt(e.ScheduleImpactDays),
		empty(e.StakeholderComments), empty(e.ReviewerComments), optional(e.StageID), e.OccurredAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return e, fault.ConcurrencyError{Msg: "audit sequence number already taken"}
		}
		return e, err
	}
	return e, nil
}

func optional(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func optionalInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func empty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

const entryCols = `id,project_id,sequence_number,baseline_id,change_request_id,changed_by,approved_by,
change_type,reason,schedule_impact_days,COALESCE(stakeholder_comments,''),COALESCE(reviewer_comments,''),stage_id,occurred_at`

func scanEntry(scan func(dest ...any) error) (domain.AuditEntry, error) {
	var e domain.AuditEntry
	var bl, cr, ap, st sql.NullString
	var impact sql.NullInt64
	err := scan(&e.ID, &e.ProjectID, &e.SequenceNumber, &bl, &cr, &e.ChangedBy, &ap,
		&e.ChangeType, &e.Reason, &impact, &e.StakeholderComments, &e.ReviewerComments, &st, &e.OccurredAt)
	if err != nil {
		return e, err
	}
	if bl.Valid {
		e.BaselineID = &bl.String
	}
	if cr.Valid {
		e.ChangeRequestID = &cr.String
	}
	if ap.Valid {
		e.ApprovedBy = &ap.String
	}
	if st.Valid {
		e.StageID = &st.String
	}
	if impact.Valid {
		n := int(impact.Int64)
		e.ScheduleImpactDays = &n
	}
	return e, nil
}

// List returns a project's full ledger in sequence order.
func (l Ledger) List(ctx context.Context, db *sql.DB, projectID string) ([]domain.AuditEntry, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+entryCols+` FROM audit_entries WHERE project_id=? ORDER BY sequence_number`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (l Ledger) Get(ctx context.Context, db *sql.DB, id string) (domain.AuditEntry, error) {
	e, err := scanEntry(db.QueryRowContext(ctx, `SELECT `+entryCols+` FROM audit_entries WHERE id=?`, id).Scan)
	if err == sql.ErrNoRows {
		return e, fault.NotFoundError{Kind: "audit entry", ID: id}
	}
	return e, err
}

// Verify checks that a project's ledger is dense: sequence numbers run 1..n
// with no gaps or duplicates.
func (l Ledger) Verify(ctx context.Context, db *sql.DB, projectID string) error {
	rows, err := db.QueryContext(ctx, `SELECT sequence_number FROM audit_entries WHERE project_id=? ORDER BY sequence_number`, projectID)
	if err != nil {
		return err
	}
	defer rows.Close()
	want := int64(1)
	for rows.Next() {
		var got int64
		if err := rows.Scan(&got); err != nil {
			return err
		}
		if got != want {
			return fault.ConsistencyError{ProjectID: projectID, Msg: "audit ledger gap at sequence " + strconv.FormatInt(want, 10)}
		}
		want++
	}
	return rows.Err()
}
