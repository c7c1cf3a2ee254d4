package repo

import (
	"context"
	"database/sql"

	"slipway/internal/domain"
	"slipway/internal/fault"
)

const changeCols = `id,project_id,requested_by,approver_id,change_type,reason,
schedule_impact_days,cost_impact,status,
owner_signoff_by,owner_signoff_at,COALESCE(owner_signoff_comment,''),
COALESCE(reviewer_comments,''),COALESCE(stakeholder_comments,''),submitted_at,resolved_at`

func scanChange(row rowScanner) (domain.ChangeRequest, error) {
	var c domain.ChangeRequest
	var impact sql.NullInt64
	var cost sql.NullFloat64
	var signBy, signAt, resolved sql.NullString
	err := row.Scan(&c.ID, &c.ProjectID, &c.RequestedBy, &c.ApproverID, &c.ChangeType, &c.Reason,
		&impact, &cost, &c.Status,
		&signBy, &signAt, &c.OwnerSignoffComment,
		&c.ReviewerComments, &c.StakeholderComments, &c.SubmittedAt, &resolved)
	if err != nil {
		return c, err
	}
	c.ScheduleImpactDays = intPtr(impact)
	c.CostImpact = floatPtr(cost)
	c.OwnerSignoffBy, c.OwnerSignoffAt = strPtr(signBy), strPtr(signAt)
	c.ResolvedAt = strPtr(resolved)
	return c, nil
}

func (r Repo) InsertChangeRequest(ctx context.Context, tx *sql.Tx, c domain.ChangeRequest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO change_requests(id,project_id,requested_by,approver_id,change_type,reason,
schedule_impact_days,cost_impact,status,owner_signoff_by,owner_signoff_at,owner_signoff_comment,
reviewer_comments,stakeholder_comments,submitted_at,resolved_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ProjectID, c.RequestedBy, c.ApproverID, c.ChangeType, c.Reason,
		nullableInt(c.ScheduleImpactDays), nullableFloat(c.CostImpact), c.Status,
		nullableStr(c.OwnerSignoffBy), nullableStr(c.OwnerSignoffAt), nullable(c.OwnerSignoffComment),
		nullable(c.ReviewerComments), nullable(c.StakeholderComments), c.SubmittedAt, nullableStr(c.ResolvedAt))
	return err
}

func (r Repo) GetChangeRequest(ctx context.Context, id string) (domain.ChangeRequest, error) {
	c, err := scanChange(r.DB.QueryRowContext(ctx, `SELECT `+changeCols+` FROM change_requests WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return c, fault.NotFoundError{Kind: "change request", ID: id}
	}
	return c, err
}

func (r Repo) GetChangeRequestTx(ctx context.Context, tx *sql.Tx, id string) (domain.ChangeRequest, error) {
	c, err := scanChange(tx.QueryRowContext(ctx, `SELECT `+changeCols+` FROM change_requests WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return c, fault.NotFoundError{Kind: "change request", ID: id}
	}
	return c, err
}

func (r Repo) ListChangeRequests(ctx context.Context, projectID, status string) ([]domain.ChangeRequest, error) {
	q := `SELECT ` + changeCols + ` FROM change_requests WHERE project_id=?`
	args := []any{projectID}
	if status != "" {
		q += ` AND status=?`
		args = append(args, status)
	}
	q += ` ORDER BY submitted_at, id`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChangeRequest
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) RecordOwnerSignoff(ctx context.Context, tx *sql.Tx, id, by, at, comment string) error {
	_, err := tx.ExecContext(ctx, `UPDATE change_requests SET owner_signoff_by=?, owner_signoff_at=?, owner_signoff_comment=? WHERE id=?`,
		by, at, nullable(comment), id)
	return err
}

func (r Repo) ResolveChangeRequest(ctx context.Context, tx *sql.Tx, c domain.ChangeRequest) error {
	_, err := tx.ExecContext(ctx, `UPDATE change_requests SET status=?, reviewer_comments=?, stakeholder_comments=?, resolved_at=? WHERE id=?`,
		c.Status, nullable(c.ReviewerComments), nullable(c.StakeholderComments), nullableStr(c.ResolvedAt), c.ID)
	return err
}
