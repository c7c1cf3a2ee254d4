package repo

import (
	"context"
	"database/sql"

	"slipway/internal/domain"
	"slipway/internal/fault"
)

const baselineCols = `id,project_id,version_number,set_by,set_at,is_active,COALESCE(notes,''),change_request_id`

func scanBaseline(row rowScanner) (domain.Baseline, error) {
	var b domain.Baseline
	var crID sql.NullString
	err := row.Scan(&b.ID, &b.ProjectID, &b.VersionNumber, &b.SetBy, &b.SetAt, &b.IsActive, &b.Notes, &crID)
	if err != nil {
		return b, err
	}
	b.ChangeRequestID = strPtr(crID)
	return b, nil
}

func (r Repo) InsertBaseline(ctx context.Context, tx *sql.Tx, b domain.Baseline) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO baselines(id,project_id,version_number,set_by,set_at,is_active,notes,change_request_id)
VALUES (?,?,?,?,?,?,?,?)`,
		b.ID, b.ProjectID, b.VersionNumber, b.SetBy, b.SetAt, b.IsActive, nullable(b.Notes), nullableStr(b.ChangeRequestID))
	return err
}

func (r Repo) GetBaseline(ctx context.Context, id string) (domain.Baseline, error) {
	b, err := scanBaseline(r.DB.QueryRowContext(ctx, `SELECT `+baselineCols+` FROM baselines WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return b, fault.NotFoundError{Kind: "baseline", ID: id}
	}
	return b, err
}

func (r Repo) ListBaselines(ctx context.Context, projectID string) ([]domain.Baseline, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+baselineCols+` FROM baselines WHERE project_id=? ORDER BY version_number`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBaselines(rows)
}

func (r Repo) ListBaselinesTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Baseline, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+baselineCols+` FROM baselines WHERE project_id=? ORDER BY version_number`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBaselines(rows)
}

func collectBaselines(rows *sql.Rows) ([]domain.Baseline, error) {
	var res []domain.Baseline
	for rows.Next() {
		b, err := scanBaseline(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// ActiveBaselineTx returns the active baseline, or sql.ErrNoRows wrapped as
// not-found when the project has none.
func (r Repo) ActiveBaselineTx(ctx context.Context, tx *sql.Tx, projectID string) (domain.Baseline, error) {
	b, err := scanBaseline(tx.QueryRowContext(ctx, `SELECT `+baselineCols+` FROM baselines WHERE project_id=? AND is_active=1`, projectID))
	if err == sql.ErrNoRows {
		return b, fault.NotFoundError{Kind: "active baseline", ID: projectID}
	}
	return b, err
}

func (r Repo) MaxBaselineVersion(ctx context.Context, tx *sql.Tx, projectID string) (int, error) {
	var v int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version_number),0) FROM baselines WHERE project_id=?`, projectID).Scan(&v)
	return v, err
}

func (r Repo) DeactivateBaselines(ctx context.Context, tx *sql.Tx, projectID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE baselines SET is_active=0 WHERE project_id=?`, projectID)
	return err
}

// CountActiveBaselines is the in-transaction invariant check run after every
// baseline activation.
func (r Repo) CountActiveBaselines(ctx context.Context, tx *sql.Tx, projectID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM baselines WHERE project_id=? AND is_active=1`, projectID).Scan(&n)
	return n, err
}

func (r Repo) InsertBaselineSnapshot(ctx context.Context, tx *sql.Tx, s domain.BaselineSnapshot) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO baseline_snapshots(id,baseline_id,stage_id,project_id,baseline_start,baseline_end,baseline_duration_days,snapshotted_at)
VALUES (?,?,?,?,?,?,?,?)`,
		s.ID, s.BaselineID, s.StageID, s.ProjectID,
		nullableStr(s.BaselineStart), nullableStr(s.BaselineEnd), nullableInt(s.DurationDays), s.SnapshottedAt)
	return err
}

func (r Repo) ListBaselineSnapshots(ctx context.Context, baselineID string) ([]domain.BaselineSnapshot, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,baseline_id,stage_id,project_id,baseline_start,baseline_end,baseline_duration_days,snapshotted_at
FROM baseline_snapshots WHERE baseline_id=? ORDER BY stage_id`, baselineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BaselineSnapshot
	for rows.Next() {
		var s domain.BaselineSnapshot
		var bs, be sql.NullString
		var dd sql.NullInt64
		if err := rows.Scan(&s.ID, &s.BaselineID, &s.StageID, &s.ProjectID, &bs, &be, &dd, &s.SnapshottedAt); err != nil {
			return nil, err
		}
		s.BaselineStart, s.BaselineEnd, s.DurationDays = strPtr(bs), strPtr(be), intPtr(dd)
		res = append(res, s)
	}
	return res, rows.Err()
}

// SnapshotsByStageTx keys the active baseline's snapshots by stage for
// deviation computation.
func (r Repo) SnapshotsByStageTx(ctx context.Context, tx *sql.Tx, baselineID string) (map[string]domain.BaselineSnapshot, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,baseline_id,stage_id,project_id,baseline_start,baseline_end,baseline_duration_days,snapshotted_at
FROM baseline_snapshots WHERE baseline_id=?`, baselineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make(map[string]domain.BaselineSnapshot)
	for rows.Next() {
		var s domain.BaselineSnapshot
		var bs, be sql.NullString
		var dd sql.NullInt64
		if err := rows.Scan(&s.ID, &s.BaselineID, &s.StageID, &s.ProjectID, &bs, &be, &dd, &s.SnapshottedAt); err != nil {
			return nil, err
		}
		s.BaselineStart, s.BaselineEnd, s.DurationDays = strPtr(bs), strPtr(be), intPtr(dd)
		res[s.StageID] = s
	}
	return res, rows.Err()
}
