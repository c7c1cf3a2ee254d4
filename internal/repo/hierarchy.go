package repo

import (
	"context"
	"database/sql"

	"slipway/internal/domain"
	"slipway/internal/fault"
)

const phaseCols = `id,project_id,name,COALESCE(description,''),ord,progress_pct,
planned_start,planned_end,actual_start,actual_end,created_at,updated_at`

func scanPhase(row rowScanner) (domain.Phase, error) {
	var p domain.Phase
	var ps, pe, as, ae sql.NullString
	err := row.Scan(&p.ID, &p.ProjectID, &p.Name, &p.Description, &p.Order, &p.ProgressPct,
		&ps, &pe, &as, &ae, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.PlannedStart, p.PlannedEnd = strPtr(ps), strPtr(pe)
	p.ActualStart, p.ActualEnd = strPtr(as), strPtr(ae)
	return p, nil
}

func (r Repo) InsertPhase(ctx context.Context, tx *sql.Tx, p domain.Phase) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO phases(id,project_id,name,description,ord,progress_pct,
planned_start,planned_end,actual_start,actual_end,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.ProjectID, p.Name, nullable(p.Description), p.Order, p.ProgressPct,
		nullableStr(p.PlannedStart), nullableStr(p.PlannedEnd), nullableStr(p.ActualStart), nullableStr(p.ActualEnd),
		p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetPhase(ctx context.Context, id string) (domain.Phase, error) {
	p, err := scanPhase(r.DB.QueryRowContext(ctx, `SELECT `+phaseCols+` FROM phases WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return p, fault.NotFoundError{Kind: "phase", ID: id}
	}
	return p, err
}

func (r Repo) GetPhaseTx(ctx context.Context, tx *sql.Tx, id string) (domain.Phase, error) {
	p, err := scanPhase(tx.QueryRowContext(ctx, `SELECT `+phaseCols+` FROM phases WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return p, fault.NotFoundError{Kind: "phase", ID: id}
	}
	return p, err
}

func (r Repo) ListPhases(ctx context.Context, projectID string) ([]domain.Phase, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+phaseCols+` FROM phases WHERE project_id=? ORDER BY ord`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPhases(rows)
}

func (r Repo) ListPhasesTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Phase, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+phaseCols+` FROM phases WHERE project_id=? ORDER BY ord`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPhases(rows)
}

func collectPhases(rows *sql.Rows) ([]domain.Phase, error) {
	var res []domain.Phase
	for rows.Next() {
		p, err := scanPhase(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdatePhase(ctx context.Context, tx *sql.Tx, p domain.Phase) error {
	_, err := tx.ExecContext(ctx, `UPDATE phases SET name=?, description=?, progress_pct=?,
planned_start=?, planned_end=?, actual_start=?, actual_end=?, updated_at=? WHERE id=?`,
		p.Name, nullable(p.Description), p.ProgressPct,
		nullableStr(p.PlannedStart), nullableStr(p.PlannedEnd), nullableStr(p.ActualStart), nullableStr(p.ActualEnd),
		p.UpdatedAt, p.ID)
	return err
}

// SetPhaseOrder writes a single phase's position. Reordering moves phases out
// of range first to keep the UNIQUE(project_id, ord) constraint satisfied.
func (r Repo) SetPhaseOrder(ctx context.Context, tx *sql.Tx, phaseID string, ord int, now string) error {
	_, err := tx.ExecContext(ctx, `UPDATE phases SET ord=?, updated_at=? WHERE id=?`, ord, now, phaseID)
	return err
}

func (r Repo) DeletePhase(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM phases WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fault.NotFoundError{Kind: "phase", ID: id}
	}
	return err
}

func (r Repo) CountStagesInPhase(ctx context.Context, tx *sql.Tx, phaseID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM stages WHERE phase_id=?`, phaseID).Scan(&n)
	return n, err
}

const stageCols = `id,phase_id,project_id,name,COALESCE(description,''),ord,
planned_start,planned_end,planned_duration_days,
actual_start,actual_end,actual_duration_days,
baseline_start,baseline_end,baseline_duration_days,
status,progress_pct,COALESCE(comments,''),created_at,updated_at,COALESCE(updated_by,'')`

func scanStage(row rowScanner) (domain.Stage, error) {
	var s domain.Stage
	var ps, pe, as, ae, bs, be sql.NullString
	var pd, ad, bd sql.NullInt64
	err := row.Scan(&s.ID, &s.PhaseID, &s.ProjectID, &s.Name, &s.Description, &s.Order,
		&ps, &pe, &pd, &as, &ae, &ad, &bs, &be, &bd,
		&s.Status, &s.ProgressPct, &s.Comments, &s.CreatedAt, &s.UpdatedAt, &s.UpdatedBy)
	if err != nil {
		return s, err
	}
	s.PlannedStart, s.PlannedEnd, s.PlannedDurationDays = strPtr(ps), strPtr(pe), intPtr(pd)
	s.ActualStart, s.ActualEnd, s.ActualDurationDays = strPtr(as), strPtr(ae), intPtr(ad)
	s.BaselineStart, s.BaselineEnd, s.BaselineDurationDays = strPtr(bs), strPtr(be), intPtr(bd)
	return s, nil
}

func (r Repo) InsertStage(ctx context.Context, tx *sql.Tx, s domain.Stage) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stages(id,phase_id,project_id,name,description,ord,
planned_start,planned_end,planned_duration_days,
actual_start,actual_end,actual_duration_days,
baseline_start,baseline_end,baseline_duration_days,
status,progress_pct,comments,created_at,updated_at,updated_by)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.PhaseID, s.ProjectID, s.Name, nullable(s.Description), s.Order,
		nullableStr(s.PlannedStart), nullableStr(s.PlannedEnd), nullableInt(s.PlannedDurationDays),
		nullableStr(s.ActualStart), nullableStr(s.ActualEnd), nullableInt(s.ActualDurationDays),
		nullableStr(s.BaselineStart), nullableStr(s.BaselineEnd), nullableInt(s.BaselineDurationDays),
		s.Status, s.ProgressPct, nullable(s.Comments), s.CreatedAt, s.UpdatedAt, nullable(s.UpdatedBy))
	return err
}

func (r Repo) GetStage(ctx context.Context, id string) (domain.Stage, error) {
	s, err := scanStage(r.DB.QueryRowContext(ctx, `SELECT `+stageCols+` FROM stages WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return s, fault.NotFoundError{Kind: "stage", ID: id}
	}
	return s, err
}

func (r Repo) GetStageTx(ctx context.Context, tx *sql.Tx, id string) (domain.Stage, error) {
	s, err := scanStage(tx.QueryRowContext(ctx, `SELECT `+stageCols+` FROM stages WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return s, fault.NotFoundError{Kind: "stage", ID: id}
	}
	return s, err
}

func (r Repo) ListStagesByPhase(ctx context.Context, phaseID string) ([]domain.Stage, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+stageCols+` FROM stages WHERE phase_id=? ORDER BY ord`, phaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStages(rows)
}

func (r Repo) ListStagesByProject(ctx context.Context, projectID string) ([]domain.Stage, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+stageCols+` FROM stages s WHERE project_id=?
ORDER BY (SELECT ord FROM phases WHERE id=s.phase_id), ord`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStages(rows)
}

func (r Repo) ListStagesByProjectTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Stage, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+stageCols+` FROM stages s WHERE project_id=?
ORDER BY (SELECT ord FROM phases WHERE id=s.phase_id), ord`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStages(rows)
}

func (r Repo) ListStagesByPhaseTx(ctx context.Context, tx *sql.Tx, phaseID string) ([]domain.Stage, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+stageCols+` FROM stages WHERE phase_id=? ORDER BY ord`, phaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStages(rows)
}

func collectStages(rows *sql.Rows) ([]domain.Stage, error) {
	var res []domain.Stage
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) UpdateStage(ctx context.Context, tx *sql.Tx, s domain.Stage) error {
	_, err := tx.ExecContext(ctx, `UPDATE stages SET name=?, description=?, ord=?,
planned_start=?, planned_end=?, planned_duration_days=?,
actual_start=?, actual_end=?, actual_duration_days=?,
baseline_start=?, baseline_end=?, baseline_duration_days=?,
status=?, progress_pct=?, comments=?, updated_at=?, updated_by=? WHERE id=?`,
		s.Name, nullable(s.Description), s.Order,
		nullableStr(s.PlannedStart), nullableStr(s.PlannedEnd), nullableInt(s.PlannedDurationDays),
		nullableStr(s.ActualStart), nullableStr(s.ActualEnd), nullableInt(s.ActualDurationDays),
		nullableStr(s.BaselineStart), nullableStr(s.BaselineEnd), nullableInt(s.BaselineDurationDays),
		s.Status, s.ProgressPct, nullable(s.Comments), s.UpdatedAt, nullable(s.UpdatedBy), s.ID)
	return err
}

func (r Repo) DeleteStage(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM stages WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fault.NotFoundError{Kind: "stage", ID: id}
	}
	return err
}

const dependencyCols = `id,project_id,predecessor_stage_id,successor_stage_id,dependency_type,created_at`

func scanDependency(row rowScanner) (domain.Dependency, error) {
	var d domain.Dependency
	err := row.Scan(&d.ID, &d.ProjectID, &d.PredecessorID, &d.SuccessorID, &d.Type, &d.CreatedAt)
	return d, err
}

func (r Repo) InsertDependency(ctx context.Context, tx *sql.Tx, d domain.Dependency) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stage_dependencies(id,project_id,predecessor_stage_id,successor_stage_id,dependency_type,created_at)
VALUES (?,?,?,?,?,?)`, d.ID, d.ProjectID, d.PredecessorID, d.SuccessorID, d.Type, d.CreatedAt)
	return err
}

func (r Repo) ListDependencies(ctx context.Context, projectID string) ([]domain.Dependency, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+dependencyCols+` FROM stage_dependencies WHERE project_id=? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDependencies(rows)
}

func (r Repo) ListDependenciesTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Dependency, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+dependencyCols+` FROM stage_dependencies WHERE project_id=? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDependencies(rows)
}

func collectDependencies(rows *sql.Rows) ([]domain.Dependency, error) {
	var res []domain.Dependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) DependencyExists(ctx context.Context, tx *sql.Tx, predecessorID, successorID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM stage_dependencies WHERE predecessor_stage_id=? AND successor_stage_id=?`,
		predecessorID, successorID).Scan(&n)
	return n > 0, err
}

func (r Repo) DeleteDependency(ctx context.Context, tx *sql.Tx, projectID, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM stage_dependencies WHERE id=? AND project_id=?`, id, projectID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fault.NotFoundError{Kind: "dependency", ID: id}
	}
	return err
}

// CountDependenciesTouching reports edges with the stage on either side.
func (r Repo) CountDependenciesTouching(ctx context.Context, tx *sql.Tx, stageID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM stage_dependencies WHERE predecessor_stage_id=? OR successor_stage_id=?`,
		stageID, stageID).Scan(&n)
	return n, err
}

func (r Repo) InsertStageUpdate(ctx context.Context, tx *sql.Tx, u domain.StageUpdate) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stage_updates(id,stage_id,project_id,updated_by,
previous_status,new_status,previous_progress_pct,new_progress_pct,actual_start,actual_end,comments,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.StageID, u.ProjectID, u.UpdatedBy,
		u.PreviousStatus, u.NewStatus, u.PreviousPct, u.NewPct,
		nullableStr(u.ActualStart), nullableStr(u.ActualEnd), nullable(u.Comments), u.UpdatedAt)
	return err
}

func (r Repo) ListStageUpdates(ctx context.Context, stageID string) ([]domain.StageUpdate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,stage_id,project_id,updated_by,
previous_status,new_status,previous_progress_pct,new_progress_pct,actual_start,actual_end,COALESCE(comments,''),updated_at
FROM stage_updates WHERE stage_id=? ORDER BY updated_at, id`, stageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StageUpdate
	for rows.Next() {
		var u domain.StageUpdate
		var as, ae sql.NullString
		if err := rows.Scan(&u.ID, &u.StageID, &u.ProjectID, &u.UpdatedBy,
			&u.PreviousStatus, &u.NewStatus, &u.PreviousPct, &u.NewPct, &as, &ae, &u.Comments, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.ActualStart, u.ActualEnd = strPtr(as), strPtr(ae)
		res = append(res, u)
	}
	return res, rows.Err()
}
