package repo

import (
	"context"
	"database/sql"

	"slipway/internal/domain"
	"slipway/internal/fault"
)

// Repo wraps all SQL access. Methods that must participate in an engine
// transaction take a *sql.Tx; plain reads go through the pool.
type Repo struct {
	DB *sql.DB
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

const projectCols = `id,name,COALESCE(description,''),COALESCE(shipyard_name,''),COALESCE(vessel_type,''),
planned_start,planned_end,actual_start,actual_end,
progress_pct,planned_duration_days,actual_duration_days,baseline_duration_days,
active_baseline_id,created_by,created_at,updated_at`

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var ps, pe, as, ae, abl sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.ShipyardName, &p.VesselType,
		&ps, &pe, &as, &ae,
		&p.ProgressPct, &p.PlannedDurationDays, &p.ActualDurationDays, &p.BaselineDurationDays,
		&abl, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.PlannedStart, p.PlannedEnd = strPtr(ps), strPtr(pe)
	p.ActualStart, p.ActualEnd = strPtr(as), strPtr(ae)
	p.ActiveBaselineID = strPtr(abl)
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,description,shipyard_name,vessel_type,
planned_start,planned_end,actual_start,actual_end,
progress_pct,planned_duration_days,actual_duration_days,baseline_duration_days,
active_baseline_id,created_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), nullable(p.ShipyardName), nullable(p.VesselType),
		nullableStr(p.PlannedStart), nullableStr(p.PlannedEnd), nullableStr(p.ActualStart), nullableStr(p.ActualEnd),
		p.ProgressPct, p.PlannedDurationDays, p.ActualDurationDays, p.BaselineDurationDays,
		nullableStr(p.ActiveBaselineID), p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return p, fault.NotFoundError{Kind: "project", ID: id}
	}
	return p, err
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	p, err := scanProject(tx.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return p, fault.NotFoundError{Kind: "project", ID: id}
	}
	return p, err
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectCols+` FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// SingleProject returns the only project in the workspace, for CLI defaulting.
func (r Repo) SingleProject(ctx context.Context) (domain.Project, error) {
	projects, err := r.ListProjects(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	if len(projects) == 0 {
		return domain.Project{}, fault.NotFoundError{Kind: "project", ID: "(any)"}
	}
	if len(projects) > 1 {
		return domain.Project{}, fault.Conflictf("multiple projects exist; specify --project")
	}
	return projects[0], nil
}

func (r Repo) UpdateProjectSummary(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `UPDATE projects SET progress_pct=?, planned_duration_days=?,
actual_duration_days=?, baseline_duration_days=?, updated_at=? WHERE id=?`,
		p.ProgressPct, p.PlannedDurationDays, p.ActualDurationDays, p.BaselineDurationDays, p.UpdatedAt, p.ID)
	return err
}

func (r Repo) SetActiveBaselineID(ctx context.Context, tx *sql.Tx, projectID, baselineID, now string) error {
	_, err := tx.ExecContext(ctx, `UPDATE projects SET active_baseline_id=?, updated_at=? WHERE id=?`,
		baselineID, now, projectID)
	return err
}

func (r Repo) UpdateProjectMeta(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `UPDATE projects SET name=?, description=?, shipyard_name=?, vessel_type=?,
planned_start=?, planned_end=?, actual_start=?, actual_end=?, updated_at=? WHERE id=?`,
		p.Name, nullable(p.Description), nullable(p.ShipyardName), nullable(p.VesselType),
		nullableStr(p.PlannedStart), nullableStr(p.PlannedEnd), nullableStr(p.ActualStart), nullableStr(p.ActualEnd),
		p.UpdatedAt, p.ID)
	return err
}
