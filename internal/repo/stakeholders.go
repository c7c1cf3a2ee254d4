package repo

import (
	"context"
	"database/sql"

	"slipway/internal/domain"
	"slipway/internal/fault"
)

func (r Repo) InsertStakeholder(ctx context.Context, tx *sql.Tx, s domain.Stakeholder) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stakeholders(id,full_name,email,is_active,created_at) VALUES (?,?,?,?,?)`,
		s.ID, s.FullName, s.Email, s.IsActive, s.CreatedAt)
	return err
}

// GetStakeholderTx reads through the transaction's connection. The pool is
// capped at one connection, so pool reads inside an open transaction block.
func (r Repo) GetStakeholderTx(ctx context.Context, tx *sql.Tx, id string) (domain.Stakeholder, error) {
	var s domain.Stakeholder
	err := tx.QueryRowContext(ctx, `SELECT id,full_name,email,is_active,created_at FROM stakeholders WHERE id=?`, id).
		Scan(&s.ID, &s.FullName, &s.Email, &s.IsActive, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, fault.NotFoundError{Kind: "stakeholder", ID: id}
	}
	return s, err
}

func (r Repo) ListStakeholders(ctx context.Context) ([]domain.Stakeholder, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,full_name,email,is_active,created_at FROM stakeholders ORDER BY full_name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Stakeholder
	for rows.Next() {
		var s domain.Stakeholder
		if err := rows.Scan(&s.ID, &s.FullName, &s.Email, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) SetStakeholderActive(ctx context.Context, tx *sql.Tx, id string, active bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE stakeholders SET is_active=? WHERE id=?`, active, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fault.NotFoundError{Kind: "stakeholder", ID: id}
	}
	return err
}

func (r Repo) AssignStakeholder(ctx context.Context, tx *sql.Tx, a domain.ProjectStakeholder) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO project_stakeholders(id,project_id,stakeholder_id,role,assigned_at) VALUES (?,?,?,?,?)`,
		a.ID, a.ProjectID, a.StakeholderID, a.Role, a.AssignedAt)
	return err
}

func (r Repo) UnassignStakeholder(ctx context.Context, tx *sql.Tx, projectID, stakeholderID, role string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM project_stakeholders WHERE project_id=? AND stakeholder_id=? AND role=?`,
		projectID, stakeholderID, role)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fault.NotFoundError{Kind: "assignment", ID: stakeholderID + "/" + role}
	}
	return err
}

func (r Repo) ListProjectStakeholders(ctx context.Context, projectID string) ([]domain.ProjectStakeholder, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,stakeholder_id,role,assigned_at
FROM project_stakeholders WHERE project_id=? ORDER BY assigned_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

func (r Repo) ListProjectStakeholdersTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.ProjectStakeholder, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,project_id,stakeholder_id,role,assigned_at
FROM project_stakeholders WHERE project_id=? ORDER BY assigned_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

func collectAssignments(rows *sql.Rows) ([]domain.ProjectStakeholder, error) {
	var res []domain.ProjectStakeholder
	for rows.Next() {
		var a domain.ProjectStakeholder
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.StakeholderID, &a.Role, &a.AssignedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// RolesForActor returns the distinct roles an active stakeholder holds on a
// project. An inactive stakeholder holds no roles.
func (r Repo) RolesForActor(ctx context.Context, projectID, stakeholderID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT ps.role
FROM project_stakeholders ps JOIN stakeholders s ON s.id = ps.stakeholder_id
WHERE ps.project_id=? AND ps.stakeholder_id=? AND s.is_active=1`, projectID, stakeholderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ActiveAssignmentsWithRole lists assignments on a project whose stakeholder
// is active, optionally filtered to a role set. Used by notification fan-out.
func (r Repo) ActiveAssignments(ctx context.Context, projectID string) ([]domain.ProjectStakeholder, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT ps.id,ps.project_id,ps.stakeholder_id,ps.role,ps.assigned_at
FROM project_stakeholders ps JOIN stakeholders s ON s.id = ps.stakeholder_id
WHERE ps.project_id=? AND s.is_active=1 ORDER BY ps.assigned_at, ps.id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}
