package repo

import (
	"context"
	"database/sql"

	"slipway/internal/domain"
)

// InsertNotification is idempotent on (audit_entry_id, stakeholder_id, type):
// re-dispatching the same ledger entry inserts nothing. Returns whether a row
// was actually written.
func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO notifications(id,project_id,audit_entry_id,stakeholder_id,
notification_type,role_at_time,change_request_id,baseline_id,stage_id,comments,notified_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.ProjectID, n.AuditEntryID, n.StakeholderID,
		n.Type, n.RoleAtTime, nullableStr(n.ChangeRequestID), nullableStr(n.BaselineID), nullableStr(n.StageID),
		nullable(n.Comments), n.NotifiedAt)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}

func (r Repo) ListNotifications(ctx context.Context, projectID, stakeholderID string) ([]domain.Notification, error) {
	q := `SELECT id,project_id,audit_entry_id,stakeholder_id,notification_type,role_at_time,
change_request_id,baseline_id,stage_id,COALESCE(comments,''),notified_at
FROM notifications WHERE project_id=?`
	args := []any{projectID}
	if stakeholderID != "" {
		q += ` AND stakeholder_id=?`
		args = append(args, stakeholderID)
	}
	q += ` ORDER BY notified_at, id`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var cr, bl, st sql.NullString
		if err := rows.Scan(&n.ID, &n.ProjectID, &n.AuditEntryID, &n.StakeholderID, &n.Type, &n.RoleAtTime,
			&cr, &bl, &st, &n.Comments, &n.NotifiedAt); err != nil {
			return nil, err
		}
		n.ChangeRequestID, n.BaselineID, n.StageID = strPtr(cr), strPtr(bl), strPtr(st)
		res = append(res, n)
	}
	return res, rows.Err()
}
