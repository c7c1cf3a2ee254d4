// Package notify derives notification records from committed audit entries.
// Dispatch is decoupled from the governing transaction: at-least-once, and
// idempotent per (audit entry, stakeholder, type), so replaying an entry is
// harmless.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"slipway/internal/config"
	"slipway/internal/domain"
	"slipway/internal/repo"
	"slipway/internal/telemetry"
)

type Dispatcher struct {
	Repo    repo.Repo
	Config  *config.Config
	Log     zerolog.Logger
	Metrics *telemetry.Metrics
	Now     func() time.Time

	// Sync dispatches inline from Emit instead of through the queue. Used
	// by the CLI and tests.
	Sync bool

	ch   chan domain.AuditEntry
	done chan struct{}
}

func New(r repo.Repo, cfg *config.Config, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Repo:   r,
		Config: cfg,
		Log:    log,
		ch:     make(chan domain.AuditEntry, 64),
		done:   make(chan struct{}),
	}
}

// Emit hands a committed ledger entry to the dispatcher. It never blocks the
// caller; when the queue is full the entry is dropped and can be replayed
// later from the ledger.
func (d *Dispatcher) Emit(entry domain.AuditEntry) {
	if d.Sync {
		if err := d.Dispatch(context.Background(), entry); err != nil {
			d.fail(entry, err)
		}
		return
	}
	select {
	case d.ch <- entry:
	default:
		d.Log.Warn().Str("audit_entry_id", entry.ID).Msg("notification queue full, entry dropped")
		if d.Metrics != nil {
			d.Metrics.NotificationFailures.Inc()
		}
	}
}

// Start consumes the queue until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		defer close(d.done)
		for {
			select {
			case entry := <-d.ch:
				if err := d.Dispatch(ctx, entry); err != nil {
					d.fail(entry, err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Wait blocks until the dispatch loop has exited.
func (d *Dispatcher) Wait() { <-d.done }

func (d *Dispatcher) fail(entry domain.AuditEntry, err error) {
	d.Log.Error().Err(err).Str("audit_entry_id", entry.ID).Msg("notification dispatch failed")
	if d.Metrics != nil {
		d.Metrics.NotificationFailures.Inc()
	}
}

// Replay re-dispatches a project's entire ledger. Idempotence makes this a
// safe recovery path after dropped entries.
func (d *Dispatcher) Replay(ctx context.Context, entries []domain.AuditEntry) error {
	for _, entry := range entries {
		if err := d.Dispatch(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// Dispatch derives and writes the notification records for one ledger entry.
func (d *Dispatcher) Dispatch(ctx context.Context, entry domain.AuditEntry) error {
	assignments, err := d.Repo.ActiveAssignments(ctx, entry.ProjectID)
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		return nil
	}

	var records []domain.Notification
	switch {
	case entry.ChangeType == domain.ChangeStageBlocked:
		records = d.fanOut(entry, assignments, domain.NotifyStageBlocked, d.Config.Notifications.StageBlockedRoles, entry.Reason)

	case entry.ChangeRequestID == nil && entry.BaselineID != nil:
		// Direct initial baseline, no change request attached.
		records = d.fanOut(entry, assignments, domain.NotifyBaselineSet, d.Config.Notifications.BaselineVisibilityRoles, entry.Reason)

	case entry.ChangeRequestID != nil:
		// Sign-off fields are immutable once the request resolves, so this
		// read is stable across replays.
		signoffComment := ""
		if entry.ApprovedBy != nil && entry.BaselineID != nil && entry.ChangeType == domain.ChangeScopeChange {
			cr, err := d.Repo.GetChangeRequest(ctx, *entry.ChangeRequestID)
			if err != nil {
				return err
			}
			signoffComment = cr.OwnerSignoffComment
		}
		records = d.forChangeRequest(entry, signoffComment, assignments)
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := d.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	written := 0
	for _, n := range records {
		inserted, err := d.Repo.InsertNotification(ctx, tx, n)
		if err != nil {
			return err
		}
		if inserted {
			written++
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if written > 0 {
		if d.Metrics != nil {
			d.Metrics.NotificationsSent.Add(float64(written))
		}
		d.Log.Info().Str("project_id", entry.ProjectID).Str("change_type", entry.ChangeType).
			Int("records", written).Msg("notifications dispatched")
	}
	return nil
}

// forChangeRequest derives records from what the entry itself records, never
// the change request's live status. A submission entry replayed after the
// request resolved must yield the same records it did the first time, or
// the (audit entry, stakeholder, type) dedup cannot hold.
func (d *Dispatcher) forChangeRequest(entry domain.AuditEntry, signoffComment string, assignments []domain.ProjectStakeholder) []domain.Notification {
	switch {
	case entry.ApprovedBy == nil:
		// Submission entries carry no resolver.
		return d.fanOut(entry, assignments, domain.NotifyChangeRequestSubmitted, nil, entry.Reason)

	case entry.BaselineID == nil:
		return d.fanOut(entry, assignments, domain.NotifyChangeRequestRejected, nil, entry.ReviewerComments)

	default:
		// Approval entries are the only resolution entries with a baseline.
		visibility := d.Config.Notifications.BaselineVisibilityRoles
		records := d.fanOut(entry, assignments, domain.NotifyChangeRequestApproved, nil, entry.ReviewerComments)
		if entry.ChangeType == domain.ChangeInitialBaseline {
			records = append(records, d.fanOut(entry, assignments, domain.NotifyBaselineSet, visibility, entry.Reason)...)
		} else {
			records = append(records, d.fanOut(entry, assignments, domain.NotifyBaselineChange, visibility, entry.Reason)...)
		}
		if entry.ChangeType == domain.ChangeDelay {
			records = append(records, d.fanOut(entry, assignments, domain.NotifyDelay, visibility, entry.Reason)...)
		}
		if entry.ChangeType == domain.ChangeScopeChange {
			records = append(records, d.fanOut(entry, assignments, domain.NotifyScopeSignoff,
				[]string{domain.RoleOwnerRep}, signoffComment)...)
		}
		return records
	}
}

// fanOut builds one record per qualifying assignment. A nil role filter
// means every active stakeholder on the project.
func (d *Dispatcher) fanOut(entry domain.AuditEntry, assignments []domain.ProjectStakeholder, notifType string, roles []string, comments string) []domain.Notification {
	roleSet := map[string]bool{}
	for _, r := range roles {
		roleSet[r] = true
	}
	at := d.now()
	var records []domain.Notification
	seen := map[string]bool{}
	for _, a := range assignments {
		if roles != nil && !roleSet[a.Role] {
			continue
		}
		// One record per stakeholder per type even when they hold
		// several qualifying roles.
		if seen[a.StakeholderID] {
			continue
		}
		seen[a.StakeholderID] = true
		records = append(records, domain.Notification{
			ID:              uuid.NewString(),
			ProjectID:       entry.ProjectID,
			AuditEntryID:    entry.ID,
			StakeholderID:   a.StakeholderID,
			Type:            notifType,
			RoleAtTime:      a.Role,
			ChangeRequestID: entry.ChangeRequestID,
			BaselineID:      entry.BaselineID,
			StageID:         entry.StageID,
			Comments:        comments,
			NotifiedAt:      at,
		})
	}
	return records
}

func (d *Dispatcher) now() string {
	if d.Now == nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return d.Now().UTC().Format(time.RFC3339)
}
