package engine

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"slipway/internal/config"
	"slipway/internal/domain"
	"slipway/internal/fault"
)

func validChangeType(t string) bool {
	switch t {
	case domain.ChangeInitialBaseline, domain.ChangeDelay, domain.ChangeScopeChange,
		domain.ChangeCostChange, domain.ChangeOther:
		return true
	}
	return false
}

type SubmitChangeInput struct {
	ProjectID          string
	ChangeType         string
	Reason             string
	ScheduleImpactDays *int
	CostImpact         *float64
	StakeholderComment string
	RequestedBy        string
	ApproverID         string
}

// SubmitChangeRequest opens a pending request. The designated approver must
// hold baseline-approval capability on the project at submission time.
func (e *Engine) SubmitChangeRequest(ctx context.Context, in SubmitChangeInput) (domain.ChangeRequest, error) {
	if in.Reason == "" {
		return domain.ChangeRequest{}, fault.Validationf("change request reason is required")
	}
	if !validChangeType(in.ChangeType) {
		return domain.ChangeRequest{}, fault.Validationf("unknown change type %q", in.ChangeType)
	}
	if err := e.Auth.Require(ctx, in.ProjectID, in.RequestedBy, config.CapChangeSubmit); err != nil {
		return domain.ChangeRequest{}, err
	}
	if err := e.Auth.Require(ctx, in.ProjectID, in.ApproverID, config.CapBaselineApprove); err != nil {
		return domain.ChangeRequest{}, err
	}
	var cr domain.ChangeRequest
	err := e.governed(ctx, in.ProjectID, func(tx *sql.Tx) (*domain.AuditEntry, error) {
		if _, err := e.Repo.GetProjectTx(ctx, tx, in.ProjectID); err != nil {
			return nil, err
		}
		now := e.timestamp()
		cr = domain.ChangeRequest{
			ID:                  uuid.NewString(),
			ProjectID:           in.ProjectID,
			RequestedBy:         in.RequestedBy,
			ApproverID:          in.ApproverID,
			ChangeType:          in.ChangeType,
			Reason:              in.Reason,
			ScheduleImpactDays:  in.ScheduleImpactDays,
			CostImpact:          in.CostImpact,
			Status:              domain.ChangePending,
			StakeholderComments: in.StakeholderComment,
			SubmittedAt:         now,
		}
		if err := e.Repo.InsertChangeRequest(ctx, tx, cr); err != nil {
			return nil, err
		}
		crID := cr.ID
		entry, err := e.Ledger.Append(ctx, tx, domain.AuditEntry{
			ProjectID:           in.ProjectID,
			ChangeRequestID:     &crID,
			ChangedBy:           in.RequestedBy,
			ChangeType:          in.ChangeType,
			Reason:              in.Reason,
			ScheduleImpactDays:  in.ScheduleImpactDays,
			StakeholderComments: in.StakeholderComment,
			OccurredAt:          now,
		})
		if err != nil {
			return nil, err
		}
		return &entry, nil
	})
	if err != nil {
		return domain.ChangeRequest{}, err
	}
	e.Log.Info().Str("project_id", in.ProjectID).Str("change_request_id", cr.ID).
		Str("change_type", in.ChangeType).Msg("change request submitted")
	return cr, nil
}

// RecordOwnerSignoff records the Owner Representative's sign-off on a
// pending scope change, the second gate that must clear before the
// designated approver may approve it.
func (e *Engine) RecordOwnerSignoff(ctx context.Context, projectID, changeRequestID, actorID, comment string) (domain.ChangeRequest, error) {
	if err := e.Auth.Require(ctx, projectID, actorID, config.CapScopeSignoff); err != nil {
		return domain.ChangeRequest{}, err
	}
	var cr domain.ChangeRequest
	err := e.write(ctx, projectID, func(tx *sql.Tx) error {
		var err error
		cr, err = e.Repo.GetChangeRequestTx(ctx, tx, changeRequestID)
		if err != nil {
			return err
		}
		if cr.ProjectID != projectID {
			return fault.NotFoundError{Kind: "change request", ID: changeRequestID}
		}
		if cr.ChangeType != domain.ChangeScopeChange {
			return fault.Conflictf("change request %s is %s, owner sign-off applies to scope_change only", changeRequestID, cr.ChangeType)
		}
		if cr.Status != domain.ChangePending {
			return fault.Conflictf("change request %s is already %s", changeRequestID, cr.Status)
		}
		if cr.OwnerSignoffBy != nil {
			return fault.Conflictf("change request %s already signed off by %s", changeRequestID, *cr.OwnerSignoffBy)
		}
		at := e.timestamp()
		if err := e.Repo.RecordOwnerSignoff(ctx, tx, changeRequestID, actorID, at, comment); err != nil {
			return err
		}
		cr.OwnerSignoffBy = &actorID
		cr.OwnerSignoffAt = &at
		cr.OwnerSignoffComment = comment
		return nil
	})
	return cr, err
}

type ResolveChangeInput struct {
	ProjectID        string
	ChangeRequestID  string
	Decision         string // approve | reject
	ReviewerComments string
	ActorID          string
}

// ResolveChangeRequest moves a pending request to its terminal state. On
// approval the new baseline activates, the request is consumed, and the
// ledger entry is appended all in one transaction.
func (e *Engine) ResolveChangeRequest(ctx context.Context, in ResolveChangeInput) (domain.ChangeRequest, error) {
	if in.Decision != "approve" && in.Decision != "reject" {
		return domain.ChangeRequest{}, fault.Validationf("decision must be approve or reject, got %q", in.Decision)
	}
	var cr domain.ChangeRequest
	err := e.governed(ctx, in.ProjectID, func(tx *sql.Tx) (*domain.AuditEntry, error) {
		var err error
		cr, err = e.Repo.GetChangeRequestTx(ctx, tx, in.ChangeRequestID)
		if err != nil {
			return nil, err
		}
		if cr.ProjectID != in.ProjectID {
			return nil, fault.NotFoundError{Kind: "change request", ID: in.ChangeRequestID}
		}
		if cr.Status != domain.ChangePending {
			return nil, fault.Conflictf("change request %s is already %s", cr.ID, cr.Status)
		}
		if in.ActorID != cr.ApproverID {
			return nil, fault.AuthorizationError{ActorID: in.ActorID, Capability: config.CapBaselineApprove}
		}

		now := e.timestamp()
		cr.ReviewerComments = in.ReviewerComments
		cr.ResolvedAt = &now

		entry := domain.AuditEntry{
			ProjectID:           in.ProjectID,
			ChangeRequestID:     &cr.ID,
			ChangedBy:           cr.RequestedBy,
			ApprovedBy:          &in.ActorID,
			ChangeType:          cr.ChangeType,
			Reason:              cr.Reason,
			ScheduleImpactDays:  cr.ScheduleImpactDays,
			StakeholderComments: cr.StakeholderComments,
			ReviewerComments:    in.ReviewerComments,
			OccurredAt:          now,
		}

		if in.Decision == "approve" {
			if cr.ChangeType == domain.ChangeScopeChange && cr.OwnerSignoffBy == nil {
				return nil, fault.Conflictf("scope change %s requires owner representative sign-off before approval", cr.ID)
			}
			crID := cr.ID
			b, err := e.activateBaseline(ctx, tx, in.ProjectID, in.ActorID, cr.Reason, &crID)
			if err != nil {
				return nil, err
			}
			cr.Status = domain.ChangeApproved
			entry.BaselineID = &b.ID
		} else {
			cr.Status = domain.ChangeRejected
		}
		if err := e.Repo.ResolveChangeRequest(ctx, tx, cr); err != nil {
			return nil, err
		}
		appended, err := e.Ledger.Append(ctx, tx, entry)
		if err != nil {
			return nil, err
		}
		return &appended, nil
	})
	if err != nil {
		return domain.ChangeRequest{}, err
	}
	e.Log.Info().Str("project_id", in.ProjectID).Str("change_request_id", cr.ID).
		Str("status", cr.Status).Msg("change request resolved")
	return cr, nil
}
