package engine

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"slipway/internal/config"
	"slipway/internal/domain"
	"slipway/internal/fault"
)

type StageProgressInput struct {
	ProjectID   string
	StageID     string
	Status      *string
	ProgressPct *float64
	ActualStart *string
	ActualEnd   *string
	Comments    *string
	ActorID     string
}

func validStatus(s string) bool {
	switch s {
	case domain.StageNotStarted, domain.StageInProgress, domain.StageBlocked, domain.StageCompleted:
		return true
	}
	return false
}

// UpdateStageProgress records a progress report: validates it, writes the
// stage and an immutable history row, and recomputes phase and project
// aggregates. A transition into blocked is a governed event with its own
// ledger entry so the dispatcher can notify procurement and management.
func (e *Engine) UpdateStageProgress(ctx context.Context, in StageProgressInput) (domain.Stage, error) {
	if err := e.Auth.Require(ctx, in.ProjectID, in.ActorID, config.CapStageUpdate); err != nil {
		return domain.Stage{}, err
	}
	var out domain.Stage
	err := e.governed(ctx, in.ProjectID, func(tx *sql.Tx) (*domain.AuditEntry, error) {
		s, err := e.Repo.GetStageTx(ctx, tx, in.StageID)
		if err != nil {
			return nil, err
		}
		if s.ProjectID != in.ProjectID {
			return nil, fault.NotFoundError{Kind: "stage", ID: in.StageID}
		}
		prevStatus, prevPct := s.Status, s.ProgressPct

		if in.Status != nil {
			if !validStatus(*in.Status) {
				return nil, fault.Validationf("unknown stage status %q", *in.Status)
			}
			s.Status = *in.Status
		}
		if in.ProgressPct != nil {
			if *in.ProgressPct < 0 || *in.ProgressPct > 100 {
				return nil, fault.Validationf("progress_pct %v out of range [0,100]", *in.ProgressPct)
			}
			s.ProgressPct = *in.ProgressPct
		}
		if in.ActualStart != nil {
			s.ActualStart = in.ActualStart
		}
		if in.ActualEnd != nil {
			s.ActualEnd = in.ActualEnd
		}
		if in.Comments != nil {
			s.Comments = *in.Comments
		}

		if s.Status == domain.StageCompleted && s.ProgressPct != 100 {
			return nil, fault.Validationf("completed stage requires progress_pct = 100, got %v", s.ProgressPct)
		}
		if s.ActualEnd != nil && *s.ActualEnd != "" && (s.ActualStart == nil || *s.ActualStart == "") {
			return nil, fault.Validationf("actual_end requires actual_start")
		}
		if err := validateDatePair(s.ActualStart, s.ActualEnd, "stage actual"); err != nil {
			return nil, err
		}
		s.ActualDurationDays = durationDays(s.ActualStart, s.ActualEnd)

		now := e.timestamp()
		s.UpdatedAt = now
		s.UpdatedBy = in.ActorID
		if err := e.Repo.UpdateStage(ctx, tx, s); err != nil {
			return nil, err
		}

		update := domain.StageUpdate{
			ID:             uuid.NewString(),
			StageID:        s.ID,
			ProjectID:      s.ProjectID,
			UpdatedBy:      in.ActorID,
			PreviousStatus: prevStatus,
			NewStatus:      s.Status,
			PreviousPct:    prevPct,
			NewPct:         s.ProgressPct,
			ActualStart:    s.ActualStart,
			ActualEnd:      s.ActualEnd,
			Comments:       s.Comments,
			UpdatedAt:      now,
		}
		if err := e.Repo.InsertStageUpdate(ctx, tx, update); err != nil {
			return nil, err
		}
		if err := e.recomputeProgress(ctx, tx, in.ProjectID); err != nil {
			return nil, err
		}
		out = s

		if s.Status != domain.StageBlocked || prevStatus == domain.StageBlocked {
			return nil, nil
		}
		reason := s.Comments
		if reason == "" {
			reason = "stage blocked"
		}
		stageID := s.ID
		entry, err := e.Ledger.Append(ctx, tx, domain.AuditEntry{
			ProjectID:  in.ProjectID,
			ChangedBy:  in.ActorID,
			ChangeType: domain.ChangeStageBlocked,
			Reason:     reason,
			StageID:    &stageID,
			OccurredAt: now,
		})
		if err != nil {
			return nil, err
		}
		return &entry, nil
	})
	return out, err
}

// recomputeProgress refreshes phase and project aggregates. A phase's
// progress is the mean of its stages' percentages; a project's is the mean
// of its phases' aggregates with equal weight per phase regardless of stage
// count. Duration totals sum over stages.
func (e *Engine) recomputeProgress(ctx context.Context, tx *sql.Tx, projectID string) error {
	phases, err := e.Repo.ListPhasesTx(ctx, tx, projectID)
	if err != nil {
		return err
	}
	stages, err := e.Repo.ListStagesByProjectTx(ctx, tx, projectID)
	if err != nil {
		return err
	}
	byPhase := make(map[string][]domain.Stage)
	for _, s := range stages {
		byPhase[s.PhaseID] = append(byPhase[s.PhaseID], s)
	}

	now := e.timestamp()
	var phaseSum float64
	for _, p := range phases {
		var sum float64
		owned := byPhase[p.ID]
		for _, s := range owned {
			sum += s.ProgressPct
		}
		pct := 0.0
		if len(owned) > 0 {
			pct = sum / float64(len(owned))
		}
		if pct != p.ProgressPct {
			p.ProgressPct = pct
			p.UpdatedAt = now
			if err := e.Repo.UpdatePhase(ctx, tx, p); err != nil {
				return err
			}
		}
		phaseSum += pct
	}

	project, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return err
	}
	project.ProgressPct = 0
	if len(phases) > 0 {
		project.ProgressPct = phaseSum / float64(len(phases))
	}
	var planned, actual, baseline int
	for _, s := range stages {
		if s.PlannedDurationDays != nil {
			planned += *s.PlannedDurationDays
		}
		if s.ActualDurationDays != nil {
			actual += *s.ActualDurationDays
		}
		if s.BaselineDurationDays != nil {
			baseline += *s.BaselineDurationDays
		}
	}
	project.PlannedDurationDays = planned
	project.ActualDurationDays = actual
	project.BaselineDurationDays = baseline
	project.UpdatedAt = now
	return e.Repo.UpdateProjectSummary(ctx, tx, project)
}
