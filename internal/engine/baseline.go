package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"slipway/internal/config"
	"slipway/internal/domain"
	"slipway/internal/fault"
)

// activateBaseline is the only code path that writes baseline_* fields. It
// runs inside the caller's governed transaction: it creates the next
// baseline version, snapshots every stage's current plan, deactivates the
// previous baseline, and verifies exactly one baseline is active before the
// caller commits.
func (e *Engine) activateBaseline(ctx context.Context, tx *sql.Tx, projectID, actorID, notes string, changeRequestID *string) (domain.Baseline, error) {
	version, err := e.Repo.MaxBaselineVersion(ctx, tx, projectID)
	if err != nil {
		return domain.Baseline{}, err
	}
	now := e.timestamp()
	b := domain.Baseline{
		ID:              uuid.NewString(),
		ProjectID:       projectID,
		VersionNumber:   version + 1,
		SetBy:           actorID,
		SetAt:           now,
		IsActive:        true,
		Notes:           notes,
		ChangeRequestID: changeRequestID,
	}
	if err := e.Repo.DeactivateBaselines(ctx, tx, projectID); err != nil {
		return b, err
	}
	if err := e.Repo.InsertBaseline(ctx, tx, b); err != nil {
		return b, err
	}

	stages, err := e.Repo.ListStagesByProjectTx(ctx, tx, projectID)
	if err != nil {
		return b, err
	}
	for _, s := range stages {
		snap := domain.BaselineSnapshot{
			ID:            uuid.NewString(),
			BaselineID:    b.ID,
			StageID:       s.ID,
			ProjectID:     projectID,
			BaselineStart: s.PlannedStart,
			BaselineEnd:   s.PlannedEnd,
			DurationDays:  durationDays(s.PlannedStart, s.PlannedEnd),
			SnapshottedAt: now,
		}
		if err := e.Repo.InsertBaselineSnapshot(ctx, tx, snap); err != nil {
			return b, err
		}
		s.BaselineStart = snap.BaselineStart
		s.BaselineEnd = snap.BaselineEnd
		s.BaselineDurationDays = snap.DurationDays
		s.UpdatedAt = now
		if err := e.Repo.UpdateStage(ctx, tx, s); err != nil {
			return b, err
		}
	}

	if err := e.Repo.SetActiveBaselineID(ctx, tx, projectID, b.ID, now); err != nil {
		return b, err
	}
	if err := e.recomputeProgress(ctx, tx, projectID); err != nil {
		return b, err
	}

	active, err := e.Repo.CountActiveBaselines(ctx, tx, projectID)
	if err != nil {
		return b, err
	}
	if active != 1 {
		return b, fault.ConsistencyError{ProjectID: projectID, Msg: fmt.Sprintf("baseline activation left %d active baselines", active)}
	}
	return b, nil
}

// SetInitialBaseline creates baseline version 1 directly, permitted only
// while the project has no baseline. Later versions go through the
// change-control workflow.
func (e *Engine) SetInitialBaseline(ctx context.Context, projectID, actorID, notes string) (domain.Baseline, error) {
	if err := e.Auth.Require(ctx, projectID, actorID, config.CapBaselineApprove); err != nil {
		return domain.Baseline{}, err
	}
	var b domain.Baseline
	err := e.governed(ctx, projectID, func(tx *sql.Tx) (*domain.AuditEntry, error) {
		if _, err := e.Repo.GetProjectTx(ctx, tx, projectID); err != nil {
			return nil, err
		}
		if v, err := e.Repo.MaxBaselineVersion(ctx, tx, projectID); err != nil {
			return nil, err
		} else if v > 0 {
			return nil, fault.Conflictf("project %s already has a baseline; submit a change request", projectID)
		}
		var err error
		b, err = e.activateBaseline(ctx, tx, projectID, actorID, notes, nil)
		if err != nil {
			return nil, err
		}
		reason := notes
		if reason == "" {
			reason = "initial baseline set"
		}
		entry, err := e.Ledger.Append(ctx, tx, domain.AuditEntry{
			ProjectID:  projectID,
			BaselineID: &b.ID,
			ChangedBy:  actorID,
			ChangeType: domain.ChangeInitialBaseline,
			Reason:     reason,
		})
		if err != nil {
			return nil, err
		}
		return &entry, nil
	})
	if err != nil {
		return domain.Baseline{}, err
	}
	e.Log.Info().Str("project_id", projectID).Int("version", b.VersionNumber).Msg("baseline activated")
	return b, nil
}

// deviationFor compares a stage's current planned end against its snapshot
// in the active baseline. Missing data yields an empty deviation.
func deviationFor(s domain.Stage, snap *domain.BaselineSnapshot) domain.Deviation {
	d := domain.Deviation{StageID: s.ID}
	if snap == nil || snap.BaselineEnd == nil || s.PlannedEnd == nil || *s.PlannedEnd == "" {
		return d
	}
	delta := durationDays(snap.BaselineEnd, s.PlannedEnd)
	if delta == nil {
		return d
	}
	status := domain.DeviationOnBaseline
	switch {
	case *delta > 0:
		status = domain.DeviationDelayed
	case *delta < 0:
		status = domain.DeviationAhead
	}
	d.DeviationDays = delta
	d.Status = &status
	return d
}

// ComputeDeviation returns a single stage's deviation against the active
// baseline. No active baseline or missing dates is "no data", not an error.
func (e *Engine) ComputeDeviation(ctx context.Context, stageID string) (domain.Deviation, error) {
	s, err := e.Repo.GetStage(ctx, stageID)
	if err != nil {
		return domain.Deviation{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Deviation{}, err
	}
	defer tx.Rollback()
	active, err := e.Repo.ActiveBaselineTx(ctx, tx, s.ProjectID)
	if err != nil {
		var nf fault.NotFoundError
		if errors.As(err, &nf) {
			return domain.Deviation{StageID: stageID}, nil
		}
		return domain.Deviation{}, err
	}
	snaps, err := e.Repo.SnapshotsByStageTx(ctx, tx, active.ID)
	if err != nil {
		return domain.Deviation{}, err
	}
	snap, ok := snaps[stageID]
	if !ok {
		return domain.Deviation{StageID: stageID}, nil
	}
	return deviationFor(s, &snap), nil
}

type DeviationSummary struct {
	OnBaseline int `json:"on_baseline"`
	Ahead      int `json:"ahead"`
	Delayed    int `json:"delayed"`
	NoData     int `json:"no_data"`
}

type BaselineReport struct {
	ProjectID  string             `json:"project_id"`
	Active     *domain.Baseline   `json:"active_baseline,omitempty"`
	History    []domain.Baseline  `json:"history"`
	Deviations []domain.Deviation `json:"deviations"`
	Summary    DeviationSummary   `json:"summary"`
}

// GetBaselineReport composes the active baseline, the full version history,
// and per-stage deviations in one consistent snapshot.
func (e *Engine) GetBaselineReport(ctx context.Context, projectID string) (BaselineReport, error) {
	report := BaselineReport{ProjectID: projectID}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return report, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProjectTx(ctx, tx, projectID); err != nil {
		return report, err
	}
	report.History, err = e.Repo.ListBaselinesTx(ctx, tx, projectID)
	if err != nil {
		return report, err
	}
	var snaps map[string]domain.BaselineSnapshot
	for i := range report.History {
		if report.History[i].IsActive {
			report.Active = &report.History[i]
		}
	}
	if report.Active != nil {
		snaps, err = e.Repo.SnapshotsByStageTx(ctx, tx, report.Active.ID)
		if err != nil {
			return report, err
		}
	}
	stages, err := e.Repo.ListStagesByProjectTx(ctx, tx, projectID)
	if err != nil {
		return report, err
	}
	for _, s := range stages {
		var snap *domain.BaselineSnapshot
		if v, ok := snaps[s.ID]; ok {
			snap = &v
		}
		d := deviationFor(s, snap)
		report.Deviations = append(report.Deviations, d)
		switch {
		case d.Status == nil:
			report.Summary.NoData++
		case *d.Status == domain.DeviationDelayed:
			report.Summary.Delayed++
		case *d.Status == domain.DeviationAhead:
			report.Summary.Ahead++
		default:
			report.Summary.OnBaseline++
		}
	}
	return report, nil
}
