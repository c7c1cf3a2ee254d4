package engine

import (
	"context"

	"slipway/internal/domain"
)

func (e *Engine) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return e.Repo.ListProjects(ctx)
}

func (e *Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return e.Repo.GetProject(ctx, id)
}

func (e *Engine) ListPhases(ctx context.Context, projectID string) ([]domain.Phase, error) {
	return e.Repo.ListPhases(ctx, projectID)
}

func (e *Engine) GetStage(ctx context.Context, stageID string) (domain.Stage, error) {
	return e.Repo.GetStage(ctx, stageID)
}

func (e *Engine) ListStageUpdates(ctx context.Context, stageID string) ([]domain.StageUpdate, error) {
	return e.Repo.ListStageUpdates(ctx, stageID)
}

func (e *Engine) ListDependencies(ctx context.Context, projectID string) ([]domain.Dependency, error) {
	return e.Repo.ListDependencies(ctx, projectID)
}

func (e *Engine) ListBaselines(ctx context.Context, projectID string) ([]domain.Baseline, error) {
	return e.Repo.ListBaselines(ctx, projectID)
}

func (e *Engine) ListBaselineSnapshots(ctx context.Context, baselineID string) ([]domain.BaselineSnapshot, error) {
	return e.Repo.ListBaselineSnapshots(ctx, baselineID)
}

func (e *Engine) ListChangeRequests(ctx context.Context, projectID, status string) ([]domain.ChangeRequest, error) {
	return e.Repo.ListChangeRequests(ctx, projectID, status)
}

func (e *Engine) GetChangeRequest(ctx context.Context, id string) (domain.ChangeRequest, error) {
	return e.Repo.GetChangeRequest(ctx, id)
}

func (e *Engine) ListAuditEntries(ctx context.Context, projectID string) ([]domain.AuditEntry, error) {
	return e.Ledger.List(ctx, e.DB, projectID)
}

func (e *Engine) ListNotifications(ctx context.Context, projectID, stakeholderID string) ([]domain.Notification, error) {
	return e.Repo.ListNotifications(ctx, projectID, stakeholderID)
}

func (e *Engine) ListStakeholders(ctx context.Context) ([]domain.Stakeholder, error) {
	return e.Repo.ListStakeholders(ctx)
}

func (e *Engine) ListProjectStakeholders(ctx context.Context, projectID string) ([]domain.ProjectStakeholder, error) {
	return e.Repo.ListProjectStakeholders(ctx, projectID)
}

type GanttStage struct {
	domain.Stage
	Deviation domain.Deviation `json:"deviation"`
}

type GanttPhase struct {
	domain.Phase
	Stages []GanttStage `json:"stages"`
}

type Gantt struct {
	Project      domain.Project      `json:"project"`
	Phases       []GanttPhase        `json:"phases"`
	Dependencies []domain.Dependency `json:"dependencies"`
	Summary      DeviationSummary    `json:"deviation_summary"`
}

// GetGantt composes the full schedule view: phases ordered by position, each
// with its ordered stages carrying all date fields and the deviation against
// the active baseline, plus the dependency edges.
func (e *Engine) GetGantt(ctx context.Context, projectID string) (Gantt, error) {
	var g Gantt
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return g, err
	}
	defer tx.Rollback()

	g.Project, err = e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return g, err
	}
	phases, err := e.Repo.ListPhasesTx(ctx, tx, projectID)
	if err != nil {
		return g, err
	}
	stages, err := e.Repo.ListStagesByProjectTx(ctx, tx, projectID)
	if err != nil {
		return g, err
	}
	g.Dependencies, err = e.Repo.ListDependenciesTx(ctx, tx, projectID)
	if err != nil {
		return g, err
	}

	var snaps map[string]domain.BaselineSnapshot
	if g.Project.ActiveBaselineID != nil {
		snaps, err = e.Repo.SnapshotsByStageTx(ctx, tx, *g.Project.ActiveBaselineID)
		if err != nil {
			return g, err
		}
	}

	byPhase := make(map[string][]GanttStage)
	for _, s := range stages {
		var snap *domain.BaselineSnapshot
		if v, ok := snaps[s.ID]; ok {
			snap = &v
		}
		d := deviationFor(s, snap)
		switch {
		case d.Status == nil:
			g.Summary.NoData++
		case *d.Status == domain.DeviationDelayed:
			g.Summary.Delayed++
		case *d.Status == domain.DeviationAhead:
			g.Summary.Ahead++
		default:
			g.Summary.OnBaseline++
		}
		byPhase[s.PhaseID] = append(byPhase[s.PhaseID], GanttStage{Stage: s, Deviation: d})
	}
	for _, p := range phases {
		g.Phases = append(g.Phases, GanttPhase{Phase: p, Stages: byPhase[p.ID]})
	}
	return g, nil
}
