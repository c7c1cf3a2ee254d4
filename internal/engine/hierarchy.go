package engine

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"slipway/internal/config"
	"slipway/internal/domain"
	"slipway/internal/fault"
)

type CreateProjectInput struct {
	Name         string
	Description  string
	ShipyardName string
	VesselType   string
	PlannedStart *string
	PlannedEnd   *string
	ActorID      string
}

func (e *Engine) CreateProject(ctx context.Context, in CreateProjectInput) (domain.Project, error) {
	if in.Name == "" {
		return domain.Project{}, fault.Validationf("project name is required")
	}
	if in.ActorID == "" {
		return domain.Project{}, fault.Validationf("actor id is required")
	}
	if err := validateDatePair(in.PlannedStart, in.PlannedEnd, "project planned"); err != nil {
		return domain.Project{}, err
	}
	now := e.timestamp()
	p := domain.Project{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Description:  in.Description,
		ShipyardName: in.ShipyardName,
		VesselType:   in.VesselType,
		PlannedStart: in.PlannedStart,
		PlannedEnd:   in.PlannedEnd,
		CreatedBy:    in.ActorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if d := durationDays(p.PlannedStart, p.PlannedEnd); d != nil {
		p.PlannedDurationDays = *d
	}
	err := e.write(ctx, p.ID, func(tx *sql.Tx) error {
		return e.Repo.InsertProject(ctx, tx, p)
	})
	if err != nil {
		return domain.Project{}, err
	}
	e.Log.Info().Str("project_id", p.ID).Str("name", p.Name).Msg("project created")
	return p, nil
}

type AddPhaseInput struct {
	ProjectID    string
	Name         string
	Description  string
	PlannedStart *string
	PlannedEnd   *string
	ActorID      string
}

func (e *Engine) AddPhase(ctx context.Context, in AddPhaseInput) (domain.Phase, error) {
	if in.Name == "" {
		return domain.Phase{}, fault.Validationf("phase name is required")
	}
	if err := validateDatePair(in.PlannedStart, in.PlannedEnd, "phase planned"); err != nil {
		return domain.Phase{}, err
	}
	if err := e.Auth.Require(ctx, in.ProjectID, in.ActorID, config.CapHierarchyEdit); err != nil {
		return domain.Phase{}, err
	}
	var p domain.Phase
	err := e.write(ctx, in.ProjectID, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetProjectTx(ctx, tx, in.ProjectID); err != nil {
			return err
		}
		phases, err := e.Repo.ListPhasesTx(ctx, tx, in.ProjectID)
		if err != nil {
			return err
		}
		maxOrd := 0
		for _, existing := range phases {
			if existing.Order > maxOrd {
				maxOrd = existing.Order
			}
		}
		now := e.timestamp()
		p = domain.Phase{
			ID:           uuid.NewString(),
			ProjectID:    in.ProjectID,
			Name:         in.Name,
			Description:  in.Description,
			Order:        maxOrd + 1,
			PlannedStart: in.PlannedStart,
			PlannedEnd:   in.PlannedEnd,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return e.Repo.InsertPhase(ctx, tx, p)
	})
	return p, err
}

// RemovePhase deletes a phase and its stages. A phase still owning stages
// with work recorded is refused unless force is set.
func (e *Engine) RemovePhase(ctx context.Context, projectID, phaseID, actorID string, force bool) error {
	if err := e.Auth.Require(ctx, projectID, actorID, config.CapHierarchyEdit); err != nil {
		return err
	}
	return e.write(ctx, projectID, func(tx *sql.Tx) error {
		phase, err := e.Repo.GetPhaseTx(ctx, tx, phaseID)
		if err != nil {
			return err
		}
		if phase.ProjectID != projectID {
			return fault.NotFoundError{Kind: "phase", ID: phaseID}
		}
		if !force {
			stages, err := e.Repo.ListStagesByPhaseTx(ctx, tx, phaseID)
			if err != nil {
				return err
			}
			for _, s := range stages {
				if s.Status != domain.StageNotStarted {
					return fault.Conflictf("phase %s has stage %s with status %s", phaseID, s.ID, s.Status)
				}
			}
		}
		if err := e.Repo.DeletePhase(ctx, tx, phaseID); err != nil {
			return err
		}
		return e.recomputeProgress(ctx, tx, projectID)
	})
}

// ReorderPhases takes the complete ordered id list and assigns positions
// 1..n. Partial lists are rejected.
func (e *Engine) ReorderPhases(ctx context.Context, projectID string, orderedIDs []string, actorID string) error {
	if err := e.Auth.Require(ctx, projectID, actorID, config.CapHierarchyEdit); err != nil {
		return err
	}
	return e.write(ctx, projectID, func(tx *sql.Tx) error {
		phases, err := e.Repo.ListPhasesTx(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if err := checkPermutation(orderedIDs, phaseIDs(phases), "phase"); err != nil {
			return err
		}
		now := e.timestamp()
		// Two passes keep UNIQUE(project_id, ord) satisfied mid-update.
		for i, id := range orderedIDs {
			if err := e.Repo.SetPhaseOrder(ctx, tx, id, -(i + 1), now); err != nil {
				return err
			}
		}
		for i, id := range orderedIDs {
			if err := e.Repo.SetPhaseOrder(ctx, tx, id, i+1, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func phaseIDs(phases []domain.Phase) []string {
	ids := make([]string, len(phases))
	for i, p := range phases {
		ids[i] = p.ID
	}
	return ids
}

func checkPermutation(got, want []string, kind string) error {
	if len(got) != len(want) {
		return fault.Validationf("reorder must list all %d %ss, got %d", len(want), kind, len(got))
	}
	seen := make(map[string]bool, len(want))
	for _, id := range want {
		seen[id] = true
	}
	dup := make(map[string]bool, len(got))
	for _, id := range got {
		if !seen[id] {
			return fault.NotFoundError{Kind: kind, ID: id}
		}
		if dup[id] {
			return fault.Validationf("%s %s listed twice", kind, id)
		}
		dup[id] = true
	}
	return nil
}

type AddStageInput struct {
	ProjectID    string
	PhaseID      string
	Name         string
	Description  string
	PlannedStart *string
	PlannedEnd   *string
	ActorID      string
}

func (e *Engine) AddStage(ctx context.Context, in AddStageInput) (domain.Stage, error) {
	if in.Name == "" {
		return domain.Stage{}, fault.Validationf("stage name is required")
	}
	if err := validateDatePair(in.PlannedStart, in.PlannedEnd, "stage planned"); err != nil {
		return domain.Stage{}, err
	}
	if err := e.Auth.Require(ctx, in.ProjectID, in.ActorID, config.CapHierarchyEdit); err != nil {
		return domain.Stage{}, err
	}
	var s domain.Stage
	err := e.write(ctx, in.ProjectID, func(tx *sql.Tx) error {
		phase, err := e.Repo.GetPhaseTx(ctx, tx, in.PhaseID)
		if err != nil {
			return err
		}
		if phase.ProjectID != in.ProjectID {
			return fault.NotFoundError{Kind: "phase", ID: in.PhaseID}
		}
		siblings, err := e.Repo.ListStagesByPhaseTx(ctx, tx, in.PhaseID)
		if err != nil {
			return err
		}
		maxOrd := 0
		for _, existing := range siblings {
			if existing.Order > maxOrd {
				maxOrd = existing.Order
			}
		}
		now := e.timestamp()
		s = domain.Stage{
			ID:                  uuid.NewString(),
			PhaseID:             in.PhaseID,
			ProjectID:           in.ProjectID,
			Name:                in.Name,
			Description:         in.Description,
			Order:               maxOrd + 1,
			PlannedStart:        in.PlannedStart,
			PlannedEnd:          in.PlannedEnd,
			PlannedDurationDays: durationDays(in.PlannedStart, in.PlannedEnd),
			Status:              domain.StageNotStarted,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := e.Repo.InsertStage(ctx, tx, s); err != nil {
			return err
		}
		return e.recomputeProgress(ctx, tx, in.ProjectID)
	})
	return s, err
}

type UpdateStagePlanInput struct {
	ProjectID    string
	StageID      string
	Name         *string
	Description  *string
	PlannedStart *string
	PlannedEnd   *string
	ActorID      string
}

// UpdateStagePlan edits a stage's current plan. Baseline fields are never
// touched here.
func (e *Engine) UpdateStagePlan(ctx context.Context, in UpdateStagePlanInput) (domain.Stage, error) {
	if err := e.Auth.Require(ctx, in.ProjectID, in.ActorID, config.CapHierarchyEdit); err != nil {
		return domain.Stage{}, err
	}
	var s domain.Stage
	err := e.write(ctx, in.ProjectID, func(tx *sql.Tx) error {
		var err error
		s, err = e.Repo.GetStageTx(ctx, tx, in.StageID)
		if err != nil {
			return err
		}
		if s.ProjectID != in.ProjectID {
			return fault.NotFoundError{Kind: "stage", ID: in.StageID}
		}
		if in.Name != nil {
			if *in.Name == "" {
				return fault.Validationf("stage name is required")
			}
			s.Name = *in.Name
		}
		if in.Description != nil {
			s.Description = *in.Description
		}
		if in.PlannedStart != nil {
			s.PlannedStart = in.PlannedStart
		}
		if in.PlannedEnd != nil {
			s.PlannedEnd = in.PlannedEnd
		}
		if err := validateDatePair(s.PlannedStart, s.PlannedEnd, "stage planned"); err != nil {
			return err
		}
		s.PlannedDurationDays = durationDays(s.PlannedStart, s.PlannedEnd)
		s.UpdatedAt = e.timestamp()
		s.UpdatedBy = in.ActorID
		return e.Repo.UpdateStage(ctx, tx, s)
	})
	return s, err
}

func (e *Engine) RemoveStage(ctx context.Context, projectID, stageID, actorID string, force bool) error {
	if err := e.Auth.Require(ctx, projectID, actorID, config.CapHierarchyEdit); err != nil {
		return err
	}
	return e.write(ctx, projectID, func(tx *sql.Tx) error {
		s, err := e.Repo.GetStageTx(ctx, tx, stageID)
		if err != nil {
			return err
		}
		if s.ProjectID != projectID {
			return fault.NotFoundError{Kind: "stage", ID: stageID}
		}
		if !force && s.Status != domain.StageNotStarted {
			return fault.Conflictf("stage %s has status %s", stageID, s.Status)
		}
		if n, err := e.Repo.CountDependenciesTouching(ctx, tx, stageID); err != nil {
			return err
		} else if n > 0 {
			return fault.Conflictf("stage %s participates in %d dependencies", stageID, n)
		}
		if err := e.Repo.DeleteStage(ctx, tx, stageID); err != nil {
			return err
		}
		return e.recomputeProgress(ctx, tx, projectID)
	})
}

func (e *Engine) ReorderStages(ctx context.Context, projectID, phaseID string, orderedIDs []string, actorID string) error {
	if err := e.Auth.Require(ctx, projectID, actorID, config.CapHierarchyEdit); err != nil {
		return err
	}
	return e.write(ctx, projectID, func(tx *sql.Tx) error {
		phase, err := e.Repo.GetPhaseTx(ctx, tx, phaseID)
		if err != nil {
			return err
		}
		if phase.ProjectID != projectID {
			return fault.NotFoundError{Kind: "phase", ID: phaseID}
		}
		stages, err := e.Repo.ListStagesByPhaseTx(ctx, tx, phaseID)
		if err != nil {
			return err
		}
		ids := make([]string, len(stages))
		byID := make(map[string]domain.Stage, len(stages))
		for i, s := range stages {
			ids[i] = s.ID
			byID[s.ID] = s
		}
		if err := checkPermutation(orderedIDs, ids, "stage"); err != nil {
			return err
		}
		now := e.timestamp()
		for i, id := range orderedIDs {
			s := byID[id]
			s.Order = i + 1
			s.UpdatedAt = now
			if err := e.Repo.UpdateStage(ctx, tx, s); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddDependency inserts a precedence edge after a reachability check from
// successor back to predecessor. The graph is untouched on rejection.
func (e *Engine) AddDependency(ctx context.Context, projectID, predecessorID, successorID, depType, actorID string) (domain.Dependency, error) {
	if predecessorID == successorID {
		return domain.Dependency{}, fault.Validationf("a stage cannot depend on itself")
	}
	if depType == "" {
		depType = "finish_to_start"
	}
	if err := e.Auth.Require(ctx, projectID, actorID, config.CapHierarchyEdit); err != nil {
		return domain.Dependency{}, err
	}
	var d domain.Dependency
	err := e.write(ctx, projectID, func(tx *sql.Tx) error {
		pred, err := e.Repo.GetStageTx(ctx, tx, predecessorID)
		if err != nil {
			return err
		}
		succ, err := e.Repo.GetStageTx(ctx, tx, successorID)
		if err != nil {
			return err
		}
		if pred.ProjectID != projectID {
			return fault.NotFoundError{Kind: "stage", ID: predecessorID}
		}
		if succ.ProjectID != projectID {
			return fault.NotFoundError{Kind: "stage", ID: successorID}
		}
		exists, err := e.Repo.DependencyExists(ctx, tx, predecessorID, successorID)
		if err != nil {
			return err
		}
		if exists {
			return fault.Conflictf("dependency %s -> %s already exists", predecessorID, successorID)
		}
		edges, err := e.Repo.ListDependenciesTx(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if reachable(edges, successorID, predecessorID) {
			return fault.CycleError{PredecessorID: predecessorID, SuccessorID: successorID}
		}
		d = domain.Dependency{
			ID:            uuid.NewString(),
			ProjectID:     projectID,
			PredecessorID: predecessorID,
			SuccessorID:   successorID,
			Type:          depType,
			CreatedAt:     e.timestamp(),
		}
		return e.Repo.InsertDependency(ctx, tx, d)
	})
	return d, err
}

// reachable walks successor edges depth-first from src looking for dst.
func reachable(edges []domain.Dependency, src, dst string) bool {
	next := make(map[string][]string, len(edges))
	for _, d := range edges {
		next[d.PredecessorID] = append(next[d.PredecessorID], d.SuccessorID)
	}
	visited := map[string]bool{}
	stack := []string{src}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == dst {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		stack = append(stack, next[cur]...)
	}
	return false
}

func (e *Engine) RemoveDependency(ctx context.Context, projectID, dependencyID, actorID string) error {
	if err := e.Auth.Require(ctx, projectID, actorID, config.CapHierarchyEdit); err != nil {
		return err
	}
	return e.write(ctx, projectID, func(tx *sql.Tx) error {
		return e.Repo.DeleteDependency(ctx, tx, projectID, dependencyID)
	})
}
