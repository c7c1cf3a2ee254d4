package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"slipway/internal/domain"
	"slipway/internal/engine"
)

func registerProjects(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body struct {
			Name         string  `json:"name" minLength:"1"`
			Description  string  `json:"description,omitempty"`
			ShipyardName string  `json:"shipyard_name,omitempty"`
			VesselType   string  `json:"vessel_type,omitempty"`
			PlannedStart *string `json:"planned_start,omitempty" format:"date"`
			PlannedEnd   *string `json:"planned_end,omitempty" format:"date"`
		} `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, engine.CreateProjectInput{
			Name:         input.Body.Name,
			Description:  input.Body.Description,
			ShipyardName: input.Body.ShipyardName,
			VesselType:   input.Body.VesselType,
			PlannedStart: input.Body.PlannedStart,
			PlannedEnd:   input.Body.PlannedEnd,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := e.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{projectID}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := e.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-gantt",
		Method:      http.MethodGet,
		Path:        "/projects/{projectID}/gantt",
		Summary:     "Schedule view with deviations",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
	}) (*struct {
		Body engine.Gantt `json:"body"`
	}, error) {
		g, err := e.GetGantt(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Gantt `json:"body"`
		}{Body: g}, nil
	})
}

func registerHierarchy(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-phase",
		Method:        http.MethodPost,
		Path:          "/projects/{projectID}/phases",
		Summary:       "Add phase",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
		Body      struct {
			Name         string  `json:"name" minLength:"1"`
			Description  string  `json:"description,omitempty"`
			PlannedStart *string `json:"planned_start,omitempty" format:"date"`
			PlannedEnd   *string `json:"planned_end,omitempty" format:"date"`
		} `json:"body"`
	}) (*struct {
		Body domain.Phase `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.AddPhase(ctx, engine.AddPhaseInput{
			ProjectID:    input.ProjectID,
			Name:         input.Body.Name,
			Description:  input.Body.Description,
			PlannedStart: input.Body.PlannedStart,
			PlannedEnd:   input.Body.PlannedEnd,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Phase `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-phases",
		Method:      http.MethodGet,
		Path:        "/projects/{projectID}/phases",
		Summary:     "List phases",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
	}) (*struct {
		Body []domain.Phase `json:"body"`
	}, error) {
		items, err := e.ListPhases(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Phase `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-phase",
		Method:      http.MethodDelete,
		Path:        "/projects/{projectID}/phases/{phaseID}",
		Summary:     "Remove phase",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
		PhaseID   string `path:"phaseID"`
		Force     bool   `query:"force"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemovePhase(ctx, input.ProjectID, input.PhaseID, actorID, input.Force); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-phases",
		Method:      http.MethodPost,
		Path:        "/projects/{projectID}/phases/reorder",
		Summary:     "Reorder phases",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
		Body      struct {
			OrderedIDs []string `json:"ordered_ids" minItems:"1"`
		} `json:"body"`
	}) (*struct {
		Body []domain.Phase `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ReorderPhases(ctx, input.ProjectID, input.Body.OrderedIDs, actorID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListPhases(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Phase `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-stage",
		Method:        http.MethodPost,
		Path:          "/projects/{projectID}/phases/{phaseID}/stages",
		Summary:       "Add stage",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
		PhaseID   string `path:"phaseID"`
		Body      struct {
			Name         string  `json:"name" minLength:"1"`
			Description  string  `json:"description,omitempty"`
			PlannedStart *string `json:"planned_start,omitempty" format:"date"`
			PlannedEnd   *string `json:"planned_end,omitempty" format:"date"`
		} `json:"body"`
	}) (*struct {
		Body domain.Stage `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.AddStage(ctx, engine.AddStageInput{
			ProjectID:    input.ProjectID,
			PhaseID:      input.PhaseID,
			Name:         input.Body.Name,
			Description:  input.Body.Description,
			PlannedStart: input.Body.PlannedStart,
			PlannedEnd:   input.Body.PlannedEnd,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Stage `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-stage-plan",
		Method:      http.MethodPatch,
		Path:        "/projects/{projectID}/stages/{stageID}/plan",
		Summary:     "Edit a stage's current plan",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
		StageID   string `path:"stageID"`
		Body      struct {
			Name         *string `json:"name,omitempty"`
			Description  *string `json:"description,omitempty"`
			PlannedStart *string `json:"planned_start,omitempty" format:"date"`
			PlannedEnd   *string `json:"planned_end,omitempty" format:"date"`
		} `json:"body"`
	}) (*struct {
		Body domain.Stage `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.UpdateStagePlan(ctx, engine.UpdateStagePlanInput{
			ProjectID:    input.ProjectID,
			StageID:      input.StageID,
			Name:         input.Body.Name,
			Description:  input.Body.Description,
			PlannedStart: input.Body.PlannedStart,
			PlannedEnd:   input.Body.PlannedEnd,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Stage `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-stage",
		Method:      http.MethodDelete,
		Path:        "/projects/{projectID}/stages/{stageID}",
		Summary:     "Remove stage",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
		StageID   string `path:"stageID"`
		Force     bool   `query:"force"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveStage(ctx, input.ProjectID, input.StageID, actorID, input.Force); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-stages",
		Method:      http.MethodPost,
		Path:        "/projects/{projectID}/phases/{phaseID}/stages/reorder",
		Summary:     "Reorder stages within a phase",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
		PhaseID   string `path:"phaseID"`
		Body      struct {
			OrderedIDs []string `json:"ordered_ids" minItems:"1"`
		} `json:"body"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ReorderStages(ctx, input.ProjectID, input.PhaseID, input.Body.OrderedIDs, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-dependency",
		Method:        http.MethodPost,
		Path:          "/projects/{projectID}/dependencies",
		Summary:       "Add stage dependency",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
		Body      struct {
			PredecessorStageID string `json:"predecessor_stage_id" minLength:"1"`
			SuccessorStageID   string `json:"successor_stage_id" minLength:"1"`
			DependencyType     string `json:"dependency_type,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Dependency `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.AddDependency(ctx, input.ProjectID, input.Body.PredecessorStageID, input.Body.SuccessorStageID, input.Body.DependencyType, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Dependency `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-dependencies",
		Method:      http.MethodGet,
		Path:        "/projects/{projectID}/dependencies",
		Summary:     "List stage dependencies",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
	}) (*struct {
		Body []domain.Dependency `json:"body"`
	}, error) {
		items, err := e.ListDependencies(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Dependency `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-dependency",
		Method:      http.MethodDelete,
		Path:        "/projects/{projectID}/dependencies/{dependencyID}",
		Summary:     "Remove stage dependency",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID    string `path:"projectID"`
		DependencyID string `path:"dependencyID"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveDependency(ctx, input.ProjectID, input.DependencyID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerProgress(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "update-stage-progress",
		Method:      http.MethodPost,
		Path:        "/projects/{projectID}/stages/{stageID}/progress",
		Summary:     "Report stage progress",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
		StageID   string `path:"stageID"`
		Body      struct {
			Status      *string  `json:"status,omitempty" enum:"not_started,in_progress,blocked,completed"`
			ProgressPct *float64 `json:"progress_pct,omitempty" minimum:"0" maximum:"100"`
			ActualStart *string  `json:"actual_start,omitempty" format:"date"`
			ActualEnd   *string  `json:"actual_end,omitempty" format:"date"`
			Comments    *string  `json:"comments,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Stage `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.UpdateStageProgress(ctx, engine.StageProgressInput{
			ProjectID:   input.ProjectID,
			StageID:     input.StageID,
			Status:      input.Body.Status,
			ProgressPct: input.Body.ProgressPct,
			ActualStart: input.Body.ActualStart,
			ActualEnd:   input.Body.ActualEnd,
			Comments:    input.Body.Comments,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Stage `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stage-updates",
		Method:      http.MethodGet,
		Path:        "/projects/{projectID}/stages/{stageID}/updates",
		Summary:     "Stage update history",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
		StageID   string `path:"stageID"`
	}) (*struct {
		Body []domain.StageUpdate `json:"body"`
	}, error) {
		items, err := e.ListStageUpdates(ctx, input.StageID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.StageUpdate `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-stage-deviation",
		Method:      http.MethodGet,
		Path:        "/projects/{projectID}/stages/{stageID}/deviation",
		Summary:     "Deviation against the active baseline",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
		StageID   string `path:"stageID"`
	}) (*struct {
		Body domain.Deviation `json:"body"`
	}, error) {
		d, err := e.ComputeDeviation(ctx, input.StageID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Deviation `json:"body"`
		}{Body: d}, nil
	})
}
