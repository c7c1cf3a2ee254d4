package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"slipway/internal/domain"
	"slipway/internal/engine"
	"slipway/internal/notify"
)

func registerBaselines(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "set-initial-baseline",
		Method:        http.MethodPost,
		Path:          "/projects/{projectID}/baseline",
		Summary:       "Set the initial baseline",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
		Body      struct {
			Notes string `json:"notes,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Baseline `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.SetInitialBaseline(ctx, input.ProjectID, actorID, input.Body.Notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Baseline `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-baselines",
		Method:      http.MethodGet,
		Path:        "/projects/{projectID}/baselines",
		Summary:     "Baseline version history",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
	}) (*struct {
		Body []domain.Baseline `json:"body"`
	}, error) {
		items, err := e.ListBaselines(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Baseline `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-baseline-snapshots",
		Method:      http.MethodGet,
		Path:        "/projects/{projectID}/baselines/{baselineID}/snapshots",
		Summary:     "Per-stage snapshots of a baseline version",
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"projectID"`
		BaselineID string `path:"baselineID"`
	}) (*struct {
		Body []domain.BaselineSnapshot `json:"body"`
	}, error) {
		items, err := e.ListBaselineSnapshots(ctx, input.BaselineID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.BaselineSnapshot `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-baseline-report",
		Method:      http.MethodGet,
		Path:        "/projects/{projectID}/baseline-report",
		Summary:     "Active baseline, history and per-stage deviations",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
	}) (*struct {
		Body engine.BaselineReport `json:"body"`
	}, error) {
		report, err := e.GetBaselineReport(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.BaselineReport `json:"body"`
		}{Body: report}, nil
	})
}

func registerChanges(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-change-request",
		Method:        http.MethodPost,
		Path:          "/projects/{projectID}/changes",
		Summary:       "Submit a change request",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
		Body      struct {
			ChangeType         string   `json:"change_type" enum:"initial_baseline,delay,scope_change,cost_change,other"`
			Reason             string   `json:"reason" minLength:"1"`
			ScheduleImpactDays *int     `json:"schedule_impact_days,omitempty"`
			CostImpact         *float64 `json:"cost_impact,omitempty"`
			StakeholderComment string   `json:"stakeholder_comments,omitempty"`
			ApproverID         string   `json:"approver_id" minLength:"1"`
		} `json:"body"`
	}) (*struct {
		Body domain.ChangeRequest `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cr, err := e.SubmitChangeRequest(ctx, engine.SubmitChangeInput{
			ProjectID:          input.ProjectID,
			ChangeType:         input.Body.ChangeType,
			Reason:             input.Body.Reason,
			ScheduleImpactDays: input.Body.ScheduleImpactDays,
			CostImpact:         input.Body.CostImpact,
			StakeholderComment: input.Body.StakeholderComment,
			RequestedBy:        actorID,
			ApproverID:         input.Body.ApproverID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChangeRequest `json:"body"`
		}{Body: cr}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-change-requests",
		Method:      http.MethodGet,
		Path:        "/projects/{projectID}/changes",
		Summary:     "List change requests",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
		Status    string `query:"status" enum:"pending,approved,rejected,"`
	}) (*struct {
		Body []domain.ChangeRequest `json:"body"`
	}, error) {
		items, err := e.ListChangeRequests(ctx, input.ProjectID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ChangeRequest `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-change-request",
		Method:      http.MethodGet,
		Path:        "/projects/{projectID}/changes/{changeRequestID}",
		Summary:     "Get change request",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID       string `path:"projectID"`
		ChangeRequestID string `path:"changeRequestID"`
	}) (*struct {
		Body domain.ChangeRequest `json:"body"`
	}, error) {
		cr, err := e.GetChangeRequest(ctx, input.ChangeRequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChangeRequest `json:"body"`
		}{Body: cr}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-owner-signoff",
		Method:      http.MethodPost,
		Path:        "/projects/{projectID}/changes/{changeRequestID}/signoff",
		Summary:     "Record owner representative sign-off on a scope change",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID       string `path:"projectID"`
		ChangeRequestID string `path:"changeRequestID"`
		Body            struct {
			Comment string `json:"comment,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.ChangeRequest `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cr, err := e.RecordOwnerSignoff(ctx, input.ProjectID, input.ChangeRequestID, actorID, input.Body.Comment)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChangeRequest `json:"body"`
		}{Body: cr}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-change-request",
		Method:      http.MethodPost,
		Path:        "/projects/{projectID}/changes/{changeRequestID}/resolve",
		Summary:     "Approve or reject a change request",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID       string `path:"projectID"`
		ChangeRequestID string `path:"changeRequestID"`
		Body            struct {
			Decision         string `json:"decision" enum:"approve,reject"`
			ReviewerComments string `json:"reviewer_comments,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.ChangeRequest `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cr, err := e.ResolveChangeRequest(ctx, engine.ResolveChangeInput{
			ProjectID:        input.ProjectID,
			ChangeRequestID:  input.ChangeRequestID,
			Decision:         input.Body.Decision,
			ReviewerComments: input.Body.ReviewerComments,
			ActorID:          actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChangeRequest `json:"body"`
		}{Body: cr}, nil
	})
}

func registerLedger(api huma.API, e *engine.Engine, d *notify.Dispatcher) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit-entries",
		Method:      http.MethodGet,
		Path:        "/projects/{projectID}/audit",
		Summary:     "Audit ledger in sequence order",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
	}) (*struct {
		Body []domain.AuditEntry `json:"body"`
	}, error) {
		items, err := e.ListAuditEntries(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AuditEntry `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/projects/{projectID}/notifications",
		Summary:     "List notification records",
	}, func(ctx context.Context, input *struct {
		ProjectID     string `path:"projectID"`
		StakeholderID string `query:"stakeholder_id"`
	}) (*struct {
		Body []domain.Notification `json:"body"`
	}, error) {
		items, err := e.ListNotifications(ctx, input.ProjectID, input.StakeholderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Notification `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replay-notifications",
		Method:      http.MethodPost,
		Path:        "/projects/{projectID}/notifications/replay",
		Summary:     "Re-derive notifications from the ledger",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
	}) (*struct {
		Body struct {
			Entries int `json:"entries_replayed"`
		} `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		entries, err := e.ListAuditEntries(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := d.Replay(ctx, entries); err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Entries int `json:"entries_replayed"`
			} `json:"body"`
		}{}
		out.Body.Entries = len(entries)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resume-project",
		Method:      http.MethodPost,
		Path:        "/projects/{projectID}/resume",
		Summary:     "Resume writes after a consistency halt",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
	}) (*struct{}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.ResumeProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerStakeholders(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-stakeholder",
		Method:        http.MethodPost,
		Path:          "/stakeholders",
		Summary:       "Register stakeholder",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body struct {
			FullName string `json:"full_name" minLength:"1"`
			Email    string `json:"email" format:"email"`
		} `json:"body"`
	}) (*struct {
		Body domain.Stakeholder `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		s, err := e.RegisterStakeholder(ctx, input.Body.FullName, input.Body.Email)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Stakeholder `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stakeholders",
		Method:      http.MethodGet,
		Path:        "/stakeholders",
		Summary:     "List stakeholders",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Stakeholder `json:"body"`
	}, error) {
		items, err := e.ListStakeholders(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Stakeholder `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "assign-stakeholder",
		Method:        http.MethodPost,
		Path:          "/projects/{projectID}/stakeholders",
		Summary:       "Assign a project role",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
		Body      struct {
			StakeholderID string `json:"stakeholder_id" minLength:"1"`
			Role          string `json:"role" minLength:"1"`
		} `json:"body"`
	}) (*struct {
		Body domain.ProjectStakeholder `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AssignStakeholder(ctx, input.ProjectID, input.Body.StakeholderID, input.Body.Role, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProjectStakeholder `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-stakeholders",
		Method:      http.MethodGet,
		Path:        "/projects/{projectID}/stakeholders",
		Summary:     "List project role assignments",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"projectID"`
	}) (*struct {
		Body []domain.ProjectStakeholder `json:"body"`
	}, error) {
		items, err := e.ListProjectStakeholders(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ProjectStakeholder `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unassign-stakeholder",
		Method:      http.MethodDelete,
		Path:        "/projects/{projectID}/stakeholders/{stakeholderID}/{role}",
		Summary:     "Remove a project role",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID     string `path:"projectID"`
		StakeholderID string `path:"stakeholderID"`
		Role          string `path:"role"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.UnassignStakeholder(ctx, input.ProjectID, input.StakeholderID, input.Role, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
