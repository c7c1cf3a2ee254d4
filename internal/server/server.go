// Package server exposes the engine over HTTP with huma/chi: OpenAPI, a
// uniform error envelope, JWT auth, and a Prometheus endpoint.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"slipway/internal/engine"
	"slipway/internal/fault"
	"slipway/internal/notify"
	"slipway/internal/telemetry"
)

type Config struct {
	Engine     *engine.Engine
	Dispatcher *notify.Dispatcher
	Metrics    *telemetry.Metrics
	BasePath   string
	Auth       AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"conflict"`
	Message string         `json:"message" example:"change request is already approved"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// handleError maps the typed error taxonomy onto distinct status codes so
// clients can render each failure class differently.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var validation fault.ValidationError
	if errors.As(err, &validation) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	}
	var notFound fault.NotFoundError
	if errors.As(err, &notFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), map[string]any{"kind": notFound.Kind, "id": notFound.ID})
	}
	var cycle fault.CycleError
	if errors.As(err, &cycle) {
		return newAPIError(http.StatusConflict, "dependency_cycle", err.Error(), map[string]any{
			"predecessor_stage_id": cycle.PredecessorID,
			"successor_stage_id":   cycle.SuccessorID,
		})
	}
	var conflict fault.ConflictError
	if errors.As(err, &conflict) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	var authz fault.AuthorizationError
	if errors.As(err, &authz) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"capability": authz.Capability})
	}
	var concurrency fault.ConcurrencyError
	if errors.As(err, &concurrency) {
		return newAPIError(http.StatusConflict, "concurrency_retry", err.Error(), nil)
	}
	var consistency fault.ConsistencyError
	if errors.As(err, &consistency) {
		return newAPIError(http.StatusInternalServerError, "consistency_violation", err.Error(), map[string]any{"project_id": consistency.ProjectID})
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

// New returns the HTTP handler for the Slipway API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics.Handler())
	}

	hcfg := huma.DefaultConfig("Slipway API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerHierarchy(group, cfg.Engine)
	registerProgress(group, cfg.Engine)
	registerBaselines(group, cfg.Engine)
	registerChanges(group, cfg.Engine)
	registerLedger(group, cfg.Engine, cfg.Dispatcher)
	registerStakeholders(group, cfg.Engine)

	return router, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Status string `json:"status"`
		} `json:"body"`
	}, error) {
		out := &struct {
			Body struct {
				Status string `json:"status"`
			} `json:"body"`
		}{}
		out.Body.Status = "ok"
		return out, nil
	})
}
