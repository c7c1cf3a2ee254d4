// Package slipwaysdk is a minimal Slipway HTTP API client.
//
// Types here mirror the API's JSON payloads but are kept partial on
// purpose so the file can be vendored into consumers without dragging
// the server module along.
package slipwaysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to one Slipway server, scoped to one project for the
// project-relative calls.
type Client struct {
	BaseURL     string
	ProjectID   string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no bearer token is set. Only
	// works against servers started with the legacy header enabled.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

type Project struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	VesselType       string  `json:"vessel_type"`
	ProgressPct      float64 `json:"progress_pct"`
	ActiveBaselineID *string `json:"active_baseline_id"`
}

type Phase struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Name        string  `json:"name"`
	Order       int     `json:"order"`
	ProgressPct float64 `json:"progress_pct"`
}

type Stage struct {
	ID            string  `json:"id"`
	PhaseID       string  `json:"phase_id"`
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	ProgressPct   float64 `json:"progress_pct"`
	PlannedStart  *string `json:"planned_start"`
	PlannedEnd    *string `json:"planned_end"`
	ActualStart   *string `json:"actual_start"`
	ActualEnd     *string `json:"actual_end"`
	BaselineStart *string `json:"baseline_start"`
	BaselineEnd   *string `json:"baseline_end"`
}

type Deviation struct {
	StageID       string  `json:"stage_id"`
	DeviationDays *int    `json:"deviation_days"`
	Status        *string `json:"deviation_status"`
}

type Dependency struct {
	ID                 string `json:"id"`
	PredecessorStageID string `json:"predecessor_stage_id"`
	SuccessorStageID   string `json:"successor_stage_id"`
	Type               string `json:"dependency_type"`
}

type Baseline struct {
	ID              string  `json:"id"`
	ProjectID       string  `json:"project_id"`
	VersionNumber   int     `json:"version_number"`
	SetBy           string  `json:"set_by"`
	SetAt           string  `json:"set_at"`
	IsActive        bool    `json:"is_active"`
	Notes           string  `json:"notes"`
	ChangeRequestID *string `json:"change_request_id"`
}

type BaselineSnapshot struct {
	ID            string  `json:"id"`
	BaselineID    string  `json:"baseline_id"`
	StageID       string  `json:"stage_id"`
	BaselineStart *string `json:"baseline_start"`
	BaselineEnd   *string `json:"baseline_end"`
	DurationDays  *int    `json:"baseline_duration_days"`
}

type ChangeRequest struct {
	ID                 string   `json:"id"`
	ProjectID          string   `json:"project_id"`
	RequestedBy        string   `json:"requested_by"`
	ApproverID         string   `json:"approver_id"`
	ChangeType         string   `json:"change_type"`
	Reason             string   `json:"reason"`
	ScheduleImpactDays *int     `json:"schedule_impact_days"`
	CostImpact         *float64 `json:"cost_impact"`
	Status             string   `json:"status"`
	OwnerSignoffBy     *string  `json:"owner_signoff_by"`
	ReviewerComments   string   `json:"reviewer_comments"`
	ResolvedAt         *string  `json:"resolved_at"`
}

type AuditEntry struct {
	ID                 string  `json:"id"`
	ProjectID          string  `json:"project_id"`
	SequenceNumber     int64   `json:"sequence_number"`
	BaselineID         *string `json:"baseline_id"`
	ChangeRequestID    *string `json:"change_request_id"`
	ChangedBy          string  `json:"changed_by"`
	ApprovedBy         *string `json:"approved_by"`
	ChangeType         string  `json:"change_type"`
	Reason             string  `json:"reason"`
	ScheduleImpactDays *int    `json:"schedule_impact_days"`
	OccurredAt         string  `json:"occurred_at"`
}

type Notification struct {
	ID            string `json:"id"`
	AuditEntryID  string `json:"audit_entry_id"`
	StakeholderID string `json:"stakeholder_id"`
	Type          string `json:"notification_type"`
	RoleAtTime    string `json:"role_at_time_of_notification"`
	Comments      string `json:"comments"`
	NotifiedAt    string `json:"notified_at"`
}

type Stakeholder struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project and does not scope to c.ProjectID.
func (c *Client) CreateProject(ctx context.Context, name, vesselType string, plannedStart, plannedEnd *string) (Project, error) {
	body := map[string]any{
		"name":        name,
		"vessel_type": vesselType,
	}
	if plannedStart != nil {
		body["planned_start"] = *plannedStart
	}
	if plannedEnd != nil {
		body["planned_end"] = *plannedEnd
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

func (c *Client) GetProject(ctx context.Context) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, c.projectPath(""), nil, &resp)
	return resp, err
}

func (c *Client) AddPhase(ctx context.Context, name string, plannedStart, plannedEnd *string) (Phase, error) {
	body := map[string]any{"name": name}
	if plannedStart != nil {
		body["planned_start"] = *plannedStart
	}
	if plannedEnd != nil {
		body["planned_end"] = *plannedEnd
	}
	var resp Phase
	err := c.do(ctx, http.MethodPost, c.projectPath("phases"), body, &resp)
	return resp, err
}

func (c *Client) AddStage(ctx context.Context, phaseID, name string, plannedStart, plannedEnd *string) (Stage, error) {
	body := map[string]any{"name": name}
	if plannedStart != nil {
		body["planned_start"] = *plannedStart
	}
	if plannedEnd != nil {
		body["planned_end"] = *plannedEnd
	}
	var resp Stage
	endpoint := c.projectPath(fmt.Sprintf("phases/%s/stages", url.PathEscape(phaseID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ReportProgress posts a stage progress update. Nil fields are omitted.
func (c *Client) ReportProgress(ctx context.Context, stageID string, status *string, progressPct *float64, actualStart, actualEnd, comments *string) (Stage, error) {
	body := map[string]any{}
	if status != nil {
		body["status"] = *status
	}
	if progressPct != nil {
		body["progress_pct"] = *progressPct
	}
	if actualStart != nil {
		body["actual_start"] = *actualStart
	}
	if actualEnd != nil {
		body["actual_end"] = *actualEnd
	}
	if comments != nil {
		body["comments"] = *comments
	}
	var resp Stage
	endpoint := c.projectPath(fmt.Sprintf("stages/%s/progress", url.PathEscape(stageID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

func (c *Client) StageDeviation(ctx context.Context, stageID string) (Deviation, error) {
	var resp Deviation
	endpoint := c.projectPath(fmt.Sprintf("stages/%s/deviation", url.PathEscape(stageID)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) AddDependency(ctx context.Context, predecessorID, successorID string) (Dependency, error) {
	body := map[string]any{
		"predecessor_stage_id": predecessorID,
		"successor_stage_id":   successorID,
	}
	var resp Dependency
	err := c.do(ctx, http.MethodPost, c.projectPath("dependencies"), body, &resp)
	return resp, err
}

func (c *Client) SetInitialBaseline(ctx context.Context, notes string) (Baseline, error) {
	var resp Baseline
	err := c.do(ctx, http.MethodPost, c.projectPath("baseline"), map[string]any{"notes": notes}, &resp)
	return resp, err
}

func (c *Client) ListBaselines(ctx context.Context) ([]Baseline, error) {
	var resp []Baseline
	err := c.do(ctx, http.MethodGet, c.projectPath("baselines"), nil, &resp)
	return resp, err
}

func (c *Client) BaselineSnapshots(ctx context.Context, baselineID string) ([]BaselineSnapshot, error) {
	var resp []BaselineSnapshot
	endpoint := c.projectPath(fmt.Sprintf("baselines/%s/snapshots", url.PathEscape(baselineID)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SubmitChange submits a change request for the designated approver.
func (c *Client) SubmitChange(ctx context.Context, changeType, reason, approverID string, scheduleImpactDays *int) (ChangeRequest, error) {
	body := map[string]any{
		"change_type": changeType,
		"reason":      reason,
		"approver_id": approverID,
	}
	if scheduleImpactDays != nil {
		body["schedule_impact_days"] = *scheduleImpactDays
	}
	var resp ChangeRequest
	err := c.do(ctx, http.MethodPost, c.projectPath("changes"), body, &resp)
	return resp, err
}

func (c *Client) SignOffChange(ctx context.Context, changeRequestID, comment string) (ChangeRequest, error) {
	body := map[string]any{"comment": comment}
	var resp ChangeRequest
	endpoint := c.projectPath(fmt.Sprintf("changes/%s/signoff", url.PathEscape(changeRequestID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ResolveChange approves or rejects a pending change request.
func (c *Client) ResolveChange(ctx context.Context, changeRequestID, decision, reviewerComments string) (ChangeRequest, error) {
	body := map[string]any{
		"decision":          decision,
		"reviewer_comments": reviewerComments,
	}
	var resp ChangeRequest
	endpoint := c.projectPath(fmt.Sprintf("changes/%s/resolve", url.PathEscape(changeRequestID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

func (c *Client) ListChanges(ctx context.Context, status string) ([]ChangeRequest, error) {
	endpoint := c.projectPath("changes")
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []ChangeRequest
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) AuditEntries(ctx context.Context) ([]AuditEntry, error) {
	var resp []AuditEntry
	err := c.do(ctx, http.MethodGet, c.projectPath("audit"), nil, &resp)
	return resp, err
}

func (c *Client) Notifications(ctx context.Context, stakeholderID string) ([]Notification, error) {
	endpoint := c.projectPath("notifications")
	if stakeholderID != "" {
		endpoint += "?stakeholder_id=" + url.QueryEscape(stakeholderID)
	}
	var resp []Notification
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) CreateStakeholder(ctx context.Context, fullName, email string) (Stakeholder, error) {
	body := map[string]any{"full_name": fullName, "email": email}
	var resp Stakeholder
	err := c.do(ctx, http.MethodPost, "v0/stakeholders", body, &resp)
	return resp, err
}

func (c *Client) AssignStakeholder(ctx context.Context, stakeholderID, role string) error {
	body := map[string]any{"stakeholder_id": stakeholderID, "role": role}
	return c.do(ctx, http.MethodPost, c.projectPath("stakeholders"), body, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	if p == "" {
		return "v0/projects/" + project
	}
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
