package domain

// Stage lifecycle statuses.
const (
	StageNotStarted = "not_started"
	StageInProgress = "in_progress"
	StageBlocked    = "blocked"
	StageCompleted  = "completed"
)

// Change request statuses.
const (
	ChangePending  = "pending"
	ChangeApproved = "approved"
	ChangeRejected = "rejected"
)

// Change types.
const (
	ChangeInitialBaseline = "initial_baseline"
	ChangeDelay           = "delay"
	ChangeScopeChange     = "scope_change"
	ChangeCostChange      = "cost_change"
	ChangeOther           = "other"

	// Ledger-only change type written when a stage transitions into blocked.
	ChangeStageBlocked = "stage_blocked"
)

// Deviation of a stage's current planned end vs. its active baseline end.
const (
	DeviationOnBaseline = "on_baseline"
	DeviationAhead      = "ahead"
	DeviationDelayed    = "delayed"
)

// Notification types.
const (
	NotifyBaselineSet            = "baseline_set"
	NotifyBaselineChange         = "baseline_change"
	NotifyDelay                  = "delay_notification"
	NotifyStageBlocked           = "stage_blocked"
	NotifyScopeSignoff           = "scope_change_signoff"
	NotifyChangeRequestSubmitted = "change_request_submitted"
	NotifyChangeRequestApproved  = "change_request_approved"
	NotifyChangeRequestRejected  = "change_request_rejected"
)

// Stakeholder roles. Additional roles may be declared in config.
const (
	RoleLeadProjectManager = "lead_project_manager"
	RoleBaselineApprover   = "baseline_approver"
	RoleOwnerRep           = "owner_representative"
	RoleProcurementLead    = "procurement_lead"
	RoleQAOfficer          = "qa_classification_officer"
	RoleTeamMember         = "team_member"
)

type Project struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	ShipyardName string  `json:"shipyard_name,omitempty"`
	VesselType   string  `json:"vessel_type,omitempty"`
	PlannedStart *string `json:"planned_start,omitempty" format:"date"`
	PlannedEnd   *string `json:"planned_end,omitempty" format:"date"`
	ActualStart  *string `json:"actual_start,omitempty" format:"date"`
	ActualEnd    *string `json:"actual_end,omitempty" format:"date"`

	// Denormalised summary, refreshed after every stage update.
	ProgressPct          float64 `json:"progress_pct"`
	PlannedDurationDays  int     `json:"planned_duration_days"`
	ActualDurationDays   int     `json:"actual_duration_days"`
	BaselineDurationDays int     `json:"baseline_duration_days"`

	ActiveBaselineID *string `json:"active_baseline_id,omitempty"`
	CreatedBy        string  `json:"created_by"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
}

type Phase struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order"`

	ProgressPct  float64 `json:"progress_pct"`
	PlannedStart *string `json:"planned_start,omitempty" format:"date"`
	PlannedEnd   *string `json:"planned_end,omitempty" format:"date"`
	ActualStart  *string `json:"actual_start,omitempty" format:"date"`
	ActualEnd    *string `json:"actual_end,omitempty" format:"date"`

	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Stage struct {
	ID          string `json:"id"`
	PhaseID     string `json:"phase_id"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order"`

	PlannedStart        *string `json:"planned_start,omitempty" format:"date"`
	PlannedEnd          *string `json:"planned_end,omitempty" format:"date"`
	PlannedDurationDays *int    `json:"planned_duration_days,omitempty"`

	ActualStart        *string `json:"actual_start,omitempty" format:"date"`
	ActualEnd          *string `json:"actual_end,omitempty" format:"date"`
	ActualDurationDays *int    `json:"actual_duration_days,omitempty"`

	// Written only by baseline activation; read-only everywhere else.
	BaselineStart        *string `json:"baseline_start,omitempty" format:"date"`
	BaselineEnd          *string `json:"baseline_end,omitempty" format:"date"`
	BaselineDurationDays *int    `json:"baseline_duration_days,omitempty"`

	Status      string  `json:"status" enum:"not_started,in_progress,blocked,completed"`
	ProgressPct float64 `json:"progress_pct"`
	Comments    string  `json:"comments,omitempty"`

	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

// Deviation is the computed comparison of a stage's current plan against the
// active baseline. DeviationDays and Status are nil when there is nothing to
// compare (no active baseline, or either end date missing).
type Deviation struct {
	StageID       string  `json:"stage_id"`
	DeviationDays *int    `json:"deviation_days,omitempty"`
	Status        *string `json:"deviation_status,omitempty" enum:"on_baseline,ahead,delayed"`
}

type Dependency struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	PredecessorID string `json:"predecessor_stage_id"`
	SuccessorID   string `json:"successor_stage_id"`
	Type          string `json:"dependency_type" enum:"finish_to_start,start_to_start,finish_to_finish,start_to_finish"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// StageUpdate is the immutable history row written on every progress update.
type StageUpdate struct {
	ID             string  `json:"id"`
	StageID        string  `json:"stage_id"`
	ProjectID      string  `json:"project_id"`
	UpdatedBy      string  `json:"updated_by"`
	PreviousStatus string  `json:"previous_status"`
	NewStatus      string  `json:"new_status"`
	PreviousPct    float64 `json:"previous_progress_pct"`
	NewPct         float64 `json:"new_progress_pct"`
	ActualStart    *string `json:"actual_start,omitempty" format:"date"`
	ActualEnd      *string `json:"actual_end,omitempty" format:"date"`
	Comments       string  `json:"comments,omitempty"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

type Stakeholder struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ProjectStakeholder struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	StakeholderID string `json:"stakeholder_id"`
	Role          string `json:"role"`
	AssignedAt    string `json:"assigned_at" format:"date-time"`
}

type Baseline struct {
	ID              string  `json:"id"`
	ProjectID       string  `json:"project_id"`
	VersionNumber   int     `json:"version_number"`
	SetBy           string  `json:"set_by"`
	SetAt           string  `json:"set_at" format:"date-time"`
	IsActive        bool    `json:"is_active"`
	Notes           string  `json:"notes,omitempty"`
	ChangeRequestID *string `json:"change_request_id,omitempty"`
}

// BaselineSnapshot captures one stage's planned dates at baseline time.
// Write-once; the authoritative source for deviation computation.
type BaselineSnapshot struct {
	ID            string  `json:"id"`
	BaselineID    string  `json:"baseline_id"`
	StageID       string  `json:"stage_id"`
	ProjectID     string  `json:"project_id"`
	BaselineStart *string `json:"baseline_start,omitempty" format:"date"`
	BaselineEnd   *string `json:"baseline_end,omitempty" format:"date"`
	DurationDays  *int    `json:"baseline_duration_days,omitempty"`
	SnapshottedAt string  `json:"snapshotted_at" format:"date-time"`
}

type ChangeRequest struct {
	ID                 string   `json:"id"`
	ProjectID          string   `json:"project_id"`
	RequestedBy        string   `json:"requested_by"`
	ApproverID         string   `json:"approver_id"`
	ChangeType         string   `json:"change_type" enum:"initial_baseline,delay,scope_change,cost_change,other"`
	Reason             string   `json:"reason"`
	ScheduleImpactDays *int     `json:"schedule_impact_days,omitempty"`
	CostImpact         *float64 `json:"cost_impact,omitempty"`
	Status             string   `json:"status" enum:"pending,approved,rejected"`

	// Owner Representative sign-off, required before a scope_change may be
	// approved. Empty until recorded.
	OwnerSignoffBy      *string `json:"owner_signoff_by,omitempty"`
	OwnerSignoffAt      *string `json:"owner_signoff_at,omitempty" format:"date-time"`
	OwnerSignoffComment string  `json:"owner_signoff_comment,omitempty"`

	ReviewerComments    string  `json:"reviewer_comments,omitempty"`
	StakeholderComments string  `json:"stakeholder_comments,omitempty"`
	SubmittedAt         string  `json:"submitted_at" format:"date-time"`
	ResolvedAt          *string `json:"resolved_at,omitempty" format:"date-time"`
}

// AuditEntry is an immutable ledger row. SequenceNumber is the authoritative
// ordering key; OccurredAt is informational only.
type AuditEntry struct {
	ID                  string  `json:"id"`
	ProjectID           string  `json:"project_id"`
	SequenceNumber      int64   `json:"sequence_number"`
	BaselineID          *string `json:"baseline_id,omitempty"`
	ChangeRequestID     *string `json:"change_request_id,omitempty"`
	ChangedBy           string  `json:"changed_by"`
	ApprovedBy          *string `json:"approved_by,omitempty"`
	ChangeType          string  `json:"change_type"`
	Reason              string  `json:"reason"`
	ScheduleImpactDays  *int    `json:"schedule_impact_days,omitempty"`
	StakeholderComments string  `json:"stakeholder_comments,omitempty"`
	ReviewerComments    string  `json:"reviewer_comments,omitempty"`
	StageID             *string `json:"stage_id,omitempty"`
	OccurredAt          string  `json:"occurred_at" format:"date-time"`
}

type Notification struct {
	ID              string  `json:"id"`
	ProjectID       string  `json:"project_id"`
	AuditEntryID    string  `json:"audit_entry_id"`
	StakeholderID   string  `json:"stakeholder_id"`
	Type            string  `json:"notification_type"`
	RoleAtTime      string  `json:"role_at_time_of_notification"`
	ChangeRequestID *string `json:"change_request_id,omitempty"`
	BaselineID      *string `json:"baseline_id,omitempty"`
	StageID         *string `json:"stage_id,omitempty"`
	Comments        string  `json:"comments,omitempty"`
	NotifiedAt      string  `json:"notified_at" format:"date-time"`
}
