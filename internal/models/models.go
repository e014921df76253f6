package models

import "time"

// Request statuses. Status must always mirror Workflow.CurrentState;
// transitions go through the workflow package.
const (
	StatusNew        = "new"
	StatusTriaged    = "triaged"
	StatusAssigned   = "assigned"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
)

// SLA states reported by the evaluator.
const (
	SLAOnTrack  = "on_track"
	SLAAtRisk   = "at_risk"
	SLABreached = "breached"
)

type Location struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"` // [longitude, latitude]
	AddressHint string    `json:"address_hint,omitempty"`
	ZoneID      string    `json:"zone_id,omitempty"`
}

// Lng and Lat read the GeoJSON coordinate pair; both return 0 when the
// pair is malformed.
func (l Location) Lng() float64 {
	if len(l.Coordinates) < 2 {
		return 0
	}
	return l.Coordinates[0]
}

func (l Location) Lat() float64 {
	if len(l.Coordinates) < 2 {
		return 0
	}
	return l.Coordinates[1]
}

type WorkflowState struct {
	CurrentState           string   `json:"current_state"`
	AllowedNext            []string `json:"allowed_next"`
	TransitionRulesVersion string   `json:"transition_rules_version"`
}

type EscalationStep struct {
	AfterHours int    `json:"after_hours"`
	Action     string `json:"action"`
}

type SLAPolicy struct {
	PolicyID             string           `json:"policy_id"`
	TargetHours          int              `json:"target_hours"`
	BreachThresholdHours int              `json:"breach_threshold_hours"`
	EscalationSteps      []EscalationStep `json:"escalation_steps"`
}

type Timestamps struct {
	CreatedAt  time.Time  `json:"created_at"`
	TriagedAt  *time.Time `json:"triaged_at"`
	AssignedAt *time.Time `json:"assigned_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
	ClosedAt   *time.Time `json:"closed_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type Assignment struct {
	AssignedAgentID           string   `json:"assigned_agent_id,omitempty"`
	AutoAssignCandidateAgents []string `json:"auto_assign_candidate_agents"`
	AssignmentPolicy          string   `json:"assignment_policy,omitempty"`
}

type Evidence struct {
	Type       string    `json:"type"` // photo, video, document
	URL        string    `json:"url"`
	SHA256     string    `json:"sha256,omitempty"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type Duplicates struct {
	IsMaster         bool     `json:"is_master"`
	MasterRequestID  string   `json:"master_request_id,omitempty"`
	LinkedDuplicates []string `json:"linked_duplicates"`
}

type CitizenRef struct {
	CitizenID      string `json:"citizen_id,omitempty"`
	Anonymous      bool   `json:"anonymous"`
	ContactChannel string `json:"contact_channel,omitempty"`
}

// ServiceRequest is the central entity. RequestCode is the human-readable
// CST-<year>-<suffix> identifier; ID is the storage key.
type ServiceRequest struct {
	ID             string        `json:"id"`
	RequestCode    string        `json:"request_id"`
	CitizenRef     *CitizenRef   `json:"citizen_ref,omitempty"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Category       string        `json:"category"`
	SubCategory    string        `json:"sub_category,omitempty"`
	Tags           []string      `json:"tags"`
	Status         string        `json:"status"`
	Priority       string        `json:"priority"` // P0..P3
	Workflow       WorkflowState `json:"workflow"`
	SLAPolicy      SLAPolicy     `json:"sla_policy"`
	Location       Location      `json:"location"`
	Address        string        `json:"address,omitempty"`
	Timestamps     Timestamps    `json:"timestamps"`
	Assignment     Assignment    `json:"assignment"`
	Evidence       []Evidence    `json:"evidence"`
	InternalNotes  []string      `json:"internal_notes"`
	Duplicates     Duplicates    `json:"duplicates"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

type Actor struct {
	ActorType string `json:"actor_type"`
	ActorID   string `json:"actor_id"`
}

type LogEvent struct {
	Type string         `json:"type"`
	By   Actor          `json:"by"`
	At   time.Time      `json:"at"`
	Meta map[string]any `json:"meta,omitempty"`
}

type ComputedKPIs struct {
	ResolutionMinutes *int   `json:"resolution_minutes"`
	SLATargetHours    int    `json:"sla_target_hours"`
	SLAState          string `json:"sla_state"`
	EscalationCount   int    `json:"escalation_count"`
}

type PerformanceLog struct {
	RequestID       string         `json:"request_id"`
	EventStream     []LogEvent     `json:"event_stream"`
	ComputedKPIs    ComputedKPIs   `json:"computed_kpis"`
	CitizenFeedback map[string]any `json:"citizen_feedback,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// ScheduleWindow is a weekly on-shift window in UTC. Start and End are
// "HH:MM" clock strings, bounds inclusive.
type ScheduleWindow struct {
	Day   string `json:"day"` // mon..sun
	Start string `json:"start"`
	End   string `json:"end"`
}

type Agent struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Type          string           `json:"type"` // agent, team
	Skills        []string         `json:"skills"`
	CoverageZones []string         `json:"coverage_zones"`
	BaseLocation  *Location        `json:"base_location,omitempty"`
	Schedule      []ScheduleWindow `json:"schedule"`
	Active        bool             `json:"active"`
	CreatedAt     time.Time        `json:"created_at"`
}

type Citizen struct {
	ID                       string     `json:"id"`
	FullName                 string     `json:"full_name"`
	Email                    string     `json:"email,omitempty"`
	Phone                    string     `json:"phone,omitempty"`
	Neighborhood             string     `json:"neighborhood,omitempty"`
	City                     string     `json:"city,omitempty"`
	ZoneID                   string     `json:"zone_id,omitempty"`
	VerificationState        string     `json:"verification_state"`
	VerificationToken        string     `json:"-"`
	VerificationTokenExpires *time.Time `json:"-"`
	AvgRating                float64    `json:"avg_rating"`
	TotalRequests            int        `json:"total_requests"`
	CreatedAt                time.Time  `json:"created_at"`
}

type Rating struct {
	RequestID  string    `json:"request_id"`
	CitizenID  string    `json:"citizen_id"`
	Stars      int       `json:"stars"`
	ReasonCode string    `json:"reason_code,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Department  string    `json:"department,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}
