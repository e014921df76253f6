package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cst_tracker/backend/internal/dispatch"
	"github.com/cst_tracker/backend/internal/geo"
	"github.com/cst_tracker/backend/internal/models"
	"github.com/cst_tracker/backend/internal/sla"
	"github.com/cst_tracker/backend/internal/workflow"
)

// LifecycleService is the request lifecycle orchestrator: it composes the
// workflow state machine, SLA resolver/evaluator, dispatch engine and event
// log so that status, workflow metadata, timestamps and the audit trail stay
// consistent across every operation.
type LifecycleService struct {
	Requests RequestStore
	Logs     LogStore
	Agents   AgentDirectory
	Citizens CitizenStore
	Ratings  RatingStore
	Policies *sla.PolicyTable
	Zones    geo.ZoneTable
	Logger   zerolog.Logger
	Now      func() time.Time // injectable clock; defaults to time.Now
}

func (s *LifecycleService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

type CreateRequestInput struct {
	Title          string
	Description    string
	Category       string
	SubCategory    string
	Priority       string
	Tags           []string
	Location       models.Location
	Address        string
	CitizenRef     *models.CitizenRef
	Evidence       []models.Evidence
	IdempotencyKey string
}

// CreateRequest registers a new service request: request code, initial
// workflow state, frozen SLA policy, zone derivation and the first log event.
// A repeated idempotency key returns the previously created request as-is.
func (s *LifecycleService) CreateRequest(ctx context.Context, in CreateRequestInput) (*models.ServiceRequest, error) {
	if in.IdempotencyKey != "" {
		existing, err := s.Requests.GetRequestByIdempotencyKey(ctx, in.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if mapped := mapStoreErr(err); !errors.Is(mapped, ErrNotFound) {
			return nil, mapped
		}
	}

	now := s.now()
	priority := in.Priority
	if priority == "" {
		priority = "P2"
	}

	loc := in.Location
	if loc.Type == "" {
		loc.Type = "Point"
	}
	if loc.ZoneID == "" && len(loc.Coordinates) == 2 {
		loc.ZoneID = s.Zones.Lookup(loc.Lat(), loc.Lng())
	}

	policy := s.Policies.Resolve(in.Category, priority)

	req := &models.ServiceRequest{
		ID:          uuid.NewString(),
		RequestCode: requestCode(now),
		CitizenRef:  in.CitizenRef,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		SubCategory: in.SubCategory,
		Tags:        in.Tags,
		Status:      models.StatusNew,
		Priority:    priority,
		Workflow: models.WorkflowState{
			CurrentState:           models.StatusNew,
			AllowedNext:            workflow.AllowedNext(models.StatusNew),
			TransitionRulesVersion: workflow.RulesVersion,
		},
		SLAPolicy: policy,
		Location:  loc,
		Address:   in.Address,
		Timestamps: models.Timestamps{
			CreatedAt: now,
			UpdatedAt: now,
		},
		Assignment: models.Assignment{
			AutoAssignCandidateAgents: []string{},
			AssignmentPolicy:          "zone+skill+workload",
		},
		Evidence:       in.Evidence,
		InternalNotes:  []string{},
		Duplicates:     models.Duplicates{IsMaster: true, LinkedDuplicates: []string{}},
		IdempotencyKey: in.IdempotencyKey,
	}
	if req.Tags == nil {
		req.Tags = []string{}
	}
	if req.Evidence == nil {
		req.Evidence = []models.Evidence{}
	}

	if err := s.Requests.InsertRequest(ctx, req); err != nil {
		return nil, mapStoreErr(err)
	}

	actorID := "anonymous"
	channel := "web"
	if in.CitizenRef != nil {
		if in.CitizenRef.CitizenID != "" {
			actorID = in.CitizenRef.CitizenID
		}
		if in.CitizenRef.ContactChannel != "" {
			channel = in.CitizenRef.ContactChannel
		}
	}
	log := &models.PerformanceLog{
		RequestID: req.ID,
		EventStream: []models.LogEvent{{
			Type: "created",
			By:   models.Actor{ActorType: "citizen", ActorID: actorID},
			At:   now,
			Meta: map[string]any{"channel": channel, "category": req.Category},
		}},
		ComputedKPIs: models.ComputedKPIs{
			SLATargetHours: policy.TargetHours,
			SLAState:       models.SLAOnTrack,
		},
		CreatedAt: now,
	}
	if err := s.Logs.CreateLog(ctx, log); err != nil {
		s.Logger.Warn().Err(err).Str("request_id", req.ID).Msg("performance log create failed")
	}

	if in.CitizenRef != nil && in.CitizenRef.CitizenID != "" {
		if err := s.Citizens.IncrementTotalRequests(ctx, in.CitizenRef.CitizenID); err != nil {
			s.Logger.Warn().Err(err).Str("citizen_id", in.CitizenRef.CitizenID).Msg("total_requests bump failed")
		}
	}

	return req, nil
}

// Transition moves a request to the target state through the workflow state
// machine. This is the only path that changes status.
func (s *LifecycleService) Transition(ctx context.Context, requestID, target string, actor models.Actor, notes string) (*models.ServiceRequest, error) {
	req, err := s.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	now := s.now()
	prior := req.Status
	ev, err := workflow.Apply(req, target, actor, notes, now)
	if err != nil {
		return nil, err
	}

	if err := s.Requests.UpdateRequest(ctx, req, prior); err != nil {
		return nil, mapStoreErr(err)
	}
	s.appendEvent(ctx, req.ID, ev)

	if target == models.StatusResolved {
		s.recordResolution(ctx, req, now)
	}
	return req, nil
}

// AssignResult is the outcome of an assignment operation.
type AssignResult struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Status    string `json:"status"`
}

// AutoAssign selects the best agent for the request and applies the
// assignment. The selection itself is pure (internal/dispatch); this method
// owns the side effects: assignment fields, the assigned_at stamp, the
// workflow transition when the request still precedes assigned, and the log
// event. A request already past assigned keeps its status (no regression).
func (s *LifecycleService) AutoAssign(ctx context.Context, requestID string) (*AssignResult, error) {
	req, err := s.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	candidates, err := s.Agents.ListActiveAgents(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	workloads, err := s.Agents.OpenWorkloads(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	now := s.now()
	sel, err := dispatch.SelectAgent(req, candidates, workloads, now)
	if err != nil {
		return nil, err
	}

	pool := make([]string, 0, len(sel.Pool))
	for _, a := range sel.Pool {
		pool = append(pool, a.ID)
	}

	actor := models.Actor{ActorType: "dispatcher", ActorID: "auto"}
	res, err := s.applyAssignment(ctx, req, sel.Agent, pool, sel.Policy, actor, now)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ManualAssign assigns a specific agent, bypassing the selection algorithm
// but not the workflow rules.
func (s *LifecycleService) ManualAssign(ctx context.Context, requestID, agentID string, actor models.Actor) (*models.ServiceRequest, error) {
	agent, err := s.Agents.GetAgent(ctx, agentID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	req, err := s.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if actor.ActorType == "" {
		actor = models.Actor{ActorType: "dispatcher", ActorID: "manual"}
	}
	if _, err := s.applyAssignment(ctx, req, *agent, []string{}, "manual", actor, s.now()); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *LifecycleService) applyAssignment(ctx context.Context, req *models.ServiceRequest, agent models.Agent, pool []string, policy string, actor models.Actor, now time.Time) (*AssignResult, error) {
	prior := req.Status

	var ev models.LogEvent
	if workflow.Precedes(req.Status, models.StatusAssigned) {
		applied, err := workflow.Apply(req, models.StatusAssigned, actor, "", now)
		if err != nil {
			return nil, err
		}
		ev = applied
	} else {
		// Already assigned or further along: only the assignment fields
		// change, status stays put.
		if req.Timestamps.AssignedAt == nil {
			t := now
			req.Timestamps.AssignedAt = &t
		}
		req.Timestamps.UpdatedAt = now
		ev = models.LogEvent{Type: models.StatusAssigned, By: actor, At: now}
	}
	ev.Meta = map[string]any{"agent_id": agent.ID, "policy": policy}

	req.Assignment = models.Assignment{
		AssignedAgentID:           agent.ID,
		AutoAssignCandidateAgents: pool,
		AssignmentPolicy:          policy,
	}

	if err := s.Requests.UpdateRequest(ctx, req, prior); err != nil {
		return nil, mapStoreErr(err)
	}
	s.appendEvent(ctx, req.ID, ev)

	return &AssignResult{AgentID: agent.ID, AgentName: agent.Name, Status: req.Status}, nil
}

// Milestone types agents can report from the field.
const (
	MilestoneArrived     = "arrived"
	MilestoneWorkStarted = "work_started"
	MilestoneResolved    = "resolved"
)

// RecordMilestone applies a field report from the assigned agent. arrived is
// audit-only; work_started and resolved run the corresponding workflow
// transitions, so an out-of-order report fails the same way a direct
// transition would.
func (s *LifecycleService) RecordMilestone(ctx context.Context, requestID, agentID, milestone string) error {
	switch milestone {
	case MilestoneArrived, MilestoneWorkStarted, MilestoneResolved:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMilestone, milestone)
	}

	req, err := s.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return mapStoreErr(err)
	}
	if req.Assignment.AssignedAgentID == "" || req.Assignment.AssignedAgentID != agentID {
		return ErrForbidden
	}

	now := s.now()
	actor := models.Actor{ActorType: "agent", ActorID: agentID}
	prior := req.Status

	switch milestone {
	case MilestoneArrived:
		req.Timestamps.UpdatedAt = now
		if err := s.Requests.UpdateRequest(ctx, req, prior); err != nil {
			return mapStoreErr(err)
		}
		s.appendEvent(ctx, req.ID, models.LogEvent{Type: "arrived", By: actor, At: now})
		return nil

	case MilestoneWorkStarted:
		ev, err := workflow.Apply(req, models.StatusInProgress, actor, "", now)
		if err != nil {
			return err
		}
		ev.Meta = map[string]any{"milestone": MilestoneWorkStarted}
		if err := s.Requests.UpdateRequest(ctx, req, prior); err != nil {
			return mapStoreErr(err)
		}
		s.appendEvent(ctx, req.ID, ev)
		return nil

	default: // MilestoneResolved
		ev, err := workflow.Apply(req, models.StatusResolved, actor, "", now)
		if err != nil {
			return err
		}
		ev.Meta = map[string]any{"milestone": MilestoneResolved}
		if err := s.Requests.UpdateRequest(ctx, req, prior); err != nil {
			return mapStoreErr(err)
		}
		s.appendEvent(ctx, req.ID, ev)
		s.recordResolution(ctx, req, now)
		return nil
	}
}

// EscalateResult acknowledges a manual escalation.
type EscalateResult struct {
	RequestID       string    `json:"request_id"`
	EscalationLevel string    `json:"escalation_level"`
	EscalatedAt     time.Time `json:"escalated_at"`
}

// Escalate records a manual escalation: internal note, audit event and
// counter bump. Status never changes.
func (s *LifecycleService) Escalate(ctx context.Context, requestID, reason, escalatedBy, level string) (*EscalateResult, error) {
	req, err := s.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if level == "" {
		level = "manager"
	}

	now := s.now()
	req.InternalNotes = append(req.InternalNotes, fmt.Sprintf("[ESCALATED to %s] %s - By: %s", level, reason, escalatedBy))
	req.Timestamps.UpdatedAt = now
	if err := s.Requests.UpdateRequest(ctx, req, req.Status); err != nil {
		return nil, mapStoreErr(err)
	}

	s.appendEvent(ctx, req.ID, models.LogEvent{
		Type: "manual_escalation",
		By:   models.Actor{ActorType: "staff", ActorID: escalatedBy},
		At:   now,
		Meta: map[string]any{"reason": reason, "escalation_level": level},
	})
	if err := s.Logs.IncrementEscalation(ctx, req.ID); err != nil {
		s.Logger.Warn().Err(err).Str("request_id", req.ID).Msg("escalation counter bump failed")
	}

	return &EscalateResult{RequestID: req.ID, EscalationLevel: level, EscalatedAt: now}, nil
}

// Rate records the single allowed rating for a resolved or closed request and
// recomputes the citizen's average from all their ratings.
func (s *LifecycleService) Rate(ctx context.Context, requestID, citizenID string, stars int, reasonCode, comment string) (*models.Rating, error) {
	if stars < 1 || stars > 5 {
		return nil, ErrInvalidStars
	}

	req, err := s.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if req.Status != models.StatusResolved && req.Status != models.StatusClosed {
		return nil, ErrRequestNotResolved
	}

	if _, err := s.Ratings.GetRatingByRequest(ctx, requestID); err == nil {
		return nil, ErrAlreadyRated
	} else if mapped := mapStoreErr(err); !errors.Is(mapped, ErrNotFound) {
		return nil, mapped
	}

	if _, err := s.Citizens.GetCitizen(ctx, citizenID); err != nil {
		return nil, mapStoreErr(err)
	}

	rating := &models.Rating{
		RequestID:  requestID,
		CitizenID:  citizenID,
		Stars:      stars,
		ReasonCode: reasonCode,
		Comment:    comment,
		CreatedAt:  s.now(),
	}
	if err := s.Ratings.InsertRating(ctx, rating); err != nil {
		if mapped := mapStoreErr(err); errors.Is(mapped, ErrConflict) {
			// Lost a race with another rating for the same request.
			return nil, ErrAlreadyRated
		} else {
			return nil, mapped
		}
	}

	ratings, err := s.Ratings.ListRatingsByCitizen(ctx, citizenID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	var sum int
	for _, r := range ratings {
		sum += r.Stars
	}
	avg := 0.0
	if len(ratings) > 0 {
		avg = float64(sum) / float64(len(ratings))
	}
	if err := s.Citizens.UpdateAvgRating(ctx, citizenID, avg); err != nil {
		return nil, mapStoreErr(err)
	}

	if err := s.Logs.SetCitizenFeedback(ctx, requestID, map[string]any{
		"stars":       stars,
		"reason_code": reasonCode,
		"comment":     comment,
	}); err != nil {
		s.Logger.Warn().Err(err).Str("request_id", requestID).Msg("citizen feedback write failed")
	}

	return rating, nil
}

// EvaluateSLA computes the request's SLA state at the given instant without
// mutating anything. A zero now means the current time.
func (s *LifecycleService) EvaluateSLA(ctx context.Context, requestID string, now time.Time) (sla.Evaluation, error) {
	req, err := s.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return sla.Evaluation{}, mapStoreErr(err)
	}
	if now.IsZero() {
		now = s.now()
	}
	return sla.Evaluate(req, now), nil
}

// recordResolution freezes the resolution KPIs on first entry into resolved.
func (s *LifecycleService) recordResolution(ctx context.Context, req *models.ServiceRequest, now time.Time) {
	eval := sla.Evaluate(req, now)
	if eval.ResolutionMinutes == nil {
		return
	}
	if err := s.Logs.SetResolutionKPIs(ctx, req.ID, *eval.ResolutionMinutes, eval.State); err != nil {
		s.Logger.Warn().Err(err).Str("request_id", req.ID).Msg("resolution KPI write failed")
	}
}

// appendEvent is fire-and-forget per the event log contract: a failed append
// is logged, never failing the already-persisted operation.
func (s *LifecycleService) appendEvent(ctx context.Context, requestID string, ev models.LogEvent) {
	if err := s.Logs.AppendEvent(ctx, requestID, ev); err != nil {
		s.Logger.Warn().Err(err).Str("request_id", requestID).Str("event", ev.Type).Msg("event append failed")
	}
}

// requestCode builds the public CST-<year>-<suffix> identifier, the suffix
// being the trailing eight digits of the creation timestamp.
func requestCode(now time.Time) string {
	ts := now.UTC().Format("20060102150405")
	return fmt.Sprintf("CST-%s-%s", now.UTC().Format("2006"), ts[len(ts)-8:])
}
