package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cst_tracker/backend/internal/db"
	"github.com/cst_tracker/backend/internal/geo"
	"github.com/cst_tracker/backend/internal/models"
	"github.com/cst_tracker/backend/internal/sla"
	"github.com/cst_tracker/backend/internal/workflow"
)

var testClock = time.Date(2025, 3, 5, 10, 30, 0, 0, time.UTC)

// fakeStore is an in-memory implementation of every storage contract the
// lifecycle service depends on. It mimics internal/db's error behavior:
// db.ErrNotFound for missing rows, db.ErrConflict for failed CAS updates.
type fakeStore struct {
	requests  map[string]*models.ServiceRequest
	logs      map[string]*models.PerformanceLog
	agents    []models.Agent
	workloads map[string]int
	citizens  map[string]*models.Citizen
	ratings   map[string]*models.Rating

	updateErr error // injected UpdateRequest failure
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		requests:  map[string]*models.ServiceRequest{},
		logs:      map[string]*models.PerformanceLog{},
		workloads: map[string]int{},
		citizens:  map[string]*models.Citizen{},
		ratings:   map[string]*models.Rating{},
	}
}

func cloneRequest(r *models.ServiceRequest) *models.ServiceRequest {
	c := *r
	return &c
}

func (f *fakeStore) InsertRequest(_ context.Context, req *models.ServiceRequest) error {
	f.requests[req.ID] = cloneRequest(req)
	return nil
}

func (f *fakeStore) GetRequest(_ context.Context, id string) (*models.ServiceRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return cloneRequest(req), nil
}

func (f *fakeStore) GetRequestByIdempotencyKey(_ context.Context, key string) (*models.ServiceRequest, error) {
	for _, req := range f.requests {
		if req.IdempotencyKey == key {
			return cloneRequest(req), nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) UpdateRequest(_ context.Context, req *models.ServiceRequest, expectedStatus string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	stored, ok := f.requests[req.ID]
	if !ok {
		return db.ErrNotFound
	}
	if stored.Status != expectedStatus {
		return db.ErrConflict
	}
	f.requests[req.ID] = cloneRequest(req)
	return nil
}

func (f *fakeStore) CreateLog(_ context.Context, log *models.PerformanceLog) error {
	if _, ok := f.logs[log.RequestID]; ok {
		return nil
	}
	f.logs[log.RequestID] = log
	return nil
}

func (f *fakeStore) AppendEvent(_ context.Context, requestID string, ev models.LogEvent) error {
	log, ok := f.logs[requestID]
	if !ok {
		log = &models.PerformanceLog{RequestID: requestID}
		f.logs[requestID] = log
	}
	log.EventStream = append(log.EventStream, ev)
	return nil
}

func (f *fakeStore) GetLogByRequest(_ context.Context, requestID string) (*models.PerformanceLog, error) {
	log, ok := f.logs[requestID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return log, nil
}

func (f *fakeStore) SetResolutionKPIs(_ context.Context, requestID string, minutes int, state string) error {
	log, ok := f.logs[requestID]
	if !ok {
		log = &models.PerformanceLog{RequestID: requestID}
		f.logs[requestID] = log
	}
	if log.ComputedKPIs.ResolutionMinutes != nil {
		return nil
	}
	log.ComputedKPIs.ResolutionMinutes = &minutes
	log.ComputedKPIs.SLAState = state
	return nil
}

func (f *fakeStore) IncrementEscalation(_ context.Context, requestID string) error {
	log, ok := f.logs[requestID]
	if !ok {
		log = &models.PerformanceLog{RequestID: requestID}
		f.logs[requestID] = log
	}
	log.ComputedKPIs.EscalationCount++
	return nil
}

func (f *fakeStore) SetCitizenFeedback(_ context.Context, requestID string, feedback map[string]any) error {
	log, ok := f.logs[requestID]
	if !ok {
		return db.ErrNotFound
	}
	log.CitizenFeedback = feedback
	return nil
}

func (f *fakeStore) GetAgent(_ context.Context, id string) (*models.Agent, error) {
	for _, a := range f.agents {
		if a.ID == id {
			agent := a
			return &agent, nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) ListActiveAgents(_ context.Context) ([]models.Agent, error) {
	return f.agents, nil
}

func (f *fakeStore) OpenWorkloads(_ context.Context) (map[string]int, error) {
	return f.workloads, nil
}

func (f *fakeStore) GetCitizen(_ context.Context, id string) (*models.Citizen, error) {
	c, ok := f.citizens[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) UpdateAvgRating(_ context.Context, id string, avg float64) error {
	c, ok := f.citizens[id]
	if !ok {
		return db.ErrNotFound
	}
	c.AvgRating = avg
	return nil
}

func (f *fakeStore) IncrementTotalRequests(_ context.Context, id string) error {
	c, ok := f.citizens[id]
	if !ok {
		return db.ErrNotFound
	}
	c.TotalRequests++
	return nil
}

func (f *fakeStore) GetRatingByRequest(_ context.Context, requestID string) (*models.Rating, error) {
	r, ok := f.ratings[requestID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) InsertRating(_ context.Context, r *models.Rating) error {
	if _, ok := f.ratings[r.RequestID]; ok {
		return db.ErrConflict
	}
	f.ratings[r.RequestID] = r
	return nil
}

func (f *fakeStore) ListRatingsByCitizen(_ context.Context, citizenID string) ([]models.Rating, error) {
	var out []models.Rating
	for _, r := range f.ratings {
		if r.CitizenID == citizenID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func newTestService(store *fakeStore) *LifecycleService {
	return &LifecycleService{
		Requests: store,
		Logs:     store,
		Agents:   store,
		Citizens: store,
		Ratings:  store,
		Policies: sla.DefaultPolicies(),
		Zones:    geo.DefaultZones(),
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return testClock },
	}
}

func createPothole(t *testing.T, s *LifecycleService) *models.ServiceRequest {
	t.Helper()
	req, err := s.CreateRequest(context.Background(), CreateRequestInput{
		Title:       "Pothole on Main St",
		Description: "Large pothole near the crossing, unsafe for bikes",
		Category:    "pothole",
		Priority:    "P1",
		Location:    models.Location{Coordinates: []float64{35.915, 31.945}},
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

func driveTo(t *testing.T, s *LifecycleService, id string, states ...string) *models.ServiceRequest {
	t.Helper()
	var req *models.ServiceRequest
	var err error
	for _, state := range states {
		req, err = s.Transition(context.Background(), id, state, models.Actor{ActorType: "staff", ActorID: "op-1"}, "")
		if err != nil {
			t.Fatalf("transition to %s: %v", state, err)
		}
	}
	return req
}

func TestCreateRequest(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store)

	req := createPothole(t, s)

	if req.Status != models.StatusNew {
		t.Fatalf("expected status new, got %s", req.Status)
	}
	if req.Workflow.TransitionRulesVersion != workflow.RulesVersion {
		t.Fatalf("rules version not set")
	}
	if req.SLAPolicy.PolicyID != "SLA-ROAD-P1" {
		t.Fatalf("expected frozen SLA-ROAD-P1, got %s", req.SLAPolicy.PolicyID)
	}
	if req.Location.ZoneID != "ZONE-DT-01" {
		t.Fatalf("expected derived zone ZONE-DT-01, got %s", req.Location.ZoneID)
	}
	if req.RequestCode != "CST-2025-05103000" {
		t.Fatalf("unexpected request code %s", req.RequestCode)
	}
	if !req.Timestamps.CreatedAt.Equal(testClock) {
		t.Fatalf("created_at not stamped from clock")
	}

	log := store.logs[req.ID]
	if log == nil || len(log.EventStream) != 1 || log.EventStream[0].Type != "created" {
		t.Fatalf("expected a single created event, got %+v", log)
	}
	if log.ComputedKPIs.SLATargetHours != 48 {
		t.Fatalf("expected KPI target 48h, got %d", log.ComputedKPIs.SLATargetHours)
	}
}

func TestCreateRequestDefaultsPriority(t *testing.T) {
	s := newTestService(newFakeStore())
	req, err := s.CreateRequest(context.Background(), CreateRequestInput{
		Title:       "Trash missed",
		Description: "Bins on Oak Ave were skipped this week",
		Category:    "missed_trash",
		Location:    models.Location{Coordinates: []float64{35.915, 31.945}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.Priority != "P2" {
		t.Fatalf("expected default P2, got %s", req.Priority)
	}
	if req.SLAPolicy.PolicyID != "SLA-DEFAULT" {
		t.Fatalf("expected fallback policy, got %s", req.SLAPolicy.PolicyID)
	}
}

func TestCreateRequestIdempotency(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store)

	in := CreateRequestInput{
		Title:          "Pothole on Main St",
		Description:    "Large pothole near the crossing, unsafe for bikes",
		Category:       "pothole",
		Priority:       "P1",
		Location:       models.Location{Coordinates: []float64{35.915, 31.945}},
		IdempotencyKey: "key-123",
	}
	first, err := s.CreateRequest(context.Background(), in)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := s.CreateRequest(context.Background(), in)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected idempotent create, got %s and %s", first.ID, second.ID)
	}
	if len(store.requests) != 1 {
		t.Fatalf("expected a single stored request, got %d", len(store.requests))
	}
}

func TestCreateRequestBumpsCitizenCounter(t *testing.T) {
	store := newFakeStore()
	store.citizens["cit-1"] = &models.Citizen{ID: "cit-1"}
	s := newTestService(store)

	_, err := s.CreateRequest(context.Background(), CreateRequestInput{
		Title:       "Leak near school",
		Description: "Water pooling on the sidewalk since yesterday",
		Category:    "water_leak",
		Priority:    "P1",
		Location:    models.Location{Coordinates: []float64{35.915, 31.945}},
		CitizenRef:  &models.CitizenRef{CitizenID: "cit-1", ContactChannel: "app"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if store.citizens["cit-1"].TotalRequests != 1 {
		t.Fatalf("expected total_requests bump")
	}
}

func TestTransitionPersistsAndLogs(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store)
	req := createPothole(t, s)

	got, err := s.Transition(context.Background(), req.ID, models.StatusTriaged, models.Actor{ActorType: "staff", ActorID: "op-1"}, "verified on site")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if got.Status != models.StatusTriaged {
		t.Fatalf("expected triaged, got %s", got.Status)
	}
	if store.requests[req.ID].Status != models.StatusTriaged {
		t.Fatalf("transition not persisted")
	}

	events := store.logs[req.ID].EventStream
	last := events[len(events)-1]
	if last.Type != models.StatusTriaged || last.By.ActorID != "op-1" {
		t.Fatalf("unexpected last event %+v", last)
	}
}

func TestTransitionInvalidDoesNotPersist(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store)
	req := createPothole(t, s)

	_, err := s.Transition(context.Background(), req.ID, models.StatusResolved, models.Actor{}, "")
	var ite *workflow.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if store.requests[req.ID].Status != models.StatusNew {
		t.Fatalf("rejected transition must not persist")
	}
	if len(store.logs[req.ID].EventStream) != 1 {
		t.Fatalf("rejected transition must not log")
	}
}

func TestTransitionNotFound(t *testing.T) {
	s := newTestService(newFakeStore())
	_, err := s.Transition(context.Background(), "missing", models.StatusTriaged, models.Actor{}, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionConcurrentConflict(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store)
	req := createPothole(t, s)

	store.updateErr = db.ErrConflict
	_, err := s.Transition(context.Background(), req.ID, models.StatusTriaged, models.Actor{}, "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestTransitionResolvedFreezesKPIs(t *testing.T) {
	store := newFakeStore()
	store.agents = []models.Agent{{ID: "ag-1", Name: "Road Crew", Skills: []string{"road"}, Active: true}}
	s := newTestService(store)
	req := createPothole(t, s)

	driveTo(t, s, req.ID, models.StatusTriaged)
	if _, err := s.AutoAssign(context.Background(), req.ID); err != nil {
		t.Fatalf("auto-assign: %v", err)
	}
	driveTo(t, s, req.ID, models.StatusInProgress, models.StatusResolved)

	kpis := store.logs[req.ID].ComputedKPIs
	if kpis.ResolutionMinutes == nil || *kpis.ResolutionMinutes != 0 {
		t.Fatalf("expected frozen resolution minutes, got %v", kpis.ResolutionMinutes)
	}
	if kpis.SLAState != models.SLAOnTrack {
		t.Fatalf("expected on_track, got %s", kpis.SLAState)
	}
}

func TestAutoAssignFromTriaged(t *testing.T) {
	store := newFakeStore()
	store.agents = []models.Agent{
		{ID: "busy", Name: "Crew A", Skills: []string{"road"}, CoverageZones: []string{"ZONE-DT-01"}, Active: true},
		{ID: "idle", Name: "Crew B", Skills: []string{"road"}, CoverageZones: []string{"ZONE-DT-01"}, Active: true},
	}
	store.workloads = map[string]int{"busy": 3}
	s := newTestService(store)
	req := createPothole(t, s)
	driveTo(t, s, req.ID, models.StatusTriaged)

	res, err := s.AutoAssign(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("auto-assign: %v", err)
	}
	if res.AgentID != "idle" || res.Status != models.StatusAssigned {
		t.Fatalf("unexpected result %+v", res)
	}

	stored := store.requests[req.ID]
	if stored.Assignment.AssignedAgentID != "idle" {
		t.Fatalf("assignment not persisted")
	}
	if len(stored.Assignment.AutoAssignCandidateAgents) != 2 {
		t.Fatalf("expected both candidates recorded, got %v", stored.Assignment.AutoAssignCandidateAgents)
	}
	if !strings.HasPrefix(stored.Assignment.AssignmentPolicy, "auto(") {
		t.Fatalf("unexpected policy %s", stored.Assignment.AssignmentPolicy)
	}
	if stored.Timestamps.AssignedAt == nil {
		t.Fatalf("assigned_at not stamped")
	}

	events := store.logs[req.ID].EventStream
	last := events[len(events)-1]
	if last.Type != models.StatusAssigned || last.Meta["agent_id"] != "idle" {
		t.Fatalf("unexpected assignment event %+v", last)
	}
}

func TestAutoAssignFromNewRejected(t *testing.T) {
	store := newFakeStore()
	store.agents = []models.Agent{{ID: "ag-1", Skills: []string{"road"}, Active: true}}
	s := newTestService(store)
	req := createPothole(t, s)

	_, err := s.AutoAssign(context.Background(), req.ID)
	var ite *workflow.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError from new, got %v", err)
	}
}

func TestAutoAssignDoesNotRegressStatus(t *testing.T) {
	store := newFakeStore()
	store.agents = []models.Agent{
		{ID: "ag-1", Name: "Crew A", Skills: []string{"road"}, Active: true},
		{ID: "ag-2", Name: "Crew B", Skills: []string{"road"}, Active: true},
	}
	s := newTestService(store)
	req := createPothole(t, s)
	driveTo(t, s, req.ID, models.StatusTriaged)
	if _, err := s.AutoAssign(context.Background(), req.ID); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	driveTo(t, s, req.ID, models.StatusInProgress)

	store.workloads = map[string]int{"ag-1": 5}
	res, err := s.AutoAssign(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if res.Status != models.StatusInProgress {
		t.Fatalf("status must not regress, got %s", res.Status)
	}
	if store.requests[req.ID].Assignment.AssignedAgentID != "ag-2" {
		t.Fatalf("expected reassignment to ag-2")
	}
}

func TestAutoAssignNoAgents(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store)
	req := createPothole(t, s)
	driveTo(t, s, req.ID, models.StatusTriaged)

	_, err := s.AutoAssign(context.Background(), req.ID)
	if !errors.Is(err, ErrNoAgentAvailable) {
		t.Fatalf("expected ErrNoAgentAvailable, got %v", err)
	}
}

func TestManualAssign(t *testing.T) {
	store := newFakeStore()
	store.agents = []models.Agent{{ID: "ag-1", Name: "Crew A", Skills: []string{"water"}, Active: true}}
	s := newTestService(store)
	req := createPothole(t, s)
	driveTo(t, s, req.ID, models.StatusTriaged)

	got, err := s.ManualAssign(context.Background(), req.ID, "ag-1", models.Actor{ActorType: "staff", ActorID: "op-1"})
	if err != nil {
		t.Fatalf("manual assign: %v", err)
	}
	if got.Assignment.AssignedAgentID != "ag-1" || got.Assignment.AssignmentPolicy != "manual" {
		t.Fatalf("unexpected assignment %+v", got.Assignment)
	}
}

func TestManualAssignUnknownAgent(t *testing.T) {
	s := newTestService(newFakeStore())
	_, err := s.ManualAssign(context.Background(), "req-1", "ghost", models.Actor{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func assignedRequest(t *testing.T, store *fakeStore, s *LifecycleService) *models.ServiceRequest {
	t.Helper()
	store.agents = append(store.agents, models.Agent{ID: "ag-1", Name: "Crew A", Skills: []string{"road"}, Active: true})
	req := createPothole(t, s)
	driveTo(t, s, req.ID, models.StatusTriaged)
	if _, err := s.AutoAssign(context.Background(), req.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	return req
}

func TestMilestoneArrivedIsAuditOnly(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store)
	req := assignedRequest(t, store, s)

	if err := s.RecordMilestone(context.Background(), req.ID, "ag-1", MilestoneArrived); err != nil {
		t.Fatalf("arrived: %v", err)
	}
	if store.requests[req.ID].Status != models.StatusAssigned {
		t.Fatalf("arrived must not change status")
	}
	events := store.logs[req.ID].EventStream
	if events[len(events)-1].Type != "arrived" {
		t.Fatalf("expected arrived event")
	}
}

func TestMilestoneWorkflowProgression(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store)
	req := assignedRequest(t, store, s)

	if err := s.RecordMilestone(context.Background(), req.ID, "ag-1", MilestoneWorkStarted); err != nil {
		t.Fatalf("work_started: %v", err)
	}
	if store.requests[req.ID].Status != models.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", store.requests[req.ID].Status)
	}

	if err := s.RecordMilestone(context.Background(), req.ID, "ag-1", MilestoneResolved); err != nil {
		t.Fatalf("resolved: %v", err)
	}
	if store.requests[req.ID].Status != models.StatusResolved {
		t.Fatalf("expected resolved, got %s", store.requests[req.ID].Status)
	}
	if store.logs[req.ID].ComputedKPIs.ResolutionMinutes == nil {
		t.Fatalf("expected resolution KPIs frozen")
	}

	events := store.logs[req.ID].EventStream
	last := events[len(events)-1]
	if last.Meta["milestone"] != MilestoneResolved {
		t.Fatalf("expected milestone meta, got %+v", last.Meta)
	}
}

func TestMilestoneOutOfOrder(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store)
	req := assignedRequest(t, store, s)

	// resolved straight from assigned skips in_progress.
	err := s.RecordMilestone(context.Background(), req.ID, "ag-1", MilestoneResolved)
	var ite *workflow.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestMilestoneWrongAgent(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store)
	req := assignedRequest(t, store, s)

	err := s.RecordMilestone(context.Background(), req.ID, "someone-else", MilestoneWorkStarted)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestMilestoneUnknownType(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store)
	req := assignedRequest(t, store, s)

	err := s.RecordMilestone(context.Background(), req.ID, "ag-1", "coffee_break")
	if !errors.Is(err, ErrInvalidMilestone) {
		t.Fatalf("expected ErrInvalidMilestone, got %v", err)
	}
}

func TestEscalate(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store)
	req := createPothole(t, s)

	res, err := s.Escalate(context.Background(), req.ID, "no movement for 3 days", "supervisor-7", "")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if res.EscalationLevel != "manager" {
		t.Fatalf("expected default level manager, got %s", res.EscalationLevel)
	}

	stored := store.requests[req.ID]
	if stored.Status != models.StatusNew {
		t.Fatalf("escalation must not change status")
	}
	want := "[ESCALATED to manager] no movement for 3 days - By: supervisor-7"
	if len(stored.InternalNotes) != 1 || stored.InternalNotes[0] != want {
		t.Fatalf("unexpected notes %v", stored.InternalNotes)
	}
	if store.logs[req.ID].ComputedKPIs.EscalationCount != 1 {
		t.Fatalf("escalation counter not bumped")
	}
	events := store.logs[req.ID].EventStream
	if events[len(events)-1].Type != "manual_escalation" {
		t.Fatalf("expected manual_escalation event")
	}
}

func TestEscalateSeedsMissingLog(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store)
	req := createPothole(t, s)

	// Event appends are best effort, so the log row may not exist yet.
	// The first escalation must still count as one.
	delete(store.logs, req.ID)

	if _, err := s.Escalate(context.Background(), req.ID, "stalled", "supervisor-7", ""); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	log, ok := store.logs[req.ID]
	if !ok {
		t.Fatalf("expected a log row to be created")
	}
	if log.ComputedKPIs.EscalationCount != 1 {
		t.Fatalf("expected escalation count 1, got %d", log.ComputedKPIs.EscalationCount)
	}
}

func resolvedRequest(t *testing.T, store *fakeStore, s *LifecycleService) *models.ServiceRequest {
	t.Helper()
	req := assignedRequest(t, store, s)
	driveTo(t, s, req.ID, models.StatusInProgress, models.StatusResolved)
	return req
}

func TestRate(t *testing.T) {
	store := newFakeStore()
	store.citizens["cit-1"] = &models.Citizen{ID: "cit-1"}
	s := newTestService(store)
	req := resolvedRequest(t, store, s)

	rating, err := s.Rate(context.Background(), req.ID, "cit-1", 4, "fixed_quickly", "good job")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rating.Stars != 4 {
		t.Fatalf("unexpected rating %+v", rating)
	}
	if store.citizens["cit-1"].AvgRating != 4.0 {
		t.Fatalf("expected avg 4.0, got %f", store.citizens["cit-1"].AvgRating)
	}
	if store.logs[req.ID].CitizenFeedback["stars"] != 4 {
		t.Fatalf("feedback not written to log")
	}
}

func TestRateRecomputesAverage(t *testing.T) {
	store := newFakeStore()
	store.citizens["cit-1"] = &models.Citizen{ID: "cit-1"}
	store.ratings["other-req"] = &models.Rating{RequestID: "other-req", CitizenID: "cit-1", Stars: 2}
	s := newTestService(store)
	req := resolvedRequest(t, store, s)

	if _, err := s.Rate(context.Background(), req.ID, "cit-1", 4, "", ""); err != nil {
		t.Fatalf("rate: %v", err)
	}
	if store.citizens["cit-1"].AvgRating != 3.0 {
		t.Fatalf("expected avg 3.0, got %f", store.citizens["cit-1"].AvgRating)
	}
}

func TestRateValidation(t *testing.T) {
	store := newFakeStore()
	store.citizens["cit-1"] = &models.Citizen{ID: "cit-1"}
	s := newTestService(store)
	req := resolvedRequest(t, store, s)

	if _, err := s.Rate(context.Background(), req.ID, "cit-1", 0, "", ""); !errors.Is(err, ErrInvalidStars) {
		t.Fatalf("expected ErrInvalidStars, got %v", err)
	}
	if _, err := s.Rate(context.Background(), req.ID, "cit-1", 6, "", ""); !errors.Is(err, ErrInvalidStars) {
		t.Fatalf("expected ErrInvalidStars, got %v", err)
	}
}

func TestRateRequiresResolvedStatus(t *testing.T) {
	store := newFakeStore()
	store.citizens["cit-1"] = &models.Citizen{ID: "cit-1"}
	s := newTestService(store)
	req := createPothole(t, s)

	_, err := s.Rate(context.Background(), req.ID, "cit-1", 5, "", "")
	if !errors.Is(err, ErrRequestNotResolved) {
		t.Fatalf("expected ErrRequestNotResolved, got %v", err)
	}
}

func TestRateOnlyOnce(t *testing.T) {
	store := newFakeStore()
	store.citizens["cit-1"] = &models.Citizen{ID: "cit-1"}
	s := newTestService(store)
	req := resolvedRequest(t, store, s)

	if _, err := s.Rate(context.Background(), req.ID, "cit-1", 4, "", ""); err != nil {
		t.Fatalf("first rate: %v", err)
	}
	_, err := s.Rate(context.Background(), req.ID, "cit-1", 5, "", "")
	if !errors.Is(err, ErrAlreadyRated) {
		t.Fatalf("expected ErrAlreadyRated, got %v", err)
	}
}

func TestEvaluateSLAUsesClock(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store)
	req := createPothole(t, s)

	// Zero instant falls back to the injected clock: elapsed 0, on track.
	eval, err := s.EvaluateSLA(context.Background(), req.ID, time.Time{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if eval.State != models.SLAOnTrack {
		t.Fatalf("expected on_track, got %s", eval.State)
	}

	eval, err = s.EvaluateSLA(context.Background(), req.ID, testClock.Add(61*time.Hour))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if eval.State != models.SLABreached {
		t.Fatalf("expected breached, got %s", eval.State)
	}
}

func TestRequestCodeFormat(t *testing.T) {
	code := requestCode(time.Date(2025, 12, 31, 23, 59, 58, 0, time.UTC))
	if code != "CST-2025-31235958" {
		t.Fatalf("unexpected code %s", code)
	}
}
