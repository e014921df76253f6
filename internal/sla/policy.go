package sla

import (
	"strings"

	"github.com/cst_tracker/backend/internal/models"
)

// Key identifies a policy table entry.
type Key struct {
	Category string
	Priority string
}

// PolicyTable maps (category, priority) to SLA targets. The table is
// immutable after construction; requests freeze their resolved policy at
// creation, so later table changes never touch existing requests.
type PolicyTable struct {
	entries  map[Key]models.SLAPolicy
	fallback models.SLAPolicy
}

// NewPolicyTable builds a resolver from explicit entries plus a fallback for
// unmapped (category, priority) pairs. Category keys are lowercased.
func NewPolicyTable(entries map[Key]models.SLAPolicy, fallback models.SLAPolicy) *PolicyTable {
	normalized := make(map[Key]models.SLAPolicy, len(entries))
	for k, v := range entries {
		k.Category = strings.ToLower(strings.TrimSpace(k.Category))
		normalized[k] = v
	}
	return &PolicyTable{entries: normalized, fallback: fallback}
}

// DefaultPolicies is the production table.
func DefaultPolicies() *PolicyTable {
	return NewPolicyTable(map[Key]models.SLAPolicy{
		{"pothole", "P1"}:     {PolicyID: "SLA-ROAD-P1", TargetHours: 48, BreachThresholdHours: 60},
		{"pothole", "P2"}:     {PolicyID: "SLA-ROAD-P2", TargetHours: 72, BreachThresholdHours: 96},
		{"water_leak", "P1"}:  {PolicyID: "SLA-WATER-P1", TargetHours: 24, BreachThresholdHours: 36},
		{"streetlight", "P2"}: {PolicyID: "SLA-LIGHT-P2", TargetHours: 120, BreachThresholdHours: 144},
	}, models.SLAPolicy{PolicyID: "SLA-DEFAULT", TargetHours: 96, BreachThresholdHours: 120})
}

// Resolve returns the policy for a category/priority pair, with the derived
// escalation steps attached: step 1 at 75% of target (notify_dispatcher),
// step 2 at the breach threshold (notify_manager).
func (t *PolicyTable) Resolve(category, priority string) models.SLAPolicy {
	key := Key{Category: strings.ToLower(strings.TrimSpace(category)), Priority: priority}
	policy, ok := t.entries[key]
	if !ok {
		policy = t.fallback
	}
	policy.EscalationSteps = []models.EscalationStep{
		{AfterHours: policy.TargetHours * 3 / 4, Action: "notify_dispatcher"},
		{AfterHours: policy.BreachThresholdHours, Action: "notify_manager"},
	}
	return policy
}
