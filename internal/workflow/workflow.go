package workflow

import (
	"fmt"
	"time"

	"github.com/cst_tracker/backend/internal/models"
)

// RulesVersion tags requests with the transition rule set that produced
// their workflow metadata.
const RulesVersion = "v1.2"

// transitions is the full directed graph. closed is terminal.
var transitions = map[string][]string{
	models.StatusNew:        {models.StatusTriaged, models.StatusClosed},
	models.StatusTriaged:    {models.StatusAssigned, models.StatusClosed},
	models.StatusAssigned:   {models.StatusInProgress, models.StatusTriaged, models.StatusClosed},
	models.StatusInProgress: {models.StatusResolved, models.StatusAssigned},
	models.StatusResolved:   {models.StatusClosed},
	models.StatusClosed:     {},
}

// rank orders states for "does A precede B" checks; auto-assignment uses it
// to avoid regressing a request that is already past assigned.
var rank = map[string]int{
	models.StatusNew:        0,
	models.StatusTriaged:    1,
	models.StatusAssigned:   2,
	models.StatusInProgress: 3,
	models.StatusResolved:   4,
	models.StatusClosed:     5,
}

type InvalidTransitionError struct {
	From    string
	To      string
	Allowed []string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q, allowed: %v", e.From, e.To, e.Allowed)
}

// AllowedNext returns a copy of the outgoing edges for a state. Unknown
// states have no edges.
func AllowedNext(state string) []string {
	next, ok := transitions[state]
	if !ok {
		return []string{}
	}
	out := make([]string, len(next))
	copy(out, next)
	return out
}

func CanTransition(current, target string) bool {
	for _, s := range transitions[current] {
		if s == target {
			return true
		}
	}
	return false
}

// Precedes reports whether state a comes strictly before state b in the
// natural lifecycle order. Unknown states never precede anything.
func Precedes(a, b string) bool {
	ra, okA := rank[a]
	rb, okB := rank[b]
	return okA && okB && ra < rb
}

// Apply moves the request to target, keeping status, workflow metadata and
// timestamps coherent. It mutates req in place and returns the log event to
// append; the caller persists both. Per-state timestamps are first-write-wins:
// re-entering a state never overwrites the original stamp.
func Apply(req *models.ServiceRequest, target string, actor models.Actor, notes string, now time.Time) (models.LogEvent, error) {
	current := req.Workflow.CurrentState
	if current == "" {
		current = req.Status
	}
	if !CanTransition(current, target) {
		return models.LogEvent{}, &InvalidTransitionError{
			From:    current,
			To:      target,
			Allowed: AllowedNext(current),
		}
	}

	req.Status = target
	req.Workflow.CurrentState = target
	req.Workflow.AllowedNext = AllowedNext(target)
	if req.Workflow.TransitionRulesVersion == "" {
		req.Workflow.TransitionRulesVersion = RulesVersion
	}
	stampEntry(&req.Timestamps, target, now)
	req.Timestamps.UpdatedAt = now

	if notes != "" {
		req.InternalNotes = append(req.InternalNotes, fmt.Sprintf("[%s] %s", target, notes))
	}

	ev := models.LogEvent{Type: target, By: actor, At: now}
	if notes != "" {
		ev.Meta = map[string]any{"notes": notes}
	}
	return ev, nil
}

func stampEntry(ts *models.Timestamps, state string, now time.Time) {
	set := func(field **time.Time) {
		if *field == nil {
			t := now
			*field = &t
		}
	}
	switch state {
	case models.StatusTriaged:
		set(&ts.TriagedAt)
	case models.StatusAssigned:
		set(&ts.AssignedAt)
	case models.StatusResolved:
		set(&ts.ResolvedAt)
	case models.StatusClosed:
		set(&ts.ClosedAt)
	}
}
