package sla

import (
	"time"

	"github.com/cst_tracker/backend/internal/models"
)

// Evaluation is the result of a point-in-time SLA check. ResolutionMinutes
// is nil while the request is unresolved.
type Evaluation struct {
	State             string `json:"sla_state"`
	ResolutionMinutes *int   `json:"resolution_minutes"`
}

// Evaluate computes the SLA state of a request at the given instant. It is a
// pure function of the stored timestamps and the frozen policy: safe to call
// repeatedly, never mutates the request.
//
// Resolved requests are judged on their final duration and never report
// at_risk. Unresolved requests escalate on elapsed time: breached at the
// breach threshold, at_risk from 75% of target.
func Evaluate(req *models.ServiceRequest, now time.Time) Evaluation {
	policy := req.SLAPolicy
	created := req.Timestamps.CreatedAt

	if req.Timestamps.ResolvedAt != nil {
		minutes := int(req.Timestamps.ResolvedAt.Sub(created).Minutes())
		state := models.SLAOnTrack
		if req.Timestamps.ResolvedAt.Sub(created) > time.Duration(policy.BreachThresholdHours)*time.Hour {
			state = models.SLABreached
		}
		return Evaluation{State: state, ResolutionMinutes: &minutes}
	}

	elapsed := now.Sub(created)
	switch {
	case elapsed >= time.Duration(policy.BreachThresholdHours)*time.Hour:
		return Evaluation{State: models.SLABreached}
	case elapsed >= time.Duration(policy.TargetHours)*time.Hour*3/4:
		return Evaluation{State: models.SLAAtRisk}
	default:
		return Evaluation{State: models.SLAOnTrack}
	}
}
