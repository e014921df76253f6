package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cst_tracker/backend/internal/models"
)

// ErrNoAgentAvailable means the candidate pool was empty even after relaxing
// the zone and shift filters. The skill filter is never relaxed.
var ErrNoAgentAvailable = errors.New("no agent available")

// skillByCategory maps request categories to the skill dispatch filters on.
// Unmapped categories use the category string itself.
var skillByCategory = map[string]string{
	"pothole":      "road",
	"water_leak":   "water",
	"missed_trash": "waste",
	"streetlight":  "electrical",
}

// Selection is the outcome of a successful agent pick.
type Selection struct {
	Agent models.Agent
	// Pool holds the candidates that survived filtering, in input order;
	// recorded on the request as auto_assign_candidate_agents.
	Pool []models.Agent
	// Policy describes which filters were applied vs relaxed, recorded as
	// assignment.assignment_policy.
	Policy string
	// ZoneRelaxed / ShiftRelaxed report whether the soft filters had to be
	// discarded to keep the pool non-empty.
	ZoneRelaxed  bool
	ShiftRelaxed bool
}

// SkillNeeded derives the skill a request's category calls for.
func SkillNeeded(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	if skill, ok := skillByCategory[c]; ok {
		return skill
	}
	return c
}

// SelectAgent picks the best agent for a request from the candidate pool.
// Pure and deterministic: same inputs, same pick. Filters in order — skill
// (hard), zone (relaxed if it empties the pool), on-shift at now (relaxed
// likewise) — then lowest workload with ties broken by input order.
func SelectAgent(req *models.ServiceRequest, candidates []models.Agent, workloads map[string]int, now time.Time) (Selection, error) {
	skill := SkillNeeded(req.Category)

	pool := filterAgents(candidates, func(a models.Agent) bool {
		return hasSkill(a.Skills, skill)
	})
	if len(pool) == 0 {
		return Selection{}, ErrNoAgentAvailable
	}

	sel := Selection{}
	if zone := req.Location.ZoneID; zone != "" {
		inZone := filterAgents(pool, func(a models.Agent) bool {
			return coversZone(a.CoverageZones, zone)
		})
		if len(inZone) > 0 {
			pool = inZone
		} else {
			sel.ZoneRelaxed = true
		}
	}

	onShift := filterAgents(pool, func(a models.Agent) bool {
		return OnShift(a.Schedule, now)
	})
	if len(onShift) > 0 {
		pool = onShift
	} else {
		sel.ShiftRelaxed = true
	}

	best := pool[0]
	for _, a := range pool[1:] {
		if workloads[a.ID] < workloads[best.ID] {
			best = a
		}
	}

	sel.Agent = best
	sel.Pool = pool
	sel.Policy = describePolicy(skill, req.Location.ZoneID, sel.ZoneRelaxed, sel.ShiftRelaxed)
	return sel, nil
}

var weekdays = map[time.Weekday]string{
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
	time.Sunday:    "sun",
}

// OnShift reports whether the instant falls inside one of the agent's weekly
// windows. Day-of-week and clock are taken in UTC; window bounds inclusive.
// Windows with malformed clock strings are skipped.
func OnShift(schedule []models.ScheduleWindow, now time.Time) bool {
	utc := now.UTC()
	day := weekdays[utc.Weekday()]
	minute := utc.Hour()*60 + utc.Minute()

	for _, w := range schedule {
		if !strings.EqualFold(strings.TrimSpace(w.Day), day) {
			continue
		}
		start, okS := parseClock(w.Start)
		end, okE := parseClock(w.End)
		if !okS || !okE {
			continue
		}
		if minute >= start && minute <= end {
			return true
		}
	}
	return false
}

func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func describePolicy(skill, zone string, zoneRelaxed, shiftRelaxed bool) string {
	parts := []string{"skill=" + skill}
	switch {
	case zone == "":
		parts = append(parts, "zone=none")
	case zoneRelaxed:
		parts = append(parts, "zone=relaxed")
	default:
		parts = append(parts, "zone="+zone)
	}
	if shiftRelaxed {
		parts = append(parts, "shift=relaxed")
	} else {
		parts = append(parts, "shift=on")
	}
	parts = append(parts, "tiebreak=workload")
	return fmt.Sprintf("auto(%s)", strings.Join(parts, ","))
}

func hasSkill(skills []string, target string) bool {
	for _, s := range skills {
		if strings.EqualFold(strings.TrimSpace(s), target) {
			return true
		}
	}
	return false
}

func coversZone(zones []string, target string) bool {
	for _, z := range zones {
		if strings.EqualFold(strings.TrimSpace(z), target) {
			return true
		}
	}
	return false
}

func filterAgents(agents []models.Agent, keep func(models.Agent) bool) []models.Agent {
	out := make([]models.Agent, 0, len(agents))
	for _, a := range agents {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}
