// internal/scoring/policy.go
package scoring

import (
	"fmt"
	"time"

	"github.com/shrimpsizemoose/semla/internal/models"
)

// Category names recorded on activity rows.
const (
	CategoryTaskOnTime         = "task_on_time"
	CategoryTaskLate           = "task_late"
	CategoryTaskMissed         = "task_missed"
	CategoryEventParticipation = "event_participation"
	CategoryEventWinning       = "event_winning"
)

// Policy maps an event kind to a point delta. The defaults are the canonical
// table; deployments may tune the values via the [scoring] config section.
type Policy struct {
	TaskOnTime         int `toml:"task_on_time"`
	TaskLate           int `toml:"task_late"`
	TaskMissed         int `toml:"task_missed"`
	EventParticipation int `toml:"event_participation"`
	EventWinning       int `toml:"event_winning"`
}

func DefaultPolicy() *Policy {
	return &Policy{
		TaskOnTime:         10,
		TaskLate:           -5,
		TaskMissed:         -10,
		EventParticipation: 20,
		EventWinning:       30,
	}
}

// Delta describes what a single scoring event does to the ledger.
type Delta struct {
	Points      int
	Category    string
	Description string
}

// Evaluate is pure: no store access, no clock. Unknown kinds are a
// validation failure for the caller, never a retry.
func (p *Policy) Evaluate(kind string) (Delta, error) {
	switch kind {
	case models.KindTaskOnTime:
		return Delta{p.TaskOnTime, CategoryTaskOnTime, "Task completed on time"}, nil
	case models.KindTaskLate:
		return Delta{p.TaskLate, CategoryTaskLate, "Task completed late"}, nil
	case models.KindTaskMissed:
		return Delta{p.TaskMissed, CategoryTaskMissed, "Task missed"}, nil
	case models.KindEventParticipation:
		return Delta{p.EventParticipation, CategoryEventParticipation, "Attended event"}, nil
	case models.KindEventWinning:
		return Delta{p.EventWinning, CategoryEventWinning, "Won event"}, nil
	default:
		return Delta{}, fmt.Errorf("unknown event kind: %q", kind)
	}
}

// ClassifySubmission decides on-time vs late. The deadline is inclusive:
// submitting at the exact deadline instant still counts as on time.
func ClassifySubmission(deadline, submittedAt time.Time) string {
	if submittedAt.After(deadline) {
		return models.KindTaskLate
	}
	return models.KindTaskOnTime
}
