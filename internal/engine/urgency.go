package engine

import (
	"time"

	"github.com/fentz26/planwise/internal/models"
)

// OverdueUrgency is the deadline component for tasks whose deadline has passed.
const OverdueUrgency = 100.0

// Weights balances deadline proximity against priority in the urgency score.
type Weights struct {
	Deadline float64 `json:"deadline" yaml:"deadline"`
	Priority float64 `json:"priority" yaml:"priority"`
}

// DefaultWeights returns the 0.6/0.4 deadline/priority split.
func DefaultWeights() Weights {
	return Weights{Deadline: 0.6, Priority: 0.4}
}

// NormalizeWeights scales the pair to sum to 1. Negative inputs count as 0 and a
// degenerate 0,0 pair resets to 0.5/0.5.
func NormalizeWeights(deadline, priority float64) Weights {
	if deadline < 0 {
		deadline = 0
	}
	if priority < 0 {
		priority = 0
	}
	total := deadline + priority
	if total <= 0 {
		return Weights{Deadline: 0.5, Priority: 0.5}
	}
	return Weights{Deadline: deadline / total, Priority: priority / total}
}

// Normalized returns w scaled to sum to 1.
func (w Weights) Normalized() Weights {
	return NormalizeWeights(w.Deadline, w.Priority)
}

// IsZero reports whether both weights are unset.
func (w Weights) IsZero() bool {
	return w.Deadline == 0 && w.Priority == 0
}

// UrgencyScorer turns a task's deadline and priority into a comparable scalar.
// Higher is more urgent.
type UrgencyScorer struct {
	Weights Weights
}

// Score computes the urgency of t at now.
func (s UrgencyScorer) Score(t models.Task, now time.Time) float64 {
	hours := t.Deadline.Sub(now).Hours()
	var deadlineUrgency float64
	if hours <= 0 {
		deadlineUrgency = OverdueUrgency
	} else {
		deadlineUrgency = 1 / (1 + hours/24)
	}
	priorityUrgency := float64(t.Priority) / 5
	return deadlineUrgency*s.Weights.Deadline + priorityUrgency*s.Weights.Priority
}
