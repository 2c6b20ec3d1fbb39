// Package models defines the core domain types for planwise.
package models

import (
	"encoding/json"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusOverdue    TaskStatus = "overdue"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusOverdue:
		return true
	}
	return false
}

// Dependency is the optional single predecessor of a task.
// The zero value means the task has no dependency.
type Dependency struct {
	taskID string
}

// NoDependency returns an unset dependency.
func NoDependency() Dependency { return Dependency{} }

// DependsOn returns a dependency on the task with the given id.
// An empty id yields NoDependency.
func DependsOn(taskID string) Dependency { return Dependency{taskID: taskID} }

// TaskID returns the predecessor id and whether one is set.
func (d Dependency) TaskID() (string, bool) { return d.taskID, d.taskID != "" }

// IsSet reports whether the dependency references a predecessor.
func (d Dependency) IsSet() bool { return d.taskID != "" }

func (d Dependency) MarshalJSON() ([]byte, error) {
	if d.taskID == "" {
		return []byte("null"), nil
	}
	return json.Marshal(d.taskID)
}

func (d *Dependency) UnmarshalJSON(b []byte) error {
	var id *string
	if err := json.Unmarshal(b, &id); err != nil {
		return err
	}
	d.taskID = ""
	if id != nil {
		d.taskID = *id
	}
	return nil
}

// Placement is the time window the scheduler assigned to a task.
type Placement struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the length of the window.
func (p Placement) Duration() time.Duration { return p.End.Sub(p.Start) }

// Overlaps reports whether the half-open windows [p.Start, p.End) and [o.Start, o.End) intersect.
func (p Placement) Overlaps(o Placement) bool {
	return p.Start.Before(o.End) && o.Start.Before(p.End)
}

// In returns the placement expressed in loc.
func (p Placement) In(loc *time.Location) Placement {
	return Placement{Start: p.Start.In(loc), End: p.End.In(loc)}
}

// MovedBy reports whether either edge of p differs from o by more than threshold.
func (p Placement) MovedBy(o Placement, threshold time.Duration) bool {
	return absDuration(p.Start.Sub(o.Start)) > threshold || absDuration(p.End.Sub(o.End)) > threshold
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Task represents a unit of work owned by a single owner.
type Task struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	EstimatedHours float64    `json:"estimated_duration"`
	Deadline       time.Time  `json:"deadline"`
	Priority       int        `json:"priority"`
	Dependency     Dependency `json:"dependency"`
	Placement      *Placement `json:"placement,omitempty"`
	Status         TaskStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Duration returns the estimated duration as a time.Duration.
func (t Task) Duration() time.Duration {
	return HoursToDuration(t.EstimatedHours)
}

// IsPlaced reports whether the task has both start and end set.
func (t Task) IsPlaced() bool { return t.Placement != nil }

// IsOverdue reports whether the deadline has passed without the task being completed.
func (t Task) IsOverdue(now time.Time) bool {
	return now.After(t.Deadline) && t.Status != TaskStatusCompleted
}

// HoursToDuration converts fractional hours to a time.Duration.
func HoursToDuration(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// ScheduledTask is a task together with the window it was given in one recompute.
type ScheduledTask struct {
	Task      Task      `json:"task"`
	Placement Placement `json:"placement"`
	// AllocatedHours is set when the window was shrunk by proportional allocation.
	AllocatedHours float64 `json:"allocated_hours,omitempty"`
}

// Conflict is a task that could not be placed cleanly or whose placement was not persisted.
type Conflict struct {
	Task      Task       `json:"task"`
	Placement *Placement `json:"placement,omitempty"`
	Reason    string     `json:"reason"`
}

// ScheduleResult summarizes one owner recompute.
type ScheduleResult struct {
	OwnerID  string    `json:"owner_id"`
	Now      time.Time `json:"now"`
	Timezone string    `json:"timezone"`

	DeadlineWeight float64 `json:"deadline_weight"`
	PriorityWeight float64 `json:"priority_weight"`

	Scheduled []ScheduledTask `json:"scheduled"`
	Overdue   []ScheduledTask `json:"overdue"`
	Conflicts []Conflict      `json:"conflicts"`
	// Blocked lists tasks held back by their dependency. Reporting only.
	Blocked []Task `json:"blocked,omitempty"`

	TotalScheduled int `json:"total_scheduled"`
	TotalOverdue   int `json:"total_overdue"`
	TotalConflicts int `json:"total_conflicts"`
}

// Tally refreshes the count fields from the lists.
func (r *ScheduleResult) Tally() {
	r.TotalScheduled = len(r.Scheduled)
	r.TotalOverdue = len(r.Overdue)
	r.TotalConflicts = len(r.Conflicts)
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	OwnerID    string    `json:"owner_id,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
