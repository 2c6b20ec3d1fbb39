package engine

import (
	"errors"
	"time"

	"github.com/fentz26/planwise/internal/models"
)

var (
	ErrSelfDependency  = errors.New("task cannot depend on itself")
	ErrDependencyCycle = errors.New("dependency would create a circular reference")
)

// DependencyGate decides whether a task's immediate predecessor lets it proceed.
//
// Only the direct predecessor is consulted. A predecessor that is completed, or
// overdue (deadline passed, not completed), releases its successor. Tasks further
// upstream are never inspected.
type DependencyGate struct{}

// CanSchedule reports whether t may be placed. pred is the resolved predecessor,
// or nil when t has none or it no longer exists.
func (DependencyGate) CanSchedule(t models.Task, pred *models.Task, now time.Time) bool {
	if !t.Dependency.IsSet() || pred == nil {
		return true
	}
	return pred.Status == models.TaskStatusCompleted || pred.IsOverdue(now)
}

// CanComplete applies the same rule as CanSchedule to the "mark complete" guard.
func (g DependencyGate) CanComplete(t models.Task, pred *models.Task, now time.Time) bool {
	return g.CanSchedule(t, pred, now)
}

// ValidateDependency checks a proposed predecessor for the task with id taskID.
// Only self references and immediate two-cycles are rejected; longer chains such
// as A→B→C→A pass.
func ValidateDependency(taskID string, proposed *models.Task) error {
	if proposed == nil {
		return nil
	}
	if proposed.ID == taskID {
		return ErrSelfDependency
	}
	if id, ok := proposed.Dependency.TaskID(); ok && id == taskID {
		return ErrDependencyCycle
	}
	return nil
}
