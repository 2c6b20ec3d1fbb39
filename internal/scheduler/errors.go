package scheduler

import "errors"

var (
	// ErrBusy is returned when the owner's lock could not be acquired in time.
	// The run made no changes.
	ErrBusy          = errors.New("scheduler busy for owner")
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskOverdue   = errors.New("task is overdue and cannot be rescheduled")
	ErrTaskCompleted = errors.New("task is completed")
)
