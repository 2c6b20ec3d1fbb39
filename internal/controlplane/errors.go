package controlplane

import "errors"

// Sentinel errors for control plane operations.
var (
	ErrTaskNotFound         = errors.New("task not found")
	ErrInvalidTask          = errors.New("invalid task")
	ErrDependencyNotFound   = errors.New("dependency not found")
	ErrHasDependents        = errors.New("task has dependents")
	ErrDependencyIncomplete = errors.New("dependency is not completed")
	ErrNotOwner             = errors.New("task belongs to another owner")
)
