// Package controlplane is the task mutation boundary for planwise. Every
// successful mutation is recorded and followed by a recompute of the owner's
// schedule.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fentz26/planwise/internal/audit"
	"github.com/fentz26/planwise/internal/engine"
	"github.com/fentz26/planwise/internal/models"
	"github.com/fentz26/planwise/internal/scheduler"
)

// Store is the persistence the service needs.
type Store interface {
	CreateTask(ctx context.Context, task models.Task) (*models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, ownerID string, status models.TaskStatus) ([]models.Task, error)
	UpdateTask(ctx context.Context, task models.Task) error
	DeleteTask(ctx context.Context, id string) error
	ListDependents(ctx context.Context, id string) ([]models.Task, error)
}

// Scheduler recomputes placements.
type Scheduler interface {
	RunForOwner(ctx context.Context, ownerID string, opts scheduler.RunOptions) (*models.ScheduleResult, error)
	RescheduleOne(ctx context.Context, taskID string) (models.Placement, error)
}

// Notifier receives dependency-completed events.
type Notifier interface {
	OnDependencyCompleted(task models.Task, dependents []models.Task)
}

// TaskInput holds the fields of a new task.
type TaskInput struct {
	OwnerID        string
	Title          string
	Description    string
	EstimatedHours float64
	Deadline       time.Time
	Priority       int
	DependsOn      string
}

// TaskUpdate holds the fields to change. Nil fields are left as they are; an
// empty DependsOn removes the dependency.
type TaskUpdate struct {
	Title          *string
	Description    *string
	EstimatedHours *float64
	Deadline       *time.Time
	Priority       *int
	DependsOn      *string
}

// Service provides the control plane business logic.
type Service struct {
	store    Store
	sched    Scheduler
	pdr      scheduler.DecisionRecorder
	notifier Notifier
	gate     engine.DependencyGate
	clock    func() time.Time
	log      zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithNotifier(n Notifier) Option        { return func(s *Service) { s.notifier = n } }
func WithLogger(l zerolog.Logger) Option    { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.clock = now } }

// NewService creates a new control plane service. pdr may be nil.
func NewService(st Store, sched Scheduler, pdr scheduler.DecisionRecorder, opts ...Option) *Service {
	s := &Service{
		store: st,
		sched: sched,
		pdr:   pdr,
		clock: time.Now,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "controlplane").Logger()
	return s
}

// --- Task Operations ---

// CreateTask validates and stores a new task, then recomputes its owner's schedule.
func (s *Service) CreateTask(ctx context.Context, in TaskInput) (*models.Task, error) {
	task := models.Task{
		OwnerID:        strings.TrimSpace(in.OwnerID),
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		EstimatedHours: in.EstimatedHours,
		Deadline:       in.Deadline,
		Priority:       in.Priority,
		Dependency:     models.DependsOn(in.DependsOn),
		Status:         models.TaskStatusPending,
	}
	if task.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidTask)
	}
	if err := validateFields(task); err != nil {
		return nil, err
	}
	if err := s.checkDependency(ctx, task); err != nil {
		return nil, err
	}

	created, err := s.store.CreateTask(ctx, task)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.ActionTaskCreate, in, created.OwnerID, created.ID, "")
	s.recompute(ctx, created.OwnerID)
	return created, nil
}

// GetTask retrieves a task by ID.
func (s *Service) GetTask(ctx context.Context, id string) (*models.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// ListTasks returns an owner's tasks, optionally filtered by status.
func (s *Service) ListTasks(ctx context.Context, ownerID string, status models.TaskStatus) ([]models.Task, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTask, status)
	}
	return s.store.ListTasks(ctx, ownerID, status)
}

// Dependents returns the tasks that wait on id.
func (s *Service) Dependents(ctx context.Context, ownerID, id string) ([]models.Task, error) {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.store.ListDependents(ctx, id)
}

// UpdateTask applies u to the task and recomputes the owner's schedule.
func (s *Service) UpdateTask(ctx context.Context, ownerID, id string, u TaskUpdate) (*models.Task, error) {
	task, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if task.Status == models.TaskStatusCompleted {
		return nil, fmt.Errorf("%w: task is completed", ErrInvalidTask)
	}

	if u.Title != nil {
		task.Title = strings.TrimSpace(*u.Title)
	}
	if u.Description != nil {
		task.Description = *u.Description
	}
	if u.EstimatedHours != nil {
		task.EstimatedHours = *u.EstimatedHours
	}
	if u.Deadline != nil {
		task.Deadline = *u.Deadline
	}
	if u.Priority != nil {
		task.Priority = *u.Priority
	}
	if err := validateFields(*task); err != nil {
		return nil, err
	}
	if u.DependsOn != nil {
		task.Dependency = models.DependsOn(*u.DependsOn)
		if err := s.checkDependency(ctx, *task); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateTask(ctx, *task); err != nil {
		return nil, err
	}
	s.record(ctx, audit.ActionTaskUpdate, u, task.OwnerID, task.ID, "")
	s.recompute(ctx, task.OwnerID)
	return s.GetTask(ctx, id)
}

// CompleteTask marks the task completed once its predecessor allows it, and
// tells the notifier about any tasks that were waiting on it.
func (s *Service) CompleteTask(ctx context.Context, ownerID, id string) (*models.Task, error) {
	task, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if task.Status == models.TaskStatusCompleted {
		return task, nil
	}

	var pred *models.Task
	if depID, ok := task.Dependency.TaskID(); ok {
		if pred, err = s.store.GetTask(ctx, depID); err != nil {
			return nil, err
		}
	}
	if !s.gate.CanComplete(*task, pred, s.clock()) {
		return nil, ErrDependencyIncomplete
	}

	task.Status = models.TaskStatusCompleted
	task.Placement = nil
	if err := s.store.UpdateTask(ctx, *task); err != nil {
		return nil, err
	}
	s.record(ctx, audit.ActionTaskComplete, map[string]string{"task": id}, task.OwnerID, task.ID, "")

	dependents, err := s.store.ListDependents(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("task", id).Msg("list dependents failed")
	}
	if len(dependents) > 0 && s.notifier != nil {
		s.notifier.OnDependencyCompleted(*task, dependents)
	}
	s.recompute(ctx, task.OwnerID)
	return task, nil
}

// DeleteTask removes a task nothing depends on.
func (s *Service) DeleteTask(ctx context.Context, ownerID, id string) error {
	task, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	dependents, err := s.store.ListDependents(ctx, id)
	if err != nil {
		return err
	}
	if len(dependents) > 0 {
		return fmt.Errorf("%w: %d task(s) depend on %s", ErrHasDependents, len(dependents), id)
	}
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.record(ctx, audit.ActionTaskDelete, map[string]string{"task": id}, task.OwnerID, id, "")
	s.recompute(ctx, task.OwnerID)
	return nil
}

// Reschedule finds a fresh window for one task.
func (s *Service) Reschedule(ctx context.Context, ownerID, id string) (models.Placement, error) {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return models.Placement{}, err
	}
	p, err := s.sched.RescheduleOne(ctx, id)
	if errors.Is(err, scheduler.ErrTaskNotFound) {
		return models.Placement{}, ErrTaskNotFound
	}
	return p, err
}

// RunSchedule recomputes the owner's schedule and returns the result.
func (s *Service) RunSchedule(ctx context.Context, ownerID string, opts scheduler.RunOptions) (*models.ScheduleResult, error) {
	return s.sched.RunForOwner(ctx, ownerID, opts)
}

func (s *Service) owned(ctx context.Context, ownerID, id string) (*models.Task, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && task.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return task, nil
}

func (s *Service) checkDependency(ctx context.Context, task models.Task) error {
	depID, ok := task.Dependency.TaskID()
	if !ok {
		return nil
	}
	pred, err := s.store.GetTask(ctx, depID)
	if err != nil {
		return err
	}
	if pred == nil {
		return fmt.Errorf("%w: %s", ErrDependencyNotFound, depID)
	}
	if pred.OwnerID != task.OwnerID {
		return fmt.Errorf("%w: dependency %s", ErrNotOwner, depID)
	}
	return engine.ValidateDependency(task.ID, pred)
}

func validateFields(t models.Task) error {
	switch {
	case t.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	case t.EstimatedHours <= 0:
		return fmt.Errorf("%w: estimated duration must be positive", ErrInvalidTask)
	case t.Priority < 1 || t.Priority > 5:
		return fmt.Errorf("%w: priority must be between 1 and 5", ErrInvalidTask)
	case t.Deadline.IsZero():
		return fmt.Errorf("%w: deadline is required", ErrInvalidTask)
	}
	return nil
}

func (s *Service) recompute(ctx context.Context, ownerID string) {
	_, err := s.sched.RunForOwner(ctx, ownerID, scheduler.RunOptions{})
	switch {
	case err == nil:
	case scheduler.IsBusy(err):
		s.log.Debug().Str("owner", ownerID).Msg("recompute skipped, owner busy")
	default:
		s.log.Warn().Err(err).Str("owner", ownerID).Msg("recompute failed")
	}
}

func (s *Service) record(ctx context.Context, action string, inputs any, ownerID, taskID, details string) {
	if s.pdr == nil {
		return
	}
	if _, err := s.pdr.Record(ctx, action, inputs, "success", ownerID, taskID, details); err != nil {
		s.log.Warn().Err(err).Str("action", action).Msg("record decision failed")
	}
}
