package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fentz26/planwise/internal/audit"
	"github.com/fentz26/planwise/internal/engine"
	"github.com/fentz26/planwise/internal/metrics"
	"github.com/fentz26/planwise/internal/models"
)

// TaskStore is the persistence the scheduler needs.
type TaskStore interface {
	ListActiveByOwner(ctx context.Context, ownerID string) ([]models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ClearPlacement(ctx context.Context, id string) error
	SavePlacement(ctx context.Context, id string, p models.Placement, status models.TaskStatus) error
	ListPlacedByOwner(ctx context.Context, ownerID string) ([]models.Task, error)
}

// Notifier hears about persisted placements that moved. Calls must not block.
type Notifier interface {
	OnRescheduled(task models.Task, old, current models.Placement)
}

// DecisionRecorder keeps an audit trail of runs.
type DecisionRecorder interface {
	Record(ctx context.Context, action string, inputs any, outcome, ownerID, taskID, details string) (*models.PDREntry, error)
}

const (
	reasonNoSlot      = "no conflict-free window within search limits"
	reasonNoBlock     = "no conflict-free window for the contended group"
	reasonClearFailed = "previous placement could not be cleared"
)

// RunOptions tune one recompute. Zero values fall back to the scheduler's clock,
// default timezone and current weights.
type RunOptions struct {
	Now      time.Time
	Timezone string
	Weights  engine.Weights
}

// Scheduler recomputes owners' timelines. It is safe for concurrent use; runs for
// the same owner are serialized and runs for different owners proceed in parallel.
type Scheduler struct {
	store    TaskStore
	config   *Config
	locks    *ownerLocks
	strategy engine.StrategyFactory
	clock    func() time.Time

	notifier Notifier
	recorder DecisionRecorder
	metrics  metrics.Recorder
	log      zerolog.Logger

	mu      sync.RWMutex
	weights engine.Weights
}

type Option func(*Scheduler)

func WithNotifier(n Notifier) Option         { return func(s *Scheduler) { s.notifier = n } }
func WithRecorder(r DecisionRecorder) Option { return func(s *Scheduler) { s.recorder = r } }
func WithMetrics(m metrics.Recorder) Option  { return func(s *Scheduler) { s.metrics = m } }
func WithLogger(l zerolog.Logger) Option     { return func(s *Scheduler) { s.log = l } }
func WithClock(now func() time.Time) Option  { return func(s *Scheduler) { s.clock = now } }
func WithStrategy(f engine.StrategyFactory) Option {
	return func(s *Scheduler) { s.strategy = f }
}

// New creates a new scheduler.
func New(store TaskStore, cfg *Config, opts ...Option) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		store:    store,
		config:   cfg,
		locks:    newOwnerLocks(),
		strategy: engine.NewProcedural,
		clock:    time.Now,
		metrics:  metrics.Nop{},
		log:      zerolog.Nop(),
		weights:  cfg.Weights(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "scheduler").Logger()
	return s
}

// Weights returns the current urgency weights.
func (s *Scheduler) Weights() engine.Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights
}

// UpdateWeights normalizes and installs new weights for subsequent runs.
func (s *Scheduler) UpdateWeights(deadline, priority float64) engine.Weights {
	w := engine.NormalizeWeights(deadline, priority)
	s.mu.Lock()
	s.weights = w
	s.mu.Unlock()

	s.log.Info().Float64("deadline_weight", w.Deadline).Float64("priority_weight", w.Priority).Msg("weights updated")
	s.record(context.Background(), audit.ActionWeights, w, "success", "", "",
		fmt.Sprintf("deadline=%.3f priority=%.3f", w.Deadline, w.Priority))
	return w
}

// RunForOwner recomputes every placement for ownerID. It waits at most
// Config.LockTimeout for the owner's lock and returns ErrBusy without touching
// the store if another run holds it past that.
func (s *Scheduler) RunForOwner(ctx context.Context, ownerID string, opts RunOptions) (*models.ScheduleResult, error) {
	started := time.Now()
	release, err := s.locks.acquire(ctx, ownerID, s.config.LockTimeout)
	if err != nil {
		s.metrics.RunCompleted(metrics.OutcomeBusy, time.Since(started))
		s.log.Debug().Str("owner", ownerID).Err(err).Msg("schedule run skipped")
		return nil, err
	}
	defer release()

	res, err := s.run(ctx, ownerID, opts)
	if err != nil {
		s.metrics.RunCompleted(metrics.OutcomeError, time.Since(started))
		s.record(ctx, audit.ActionScheduleRun, map[string]any{"owner": ownerID}, "error", ownerID, "", err.Error())
		return nil, err
	}
	s.metrics.RunCompleted(metrics.OutcomeSuccess, time.Since(started))
	s.metrics.TasksScheduled(res.TotalScheduled)
	s.metrics.TasksOverdue(res.TotalOverdue)
	s.metrics.TasksConflicted(res.TotalConflicts)
	s.metrics.TasksBlocked(len(res.Blocked))
	return res, nil
}

// run does the recompute. The owner lock is held.
func (s *Scheduler) run(ctx context.Context, ownerID string, opts RunOptions) (*models.ScheduleResult, error) {
	tc := s.timeContext(opts)
	weights := opts.Weights
	if weights.IsZero() {
		weights = s.Weights()
	}
	weights = weights.Normalized()
	strat := s.strategy(weights)
	log := s.log.With().Str("owner", ownerID).Logger()

	tasks, err := s.store.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	res := &models.ScheduleResult{
		OwnerID:        ownerID,
		Now:            tc.Now,
		Timezone:       tc.Name(),
		DeadlineWeight: weights.Deadline,
		PriorityWeight: weights.Priority,
		Scheduled:      []models.ScheduledTask{},
		Overdue:        []models.ScheduledTask{},
		Conflicts:      []models.Conflict{},
	}

	// Forget every placement up front so the run starts from an empty timeline.
	previous := make(map[string]models.Placement, len(tasks))
	byID := make(map[string]models.Task, len(tasks))
	var candidates []models.Task
	for _, t := range tasks {
		if t.Placement != nil {
			previous[t.ID] = *t.Placement
			if err := s.store.ClearPlacement(ctx, t.ID); err != nil {
				log.Warn().Err(err).Str("task", t.ID).Msg("clear placement failed")
				res.Conflicts = append(res.Conflicts, models.Conflict{Task: t, Placement: t.Placement, Reason: reasonClearFailed})
				continue
			}
			t.Placement = nil
		}
		byID[t.ID] = t
		candidates = append(candidates, t)
	}

	scores := make(map[string]float64, len(candidates))
	var eligible []models.Task
	for _, t := range candidates {
		pred, err := s.predecessor(ctx, t, byID)
		if err != nil {
			log.Warn().Err(err).Str("task", t.ID).Msg("load dependency failed")
			res.Blocked = append(res.Blocked, t)
			continue
		}
		if !strat.CanSchedule(t, pred, tc.Now) {
			res.Blocked = append(res.Blocked, t)
			continue
		}
		scores[t.ID] = strat.Score(t, tc.Now)
		eligible = append(eligible, t)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		si, sj := scores[eligible[i].ID], scores[eligible[j].ID]
		if si != sj {
			return si > sj
		}
		return eligible[i].ID < eligible[j].ID
	})

	for _, group := range engine.GroupByDeadlineProximity(eligible) {
		if strat.NeedsAllocation(group, tc.Now) {
			s.allocateGroup(ctx, strat, group, tc, previous, res, log)
			continue
		}
		for _, t := range group {
			p, reason, err := s.placeOne(ctx, strat, t, tc, scores[t.ID])
			if err != nil {
				res.Conflicts = append(res.Conflicts, models.Conflict{Task: t, Reason: err.Error()})
				continue
			}
			s.commit(ctx, t, p, 0, reason, tc, previous, res, log)
		}
	}

	res.Tally()
	log.Info().
		Int("scheduled", res.TotalScheduled).
		Int("overdue", res.TotalOverdue).
		Int("conflicts", res.TotalConflicts).
		Int("blocked", len(res.Blocked)).
		Msg("schedule run complete")
	s.record(ctx, audit.ActionScheduleRun, map[string]any{
		"owner":    ownerID,
		"now":      tc.Now,
		"timezone": tc.Name(),
		"weights":  weights,
		"tasks":    len(tasks),
	}, "success", ownerID, "", fmt.Sprintf("scheduled=%d overdue=%d conflicts=%d blocked=%d",
		res.TotalScheduled, res.TotalOverdue, res.TotalConflicts, len(res.Blocked)))
	return res, nil
}

// placeOne finds a window for t against the live timeline.
func (s *Scheduler) placeOne(ctx context.Context, strat engine.Strategy, t models.Task, tc engine.TimeContext, score float64) (models.Placement, string, error) {
	live, err := s.store.ListPlacedByOwner(ctx, t.OwnerID)
	if err != nil {
		return models.Placement{}, "", fmt.Errorf("load timeline: %w", err)
	}
	start, found := strat.FindStart(t, live, tc, score)
	p := models.Placement{Start: start, End: start.Add(t.Duration())}

	if p.End.After(tc.In(t.Deadline)) {
		adjusted := strat.Adjust(t, start, tc, score)
		// A compressed window that would collide keeps the conflict-free one.
		if !engine.HasConflict(adjusted, engine.Windows(live, t.ID)) {
			p = adjusted
		}
	}
	if !found {
		return p, reasonNoSlot, nil
	}
	return p, "", nil
}

// allocateGroup time-slices a contended group into one back-to-back block placed
// at the first gap in the live timeline that fits it.
func (s *Scheduler) allocateGroup(ctx context.Context, strat engine.Strategy, group []models.Task, tc engine.TimeContext, previous map[string]models.Placement, res *models.ScheduleResult, log zerolog.Logger) {
	live, err := s.store.ListPlacedByOwner(ctx, group[0].OwnerID)
	if err != nil {
		for _, t := range group {
			res.Conflicts = append(res.Conflicts, models.Conflict{Task: t, Reason: fmt.Sprintf("load timeline: %v", err)})
		}
		return
	}

	sized := strat.AllocateFrom(group, tc, tc.Now)
	var block time.Duration
	for _, a := range sized {
		block += a.Placement.Duration()
	}
	from, found := strat.FitBlock(block, live, tc)
	reason := ""
	if !found {
		reason = reasonNoBlock
	}

	for _, a := range strat.AllocateFrom(group, tc, from) {
		log.Debug().Str("task", a.Task.ID).Float64("allocated_hours", a.AllocatedHours).Float64("factor", a.Factor).Msg("proportional allocation")
		s.commit(ctx, a.Task, a.Placement, a.AllocatedHours, reason, tc, previous, res, log)
	}
}

// commit persists one placement and files the task into the result.
func (s *Scheduler) commit(ctx context.Context, t models.Task, p models.Placement, allocated float64, reason string, tc engine.TimeContext, previous map[string]models.Placement, res *models.ScheduleResult, log zerolog.Logger) {
	status := nextStatus(t, p)
	if err := s.store.SavePlacement(ctx, t.ID, p, status); err != nil {
		log.Warn().Err(err).Str("task", t.ID).Msg("save placement failed")
		res.Conflicts = append(res.Conflicts, models.Conflict{Task: t, Placement: &p, Reason: fmt.Sprintf("persist placement: %v", err)})
		return
	}

	p = p.In(tc.Location)
	t.Placement = &p
	t.Status = status
	log.Debug().Str("task", t.ID).Time("start", p.Start).Time("end", p.End).Str("status", string(status)).Msg("task placed")

	entry := models.ScheduledTask{Task: t, Placement: p, AllocatedHours: allocated}
	switch {
	case reason != "":
		res.Conflicts = append(res.Conflicts, models.Conflict{Task: t, Placement: &p, Reason: reason})
	case status == models.TaskStatusOverdue:
		res.Overdue = append(res.Overdue, entry)
	default:
		res.Scheduled = append(res.Scheduled, entry)
	}

	if old, ok := previous[t.ID]; ok {
		s.notifyMoved(t, old, p)
	}
}

func (s *Scheduler) notifyMoved(t models.Task, old, current models.Placement) {
	if s.notifier == nil || !current.MovedBy(old, s.config.NotifyThreshold) {
		return
	}
	s.notifier.OnRescheduled(t, old, current)
}

// nextStatus marks tasks that finish past their deadline overdue, and returns an
// overdue task to pending once its new window meets the deadline again.
func nextStatus(t models.Task, p models.Placement) models.TaskStatus {
	if p.End.After(t.Deadline) {
		return models.TaskStatusOverdue
	}
	if t.Status == models.TaskStatusOverdue {
		return models.TaskStatusPending
	}
	return t.Status
}

// predecessor resolves t's immediate dependency. A predecessor that is not
// among the active tasks is looked up directly; nil means it no longer exists.
func (s *Scheduler) predecessor(ctx context.Context, t models.Task, active map[string]models.Task) (*models.Task, error) {
	id, ok := t.Dependency.TaskID()
	if !ok {
		return nil, nil
	}
	if p, ok := active[id]; ok {
		return &p, nil
	}
	p, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get dependency %s: %w", id, err)
	}
	return p, nil
}

func (s *Scheduler) timeContext(opts RunOptions) engine.TimeContext {
	now := opts.Now
	if now.IsZero() {
		now = s.clock()
	}
	tz := opts.Timezone
	if tz == "" {
		tz = s.config.DefaultTimezone
	}
	tc, err := engine.NewTimeContext(now, tz)
	if err != nil {
		s.log.Warn().Err(err).Msg("falling back to UTC")
	}
	return tc
}

// RescheduleOne finds a fresh window for a single task, leaving the rest of the
// owner's timeline in place.
func (s *Scheduler) RescheduleOne(ctx context.Context, taskID string) (models.Placement, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return models.Placement{}, fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return models.Placement{}, ErrTaskNotFound
	}

	release, err := s.locks.acquire(ctx, task.OwnerID, s.config.LockTimeout)
	if err != nil {
		return models.Placement{}, err
	}
	defer release()

	// Re-read under the lock; a run may have moved it while we waited.
	task, err = s.store.GetTask(ctx, taskID)
	if err != nil {
		return models.Placement{}, fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return models.Placement{}, ErrTaskNotFound
	}

	tc := s.timeContext(RunOptions{})
	if task.Status == models.TaskStatusCompleted {
		return models.Placement{}, ErrTaskCompleted
	}
	if task.IsOverdue(tc.Now) {
		return models.Placement{}, ErrTaskOverdue
	}

	strat := s.strategy(s.Weights())
	p, reason, err := s.placeOne(ctx, strat, *task, tc, strat.Score(*task, tc.Now))
	if err != nil {
		return models.Placement{}, err
	}
	status := nextStatus(*task, p)
	if err := s.store.SavePlacement(ctx, task.ID, p, status); err != nil {
		return models.Placement{}, fmt.Errorf("save placement: %w", err)
	}
	p = p.In(tc.Location)

	if task.Placement != nil {
		s.notifyMoved(*task, *task.Placement, p)
	}
	outcome := "success"
	if reason != "" {
		outcome = "conflict"
	}
	s.record(ctx, audit.ActionReschedule, map[string]any{"task": task.ID, "now": tc.Now}, outcome, task.OwnerID, task.ID,
		fmt.Sprintf("start=%s end=%s status=%s", p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339), status))
	s.log.Info().Str("owner", task.OwnerID).Str("task", task.ID).Time("start", p.Start).Time("end", p.End).Msg("task rescheduled")
	return p, nil
}

func (s *Scheduler) record(ctx context.Context, action string, inputs any, outcome, ownerID, taskID, details string) {
	if s.recorder == nil {
		return
	}
	if _, err := s.recorder.Record(ctx, action, inputs, outcome, ownerID, taskID, details); err != nil {
		s.log.Warn().Err(err).Str("action", action).Msg("record decision failed")
	}
}

// IsBusy reports whether err means the owner was locked by another run.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}
