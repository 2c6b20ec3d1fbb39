package controlplane

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/planwise/internal/audit"
	"github.com/fentz26/planwise/internal/engine"
	"github.com/fentz26/planwise/internal/models"
	"github.com/fentz26/planwise/internal/scheduler"
	"github.com/fentz26/planwise/internal/store"
)

var monday08 = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu     sync.Mutex
	events map[string][]string
}

func (f *fakeNotifier) OnDependencyCompleted(task models.Task, dependents []models.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events == nil {
		f.events = make(map[string][]string)
	}
	for _, d := range dependents {
		f.events[task.ID] = append(f.events[task.ID], d.ID)
	}
}

func newTestService(t *testing.T) (*Service, *store.Store, *fakeNotifier) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clock := func() time.Time { return monday08 }
	pdr := audit.NewPDRWriter(st)
	sched := scheduler.New(st, scheduler.DefaultConfig(), scheduler.WithClock(clock), scheduler.WithRecorder(pdr))
	n := &fakeNotifier{}
	return NewService(st, sched, pdr, WithNotifier(n), WithClock(clock)), st, n
}

func validInput(owner, title string) TaskInput {
	return TaskInput{
		OwnerID:        owner,
		Title:          title,
		EstimatedHours: 2,
		Deadline:       monday08.Add(48 * time.Hour),
		Priority:       3,
	}
}

func TestCreateTask_PlacesAndRecords(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, validInput("alice", "Write report"))
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.ID == "" || task.Status != models.TaskStatusPending {
		t.Errorf("Unexpected task: %+v", task)
	}

	got, err := svc.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if !got.IsPlaced() {
		t.Error("Expected the task to be placed after creation")
	}

	entries, err := st.ListPDR(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("ListPDR failed: %v", err)
	}
	actions := map[string]bool{}
	for _, e := range entries {
		actions[e.Action] = true
	}
	if !actions[audit.ActionTaskCreate] || !actions[audit.ActionScheduleRun] {
		t.Errorf("Expected create and run records, got %v", actions)
	}
}

func TestCreateTask_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*TaskInput)
	}{
		{"missing owner", func(in *TaskInput) { in.OwnerID = "" }},
		{"blank title", func(in *TaskInput) { in.Title = "   " }},
		{"zero duration", func(in *TaskInput) { in.EstimatedHours = 0 }},
		{"priority too low", func(in *TaskInput) { in.Priority = 0 }},
		{"priority too high", func(in *TaskInput) { in.Priority = 6 }},
		{"no deadline", func(in *TaskInput) { in.Deadline = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput("alice", "Task")
			tt.mutate(&in)
			if _, err := svc.CreateTask(ctx, in); !errors.Is(err, ErrInvalidTask) {
				t.Errorf("Expected ErrInvalidTask, got %v", err)
			}
		})
	}
}

func TestCreateTask_DependencyChecks(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	bobs, err := svc.CreateTask(ctx, validInput("bob", "Bob's task"))
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	in := validInput("alice", "Needs missing")
	in.DependsOn = "no-such-task"
	if _, err := svc.CreateTask(ctx, in); !errors.Is(err, ErrDependencyNotFound) {
		t.Errorf("Expected ErrDependencyNotFound, got %v", err)
	}

	in.DependsOn = bobs.ID
	if _, err := svc.CreateTask(ctx, in); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner for a cross-owner dependency, got %v", err)
	}
}

func TestUpdateTask(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a, _ := svc.CreateTask(ctx, validInput("alice", "A"))
	b, _ := svc.CreateTask(ctx, validInput("alice", "B"))

	title := "A, revised"
	prio := 5
	got, err := svc.UpdateTask(ctx, "alice", a.ID, TaskUpdate{Title: &title, Priority: &prio})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if got.Title != title || got.Priority != 5 {
		t.Errorf("Update not applied: %+v", got)
	}

	self := a.ID
	if _, err := svc.UpdateTask(ctx, "alice", a.ID, TaskUpdate{DependsOn: &self}); !errors.Is(err, engine.ErrSelfDependency) {
		t.Errorf("Expected ErrSelfDependency, got %v", err)
	}

	dep := a.ID
	if _, err := svc.UpdateTask(ctx, "alice", b.ID, TaskUpdate{DependsOn: &dep}); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	back := b.ID
	if _, err := svc.UpdateTask(ctx, "alice", a.ID, TaskUpdate{DependsOn: &back}); !errors.Is(err, engine.ErrDependencyCycle) {
		t.Errorf("Expected ErrDependencyCycle, got %v", err)
	}

	if _, err := svc.UpdateTask(ctx, "bob", a.ID, TaskUpdate{Title: &title}); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
	bad := -1.0
	if _, err := svc.UpdateTask(ctx, "alice", a.ID, TaskUpdate{EstimatedHours: &bad}); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("Expected ErrInvalidTask, got %v", err)
	}
}

func TestCompleteTask_DependencyFlow(t *testing.T) {
	svc, _, n := newTestService(t)
	ctx := context.Background()

	a, _ := svc.CreateTask(ctx, validInput("alice", "A"))
	in := validInput("alice", "B")
	in.DependsOn = a.ID
	b, err := svc.CreateTask(ctx, in)
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	got, _ := svc.GetTask(ctx, b.ID)
	if got.IsPlaced() {
		t.Error("Expected B to wait for A")
	}

	if _, err := svc.CompleteTask(ctx, "alice", b.ID); !errors.Is(err, ErrDependencyIncomplete) {
		t.Errorf("Expected ErrDependencyIncomplete, got %v", err)
	}

	done, err := svc.CompleteTask(ctx, "alice", a.ID)
	if err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	if done.Status != models.TaskStatusCompleted || done.IsPlaced() {
		t.Errorf("Expected completed task without placement, got %+v", done)
	}

	n.mu.Lock()
	deps := n.events[a.ID]
	n.mu.Unlock()
	if len(deps) != 1 || deps[0] != b.ID {
		t.Errorf("Expected dependency-completed event for B, got %v", deps)
	}

	got, _ = svc.GetTask(ctx, b.ID)
	if !got.IsPlaced() {
		t.Error("Expected B placed once A completed")
	}
	if _, err := svc.CompleteTask(ctx, "alice", b.ID); err != nil {
		t.Errorf("CompleteTask failed: %v", err)
	}
}

func TestDeleteTask(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a, _ := svc.CreateTask(ctx, validInput("alice", "A"))
	in := validInput("alice", "B")
	in.DependsOn = a.ID
	b, _ := svc.CreateTask(ctx, in)

	if err := svc.DeleteTask(ctx, "alice", a.ID); !errors.Is(err, ErrHasDependents) {
		t.Errorf("Expected ErrHasDependents, got %v", err)
	}
	if err := svc.DeleteTask(ctx, "alice", b.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if _, err := svc.GetTask(ctx, b.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
	if err := svc.DeleteTask(ctx, "alice", a.ID); err != nil {
		t.Errorf("DeleteTask failed: %v", err)
	}
	if err := svc.DeleteTask(ctx, "alice", "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}

func TestReschedule(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a, _ := svc.CreateTask(ctx, validInput("alice", "A"))
	p, err := svc.Reschedule(ctx, "alice", a.ID)
	if err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}
	if p.Duration() != 2*time.Hour {
		t.Errorf("Expected a 2h window, got %v", p.Duration())
	}
	if _, err := svc.Reschedule(ctx, "bob", a.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
	if _, err := svc.Reschedule(ctx, "alice", "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}

func TestListTasks(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	svc.CreateTask(ctx, validInput("alice", "A"))
	svc.CreateTask(ctx, validInput("alice", "B"))
	svc.CreateTask(ctx, validInput("bob", "C"))

	tasks, err := svc.ListTasks(ctx, "alice", "")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("Expected 2 tasks, got %d", len(tasks))
	}
	if _, err := svc.ListTasks(ctx, "alice", "bogus"); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("Expected ErrInvalidTask, got %v", err)
	}
}
