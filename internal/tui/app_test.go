package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fentz26/planwise/internal/engine"
	"github.com/fentz26/planwise/internal/models"
	"github.com/fentz26/planwise/internal/scheduler"
)

var monday08 = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

type fakeBackend struct {
	runs      []scheduler.RunOptions
	completed []string
	err       error
}

func (f *fakeBackend) RunSchedule(ctx context.Context, ownerID string, opts scheduler.RunOptions) (*models.ScheduleResult, error) {
	f.runs = append(f.runs, opts)
	if f.err != nil {
		return nil, f.err
	}
	return sampleResult(), nil
}

func (f *fakeBackend) CompleteTask(ctx context.Context, ownerID, id string) (*models.Task, error) {
	f.completed = append(f.completed, id)
	return &models.Task{ID: id, Status: models.TaskStatusCompleted}, nil
}

func (f *fakeBackend) Reschedule(ctx context.Context, ownerID, id string) (models.Placement, error) {
	return models.Placement{Start: monday08, End: monday08.Add(time.Hour)}, nil
}

func sampleResult() *models.ScheduleResult {
	late := models.Placement{Start: monday08.Add(6 * time.Hour), End: monday08.Add(7 * time.Hour)}
	early := models.Placement{Start: monday08.Add(2 * time.Hour), End: monday08.Add(4 * time.Hour)}
	return &models.ScheduleResult{
		OwnerID:  "alice",
		Now:      monday08,
		Timezone: "UTC",
		Scheduled: []models.ScheduledTask{
			{Task: models.Task{ID: "late", Title: "Late"}, Placement: late},
			{Task: models.Task{ID: "early", Title: "Early"}, Placement: early},
		},
		Blocked:        []models.Task{{ID: "wait", Title: "Waiting"}},
		TotalScheduled: 2,
	}
}

func TestItemsFromResult_Order(t *testing.T) {
	items := itemsFromResult(sampleResult())
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}
	want := []string{"early", "late", "wait"}
	for i, id := range want {
		if items[i].Task.ID != id {
			t.Errorf("Item %d: expected %s, got %s", i, id, items[i].Task.ID)
		}
	}
	if items[2].Kind != KindBlocked || items[2].Placement != nil {
		t.Errorf("Expected trailing blocked row, got %+v", items[2])
	}
	if itemsFromResult(nil) != nil {
		t.Error("Expected no items for a nil result")
	}
}

func TestApp_RerunAndQuit(t *testing.T) {
	b := &fakeBackend{}
	app := New(b, "alice", "UTC", engine.Weights{})

	msg := app.Init()()
	if _, ok := msg.(scheduleLoadedMsg); !ok {
		t.Fatalf("Expected scheduleLoadedMsg, got %T", msg)
	}
	app.Update(msg)
	if app.result == nil || len(app.list.items) != 3 {
		t.Fatalf("Expected loaded schedule, got %+v", app.result)
	}

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd == nil {
		t.Fatal("Expected a rerun command")
	}
	cmd()
	if len(b.runs) != 2 {
		t.Errorf("Expected 2 runs, got %d", len(b.runs))
	}

	_, cmd = app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected q to quit")
	}
}

func TestApp_BusyError(t *testing.T) {
	b := &fakeBackend{err: scheduler.ErrBusy}
	app := New(b, "alice", "", engine.Weights{})
	app.Update(app.Init()())

	if !errors.Is(app.err, scheduler.ErrBusy) {
		t.Fatalf("Expected busy error, got %v", app.err)
	}
	if !strings.Contains(app.View(), "press r to retry") {
		t.Error("Expected busy hint in view")
	}
}

func TestApp_Commands(t *testing.T) {
	b := &fakeBackend{}
	app := New(b, "alice", "UTC", engine.Weights{})
	app.Update(app.Init()())

	msg := app.Execute("done")()
	res, ok := msg.(cmdResultMsg)
	if !ok || !res.rerun {
		t.Fatalf("Expected rerun result, got %#v", msg)
	}
	if len(b.completed) != 1 || b.completed[0] != "early" {
		t.Errorf("Expected the selected task completed, got %v", b.completed)
	}

	if msg := app.Execute("tz Europe/Berlin")(); msg != (tzChangedMsg{zone: "Europe/Berlin"}) {
		t.Errorf("Expected tz change, got %#v", msg)
	}
	if msg := app.Execute("tz Nowhere/Special")(); msg.(cmdResultMsg).rerun {
		t.Error("Expected invalid zone to be rejected")
	}

	msg = app.Execute("weights 3 1")()
	wm, ok := msg.(weightsChangedMsg)
	if !ok || wm.weights.Deadline != 0.75 {
		t.Fatalf("Expected normalized weights, got %#v", msg)
	}
	if _, cmd := app.Update(wm); cmd == nil {
		t.Error("Expected a rerun after changing weights")
	}
	if app.weights.Deadline != 0.75 {
		t.Errorf("Expected weights applied, got %+v", app.weights)
	}

	if msg := app.Execute("bogus")(); !strings.Contains(msg.(cmdResultMsg).message, "Unknown command") {
		t.Errorf("Unexpected result %#v", msg)
	}
}

func TestScheduleItem_Description(t *testing.T) {
	p := models.Placement{Start: monday08, End: monday08.Add(90 * time.Minute)}
	it := ScheduleItem{Task: models.Task{Title: "A", EstimatedHours: 3}, Placement: &p, Kind: KindScheduled, Allocated: 1.5}
	desc := it.Description()
	if !strings.Contains(desc, "1.5h of 3.0h") || !strings.Contains(desc, "08:00") {
		t.Errorf("Unexpected description %q", desc)
	}

	blocked := ScheduleItem{Task: models.Task{Title: "B"}, Kind: KindBlocked, Reason: "waiting on dependency"}
	if !strings.Contains(blocked.Description(), "waiting on dependency") {
		t.Errorf("Unexpected description %q", blocked.Description())
	}
}
