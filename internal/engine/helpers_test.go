package engine

import (
	"time"

	"github.com/fentz26/planwise/internal/models"
)

// monday08 is 2025-03-10 08:00 UTC.
var monday08 = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func testContext(now time.Time) TimeContext {
	return TimeContext{Now: now, Location: time.UTC}
}

func newTask(id string, hours float64, deadline time.Time, priority int) models.Task {
	return models.Task{
		ID:             id,
		OwnerID:        "owner-1",
		Title:          "Task " + id,
		EstimatedHours: hours,
		Deadline:       deadline,
		Priority:       priority,
		Status:         models.TaskStatusPending,
	}
}

func placed(id string, start, end time.Time) models.Task {
	t := newTask(id, end.Sub(start).Hours(), end.Add(24*time.Hour), 3)
	t.Placement = &models.Placement{Start: start, End: end}
	return t
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

func within(a, b time.Time, tolerance time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}
