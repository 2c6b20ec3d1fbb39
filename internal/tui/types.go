package tui

import (
	"context"
	"sort"

	"github.com/fentz26/planwise/internal/models"
	"github.com/fentz26/planwise/internal/scheduler"
)

// Backend is what the viewer drives. *controlplane.Service satisfies it.
type Backend interface {
	RunSchedule(ctx context.Context, ownerID string, opts scheduler.RunOptions) (*models.ScheduleResult, error)
	CompleteTask(ctx context.Context, ownerID, id string) (*models.Task, error)
	Reschedule(ctx context.Context, ownerID, id string) (models.Placement, error)
}

// Item kinds, one per list in a schedule result.
const (
	KindScheduled = "scheduled"
	KindOverdue   = "overdue"
	KindConflict  = "conflict"
	KindBlocked   = "blocked"
)

// ScheduleItem is one row of the schedule view.
type ScheduleItem struct {
	Task      models.Task
	Placement *models.Placement
	Kind      string
	Reason    string
	Allocated float64
}

// itemsFromResult flattens a result into rows ordered by start time.
// Unplaced rows go last.
func itemsFromResult(res *models.ScheduleResult) []ScheduleItem {
	if res == nil {
		return nil
	}
	var items []ScheduleItem
	for _, st := range res.Scheduled {
		p := st.Placement
		items = append(items, ScheduleItem{Task: st.Task, Placement: &p, Kind: KindScheduled, Allocated: st.AllocatedHours})
	}
	for _, st := range res.Overdue {
		p := st.Placement
		items = append(items, ScheduleItem{Task: st.Task, Placement: &p, Kind: KindOverdue, Allocated: st.AllocatedHours})
	}
	for _, c := range res.Conflicts {
		items = append(items, ScheduleItem{Task: c.Task, Placement: c.Placement, Kind: KindConflict, Reason: c.Reason})
	}
	for _, t := range res.Blocked {
		items = append(items, ScheduleItem{Task: t, Kind: KindBlocked, Reason: "waiting on dependency"})
	}

	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := items[i].Placement, items[j].Placement
		switch {
		case pi == nil:
			return false
		case pj == nil:
			return true
		}
		return pi.Start.Before(pj.Start)
	})
	return items
}

type scheduleLoadedMsg struct {
	result *models.ScheduleResult
}

type errMsg struct {
	err error
}

func (e errMsg) Error() string { return e.err.Error() }
