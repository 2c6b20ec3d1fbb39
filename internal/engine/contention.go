package engine

import (
	"sort"
	"time"

	"github.com/fentz26/planwise/internal/models"
)

const (
	// ProximityThreshold is the largest gap between consecutive deadlines that
	// still keeps two tasks in the same contention group.
	ProximityThreshold = 2 * time.Hour
	// MinAllocation is the floor on any proportionally allocated window.
	MinAllocation = 15 * time.Minute
)

// GroupByDeadlineProximity sorts tasks by deadline and splits them wherever two
// consecutive deadlines are more than ProximityThreshold apart. The sort is
// stable, so tasks sharing a deadline keep their incoming (urgency) order.
func GroupByDeadlineProximity(tasks []models.Task) [][]models.Task {
	if len(tasks) == 0 {
		return nil
	}
	sorted := append([]models.Task(nil), tasks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Deadline.Before(sorted[j].Deadline) })

	var groups [][]models.Task
	current := []models.Task{sorted[0]}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Deadline.Sub(sorted[i-1].Deadline) > ProximityThreshold {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, sorted[i])
	}
	return append(groups, current)
}

// Allocation is one task's share of a contended window.
type Allocation struct {
	Task           models.Task
	Placement      models.Placement
	AllocatedHours float64
	Factor         float64
}

// ProportionalAllocator time-slices a contention group so the whole group fits
// before its earliest deadline.
type ProportionalAllocator struct {
	Scorer UrgencyScorer
}

// NeedsAllocation reports whether group has more than one task, demands more
// time than remains before its earliest deadline, and that remaining time is positive.
func (a ProportionalAllocator) NeedsAllocation(group []models.Task, now time.Time) bool {
	if len(group) <= 1 {
		return false
	}
	available := availableHours(group, now)
	return totalHours(group) > available && available > 0
}

// Allocate places the group back-to-back starting at tc.Now.
func (a ProportionalAllocator) Allocate(group []models.Task, tc TimeContext) []Allocation {
	return a.AllocateFrom(group, tc, tc.Now)
}

// AllocateFrom places the group back-to-back starting at from. Shares are sized
// against the time between tc.Now and the earliest deadline. Each share is
// proportional to the task's estimated duration with a MinAllocation floor; the
// floor is reserved first and the remainder split among the other tasks, so the
// group stays within the available time whenever the floors alone fit.
func (a ProportionalAllocator) AllocateFrom(group []models.Task, tc TimeContext, from time.Time) []Allocation {
	if len(group) == 0 {
		return nil
	}
	available := availableHours(group, tc.Now)
	if available <= 0 {
		return nil
	}
	total := totalHours(group)

	ordered := append([]models.Task(nil), group...)
	scores := make(map[string]float64, len(ordered))
	for _, t := range ordered {
		scores[t.ID] = a.Scorer.Score(t, tc.Now)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		si, sj := scores[ordered[i].ID], scores[ordered[j].ID]
		if si != sj {
			return si > sj
		}
		return ordered[i].ID < ordered[j].ID
	})

	shares := shareHours(ordered, available)
	allocs := make([]Allocation, 0, len(ordered))
	cursor := from
	for _, t := range ordered {
		h := shares[t.ID]
		end := cursor.Add(models.HoursToDuration(h))
		allocs = append(allocs, Allocation{
			Task:           t,
			Placement:      models.Placement{Start: cursor, End: end},
			AllocatedHours: h,
			Factor:         t.EstimatedHours / total,
		})
		cursor = end
	}
	return allocs
}

// shareHours splits available hours proportionally to estimated duration. Tasks
// whose proportional share falls under the floor are pinned to it and removed
// from the pool until the remaining shares all clear the floor.
func shareHours(tasks []models.Task, available float64) map[string]float64 {
	floor := MinAllocation.Hours()
	shares := make(map[string]float64, len(tasks))
	pinned := make(map[string]bool, len(tasks))

	for {
		pool := available
		weight := 0.0
		for _, t := range tasks {
			if pinned[t.ID] {
				pool -= floor
			} else {
				weight += t.EstimatedHours
			}
		}
		changed := false
		for _, t := range tasks {
			if pinned[t.ID] {
				shares[t.ID] = floor
				continue
			}
			h := 0.0
			if weight > 0 && pool > 0 {
				h = t.EstimatedHours / weight * pool
			}
			if h < floor {
				pinned[t.ID] = true
				changed = true
			}
			shares[t.ID] = h
		}
		if !changed {
			return shares
		}
	}
}

func availableHours(group []models.Task, now time.Time) float64 {
	earliest := group[0].Deadline
	for _, t := range group[1:] {
		if t.Deadline.Before(earliest) {
			earliest = t.Deadline
		}
	}
	return earliest.Sub(now).Hours()
}

func totalHours(group []models.Task) float64 {
	sum := 0.0
	for _, t := range group {
		sum += t.EstimatedHours
	}
	return sum
}
