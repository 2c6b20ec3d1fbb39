package engine

import (
	"math"
	"testing"
	"time"

	"github.com/fentz26/planwise/internal/models"
)

func groupIDs(groups [][]models.Task) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		for _, t := range g {
			out[i] = append(out[i], t.ID)
		}
	}
	return out
}

func TestGroupByDeadlineProximity(t *testing.T) {
	tasks := []models.Task{
		newTask("e", 1, monday08.Add(30*time.Hour), 3),
		newTask("b", 1, monday08.Add(2*time.Hour), 3),
		newTask("a", 1, monday08.Add(1*time.Hour), 3),
		newTask("d", 1, monday08.Add(6*time.Hour), 3),
		newTask("c", 1, monday08.Add(3*time.Hour+30*time.Minute), 3),
	}

	got := groupIDs(GroupByDeadlineProximity(tasks))
	want := [][]string{{"a", "b", "c"}, {"d"}, {"e"}}
	if len(got) != len(want) {
		t.Fatalf("Expected %d groups, got %v", len(want), got)
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Fatalf("group %d: expected %v, got %v", i, want[i], got[i])
		}
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Errorf("group %d: expected %v, got %v", i, want[i], got[i])
			}
		}
	}
}

func TestGroupByDeadlineProximityBoundary(t *testing.T) {
	tasks := []models.Task{
		newTask("a", 1, monday08.Add(time.Hour), 3),
		newTask("b", 1, monday08.Add(3*time.Hour), 3),
		newTask("c", 1, monday08.Add(5*time.Hour+time.Minute), 3),
	}
	got := groupIDs(GroupByDeadlineProximity(tasks))
	if len(got) != 2 || len(got[0]) != 2 || got[1][0] != "c" {
		t.Errorf("Expected [[a b] [c]], got %v", got)
	}
}

func TestGroupByDeadlineProximityStable(t *testing.T) {
	d := monday08.Add(4 * time.Hour)
	tasks := []models.Task{newTask("z", 1, d, 5), newTask("m", 1, d, 4), newTask("a", 1, d, 1)}
	got := groupIDs(GroupByDeadlineProximity(tasks))
	if len(got) != 1 || got[0][0] != "z" || got[0][1] != "m" || got[0][2] != "a" {
		t.Errorf("Expected incoming order [z m a], got %v", got)
	}
	if GroupByDeadlineProximity(nil) != nil {
		t.Error("Expected nil for no tasks")
	}
}

func TestNeedsAllocation(t *testing.T) {
	a := ProportionalAllocator{Scorer: UrgencyScorer{Weights: DefaultWeights()}}
	due := monday08.Add(6 * time.Hour)

	crowded := []models.Task{newTask("a", 5, due, 3), newTask("b", 3, due, 3), newTask("c", 2, due, 3)}
	if !a.NeedsAllocation(crowded, monday08) {
		t.Error("Expected 10h of work in 6h to need allocation")
	}
	if a.NeedsAllocation(crowded[:1], monday08) {
		t.Error("Expected single task not to need allocation")
	}
	roomy := []models.Task{newTask("a", 2, due, 3), newTask("b", 3, due, 3)}
	if a.NeedsAllocation(roomy, monday08) {
		t.Error("Expected 5h of work in 6h not to need allocation")
	}
	if a.NeedsAllocation(crowded, due.Add(time.Minute)) {
		t.Error("Expected no allocation once the deadline has passed")
	}
}

func TestAllocateProportional(t *testing.T) {
	a := ProportionalAllocator{Scorer: UrgencyScorer{Weights: DefaultWeights()}}
	tc := testContext(monday08)
	due := monday08.Add(6 * time.Hour)
	group := []models.Task{newTask("c", 2, due, 3), newTask("a", 5, due, 3), newTask("b", 3, due, 3)}

	allocs := a.Allocate(group, tc)
	if len(allocs) != 3 {
		t.Fatalf("Expected 3 allocations, got %d", len(allocs))
	}

	wantIDs := []string{"a", "b", "c"}
	wantHours := []float64{3, 1.8, 1.2}
	cursor := monday08
	sum := 0.0
	for i, al := range allocs {
		if al.Task.ID != wantIDs[i] {
			t.Errorf("allocation %d: expected %s, got %s", i, wantIDs[i], al.Task.ID)
		}
		if math.Abs(al.AllocatedHours-wantHours[i]) > 1e-9 {
			t.Errorf("%s: expected %.2fh, got %.4fh", al.Task.ID, wantHours[i], al.AllocatedHours)
		}
		if !within(al.Placement.Start, cursor, time.Second) {
			t.Errorf("%s: expected start %v, got %v", al.Task.ID, cursor, al.Placement.Start)
		}
		cursor = al.Placement.End
		sum += al.AllocatedHours
	}
	if sum > 6+1e-9 {
		t.Errorf("Expected total allocation within 6h, got %f", sum)
	}
	if !within(cursor, due, time.Second) {
		t.Errorf("Expected last block to end at %v, got %v", due, cursor)
	}
}

func TestAllocateOrdersByUrgency(t *testing.T) {
	a := ProportionalAllocator{Scorer: UrgencyScorer{Weights: DefaultWeights()}}
	due := monday08.Add(3 * time.Hour)
	group := []models.Task{newTask("a", 2, due, 1), newTask("b", 2, due, 5)}

	allocs := a.Allocate(group, testContext(monday08))
	if len(allocs) != 2 || allocs[0].Task.ID != "b" {
		t.Fatalf("Expected higher priority task first, got %+v", allocs)
	}
}

func TestAllocateFloor(t *testing.T) {
	a := ProportionalAllocator{Scorer: UrgencyScorer{Weights: DefaultWeights()}}
	due := monday08.Add(2 * time.Hour)
	group := []models.Task{newTask("big", 10, due, 3), newTask("s1", 0.1, due, 3), newTask("s2", 0.1, due, 3)}

	allocs := a.Allocate(group, testContext(monday08))
	sum := 0.0
	for _, al := range allocs {
		if al.AllocatedHours < MinAllocation.Hours()-1e-9 {
			t.Errorf("%s: allocation %f below floor", al.Task.ID, al.AllocatedHours)
		}
		if al.Task.ID == "big" && math.Abs(al.AllocatedHours-1.5) > 1e-9 {
			t.Errorf("Expected big to get 1.5h, got %f", al.AllocatedHours)
		}
		sum += al.AllocatedHours
	}
	if sum > 2+1e-9 {
		t.Errorf("Expected total within 2h, got %f", sum)
	}
}

func TestAllocateFromOffset(t *testing.T) {
	a := ProportionalAllocator{Scorer: UrgencyScorer{Weights: DefaultWeights()}}
	due := monday08.Add(4 * time.Hour)
	group := []models.Task{newTask("a", 3, due, 3), newTask("b", 3, due, 3)}
	from := monday08.Add(30 * time.Minute)

	allocs := a.AllocateFrom(group, testContext(monday08), from)
	if len(allocs) != 2 {
		t.Fatalf("Expected 2 allocations, got %d", len(allocs))
	}
	if !allocs[0].Placement.Start.Equal(from) {
		t.Errorf("Expected first block at %v, got %v", from, allocs[0].Placement.Start)
	}
	if !allocs[1].Placement.Start.Equal(allocs[0].Placement.End) {
		t.Error("Expected blocks to be back-to-back")
	}
	if allocs[0].Placement.Overlaps(allocs[1].Placement) {
		t.Error("Expected allocations not to overlap")
	}
}
