package engine

import (
	"sort"
	"time"

	"github.com/fentz26/planwise/internal/models"
)

const (
	// DefaultMaxAttempts bounds the number of conflict hops in one search.
	DefaultMaxAttempts = 50
	// DefaultHorizon bounds how far past now a search may wander.
	DefaultHorizon = 7 * 24 * time.Hour

	criticalUrgency = 0.8
	earlyStartHour  = 9
)

// PreferredHour maps an urgency score to the hour of day a task would ideally start.
func PreferredHour(score float64) int {
	switch {
	case score > 0.7:
		return 9
	case score > 0.4:
		return 10
	default:
		return 14
	}
}

// IsCritical reports whether score is in the band that gets early placement and,
// when a deadline cannot be met, an immediate start.
func IsCritical(score float64) bool {
	return score > criticalUrgency
}

// SlotFinder searches an owner's timeline for the earliest conflict-free window.
type SlotFinder struct {
	MaxAttempts int
	Horizon     time.Duration
}

// NewSlotFinder returns a finder with the default attempt budget and horizon.
func NewSlotFinder() SlotFinder {
	return SlotFinder{MaxAttempts: DefaultMaxAttempts, Horizon: DefaultHorizon}
}

// FindStart returns a start time for t that avoids every window in placed.
// found is false when the attempt budget or horizon ran out; the returned start is
// then the best candidate reached. The result is never before tc.Now.
func (f SlotFinder) FindStart(t models.Task, placed []models.Task, tc TimeContext, score float64) (time.Time, bool) {
	windows := Windows(placed, t.ID)
	dur := t.Duration()

	candidate := maxTime(tc.NextAt(PreferredHour(score)), tc.Now)
	start, found := f.walk(candidate, dur, windows, tc.Now)

	if IsCritical(score) {
		early := maxTime(tc.Now, tc.TodayAt(earlyStartHour))
		if _, clash := latestConflictEnd(models.Placement{Start: early, End: early.Add(dur)}, windows); !clash {
			return early, true
		}
	}
	return start, found
}

// FitBlock returns the earliest start at or after tc.Now where a block of length
// dur fits between the windows in placed.
func (f SlotFinder) FitBlock(dur time.Duration, placed []models.Task, tc TimeContext) (time.Time, bool) {
	return f.walk(tc.Now, dur, Windows(placed, ""), tc.Now)
}

func (f SlotFinder) walk(candidate time.Time, dur time.Duration, windows []models.Placement, now time.Time) (time.Time, bool) {
	attempts := f.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	horizon := f.Horizon
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	limit := now.Add(horizon)

	for i := 0; i < attempts; i++ {
		end, clash := latestConflictEnd(models.Placement{Start: candidate, End: candidate.Add(dur)}, windows)
		if !clash {
			return candidate, true
		}
		candidate = maxTime(end, now)
		if candidate.After(limit) {
			break
		}
	}
	return candidate, false
}

// Windows collects the placements of tasks other than excludeID, sorted by start.
func Windows(placed []models.Task, excludeID string) []models.Placement {
	windows := make([]models.Placement, 0, len(placed))
	for _, p := range placed {
		if p.Placement == nil || p.ID == excludeID {
			continue
		}
		windows = append(windows, *p.Placement)
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].Start.Before(windows[j].Start) })
	return windows
}

// HasConflict reports whether w overlaps any of windows.
func HasConflict(w models.Placement, windows []models.Placement) bool {
	_, clash := latestConflictEnd(w, windows)
	return clash
}

func latestConflictEnd(w models.Placement, windows []models.Placement) (time.Time, bool) {
	var latest time.Time
	clash := false
	for _, other := range windows {
		if w.Overlaps(other) {
			if !clash || other.End.After(latest) {
				latest = other.End
			}
			clash = true
		}
	}
	return latest, clash
}
