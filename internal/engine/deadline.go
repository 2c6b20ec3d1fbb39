package engine

import (
	"time"

	"github.com/fentz26/planwise/internal/models"
)

// DeadlineAdjuster reshapes a proposed window that would finish after the deadline.
type DeadlineAdjuster struct{}

// Adjust returns the window to use for t given a proposed start.
//
// A window that already finishes by the deadline is returned as is. Otherwise the
// task is pulled to the latest start that still meets the deadline, provided that
// start is after now. When even that is impossible the deadline is missed: critical
// tasks start immediately, others keep the later of now and the proposed start.
func (DeadlineAdjuster) Adjust(t models.Task, proposed time.Time, tc TimeContext, score float64) models.Placement {
	dur := t.Duration()
	deadline := tc.In(t.Deadline)
	if !proposed.Add(dur).After(deadline) {
		return models.Placement{Start: proposed, End: proposed.Add(dur)}
	}

	latest := deadline.Add(-dur)
	if latest.After(tc.Now) {
		return models.Placement{Start: latest, End: deadline}
	}

	start := maxTime(tc.Now, proposed)
	if IsCritical(score) {
		start = tc.Now
	}
	return models.Placement{Start: start, End: start.Add(dur)}
}
