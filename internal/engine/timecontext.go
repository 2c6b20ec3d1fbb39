// Package engine implements the scheduling decisions for a single owner's timeline:
// urgency scoring, dependency gating, slot search, deadline adjustment and
// proportional allocation under contention.
//
// Everything in this package is pure: functions take the task set and a TimeContext
// and return decisions. Persistence and locking live in the scheduler package.
package engine

import (
	"fmt"
	"time"
)

// TimeContext is the frame a scheduling run works in: a single "now" and the
// owner's civil timezone. All comparisons in a run use the same TimeContext.
type TimeContext struct {
	Now      time.Time
	Location *time.Location
}

// NewTimeContext resolves tz and expresses now in it, truncated to the minute.
// An empty tz means UTC.
func NewTimeContext(now time.Time, tz string) (TimeContext, error) {
	loc := time.UTC
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return TimeContext{Now: now.In(time.UTC).Truncate(time.Minute), Location: time.UTC}, fmt.Errorf("load timezone %q: %w", tz, err)
		}
		loc = l
	}
	return TimeContext{Now: now.In(loc).Truncate(time.Minute), Location: loc}, nil
}

// In converts t into the context's timezone.
func (tc TimeContext) In(t time.Time) time.Time {
	return t.In(tc.loc())
}

// TodayAt returns today's civil date in the context timezone at hour:00.
func (tc TimeContext) TodayAt(hour int) time.Time {
	n := tc.Now.In(tc.loc())
	return time.Date(n.Year(), n.Month(), n.Day(), hour, 0, 0, 0, tc.loc())
}

// NextAt returns today at hour:00, or tomorrow at hour:00 if that has already passed.
func (tc TimeContext) NextAt(hour int) time.Time {
	t := tc.TodayAt(hour)
	if t.Before(tc.Now) {
		n := tc.Now.In(tc.loc())
		t = time.Date(n.Year(), n.Month(), n.Day()+1, hour, 0, 0, 0, tc.loc())
	}
	return t
}

// Name returns the IANA name of the context timezone.
func (tc TimeContext) Name() string {
	return tc.loc().String()
}

func (tc TimeContext) loc() *time.Location {
	if tc.Location == nil {
		return time.UTC
	}
	return tc.Location
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
