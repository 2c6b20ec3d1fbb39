// Package metrics exposes scheduling counters behind a small interface so the
// scheduler and notifier can run with or without Prometheus.
package metrics

import "time"

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeBusy    = "busy"
	OutcomeError   = "error"
)

type Recorder interface {
	RunCompleted(outcome string, d time.Duration)
	TasksScheduled(n int)
	TasksOverdue(n int)
	TasksConflicted(n int)
	TasksBlocked(n int)
	NotificationSent()
	NotificationFailed()
	NotificationDropped()
}

// Nop discards everything.
type Nop struct{}

func (Nop) RunCompleted(string, time.Duration) {}
func (Nop) TasksScheduled(int)                 {}
func (Nop) TasksOverdue(int)                   {}
func (Nop) TasksConflicted(int)                {}
func (Nop) TasksBlocked(int)                   {}
func (Nop) NotificationSent()                  {}
func (Nop) NotificationFailed()                {}
func (Nop) NotificationDropped()               {}
