package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PromMetrics struct {
	runs          *prometheus.CounterVec
	runLatency    prometheus.Histogram
	scheduled     prometheus.Counter
	overdue       prometheus.Counter
	conflicts     prometheus.Counter
	blocked       prometheus.Counter
	notified      prometheus.Counter
	notifyFailed  prometheus.Counter
	notifyDropped prometheus.Counter
}

func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	m := &PromMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planwise_schedule_runs_total",
			Help: "Number of owner recomputes by outcome",
		}, []string{"outcome"}),
		runLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planwise_schedule_run_seconds",
			Help:    "Duration of owner recomputes",
			Buckets: prometheus.DefBuckets,
		}),
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planwise_tasks_scheduled_total",
			Help: "Number of tasks placed before their deadline",
		}),
		overdue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planwise_tasks_overdue_total",
			Help: "Number of tasks placed past their deadline",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planwise_tasks_conflicted_total",
			Help: "Number of tasks that could not be placed cleanly or persisted",
		}),
		blocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planwise_tasks_blocked_total",
			Help: "Number of tasks held back by their dependency",
		}),
		notified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planwise_notifications_sent_total",
			Help: "Number of delivered notifications",
		}),
		notifyFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planwise_notifications_failed_total",
			Help: "Number of notifications a sink rejected",
		}),
		notifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planwise_notifications_dropped_total",
			Help: "Number of notifications dropped on a full or stopped queue",
		}),
	}
	reg.MustRegister(m.runs, m.runLatency, m.scheduled, m.overdue, m.conflicts, m.blocked,
		m.notified, m.notifyFailed, m.notifyDropped)
	return m
}

func (m *PromMetrics) RunCompleted(outcome string, d time.Duration) {
	m.runs.WithLabelValues(outcome).Inc()
	m.runLatency.Observe(d.Seconds())
}
func (m *PromMetrics) TasksScheduled(n int) {
	m.scheduled.Add(float64(n))
}
func (m *PromMetrics) TasksOverdue(n int) {
	m.overdue.Add(float64(n))
}
func (m *PromMetrics) TasksConflicted(n int) {
	m.conflicts.Add(float64(n))
}
func (m *PromMetrics) TasksBlocked(n int) {
	m.blocked.Add(float64(n))
}
func (m *PromMetrics) NotificationSent() {
	m.notified.Inc()
}
func (m *PromMetrics) NotificationFailed() {
	m.notifyFailed.Inc()
}
func (m *PromMetrics) NotificationDropped() {
	m.notifyDropped.Inc()
}
