// Package scheduler runs the per-owner recompute: it serializes runs per owner,
// feeds the owner's tasks through an engine.Strategy and persists the placements.
package scheduler

import (
	"time"

	"github.com/fentz26/planwise/internal/engine"
)

// Config defines the scheduler configuration.
type Config struct {
	// LockTimeout bounds how long a run waits for the owner's lock before giving up with ErrBusy.
	LockTimeout time.Duration `yaml:"lock_timeout"`
	// DeadlineWeight and PriorityWeight seed the urgency weights; they are normalized on use.
	DeadlineWeight float64 `yaml:"deadline_weight"`
	PriorityWeight float64 `yaml:"priority_weight"`
	// DefaultTimezone is used when a run does not name one.
	DefaultTimezone string `yaml:"default_timezone"`
	// Periodic is a cron spec for the sweep over all owners. Empty disables it.
	Periodic string `yaml:"periodic"`
	// NotifyThreshold is how far a placement must move before a notification fires.
	NotifyThreshold time.Duration `yaml:"notify_threshold"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	w := engine.DefaultWeights()
	return &Config{
		LockTimeout:     5 * time.Second,
		DeadlineWeight:  w.Deadline,
		PriorityWeight:  w.Priority,
		DefaultTimezone: "UTC",
		Periodic:        "@every 15m",
		NotifyThreshold: 60 * time.Second,
	}
}

// Weights returns the configured weights, normalized.
func (c *Config) Weights() engine.Weights {
	return engine.NormalizeWeights(c.DeadlineWeight, c.PriorityWeight)
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.LockTimeout <= 0 {
		out.LockTimeout = d.LockTimeout
	}
	if out.DeadlineWeight == 0 && out.PriorityWeight == 0 {
		out.DeadlineWeight, out.PriorityWeight = d.DeadlineWeight, d.PriorityWeight
	}
	if out.DefaultTimezone == "" {
		out.DefaultTimezone = d.DefaultTimezone
	}
	if out.NotifyThreshold <= 0 {
		out.NotifyThreshold = d.NotifyThreshold
	}
	return &out
}
