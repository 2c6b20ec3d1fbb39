package engine

import (
	"time"

	"github.com/fentz26/planwise/internal/models"
)

// Strategy is the set of decisions a scheduling backend makes for one run.
// Procedural is the reference implementation; any other backend must produce the
// same placements, eligibility and allocations for the same inputs.
type Strategy interface {
	Score(t models.Task, now time.Time) float64
	CanSchedule(t models.Task, pred *models.Task, now time.Time) bool
	FindStart(t models.Task, placed []models.Task, tc TimeContext, score float64) (time.Time, bool)
	FitBlock(dur time.Duration, placed []models.Task, tc TimeContext) (time.Time, bool)
	Adjust(t models.Task, proposed time.Time, tc TimeContext, score float64) models.Placement
	NeedsAllocation(group []models.Task, now time.Time) bool
	AllocateFrom(group []models.Task, tc TimeContext, from time.Time) []Allocation
}

// StrategyFactory builds a Strategy for a run with the given weights.
type StrategyFactory func(w Weights) Strategy

// Procedural wires the engine components together.
type Procedural struct {
	Scorer    UrgencyScorer
	Gate      DependencyGate
	Finder    SlotFinder
	Adjuster  DeadlineAdjuster
	Allocator ProportionalAllocator
}

// NewProcedural returns the reference strategy for weights w, normalized.
func NewProcedural(w Weights) Strategy {
	scorer := UrgencyScorer{Weights: w.Normalized()}
	return &Procedural{
		Scorer:    scorer,
		Finder:    NewSlotFinder(),
		Allocator: ProportionalAllocator{Scorer: scorer},
	}
}

func (p *Procedural) Score(t models.Task, now time.Time) float64 {
	return p.Scorer.Score(t, now)
}

func (p *Procedural) CanSchedule(t models.Task, pred *models.Task, now time.Time) bool {
	return p.Gate.CanSchedule(t, pred, now)
}

func (p *Procedural) FindStart(t models.Task, placed []models.Task, tc TimeContext, score float64) (time.Time, bool) {
	return p.Finder.FindStart(t, placed, tc, score)
}

func (p *Procedural) FitBlock(dur time.Duration, placed []models.Task, tc TimeContext) (time.Time, bool) {
	return p.Finder.FitBlock(dur, placed, tc)
}

func (p *Procedural) Adjust(t models.Task, proposed time.Time, tc TimeContext, score float64) models.Placement {
	return p.Adjuster.Adjust(t, proposed, tc, score)
}

func (p *Procedural) NeedsAllocation(group []models.Task, now time.Time) bool {
	return p.Allocator.NeedsAllocation(group, now)
}

func (p *Procedural) AllocateFrom(group []models.Task, tc TimeContext, from time.Time) []Allocation {
	return p.Allocator.AllocateFrom(group, tc, from)
}
