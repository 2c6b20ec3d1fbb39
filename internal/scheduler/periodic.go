package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// OwnerLister enumerates owners that have work to schedule.
type OwnerLister interface {
	ListOwners(ctx context.Context) ([]string, error)
}

// SweepResult counts the outcome of one pass over all owners.
type SweepResult struct {
	Owners int
	Busy   int
	Failed int
}

const sweepParallelism = 4

// Periodic re-runs every owner's schedule on a cron spec so placements drift
// forward with the clock even when nothing is edited.
type Periodic struct {
	sched  *Scheduler
	owners OwnerLister
	spec   string
	log    zerolog.Logger
	parser cron.Parser

	mu     sync.Mutex
	c      *cron.Cron
	runCtx context.Context
	cancel context.CancelFunc
}

// NewPeriodic validates spec and returns a stopped sweeper.
func NewPeriodic(s *Scheduler, owners OwnerLister, spec string, log zerolog.Logger) (*Periodic, error) {
	p := &Periodic{
		sched:  s,
		owners: owners,
		spec:   spec,
		log:    log.With().Str("component", "periodic").Logger(),
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	if _, err := p.parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("parse periodic spec %q: %w", spec, err)
	}
	return p, nil
}

// Start schedules the sweep. Overlapping ticks are skipped.
func (p *Periodic) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.c != nil {
		return nil
	}

	p.runCtx, p.cancel = context.WithCancel(ctx)
	runCtx := p.runCtx
	p.c = cron.New(
		cron.WithParser(p.parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := p.c.AddFunc(p.spec, func() { p.RunOnce(runCtx) }); err != nil {
		p.cancel()
		p.c = nil
		return fmt.Errorf("add periodic job: %w", err)
	}
	p.c.Start()
	p.log.Info().Str("spec", p.spec).Msg("periodic sweep started")
	return nil
}

// Stop cancels any sweep in flight and waits for it to return.
func (p *Periodic) Stop() {
	p.mu.Lock()
	c, cancel := p.c, p.cancel
	p.c, p.cancel = nil, nil
	p.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	p.log.Info().Msg("periodic sweep stopped")
}

// RunOnce recomputes every owner. Owners run in parallel; a busy owner is
// skipped because a run for it is already in progress.
func (p *Periodic) RunOnce(ctx context.Context) SweepResult {
	owners, err := p.owners.ListOwners(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("list owners failed")
		return SweepResult{}
	}

	var busy, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepParallelism)
	for _, owner := range owners {
		owner := owner
		g.Go(func() error {
			_, err := p.sched.RunForOwner(gctx, owner, RunOptions{})
			switch {
			case err == nil:
			case IsBusy(err):
				busy.Add(1)
			default:
				failed.Add(1)
				p.log.Warn().Err(err).Str("owner", owner).Msg("periodic run failed")
			}
			return nil
		})
	}
	g.Wait()

	res := SweepResult{Owners: len(owners), Busy: int(busy.Load()), Failed: int(failed.Load())}
	p.log.Debug().Int("owners", res.Owners).Int("busy", res.Busy).Int("failed", res.Failed).Msg("periodic sweep done")
	return res
}
