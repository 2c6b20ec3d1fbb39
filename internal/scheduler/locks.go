package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ownerLocks hands out one binary semaphore per owner. The map mutex is held only
// while looking up the semaphore, never while a run holds it.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{locks: make(map[string]*semaphore.Weighted)}
}

func (l *ownerLocks) get(owner string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.locks[owner]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.locks[owner] = sem
	}
	return sem
}

// acquire waits up to timeout for the owner's lock. The returned func releases it.
func (l *ownerLocks) acquire(ctx context.Context, owner string, timeout time.Duration) (func(), error) {
	sem := l.get(owner)
	if sem.TryAcquire(1) {
		return func() { sem.Release(1) }, nil
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := sem.Acquire(wctx, 1); err != nil {
		return nil, fmt.Errorf("%w: owner %s: %w", ErrBusy, owner, err)
	}
	return func() { sem.Release(1) }, nil
}
