package memory

import (
	"context"
	"sync"
	"time"

	"noisemap/internal/domain/entities"
	"noisemap/internal/repository"
)

type counterKey struct {
	scope entities.CounterScope
	key   string
}

// appliedOpTTL is how long an op id is remembered. Replays come from retries
// within seconds; an op replayed after this window applies again.
const appliedOpTTL = 24 * time.Hour

// CounterRepository keeps counters in memory. A single mutex makes every
// Apply atomic across all of its deltas, the in-process equivalent of a
// server-side increment.
type CounterRepository struct {
	mu        sync.Mutex
	counters  map[counterKey]int64
	applied   map[string]time.Time
	lastPurge time.Time
	now       func() time.Time
}

var _ repository.CounterStore = (*CounterRepository)(nil)

func NewCounterRepository() *CounterRepository {
	return &CounterRepository{
		counters: make(map[counterKey]int64),
		applied:  make(map[string]time.Time),
		now:      time.Now,
	}
}

// AppliedOps returns the number of op ids currently remembered.
func (r *CounterRepository) AppliedOps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.applied)
}

// forgetExpiredOps drops op ids older than appliedOpTTL, at most once a
// minute. The caller holds mu.
func (r *CounterRepository) forgetExpiredOps(now time.Time) {
	if now.Sub(r.lastPurge) < time.Minute {
		return
	}
	r.lastPurge = now
	threshold := now.Add(-appliedOpTTL)
	for opID, at := range r.applied {
		if at.Before(threshold) {
			delete(r.applied, opID)
		}
	}
}

func (r *CounterRepository) Apply(ctx context.Context, opID string, deltas ...entities.CounterDelta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.forgetExpiredOps(now)
	if opID != "" {
		if _, done := r.applied[opID]; done {
			return nil
		}
		r.applied[opID] = now
	}
	for _, d := range deltas {
		r.counters[counterKey{d.Scope, d.Key}] += d.Delta
	}
	return nil
}

func (r *CounterRepository) Get(ctx context.Context, scope entities.CounterScope, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[counterKey{scope, key}], nil
}
