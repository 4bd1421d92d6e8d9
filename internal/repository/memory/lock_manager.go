package memory

import (
	"context"
	"sync"
	"time"

	"noisemap/internal/repository"
)

// lockEntry is one held lock. A holder that never releases (a panicking
// request, a crashed worker) loses the lock once expiresAt passes.
type lockEntry struct {
	expiresAt time.Time
}

// LockManager provides in-process try-locks with TTL-based expiration. The
// record service takes one per record around an owner edit, so two edits of
// the same record cannot interleave their read-modify-write.
//
// It only serializes edits within one process. Replicas sharing a SQL or
// DynamoDB store each hold their own LockManager.
//
// Go Learning Note — Channels for Signaling:
// The `stop` field is a `chan struct{}`, an empty struct channel used purely
// for signaling. `struct{}` occupies zero bytes, making it the most efficient
// signal type. The pattern is: close(stop) to signal all goroutines listening
// on this channel to exit. A closed channel returns immediately on receive,
// so `<-lm.stop` in the select will trigger once Stop() is called.
type LockManager struct {
	mu       sync.Mutex
	locks    map[string]lockEntry
	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

var _ repository.LockManager = (*LockManager)(nil)

// NewLockManager creates a LockManager and starts a goroutine that sweeps
// expired locks every sweepEvery until Stop is called.
func NewLockManager(sweepEvery time.Duration) *LockManager {
	lm := &LockManager{
		locks: make(map[string]lockEntry),
		stop:  make(chan struct{}),
		now:   time.Now,
	}
	go lm.sweep(sweepEvery)
	return lm
}

// AcquireLock takes key for ttl. It returns false without waiting when
// another holder has it and it has not expired.
func (lm *LockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.now()
	if entry, held := lm.locks[key]; held && now.Before(entry.expiresAt) {
		return false, nil
	}
	lm.locks[key] = lockEntry{expiresAt: now.Add(ttl)}
	return true, nil
}

// ReleaseLock frees key before its TTL expires. Releasing a free key is a
// no-op.
func (lm *LockManager) ReleaseLock(ctx context.Context, key string) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	delete(lm.locks, key)
	return nil
}

// IsLocked reports whether key is held and not expired.
func (lm *LockManager) IsLocked(ctx context.Context, key string) (bool, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	entry, held := lm.locks[key]
	return held && lm.now().Before(entry.expiresAt), nil
}

// Len returns the number of entries, expired or not, still in the table.
func (lm *LockManager) Len() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.locks)
}

func (lm *LockManager) purgeExpired() {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.now()
	for key, entry := range lm.locks {
		if !now.Before(entry.expiresAt) {
			delete(lm.locks, key)
		}
	}
}

// sweep periodically removes expired locks.
//
// Go Learning Note — time.NewTicker:
// time.NewTicker creates a channel that receives a value at regular intervals.
// Unlike time.After (one-shot), a ticker repeats forever until stopped. Always
// call ticker.Stop() when done (via defer) to release the underlying timer
// resources.
//
// Go Learning Note — Safe Map Deletion During Iteration:
// In Go, it's safe to delete map keys during a for-range loop over that map.
// Entries not yet reached are simply never produced.
func (lm *LockManager) sweep(every time.Duration) {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lm.purgeExpired()
		case <-lm.stop:
			return
		}
	}
}

// Stop ends the sweeper goroutine. It is safe to call more than once.
func (lm *LockManager) Stop() {
	lm.stopOnce.Do(func() { close(lm.stop) })
}
