package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"noisemap/internal/domain/entities"
	"noisemap/internal/geo"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	// ErrStoreUnavailable marks every failure to reach or use the backing
	// store. Callers surface it; they never retry on their own.
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrInvalidFilter rejects a RecordFilter before it reaches a store.
	ErrInvalidFilter = errors.New("invalid record filter")
)

// RecordFilter selects records for FetchRecords. Zero values mean "no
// constraint"; Limit 0 means unbounded.
type RecordFilter struct {
	Kind         entities.Kind
	VisibleOnly  bool
	OwnerID      string
	MinTimestamp time.Time
	// SpatialKeyPrefix restricts results to one geohash cell. No analytics
	// pipeline sets it yet; it is the seam for a prefix-range read path.
	SpatialKeyPrefix string
	Limit            int
}

// Validate rejects a SpatialKeyPrefix outside the geohash alphabet. Stores
// pass the prefix to LIKE and begins_with, so '%' or '_' must never get
// through.
func (f RecordFilter) Validate() error {
	if !geo.ValidPrefix(f.SpatialKeyPrefix) {
		return fmt.Errorf("%w: spatial key prefix %q", ErrInvalidFilter, f.SpatialKeyPrefix)
	}
	if f.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidFilter)
	}
	return nil
}

// Matches reports whether rec satisfies every constraint of f except Limit.
func (f RecordFilter) Matches(rec *entities.NoiseRecord) bool {
	if rec == nil {
		return false
	}
	if f.Kind != "" && rec.Kind != f.Kind {
		return false
	}
	if f.VisibleOnly && !rec.Visible {
		return false
	}
	if f.OwnerID != "" && rec.OwnerID != f.OwnerID {
		return false
	}
	if !f.MinTimestamp.IsZero() && rec.Timestamp.Before(f.MinTimestamp) {
		return false
	}
	if f.SpatialKeyPrefix != "" && !strings.HasPrefix(rec.SpatialKey, f.SpatialKeyPrefix) {
		return false
	}
	return true
}

// Apply filters, orders newest first and truncates records in place of a
// store that cannot do it server-side. The input slice is not modified.
func (f RecordFilter) Apply(records []*entities.NoiseRecord) []*entities.NoiseRecord {
	out := make([]*entities.NoiseRecord, 0, len(records))
	for _, rec := range records {
		if f.Matches(rec) {
			out = append(out, rec)
		}
	}
	SortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// SortNewestFirst orders records by timestamp descending, breaking ties by
// id so pages are deterministic.
func SortNewestFirst(records []*entities.NoiseRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, tj := records[i].Timestamp, records[j].Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return records[i].ID > records[j].ID
	})
}

// RecordStore persists noise records. FetchRecords returns records ordered by
// timestamp, newest first, and never more than filter.Limit of them when a
// limit is set. The store has no proximity or grouping operators; those run
// in memory over the fetched page.
type RecordStore interface {
	Create(ctx context.Context, rec *entities.NoiseRecord) error
	GetByID(ctx context.Context, id string) (*entities.NoiseRecord, error)
	Update(ctx context.Context, rec *entities.NoiseRecord) error
	Delete(ctx context.Context, id string) error
	FetchRecords(ctx context.Context, filter RecordFilter) ([]*entities.NoiseRecord, error)
}

// CounterStore keeps denormalized tallies. Apply must change every counter
// server-side and atomically (never read-modify-write from the caller), and
// is idempotent per non-empty opID: a second Apply with the same opID is a
// no-op that returns nil. An empty opID applies unconditionally.
type CounterStore interface {
	Apply(ctx context.Context, opID string, deltas ...entities.CounterDelta) error
	Get(ctx context.Context, scope entities.CounterScope, key string) (int64, error)
}

// LockManager hands out named try-locks with a time-to-live.
type LockManager interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
	IsLocked(ctx context.Context, key string) (bool, error)
}
