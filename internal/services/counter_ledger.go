package services

import (
	"context"

	"noisemap/internal/domain/entities"
	"noisemap/internal/repository"
	"noisemap/pkg/utils"
)

// CounterLedger maintains the denormalized record tallies shown as
// community and user statistics.
//
// The counters are not transactionally coupled to the record set. A record
// write that succeeds while its counter update fails leaves the counters
// drifted; they are display values, not a source of truth. Replaying an
// operation is safe because every update carries an operation id the
// store applies at most once.
type CounterLedger struct {
	store repository.CounterStore
}

func NewCounterLedger(store repository.CounterStore) *CounterLedger {
	return &CounterLedger{store: store}
}

// deltasFor lists the counters a record contributes to, each moved by sign.
func deltasFor(rec *entities.NoiseRecord, sign int64) []entities.CounterDelta {
	deltas := []entities.CounterDelta{
		{Scope: entities.ScopeGlobal, Key: entities.CounterTotalRecords, Delta: sign},
	}
	if rec.Kind == entities.KindComplaint {
		deltas = append(deltas, entities.CounterDelta{
			Scope: entities.ScopeGlobal, Key: entities.CounterTotalComplaints, Delta: sign,
		})
	}
	deltas = append(deltas, entities.CounterDelta{
		Scope: entities.ScopeUser, Key: entities.UserCounterKey(rec.OwnerID, rec.Kind), Delta: sign,
	})
	return deltas
}

// RecordCreated increments every counter rec contributes to.
func (l *CounterLedger) RecordCreated(ctx context.Context, rec *entities.NoiseRecord) error {
	return l.store.Apply(ctx, utils.OperationID(rec.ID, "created"), deltasFor(rec, 1)...)
}

// RecordDeleted decrements every counter rec contributed to. rec must be the
// record as read before the delete, since its kind and owner decide which
// counters move.
func (l *CounterLedger) RecordDeleted(ctx context.Context, rec *entities.NoiseRecord) error {
	return l.store.Apply(ctx, utils.OperationID(rec.ID, "deleted"), deltasFor(rec, -1)...)
}

// CommunityStats reads the global counters.
func (l *CounterLedger) CommunityStats(ctx context.Context) (*entities.CommunityStats, error) {
	total, err := l.store.Get(ctx, entities.ScopeGlobal, entities.CounterTotalRecords)
	if err != nil {
		return nil, err
	}
	complaints, err := l.store.Get(ctx, entities.ScopeGlobal, entities.CounterTotalComplaints)
	if err != nil {
		return nil, err
	}
	return &entities.CommunityStats{TotalRecords: total, TotalComplaints: complaints}, nil
}

// UserStats reads one owner's per-kind counters.
func (l *CounterLedger) UserStats(ctx context.Context, ownerID string) (*entities.UserStats, error) {
	stats := &entities.UserStats{
		OwnerID: ownerID,
		ByKind:  make(map[entities.Kind]int64, len(entities.AllKinds)),
	}
	for _, kind := range entities.AllKinds {
		n, err := l.store.Get(ctx, entities.ScopeUser, entities.UserCounterKey(ownerID, kind))
		if err != nil {
			return nil, err
		}
		stats.ByKind[kind] = n
		stats.Total += n
	}
	return stats, nil
}
