package memory

import (
	"context"
	"fmt"
	"sync"

	"noisemap/internal/domain/entities"
	"noisemap/internal/repository"
)

// RecordRepository stores noise records in memory. Reads and writes copy
// records in and out so callers can never mutate stored state.
//
// FetchRecords is an O(n log n) scan-filter-sort over every record, which is
// the same bounded-page contract the SQL and DynamoDB stores honor.
type RecordRepository struct {
	mu      sync.RWMutex
	records map[string]*entities.NoiseRecord
}

var _ repository.RecordStore = (*RecordRepository)(nil)

func NewRecordRepository() *RecordRepository {
	return &RecordRepository{
		records: make(map[string]*entities.NoiseRecord),
	}
}

func (r *RecordRepository) Create(ctx context.Context, rec *entities.NoiseRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.ID]; exists {
		return fmt.Errorf("record %s already exists", rec.ID)
	}
	r.records[rec.ID] = rec.Clone()
	return nil
}

func (r *RecordRepository) GetByID(ctx context.Context, id string) (*entities.NoiseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[id]
	if !exists {
		return nil, repository.ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (r *RecordRepository) Update(ctx context.Context, rec *entities.NoiseRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.ID]; !exists {
		return repository.ErrRecordNotFound
	}
	r.records[rec.ID] = rec.Clone()
	return nil
}

func (r *RecordRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[id]; !exists {
		return repository.ErrRecordNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *RecordRepository) FetchRecords(ctx context.Context, filter repository.RecordFilter) ([]*entities.NoiseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	all := make([]*entities.NoiseRecord, 0, len(r.records))
	for _, rec := range r.records {
		all = append(all, rec.Clone())
	}
	r.mu.RUnlock()

	return filter.Apply(all), nil
}

// Count returns the number of stored records.
func (r *RecordRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
