package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"noisemap/internal/domain/entities"
	"noisemap/internal/repository"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "noisemap.db")
	s, err := Open(context.Background(), DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id string, ts time.Time) *entities.NoiseRecord {
	return &entities.NoiseRecord{
		ID:         id,
		OwnerID:    "u1",
		Kind:       entities.KindComplaint,
		Level:      entities.LevelOf(72.5),
		Position:   &entities.Location{Latitude: -12.0977, Longitude: -77.0365},
		SpatialKey: "6mc5kgt8q",
		Address:    "Av. Larco 345, Miraflores, Lima",
		Timestamp:  ts,
		Visible:    true,

		ComplaintOrigin: "construction",
		ComplaintImpact: "sleep",
	}
}

func TestStore_RecordRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2024, 5, 1, 8, 30, 0, 123, time.UTC)

	if err := s.Create(ctx, sampleRecord("r1", ts)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := s.GetByID(ctx, "r1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Expected timestamp %v, got %v", ts, got.Timestamp)
	}
	if got.Level == nil || *got.Level != 72.5 || got.Kind != entities.KindComplaint || !got.Visible {
		t.Errorf("Unexpected record: %+v", got)
	}
	if got.Position == nil || got.Position.Latitude != -12.0977 {
		t.Errorf("Expected position to round-trip, got %+v", got.Position)
	}
	if got.ComplaintOrigin != "construction" {
		t.Errorf("Expected complaint origin, got %q", got.ComplaintOrigin)
	}

	if _, err := s.GetByID(ctx, "missing"); !errors.Is(err, repository.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestStore_MissingFieldsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := &entities.NoiseRecord{ID: "bare", OwnerID: "u1", Kind: entities.KindManual, Level: entities.LevelOf(math.NaN())}
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := s.GetByID(ctx, "bare")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.HasPosition() || got.HasTimestamp() || got.HasLevel() {
		t.Errorf("Expected position, timestamp and level to stay missing, got %+v", got)
	}
	if got.Level != nil {
		t.Errorf("Expected a non-finite level to load as nil, got %v", *got.Level)
	}
}

func TestStore_UpdateDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec := sampleRecord("r1", time.Now())

	if err := s.Update(ctx, rec); !errors.Is(err, repository.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
	s.Create(ctx, rec)

	rec.Visible = false
	rec.Comment = "jackhammer at 6am"
	rec.Level = entities.LevelOf(10) // immutable, must be ignored
	if err := s.Update(ctx, rec); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := s.GetByID(ctx, "r1")
	if got.Visible || got.Comment != "jackhammer at 6am" {
		t.Errorf("Expected mutable fields updated, got %+v", got)
	}
	if got.Level == nil || *got.Level != 72.5 {
		t.Errorf("Expected level unchanged, got %v", got.Level)
	}

	if err := s.Delete(ctx, "r1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "r1"); !errors.Is(err, repository.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestStore_FetchRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 8; i++ {
		rec := sampleRecord(fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Hour))
		if i >= 5 {
			rec.Kind = entities.KindAutomatic
			rec.OwnerID = "u2"
			rec.SpatialKey = "9q8yyk8yt"
		}
		if i == 7 {
			rec.Visible = false
		}
		s.Create(ctx, rec)
	}

	tests := []struct {
		name    string
		filter  repository.RecordFilter
		wantIDs []string
	}{
		{"all newest first", repository.RecordFilter{}, []string{"r7", "r6", "r5", "r4", "r3", "r2", "r1", "r0"}},
		{"limit", repository.RecordFilter{Limit: 2}, []string{"r7", "r6"}},
		{"kind", repository.RecordFilter{Kind: entities.KindComplaint, Limit: 3}, []string{"r4", "r3", "r2"}},
		{"visible only", repository.RecordFilter{VisibleOnly: true, OwnerID: "u2"}, []string{"r6", "r5"}},
		{"min timestamp", repository.RecordFilter{MinTimestamp: base.Add(6 * time.Hour)}, []string{"r7", "r6"}},
		{"spatial prefix", repository.RecordFilter{SpatialKeyPrefix: "9q8"}, []string{"r7", "r6", "r5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FetchRecords(ctx, tt.filter)
			if err != nil {
				t.Fatalf("FetchRecords failed: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Expected %d records, got %d", len(tt.wantIDs), len(got))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("Position %d: expected %s, got %s", i, id, got[i].ID)
				}
			}
		})
	}
}

func TestStore_FetchRecords_RejectsLikePatterns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.Create(ctx, sampleRecord("r1", time.Now()))

	for _, prefix := range []string{"%", "6m_", "6mc%"} {
		got, err := s.FetchRecords(ctx, repository.RecordFilter{SpatialKeyPrefix: prefix})
		if !errors.Is(err, repository.ErrInvalidFilter) {
			t.Errorf("Prefix %q: expected ErrInvalidFilter, got %v (%d records)", prefix, err, len(got))
		}
	}
}

func TestStore_CountersIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	deltas := []entities.CounterDelta{
		{Scope: entities.ScopeGlobal, Key: entities.CounterTotalRecords, Delta: 1},
		{Scope: entities.ScopeGlobal, Key: entities.CounterTotalComplaints, Delta: 1},
	}

	for i := 0; i < 3; i++ {
		if err := s.Apply(ctx, "r1:created", deltas...); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
	}
	s.Apply(ctx, "r1:deleted", entities.CounterDelta{Scope: entities.ScopeGlobal, Key: entities.CounterTotalRecords, Delta: -1})

	if v, _ := s.Get(ctx, entities.ScopeGlobal, entities.CounterTotalRecords); v != 0 {
		t.Errorf("Expected total_records 0, got %d", v)
	}
	if v, _ := s.Get(ctx, entities.ScopeGlobal, entities.CounterTotalComplaints); v != 1 {
		t.Errorf("Expected total_complaints 1, got %d", v)
	}
	if v, err := s.Get(ctx, entities.ScopeUser, "nobody/manual"); err != nil || v != 0 {
		t.Errorf("Expected missing counter to read 0, got %d (%v)", v, err)
	}
}

func TestStore_ConcurrentCounterApply(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Apply(ctx, fmt.Sprintf("op-%d", i),
				entities.CounterDelta{Scope: entities.ScopeUser, Key: "u1/photo", Delta: 1}); err != nil {
				t.Errorf("Apply failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if v, _ := s.Get(ctx, entities.ScopeUser, "u1/photo"); v != 20 {
		t.Errorf("Expected 20, got %d", v)
	}
}

func TestStore_ClosedDatabaseIsUnavailable(t *testing.T) {
	s := openTestStore(t)
	s.Close()

	_, err := s.FetchRecords(context.Background(), repository.RecordFilter{})
	if !errors.Is(err, repository.ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
}
