package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"noisemap/internal/address"
	"noisemap/internal/config"
	"noisemap/internal/domain/entities"
	"noisemap/internal/repository"
	"noisemap/internal/repository/memory"
)

var analyticsNow = time.Date(2026, time.June, 10, 12, 0, 0, 0, time.UTC)

func setupAnalyticsService() (*AnalyticsService, *memory.RecordRepository) {
	repo := memory.NewRecordRepository()
	cfg := config.NewDefaultConfig()

	service := NewAnalyticsService(repo, NewAnalyticsEngine(address.NewDefault(), time.UTC), cfg.Analytics)
	service.now = func() time.Time { return analyticsNow }
	return service, repo
}

type seed struct {
	kind    entities.Kind
	level   float64
	addr    string
	lat     float64
	lng     float64
	ago     time.Duration
	visible bool
}

func seedRecords(t *testing.T, repo *memory.RecordRepository, seeds ...seed) {
	t.Helper()
	for i, s := range seeds {
		rec := &entities.NoiseRecord{
			ID:        fmt.Sprintf("rec-%03d", i),
			OwnerID:   "user-1",
			Kind:      s.kind,
			Level:     entities.LevelOf(s.level),
			Position:  &entities.Location{Latitude: s.lat, Longitude: s.lng},
			Address:   s.addr,
			Timestamp: analyticsNow.Add(-s.ago),
			Visible:   s.visible,
		}
		if err := repo.Create(context.Background(), rec); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
}

func complaint(addr string, ago time.Duration) seed {
	return seed{kind: entities.KindComplaint, level: 80, addr: addr, lat: -12.12, lng: -77.03, ago: ago, visible: true}
}

func manual(level float64, addr string, ago time.Duration, visible bool) seed {
	return seed{kind: entities.KindManual, level: level, addr: addr, lat: -12.12, lng: -77.03, ago: ago, visible: visible}
}

func TestAnalyticsService_ComplaintsByDistrict(t *testing.T) {
	service, repo := setupAnalyticsService()
	ctx := context.Background()

	var seeds []seed
	for i := 0; i < 5; i++ {
		seeds = append(seeds, complaint("Calle Uno 1, Miraflores, Lima", time.Duration(i)*time.Minute))
	}
	for i := 0; i < 4; i++ {
		seeds = append(seeds, complaint("Calle Dos 2, Barranco, Lima", time.Duration(i)*time.Hour))
	}
	for i := 0; i < 3; i++ {
		seeds = append(seeds, complaint("Calle Tres 3, Surquillo, Lima", time.Duration(i)*time.Second))
	}
	seeds = append(seeds, complaint("", time.Hour))
	// Measurements are not complaints, however many there are
	for i := 0; i < 6; i++ {
		seeds = append(seeds, manual(70, "Calle Cuatro 4, Chorrillos, Lima", time.Minute, true))
	}
	seedRecords(t, repo, seeds...)

	got, err := service.ComplaintsByDistrict(ctx, Query{})
	if err != nil {
		t.Fatalf("ComplaintsByDistrict failed: %v", err)
	}

	want := []entities.DistrictAggregate{
		{Label: "Miraflores", Count: 5},
		{Label: "Barranco", Count: 4},
		{Label: "Surquillo", Count: 3},
		{Label: address.Unknown, Count: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Row %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	// Limit keeps only the top districts
	got, _ = service.ComplaintsByDistrict(ctx, Query{Limit: 2})
	if len(got) != 2 || got[1].Label != "Barranco" {
		t.Errorf("Expected top 2 districts, got %v", got)
	}
}

func TestAnalyticsService_ComplaintsByDistrict_PageBound(t *testing.T) {
	service, repo := setupAnalyticsService()
	service.config.ComplaintsPageSize = 2

	seedRecords(t, repo,
		complaint("Calle Uno 1, Miraflores, Lima", 1*time.Minute),
		complaint("Calle Dos 2, Barranco, Lima", 2*time.Minute),
		complaint("Calle Dos 2, Barranco, Lima", 3*time.Minute),
		complaint("Calle Dos 2, Barranco, Lima", 4*time.Minute),
	)

	got, err := service.ComplaintsByDistrict(context.Background(), Query{})
	if err != nil {
		t.Fatalf("ComplaintsByDistrict failed: %v", err)
	}

	// Only the two newest complaints are counted
	total := 0
	for _, row := range got {
		total += row.Count
	}
	if total != 2 {
		t.Errorf("Expected 2 complaints counted, got %d (%v)", total, got)
	}
}

func TestAnalyticsService_TopStreets(t *testing.T) {
	service, repo := setupAnalyticsService()

	seedRecords(t, repo,
		manual(60, "Calle Quieta 10, Barranco, Lima", time.Hour, true),
		manual(70, "Calle Quieta 12, Barranco, Lima", time.Hour, true),
		manual(90, "Avenida Ruidosa 5, Miraflores, Lima", time.Hour, true),
		// Hidden records never reach public aggregates
		manual(120, "Calle Secreta 1, Surquillo, Lima", time.Hour, false),
		// No street, dropped
		manual(100, "", time.Hour, true),
	)

	got, err := service.TopStreets(context.Background(), Query{})
	if err != nil {
		t.Fatalf("TopStreets failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 streets, got %v", got)
	}
	if got[0].Street != "Avenida Ruidosa" || got[0].AverageLevel != 90 {
		t.Errorf("Expected Avenida Ruidosa first, got %+v", got[0])
	}
	if got[1].Street != "Calle Quieta" || got[1].AverageLevel != 65 || got[1].SampleCount != 2 {
		t.Errorf("Expected Calle Quieta averaging 65 over 2 samples, got %+v", got[1])
	}
	if got[1].District != "Barranco" {
		t.Errorf("Expected district Barranco, got %s", got[1].District)
	}

	got, _ = service.TopStreets(context.Background(), Query{Limit: 1})
	if len(got) != 1 {
		t.Errorf("Expected limit 1 to be honored, got %d", len(got))
	}
}

func TestAnalyticsService_HourlyProfile(t *testing.T) {
	service, repo := setupAnalyticsService()

	// analyticsNow is 12:00 UTC
	seedRecords(t, repo,
		manual(50, "", 2*time.Hour, true),
		manual(70, "", 2*time.Hour, true),
		manual(80, "", 0, true),
		manual(99, "", 0, false),
	)

	got, err := service.HourlyProfile(context.Background(), Query{})
	if err != nil {
		t.Fatalf("HourlyProfile failed: %v", err)
	}

	want := []entities.HourlyAggregate{
		{Hour: 10, AverageLevel: 60, SampleCount: 2},
		{Hour: 12, AverageLevel: 80, SampleCount: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Row %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestAnalyticsService_DailyTrend(t *testing.T) {
	service, repo := setupAnalyticsService()

	seedRecords(t, repo,
		manual(60, "", 24*time.Hour, true),
		manual(70, "", 25*time.Hour, true),
		manual(50, "", 48*time.Hour, true),
		// Outside the trend window
		manual(100, "", 11*24*time.Hour, true),
	)

	got, err := service.DailyTrend(context.Background(), Query{})
	if err != nil {
		t.Fatalf("DailyTrend failed: %v", err)
	}

	want := []entities.DailyAggregate{
		{DayLabel: "8 Jun", AverageLevel: 50, SampleCount: 1},
		{DayLabel: "9 Jun", AverageLevel: 65, SampleCount: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Row %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestAnalyticsService_Radius(t *testing.T) {
	service, repo := setupAnalyticsService()

	near := complaint("Calle Uno 1, Miraflores, Lima", time.Minute)
	far := complaint("Calle Dos 2, Cusco, Cusco", time.Minute)
	far.lat, far.lng = -13.53, -71.97
	seedRecords(t, repo, near, far)

	got, err := service.ComplaintsByDistrict(context.Background(), Query{
		Center:   &entities.Location{Latitude: -12.12, Longitude: -77.03},
		RadiusKm: 2,
	})
	if err != nil {
		t.Fatalf("ComplaintsByDistrict failed: %v", err)
	}
	if len(got) != 1 || got[0].Label != "Miraflores" {
		t.Errorf("Expected only Miraflores within radius, got %v", got)
	}
}

func TestAnalyticsService_RadiusOnlySeesFetchedPage(t *testing.T) {
	service, repo := setupAnalyticsService()
	service.config.HourlyPageSize = 1

	// The near record is older than the far one, so a page of 1 holds only
	// the far record.
	near := manual(60, "", 2*time.Minute, true)
	far := manual(90, "", time.Minute, true)
	far.lat, far.lng = -13.53, -71.97
	seedRecords(t, repo, near, far)

	q := Query{Center: &entities.Location{Latitude: -12.12, Longitude: -77.03}, RadiusKm: 2}
	got, err := service.HourlyProfile(context.Background(), q)
	if err != nil {
		t.Fatalf("HourlyProfile failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected the near record outside the page to stay invisible, got %v", got)
	}

	q.PageSize = 2
	got, _ = service.HourlyProfile(context.Background(), q)
	if len(got) != 1 || got[0].SampleCount != 1 || got[0].AverageLevel != 60 {
		t.Errorf("Expected the near record once the page holds it, got %v", got)
	}
}

func TestAnalyticsService_TopStreetsIgnoresOtherPageBounds(t *testing.T) {
	service, repo := setupAnalyticsService()
	service.config.ComplaintsPageSize = 1
	service.config.HourlyPageSize = 1
	service.config.DailyPageSize = 1
	service.config.TopStreetsPageSize = 0

	seedRecords(t, repo,
		manual(60, "Calle Uno 1, Miraflores, Lima", time.Minute, true),
		manual(70, "Calle Dos 2, Barranco, Lima", 2*time.Minute, true),
		manual(80, "Calle Tres 3, Surquillo, Lima", 3*time.Minute, true),
	)

	hourly, _ := service.HourlyProfile(context.Background(), Query{})
	sampled := 0
	for _, row := range hourly {
		sampled += row.SampleCount
	}
	if sampled != 1 {
		t.Fatalf("Expected the hourly profile to see 1 record, got %d", sampled)
	}

	streets, err := service.TopStreets(context.Background(), Query{})
	if err != nil {
		t.Fatalf("TopStreets failed: %v", err)
	}
	if len(streets) != 3 {
		t.Errorf("Expected every visible street to be ranked, got %v", streets)
	}
}

func TestAnalyticsService_PageSizeCappedAtMax(t *testing.T) {
	service, repo := setupAnalyticsService()
	service.config.MaxPageSize = 2

	seedRecords(t, repo,
		complaint("Calle Uno 1, Miraflores, Lima", 1*time.Minute),
		complaint("Calle Uno 1, Miraflores, Lima", 2*time.Minute),
		complaint("Calle Uno 1, Miraflores, Lima", 3*time.Minute),
		complaint("Calle Uno 1, Miraflores, Lima", 4*time.Minute),
	)

	got, err := service.ComplaintsByDistrict(context.Background(), Query{PageSize: 100})
	if err != nil {
		t.Fatalf("ComplaintsByDistrict failed: %v", err)
	}
	if len(got) != 1 || got[0].Count != 2 {
		t.Errorf("Expected the page to be capped at 2 complaints, got %v", got)
	}
}

func TestQuery_PageSize(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		def, max  int
		want      int
	}{
		{"default", 0, 500, 10000, 500},
		{"requested", 50, 500, 10000, 50},
		{"capped", 20000, 500, 10000, 10000},
		{"unbounded default", 0, 0, 10000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Query{PageSize: tt.requested}
			if got := q.pageSize(tt.def, tt.max); got != tt.want {
				t.Errorf("pageSize() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAnalyticsService_InvalidQuery(t *testing.T) {
	service, _ := setupAnalyticsService()
	ctx := context.Background()

	if _, err := service.TopStreets(ctx, Query{RadiusKm: 3}); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery for radius without center, got %v", err)
	}
	if _, err := service.HourlyProfile(ctx, Query{Center: &entities.Location{}, RadiusKm: 0}); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery for zero radius, got %v", err)
	}
	if _, err := service.GetDashboard(ctx, Query{Limit: -1}); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery for negative limit, got %v", err)
	}
}

// complaintOutage fails every fetch of complaints and serves everything else.
type complaintOutage struct {
	*memory.RecordRepository
}

func (s complaintOutage) FetchRecords(ctx context.Context, filter repository.RecordFilter) ([]*entities.NoiseRecord, error) {
	if filter.Kind == entities.KindComplaint {
		return nil, repository.ErrStoreUnavailable
	}
	return s.RecordRepository.FetchRecords(ctx, filter)
}

func TestAnalyticsService_GetDashboard_PartialFailure(t *testing.T) {
	repo := memory.NewRecordRepository()
	service := NewAnalyticsService(complaintOutage{repo}, NewAnalyticsEngine(address.NewDefault(), time.UTC),
		config.NewDefaultConfig().Analytics)
	service.now = func() time.Time { return analyticsNow }

	seedRecords(t, repo,
		manual(60, "Calle Quieta 10, Barranco, Lima", time.Hour, true),
		complaint("Calle Uno 1, Miraflores, Lima", time.Hour),
	)

	d, err := service.GetDashboard(context.Background(), Query{})
	if err != nil {
		t.Fatalf("GetDashboard failed: %v", err)
	}

	if !errors.Is(d.ComplaintsByDistrict.Err, repository.ErrStoreUnavailable) {
		t.Errorf("Expected complaints pipeline to fail, got %v", d.ComplaintsByDistrict.Err)
	}
	if d.ComplaintsByDistrict.Error == "" {
		t.Error("Expected complaints error message")
	}

	// The other pipelines are unaffected
	if d.TopStreets.Err != nil || len(d.TopStreets.Data) != 2 {
		t.Errorf("Expected 2 top streets, got %v (err %v)", d.TopStreets.Data, d.TopStreets.Err)
	}
	if d.HourlyProfile.Err != nil || len(d.HourlyProfile.Data) != 1 {
		t.Errorf("Expected 1 hourly row, got %v (err %v)", d.HourlyProfile.Data, d.HourlyProfile.Err)
	}
	if d.DailyTrend.Err != nil || len(d.DailyTrend.Data) != 1 {
		t.Errorf("Expected 1 daily row, got %v (err %v)", d.DailyTrend.Data, d.DailyTrend.Err)
	}
}
