package services

import (
	"context"
	"sync"
	"time"

	"noisemap/internal/address"
	"noisemap/internal/analytics"
	"noisemap/internal/config"
	"noisemap/internal/domain/entities"
	"noisemap/internal/geo"
	"noisemap/internal/logging"
	"noisemap/internal/metrics"
	"noisemap/internal/repository"
)

// NewAnalyticsEngine builds the aggregation engine used by AnalyticsService,
// reporting every skipped malformed record to metrics.
func NewAnalyticsEngine(places address.Extractor, loc *time.Location) *analytics.Engine {
	return analytics.NewEngine(places,
		analytics.WithLocation(loc),
		analytics.WithSkipHook(func(pipeline string, rec *entities.NoiseRecord) {
			metrics.RecordMalformed(pipeline)
			logging.Debug().Str("pipeline", pipeline).Str("record_id", rec.ID).Msg("malformed record skipped")
		}),
	)
}

// AnalyticsService runs the four aggregation pipelines. Each pipeline
// fetches its own bounded page of recent records, narrows it to the query
// radius if any, and reduces it with the engine.
type AnalyticsService struct {
	store  repository.RecordStore
	engine *analytics.Engine
	config config.AnalyticsConfig
	now    func() time.Time
}

func NewAnalyticsService(store repository.RecordStore, engine *analytics.Engine, cfg config.AnalyticsConfig) *AnalyticsService {
	return &AnalyticsService{
		store:  store,
		engine: engine,
		config: cfg,
		now:    time.Now,
	}
}

// fetch reads one page for pipeline and applies the query radius.
func (s *AnalyticsService) fetch(ctx context.Context, pipeline string, filter repository.RecordFilter, q Query) ([]*entities.NoiseRecord, error) {
	records, err := s.store.FetchRecords(ctx, filter)
	if err != nil {
		return nil, err
	}
	if q.Center == nil {
		return records, nil
	}
	return geo.FilterWithinRadius(records, *q.Center, q.RadiusKm, func(*entities.NoiseRecord) {
		metrics.RecordMalformed(pipeline)
	}), nil
}

// observe times a pipeline and logs its failure.
func observe(pipeline string, start time.Time, err error) {
	metrics.RecordPipeline(pipeline, time.Since(start), err)
	if err != nil {
		logging.Warn().Err(err).Str("pipeline", pipeline).Msg("analytics pipeline failed")
	}
}

// ComplaintsByDistrict counts visible complaints per district among the
// most recent complaints page, most complaints first. q.Limit > 0 keeps the
// top q.Limit districts.
func (s *AnalyticsService) ComplaintsByDistrict(ctx context.Context, q Query) (result []entities.DistrictAggregate, err error) {
	const pipeline = analytics.PipelineComplaintsByDistrict
	defer func(start time.Time) { observe(pipeline, start, err) }(time.Now())

	if err = q.Validate(); err != nil {
		return nil, err
	}
	records, err := s.fetch(ctx, pipeline, repository.RecordFilter{
		Kind:        entities.KindComplaint,
		VisibleOnly: true,
		Limit:       q.pageSize(s.config.ComplaintsPageSize, s.config.MaxPageSize),
	}, q)
	if err != nil {
		return nil, err
	}
	return analytics.TopN(s.engine.ComplaintsByDistrict(records), q.Limit), nil
}

// TopStreets ranks streets by average level over every visible record
// unless a page size is configured or requested.
func (s *AnalyticsService) TopStreets(ctx context.Context, q Query) (result []entities.StreetAggregate, err error) {
	const pipeline = analytics.PipelineTopStreets
	defer func(start time.Time) { observe(pipeline, start, err) }(time.Now())

	if err = q.Validate(); err != nil {
		return nil, err
	}
	records, err := s.fetch(ctx, pipeline, repository.RecordFilter{
		VisibleOnly: true,
		Limit:       q.pageSize(s.config.TopStreetsPageSize, s.config.MaxPageSize),
	}, q)
	if err != nil {
		return nil, err
	}

	n := q.Limit
	if n <= 0 {
		n = s.config.TopStreetsLimit
	}
	return s.engine.TopStreets(records, n), nil
}

// HourlyProfile averages visible levels per local hour of day.
func (s *AnalyticsService) HourlyProfile(ctx context.Context, q Query) (result []entities.HourlyAggregate, err error) {
	const pipeline = analytics.PipelineHourlyProfile
	defer func(start time.Time) { observe(pipeline, start, err) }(time.Now())

	if err = q.Validate(); err != nil {
		return nil, err
	}
	records, err := s.fetch(ctx, pipeline, repository.RecordFilter{
		VisibleOnly: true,
		Limit:       q.pageSize(s.config.HourlyPageSize, s.config.MaxPageSize),
	}, q)
	if err != nil {
		return nil, err
	}
	return s.engine.HourlyProfile(records), nil
}

// DailyTrend averages visible levels per day over the trend window.
func (s *AnalyticsService) DailyTrend(ctx context.Context, q Query) (result []entities.DailyAggregate, err error) {
	const pipeline = analytics.PipelineDailyTrend
	defer func(start time.Time) { observe(pipeline, start, err) }(time.Now())

	if err = q.Validate(); err != nil {
		return nil, err
	}
	days := s.config.TrendDays
	records, err := s.fetch(ctx, pipeline, repository.RecordFilter{
		VisibleOnly:  true,
		MinTimestamp: s.now().Add(-time.Duration(days) * 24 * time.Hour),
		Limit:        q.pageSize(s.config.DailyPageSize, s.config.MaxPageSize),
	}, q)
	if err != nil {
		return nil, err
	}
	return s.engine.DailyTrend(records, days), nil
}

// PipelineResult carries either the data or the failure of one pipeline.
type PipelineResult[T any] struct {
	Data  T      `json:"data"`
	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`
}

func resultOf[T any](data T, err error) PipelineResult[T] {
	if err != nil {
		var zero T
		return PipelineResult[T]{Data: zero, Error: err.Error(), Err: err}
	}
	return PipelineResult[T]{Data: data}
}

// Dashboard bundles the four pipelines.
type Dashboard struct {
	ComplaintsByDistrict PipelineResult[[]entities.DistrictAggregate] `json:"complaints_by_district"`
	TopStreets           PipelineResult[[]entities.StreetAggregate]   `json:"top_streets"`
	HourlyProfile        PipelineResult[[]entities.HourlyAggregate]   `json:"hourly_profile"`
	DailyTrend           PipelineResult[[]entities.DailyAggregate]    `json:"daily_trend"`
}

// GetDashboard runs the four pipelines concurrently. A failing pipeline
// only fails its own entry.
//
// Go Learning Note — Fan-Out with sync.WaitGroup:
// Each goroutine writes a distinct field of the result, so no mutex is
// needed; wg.Wait() is the synchronization point that makes those writes
// visible to the caller.
func (s *AnalyticsService) GetDashboard(ctx context.Context, q Query) (*Dashboard, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var (
		d  Dashboard
		wg sync.WaitGroup
	)
	wg.Add(4)
	go func() {
		defer wg.Done()
		d.ComplaintsByDistrict = resultOf(s.ComplaintsByDistrict(ctx, q))
	}()
	go func() {
		defer wg.Done()
		d.TopStreets = resultOf(s.TopStreets(ctx, q))
	}()
	go func() {
		defer wg.Done()
		d.HourlyProfile = resultOf(s.HourlyProfile(ctx, q))
	}()
	go func() {
		defer wg.Done()
		d.DailyTrend = resultOf(s.DailyTrend(ctx, q))
	}()
	wg.Wait()

	return &d, nil
}
