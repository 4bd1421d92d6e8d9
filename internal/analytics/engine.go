// Package analytics reduces unordered sets of noise records into ranked,
// bucketed statistics: complaints per district, noisiest streets, the
// hour-of-day profile and the recent daily trend.
//
// Every reducer is a pure function of its input. Nothing here does I/O,
// holds locks or mutates a record, so an Engine can be shared by any number
// of concurrent requests. Records lacking a field a reducer needs are
// skipped for that reducer only and reported through the skip hook.
package analytics

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"noisemap/internal/address"
	"noisemap/internal/domain/entities"
)

// Pipeline names, used as the skip hook argument and as metric labels.
const (
	PipelineComplaintsByDistrict = "complaints_by_district"
	PipelineTopStreets           = "top_streets"
	PipelineHourlyProfile        = "hourly_profile"
	PipelineDailyTrend           = "daily_trend"
)

// DefaultTopStreets is the top-streets truncation used when none is given.
const DefaultTopStreets = 10

// SkipFunc is called once for every record a pipeline leaves out because it
// is malformed for that pipeline.
type SkipFunc func(pipeline string, rec *entities.NoiseRecord)

// Engine groups and reduces record collections.
type Engine struct {
	places   address.Extractor
	location *time.Location
	onSkip   SkipFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocation sets the time zone used for hour and day buckets.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithSkipHook registers fn to observe skipped records.
func WithSkipHook(fn SkipFunc) Option {
	return func(e *Engine) {
		e.onSkip = fn
	}
}

// NewEngine creates an Engine that labels places with places. Buckets use
// time.Local unless WithLocation says otherwise.
func NewEngine(places address.Extractor, opts ...Option) *Engine {
	e := &Engine{
		places:   places,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the time zone used for bucketing.
func (e *Engine) Location() *time.Location {
	return e.location
}

func (e *Engine) skip(pipeline string, rec *entities.NoiseRecord) {
	if e.onSkip != nil {
		e.onSkip(pipeline, rec)
	}
}

// levelBucket accumulates a running sum so the mean is taken over exactly
// the contributing records.
type levelBucket struct {
	sum   float64
	count int
}

func (b *levelBucket) add(level float64) {
	b.sum += level
	b.count++
}

func (b *levelBucket) mean() float64 {
	if b.count == 0 {
		return 0
	}
	return b.sum / float64(b.count)
}

// ComplaintsByDistrict counts records per extracted district, most
// complaints first. Ties keep first-seen order. Unparsable addresses land in
// the address.Unknown bucket. The caller selects which records are
// complaints; every non-nil record passed in is counted.
func (e *Engine) ComplaintsByDistrict(records []*entities.NoiseRecord) []entities.DistrictAggregate {
	index := make(map[string]int)
	result := make([]entities.DistrictAggregate, 0)

	for _, rec := range records {
		if rec == nil {
			continue
		}
		label := e.places.District(rec.Address)
		i, ok := index[label]
		if !ok {
			i = len(result)
			index[label] = i
			result = append(result, entities.DistrictAggregate{Label: label})
		}
		result[i].Count++
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Count > result[j].Count
	})
	return result
}

// TopStreets averages levels per extracted street and returns the n loudest
// (n <= 0 means DefaultTopStreets). Records whose street is address.Unknown
// are dropped entirely. A street's district comes from the first record seen
// for it.
func (e *Engine) TopStreets(records []*entities.NoiseRecord, n int) []entities.StreetAggregate {
	if n <= 0 {
		n = DefaultTopStreets
	}

	type streetBucket struct {
		district string
		levelBucket
	}

	index := make(map[string]int)
	order := make([]string, 0)
	buckets := make([]*streetBucket, 0)

	for _, rec := range records {
		if rec == nil {
			continue
		}
		street := e.places.Street(rec.Address)
		if street == address.Unknown {
			continue
		}
		if !rec.HasLevel() {
			e.skip(PipelineTopStreets, rec)
			continue
		}
		i, ok := index[street]
		if !ok {
			i = len(buckets)
			index[street] = i
			order = append(order, street)
			buckets = append(buckets, &streetBucket{district: e.places.District(rec.Address)})
		}
		buckets[i].add(*rec.Level)
	}

	result := make([]entities.StreetAggregate, len(buckets))
	for i, b := range buckets {
		result[i] = entities.StreetAggregate{
			Street:       order[i],
			District:     b.district,
			AverageLevel: b.mean(),
			SampleCount:  b.count,
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].AverageLevel > result[j].AverageLevel
	})
	return TopN(result, n)
}

// HourlyProfile averages levels per local hour of day, ordered 0 to 23.
// Hours without samples have no row; they are never reported as 0 dB.
func (e *Engine) HourlyProfile(records []*entities.NoiseRecord) []entities.HourlyAggregate {
	var hours [24]levelBucket

	for _, rec := range records {
		if rec == nil {
			continue
		}
		if !rec.HasTimestamp() || !rec.HasLevel() {
			e.skip(PipelineHourlyProfile, rec)
			continue
		}
		hours[rec.Timestamp.In(e.location).Hour()].add(*rec.Level)
	}

	result := make([]entities.HourlyAggregate, 0, 24)
	for hour := range hours {
		b := &hours[hour]
		if b.count == 0 {
			continue
		}
		result = append(result, entities.HourlyAggregate{
			Hour:         hour,
			AverageLevel: b.mean(),
			SampleCount:  b.count,
		})
	}
	return result
}

// DayLabel formats t as "D Mon" in loc: day of month without padding and the
// English three-letter month, without the year.
func DayLabel(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2 Jan")
}

// DailyTrend averages levels per calendar-day label and keeps the last days
// buckets (days <= 0 keeps them all).
//
// Buckets are ordered by the leading day-of-month number of their label,
// not by date, and labels carry no year. Both follow the trend's published
// contract; see DESIGN.md for the month- and year-boundary consequences.
func (e *Engine) DailyTrend(records []*entities.NoiseRecord, days int) []entities.DailyAggregate {
	index := make(map[string]int)
	result := make([]entities.DailyAggregate, 0)
	buckets := make([]levelBucket, 0)

	for _, rec := range records {
		if rec == nil {
			continue
		}
		if !rec.HasTimestamp() || !rec.HasLevel() {
			e.skip(PipelineDailyTrend, rec)
			continue
		}
		label := DayLabel(rec.Timestamp, e.location)
		i, ok := index[label]
		if !ok {
			i = len(result)
			index[label] = i
			result = append(result, entities.DailyAggregate{DayLabel: label})
			buckets = append(buckets, levelBucket{})
		}
		buckets[i].add(*rec.Level)
	}

	for i := range result {
		result[i].AverageLevel = buckets[i].mean()
		result[i].SampleCount = buckets[i].count
	}

	sort.SliceStable(result, func(i, j int) bool {
		return leadingDay(result[i].DayLabel) < leadingDay(result[j].DayLabel)
	})

	if days > 0 && len(result) > days {
		result = result[len(result)-days:]
	}
	return result
}

// leadingDay parses the first whitespace-delimited token of label; anything
// unparsable sorts as 0.
func leadingDay(label string) int {
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return n
}

// TopN returns at most the first n elements of rows; n <= 0 returns rows
// unchanged.
func TopN[T any](rows []T, n int) []T {
	if n <= 0 || len(rows) <= n {
		return rows
	}
	return rows[:n]
}
