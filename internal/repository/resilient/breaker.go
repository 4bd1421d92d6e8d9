// Package resilient decorates record and counter stores with a circuit
// breaker. While a backend keeps failing, calls are refused immediately
// instead of piling up on timeouts, and every failure reaches the caller as
// repository.ErrStoreUnavailable.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"noisemap/internal/domain/entities"
	"noisemap/internal/logging"
	"noisemap/internal/metrics"
	"noisemap/internal/repository"
)

// Config configures one breaker.
type Config struct {
	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32
	// Interval is the cyclic reset period of the failure counts while closed.
	Interval time.Duration
	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens it.
	FailureThreshold uint32
}

func DefaultConfig() Config {
	return Config{
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// isSuccessful decides what counts against the breaker. A missing record, a
// rejected filter or a caller giving up says nothing about backend health.
func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, repository.ErrRecordNotFound) ||
		errors.Is(err, repository.ErrInvalidFilter) ||
		errors.Is(err, context.Canceled)
}

func newBreaker(name string, cfg Config) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, int(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("store circuit breaker changed state")
		},
		IsSuccessful: isSuccessful,
	})
}

func translate(err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %w", repository.ErrStoreUnavailable, err)
	case isSuccessful(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, repository.ErrStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %w", repository.ErrStoreUnavailable, err)
	}
}

// run executes fn through cb, timing it under op.
//
// Go Learning Note — Generic Helpers:
// The breaker is instantiated once with type parameter any so a single
// instance can guard calls of different result types. The generic run
// restores the concrete type on the way out.
func run[T any](cb *gobreaker.CircuitBreaker[any], op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := cb.Execute(func() (any, error) {
		return fn()
	})

	var failed error
	if !isSuccessful(err) {
		failed = err
	}
	metrics.RecordStoreOperation(op, time.Since(start), failed)

	if err != nil {
		var zero T
		return zero, translate(err)
	}
	v, _ := out.(T)
	return v, nil
}

// RecordStore guards a repository.RecordStore.
type RecordStore struct {
	next repository.RecordStore
	cb   *gobreaker.CircuitBreaker[any]
}

var _ repository.RecordStore = (*RecordStore)(nil)

func NewRecordStore(next repository.RecordStore, cfg Config) *RecordStore {
	return &RecordStore{next: next, cb: newBreaker("records", cfg)}
}

func (s *RecordStore) Create(ctx context.Context, rec *entities.NoiseRecord) error {
	_, err := run(s.cb, "create", func() (struct{}, error) {
		return struct{}{}, s.next.Create(ctx, rec)
	})
	return err
}

func (s *RecordStore) GetByID(ctx context.Context, id string) (*entities.NoiseRecord, error) {
	return run(s.cb, "get", func() (*entities.NoiseRecord, error) {
		return s.next.GetByID(ctx, id)
	})
}

func (s *RecordStore) Update(ctx context.Context, rec *entities.NoiseRecord) error {
	_, err := run(s.cb, "update", func() (struct{}, error) {
		return struct{}{}, s.next.Update(ctx, rec)
	})
	return err
}

func (s *RecordStore) Delete(ctx context.Context, id string) error {
	_, err := run(s.cb, "delete", func() (struct{}, error) {
		return struct{}{}, s.next.Delete(ctx, id)
	})
	return err
}

func (s *RecordStore) FetchRecords(ctx context.Context, filter repository.RecordFilter) ([]*entities.NoiseRecord, error) {
	return run(s.cb, "fetch", func() ([]*entities.NoiseRecord, error) {
		return s.next.FetchRecords(ctx, filter)
	})
}

// CounterStore guards a repository.CounterStore with its own breaker, so a
// failing counter table never blocks record reads and writes.
type CounterStore struct {
	next repository.CounterStore
	cb   *gobreaker.CircuitBreaker[any]
}

var _ repository.CounterStore = (*CounterStore)(nil)

func NewCounterStore(next repository.CounterStore, cfg Config) *CounterStore {
	return &CounterStore{next: next, cb: newBreaker("counters", cfg)}
}

func (s *CounterStore) Apply(ctx context.Context, opID string, deltas ...entities.CounterDelta) error {
	_, err := run(s.cb, "counter_apply", func() (struct{}, error) {
		return struct{}{}, s.next.Apply(ctx, opID, deltas...)
	})
	return err
}

func (s *CounterStore) Get(ctx context.Context, scope entities.CounterScope, key string) (int64, error) {
	return run(s.cb, "counter_get", func() (int64, error) {
		return s.next.Get(ctx, scope, key)
	})
}
