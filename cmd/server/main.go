package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"

	"noisemap/internal/address"
	"noisemap/internal/api"
	"noisemap/internal/api/handlers"
	"noisemap/internal/api/middleware"
	"noisemap/internal/config"
	"noisemap/internal/logging"
	"noisemap/internal/repository"
	"noisemap/internal/repository/dynamo"
	"noisemap/internal/repository/memory"
	"noisemap/internal/repository/resilient"
	"noisemap/internal/repository/sqlstore"
	"noisemap/internal/services"
)

// stores bundles the backend selected by configuration.
type stores struct {
	records  repository.RecordStore
	counters repository.CounterStore
	health   api.HealthCheck
	close    func() error
}

// openStores connects the configured backend. One backend serves both the
// records and the counters.
func openStores(ctx context.Context, cfg config.StoreConfig) (*stores, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return &stores{
			records:  memory.NewRecordRepository(),
			counters: memory.NewCounterRepository(),
			close:    func() error { return nil },
		}, nil

	case config.DriverSQLite, config.DriverPostgres:
		driver := sqlstore.DriverSQLite
		if cfg.Driver == config.DriverPostgres {
			driver = sqlstore.DriverPostgres
		}
		store, err := sqlstore.Open(ctx, driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &stores{records: store, counters: store, health: store.Ping, close: store.Close}, nil

	case config.DriverDynamoDB:
		store, err := dynamo.Connect(ctx, dynamo.Options{
			Region:   cfg.DynamoRegion,
			Endpoint: cfg.DynamoEndpoint,
			Tables: dynamo.Tables{
				Records:  cfg.DynamoRecordsTable,
				Counters: cfg.DynamoCountersTable,
			},
		})
		if err != nil {
			return nil, err
		}
		return &stores{records: store, counters: store, close: func() error { return nil }}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize repositories
	backend, err := openStores(ctx, cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}
	defer func() {
		if err := backend.close(); err != nil {
			logging.Warn().Err(err).Msg("failed to close store")
		}
	}()

	records, counters := backend.records, backend.counters
	if cfg.Store.BreakerEnabled {
		breaker := resilient.Config{
			MaxRequests:      cfg.Store.BreakerMaxRequests,
			Interval:         cfg.Store.BreakerInterval,
			Timeout:          cfg.Store.BreakerTimeout,
			FailureThreshold: cfg.Store.BreakerFailureThreshold,
		}
		records = resilient.NewRecordStore(records, breaker)
		counters = resilient.NewCounterStore(counters, breaker)
	}

	loc, err := cfg.Analytics.Location()
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid analytics time zone")
	}

	// Initialize services
	locks := memory.NewLockManager(time.Minute)
	defer locks.Stop()

	ledger := services.NewCounterLedger(counters)
	recordService := services.NewRecordService(records, ledger, locks, cfg)
	engine := services.NewAnalyticsEngine(address.New(cfg.Address.Rules()), loc)
	analyticsService := services.NewAnalyticsService(records, engine, cfg.Analytics)

	var submitLimiter *middleware.RateLimiter
	if cfg.Server.SubmitPerMinute > 0 {
		submitLimiter = middleware.NewRateLimiter(cfg.Server.SubmitPerMinute, cfg.Server.SubmitBurst)
	}

	// Setup router
	router := api.NewRouter(
		handlers.NewRecordHandler(recordService),
		handlers.NewAnalyticsHandler(analyticsService),
		handlers.NewStatsHandler(ledger),
		backend.health,
		submitLimiter,
	)

	gin.SetMode(gin.ReleaseMode)
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())
	router.Setup(ginEngine)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      ginEngine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		logging.Info().
			Str("addr", cfg.Server.Port).
			Str("store", cfg.Store.Driver).
			Str("time_zone", loc.String()).
			Msg("starting noisemap server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("graceful shutdown failed")
	}
}
