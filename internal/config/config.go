// Package config centralizes all application configuration into typed structs.
//
// Go Learning Note — Configuration Management:
// Go projects typically manage configuration in one of these ways:
//  1. Struct literals with defaults
//  2. Environment variables
//  3. Config files (YAML/TOML)
//  4. Command-line flags via the standard "flag" package
//
// This package layers the first three with koanf: NewDefaultConfig supplies
// the defaults, an optional YAML file overrides them, and NOISEMAP_*
// environment variables override both (see Load).
//
// Using typed structs (not raw strings/maps) gives you compile-time safety
// and IDE autocompletion. This is strongly preferred in Go over untyped config.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"noisemap/internal/address"
)

// Record store backends.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverDynamoDB = "dynamodb"
)

// Config is the top-level configuration container. Grouping related settings
// into sub-structs keeps the config organized as the application grows.
//
// Go Learning Note — Struct Tags:
// The `koanf` tag names the key each field is read from, and the `validate`
// tag carries go-playground/validator rules checked by Validate. One struct
// describes the layout, the defaults and the constraints of the config.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Geo       GeoConfig       `koanf:"geo"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Address   AddressConfig   `koanf:"address"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Go Learning Note — time.Duration:
// Go uses time.Duration (an int64 of nanoseconds) instead of raw integers for
// timeouts and intervals. In YAML and environment variables they are written
// as "10s" or "1m30s".
type ServerConfig struct {
	Port            string        `koanf:"port" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// SubmitPerMinute rate-limits record submissions per user; 0 disables
	// the limit.
	SubmitPerMinute int `koanf:"submit_per_minute" validate:"min=0"`
	SubmitBurst     int `koanf:"submit_burst" validate:"min=1"`
}

// StoreConfig selects and tunes the record/counter store.
type StoreConfig struct {
	Driver string `koanf:"driver" validate:"oneof=memory sqlite postgres dynamodb"`
	// DSN is the sqlite file path or the postgres connection string.
	DSN string `koanf:"dsn"`

	DynamoRegion        string `koanf:"dynamo_region"`
	DynamoEndpoint      string `koanf:"dynamo_endpoint" validate:"omitempty,url"`
	DynamoRecordsTable  string `koanf:"dynamo_records_table"`
	DynamoCountersTable string `koanf:"dynamo_counters_table"`

	BreakerEnabled          bool          `koanf:"breaker_enabled"`
	BreakerMaxRequests      uint32        `koanf:"breaker_max_requests" validate:"min=1"`
	BreakerInterval         time.Duration `koanf:"breaker_interval" validate:"gte=0"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold" validate:"min=1"`
}

// GeoConfig controls the precision of the spatial key stored with each
// record. Precision 9 is about 5 m.
type GeoConfig struct {
	GeohashPrecision int `koanf:"geohash_precision" validate:"min=1,max=12"`
}

// AnalyticsConfig holds the page bounds of each pipeline. A page size of 0
// means the pipeline reads every matching record.
type AnalyticsConfig struct {
	ComplaintsPageSize int `koanf:"complaints_page_size" validate:"min=0"`
	TopStreetsPageSize int `koanf:"top_streets_page_size" validate:"min=0"`
	HourlyPageSize     int `koanf:"hourly_page_size" validate:"min=0"`
	DailyPageSize      int `koanf:"daily_page_size" validate:"min=0"`
	TrendDays          int `koanf:"trend_days" validate:"min=1,max=31"`
	TopStreetsLimit    int `koanf:"top_streets_limit" validate:"min=1"`
	FeedLimit          int `koanf:"feed_limit" validate:"min=1"`
	ExportPageSize     int `koanf:"export_page_size" validate:"min=1"`
	// MaxPageSize caps any page size a client asks for.
	MaxPageSize int `koanf:"max_page_size" validate:"min=1"`
	// TimeZone is an IANA name, or "Local" for the process time zone.
	TimeZone string `koanf:"time_zone" validate:"required"`
}

// AddressConfig tunes the district and street heuristics.
type AddressConfig struct {
	Stoplist    []string `koanf:"stoplist"`
	MaxSegments int      `koanf:"max_segments" validate:"min=2"`
	MinLength   int      `koanf:"min_length" validate:"min=1"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// NewDefaultConfig returns a Config populated with sensible defaults.
//
// Go Learning Note — Constructor Functions:
// Go has no constructors. By convention, New<Type>() functions serve the same
// purpose. They return a pointer (*Config) so the caller gets a reference to
// shared, mutable state.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			SubmitPerMinute: 30,
			SubmitBurst:     10,
		},
		Store: StoreConfig{
			Driver:                  DriverMemory,
			DSN:                     "noisemap.db",
			DynamoRecordsTable:      "noise_records",
			DynamoCountersTable:     "noise_counters",
			BreakerEnabled:          true,
			BreakerMaxRequests:      3,
			BreakerInterval:         30 * time.Second,
			BreakerTimeout:          10 * time.Second,
			BreakerFailureThreshold: 5,
		},
		Geo: GeoConfig{
			GeohashPrecision: 9,
		},
		Analytics: AnalyticsConfig{
			ComplaintsPageSize: 500,
			TopStreetsPageSize: 0,
			HourlyPageSize:     5000,
			DailyPageSize:      1000,
			TrendDays:          7,
			TopStreetsLimit:    10,
			FeedLimit:          50,
			ExportPageSize:     1000,
			MaxPageSize:        10000,
			TimeZone:           "Local",
		},
		Address: AddressConfig{
			Stoplist:    append([]string(nil), address.DefaultStoplist...),
			MaxSegments: 3,
			MinLength:   4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tag rules and the cross-field constraints that
// tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %s", c.Store.Driver)
		}
	case DriverDynamoDB:
		if c.Store.DynamoRecordsTable == "" || c.Store.DynamoCountersTable == "" {
			return fmt.Errorf("store.dynamo_records_table and store.dynamo_counters_table are required for driver dynamodb")
		}
	}

	if _, err := c.Analytics.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves TimeZone.
func (a AnalyticsConfig) Location() (*time.Location, error) {
	if a.TimeZone == "" || a.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(a.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("analytics.time_zone: %w", err)
	}
	return loc, nil
}

// Rules converts the address section into heuristics rules.
func (a AddressConfig) Rules() address.Rules {
	return address.Rules{
		Stoplist:    a.Stoplist,
		MaxSegments: a.MaxSegments,
		MinLength:   a.MinLength,
	}
}
