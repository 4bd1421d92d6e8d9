package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected defaults to validate, got %v", err)
	}
	if cfg.Geo.GeohashPrecision != 9 {
		t.Errorf("Expected precision 9, got %d", cfg.Geo.GeohashPrecision)
	}
	if cfg.Analytics.ComplaintsPageSize != 500 || cfg.Analytics.HourlyPageSize != 5000 || cfg.Analytics.DailyPageSize != 1000 {
		t.Errorf("Unexpected page bounds: %+v", cfg.Analytics)
	}
	if cfg.Analytics.TrendDays != 7 || cfg.Analytics.TopStreetsLimit != 10 {
		t.Errorf("Unexpected trend/top defaults: %+v", cfg.Analytics)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }},
		{"sqlite without dsn", func(c *Config) { c.Store.Driver = DriverSQLite; c.Store.DSN = "" }},
		{"dynamodb without tables", func(c *Config) { c.Store.Driver = DriverDynamoDB; c.Store.DynamoCountersTable = "" }},
		{"precision too high", func(c *Config) { c.Geo.GeohashPrecision = 13 }},
		{"zero trend days", func(c *Config) { c.Analytics.TrendDays = 0 }},
		{"bad time zone", func(c *Config) { c.Analytics.TimeZone = "Mars/Olympus" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.Driver != DriverMemory {
		t.Errorf("Expected memory driver, got %s", cfg.Store.Driver)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("Expected 10s read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if len(cfg.Address.Stoplist) == 0 {
		t.Error("Expected default stoplist")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: ":9090"
  read_timeout: 3s
store:
  driver: sqlite
  dsn: /tmp/from-file.db
analytics:
  hourly_page_size: 200
  time_zone: UTC
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("NOISEMAP_STORE_DSN", "/tmp/from-env.db")
	t.Setenv("NOISEMAP_ANALYTICS_TREND_DAYS", "14")
	t.Setenv("NOISEMAP_ADDRESS_STOPLIST", "Avenida, calle ,,urb.")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != ":9090" || cfg.Server.ReadTimeout != 3*time.Second {
		t.Errorf("Expected server section from file, got %+v", cfg.Server)
	}
	if cfg.Server.WriteTimeout != 10*time.Second {
		t.Errorf("Expected untouched default write timeout, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Store.Driver != DriverSQLite {
		t.Errorf("Expected driver from file, got %s", cfg.Store.Driver)
	}
	if cfg.Store.DSN != "/tmp/from-env.db" {
		t.Errorf("Expected env to override file dsn, got %s", cfg.Store.DSN)
	}
	if cfg.Analytics.HourlyPageSize != 200 || cfg.Analytics.TrendDays != 14 {
		t.Errorf("Unexpected analytics section: %+v", cfg.Analytics)
	}
	if strings.Join(cfg.Address.Stoplist, "|") != "Avenida|calle|urb." {
		t.Errorf("Expected stoplist from env, got %v", cfg.Address.Stoplist)
	}

	loc, err := cfg.Analytics.Location()
	if err != nil || loc.String() != "UTC" {
		t.Errorf("Expected UTC, got %v (%v)", loc, err)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("NOISEMAP_STORE_DRIVER", "cassandra")

	if _, err := Load(); err == nil {
		t.Error("Expected Load to reject an unknown driver")
	}
}

func TestEnvTransform(t *testing.T) {
	tests := map[string]string{
		"NOISEMAP_SERVER_PORT":                     "server.port",
		"NOISEMAP_STORE_BREAKER_FAILURE_THRESHOLD": "store.breaker_failure_threshold",
		"NOISEMAP_GEO_GEOHASH_PRECISION":           "geo.geohash_precision",
		"NOISEMAP_LOGGING":                         "",
	}
	for in, want := range tests {
		if got := envTransform(in); got != want {
			t.Errorf("envTransform(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAddressRules(t *testing.T) {
	rules := NewDefaultConfig().Address.Rules()
	if rules.MaxSegments != 3 || rules.MinLength != 4 {
		t.Errorf("Unexpected rules: %+v", rules)
	}
}
