package app

import (
	"fmt"
	"time"

	"github.com/fluxorio/todos/pkg/config"
	"github.com/fluxorio/todos/pkg/core"
	"github.com/fluxorio/todos/pkg/db"
	"github.com/fluxorio/todos/pkg/observability/otel"
)

// EnvPrefix prefixes environment overrides, e.g. TODOS_DATABASE_DSN
const EnvPrefix = "TODOS"

// Config is the service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" json:"database" toml:"database"`
	Log      core.LogConfig `yaml:"log" json:"log" toml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics" toml:"metrics"`
	Tracing  otel.Config    `yaml:"tracing" json:"tracing" toml:"tracing"`
	Events   EventsConfig   `yaml:"events" json:"events" toml:"events"`
}

type ServerConfig struct {
	Addr               string        `yaml:"addr" json:"addr" toml:"addr"`
	ReadTimeout        time.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`
	IdleTimeout        time.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`
	RequestTimeout     time.Duration `yaml:"request_timeout" json:"request_timeout" toml:"request_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" toml:"shutdown_timeout"`
	MaxRequestBodySize int           `yaml:"max_request_body_size" json:"max_request_body_size" toml:"max_request_body_size"`
}

type DatabaseConfig struct {
	// Driver is one of sqlite3, postgres, pgx
	Driver          string        `yaml:"driver" json:"driver" toml:"driver"`
	DSN             string        `yaml:"dsn" json:"dsn" toml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" toml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" toml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time" toml:"conn_max_idle_time"`
	// AutoMigrate applies pending migrations at startup
	AutoMigrate bool `yaml:"auto_migrate" json:"auto_migrate" toml:"auto_migrate"`
}

type MetricsConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled" toml:"enabled"`
	Path              string        `yaml:"path" json:"path" toml:"path"`
	PoolStatsInterval time.Duration `yaml:"pool_stats_interval" json:"pool_stats_interval" toml:"pool_stats_interval"`
}

type EventsConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled" toml:"enabled"`
	URL            string        `yaml:"url" json:"url" toml:"url"`
	Prefix         string        `yaml:"prefix" json:"prefix" toml:"prefix"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" toml:"connect_timeout"`
}

// Default returns a configuration that runs on a local sqlite file with
// metrics on, tracing off and no event publication
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:               ":8080",
			ReadTimeout:        10 * time.Second,
			WriteTimeout:       10 * time.Second,
			IdleTimeout:        60 * time.Second,
			RequestTimeout:     5 * time.Second,
			ShutdownTimeout:    15 * time.Second,
			MaxRequestBodySize: 1 << 20,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			DSN:             "file:todos.db?_busy_timeout=5000",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
			AutoMigrate:     true,
		},
		Log: core.DefaultLogConfig(),
		Metrics: MetricsConfig{
			Enabled:           true,
			Path:              "/metrics",
			PoolStatsInterval: 15 * time.Second,
		},
		Tracing: otel.DefaultConfig("todos"),
		Events: EventsConfig{
			URL:            "nats://127.0.0.1:4222",
			Prefix:         "todos",
			ConnectTimeout: 2 * time.Second,
		},
	}
}

// Load reads path over the defaults, applies TODOS_* environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := config.Load(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := config.ApplyEnvOverrides(EnvPrefix, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func eventsEnabled(c interface{}) bool   { return c.(*Config).Events.Enabled }
func metricsEnabled(c interface{}) bool  { return c.(*Config).Metrics.Enabled }
func tracingExported(c interface{}) bool { return c.(*Config).Tracing.Exporter != otel.ExporterNone }

// Validate checks the configuration
func (c *Config) Validate() error {
	drivers := make([]interface{}, 0, len(db.Drivers))
	for _, d := range db.Drivers {
		drivers = append(drivers, d)
	}

	return config.Validate(c,
		config.RequiredFields("Server.Addr", "Database.Driver", "Database.DSN"),
		config.OneOfValidator("Database.Driver", drivers...),
		config.RangeValidator("Database.MaxOpenConns", 1, 1000),
		config.RangeValidator("Database.MaxIdleConns", 0, 1000),
		config.PositiveDuration("Server.RequestTimeout"),
		config.PositiveDuration("Server.ShutdownTimeout"),
		config.OneOfValidator("Log.Level", "debug", "info", "warn", "error"),
		config.OneOfValidator("Log.Format", "text", "json", "logfmt"),
		config.OneOfValidator("Tracing.Exporter",
			otel.ExporterNone, otel.ExporterStdout, otel.ExporterZipkin, otel.ExporterJaeger),
		config.When(tracingExported, config.RangeValidator("Tracing.SampleRate", 0, 1)),
		config.When(metricsEnabled, config.StringLengthValidator("Metrics.Path", 2, 128)),
		config.When(eventsEnabled, config.RequiredFields("Events.URL", "Events.Prefix")),
	)
}
