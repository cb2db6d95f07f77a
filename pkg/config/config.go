// Package config loads the host-provided job descriptor spec §6 calls
// "Configuration": a set of sync jobs, each pairing two sides with their
// adapter/table names, throttle and retry overrides, and a conflict
// policy, plus the link-index backing store. Adapter and mapper
// instantiation from this descriptor is host-side per spec §1; this
// package only parses and validates the document.
package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// LinkIndexConfig names the backing store for the link index.
type LinkIndexConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "memory", "sqlite3", "postgres"
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// SideConfig describes one side of a job: which named adapter/table pair
// it binds to, and optional per-side throttle/batch overrides. The
// adapter name is a lookup key into the host's adapter registry, not a
// Go type — discovery/instantiation of the concrete adapter stays
// out of scope here.
type SideConfig struct {
	AdapterName string `mapstructure:"adapter" yaml:"adapter" validate:"required,oneof=memory mongo sql elasticsearch kafka"`
	Table       string `mapstructure:"table" yaml:"table" validate:"required"`

	// DSN is the connection string/URI for adapter kinds that need one
	// (mongo, sql, and elasticsearch's server address); ignored by memory
	// and kafka.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
	// SQLDriver selects "mysql" or "postgres" when AdapterName is "sql".
	SQLDriver string `mapstructure:"sql_driver" yaml:"sql_driver"`
	// IDColumn is used by the sql adapter only; WatermarkColumn by the sql,
	// mongo and elasticsearch adapters; DeletedColumn by sql and mongo.
	// Brokers and Partition parameterize kafka.
	IDColumn        string   `mapstructure:"id_column" yaml:"id_column"`
	WatermarkColumn string   `mapstructure:"watermark_column" yaml:"watermark_column"`
	DeletedColumn   string   `mapstructure:"deleted_column" yaml:"deleted_column"`
	Brokers         []string `mapstructure:"brokers" yaml:"brokers"`
	Partition       int32    `mapstructure:"partition" yaml:"partition"`

	MaxReqs     int `mapstructure:"max_reqs" yaml:"max_reqs"`
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`
	BatchSize   int `mapstructure:"batch_size" yaml:"batch_size"`
}

// MapperConfig names the mapper implementation for one direction and its
// parameters. Kind selects between the field-rename mapper and a
// kazaam-spec mapper; Spec/FieldMap carry the kind-specific payload.
type MapperConfig struct {
	Kind      string            `mapstructure:"kind" yaml:"kind" validate:"required,oneof=fieldcopy kazaam"`
	Spec      string            `mapstructure:"spec" yaml:"spec"`
	FieldMap  map[string]string `mapstructure:"field_map" yaml:"field_map"`
}

// RetryConfig mirrors engine.RetryConfig; backoff_sec is a number of
// seconds and may be fractional.
type RetryConfig struct {
	MaxAttempts     int    `mapstructure:"max_attempts" yaml:"max_attempts"`
	BackoffSec      float64 `mapstructure:"backoff_sec" yaml:"backoff_sec"`
	DisableJobAfter int    `mapstructure:"disable_job_after" yaml:"disable_job_after"`
}

// JobConfig is one sync job descriptor: id, two sides, both directions'
// mappers, retry parameters, and a conflict policy. It is the on-disk
// shape of engine.JobConfig before the host resolves adapter names to
// live Adapter instances.
type JobConfig struct {
	JobID string `mapstructure:"job_id" yaml:"job_id" validate:"required"`

	SideA SideConfig `mapstructure:"side_a" yaml:"side_a" validate:"required"`
	SideB SideConfig `mapstructure:"side_b" yaml:"side_b" validate:"required"`

	MapperAtoB MapperConfig `mapstructure:"mapper_a_to_b" yaml:"mapper_a_to_b" validate:"required"`
	MapperBtoA MapperConfig `mapstructure:"mapper_b_to_a" yaml:"mapper_b_to_a" validate:"required"`

	Retry          RetryConfig `mapstructure:"retry" yaml:"retry"`
	ConflictPolicy string      `mapstructure:"conflict_policy" yaml:"conflict_policy" validate:"omitempty,oneof=last_writer_wins manual"`

	// ScheduleInterval controls how often the job's Service loop invokes
	// Run; cmd/syncframe uses 60 seconds when it is zero or negative.
	ScheduleInterval time.Duration `mapstructure:"schedule_interval" yaml:"schedule_interval"`
}

// LoggingConfig controls the zerolog global level/format, matching the
// teacher's Logging section.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// TelemetryConfig toggles the in-process OTel meter; there is no OTLP
// endpoint field because nothing in this module exports metrics out of
// process (see DESIGN.md's metrics Non-goal discussion).
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// Config is the whole host document: the link-index backing store, the
// ambient logging/telemetry sections, and the set of jobs to run.
type Config struct {
	LinkIndex LinkIndexConfig `mapstructure:"link_index" yaml:"link_index"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Jobs      []JobConfig     `mapstructure:"jobs" yaml:"jobs" validate:"dive"`
}

// DefaultConfig returns a Config with the host-level defaults filled in:
// the in-memory link index, info-level JSON logging, and telemetry
// enabled as "syncframe". It has no jobs; the per-job defaults of spec §6
// (throttle {50, 60s, 10}, retry {5, 30, 20}, conflict policy
// last_writer_wins) are applied by Validate.
func DefaultConfig() *Config {
	return &Config{
		LinkIndex: LinkIndexConfig{Driver: "memory"},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{Enabled: true, ServiceName: "syncframe"},
	}
}

// LoadConfiguration reads the job descriptor from path (or, when path is
// empty, a "syncframe" file in /etc/syncframe, $HOME/.syncframe or ./conf),
// with SYNCFRAME_-prefixed environment overrides, using viper, the same
// SetDefault/ReadInConfig/WatchConfig shape as the teacher's
// pkg/config.LoadConfiguration. It watches the file, but a change is only
// logged: the returned Config is not re-read or re-validated, and running
// jobs keep their settings until the process restarts.
func LoadConfiguration(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SYNCFRAME")
	v.AutomaticEnv()

	v.SetDefault("link_index.driver", "memory")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "syncframe")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("syncframe")
		v.AddConfigPath("/etc/syncframe/")
		v.AddConfigPath("$HOME/.syncframe")
		v.AddConfigPath("./conf")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("config file changed, restart to pick up job changes")
	})

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	applyLogLevel(cfg.Logging.Level)

	log.Debug().Int("jobs", len(cfg.Jobs)).Str("link_index_driver", cfg.LinkIndex.Driver).
		Msg("configuration loaded")
	return cfg, nil
}

func applyLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
