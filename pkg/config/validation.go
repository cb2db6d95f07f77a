package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// Validate checks cfg with struct tags plus the cross-field rules the
// tags can't express (defaulting and job-id uniqueness), mirroring the
// teacher's pkg/config/validation.go's per-section Validate* functions
// collapsed into one entry point for this module's smaller document.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}

	if err := structValidator.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if len(cfg.Jobs) == 0 {
		return fmt.Errorf("config: at least one job must be configured")
	}

	seen := make(map[string]bool, len(cfg.Jobs))
	for i := range cfg.Jobs {
		job := &cfg.Jobs[i]
		if seen[job.JobID] {
			return fmt.Errorf("config: duplicate job_id %q", job.JobID)
		}
		seen[job.JobID] = true

		applySideDefaults(&job.SideA)
		applySideDefaults(&job.SideB)
		applyRetryDefaults(&job.Retry)
		if job.ConflictPolicy == "" {
			job.ConflictPolicy = "last_writer_wins"
		}
	}

	switch cfg.LinkIndex.Driver {
	case "memory":
	case "sqlite3", "postgres":
		if cfg.LinkIndex.DSN == "" {
			return fmt.Errorf("config: link_index.dsn is required for driver %q", cfg.LinkIndex.Driver)
		}
	default:
		return fmt.Errorf("config: unknown link_index.driver %q", cfg.LinkIndex.Driver)
	}

	return nil
}

// applySideDefaults fills spec §6's documented throttle default
// ({50, 60s, 10}) onto a side left entirely unconfigured.
func applySideDefaults(s *SideConfig) {
	if s.MaxReqs == 0 && s.IntervalSec == 0 && s.BatchSize == 0 {
		s.MaxReqs, s.IntervalSec, s.BatchSize = 50, 60, 10
	}
}

// applyRetryDefaults fills spec §6's documented retry default
// ({max_attempts=5, backoff_sec=30, disable_job_after=20}).
func applyRetryDefaults(r *RetryConfig) {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.BackoffSec == 0 {
		r.BackoffSec = 30
	}
	if r.DisableJobAfter == 0 {
		r.DisableJobAfter = 20
	}
}
