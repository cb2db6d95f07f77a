package engine

import (
	"github.com/scottthesecond/syncframe/pkg/adapter"
	"github.com/scottthesecond/syncframe/pkg/dedup"
	"github.com/scottthesecond/syncframe/pkg/linkindex"
	"github.com/scottthesecond/syncframe/pkg/mapper"
	"github.com/scottthesecond/syncframe/pkg/telemetry"
)

// SideConfig describes one side of a job: which adapter instance backs
// it and its throttle/batch parameters. Adapter discovery/instantiation
// is host-side; the engine only ever receives a ready-to-use instance.
type SideConfig struct {
	AdapterName string
	Table       string
	Adapter     adapter.Adapter

	MaxReqs     int
	IntervalSec int
	BatchSize   int
}

// DefaultThrottle matches spec §6's documented default: {50, 60s, 10}.
func DefaultThrottle() (maxReqs, intervalSec, batchSize int) {
	return 50, 60, 10
}

// RetryConfig controls applyWithRetry's exponential backoff and the
// job-disablement threshold.
type RetryConfig struct {
	MaxAttempts     int
	BackoffSec      float64
	DisableJobAfter int
}

// DefaultRetryConfig matches spec §6: {max_attempts=5, backoff_sec=30,
// disable_job_after=20}.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5, BackoffSec: 30, DisableJobAfter: 20}
}

// JobConfig is the host-provided descriptor spec §6 calls "Configuration":
// a job id, two sides, both directions' mappers, a link-index instance,
// retry parameters, and a conflict policy.
type JobConfig struct {
	JobID string

	SideA SideConfig
	SideB SideConfig

	MapperAtoB mapper.Mapper
	MapperBtoA mapper.Mapper

	Store linkindex.Store

	Retry          RetryConfig
	ConflictPolicy dedup.ConflictPolicy

	// Telemetry records per-cycle counters. Nil falls back to a no-op
	// recorder; hosts that want metrics construct a *telemetry.Manager.
	Telemetry telemetry.Recorder
}

func tuple(s SideConfig, id string) linkindex.Tuple {
	return linkindex.Tuple{Adapter: s.AdapterName, Table: s.Table, ID: id}
}

func side(s SideConfig) linkindex.Tuple {
	return linkindex.Tuple{Adapter: s.AdapterName, Table: s.Table}
}
