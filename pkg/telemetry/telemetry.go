// Package telemetry provides in-process OpenTelemetry instrumentation for
// the sync engine: cycle counts by status, per-direction upsert/delete
// counts, retries, and conflicts. It keeps the SDK's meter provider but
// never wires an exporter or HTTP listener — spec's Non-goals exclude a
// served metrics endpoint, not the instrumentation itself.
package telemetry

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func jobAttr(jobID string) attribute.KeyValue       { return attribute.String("job_id", jobID) }
func statusAttr(status string) attribute.KeyValue   { return attribute.String("status", status) }
func directionAttr(dir string) attribute.KeyValue   { return attribute.String("direction", dir) }

// Recorder is the instrumentation hook the sync engine calls into. A nil
// Recorder is never passed around; callers without a Manager use Noop.
type Recorder interface {
	RecordCycle(ctx context.Context, jobID, status string)
	RecordUpserts(ctx context.Context, jobID, direction string, n int)
	RecordDeletes(ctx context.Context, jobID, direction string, n int)
	RecordRetries(ctx context.Context, jobID string, n int)
	RecordConflict(ctx context.Context, jobID string)
}

// Manager owns the OTel SDK meter provider and the instruments the engine
// updates. Modeled on the teacher's TelemetryManager, trimmed to the
// counters this module actually emits and with no OTLP exporter — there
// is no host surface in scope to ship spans/metrics to.
type Manager struct {
	serviceName string

	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	mu sync.Mutex

	cycles   metric.Int64Counter
	upserts  metric.Int64Counter
	deletes  metric.Int64Counter
	retries  metric.Int64Counter
	conflict metric.Int64Counter
}

// NewManager builds a Manager with an in-process SDK meter provider (no
// readers/exporters attached) and pre-creates every instrument it emits.
func NewManager(serviceName string) (*Manager, error) {
	return newManager(serviceName)
}

// newManager is NewManager with room for extra SDK options (a
// ManualReader, for tests that need to read counter values back).
func newManager(serviceName string, opts ...sdkmetric.Option) (*Manager, error) {
	provider := sdkmetric.NewMeterProvider(opts...)
	meter := provider.Meter(serviceName)

	m := &Manager{serviceName: serviceName, provider: provider, meter: meter}

	var err error
	if m.cycles, err = meter.Int64Counter("syncframe.cycles",
		metric.WithDescription("completed sync cycles by status")); err != nil {
		return nil, err
	}
	if m.upserts, err = meter.Int64Counter("syncframe.upserts",
		metric.WithDescription("records upserted to a destination side")); err != nil {
		return nil, err
	}
	if m.deletes, err = meter.Int64Counter("syncframe.deletes",
		metric.WithDescription("records deleted from a destination side")); err != nil {
		return nil, err
	}
	if m.retries, err = meter.Int64Counter("syncframe.retries",
		metric.WithDescription("applyChanges retry attempts")); err != nil {
		return nil, err
	}
	if m.conflict, err = meter.Int64Counter("syncframe.conflicts",
		metric.WithDescription("conflicts recorded under the manual policy")); err != nil {
		return nil, err
	}

	log.Info().Str("service", serviceName).Msg("telemetry manager initialized")
	return m, nil
}

// Shutdown flushes and releases the underlying meter provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

func (m *Manager) RecordCycle(ctx context.Context, jobID, status string) {
	m.cycles.Add(ctx, 1, metric.WithAttributes(jobAttr(jobID), statusAttr(status)))
}

func (m *Manager) RecordUpserts(ctx context.Context, jobID, direction string, n int) {
	if n == 0 {
		return
	}
	m.upserts.Add(ctx, int64(n), metric.WithAttributes(jobAttr(jobID), directionAttr(direction)))
}

func (m *Manager) RecordDeletes(ctx context.Context, jobID, direction string, n int) {
	if n == 0 {
		return
	}
	m.deletes.Add(ctx, int64(n), metric.WithAttributes(jobAttr(jobID), directionAttr(direction)))
}

func (m *Manager) RecordRetries(ctx context.Context, jobID string, n int) {
	if n == 0 {
		return
	}
	m.retries.Add(ctx, int64(n), metric.WithAttributes(jobAttr(jobID)))
}

func (m *Manager) RecordConflict(ctx context.Context, jobID string) {
	m.conflict.Add(ctx, 1, metric.WithAttributes(jobAttr(jobID)))
}

// noopRecorder discards everything; used when a host doesn't configure
// telemetry for a job.
type noopRecorder struct{}

// Noop is the default Recorder the engine falls back to.
var Noop Recorder = noopRecorder{}

func (noopRecorder) RecordCycle(context.Context, string, string)        {}
func (noopRecorder) RecordUpserts(context.Context, string, string, int) {}
func (noopRecorder) RecordDeletes(context.Context, string, string, int) {}
func (noopRecorder) RecordRetries(context.Context, string, int)         {}
func (noopRecorder) RecordConflict(context.Context, string)             {}
