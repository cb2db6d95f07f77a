package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func sumFor(t *testing.T, rm *metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "expected an int64 sum for %s", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("no metric named %s was recorded", name)
	return 0
}

func TestManager_RecordsCyclesUpsertsDeletesRetriesConflicts(t *testing.T) {
	reader := metric.NewManualReader()
	m, err := newManager("syncframe-test", metric.WithReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	ctx := context.Background()
	m.RecordCycle(ctx, "job1", "success")
	m.RecordUpserts(ctx, "job1", "AtoB", 3)
	m.RecordDeletes(ctx, "job1", "BtoA", 1)
	m.RecordRetries(ctx, "job1", 2)
	m.RecordConflict(ctx, "job1")
	m.RecordConflict(ctx, "job1")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(1), sumFor(t, &rm, "syncframe.cycles"))
	assert.Equal(t, int64(3), sumFor(t, &rm, "syncframe.upserts"))
	assert.Equal(t, int64(1), sumFor(t, &rm, "syncframe.deletes"))
	assert.Equal(t, int64(2), sumFor(t, &rm, "syncframe.retries"))
	assert.Equal(t, int64(2), sumFor(t, &rm, "syncframe.conflicts"))
}

func TestManager_ZeroCountsAreNotRecorded(t *testing.T) {
	reader := metric.NewManualReader()
	m, err := newManager("syncframe-test", metric.WithReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	ctx := context.Background()
	m.RecordUpserts(ctx, "job1", "AtoB", 0)
	m.RecordDeletes(ctx, "job1", "AtoB", 0)
	m.RecordRetries(ctx, "job1", 0)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			sum, ok := met.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				assert.Zero(t, dp.Value, "%s should have no recorded points when n=0", met.Name)
			}
		}
	}
}

func TestNoop_NeverPanics(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		Noop.RecordCycle(ctx, "job1", "success")
		Noop.RecordUpserts(ctx, "job1", "AtoB", 5)
		Noop.RecordDeletes(ctx, "job1", "AtoB", 5)
		Noop.RecordRetries(ctx, "job1", 5)
		Noop.RecordConflict(ctx, "job1")
	})
}
