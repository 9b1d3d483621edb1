package internal

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type metricRecord struct {
	name   string
	labels map[string]string
	value  any
}

type metricRecorder struct {
	mu      sync.Mutex
	records []metricRecord
}

func (r *metricRecorder) emit(_ context.Context, name string, labels map[string]string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, metricRecord{name: name, labels: labels, value: value})
}

func (r *metricRecorder) byName(name string) []metricRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []metricRecord
	for _, rec := range r.records {
		if rec.name == name {
			out = append(out, rec)
		}
	}
	return out
}

// recordTelemetry installs a recorder for the duration of the test.
func recordTelemetry(t *testing.T) *metricRecorder {
	t.Helper()
	rec := &metricRecorder{}
	RegisterTelemetryEmitter(rec.emit)
	t.Cleanup(func() { RegisterTelemetryEmitter(nil) })
	return rec
}

func TestTelemetryEmitters(t *testing.T) {
	rec := recordTelemetry(t)
	ctx := context.Background()

	EmitLatency(ctx, "articles", "query", 12)
	EmitRowCount(ctx, "duckdb", 3)
	EmitWarnings(ctx, "articles", 2)

	latency := rec.byName(MetricStageLatency)
	require.Len(t, latency, 1)
	assert.Equal(t, map[string]string{"slug": "articles", "stage": "query"}, latency[0].labels)
	assert.Equal(t, int64(12), latency[0].value)

	rows := rec.byName(MetricRowCount)
	require.Len(t, rows, 1)
	assert.Equal(t, "duckdb", rows[0].labels["engine"])

	warnings := rec.byName(MetricWarnings)
	require.Len(t, warnings, 1)
	assert.Equal(t, 2, warnings[0].value)

	RegisterTelemetryEmitter(nil)
	EmitRowCount(ctx, "postgres", 1)
	assert.Len(t, rec.byName(MetricRowCount), 1)
}
