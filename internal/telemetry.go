package internal

import (
	"context"
	"sync"
)

// TelemetryEmitter receives named measurements with labels. Wiring code may
// register one backed by a metrics SDK; the default drops everything.
type TelemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

// Metric names.
const (
	MetricStageLatency = "custom_api_stage_latency_ms"
	MetricRowCount     = "custom_api_row_count"
	MetricWarnings     = "custom_api_validation_warnings"
)

func noopEmitter(context.Context, string, map[string]string, any) {}

var (
	teleMu   sync.RWMutex
	teleImpl TelemetryEmitter = noopEmitter
)

// RegisterTelemetryEmitter installs fn; nil restores the no-op emitter.
func RegisterTelemetryEmitter(fn TelemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = noopEmitter
		return
	}
	teleImpl = fn
}

func emitter() TelemetryEmitter {
	teleMu.RLock()
	defer teleMu.RUnlock()
	return teleImpl
}

// EmitLatency records the duration in milliseconds of one request stage
// ("query", "count", "transform", "total") for an endpoint.
func EmitLatency(ctx context.Context, slug, stage string, ms int64) {
	emitter()(ctx, MetricStageLatency, map[string]string{"slug": slug, "stage": stage}, ms)
}

// EmitRowCount records how many rows an engine returned.
func EmitRowCount(ctx context.Context, engine string, rows int64) {
	emitter()(ctx, MetricRowCount, map[string]string{"engine": engine}, rows)
}

// EmitWarnings records the number of validation warnings attached to a response.
func EmitWarnings(ctx context.Context, slug string, count int) {
	emitter()(ctx, MetricWarnings, map[string]string{"slug": slug}, count)
}
