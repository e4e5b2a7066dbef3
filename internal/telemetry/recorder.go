package telemetry

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Recorder is a Telemetry that keeps spans and metrics in memory, for tests.
type Recorder struct {
	*Telemetry

	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

// NewRecorder returns an enabled Telemetry backed by in-memory exporters.
func NewRecorder() *Recorder {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	return &Recorder{
		Telemetry: &Telemetry{
			cfg:     cfg,
			tracers: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
			meters:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		},
		spans:  spans,
		reader: reader,
	}
}

// Spans returns the ended spans in end order.
func (r *Recorder) Spans() []sdktrace.ReadOnlySpan {
	return r.spans.Ended()
}

// SpanNames returns the names of the ended spans.
func (r *Recorder) SpanNames() []string {
	spans := r.Spans()
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name()
	}
	return names
}

// Count returns how many ended spans carry name.
func (r *Recorder) Count(name string) int {
	n := 0
	for _, s := range r.Spans() {
		if s.Name() == name {
			n++
		}
	}
	return n
}

// Span returns the first ended span named name, or nil.
func (r *Recorder) Span(name string) sdktrace.ReadOnlySpan {
	for _, s := range r.Spans() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// RequireSpan fails the test unless a span named name has ended.
func (r *Recorder) RequireSpan(tb testing.TB, name string) sdktrace.ReadOnlySpan {
	tb.Helper()
	s := r.Span(name)
	if s == nil {
		tb.Fatalf("span %q not recorded, have %v", name, r.SpanNames())
	}
	return s
}

// Metric collects the current metrics and returns the one named name.
func (r *Recorder) Metric(ctx context.Context, name string) (metricdata.Metrics, bool) {
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		return metricdata.Metrics{}, false
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}
