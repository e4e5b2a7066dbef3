package mcp

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/AvishManiar21/user-story-automation/internal/document"
	"github.com/AvishManiar21/user-story-automation/internal/integration"
	"github.com/AvishManiar21/user-story-automation/internal/llm"
	"github.com/AvishManiar21/user-story-automation/internal/pipeline"
	"github.com/AvishManiar21/user-story-automation/internal/sanitize"
)

const instrumentationName = "github.com/AvishManiar21/user-story-automation/internal/mcp"

// errInvalidInput marks tool arguments that fail validation.
var errInvalidInput = errors.New("invalid input")

var latencyBuckets = []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600}

// toolMetrics counts tool calls. Generation runs many model calls, so the
// latency buckets reach into minutes.
type toolMetrics struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
	inflight metric.Int64UpDownCounter
}

func newToolMetrics(meter metric.Meter, logger *zap.Logger) *toolMetrics {
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn("creating instrument", zap.String("instrument", name), zap.Error(err))
		}
	}
	m := &toolMetrics{}
	var err error

	if m.calls, err = meter.Int64Counter("storyforge.mcp.tool.calls",
		metric.WithDescription("MCP tool calls by tool"),
		metric.WithUnit("{call}")); err != nil {
		warn("calls", err)
		m.calls = noop.Int64Counter{}
	}
	if m.failures, err = meter.Int64Counter("storyforge.mcp.tool.failures",
		metric.WithDescription("Failed MCP tool calls by tool, reason and pipeline stage"),
		metric.WithUnit("{call}")); err != nil {
		warn("failures", err)
		m.failures = noop.Int64Counter{}
	}
	if m.latency, err = meter.Float64Histogram("storyforge.mcp.tool.duration",
		metric.WithDescription("MCP tool call duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		warn("duration", err)
		m.latency = noop.Float64Histogram{}
	}
	if m.inflight, err = meter.Int64UpDownCounter("storyforge.mcp.tool.in_flight",
		metric.WithDescription("MCP tool calls in progress"),
		metric.WithUnit("{call}")); err != nil {
		warn("in_flight", err)
		m.inflight = noop.Int64UpDownCounter{}
	}
	return m
}

// track marks a call to tool as in flight. The returned function records
// its outcome and must be called once.
func (m *toolMetrics) track(ctx context.Context, tool string) func(error) {
	start := time.Now()
	toolAttr := metric.WithAttributes(attribute.String("tool", tool))
	m.inflight.Add(ctx, 1, toolAttr)

	return func(err error) {
		m.inflight.Add(ctx, -1, toolAttr)
		m.calls.Add(ctx, 1, toolAttr)
		m.latency.Record(ctx, time.Since(start).Seconds(), toolAttr)
		if err == nil {
			return
		}
		attrs := []attribute.KeyValue{
			attribute.String("tool", tool),
			attribute.String("reason", failureReason(err)),
		}
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			attrs = append(attrs, attribute.String("stage", stageErr.Stage))
		}
		m.failures.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// failureReason maps an error to a low-cardinality reason label.
func failureReason(err error) string {
	var stageErr *pipeline.StageError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case errors.Is(err, llm.ErrMissingAPIKey):
		return "auth_error"
	case errors.Is(err, document.ErrUnsupportedType), errors.Is(err, document.ErrInvalidDocument):
		return "document_error"
	case errors.Is(err, fs.ErrNotExist):
		return "not_found"
	case errors.Is(err, integration.ErrAlreadyIntegrated):
		return "conflict"
	case errors.Is(err, errInvalidInput),
		errors.Is(err, llm.ErrModelNotAllowed),
		errors.Is(err, integration.ErrNoStory),
		errors.Is(err, integration.ErrNoStories),
		errors.Is(err, sanitize.ErrPathTraversal),
		errors.Is(err, sanitize.ErrEmptyPath):
		return "validation_error"
	case errors.As(err, &stageErr):
		return "stage_error"
	default:
		return "internal_error"
	}
}
