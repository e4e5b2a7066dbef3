package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

// InstrumentationName names the meter request metrics are recorded on.
const InstrumentationName = "github.com/AvishManiar21/user-story-automation/internal/http"

var (
	durationBuckets = []float64{0.005, 0.05, 0.25, 1, 5, 15, 30, 60, 120, 300, 600}
	sizeBuckets     = []float64{256, 1 << 10, 8 << 10, 64 << 10, 512 << 10, 2 << 20, 16 << 20}
)

// RequestMetrics records per-route request counts, latency and body sizes.
type RequestMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	respSize metric.Int64Histogram
	reqSize  metric.Int64Histogram
	inflight metric.Int64UpDownCounter
}

// NewRequestMetrics creates the request instruments on meter. Instruments
// that cannot be created are replaced by no-ops.
func NewRequestMetrics(meter metric.Meter, logger *zap.Logger) *RequestMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	failed := func(name string, err error) bool {
		if err != nil {
			logger.Warn("creating instrument", zap.String("instrument", name), zap.Error(err))
			return true
		}
		return false
	}
	m := &RequestMetrics{}
	var err error

	m.requests, err = meter.Int64Counter("storyforge.http.requests",
		metric.WithDescription("HTTP requests by method, route and status"),
		metric.WithUnit("{request}"))
	if failed("requests", err) {
		m.requests = noop.Int64Counter{}
	}
	m.latency, err = meter.Float64Histogram("storyforge.http.duration",
		metric.WithDescription("HTTP request duration; generation requests run the whole pipeline"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...))
	if failed("duration", err) {
		m.latency = noop.Float64Histogram{}
	}
	m.respSize, err = meter.Int64Histogram("storyforge.http.response.size",
		metric.WithDescription("HTTP response body size"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...))
	if failed("response.size", err) {
		m.respSize = noop.Int64Histogram{}
	}
	m.reqSize, err = meter.Int64Histogram("storyforge.http.request.size",
		metric.WithDescription("Declared request body size, mostly document uploads"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...))
	if failed("request.size", err) {
		m.reqSize = noop.Int64Histogram{}
	}
	m.inflight, err = meter.Int64UpDownCounter("storyforge.http.in_flight",
		metric.WithDescription("HTTP requests in progress"),
		metric.WithUnit("{request}"))
	if failed("in_flight", err) {
		m.inflight = noop.Int64UpDownCounter{}
	}
	return m
}

// Middleware records metrics for every request that passes through it.
func (m *RequestMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := req.Context()

			m.inflight.Add(ctx, 1)
			defer m.inflight.Add(ctx, -1)

			err := next(c)
			if err != nil {
				// Let echo write the error reply so the status is final.
				c.Error(err)
			}

			route := routeLabel(c.Path())
			attrs := metric.WithAttributes(
				attribute.String("method", req.Method),
				attribute.String("route", route),
				attribute.Int("status", c.Response().Status),
			)
			m.requests.Add(ctx, 1, attrs)
			m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			m.respSize.Record(ctx, c.Response().Size, attrs)
			if req.ContentLength > 0 {
				m.reqSize.Record(ctx, req.ContentLength, metric.WithAttributes(attribute.String("route", route)))
			}
			return nil
		}
	}
}

// routeLabel returns the matched route. Requests that match no route share
// one label.
func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
