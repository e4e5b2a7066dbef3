package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/AvishManiar21/user-story-automation/internal/telemetry"
)

func TestRequestMetrics_Middleware(t *testing.T) {
	rec := telemetry.NewRecorder()
	m := NewRequestMetrics(rec.Meter(InstrumentationName), zap.NewNop())

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/integrate-story", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "already integrated")
	})

	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodPost, "/api/integrate-story", strings.NewReader(`{"story":{}}`)),
		httptest.NewRequest(http.MethodGet, "/nope", nil),
	} {
		e.ServeHTTP(httptest.NewRecorder(), r)
	}

	ctx := context.Background()
	got, ok := rec.Metric(ctx, "storyforge.http.requests")
	require.True(t, ok)
	sum, ok := got.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	byRoute := map[string]int64{}
	var statuses []int64
	for _, dp := range sum.DataPoints {
		route, _ := dp.Attributes.Value("route")
		status, _ := dp.Attributes.Value("status")
		byRoute[route.AsString()] = status.AsInt64()
		statuses = append(statuses, status.AsInt64())
	}
	assert.Equal(t, int64(http.StatusOK), byRoute["/health"])
	assert.Equal(t, int64(http.StatusConflict), byRoute["/api/integrate-story"])
	assert.Contains(t, statuses, int64(http.StatusNotFound))

	dur, ok := rec.Metric(ctx, "storyforge.http.duration")
	require.True(t, ok)
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)

	size, ok := rec.Metric(ctx, "storyforge.http.request.size")
	require.True(t, ok)
	reqHist, ok := size.Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, reqHist.DataPoints, 1)
	assert.Equal(t, int64(len(`{"story":{}}`)), reqHist.DataPoints[0].Sum)

	inflight, ok := rec.Metric(ctx, "storyforge.http.in_flight")
	require.True(t, ok)
	for _, dp := range inflight.Data.(metricdata.Sum[int64]).DataPoints {
		assert.Zero(t, dp.Value)
	}
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"", "unmatched"},
		{"/health", "/health"},
		{"/api/generate-stories", "/api/generate-stories"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, routeLabel(tt.path))
	}
}
