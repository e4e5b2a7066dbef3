package llm

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// callsTotal counts model calls.
	// Labels: provider, outcome (success, error, timeout)
	callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storyforge",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of model calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// callDuration tracks model call latency.
	callDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storyforge",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Duration of model calls in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider"},
	)
)

type instrumentedGateway struct {
	next     Gateway
	provider string
}

// Instrument records call counts and latency for g under provider.
func Instrument(g Gateway, provider string) Gateway {
	return &instrumentedGateway{next: g, provider: provider}
}

func (i *instrumentedGateway) Generate(ctx context.Context, system string, turns ...string) (string, error) {
	start := time.Now()
	out, err := i.next.Generate(ctx, system, turns...)
	callDuration.WithLabelValues(i.provider).Observe(time.Since(start).Seconds())

	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	callsTotal.WithLabelValues(i.provider, outcome).Inc()
	return out, err
}
