package consensus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultThreshold is the number of samples drawn per stage.
const DefaultThreshold = 5

// ErrAllAttemptsFailed is returned when no sample produced output.
var ErrAllAttemptsFailed = errors.New("all generation attempts failed")

var errEmptySample = errors.New("empty output")

// SampleFunc produces one candidate.
type SampleFunc func(ctx context.Context) (string, error)

// Sampler draws independent candidates from a SampleFunc.
type Sampler struct {
	n           int
	parallelism int
	logger      *zap.Logger
}

// NewSampler returns a sampler drawing n candidates with at most
// parallelism calls in flight. n <= 0 uses DefaultThreshold and
// parallelism <= 1 samples sequentially.
func NewSampler(n, parallelism int, logger *zap.Logger) *Sampler {
	if n <= 0 {
		n = DefaultThreshold
	}
	if parallelism < 1 {
		parallelism = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{n: n, parallelism: parallelism, logger: logger}
}

// N returns the number of attempts per call.
func (s *Sampler) N() int {
	return s.n
}

// Sample calls generate n times. Failed or blank attempts are logged and
// skipped, never retried. Results keep attempt order regardless of
// parallelism. If every attempt fails the error wraps ErrAllAttemptsFailed
// and the last attempt error.
func (s *Sampler) Sample(ctx context.Context, generate SampleFunc) ([]string, error) {
	results := make([]string, s.n)
	errs := make([]error, s.n)

	attempt := func(i int) {
		out, err := generate(ctx)
		switch {
		case err != nil:
			errs[i] = err
			s.logger.Warn("sample attempt failed",
				zap.Int("attempt", i+1),
				zap.Int("of", s.n),
				zap.Error(err))
		case strings.TrimSpace(out) == "":
			errs[i] = errEmptySample
			s.logger.Warn("sample attempt returned empty output",
				zap.Int("attempt", i+1),
				zap.Int("of", s.n))
		default:
			results[i] = out
		}
	}

	if s.parallelism == 1 {
		for i := 0; i < s.n; i++ {
			attempt(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.parallelism)
		for i := 0; i < s.n; i++ {
			g.Go(func() error {
				attempt(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	candidates := make([]string, 0, s.n)
	var lastErr error
	for i, out := range results {
		if errs[i] != nil {
			lastErr = errs[i]
			continue
		}
		candidates = append(candidates, out)
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrAllAttemptsFailed, s.n, lastErr)
	}

	s.logger.Debug("sampling complete",
		zap.Int("succeeded", len(candidates)),
		zap.Int("attempts", s.n))
	return candidates, nil
}
