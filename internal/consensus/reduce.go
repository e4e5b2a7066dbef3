package consensus

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrNoCandidates is returned when Reduce is called with nothing to reduce.
var ErrNoCandidates = errors.New("no candidates to reduce")

// Reducer folds candidates into a single winner.
type Reducer struct {
	judge  Judge
	logger *zap.Logger
}

// NewReducer creates a reducer backed by judge.
func NewReducer(judge Judge, logger *zap.Logger) *Reducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reducer{judge: judge, logger: logger}
}

// Reduce returns one element of candidates. A single candidate is returned
// without consulting the judge. Otherwise the running winner, starting with
// candidates[0], is compared with each later candidate in order; only a
// ChoiceSecond vote replaces it. Judge errors are logged and the fold moves
// on. If ctx is done the current winner is returned.
func (r *Reducer) Reduce(ctx context.Context, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}

	winner := candidates[0]
	for i, challenger := range candidates[1:] {
		if ctx.Err() != nil {
			r.logger.Warn("fold interrupted, keeping current winner",
				zap.Int("compared", i),
				zap.Error(ctx.Err()))
			break
		}

		reply, err := r.judge.Compare(ctx, winner, challenger)
		if err != nil {
			r.logger.Warn("judge call failed, keeping current winner",
				zap.Int("comparison", i+1),
				zap.Error(err))
			continue
		}

		choice := ParseVote(reply)
		r.logger.Debug("judge vote",
			zap.Int("comparison", i+1),
			zap.Stringer("choice", choice))
		if choice == ChoiceSecond {
			winner = challenger
		}
	}

	return winner, nil
}
