package consensus

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// SelfConsistency groups answers the judge considers equivalent and returns
// the representative of the largest group. Each answer joins the first
// existing group whose representative the judge calls the same (a reply
// containing "yes"); otherwise it starts a new group. Ties go to the
// earliest group. Judge errors count as "not the same".
func SelfConsistency(ctx context.Context, answers []string, judge Judge, logger *zap.Logger) (string, error) {
	if len(answers) == 0 {
		return "", ErrNoCandidates
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	type group struct {
		representative string
		votes          int
	}
	groups := []*group{{representative: answers[0], votes: 1}}

	for _, answer := range answers[1:] {
		matched := false
		for _, g := range groups {
			reply, err := judge.Compare(ctx, g.representative, answer)
			if err != nil {
				logger.Warn("sameness check failed", zap.Error(err))
				continue
			}
			if strings.Contains(strings.ToLower(reply), "yes") {
				g.votes++
				matched = true
				break
			}
		}
		if !matched {
			groups = append(groups, &group{representative: answer, votes: 1})
		}
	}

	best := groups[0]
	for _, g := range groups[1:] {
		if g.votes > best.votes {
			best = g
		}
	}
	logger.Debug("self-consistency vote",
		zap.Int("groups", len(groups)),
		zap.Int("winning_votes", best.votes))
	return best.representative, nil
}
