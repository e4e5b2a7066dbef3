package consensus

import (
	"context"
	"strings"
)

// Choice is the outcome of a pairwise vote.
type Choice int

const (
	// ChoiceNone means the vote could not be read.
	ChoiceNone Choice = iota
	// ChoiceFirst prefers the first input.
	ChoiceFirst
	// ChoiceSecond prefers the second input.
	ChoiceSecond
)

// String returns the choice name.
func (c Choice) String() string {
	switch c {
	case ChoiceFirst:
		return "first"
	case ChoiceSecond:
		return "second"
	default:
		return "none"
	}
}

// ParseVote reads a judge reply. The check is a case-insensitive substring
// match, tested in order: "1" or "first" selects the first input, then "2"
// or "second" selects the second.
func ParseVote(text string) Choice {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "1") || strings.Contains(lower, "first"):
		return ChoiceFirst
	case strings.Contains(lower, "2") || strings.Contains(lower, "second"):
		return ChoiceSecond
	default:
		return ChoiceNone
	}
}

// Judge compares two inputs and returns its raw reply.
type Judge interface {
	Compare(ctx context.Context, first, second string) (string, error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, first, second string) (string, error)

// Compare calls f.
func (f JudgeFunc) Compare(ctx context.Context, first, second string) (string, error) {
	return f(ctx, first, second)
}
