package consensus

import (
	"context"

	"github.com/AvishManiar21/user-story-automation/internal/llm"
)

// PromptJudge asks a model to compare two inputs.
type PromptJudge struct {
	gateway llm.Gateway
	system  string
	render  func(first, second string) string
}

// NewPromptJudge returns a judge that sends render(first, second) as the
// user turn, with system as the system prompt.
func NewPromptJudge(gateway llm.Gateway, system string, render func(first, second string) string) *PromptJudge {
	return &PromptJudge{gateway: gateway, system: system, render: render}
}

// Compare implements Judge.
func (j *PromptJudge) Compare(ctx context.Context, first, second string) (string, error) {
	return j.gateway.Generate(ctx, j.system, j.render(first, second))
}

var _ Judge = (*PromptJudge)(nil)
