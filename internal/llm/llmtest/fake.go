// Package llmtest provides a scripted llm.Gateway for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/AvishManiar21/user-story-automation/internal/llm"
)

// ErrScriptExhausted is returned when a Sequence fake runs out of replies.
var ErrScriptExhausted = errors.New("llmtest: no scripted reply left")

// Call records one Generate invocation.
type Call struct {
	System string
	Turns  []string
}

// Prompt returns the user turns joined with newlines.
func (c Call) Prompt() string {
	return strings.Join(c.Turns, "\n")
}

// Reply is a scripted response.
type Reply struct {
	Text string
	Err  error
}

// Fake is a thread-safe llm.Gateway that answers through a handler and
// records every call.
type Fake struct {
	mu      sync.Mutex
	handler func(Call) (string, error)
	calls   []Call
}

// New returns a Fake that answers with handler.
func New(handler func(Call) (string, error)) *Fake {
	return &Fake{handler: handler}
}

// Sequence returns a Fake that answers with replies in order.
func Sequence(replies ...Reply) *Fake {
	var (
		mu   sync.Mutex
		next int
	)
	return New(func(Call) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(replies) {
			return "", ErrScriptExhausted
		}
		r := replies[next]
		next++
		return r.Text, r.Err
	})
}

// Generate implements llm.Gateway.
func (f *Fake) Generate(ctx context.Context, system string, turns ...string) (string, error) {
	call := Call{System: system, Turns: append([]string(nil), turns...)}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.handler(call)
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns the number of Generate calls so far.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var _ llm.Gateway = (*Fake)(nil)
