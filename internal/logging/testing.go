package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger captures entries in memory for assertions.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
	enc  *RedactingEncoder
}

// NewTestLogger returns a logger that records every entry at TraceLevel and
// above. Entries pass through the default redaction rules.
func NewTestLogger() *TestLogger {
	core, logs := observer.New(TraceLevel)
	r, err := NewRedactingEncoder(nil, NewDefaultConfig().Redaction)
	if err != nil {
		panic(err)
	}
	return &TestLogger{
		Logger: wrap(zap.New(redactingCore{Core: core, enc: r})),
		logs:   logs,
		enc:    r,
	}
}

// redactingCore applies encoder field masking to a core that does not
// encode, so the observer sees what a real encoder would write.
type redactingCore struct {
	zapcore.Core
	enc *RedactingEncoder
}

func (c redactingCore) clean(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = c.enc.field(f)
	}
	return out
}

func (c redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return redactingCore{Core: c.Core.With(c.clean(fields)), enc: c.enc}
}

func (c redactingCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c redactingCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	e.Message = c.enc.scrub(e.Message)
	return c.Core.Write(e, c.clean(fields))
}

// All returns every recorded entry.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.logs.All()
}

// Messages returns the recorded messages in order.
func (t *TestLogger) Messages() []string {
	entries := t.logs.All()
	msgs := make([]string, len(entries))
	for i, e := range entries {
		msgs[i] = e.Message
	}
	return msgs
}

// Field returns the value of key on the first entry with message msg.
func (t *TestLogger) Field(msg, key string) (any, bool) {
	entries := t.logs.FilterMessage(msg).All()
	if len(entries) == 0 {
		return nil, false
	}
	v, ok := entries[0].ContextMap()[key]
	return v, ok
}

// RequireLogged fails the test unless an entry at level contains substr.
func (t *TestLogger) RequireLogged(tb testing.TB, level zapcore.Level, substr string) {
	tb.Helper()
	for _, e := range t.logs.All() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return
		}
	}
	tb.Fatalf("no %s entry containing %q in %v", level, substr, t.Messages())
}

// RequireNoSecrets fails the test when an entry still carries a value the
// redaction patterns would mask.
func (t *TestLogger) RequireNoSecrets(tb testing.TB) {
	tb.Helper()
	for _, e := range t.logs.All() {
		if t.leaks(e.Message) {
			tb.Fatalf("entry %q leaks a secret", e.Message)
		}
		for k, v := range e.ContextMap() {
			if s, ok := v.(string); ok && t.leaks(s) {
				tb.Fatalf("field %s of %q leaks a secret", k, e.Message)
			}
		}
	}
}

func (t *TestLogger) leaks(s string) bool {
	for _, re := range t.enc.patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
