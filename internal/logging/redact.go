package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/AvishManiar21/user-story-automation/internal/config"
)

const mask = "[REDACTED]"

// Secret logs a config.Secret as its length only.
func Secret(key string, s config.Secret) zap.Field {
	return RedactedString(key, s.Value())
}

// RedactedString logs val as its length only.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// RedactingEncoder masks credential fields and key-shaped substrings before
// the wrapped encoder sees them.
type RedactingEncoder struct {
	zapcore.Encoder
	keys     map[string]struct{}
	patterns []*regexp.Regexp
}

// NewRedactingEncoder wraps base with the rules in cfg.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	e := &RedactingEncoder{Encoder: base, keys: make(map[string]struct{}, len(cfg.Keys))}
	for _, k := range cfg.Keys {
		e.keys[strings.ToLower(k)] = struct{}{}
	}
	for _, p := range cfg.Patterns {
		if len(p) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern longer than %d characters", maxPatternLen)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		e.patterns = append(e.patterns, re)
	}
	return e, nil
}

func (e *RedactingEncoder) sensitive(key string) bool {
	_, ok := e.keys[strings.ToLower(key)]
	return ok
}

func (e *RedactingEncoder) scrub(s string) string {
	for _, re := range e.patterns {
		s = re.ReplaceAllString(s, mask)
	}
	return s
}

// field returns f with its value masked when the key or value is sensitive.
func (e *RedactingEncoder) field(f zapcore.Field) zapcore.Field {
	switch f.Type {
	case zapcore.StringType:
		if e.sensitive(f.Key) {
			return zap.String(f.Key, mask)
		}
		return zap.String(f.Key, e.scrub(f.String))
	case zapcore.ByteStringType, zapcore.BinaryType:
		if e.sensitive(f.Key) {
			return zap.String(f.Key, mask)
		}
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok {
			return zap.String(f.Key, e.scrub(err.Error()))
		}
	case zapcore.StringerType:
		if e.sensitive(f.Key) {
			return zap.String(f.Key, mask)
		}
		if s, ok := f.Interface.(fmt.Stringer); ok {
			return zap.String(f.Key, e.scrub(s.String()))
		}
	}
	return f
}

// AddString masks fields added through With.
func (e *RedactingEncoder) AddString(key, val string) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, mask)
		return
	}
	e.Encoder.AddString(key, e.scrub(val))
}

// AddByteString masks fields added through With.
func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, mask)
		return
	}
	e.Encoder.AddString(key, e.scrub(string(val)))
}

// Clone keeps redaction on child encoders.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), keys: e.keys, patterns: e.patterns}
}

// EncodeEntry masks the message and the entry's fields.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	ent.Message = e.scrub(ent.Message)
	clean := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		clean[i] = e.field(f)
	}
	return e.Encoder.EncodeEntry(ent, clean)
}
