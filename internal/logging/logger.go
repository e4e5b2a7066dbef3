package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a zap logger whose methods add the correlation fields carried
// by ctx.
type Logger struct {
	zap *zap.Logger
	// ctxZap reports the caller of the context-aware methods.
	ctxZap *zap.Logger
}

func wrap(z *zap.Logger) *Logger {
	return &Logger{zap: z, ctxZap: z.WithOptions(zap.AddCallerSkip(2))}
}

// NewLogger builds a logger from cfg. provider may be nil.
func NewLogger(cfg *Config, provider log.LoggerProvider) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	core, err := newCore(cfg, provider)
	if err != nil {
		return nil, err
	}

	var opts []zap.Option
	if cfg.Caller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.StacktraceLevel > zapcore.DebugLevel {
		opts = append(opts, zap.AddStacktrace(cfg.StacktraceLevel))
	}
	if len(cfg.Fields) > 0 {
		fields := make([]zap.Field, 0, len(cfg.Fields))
		for k, v := range cfg.Fields {
			fields = append(fields, zap.String(k, v))
		}
		opts = append(opts, zap.Fields(fields...))
	}
	return wrap(zap.New(core, opts...)), nil
}

func newCore(cfg *Config, provider log.LoggerProvider) (zapcore.Core, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = encodeLevel

	var enc zapcore.Encoder = zapcore.NewJSONEncoder(encCfg)
	if cfg.Format == "console" {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	if cfg.Redaction.Enabled {
		r, err := NewRedactingEncoder(enc, cfg.Redaction)
		if err != nil {
			return nil, err
		}
		enc = r
	}

	out := zapcore.Lock(os.Stdout)
	if cfg.Stderr {
		out = zapcore.Lock(os.Stderr)
	}
	core := zapcore.NewCore(enc, out, cfg.Level)
	if cfg.OTEL && provider != nil {
		core = zapcore.NewTee(core, otelzap.NewCore("storyforge", otelzap.WithLoggerProvider(provider)))
	}
	return sample(core, cfg.Sampling), nil
}

// encodeLevel names TraceLevel, which zap has no name for.
func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == TraceLevel {
		enc.AppendString("trace")
		return
	}
	zapcore.LowercaseLevelEncoder(l, enc)
}

// sample thins entries below error level. Errors always pass.
func sample(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	low := levelBand{Core: core, lo: TraceLevel, hi: zapcore.WarnLevel}
	high := levelBand{Core: core, lo: zapcore.ErrorLevel, hi: zapcore.FatalLevel}
	return zapcore.NewTee(
		zapcore.NewSamplerWithOptions(low, cfg.Tick, cfg.Initial, cfg.Thereafter),
		high,
	)
}

// levelBand passes entries with lo <= level <= hi.
type levelBand struct {
	zapcore.Core
	lo, hi zapcore.Level
}

func (b levelBand) Enabled(l zapcore.Level) bool {
	return l >= b.lo && l <= b.hi && b.Core.Enabled(l)
}

func (b levelBand) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !b.Enabled(e.Level) {
		return ce
	}
	return b.Core.Check(e, ce)
}

func (b levelBand) With(fields []zapcore.Field) zapcore.Core {
	return levelBand{Core: b.Core.With(fields), lo: b.lo, hi: b.hi}
}

func (l *Logger) log(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	if ce := l.ctxZap.Check(level, msg); ce != nil {
		ce.Write(append(ContextFields(ctx), fields...)...)
	}
}

// Trace logs at TraceLevel.
func (l *Logger) Trace(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, TraceLevel, msg, fields)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

// With returns a child logger carrying fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return wrap(l.zap.With(fields...))
}

// Named returns a child logger with name appended to the logger name.
func (l *Logger) Named(name string) *Logger {
	return wrap(l.zap.Named(name))
}

// Enabled reports whether level would be written.
func (l *Logger) Enabled(level zapcore.Level) bool {
	return l.zap.Core().Enabled(level)
}

// Sync flushes buffered entries. Terminals reject fsync; that is not an
// error.
func (l *Logger) Sync() error {
	err := l.zap.Sync()
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.EINVAL || errno == syscall.ENOTTY) {
		return nil
	}
	return err
}

// Underlying returns the zap logger for components that take *zap.Logger.
func (l *Logger) Underlying() *zap.Logger {
	return l.zap
}
