package logging

import (
	"context"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	runKey      struct{}
	documentKey struct{}
	requestKey  struct{}
)

// maxDocumentLen bounds document names carried in context.
const maxDocumentLen = 255

// idPattern matches run and request ids: uuids, or the short ids clients
// send in X-Request-ID.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// WithRunID tags ctx with a pipeline run id. It panics on malformed ids.
func WithRunID(ctx context.Context, id string) context.Context {
	mustID("run id", id)
	return context.WithValue(ctx, runKey{}, id)
}

// RunIDFromContext returns the run id, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runKey{}).(string)
	return id
}

// WithRequestID tags ctx with an HTTP request id. Request ids may come from
// clients, so ids that do not match the id format leave ctx unchanged.
func WithRequestID(ctx context.Context, id string) context.Context {
	if !idPattern.MatchString(id) {
		return ctx
	}
	return context.WithValue(ctx, requestKey{}, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestKey{}).(string)
	return id
}

// WithDocument tags ctx with the name of the document being processed.
// Empty names leave ctx unchanged; long names are truncated.
func WithDocument(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	if r := []rune(name); len(r) > maxDocumentLen {
		name = string(r[:maxDocumentLen])
	}
	return context.WithValue(ctx, documentKey{}, name)
}

// DocumentFromContext returns the document name, or "".
func DocumentFromContext(ctx context.Context) string {
	name, _ := ctx.Value(documentKey{}).(string)
	return name
}

func mustID(kind, id string) {
	if !idPattern.MatchString(id) {
		panic(fmt.Sprintf("logging: invalid %s %q", kind, id))
	}
}

// ContextFields returns the correlation fields carried by ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := RunIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("run.id", id))
	}
	if name := DocumentFromContext(ctx); name != "" {
		fields = append(fields, zap.String("document", name))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	return fields
}

// Ctx returns base with the correlation fields of ctx attached.
func Ctx(ctx context.Context, base *zap.Logger) *zap.Logger {
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
