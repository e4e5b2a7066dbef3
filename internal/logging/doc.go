// Package logging builds the zap loggers used by storyd and storyctl.
//
// Output goes to stdout, or stderr when stdout carries a protocol (MCP
// stdio) or a report (storyctl). When an OpenTelemetry log provider is
// available the same entries are teed into it through the otelzap bridge.
//
// Entries below error level are sampled. Error and above are never
// dropped.
//
// Request documents and model keys travel through the pipeline, so every
// encoded entry passes through a redacting encoder: string fields whose key
// names a credential are replaced, and provider key shapes (sk-..., gsk_...,
// bearer tokens) are masked wherever they appear in a string value.
//
// Correlation data rides on context.Context:
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithDocument(ctx, "requirements.docx")
//	logging.Ctx(ctx, logger).Info("extracting requirements")
//
// produces run.id, document and, inside a span, trace_id/span_id fields.
package logging
