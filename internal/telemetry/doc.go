// Package telemetry sets up OpenTelemetry tracing and metrics for storyforge.
//
// Spans and metrics are exported over OTLP (gRPC or HTTP) to a collector.
// Telemetry is off by default. When it is on but an exporter cannot be
// created, New still succeeds and Health reports the instance as degraded;
// callers then receive the global no-op providers.
//
// The pipeline opens pipeline.process for a run and pipeline.rat,
// pipeline.sample and pipeline.refine_epics for its stages.
//
// Configuration lives in the observability section:
//
//	observability:
//	  enable_telemetry: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  sampling_rate: 0.5
//
// Tests use NewRecorder to capture spans and metrics in memory.
package telemetry
