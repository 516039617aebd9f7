// Package observability provides metrics, structured logging and tracing for
// relay.
//
// # Logging
//
// Logger wraps log/slog with a handler that redacts Slack tokens and model
// API keys and copies turn correlation fields (turn_id, channel, thread_ts)
// from the context onto every record. cmd/relay installs Logger.Slog() as the
// slog default, so packages that only see *slog.Logger get the same output:
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	slog.SetDefault(logger.Slog())
//	ctx = observability.AddTurnID(ctx, turnID)
//	slog.InfoContext(ctx, "turn started")
//
// # Metrics
//
// Metrics registers Prometheus collectors (relay_*) on the registerer it is
// given. The serve command exposes the default registry on /metrics.
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.RecordToolExecution("search_tool", "success", elapsed.Seconds())
//
// # Tracing
//
// Tracer exports OpenTelemetry spans over OTLP gRPC when an endpoint is set
// and is a no-op otherwise. A turn produces one "turn" span with
// "llm.request" and "tool.execute" children.
package observability
