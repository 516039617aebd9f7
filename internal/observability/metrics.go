package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for relay turns.
//
// Tracked:
//   - Turn outcomes and end-to-end latency
//   - Orchestration loop depth
//   - LLM request status, latency and token usage
//   - Tool invocations by tool and status
//   - History fetch results and delivery failures
//
// A nil *Metrics is valid and records nothing, so components can treat
// metrics as optional.
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.RecordTurn("ok", time.Since(start).Seconds(), state.Iteration)
type Metrics struct {
	// TurnCounter counts completed turns.
	// Labels: outcome (ok|fallback|error)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures time from inbound event to final delivery.
	// Buckets: 0.5s, 1s, 2s, 5s, 10s, 20s, 30s, 60s, 120s
	TurnDuration prometheus.Histogram

	// LoopIterations records how many tool rounds a turn used.
	LoopIterations prometheus.Histogram

	// LLMRequestCounter counts inference requests.
	// Labels: model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures inference latency in seconds.
	// Labels: model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed tracks total tokens reported by the model.
	// Labels: model
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error|unknown)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// HistoryFetchCounter counts history lookups.
	// Labels: result (ok|timeout|error|skipped)
	HistoryFetchCounter *prometheus.CounterVec

	// DeliveryErrors counts failed chat surface operations.
	// Labels: op (post|update)
	DeliveryErrors *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_turns_total",
				Help: "Total number of conversational turns by outcome",
			},
			[]string{"outcome"},
		),

		TurnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_turn_duration_seconds",
				Help:    "Duration of a turn from event to final delivery",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
		),

		LoopIterations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_loop_iterations",
				Help:    "Tool rounds used by the orchestration loop per turn",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 10},
			},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_llm_requests_total",
				Help: "Total number of inference requests by model and status",
			},
			[]string{"model", "status"},
		),

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_llm_request_duration_seconds",
				Help:    "Duration of inference requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),

		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_llm_tokens_total",
				Help: "Total tokens reported by the model",
			},
			[]string{"model"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_tool_calls_total",
				Help: "Total number of tool calls by tool and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_tool_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),

		HistoryFetchCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_history_fetch_total",
				Help: "History lookups by result",
			},
			[]string{"result"},
		),

		DeliveryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_delivery_errors_total",
				Help: "Failed chat surface operations by operation",
			},
			[]string{"op"},
		),
	}
}

// RecordTurn records the outcome and duration of one turn.
func (m *Metrics) RecordTurn(outcome string, durationSeconds float64, iterations int) {
	if m == nil {
		return
	}
	m.TurnCounter.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(durationSeconds)
	m.LoopIterations.Observe(float64(iterations))
}

// RecordLLMRequest records one inference request.
func (m *Metrics) RecordLLMRequest(model, status string, durationSeconds float64, totalTokens int) {
	if m == nil {
		return
	}
	m.LLMRequestCounter.WithLabelValues(model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(model).Observe(durationSeconds)
	if totalTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(model).Add(float64(totalTokens))
	}
}

// RecordToolExecution records one tool call.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordHistoryFetch records the result of a history lookup.
func (m *Metrics) RecordHistoryFetch(result string) {
	if m == nil {
		return
	}
	m.HistoryFetchCounter.WithLabelValues(result).Inc()
}

// RecordDeliveryError records a failed post or update.
func (m *Metrics) RecordDeliveryError(op string) {
	if m == nil {
		return
	}
	m.DeliveryErrors.WithLabelValues(op).Inc()
}
