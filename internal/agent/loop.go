package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	agentctx "github.com/zapdoslabs/relay/internal/agent/context"
	"github.com/zapdoslabs/relay/internal/observability"
	"github.com/zapdoslabs/relay/pkg/models"
)

// Loop defaults.
const (
	DefaultMaxIterations = 10
	DefaultToolTimeout   = 30 * time.Second
	DefaultFallbackText  = "(No response)"
)

// LoopConfig configures one orchestration loop. It is passed at
// construction so every turn can run with its own limits.
type LoopConfig struct {
	// MaxIterations caps the number of tool rounds.
	// Default: 10
	MaxIterations int

	// ContextChars is the character budget applied before every inference call.
	// Default: 24000
	ContextChars int

	// ToolTimeout bounds each tool call.
	// Default: 30s
	ToolTimeout time.Duration

	// FallbackText replaces a missing or empty final answer.
	// Default: "(No response)"
	FallbackText string

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// DefaultLoopConfig returns the default loop configuration.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxIterations: DefaultMaxIterations,
		ContextChars:  agentctx.DefaultMaxChars,
		ToolTimeout:   DefaultToolTimeout,
		FallbackText:  DefaultFallbackText,
	}
}

func sanitizeLoopConfig(cfg LoopConfig) LoopConfig {
	defaults := DefaultLoopConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaults.MaxIterations
	}
	if cfg.ContextChars <= 0 {
		cfg.ContextChars = defaults.ContextChars
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = defaults.ToolTimeout
	}
	if cfg.FallbackText == "" {
		cfg.FallbackText = defaults.FallbackText
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// ProgressFunc receives the accumulated tool log lines, oldest first, after
// every tool round that produced at least one line.
type ProgressFunc func(ctx context.Context, toolLogs []string)

// LoopState is the turn-scoped conversation state.
type LoopState struct {
	// Iteration counts completed tool rounds.
	Iteration int

	// Rounds counts inference calls.
	Rounds int

	// Messages is the full, unbudgeted conversation including appended
	// assistant and tool messages.
	Messages []models.Message

	// ToolLogs accumulates progress lines, oldest first.
	ToolLogs []string

	// Terminated is set when the model answered without tool calls or the
	// upstream failed.
	Terminated bool

	// Final is the last inference outcome.
	Final Outcome

	// Text is the final answer content, with the fallback applied.
	Text string

	// ContextMessages is the number of messages sent on the last inference call.
	ContextMessages int

	// Usage sums token accounting over every inference call.
	Usage Usage
}

// Loop alternates inference and tool execution until the model stops
// requesting tools.
//
//	 ┌──────────┐   tool calls   ┌──────────────┐
//	 │  Infer   │───────────────▶│ Execute tools │
//	 └──────────┘◀───────────────└──────────────┘
//	      │          (iteration < max)
//	      ▼ no tool calls, no message, or cap reached
//	 ┌──────────┐
//	 │ Complete │
//	 └──────────┘
type Loop struct {
	step     *Step
	executor *Executor
	budgeter *agentctx.Budgeter
	config   LoopConfig
	logger   *slog.Logger
}

// NewLoop creates a loop over the given step. Tool calls are dispatched to
// registry with the configured per-call timeout.
func NewLoop(step *Step, registry *ToolRegistry, config LoopConfig) *Loop {
	config = sanitizeLoopConfig(config)
	executor := NewExecutor(registry, ExecutorConfig{
		Timeout: config.ToolTimeout,
		Logger:  config.Logger,
		Metrics: config.Metrics,
		Tracer:  config.Tracer,
	})
	return &Loop{
		step:     step,
		executor: executor,
		budgeter: agentctx.NewBudgeter(config.ContextChars),
		config:   config,
		logger:   config.Logger.With("component", "loop"),
	}
}

// Config returns the effective configuration.
func (l *Loop) Config() LoopConfig {
	return l.config
}

// Run drives one turn. It returns an error only when the context is
// cancelled or the budget leaves nothing to send; upstream and tool failures
// are absorbed into the state.
func (l *Loop) Run(ctx context.Context, messages []models.Message, progress ProgressFunc) (*LoopState, error) {
	if l.step == nil {
		return nil, ErrNoProvider
	}

	state := &LoopState{
		Messages: append([]models.Message(nil), messages...),
	}

	for state.Iteration < l.config.MaxIterations && !state.Terminated {
		if err := ctx.Err(); err != nil {
			return state, fmt.Errorf("loop cancelled at iteration %d: %w", state.Iteration, err)
		}

		budgeted := l.budgeter.Fit(state.Messages)
		if len(budgeted) == 0 {
			return state, ErrContextExhausted
		}
		state.ContextMessages = len(budgeted)
		l.logger.Debug("context budgeted",
			"iteration", state.Iteration,
			"messages", len(budgeted),
			"chars", agentctx.TotalChars(budgeted),
		)

		outcome := l.step.Infer(ctx, budgeted, state.Iteration)
		state.Rounds++
		state.Final = outcome
		state.Usage.add(outcome.Usage)

		if outcome.Message == nil {
			state.Terminated = true
			break
		}
		if !outcome.HasToolCalls {
			state.Messages = append(state.Messages, *outcome.Message)
			state.Terminated = true
			break
		}

		if strings.TrimSpace(outcome.Message.Content) != "" {
			l.logger.Debug("assistant message carries content alongside tool calls",
				"iteration", state.Iteration,
				"tool_calls", len(outcome.Message.ToolCalls),
			)
		}

		results := l.executor.ExecuteAll(ctx, outcome.Message.ToolCalls)

		// The assistant message is appended only after the batch ran so its
		// calls can be narrowed to the ones that got a result. Unknown tools
		// produce none, and an unpaired call would be rejected upstream.
		assistant := *outcome.Message
		assistant.ToolCalls = answeredCalls(results)
		state.Messages = append(state.Messages, assistant)
		state.Messages = append(state.Messages, l.budgeter.CapBatch(ResultsToMessages(results))...)

		lines := LogLines(results)
		state.ToolLogs = append(state.ToolLogs, lines...)
		state.Iteration++

		if len(lines) > 0 && progress != nil {
			progress(ctx, append([]string(nil), state.ToolLogs...))
		}
	}

	if !state.Terminated {
		l.logger.Info("iteration cap reached", "max_iterations", l.config.MaxIterations)
	}

	state.Text = l.config.FallbackText
	if msg := state.Final.Message; msg != nil && strings.TrimSpace(msg.Content) != "" {
		state.Text = msg.Content
	}
	return state, nil
}

// answeredCalls keeps the calls that produced a result, so every tool call in
// history is paired with a tool message.
func answeredCalls(results []CallResult) []models.ToolCall {
	var calls []models.ToolCall
	for _, r := range results {
		if r.Unknown || r.Result == nil {
			continue
		}
		calls = append(calls, r.Call)
	}
	return calls
}
