package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zapdoslabs/relay/internal/observability"
	"github.com/zapdoslabs/relay/pkg/models"
)

// ExecutorConfig configures the parallel tool executor.
type ExecutorConfig struct {
	// MaxConcurrency limits the number of parallel tool executions.
	// Default: 5
	MaxConcurrency int

	// Timeout bounds a single tool call.
	// Default: 30s
	Timeout time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// DefaultExecutorConfig returns the default executor configuration.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrency: 5,
		Timeout:        30 * time.Second,
	}
}

// Executor runs batches of tool calls concurrently against a registry.
type Executor struct {
	registry *ToolRegistry
	config   ExecutorConfig
	logger   *slog.Logger

	// Semaphore for concurrency limiting
	sem chan struct{}
}

// NewExecutor creates a new parallel tool executor. Zero config fields take
// their defaults.
func NewExecutor(registry *ToolRegistry, config ExecutorConfig) *Executor {
	defaults := DefaultExecutorConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewToolRegistry()
	}
	return &Executor{
		registry: registry,
		config:   config,
		logger:   logger.With("component", "tool-executor"),
		sem:      make(chan struct{}, config.MaxConcurrency),
	}
}

// CallResult is the tagged outcome of one tool call.
//
// Exactly one of these holds:
//   - Unknown: the tool is not registered; Result is nil.
//   - Err != nil: the call failed; Result is a synthetic error result.
//   - otherwise: Result is the tool's output and LogLine may describe it.
type CallResult struct {
	Call     models.ToolCall
	Result   *models.ToolResult
	Err      error
	LogLine  string
	Unknown  bool
	Duration time.Duration
}

// ExecuteAll executes a batch of tool calls in parallel. Results are returned
// in the same order as calls. A failing call never affects its siblings.
func (e *Executor) ExecuteAll(ctx context.Context, calls []models.ToolCall) []CallResult {
	if len(calls) == 0 {
		return nil
	}

	results := make([]CallResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc models.ToolCall) {
			defer wg.Done()
			results[idx] = e.Execute(ctx, tc)
		}(i, call)
	}
	wg.Wait()
	return results
}

// Execute runs a single tool call.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall) CallResult {
	start := time.Now()
	result := CallResult{Call: call}

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		e.logger.Warn("model requested unknown tool",
			"tool", call.Name,
			"tool_call_id", call.ID,
		)
		e.config.Metrics.RecordToolExecution(call.Name, "unknown", 0)
		result.Unknown = true
		return result
	}

	ctx, span := e.config.Tracer.TraceToolExecution(ctx, call.Name, call.ID)
	defer span.End()

	// Acquire semaphore for backpressure
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		result.Err = NewToolError(call.Name, ctx.Err()).WithToolCallID(call.ID)
		return e.finish(result, start, span)
	}

	out, err := e.executeWithTimeout(ctx, call)
	switch {
	case err != nil:
		result.Err = err
	case out == nil:
		result.Err = NewToolError(call.Name, errors.New("tool returned no result")).WithToolCallID(call.ID)
	case out.IsError:
		result.Err = NewToolError(call.Name, errors.New(out.Content)).WithToolCallID(call.ID)
	default:
		result.Result = &models.ToolResult{ToolCallID: call.ID, Content: out.Content}
		if logger, ok := tool.(ProgressLogger); ok {
			result.LogLine = logger.LogLine(call.Input)
		}
	}
	return e.finish(result, start, span)
}

func (e *Executor) finish(result CallResult, start time.Time, span trace.Span) CallResult {
	result.Duration = time.Since(start)
	status := "success"
	if result.Err != nil {
		status = "error"
		failed := ErrorResult(result.Call.ID, result.Err)
		result.Result = &failed
		e.config.Tracer.RecordError(span, result.Err)
		e.logger.Warn("tool call failed",
			"tool", result.Call.Name,
			"tool_call_id", result.Call.ID,
			"error", result.Err,
		)
	}
	e.config.Metrics.RecordToolExecution(result.Call.Name, status, result.Duration.Seconds())
	return result
}

// executeWithTimeout executes a tool call with the configured timeout,
// converting panics into errors.
func (e *Executor) executeWithTimeout(ctx context.Context, call models.ToolCall) (*ToolResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	type execResult struct {
		result *ToolResult
		err    error
	}
	resultCh := make(chan execResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("tool panicked",
					"tool", call.Name,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				err := NewToolError(call.Name, fmt.Errorf("%w: %v", ErrToolPanic, r)).WithToolCallID(call.ID)
				resultCh <- execResult{err: err}
			}
		}()

		result, err := e.registry.Execute(execCtx, call.Name, call.Input)
		if err != nil {
			resultCh <- execResult{err: NewToolError(call.Name, err).WithToolCallID(call.ID)}
			return
		}
		resultCh <- execResult{result: result}
	}()

	select {
	case res := <-resultCh:
		return res.result, res.err
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return nil, NewToolError(call.Name, ctx.Err()).
				WithToolCallID(call.ID).
				WithMessage("context cancelled")
		}
		return nil, NewToolError(call.Name, ErrToolTimeout).
			WithToolCallID(call.ID).
			WithMessage(fmt.Sprintf("execution timed out after %s", e.config.Timeout))
	}
}

// ErrorResult builds the synthetic result the model sees for a failed call.
func ErrorResult(callID string, err error) models.ToolResult {
	msg := "tool execution failed"
	if err != nil {
		msg = err.Error()
	}
	payload, marshalErr := json.Marshal(map[string]string{"error": msg})
	if marshalErr != nil {
		payload = []byte(`{"error":"tool execution failed"}`)
	}
	return models.ToolResult{ToolCallID: callID, Content: string(payload), IsError: true}
}

// ResultsToMessages converts a batch into tool messages in call order.
// Unknown tools contribute nothing.
func ResultsToMessages(results []CallResult) []models.Message {
	msgs := make([]models.Message, 0, len(results))
	for _, r := range results {
		if r.Unknown || r.Result == nil {
			continue
		}
		msgs = append(msgs, r.Result.Message())
	}
	return msgs
}

// LogLines returns the progress lines of a batch in call order.
func LogLines(results []CallResult) []string {
	var lines []string
	for _, r := range results {
		if r.LogLine != "" {
			lines = append(lines, r.LogLine)
		}
	}
	return lines
}
