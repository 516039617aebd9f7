package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/zapdoslabs/relay/internal/observability"
	"github.com/zapdoslabs/relay/pkg/models"
)

// Model parameters used when StepConfig leaves them unset.
const (
	DefaultModel       = "qwen-3-235b-a22b"
	DefaultMaxTokens   = 40000
	DefaultTemperature = float32(0.6)
	DefaultTopP        = float32(0.95)
)

// MaxToolCallsPerIteration is the maximum number of tool calls honored from a
// single response. Extra calls are dropped.
const MaxToolCallsPerIteration = 16

// StepConfig configures a single inference call.
type StepConfig struct {
	Model     string
	MaxTokens int
	// Temperature is sent as given, zero included. Nil selects
	// DefaultTemperature.
	Temperature *float32
	TopP        float32

	// Prompt builds the system prompt. Nil uses DefaultPromptBuilder.
	Prompt *PromptBuilder

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Outcome is the result of one inference call.
type Outcome struct {
	// Message is the assistant reply. Nil when the upstream failed or the
	// reply was unusable.
	Message *models.Message

	// HasToolCalls reports whether Message requests tool execution.
	HasToolCalls bool

	Usage Usage
	Model string
}

// Step sends one request to the model: system prompt, conversation and tool
// catalog.
type Step struct {
	provider LLMProvider
	registry *ToolRegistry
	config   StepConfig
	logger   *slog.Logger
}

// NewStep creates an inference step.
func NewStep(provider LLMProvider, registry *ToolRegistry, config StepConfig) *Step {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Temperature == nil {
		t := DefaultTemperature
		config.Temperature = &t
	}
	if config.TopP == 0 {
		config.TopP = DefaultTopP
	}
	if config.Prompt == nil {
		config.Prompt = DefaultPromptBuilder()
	}
	if registry == nil {
		registry = NewToolRegistry()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Step{
		provider: provider,
		registry: registry,
		config:   config,
		logger:   logger.With("component", "inference"),
	}
}

// Model returns the configured model name.
func (s *Step) Model() string {
	return s.config.Model
}

// Infer performs one inference call. Failures are logged and reported as an
// Outcome without a message; Infer never returns an error.
func (s *Step) Infer(ctx context.Context, messages []models.Message, iteration int) Outcome {
	outcome := Outcome{Model: s.config.Model}
	if s.provider == nil {
		s.logger.Error("inference skipped", "error", ErrNoProvider)
		return outcome
	}

	ctx, span := s.config.Tracer.TraceLLMRequest(ctx, s.config.Model, iteration)
	defer span.End()

	tools := s.registry.AsLLMTools()
	req := &CompletionRequest{
		Model:       s.config.Model,
		System:      s.config.Prompt.Build(iteration, tools),
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   s.config.MaxTokens,
		Temperature: *s.config.Temperature,
		TopP:        s.config.TopP,
	}

	start := time.Now()
	resp, err := s.provider.Complete(ctx, req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		s.config.Tracer.RecordError(span, err)
		s.config.Metrics.RecordLLMRequest(s.config.Model, "error", elapsed, 0)
		s.logger.Error("inference request failed",
			"provider", s.provider.Name(),
			"iteration", iteration,
			"error", err,
		)
		return outcome
	}
	if resp == nil {
		s.config.Metrics.RecordLLMRequest(s.config.Model, "empty", elapsed, 0)
		return outcome
	}

	outcome.Usage = resp.Usage
	if resp.Model != "" {
		outcome.Model = resp.Model
	}
	s.config.Metrics.RecordLLMRequest(s.config.Model, "success", elapsed, resp.Usage.TotalTokens)
	s.config.Tracer.SetAttributes(span,
		"llm.total_tokens", resp.Usage.TotalTokens,
		"llm.finish_reason", resp.FinishReason,
	)

	msg := resp.Message
	if msg == nil {
		s.logger.Warn("inference returned no message", "iteration", iteration)
		return outcome
	}
	if len(msg.ToolCalls) == 0 && strings.TrimSpace(msg.Content) == "" {
		s.logger.Warn("inference returned empty content", "iteration", iteration)
		return outcome
	}

	reply := *msg
	reply.Role = models.RoleAssistant
	if len(reply.ToolCalls) > MaxToolCallsPerIteration {
		s.logger.Warn("dropping excess tool calls",
			"requested", len(reply.ToolCalls),
			"limit", MaxToolCallsPerIteration,
		)
		reply.ToolCalls = reply.ToolCalls[:MaxToolCallsPerIteration]
	}
	outcome.Message = &reply
	outcome.HasToolCalls = len(reply.ToolCalls) > 0
	return outcome
}
