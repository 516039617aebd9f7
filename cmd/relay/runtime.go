package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/zapdoslabs/relay/internal/agent"
	"github.com/zapdoslabs/relay/internal/agent/providers"
	relayslack "github.com/zapdoslabs/relay/internal/channels/slack"
	"github.com/zapdoslabs/relay/internal/config"
	"github.com/zapdoslabs/relay/internal/markdown"
	"github.com/zapdoslabs/relay/internal/observability"
	"github.com/zapdoslabs/relay/internal/reply"
	"github.com/zapdoslabs/relay/internal/tools/websearch"
)

// runtime is the turn machinery shared by serve and prompt.
type runtime struct {
	registry *agent.ToolRegistry
	loop     *agent.Loop
	turn     relayslack.TurnConfig
}

func newRuntime(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, tracer *observability.Tracer) (*runtime, error) {
	provider := providers.NewOpenAIProvider(providers.OpenAIConfig{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		RequestTimeout: cfg.LLM.RequestTimeout,
		MaxRetries:     cfg.LLM.MaxRetries,
		RetryDelay:     cfg.LLM.RetryDelay,
		Stream:         cfg.LLM.Stream,
	})

	registry := agent.NewToolRegistry()
	if cfg.Tools.Search.Enabled {
		search := websearch.New(websearch.Config{
			Backend:     websearch.Backend(strings.ToLower(cfg.Tools.Search.Backend)),
			APIKey:      cfg.Tools.Search.APIKey,
			URL:         cfg.Tools.Search.URL,
			ResultCount: cfg.Tools.Search.ResultCount,
			CacheTTL:    cfg.Tools.Search.CacheTTL,
			Timeout:     cfg.Tools.Search.Timeout,
			Logger:      logger,
		})
		if err := registry.Register(search); err != nil {
			return nil, fmt.Errorf("register search tool: %w", err)
		}
	}

	step := agent.NewStep(provider, registry, agent.StepConfig{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		TopP:        cfg.LLM.TopP,
		Prompt: &agent.PromptBuilder{
			BotName:       cfg.Agent.BotName,
			Company:       cfg.Agent.Company,
			MaxIterations: cfg.Agent.MaxIterations,
		},
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
	})
	loop := agent.NewLoop(step, registry, agent.LoopConfig{
		MaxIterations: cfg.Agent.MaxIterations,
		ContextChars:  cfg.Agent.ContextChars,
		ToolTimeout:   cfg.Agent.ToolTimeout,
		FallbackText:  cfg.Agent.FallbackText,
		Logger:        logger,
		Metrics:       metrics,
		Tracer:        tracer,
	})

	return &runtime{
		registry: registry,
		loop:     loop,
		turn: relayslack.TurnConfig{
			Model:         cfg.LLM.Model,
			ShowThink:     cfg.Slack.ShowThink,
			NoHistoryFlag: cfg.Slack.NoHistoryFlag,
			Reply: reply.Options{
				Tables:   markdown.ParseTableMode(cfg.Reply.TableMode, markdown.TableModeCode),
				Limit:    cfg.Reply.MaxUnitChars,
				Marker:   cfg.Reply.ContinuationMarker,
				Fallback: cfg.Agent.FallbackText,
			},
			Logger:  logger,
			Metrics: metrics,
			Tracer:  tracer,
		},
	}, nil
}

// setupLogging installs the configured logger as the slog default.
func setupLogging(cfg config.LoggingConfig, out io.Writer) *slog.Logger {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: out,
	}).Slog()
	slog.SetDefault(logger)
	return logger
}
