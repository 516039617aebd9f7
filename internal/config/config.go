package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zapdoslabs/relay/internal/markdown"
)

// Config is the main configuration for relay.
type Config struct {
	Version       int                 `yaml:"version"`
	Slack         SlackConfig         `yaml:"slack"`
	LLM           LLMConfig           `yaml:"llm"`
	Agent         AgentConfig         `yaml:"agent"`
	Reply         ReplyConfig         `yaml:"reply"`
	Tools         ToolsConfig         `yaml:"tools"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// SlackConfig configures the Slack Socket Mode connection and history lookup.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`

	// ShowThink renders the model's reasoning segment above the answer.
	ShowThink bool `yaml:"show_think"`

	// HistoryLimit caps how many messages are requested from Slack.
	HistoryLimit int `yaml:"history_limit"`

	// HistoryTimeout bounds the history lookup; a timeout means no history.
	HistoryTimeout time.Duration `yaml:"history_timeout"`

	// NoHistoryFlag in the event text skips the history lookup.
	NoHistoryFlag string `yaml:"no_history_flag"`

	// RateLimit is the sustained chat.postMessage/chat.update rate per second.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// LLMConfig configures the OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    *float32      `yaml:"temperature"`
	TopP           float32       `yaml:"top_p"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`

	// Stream requests server-sent events and accumulates them into one reply.
	Stream bool `yaml:"stream"`
}

// AgentConfig configures the orchestration loop.
type AgentConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	ContextChars  int           `yaml:"context_chars"`
	ToolTimeout   time.Duration `yaml:"tool_timeout"`
	FallbackText  string        `yaml:"fallback_text"`
	BotName       string        `yaml:"bot_name"`
	Company       string        `yaml:"company"`
}

// ReplyConfig configures post-processing and chunking of the final answer.
type ReplyConfig struct {
	MaxUnitChars       int    `yaml:"max_unit_chars"`
	ContinuationMarker string `yaml:"continuation_marker"`

	// TableMode is "code" or "bullets".
	TableMode string `yaml:"table_mode"`
}

// ToolsConfig configures the tools offered to the model.
type ToolsConfig struct {
	Search SearchConfig `yaml:"search"`
}

// SearchConfig configures the news search tool.
type SearchConfig struct {
	Enabled bool `yaml:"enabled"`

	// Backend is "brave" or "mock".
	Backend     string        `yaml:"backend"`
	APIKey      string        `yaml:"api_key"`
	URL         string        `yaml:"url"`
	ResultCount int           `yaml:"result_count"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	MetricsAddr string        `yaml:"metrics_addr"`
	Tracing     TracingConfig `yaml:"tracing"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Load reads a configuration file, resolving $include directives and
// environment variables, then applies defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}

	if cfg.Slack.HistoryLimit == 0 {
		cfg.Slack.HistoryLimit = 10
	}
	if cfg.Slack.HistoryTimeout == 0 {
		cfg.Slack.HistoryTimeout = 3 * time.Second
	}
	if cfg.Slack.NoHistoryFlag == "" {
		cfg.Slack.NoHistoryFlag = "--no-history"
	}
	if cfg.Slack.RateLimit == 0 {
		cfg.Slack.RateLimit = 1
	}
	if cfg.Slack.RateBurst == 0 {
		cfg.Slack.RateBurst = 5
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.cerebras.ai/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "qwen-3-235b-a22b"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 40000
	}
	if cfg.LLM.Temperature == nil {
		t := float32(0.6)
		cfg.LLM.Temperature = &t
	}
	if cfg.LLM.TopP == 0 {
		cfg.LLM.TopP = 0.95
	}
	if cfg.LLM.RequestTimeout == 0 {
		cfg.LLM.RequestTimeout = 120 * time.Second
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}
	if cfg.LLM.RetryDelay == 0 {
		cfg.LLM.RetryDelay = time.Second
	}

	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 10
	}
	if cfg.Agent.ContextChars == 0 {
		cfg.Agent.ContextChars = 24000
	}
	if cfg.Agent.ToolTimeout == 0 {
		cfg.Agent.ToolTimeout = 30 * time.Second
	}
	if cfg.Agent.FallbackText == "" {
		cfg.Agent.FallbackText = "(No response)"
	}
	if cfg.Agent.BotName == "" {
		cfg.Agent.BotName = "Za"
	}
	if cfg.Agent.Company == "" {
		cfg.Agent.Company = "Zapdos Labs"
	}

	if cfg.Reply.MaxUnitChars == 0 {
		cfg.Reply.MaxUnitChars = 3000
	}
	if cfg.Reply.ContinuationMarker == "" {
		cfg.Reply.ContinuationMarker = "..."
	}
	if cfg.Reply.TableMode == "" {
		cfg.Reply.TableMode = "code"
	}

	if cfg.Tools.Search.Backend == "" {
		cfg.Tools.Search.Backend = "brave"
	}
	if cfg.Tools.Search.URL == "" {
		cfg.Tools.Search.URL = "https://api.search.brave.com/res/v1/news/search"
	}
	if cfg.Tools.Search.ResultCount == 0 {
		cfg.Tools.Search.ResultCount = 10
	}
	if cfg.Tools.Search.CacheTTL == 0 {
		cfg.Tools.Search.CacheTTL = 5 * time.Minute
	}
	if cfg.Tools.Search.Timeout == 0 {
		cfg.Tools.Search.Timeout = 15 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Observability.Tracing.ServiceName == "" {
		cfg.Observability.Tracing.ServiceName = "relay"
	}
}

// Validate checks the configuration for values the runtime cannot use.
// Slack credentials are checked separately by ValidateSlack because local
// runs do not need them.
func (c *Config) Validate() error {
	var issues []string

	if err := ValidateVersion(c.Version); err != nil {
		issues = append(issues, err.Error())
	}
	if c.Slack.HistoryLimit < 1 || c.Slack.HistoryLimit > 1000 {
		issues = append(issues, "slack.history_limit must be between 1 and 1000")
	}
	if c.Slack.RateLimit < 0 || c.Slack.RateBurst < 0 {
		issues = append(issues, "slack.rate_limit and slack.rate_burst must be >= 0")
	}
	if c.LLM.MaxTokens < 1 {
		issues = append(issues, "llm.max_tokens must be >= 1")
	}
	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		issues = append(issues, "llm.temperature must be between 0 and 2")
	}
	if c.LLM.TopP < 0 || c.LLM.TopP > 1 {
		issues = append(issues, "llm.top_p must be between 0 and 1")
	}
	if c.Agent.MaxIterations < 1 {
		issues = append(issues, "agent.max_iterations must be >= 1")
	}
	if c.Agent.ContextChars < 1 {
		issues = append(issues, "agent.context_chars must be >= 1")
	}
	if c.Reply.MaxUnitChars <= len([]rune(c.Reply.ContinuationMarker)) {
		issues = append(issues, "reply.max_unit_chars must be larger than the continuation marker")
	}
	if !markdown.IsValidTableMode(c.Reply.TableMode) {
		issues = append(issues, fmt.Sprintf("reply.table_mode %q must be code, bullets or off", c.Reply.TableMode))
	}
	switch strings.ToLower(c.Tools.Search.Backend) {
	case "brave":
		if c.Tools.Search.Enabled && strings.TrimSpace(c.Tools.Search.APIKey) == "" {
			issues = append(issues, "tools.search.api_key is required for the brave backend")
		}
	case "mock":
	default:
		issues = append(issues, fmt.Sprintf("tools.search.backend %q must be brave or mock", c.Tools.Search.Backend))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		issues = append(issues, fmt.Sprintf("logging.format %q must be json or text", c.Logging.Format))
	}
	if c.Observability.Tracing.SamplingRate < 0 || c.Observability.Tracing.SamplingRate > 1 {
		issues = append(issues, "observability.tracing.sampling_rate must be between 0 and 1")
	}

	if len(issues) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(issues, "; "))
	}
	return nil
}

// ValidateSlack checks the credentials needed for Socket Mode.
func (c *Config) ValidateSlack() error {
	var errs []error
	if !strings.HasPrefix(c.Slack.BotToken, "xoxb-") {
		errs = append(errs, errors.New("slack.bot_token must be a bot token (xoxb-...)"))
	}
	if !strings.HasPrefix(c.Slack.AppToken, "xapp-") {
		errs = append(errs, errors.New("slack.app_token must be an app-level token (xapp-...)"))
	}
	return errors.Join(errs...)
}
