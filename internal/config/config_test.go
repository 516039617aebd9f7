package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	return writeNamed(t, t.TempDir(), "relay.yaml", content)
}

func writeNamed(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  api_key: csk-test
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", cfg.Version, CurrentVersion)
	}
	if cfg.LLM.Model != "qwen-3-235b-a22b" {
		t.Errorf("Model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.BaseURL != "https://api.cerebras.ai/v1" {
		t.Errorf("BaseURL = %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.MaxTokens != 40000 || cfg.LLM.Temperature == nil || *cfg.LLM.Temperature != 0.6 || cfg.LLM.TopP != 0.95 {
		t.Errorf("sampling defaults = %d/%v/%v", cfg.LLM.MaxTokens, cfg.LLM.Temperature, cfg.LLM.TopP)
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want 10", cfg.Agent.MaxIterations)
	}
	if cfg.Slack.HistoryLimit != 10 || cfg.Slack.HistoryTimeout != 3*time.Second {
		t.Errorf("history defaults = %d/%v", cfg.Slack.HistoryLimit, cfg.Slack.HistoryTimeout)
	}
	if cfg.Reply.MaxUnitChars != 3000 || cfg.Reply.ContinuationMarker != "..." {
		t.Errorf("reply defaults = %d/%q", cfg.Reply.MaxUnitChars, cfg.Reply.ContinuationMarker)
	}
	if cfg.Agent.FallbackText != "(No response)" {
		t.Errorf("FallbackText = %q", cfg.Agent.FallbackText)
	}
}

func TestLoadTemperature(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    float32
		wantErr bool
	}{
		{name: "absent", content: "llm:\n  model: m\n", want: 0.6},
		{name: "explicit zero", content: "llm:\n  temperature: 0\n", want: 0},
		{name: "explicit value", content: "llm:\n  temperature: 1.2\n", want: 1.2},
		{name: "negative", content: "llm:\n  temperature: -0.5\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.content))
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "temperature") {
					t.Fatalf("error = %v, want temperature error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.LLM.Temperature == nil || *cfg.LLM.Temperature != tt.want {
				t.Errorf("Temperature = %v, want %v", cfg.LLM.Temperature, tt.want)
			}
		})
	}
}

func TestLoadParsesDurationsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
slack:
  history_timeout: 500ms
  show_think: true
agent:
  max_iterations: 3
  tool_timeout: 2s
reply:
  table_mode: bullets
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Slack.HistoryTimeout != 500*time.Millisecond {
		t.Errorf("HistoryTimeout = %v", cfg.Slack.HistoryTimeout)
	}
	if !cfg.Slack.ShowThink {
		t.Error("ShowThink should be true")
	}
	if cfg.Agent.MaxIterations != 3 || cfg.Agent.ToolTimeout != 2*time.Second {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.Reply.TableMode != "bullets" {
		t.Errorf("TableMode = %q", cfg.Reply.TableMode)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
slack:
  bot_token: xoxb-1
  extra: true
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("RELAY_TEST_BRAVE_KEY", "brave-secret")
	path := writeConfig(t, `
tools:
  search:
    enabled: true
    api_key: ${RELAY_TEST_BRAVE_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tools.Search.APIKey != "brave-secret" {
		t.Errorf("APIKey = %q", cfg.Tools.Search.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "bad table mode",
			mutate:  func(c *Config) { c.Reply.TableMode = "html" },
			wantErr: "reply.table_mode",
		},
		{
			name:    "unit smaller than marker",
			mutate:  func(c *Config) { c.Reply.MaxUnitChars = 2 },
			wantErr: "reply.max_unit_chars",
		},
		{
			name:    "brave without key",
			mutate:  func(c *Config) { c.Tools.Search.Enabled = true },
			wantErr: "tools.search.api_key",
		},
		{
			name: "mock backend needs no key",
			mutate: func(c *Config) {
				c.Tools.Search.Enabled = true
				c.Tools.Search.Backend = "mock"
			},
		},
		{
			name:    "top_p out of range",
			mutate:  func(c *Config) { c.LLM.TopP = 1.5 },
			wantErr: "llm.top_p",
		},
		{
			name:    "zero iterations",
			mutate:  func(c *Config) { c.Agent.MaxIterations = -1 },
			wantErr: "agent.max_iterations",
		},
		{
			name:    "newer version",
			mutate:  func(c *Config) { c.Version = CurrentVersion + 1 },
			wantErr: "newer than this build",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSlack(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateSlack(); err == nil {
		t.Fatal("expected error for missing tokens")
	}

	cfg.Slack.BotToken = "xoxb-123"
	cfg.Slack.AppToken = "xapp-456"
	if err := cfg.ValidateSlack(); err != nil {
		t.Fatalf("ValidateSlack() error = %v", err)
	}
}

func TestJSONSchema(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}

	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema has no properties: %s", data)
	}
	for _, key := range []string{"slack", "llm", "agent", "reply", "tools"} {
		if _, ok := props[key]; !ok {
			t.Errorf("schema missing %q", key)
		}
	}
}
