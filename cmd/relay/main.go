// Package main provides the CLI entry point for relay, a Slack bot that
// answers in threads with an OpenAI-compatible model and a news search tool.
//
// # Basic Usage
//
// Run the bot over Socket Mode:
//
//	relay serve --config relay.yaml
//
// Try a prompt locally without Slack:
//
//	relay prompt --config relay.yaml "what's new with Zapdos Labs?"
//
// Check a configuration file:
//
//	relay config validate --config relay.yaml
//	relay config schema > relay.schema.json
//
// # Environment Variables
//
// Configuration files are expanded with os.ExpandEnv, so secrets are usually
// referenced rather than written inline:
//
//	slack:
//	  bot_token: ${SLACK_BOT_TOKEN}
//	  app_token: ${SLACK_APP_TOKEN}
//	llm:
//	  api_key: ${CEREBRAS_API_KEY}
//	tools:
//	  search:
//	    api_key: ${BRAVE_API_KEY}
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// defaultConfigPath is used when --config is not given and RELAY_CONFIG is unset.
const defaultConfigPath = "relay.yaml"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "relay - Slack answers from a tool-calling model",
		Long: `relay answers Slack mentions and direct messages in-thread.

Each message starts a turn: recent thread history is read, the model may
search recent news, and the answer is posted back in bounded Block Kit
messages with live progress.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildPromptCmd(),
		buildConfigCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

// resolveConfigPath prefers an explicit flag, then RELAY_CONFIG.
func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("RELAY_CONFIG"); env != "" {
		return env
	}
	return defaultConfigPath
}
