package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that runs the bot.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack bot over Socket Mode",
		Long: `Run the Slack bot.

The server will:
1. Load and validate the configuration, including Slack credentials
2. Connect to Slack over Socket Mode
3. Answer app mentions and direct messages, one turn per message
4. Serve Prometheus metrics on observability.metrics_addr, if set

Graceful shutdown is handled on SIGINT/SIGTERM signals; running turns are
allowed to finish delivering.`,
		Example: `  # Start with default config
  relay serve

  # Start with a custom config and debug logging
  relay serve --config /etc/relay/relay.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (verbose output)")
	return cmd
}

// buildPromptCmd creates the "prompt" command that runs one local turn.
func buildPromptCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "prompt [text]",
		Short: "Run one turn locally and print the Slack output",
		Long: `Run one turn without Slack. The message is answered exactly as in a
thread, and every message the bot would post or edit is printed in order.`,
		Example: `  relay prompt "what did Zapdos Labs announce this week?"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrompt(cmd.Context(), resolveConfigPath(configPath), strings.Join(args, " "), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(buildConfigValidateCmd(), buildConfigSchemaCmd())
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	var (
		configPath string
		slack      bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd.OutOrStdout(), resolveConfigPath(configPath), slack)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVar(&slack, "slack", false, "Also require Slack credentials")
	return cmd
}

func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON Schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd.OutOrStdout())
		},
	}
}

// buildVersionCmd creates the "version" command.
func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relay %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
