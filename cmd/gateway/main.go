// Package main provides the CLI entry point for the meta-tool gateway.
//
// The gateway aggregates first-party feature managers (memory, planning,
// tdd, agent, guide, science) and external tool-provider processes behind
// one JSON-RPC list_tools/call_tool surface.
//
// # Basic Usage
//
// Start the server:
//
//	gateway serve --config gateway.yaml
//
// # Environment Variables
//
//   - DB_PATH: path to the sqlite database file
//   - GATEWAY_LOG_LEVEL: debug, info, warn, or error
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
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
		Use:     "gateway",
		Short:   "A meta-tool gateway aggregating feature managers and external providers",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}
