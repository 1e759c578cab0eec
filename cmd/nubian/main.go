// Package main provides the CLI entry point for the Nubian agent run
// engine.
//
// Start the server:
//
//	nubian serve --config nubian.yaml
//
// Submit a run against a running server and follow its stream:
//
//	nubian run "summarize the open issues" --server http://localhost:8080
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/config"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/observability"
)

// Build information - populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nubian",
		Short: "Nubian - autonomous agent run engine",
		Long: `Nubian runs agent tasks as supervised iteration loops: each run gets its
own workspace, tool registry, and message stream, and can be followed or
stopped while it executes.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		buildServeCmd(),
		buildRunCmd(),
	)
	return rootCmd
}

// loadConfig reads the config file when given, or falls back to defaults,
// and installs the configured logger as the process default.
func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	var cfg *config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)
	return cfg, logger, nil
}
