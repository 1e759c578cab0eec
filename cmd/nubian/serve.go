package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/agent"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/agent/providers"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/config"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/contextwindow"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/observability"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/runs"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/server"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/storage"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/stream"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools/websearch"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the run engine server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	threads, runStore, closeStores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	broker := stream.NewBroker(stream.NewMemoryKV(), uuid.NewString(), logger)
	status := runs.NewStatusStore(runStore, broker, logger)
	metrics := observability.NewMetrics()

	provider, model, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	var search *websearch.Capability
	if cfg.Tools.WebSearch.Enabled {
		search, err = websearch.New(websearch.Config{
			APIKey:   cfg.Tools.WebSearch.APIKey,
			Endpoint: cfg.Tools.WebSearch.Endpoint,
		})
		if err != nil {
			return err
		}
	}

	service, err := agent.NewService(agent.ServiceOptions{
		Options: agent.Options{
			Provider:       provider,
			Model:          model,
			SystemPrompt:   cfg.Agent.SystemPrompt,
			Status:         status,
			Threads:        threads,
			Broker:         broker,
			ContextManager: contextwindow.NewManager(cfg.Agent.ContextWindowTokens, threads, logger),
			ExecutorConfig: &agent.ExecutorConfig{
				Strategy:       agent.ExecutionStrategy(cfg.Agent.Executor.Strategy),
				MaxConcurrency: cfg.Agent.Executor.MaxConcurrency,
				DefaultTimeout: cfg.Agent.Executor.Timeout,
				DefaultRetries: cfg.Agent.Executor.Retries,
			},
			MaxIterations:  cfg.Agent.MaxIterations,
			IterationDelay: cfg.Agent.IterationDelay,
			MaxTokens:      cfg.Agent.MaxTokens,
			Temperature:    cfg.Agent.Temperature,
			Logger:         logger,
			Metrics:        metrics,
		},
		WorkspaceRoot:   cfg.Workspace.Root,
		Shell:           cfg.Workspace.Shell,
		BrowserEnabled:  cfg.Tools.Browser.Enabled,
		BrowserHeadless: cfg.Tools.Browser.Headless,
		BrowserTimeout:  cfg.Tools.Browser.Timeout,
		WebSearch:       search,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Launcher: service,
		Status:   status,
		Broker:   broker,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	// Metrics get their own listener so the API port can be firewalled
	// separately.
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx := context.Background()
	_ = metricsSrv.Shutdown(shutdownCtx)
	return srv.Shutdown(shutdownCtx)
}

// openStores selects SQLite-backed stores when a database path is
// configured, in-memory stores otherwise. Both stores share one handle.
func openStores(cfg *config.Config) (storage.ThreadStore, runs.Store, func(), error) {
	if cfg.Database.Path == "" {
		return storage.NewMemoryStore(), runs.NewMemoryStore(), func() {}, nil
	}
	threadStore, err := storage.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	runStore, err := runs.NewSQLiteStore(threadStore.DB())
	if err != nil {
		threadStore.Close()
		return nil, nil, nil, fmt.Errorf("migrate runs: %w", err)
	}
	return threadStore, runStore, func() { _ = threadStore.Close() }, nil
}

func buildProvider(cfg *config.Config) (agent.LLMProvider, string, error) {
	name := cfg.LLM.DefaultProvider
	providerCfg, err := cfg.Provider(name)
	if err != nil {
		return nil, "", err
	}

	model := cfg.Agent.Model
	if model == "" {
		model = providerCfg.DefaultModel
	}

	switch name {
	case "anthropic":
		p, err := providers.NewAnthropic(providers.AnthropicConfig{
			APIKey:  providerCfg.APIKey,
			BaseURL: providerCfg.BaseURL,
		})
		return p, model, err
	case "openai":
		p, err := providers.NewOpenAI(providers.OpenAIConfig{
			APIKey:  providerCfg.APIKey,
			BaseURL: providerCfg.BaseURL,
		})
		return p, model, err
	}
	return nil, "", fmt.Errorf("unknown provider %q", name)
}
