package agent

import (
	"log/slog"
	"time"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/contextwindow"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/observability"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/runs"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/sandbox"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/storage"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/stream"
)

// Options configures one Orchestrator. Provider, Status, Threads, and
// Broker are required; everything else has a default.
type Options struct {
	// Provider is the upstream model API.
	Provider LLMProvider

	// Model names the model passed to the provider.
	Model string

	// SystemPrompt is the base system prompt; tool usage and task-state
	// sections are appended per iteration.
	SystemPrompt string

	// Status linearizes run status transitions and propagates control
	// signals to stream subscribers.
	Status *runs.StatusStore

	// Threads persists conversation messages.
	Threads storage.ThreadStore

	// Broker streams produced messages and carries stop signals.
	Broker *stream.Broker

	// Workspace is the run's sandbox. Optional; without one, task-state
	// handling is skipped.
	Workspace sandbox.Workspace

	// ContextManager compacts oversized histories. Optional.
	ContextManager *contextwindow.Manager

	// ExecutorConfig configures tool dispatch (strategy, timeouts, retries).
	ExecutorConfig *ExecutorConfig

	// MaxIterations bounds the loop.
	// Default: 10
	MaxIterations int

	// IterationDelay paces consecutive iterations.
	// Default: 500ms
	IterationDelay time.Duration

	// MaxTokens is the per-call completion budget.
	// Default: 4096
	MaxTokens int

	// Temperature is the sampling temperature passed to the provider.
	Temperature float32

	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics receives run/LLM/tool metrics. Optional.
	Metrics *observability.Metrics
}

func sanitizeOptions(opts Options) Options {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 10
	}
	if opts.IterationDelay <= 0 {
		opts.IterationDelay = 500 * time.Millisecond
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ExecutorConfig == nil {
		opts.ExecutorConfig = DefaultExecutorConfig()
	}
	return opts
}
