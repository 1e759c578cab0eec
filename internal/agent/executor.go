package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/observability"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// ExecutionStrategy selects how tool calls within one iteration are
// dispatched.
type ExecutionStrategy string

const (
	// StrategySequential dispatches calls one at a time in issue order.
	StrategySequential ExecutionStrategy = "sequential"

	// StrategyParallel dispatches calls concurrently, bounded by
	// MaxConcurrency. Result order still follows issue order.
	StrategyParallel ExecutionStrategy = "parallel"
)

// ExecutorConfig configures tool dispatch behavior.
type ExecutorConfig struct {
	// Strategy selects sequential or parallel dispatch.
	// Default: sequential
	Strategy ExecutionStrategy

	// MaxConcurrency limits parallel dispatches.
	// Default: 5
	MaxConcurrency int

	// DefaultTimeout is the default timeout per dispatch.
	// Default: 30s
	DefaultTimeout time.Duration

	// DefaultRetries is the default number of retries for failed dispatches.
	// Default: 2
	DefaultRetries int

	// RetryBackoff is the initial backoff between retries.
	// Default: 100ms
	RetryBackoff time.Duration

	// MaxRetryBackoff caps the exponential backoff.
	// Default: 5s
	MaxRetryBackoff time.Duration
}

// DefaultExecutorConfig returns the default executor configuration.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		Strategy:        StrategySequential,
		MaxConcurrency:  5,
		DefaultTimeout:  30 * time.Second,
		DefaultRetries:  2,
		RetryBackoff:    100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
	}
}

func sanitizeExecutorConfig(config *ExecutorConfig) *ExecutorConfig {
	defaults := DefaultExecutorConfig()
	if config == nil {
		return defaults
	}
	cfg := *config
	if cfg.Strategy != StrategyParallel {
		cfg.Strategy = StrategySequential
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaults.MaxConcurrency
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaults.DefaultTimeout
	}
	if cfg.DefaultRetries < 0 {
		cfg.DefaultRetries = defaults.DefaultRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}
	if cfg.MaxRetryBackoff <= 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	return &cfg
}

// ToolConfig holds per-tool overrides.
type ToolConfig struct {
	// Timeout overrides the default timeout for this tool.
	Timeout time.Duration

	// Retries overrides the default retry count for this tool.
	Retries int

	// RetryBackoff overrides the initial backoff for this tool.
	RetryBackoff time.Duration
}

// Executor dispatches model-issued tool calls against a registry. Failures
// become error results fed back into the conversation, never loop aborts.
type Executor struct {
	registry *tools.Registry
	config   *ExecutorConfig
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu         sync.RWMutex
	toolConfig map[string]*ToolConfig
}

// NewExecutor creates an executor over a run's registry. metrics may be nil.
func NewExecutor(registry *tools.Registry, config *ExecutorConfig, logger *slog.Logger, metrics *observability.Metrics) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry:   registry,
		config:     sanitizeExecutorConfig(config),
		logger:     logger,
		metrics:    metrics,
		toolConfig: map[string]*ToolConfig{},
	}
}

// SetToolConfig sets per-tool overrides for a tool name.
func (e *Executor) SetToolConfig(name string, config *ToolConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if config == nil {
		delete(e.toolConfig, name)
		return
	}
	cfg := *config
	e.toolConfig[name] = &cfg
}

func (e *Executor) configFor(name string) (timeout time.Duration, retries int, backoff time.Duration) {
	timeout = e.config.DefaultTimeout
	retries = e.config.DefaultRetries
	backoff = e.config.RetryBackoff

	e.mu.RLock()
	override := e.toolConfig[name]
	e.mu.RUnlock()
	if override == nil {
		return timeout, retries, backoff
	}
	if override.Timeout > 0 {
		timeout = override.Timeout
	}
	if override.Retries > 0 {
		retries = override.Retries
	}
	if override.RetryBackoff > 0 {
		backoff = override.RetryBackoff
	}
	return timeout, retries, backoff
}

// ExecuteAll dispatches every call and returns one result per call, in
// issue order. A cancelled context stops dispatching further calls; calls
// already in flight finish.
func (e *Executor) ExecuteAll(ctx context.Context, calls []models.ToolCall) []*models.ToolResult {
	if len(calls) == 0 {
		return nil
	}
	if e.config.Strategy == StrategyParallel {
		return e.executeParallel(ctx, calls)
	}
	return e.executeSequential(ctx, calls)
}

func (e *Executor) executeSequential(ctx context.Context, calls []models.ToolCall) []*models.ToolResult {
	results := make([]*models.ToolResult, len(calls))
	for i, call := range calls {
		if err := ctx.Err(); err != nil {
			results[i] = cancelledResult(call)
			continue
		}
		results[i] = e.executeOne(ctx, call)
	}
	return results
}

func (e *Executor) executeParallel(ctx context.Context, calls []models.ToolCall) []*models.ToolResult {
	results := make([]*models.ToolResult, len(calls))
	sem := make(chan struct{}, e.config.MaxConcurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		if err := ctx.Err(); err != nil {
			results[i] = cancelledResult(call)
			continue
		}
		wg.Add(1)
		go func(i int, call models.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = e.executeOne(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

// executeOne runs a single call with timeout, retries, and panic recovery.
func (e *Executor) executeOne(ctx context.Context, call models.ToolCall) *models.ToolResult {
	timeout, retries, backoff := e.configFor(call.Name)
	start := time.Now()

	var result *models.ToolResult
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if e.metrics != nil {
				e.metrics.ToolRetryCounter.WithLabelValues(call.Name).Inc()
			}
			select {
			case <-ctx.Done():
				return cancelledResult(call)
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > e.config.MaxRetryBackoff {
				backoff = e.config.MaxRetryBackoff
			}
		}

		result, err = e.invoke(ctx, call, timeout)
		if err == nil {
			break
		}
		var dispatchErr *tools.DispatchError
		if errors.As(err, &dispatchErr) && dispatchErr.Kind == tools.DispatchNotFound {
			// Retrying an unknown name cannot succeed.
			break
		}
		if ctx.Err() != nil {
			break
		}
		e.logger.Warn("tool dispatch failed",
			"tool", call.Name,
			"attempt", attempt+1,
			"error", err,
		)
	}

	if e.metrics != nil {
		e.metrics.RecordToolExecution(call.Name, time.Since(start), err)
	}
	if err != nil {
		return &models.ToolResult{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Content:    err.Error(),
			IsError:    true,
		}
	}
	result.ToolCallID = call.ID
	return result
}

func (e *Executor) invoke(ctx context.Context, call models.ToolCall, timeout time.Duration) (result *models.ToolResult, err error) {
	invokeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool handler panicked",
				"tool", call.Name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
		}
	}()
	return e.registry.Invoke(invokeCtx, call.Name, call.Arguments)
}

func cancelledResult(call models.ToolCall) *models.ToolResult {
	return &models.ToolResult{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Content:    "execution cancelled",
		IsError:    true,
	}
}
