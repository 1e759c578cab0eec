// Package observability provides Prometheus metrics and structured logging
// for the run worker.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects worker-level metrics: run outcomes, LLM call latency and
// token spend, tool execution patterns, and stream publish volume.
//
// Metrics register with the default Prometheus registry and are served by
// the standard /metrics handler.
type Metrics struct {
	// RunCounter counts finished runs by terminal status.
	// Labels: status (completed|failed|stopped)
	RunCounter *prometheus.CounterVec

	// RunIterations measures how many loop iterations a run used.
	RunIterations prometheus.Histogram

	// ActiveRuns tracks runs currently executing on this worker.
	ActiveRuns prometheus.Gauge

	// LLMRequestDuration measures model call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts model calls.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool dispatches.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ToolRetryCounter counts dispatch retries.
	// Labels: tool_name
	ToolRetryCounter *prometheus.CounterVec

	// StreamPublishCounter counts messages appended to run response lists.
	StreamPublishCounter prometheus.Counter

	// CompactionCounter counts messages folded into context summaries.
	CompactionCounter prometheus.Counter

	// ErrorCounter tracks errors by component and type.
	// Labels: component (orchestrator|provider|tool|stream|storage), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all worker metrics. Call once at
// startup.
func NewMetrics() *Metrics {
	return &Metrics{
		RunCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nubian_runs_total",
				Help: "Total number of finished runs by terminal status",
			},
			[]string{"status"},
		),

		RunIterations: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nubian_run_iterations",
				Help:    "Loop iterations used per run",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
			},
		),

		ActiveRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "nubian_active_runs",
				Help: "Runs currently executing on this worker",
			},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nubian_llm_request_duration_seconds",
				Help:    "Duration of model API calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nubian_llm_requests_total",
				Help: "Total model API calls by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nubian_llm_tokens_total",
				Help: "Total tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nubian_tool_executions_total",
				Help: "Total tool dispatches by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nubian_tool_execution_duration_seconds",
				Help:    "Duration of tool dispatches in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ToolRetryCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nubian_tool_retries_total",
				Help: "Total tool dispatch retries by tool name",
			},
			[]string{"tool_name"},
		),

		StreamPublishCounter: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "nubian_stream_messages_total",
				Help: "Total messages appended to run response lists",
			},
		),

		CompactionCounter: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "nubian_compacted_messages_total",
				Help: "Total messages folded into context summaries",
			},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nubian_errors_total",
				Help: "Total errors by component and error type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// RunFinished records a run reaching a terminal status after n iterations.
func (m *Metrics) RunFinished(status string, iterations int) {
	m.RunCounter.WithLabelValues(status).Inc()
	m.RunIterations.Observe(float64(iterations))
}

// RecordLLMRequest records one model call.
func (m *Metrics) RecordLLMRequest(provider, model string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordTokens records token spend for one model call.
func (m *Metrics) RecordTokens(provider, model string, prompt, completion int) {
	if prompt > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completion))
	}
}

// RecordToolExecution records one tool dispatch.
func (m *Metrics) RecordToolExecution(toolName string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(duration.Seconds())
}

// RecordError increments the error counter for a component.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}
