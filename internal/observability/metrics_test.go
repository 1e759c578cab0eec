package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// NewMetrics registers with the default registry, so the structural tests
// below exercise equivalent collectors on isolated registries.

func TestToolExecutionCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_tool_executions_total",
			Help: "Test tool execution counter",
		},
		[]string{"tool_name", "status"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("files_write", "success").Inc()
	counter.WithLabelValues("files_write", "success").Inc()
	counter.WithLabelValues("shell_exec", "error").Inc()

	expected := `
		# HELP test_tool_executions_total Test tool execution counter
		# TYPE test_tool_executions_total counter
		test_tool_executions_total{status="error",tool_name="shell_exec"} 1
		test_tool_executions_total{status="success",tool_name="files_write"} 2
	`
	if err := testutil.CollectAndCompare(counter, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}

func TestRunCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_runs_total",
			Help: "Test run counter",
		},
		[]string{"status"},
	)
	registry.MustRegister(counter)

	for _, status := range []string{"completed", "completed", "stopped", "failed"} {
		counter.WithLabelValues(status).Inc()
	}

	if got := testutil.ToFloat64(counter.WithLabelValues("completed")); got != 2 {
		t.Errorf("completed count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed count = %v, want 1", got)
	}
}

func TestActiveRunsGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_active_runs",
		Help: "Test active runs gauge",
	})
	registry.MustRegister(gauge)

	gauge.Inc()
	gauge.Inc()
	gauge.Dec()

	if got := testutil.ToFloat64(gauge); got != 1 {
		t.Errorf("active runs = %v, want 1", got)
	}
}
