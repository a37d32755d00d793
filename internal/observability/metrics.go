// Package observability provides the gateway's Prometheus metrics and
// OpenTelemetry tracing, both scoped to the one thing the core cares about:
// a tool invocation passing through the RPC dispatch path and the hook bus.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus collectors. All are registered
// against the default registry by NewMetrics, which callers invoke exactly
// once at process startup.
type Metrics struct {
	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// HookFiredCounter counts Hook Bus events by kind.
	// Labels: kind
	HookFiredCounter *prometheus.CounterVec
}

// NewMetrics constructs and registers every collector against the default
// Prometheus registry. Call once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),
		HookFiredCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_hook_events_total",
				Help: "Total number of hook bus events fired, by kind",
			},
			[]string{"kind"},
		),
	}
}

// RecordToolExecution records one tool invocation's outcome and latency.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordHookFired records one Hook Bus dispatch by event kind.
func (m *Metrics) RecordHookFired(kind string) {
	if m == nil {
		return
	}
	m.HookFiredCounter.WithLabelValues(kind).Inc()
}
