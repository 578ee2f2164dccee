package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Process instrumentation, exposed by `kubediag batch --metrics-addr`.
var (
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubediag_sessions_total",
			Help: "Total number of diagnosis sessions completed",
		},
		[]string{"environment", "outcome"}, // outcome: root_cause_found/undetermined
	)

	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubediag_session_duration_seconds",
			Help:    "Diagnosis session duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
		[]string{"environment"},
	)

	SessionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kubediag_sessions_in_flight",
			Help: "Number of diagnosis sessions currently running",
		},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubediag_tool_calls_total",
			Help: "Total number of tool dispatches by outcome",
		},
		[]string{"tool", "outcome"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubediag_tool_call_duration_seconds",
			Help:    "Tool dispatch duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"tool"},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubediag_llm_calls_total",
			Help: "Total number of model calls by component",
		},
		[]string{"component", "status"}, // status: ok/error
	)

	ParseFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubediag_parse_failures_total",
			Help: "Model replies that fell back to typed defaults",
		},
		[]string{"component"},
	)

	SecurityRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubediag_security_rejections_total",
			Help: "Tool calls rejected by the security gate",
		},
		[]string{"tool"},
	)
)

// ObserveLLMCall records the status of one model call.
func ObserveLLMCall(component string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	LLMCallsTotal.WithLabelValues(component, status).Inc()
}
