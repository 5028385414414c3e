// Package metrics holds the prometheus collectors for action calls,
// tool-call parsing and LLM requests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signalpilot"

var (
	Registry = prometheus.NewRegistry()

	ActionInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "action_invocations_total",
		Help:      "Action invocations by action and result status.",
	}, []string{"action", "status"})

	ActionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "action_duration_seconds",
		Help:      "Wall time spent inside an action invocation.",
		Buckets:   []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"action"})

	ToolCallParseFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "toolcall_parse_failures_total",
		Help:      "Fenced json regions that could not be decoded into a tool call.",
	})

	LLMRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_requests_total",
		Help:      "LLM backend requests by model and outcome.",
	}, []string{"model", "outcome"})
)

func init() {
	Registry.MustRegister(
		ActionInvocations,
		ActionDuration,
		ToolCallParseFailures,
		LLMRequests,
		collectors.NewGoCollector(),
	)
}

// ObserveAction records one settled action invocation.
func ObserveAction(action, status string, elapsed time.Duration) {
	ActionInvocations.WithLabelValues(action, status).Inc()
	ActionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// ObserveLLMRequest records one backend round trip. outcome is "ok" or "error".
func ObserveLLMRequest(model string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	LLMRequests.WithLabelValues(model, outcome).Inc()
}

// Handler serves the registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
