package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foliolens_analysis_requests_total",
		Help: "Analysis requests received, by transport mode.",
	}, []string{"mode"})

	terminalEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foliolens_terminal_events_total",
		Help: "Terminal events emitted, by outcome class (ok or a failure class).",
	}, []string{"class"})

	backendTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foliolens_backend_tokens_total",
		Help: "Tokens consumed across backend calls, by direction.",
	}, []string{"direction"})

	toolCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foliolens_tool_calls_total",
		Help: "Tool calls dispatched by the conversation loop.",
	})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "foliolens_analysis_duration_seconds",
		Help:    "Wall-clock duration of complete analysis requests.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)
