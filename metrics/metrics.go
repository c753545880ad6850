// Package metrics exposes prometheus collectors for transcript acquisition,
// page agent traffic and summary generation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ytsum"

var (
	// SourceAttemptsTotal counts coordinator source attempts.
	// Labels: source, status (success, not_found, failed).
	SourceAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_attempts_total",
			Help:      "Total number of transcript source attempts",
		},
		[]string{"source", "status"},
	)

	SourceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_duration_seconds",
			Help:      "Time spent in a single transcript source attempt",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 20, 30},
		},
		[]string{"source"},
	)

	// CacheOperationsTotal counts transcript cache operations.
	// Labels: operation (get, set, clear), status (hit, miss, success).
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of transcript cache operations",
		},
		[]string{"operation", "status"},
	)

	// PageStrategyAttemptsTotal counts in-page extraction strategy attempts.
	PageStrategyAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_strategy_attempts_total",
			Help:      "Total number of page-context extraction strategy attempts",
		},
		[]string{"strategy", "status"},
	)

	// AgentMessagesTotal counts coordinator to page agent messages.
	// Labels: action, transport, status (ok, error, timeout).
	AgentMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_messages_total",
			Help:      "Total number of page agent messages sent",
		},
		[]string{"action", "transport", "status"},
	)

	SummariesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Total number of summary generation calls",
		},
		[]string{"provider", "status"},
	)

	SummaryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "summary_duration_seconds",
			Help:      "LLM summary call latency",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
		},
		[]string{"provider"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served",
		},
		[]string{"method", "route", "code"},
	)
)

// Status label values.
const (
	StatusSuccess  = "success"
	StatusNotFound = "not_found"
	StatusFailed   = "failed"
	StatusOK       = "ok"
	StatusError    = "error"
	StatusTimeout  = "timeout"
	StatusHit      = "hit"
	StatusMiss     = "miss"
)

// Cache operation label values.
const (
	CacheOpGet   = "get"
	CacheOpSet   = "set"
	CacheOpClear = "clear"
)
