package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeOK        = "ok"
	OutcomeAuth      = "auth_error"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

var (
	Questions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_questions_total",
			Help: "Answered question turns by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	Fallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docqa_fallback_searches_total",
			Help: "Web searches triggered by an answer the model could not give",
		},
	)

	Builds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_index_builds_total",
			Help: "Vector index builds by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	BuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docqa_index_build_duration_seconds",
			Help:    "Duration of vector index builds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"trigger"},
	)

	Sessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docqa_sessions",
			Help: "Open sessions",
		},
	)
)
