package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Guard decision counters and latency, partitioned by outcome.

var (
	GuardDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "guard",
		Name:      "decisions_total",
		Help:      "Total redemption guard decisions",
	}, []string{"outcome", "reason"})

	GuardEvaluateLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fraudguard",
		Subsystem: "guard",
		Name:      "evaluate_duration_seconds",
		Help:      "Guard pipeline evaluation duration",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"outcome"})

	RateLimitDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "ratelimit",
		Name:      "denials_total",
		Help:      "Total rate limit denials by scope",
	}, []string{"scope"})

	ReplayConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "replay",
		Name:      "conflicts_total",
		Help:      "Total replay denials (reuse or reservation conflict)",
	}, []string{"kind"})

	FraudLogsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "guard",
		Name:      "fraud_logs_written_total",
		Help:      "Total fraud log rows written",
	}, []string{"reason"})

	// Clustering engine

	ClusterRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "cluster",
		Name:      "runs_total",
		Help:      "Total clustering runs by result",
	}, []string{"result"})

	ClusterRunLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fraudguard",
		Subsystem: "cluster",
		Name:      "run_duration_seconds",
		Help:      "Clustering run duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	ClustersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "cluster",
		Name:      "clusters_created_total",
		Help:      "Total fraud clusters created by pattern type",
	}, []string{"pattern_type"})

	ClustersMergedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "cluster",
		Name:      "clusters_merged_total",
		Help:      "Total merges of new logs into existing clusters",
	}, []string{"pattern_type"})

	ClusterMalformedRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "cluster",
		Name:      "malformed_rows_total",
		Help:      "Total fraud log rows skipped as malformed during clustering",
	})

	// Alert broadcaster

	AlertsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "alert",
		Name:      "published_total",
		Help:      "Total alert events published by event type",
	}, []string{"event"})

	AlertsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "alert",
		Name:      "dropped_total",
		Help:      "Total alert events dropped on slow subscribers",
	}, []string{"event"})

	AlertSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudguard",
		Subsystem: "alert",
		Name:      "subscribers",
		Help:      "Currently connected monitoring subscribers",
	})
)
