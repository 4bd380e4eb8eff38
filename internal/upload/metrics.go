package upload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remind",
			Subsystem: "upload",
			Name:      "attempts_total",
			Help:      "Asset upload attempts, including retries.",
		},
		[]string{"kind"},
	)

	outcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remind",
			Subsystem: "upload",
			Name:      "outcomes_total",
			Help:      "Asset uploads by final outcome.",
		},
		[]string{"kind", "outcome"},
	)

	attemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "remind",
			Subsystem: "upload",
			Name:      "attempt_duration_seconds",
			Help:      "Wall time of a single upload attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"kind"},
	)

	orphanedAssetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "remind",
			Subsystem: "upload",
			Name:      "orphaned_assets_total",
			Help:      "Uploaded assets left unreferenced because another asset failed.",
		},
	)
)
