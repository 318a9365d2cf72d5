package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// LinksTotal tracks the number of doublets in the store after the last operation
	LinksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "linkgate_links_total",
			Help: "Number of doublets currently stored",
		},
	)

	// OperationsTotal counts gateway operations by outcome
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkgate_operations_total",
			Help: "Total number of gateway operations processed",
		},
		[]string{"operation", "outcome"},
	)

	// LockWaitSeconds tracks how long resolvers wait for the store lock
	LockWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linkgate_lock_wait_seconds",
			Help:    "Time spent waiting for the store lock",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"mode"},
	)

	// BatchSize tracks the number of requests per insert_links call
	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "linkgate_batch_size",
			Help:    "Number of link requests per mutation batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
)

func init() {
	// Register metrics with the default registry
	prometheus.MustRegister(LinksTotal)
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(LockWaitSeconds)
	prometheus.MustRegister(BatchSize)
}
