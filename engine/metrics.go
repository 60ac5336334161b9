package engine

import (
	"time"

	"github.com/ammiranda/ordered_tree/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts mutations.
	// Labels: kind, op (create, move, delete), result (ok, noop, or an error kind)
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ordered_tree",
		Subsystem: "engine",
		Name:      "operations_total",
		Help:      "Total tree mutations by kind, operation and result",
	}, []string{"kind", "op", "result"})

	// operationDuration measures a mutation from Begin to Commit or Rollback.
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ordered_tree",
		Subsystem: "engine",
		Name:      "operation_duration_seconds",
		Help:      "Tree mutation latency in seconds",
		Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 3},
	}, []string{"kind", "op"})

	// reindexedRows counts rows rewritten by the final reindex of a move.
	// Non-zero means a group held drifted positions before the move.
	reindexedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ordered_tree",
		Subsystem: "engine",
		Name:      "reindexed_rows_total",
		Help:      "Rows rewritten while repairing non-contiguous sibling groups",
	}, []string{"kind"})
)

func observe(kind repository.Kind, op, result string, start time.Time) {
	operationsTotal.WithLabelValues(string(kind), op, result).Inc()
	operationDuration.WithLabelValues(string(kind), op).Observe(time.Since(start).Seconds())
}
