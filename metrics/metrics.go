// Package metrics implements a prometheus-backed stats.Sink. Reporting is
// best-effort from the broker's point of view: a failure here never fails a
// query.
package metrics

import (
	"github.com/getlantern/gather/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gather_queries_total",
			Help: "Total number of reduced queries",
		},
		[]string{"table"},
	)
	docsScannedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gather_docs_scanned_total",
			Help: "Total number of documents scanned across nodes",
		},
		[]string{"table"},
	)
	exceptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gather_node_exceptions_total",
			Help: "Total number of exceptions reported by nodes",
		},
		[]string{"table"},
	)
	nodesResponded = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gather_nodes_responded",
			Help:    "Number of nodes that responded per query",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"table"},
	)
	slowestNodeSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gather_slowest_node_seconds",
			Help:    "Execution time of the slowest node per query",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)
)

// PrometheusSink reports finalized query stats to prometheus.
type PrometheusSink struct {
}

// NewPrometheusSink creates a PrometheusSink. Collectors register on the
// default registry.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{}
}

// ReportQueryStats implements stats.Sink.
func (s *PrometheusSink) ReportQueryStats(table string, stats *common.GlobalStats) error {
	queriesTotal.WithLabelValues(table).Inc()
	docsScannedTotal.WithLabelValues(table).Add(float64(stats.DocsScanned))
	exceptionsTotal.WithLabelValues(table).Add(float64(len(stats.Exceptions)))
	nodesResponded.WithLabelValues(table).Observe(float64(stats.NodesResponded))
	slowestNodeSeconds.WithLabelValues(table).Observe(stats.MaxNodeTime.Seconds())
	return nil
}
