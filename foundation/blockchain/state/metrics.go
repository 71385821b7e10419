package state

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusChainHeight     prometheus.Gauge
	prometheusMempoolSize     prometheus.Gauge
	prometheusOrphanBlocks    prometheus.Gauge
	prometheusBlocksMined     prometheus.Counter
	prometheusBlocksAccepted  prometheus.Counter
	prometheusBlocksRejected  *prometheus.CounterVec
	prometheusTxAdmitted      prometheus.Counter
	prometheusTxRejected      *prometheus.CounterVec
	prometheusChainReplaced   prometheus.Counter
	prometheusStateCorrupted  prometheus.Counter
	prometheusMetricsInitOnce sync.Once
)

// initPrometheusMetrics registers the metrics once per process no matter
// how many nodes are constructed.
func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusChainHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ledger",
			Subsystem: "state",
			Name:      "chain_height",
			Help:      "Number of the latest block in the chain",
		},
	)

	prometheusMempoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ledger",
			Subsystem: "state",
			Name:      "mempool_size",
			Help:      "Number of transactions waiting to be mined",
		},
	)

	prometheusOrphanBlocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ledger",
			Subsystem: "state",
			Name:      "orphan_blocks",
			Help:      "Number of blocks buffered waiting for their parent",
		},
	)

	prometheusBlocksMined = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "state",
			Name:      "blocks_mined",
			Help:      "Number of blocks mined by this node",
		},
	)

	prometheusBlocksAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "state",
			Name:      "blocks_accepted",
			Help:      "Number of blocks accepted from peers",
		},
	)

	prometheusBlocksRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "state",
			Name:      "blocks_rejected",
			Help:      "Number of blocks from peers rejected by reason",
		},
		[]string{"reason"},
	)

	prometheusTxAdmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "state",
			Name:      "tx_admitted",
			Help:      "Number of transactions admitted to the mempool",
		},
	)

	prometheusTxRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "state",
			Name:      "tx_rejected",
			Help:      "Number of transactions rejected by reason",
		},
		[]string{"reason"},
	)

	prometheusChainReplaced = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "state",
			Name:      "chain_replaced",
			Help:      "Number of times the chain was replaced by a peer chain",
		},
	)

	prometheusStateCorrupted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "state",
			Name:      "state_corrupted",
			Help:      "Number of times the live state had to be rebuilt",
		},
	)
}
