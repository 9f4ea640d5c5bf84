package miner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ncpBlocksAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ncp_blocks_accepted_total",
		Help: "Total blocks accepted onto the chain.",
	})

	ncpBlocksRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ncp_blocks_rejected_total",
		Help: "Total candidate blocks rejected, by reason.",
	}, []string{"reason"})

	ncpBlockHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ncp_block_height",
		Help: "Index of the current chain tip.",
	})

	ncpMiningJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ncp_mining_jobs_total",
		Help: "Total finished mining jobs by final status.",
	}, []string{"status"})

	ncpMiningDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ncp_mining_duration_seconds",
		Help:    "Wall-clock time spent mining one block.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 12),
	})
)

// SetBlockHeight publishes the current chain height gauge. Called at
// startup with the recovered height and by the worker after every accepted
// block.
func SetBlockHeight(height uint64) {
	ncpBlockHeight.Set(float64(height))
}
