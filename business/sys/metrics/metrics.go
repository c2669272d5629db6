// Package metrics maintains the prometheus collectors for the simulation
// and the web service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "powsim"

var (
	blocksFoundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "blocks_found_total",
		Help:      "Count of candidate blocks found by miners.",
	}, []string{"miner"})

	blocksAcceptedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "blocks_accepted_total",
		Help:      "Count of blocks that became the canonical tip.",
	}, []string{"miner"})

	blocksStaleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "blocks_stale_total",
		Help:      "Count of blocks rejected or stored off the canonical chain.",
	}, []string{"reason"})

	blockInterval = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "block_interval_seconds",
		Help:      "Time between a block and its parent for accepted blocks.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25..128
	})

	blocksPrunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "blocks_pruned_total",
		Help:      "Count of fork blocks removed by the sweep.",
	})

	difficultyLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "difficulty",
		Name:      "level",
		Help:      "Current mining difficulty.",
	})

	difficultyChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "difficulty",
		Name:      "changes_total",
		Help:      "Count of difficulty changes by trigger.",
	}, []string{"trigger"})

	sinkFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "sink_failures_total",
		Help:      "Count of events the sink failed to consume.",
	})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Count of handled HTTP requests.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of handled HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// =============================================================================

// Simulation records the behavior of a simulation session.
type Simulation struct{}

// NewSimulation constructs a recorder for a simulation session.
func NewSimulation() Simulation {
	return Simulation{}
}

// BlockFound records a candidate block.
func (Simulation) BlockFound(minerID string) {
	blocksFoundTotal.WithLabelValues(minerID).Inc()
}

// BlockAccepted records a block that became the tip and its interval.
func (Simulation) BlockAccepted(minerID string, interval time.Duration) {
	blocksAcceptedTotal.WithLabelValues(minerID).Inc()
	blockInterval.Observe(interval.Seconds())
}

// BlockStale records a block that did not become the tip.
func (Simulation) BlockStale(reason string) {
	blocksStaleTotal.WithLabelValues(reason).Inc()
}

// DifficultyChanged records the new difficulty. An empty trigger only sets
// the level.
func (Simulation) DifficultyChanged(level uint, trigger string) {
	difficultyLevel.Set(float64(level))
	if trigger != "" {
		difficultyChangesTotal.WithLabelValues(trigger).Inc()
	}
}

// Pruned records blocks removed by the sweep.
func (Simulation) Pruned(n int) {
	if n > 0 {
		blocksPrunedTotal.Add(float64(n))
	}
}

// SinkFailed records an event the sink did not consume.
func (Simulation) SinkFailed() {
	sinkFailuresTotal.Inc()
}

// =============================================================================

// ObserveRequest records a handled HTTP request.
func ObserveRequest(method string, route string, status int, started time.Time) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(started).Seconds())
}
