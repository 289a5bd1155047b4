// Package meshmetrics exposes Prometheus metrics for a simulated mesh
// swarm: per-state node counts, packet volumes, queue rejection reasons,
// election transitions, and PDSF distribution.
package meshmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dantte-lp/gomesh/internal/mesh"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "gomesh"
	subsystem = "swarm"
)

// Label names for swarm metrics.
const (
	labelState      = "state"
	labelReason     = "reason"
	labelFromState  = "from_state"
	labelToState    = "to_state"
	labelMessageKnd = "message_type"
)

// -------------------------------------------------------------------------
// Collector — Prometheus swarm metrics
// -------------------------------------------------------------------------

// Collector holds all swarm-level Prometheus metrics.
//
//   - NodesByState tracks current node counts per mesh.NodeState.
//   - Packets{Sent,Received} track frame volumes by message type;
//     PacketsDropped counts dropped frames by drop reason.
//   - QueueRejections counts forward-queue admission failures by reason
//     (Loop/Duplicate/Overflow).
//   - StateTransitions counts node state machine changes for churn analysis.
//   - PDSF is a histogram of each node's PDSF value sampled on every engine
//     tick.
type Collector struct {
	// NodesByState tracks the number of nodes currently in each state.
	NodesByState *prometheus.GaugeVec

	// PacketsSent counts frames transmitted, labeled by message type.
	PacketsSent *prometheus.CounterVec

	// PacketsReceived counts frames successfully parsed on receipt.
	PacketsReceived *prometheus.CounterVec

	// PacketsDropped counts frames dropped at parse or admission time.
	PacketsDropped *prometheus.CounterVec

	// QueueRejections counts forward-queue admission failures by reason.
	QueueRejections *prometheus.CounterVec

	// StateTransitions counts node state machine transitions.
	StateTransitions *prometheus.CounterVec

	// PDSF is a histogram of sampled PDSF values across the swarm.
	PDSF prometheus.Histogram

	// Clusterheads tracks the number of currently elected clusterheads.
	Clusterheads prometheus.Gauge
}

// NewCollector creates a Collector with all swarm metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.NodesByState,
		c.PacketsSent,
		c.PacketsReceived,
		c.PacketsDropped,
		c.QueueRejections,
		c.StateTransitions,
		c.PDSF,
		c.Clusterheads,
	)

	return c
}

func newMetrics() *Collector {
	return &Collector{
		NodesByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "nodes",
			Help:      "Number of simulated nodes currently in each protocol state.",
		}, []string{labelState}),

		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_sent_total",
			Help:      "Total frames transmitted across the swarm, by message type.",
		}, []string{labelMessageKnd}),

		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_received_total",
			Help:      "Total frames successfully parsed on receipt, by message type.",
		}, []string{labelMessageKnd}),

		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dropped_total",
			Help:      "Total frames dropped, by drop reason.",
		}, []string{labelReason}),

		QueueRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_rejections_total",
			Help:      "Forward queue admission failures, by reason (loop, duplicate, overflow).",
		}, []string{labelReason}),

		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Total node state machine transitions.",
		}, []string{labelFromState, labelToState}),

		PDSF: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pdsf",
			Help:      "Distribution of per-node predicted-devices-so-far values, sampled on every engine tick.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}),

		Clusterheads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "clusterheads",
			Help:      "Number of nodes currently elected as clusterhead.",
		}),
	}
}

// -------------------------------------------------------------------------
// Node state gauges
// -------------------------------------------------------------------------

// SetNodesByState replaces the NodesByState gauge with the given per-state
// counts, computed from a fresh sweep of mesh.NodeView snapshots each
// reporting interval. Clusterheads is set from counts[mesh.StateClusterhead].
func (c *Collector) SetNodesByState(counts map[mesh.NodeState]int) {
	for state := mesh.StateInit; state <= mesh.StateClusterMember; state++ {
		c.NodesByState.WithLabelValues(state.String()).Set(float64(counts[state]))
	}
	c.Clusterheads.Set(float64(counts[mesh.StateClusterhead]))
}

// -------------------------------------------------------------------------
// Packet counters
// -------------------------------------------------------------------------

// IncPacketsSent increments the transmitted-frame counter for messageType.
func (c *Collector) IncPacketsSent(messageType mesh.MessageType) {
	c.PacketsSent.WithLabelValues(messageType.String()).Inc()
}

// IncPacketsReceived increments the received-frame counter for messageType.
func (c *Collector) IncPacketsReceived(messageType mesh.MessageType) {
	c.PacketsReceived.WithLabelValues(messageType.String()).Inc()
}

// IncPacketsDropped increments the dropped-frame counter for the given
// reason (e.g. "parse_error", "path_overflow").
func (c *Collector) IncPacketsDropped(reason string) {
	c.PacketsDropped.WithLabelValues(reason).Inc()
}

// -------------------------------------------------------------------------
// Queue rejections
// -------------------------------------------------------------------------

// Forward queue rejection reason labels.
const (
	ReasonLoop      = "loop"
	ReasonDuplicate = "duplicate"
	ReasonOverflow  = "overflow"
)

// IncQueueRejection increments the forward-queue rejection counter for reason.
func (c *Collector) IncQueueRejection(reason string) {
	c.QueueRejections.WithLabelValues(reason).Inc()
}

// -------------------------------------------------------------------------
// State transitions
// -------------------------------------------------------------------------

// RecordStateTransition increments the state transition counter with the
// old and new state labels.
func (c *Collector) RecordStateTransition(from, to mesh.NodeState) {
	c.StateTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// -------------------------------------------------------------------------
// PDSF
// -------------------------------------------------------------------------

// ObservePDSF records one node's current PDSF value.
func (c *Collector) ObservePDSF(pdsf uint32) {
	c.PDSF.Observe(float64(pdsf))
}
