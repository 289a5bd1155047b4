package meshmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dantte-lp/gomesh/internal/mesh"
	"github.com/dantte-lp/gomesh/internal/meshmetrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := meshmetrics.NewCollector(reg)

	if c.NodesByState == nil {
		t.Error("NodesByState is nil")
	}
	if c.PacketsSent == nil {
		t.Error("PacketsSent is nil")
	}
	if c.PacketsReceived == nil {
		t.Error("PacketsReceived is nil")
	}
	if c.PacketsDropped == nil {
		t.Error("PacketsDropped is nil")
	}
	if c.QueueRejections == nil {
		t.Error("QueueRejections is nil")
	}
	if c.StateTransitions == nil {
		t.Error("StateTransitions is nil")
	}
	if c.PDSF == nil {
		t.Error("PDSF is nil")
	}
	if c.Clusterheads == nil {
		t.Error("Clusterheads is nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestSetNodesByState(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := meshmetrics.NewCollector(reg)

	counts := map[mesh.NodeState]int{
		mesh.StateDiscovery:  5,
		mesh.StateEdge:       2,
		mesh.StateClusterhead: 1,
	}
	c.SetNodesByState(counts)

	if v := gaugeValue(t, c.NodesByState, mesh.StateDiscovery.String()); v != 5 {
		t.Errorf("NodesByState[Discovery] = %v, want 5", v)
	}
	if v := gaugeValue(t, c.NodesByState, mesh.StateEdge.String()); v != 2 {
		t.Errorf("NodesByState[Edge] = %v, want 2", v)
	}
	if v := gaugeValue(t, c.NodesByState, mesh.StateClusterhead.String()); v != 1 {
		t.Errorf("NodesByState[Clusterhead] = %v, want 1", v)
	}
	if v := gaugeValue(t, c.NodesByState, mesh.StateInit.String()); v != 0 {
		t.Errorf("NodesByState[Init] = %v, want 0 (unset counts default to zero)", v)
	}

	if got := singleGaugeValue(t, c.Clusterheads); got != 1 {
		t.Errorf("Clusterheads = %v, want 1", got)
	}
}

func TestPacketCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := meshmetrics.NewCollector(reg)

	c.IncPacketsSent(mesh.MessageDiscovery)
	c.IncPacketsSent(mesh.MessageDiscovery)
	c.IncPacketsSent(mesh.MessageElectionAnnouncement)

	if v := counterValue(t, c.PacketsSent, mesh.MessageDiscovery.String()); v != 2 {
		t.Errorf("PacketsSent[Discovery] = %v, want 2", v)
	}
	if v := counterValue(t, c.PacketsSent, mesh.MessageElectionAnnouncement.String()); v != 1 {
		t.Errorf("PacketsSent[ElectionAnnouncement] = %v, want 1", v)
	}

	c.IncPacketsReceived(mesh.MessageDiscovery)
	if v := counterValue(t, c.PacketsReceived, mesh.MessageDiscovery.String()); v != 1 {
		t.Errorf("PacketsReceived[Discovery] = %v, want 1", v)
	}

	c.IncPacketsDropped("parse_error")
	c.IncPacketsDropped("parse_error")
	if v := counterValue(t, c.PacketsDropped, "parse_error"); v != 2 {
		t.Errorf("PacketsDropped[parse_error] = %v, want 2", v)
	}
}

func TestQueueRejections(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := meshmetrics.NewCollector(reg)

	c.IncQueueRejection(meshmetrics.ReasonLoop)
	c.IncQueueRejection(meshmetrics.ReasonDuplicate)
	c.IncQueueRejection(meshmetrics.ReasonDuplicate)
	c.IncQueueRejection(meshmetrics.ReasonOverflow)

	if v := counterValue(t, c.QueueRejections, meshmetrics.ReasonLoop); v != 1 {
		t.Errorf("QueueRejections[loop] = %v, want 1", v)
	}
	if v := counterValue(t, c.QueueRejections, meshmetrics.ReasonDuplicate); v != 2 {
		t.Errorf("QueueRejections[duplicate] = %v, want 2", v)
	}
	if v := counterValue(t, c.QueueRejections, meshmetrics.ReasonOverflow); v != 1 {
		t.Errorf("QueueRejections[overflow] = %v, want 1", v)
	}
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := meshmetrics.NewCollector(reg)

	c.RecordStateTransition(mesh.StateDiscovery, mesh.StateClusterheadCandidate)
	c.RecordStateTransition(mesh.StateDiscovery, mesh.StateClusterheadCandidate)
	c.RecordStateTransition(mesh.StateClusterheadCandidate, mesh.StateClusterhead)

	if v := counterValue(t, c.StateTransitions,
		mesh.StateDiscovery.String(), mesh.StateClusterheadCandidate.String()); v != 2 {
		t.Errorf("StateTransitions(Discovery->Candidate) = %v, want 2", v)
	}
	if v := counterValue(t, c.StateTransitions,
		mesh.StateClusterheadCandidate.String(), mesh.StateClusterhead.String()); v != 1 {
		t.Errorf("StateTransitions(Candidate->Clusterhead) = %v, want 1", v)
	}
}

func TestObservePDSF(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := meshmetrics.NewCollector(reg)

	c.ObservePDSF(1)
	c.ObservePDSF(10)
	c.ObservePDSF(100)

	m := &dto.Metric{}
	if err := c.PDSF.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	if got := m.GetHistogram().GetSampleCount(); got != 3 {
		t.Errorf("PDSF sample count = %d, want 3", got)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}

func singleGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}
