package sim_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dantte-lp/gomesh/internal/mesh"
	"github.com/dantte-lp/gomesh/internal/meshmetrics"
	"github.com/dantte-lp/gomesh/internal/sim"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(nodeCount int) sim.Config {
	return sim.Config{
		NodeCount:           nodeCount,
		AreaWidthM:          200,
		AreaHeightM:         200,
		Mobility:            sim.MobilityConfig{Enabled: false},
		SlotDurationMs:      10,
		InitialTTL:          5,
		ProximityThresholdM: 50,
		Seed:                7,
	}
}

func TestNewRejectsZeroNodeCount(t *testing.T) {
	t.Parallel()

	_, err := sim.New(testConfig(0), nil, discardLogger())
	if err == nil {
		t.Fatal("New(0 nodes) returned nil error, want error")
	}
}

func TestNewPlacesAllNodes(t *testing.T) {
	t.Parallel()

	s, err := sim.New(testConfig(20), nil, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.NodeCount() != 20 {
		t.Fatalf("NodeCount() = %d, want 20", s.NodeCount())
	}

	snap := s.Snapshot()
	if len(snap) != 20 {
		t.Fatalf("Snapshot() len = %d, want 20", len(snap))
	}
	for i, view := range snap {
		if view.NodeID != uint32(i+1) {
			t.Errorf("Snapshot()[%d].NodeID = %d, want %d", i, view.NodeID, i+1)
		}
	}
}

func TestRunAdvancesSwarmState(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := meshmetrics.NewCollector(reg)

	// Dense, small area so nodes are well within radio range of each other.
	cfg := testConfig(15)
	cfg.AreaWidthM = 50
	cfg.AreaHeightM = 50

	s, err := sim.New(cfg, collector, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Run(ctx, 2000); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := s.Snapshot()
	var anyBeyondInit bool
	for _, view := range snap {
		if view.State != mesh.StateInit {
			anyBeyondInit = true
		}
	}
	if !anyBeyondInit {
		t.Fatal("no node advanced past StateInit after 2000ms of simulated ticking")
	}
}

func TestRunRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	s, err := sim.New(testConfig(5), nil, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A canceled context should stop the run loop promptly, without
	// requiring the full requested duration to elapse.
	err = s.Run(ctx, 1_000_000)
	if err == nil {
		t.Fatal("Run with pre-canceled context returned nil error, want context.Canceled wrapped")
	}
}

func TestMobilityMovesNodes(t *testing.T) {
	t.Parallel()

	cfg := testConfig(3)
	cfg.Mobility = sim.MobilityConfig{Enabled: true, MaxStepM: 5.0}

	s, err := sim.New(cfg, nil, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Run(ctx, 500); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// No direct position accessor is exposed; a successful run with
	// mobility enabled and no panics/errors across bounds-clamped steps is
	// the externally observable contract here.
	if s.NodeCount() != 3 {
		t.Fatalf("NodeCount() = %d, want 3", s.NodeCount())
	}
}
