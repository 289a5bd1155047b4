// Package sim drives a swarm of mesh.Engine instances over a shared
// virtual clock, delivering frames through an in-memory radio model
// instead of real BLE transport.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/gomesh/internal/mesh"
	"github.com/dantte-lp/gomesh/internal/meshmetrics"
)

// node holds one simulated node's engine plus its current position.
type node struct {
	id       uint32
	engine   *mesh.Engine
	position Position
}

// Config configures a Swarm.
type Config struct {
	// NodeCount is the number of simulated mesh.Engine instances.
	NodeCount int
	// AreaWidthM and AreaHeightM bound the 2-D placement area in meters.
	AreaWidthM, AreaHeightM float64
	// Mobility configures the bounded random-walk mobility model.
	Mobility MobilityConfig
	// SlotDurationMs is handed to every node's mesh.Config.
	SlotDurationMs uint32
	// InitialTTL is handed to every node's mesh.Config.
	InitialTTL uint8
	// ProximityThresholdM is handed to every node's mesh.Config.
	ProximityThresholdM float64
	// Seed seeds the swarm's topology/mobility RNG.
	Seed uint64
}

// Swarm owns N mesh.Engine instances and the in-memory radio model that
// connects them. Mirrors the teacher's Manager: a single struct owning an
// indexed collection, with a run loop that ticks each member in turn on
// one goroutine.
type Swarm struct {
	mu    sync.RWMutex
	nodes []*node
	radio *radioModel

	metrics *meshmetrics.Collector
	logger  *slog.Logger

	cfg Config
}

// New constructs a Swarm of cfg.NodeCount nodes, placed uniformly at
// random within the configured area, each backed by a mesh.Engine built
// from cfg's per-node defaults.
func New(cfg Config, metrics *meshmetrics.Collector, logger *slog.Logger) (*Swarm, error) {
	if cfg.NodeCount < 1 {
		return nil, fmt.Errorf("sim: node count must be >= 1")
	}

	radio := newRadioModel(cfg.AreaWidthM, cfg.AreaHeightM, cfg.Mobility, cfg.Seed)

	s := &Swarm{
		nodes:   make([]*node, 0, cfg.NodeCount),
		radio:   radio,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "sim.swarm")),
		cfg:     cfg,
	}

	for i := 0; i < cfg.NodeCount; i++ {
		id := uint32(i + 1)
		pos := radio.randomPosition()

		n := &node{id: id, position: pos}

		engineCfg := mesh.Config{
			NodeID:               id,
			SlotDurationMs:       cfg.SlotDurationMs,
			InitialTTL:           cfg.InitialTTL,
			ProximityThresholdM:  cfg.ProximityThresholdM,
			SendCallback:         s.deliver,
			LogCallback:          s.logFromEngine,
			MetricsCallback:      s.recordMetrics,
			UserContext:          n,
		}

		eng := mesh.NewEngine()
		if err := eng.Init(engineCfg); err != nil {
			return nil, fmt.Errorf("init engine for node %d: %w", id, err)
		}
		eng.SeedRandom(cfg.Seed ^ uint64(id)*2654435761)
		eng.SetGPS(pos.X, pos.Y, 0, true)

		n.engine = eng
		s.nodes = append(s.nodes, n)
	}

	return s, nil
}

// deliver is the mesh.SendFunc shared by every node's engine: it broadcasts
// the originating node's frame to every other node for which rssiBetween
// returns a value other than rssiInvalid, mirroring the teacher's
// fan-out-to-matching-peers dispatch in Manager.Demux, but one-to-many
// instead of one-to-one.
func (s *Swarm) deliver(userContext any, frame []byte) error {
	sender, ok := userContext.(*node)
	if !ok {
		return fmt.Errorf("sim: deliver called with unexpected user context %T", userContext)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.metrics != nil {
		s.metrics.IncPacketsSent(frameMessageType(frame))
	}

	for _, recv := range s.nodes {
		if recv.id == sender.id {
			continue
		}
		rssi := rssiBetween(sender.position, recv.position)
		if rssi == rssiInvalid {
			continue
		}
		if err := recv.engine.Receive(frame, rssi, 0); err != nil {
			s.logger.Debug("receive failed", slog.Uint64("node_id", uint64(recv.id)), slog.Any("err", err))
			if s.metrics != nil {
				s.metrics.IncPacketsDropped("receive_error")
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.IncPacketsReceived(frameMessageType(frame))
		}
	}

	return nil
}

// frameMessageType reads the wire message-type byte without a full parse,
// for metrics labeling only. Offset 0 per mesh/packet.go's wire layout.
func frameMessageType(frame []byte) mesh.MessageType {
	if len(frame) == 0 {
		return mesh.MessageDiscovery
	}
	return mesh.MessageType(frame[0])
}

func (s *Swarm) logFromEngine(userContext any, level mesh.LogLevel, message string) {
	n, _ := userContext.(*node)
	var nodeID uint32
	if n != nil {
		nodeID = n.id
	}

	attrs := []any{slog.Uint64("node_id", uint64(nodeID))}
	switch level {
	case mesh.LogDebug:
		s.logger.Debug(message, attrs...)
	case mesh.LogWarn:
		s.logger.Warn(message, attrs...)
	case mesh.LogError:
		s.logger.Error(message, attrs...)
	default:
		s.logger.Info(message, attrs...)
	}
}

func (s *Swarm) recordMetrics(userContext any, snap mesh.ConnectivityMetrics) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObservePDSF(snap.PDSF)
}

// Snapshot returns a NodeView for every node in the swarm, in node-id order.
func (s *Swarm) Snapshot() []mesh.NodeView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]mesh.NodeView, len(s.nodes))
	for i, n := range s.nodes {
		views[i] = n.engine.GetNodeSnapshot()
	}
	return views
}

// NodeCount returns the number of nodes in the swarm.
func (s *Swarm) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// reportStates refreshes the per-state node-count gauges from a fresh
// sweep of all engines' snapshots.
func (s *Swarm) reportStates() {
	if s.metrics == nil {
		return
	}
	counts := make(map[mesh.NodeState]int)
	for _, view := range s.Snapshot() {
		counts[view.State]++
	}
	s.metrics.SetNodesByState(counts)
}

// Run starts every node's engine and ticks the swarm on a shared virtual
// clock until ctx is canceled or durationMs of simulated time elapses.
// Each slot tick advances the virtual clock by slotDurationMs; when
// mobility is enabled it first moves every node one random-walk step and
// pushes the new position to its engine via SetGPS. Per-state gauges are
// refreshed once per cycle and at the end of the run. All of this runs on
// a single goroutine joined through errgroup.WithContext, mirroring the
// teacher's layout in cmd/gobfd/main.go's runServers.
func (s *Swarm) Run(ctx context.Context, durationMs int64) error {
	s.mu.Lock()
	for _, n := range s.nodes {
		n.engine.Start()
	}
	s.mu.Unlock()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.tickLoop(gCtx, durationMs)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("sim: run: %w", err)
	}
	return nil
}

func (s *Swarm) tickLoop(ctx context.Context, durationMs int64) error {
	var nowMs int64
	slotMs := int64(s.cfg.SlotDurationMs)
	if slotMs <= 0 {
		slotMs = 1
	}

	for nowMs < durationMs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.tickOnce(nowMs)
		nowMs += slotMs
	}

	s.reportStates()
	return nil
}

// tickOnce advances mobility and ticks every node's engine once at nowMs.
func (s *Swarm) tickOnce(nowMs int64) {
	s.mu.Lock()
	for _, n := range s.nodes {
		if s.cfg.Mobility.Enabled {
			n.position = s.radio.step(n.position)
			n.engine.SetGPS(n.position.X, n.position.Y, 0, true)
		}
	}
	s.mu.Unlock()

	s.mu.RLock()
	nodes := make([]*node, len(s.nodes))
	copy(nodes, s.nodes)
	s.mu.RUnlock()

	for _, n := range nodes {
		if err := n.engine.Tick(nowMs); err != nil {
			s.logger.Warn("tick failed", slog.Uint64("node_id", uint64(n.id)), slog.Any("err", err))
		}
	}

	if nowMs%int64(s.cfg.SlotDurationMs*mesh.SlotsPerCycle) == 0 {
		s.reportStates()
	}
}
