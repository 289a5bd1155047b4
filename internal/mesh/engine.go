package mesh

import "fmt"

// candidateCooldownCycles is "no competing candidate heard for three
// cycles" (spec §9: inferred from reference-source usage of
// last_candidate_heard_cycle, not parameterized there; exposed here as a
// named constant per the explicit instruction in §9).
const candidateCooldownCycles = 3

// maxClusterMembers bounds how many members a clusterhead may claim when
// deciding whether to align to one (Glossary: "Clusterhead — elected
// coordinator for up to 150 member nodes").
const maxClusterMembers = 150

// minEdgeNeighbors is the direct-neighbor floor below which a node that is
// not a viable candidate falls back to the Edge state. Spec §4.9 names
// should_become_edge() as a predicate the engine consults but does not
// define its formula; this is the chosen, documented definition (see
// DESIGN.md).
const minEdgeNeighbors = 2

// noiseLevelThreshold and noisyWindowDurationMs govern the engine's own
// interpretation of the external set_noise_level(level) operation (spec
// §6): at or above the threshold the engine opens/continues a crowding
// measurement window and uses the Noisy broadcast schedule; below it, the
// Stochastic schedule is used. Spec §4.4 defines the two schedules but not
// the trigger that switches between them; this is the chosen, documented
// mapping (see DESIGN.md).
const (
	noiseLevelThreshold    = 0.5
	noisyWindowDurationMs  = 1000
)

// Config configures an Engine. All fields are required before Init except
// where noted; defaults mirror spec §6.
type Config struct {
	// NodeID is this node's identifier. Must be nonzero.
	NodeID uint32
	// SlotDurationMs documents the expected cadence of Tick calls. Default 100.
	SlotDurationMs uint32
	// InitialTTL is the TTL stamped on freshly originated frames. Default 10.
	InitialTTL uint8
	// ProximityThresholdM gates GPS-proximity forwarding admission. Default 10.0.
	ProximityThresholdM float64

	// SendCallback transmits serialized frames. Required.
	SendCallback SendFunc
	// LogCallback receives engine log lines. Optional.
	LogCallback LogFunc
	// MetricsCallback receives a ConnectivityMetrics snapshot once per Tick. Optional.
	MetricsCallback MetricsFunc
	// UserContext is opaque and echoed back to every callback invocation.
	UserContext any
}

// DefaultConfig returns a Config with spec-default field values for the
// given node id and send callback.
func DefaultConfig(nodeID uint32, send SendFunc) Config {
	return Config{
		NodeID:               nodeID,
		SlotDurationMs:       DefaultSlotDurationMs,
		InitialTTL:           DefaultInitialTTL,
		ProximityThresholdM:  DefaultProximityThresholdM,
		SendCallback:         send,
	}
}

func validateConfig(cfg Config) error {
	if cfg.NodeID == 0 {
		return fmt.Errorf("node id must be nonzero: %w", ErrInvalidConfig)
	}
	if cfg.SlotDurationMs == 0 {
		return fmt.Errorf("slot duration must be nonzero: %w", ErrInvalidConfig)
	}
	if cfg.InitialTTL == 0 {
		return fmt.Errorf("initial ttl must be at least 1: %w", ErrInvalidConfig)
	}
	if cfg.ProximityThresholdM < 0 {
		return fmt.Errorf("proximity threshold must be non-negative: %w", ErrInvalidConfig)
	}
	if cfg.SendCallback == nil {
		return fmt.Errorf("send callback is required: %w", ErrInvalidConfig)
	}
	return nil
}

// NodeView is a read-only observability snapshot (spec §6), copied fields
// only -- no references into engine-owned mutable state, matching the
// teacher's SessionSnapshot convention.
type NodeView struct {
	NodeID            uint32
	State             NodeState
	CycleCount        uint64
	NeighborCount     int
	DirectConnections int
	AverageRSSI       float64
	CrowdingFactor    float64
	PDSF              uint32
	CandidacyScore    float64
	MessagesForwarded uint64
	MessagesReceived  uint64
	QueueLen          int
	SeenCacheLen      int
	ClusterheadID     uint32
	ClusterClass      uint16
	ElectionHash      uint32
	DroppedFrames     uint64
	SendFailures      uint64
}

// heardCandidate is the highest-scored election announcement heard during
// the current cycle.
type heardCandidate struct {
	nodeID        uint32
	score         float64
	pdsf          uint32
	isClusterhead bool
	valid         bool
}

// Engine is the per-node protocol engine (spec §2/§9: a single owning
// struct per node). It is single-threaded and cooperative: all mutation
// happens synchronously inside Tick/Receive/Init/Start/Stop calls driven by
// the caller. Concurrent use of one Engine from multiple goroutines is
// undefined; callers must serialize externally.
type Engine struct {
	cfg Config
	rng *RNG

	state                   NodeState
	prevState               NodeState
	stateEntryCycle         uint64
	currentCycle            uint64
	clusterheadID           uint32
	clusterClass            uint16
	pdsf                    uint32
	candidacyScore          float64
	electionHash            uint32
	lastCandidateHeardCycle uint64
	bestHeard               heardCandidate

	neighbors *NeighborTable
	crowding  *CrowdingEstimator
	queue     *ForwardQueue
	evaluator *Evaluator
	cycle     *DiscoveryCycle

	noisySchedule      *Schedule
	stochasticSchedule *Schedule
	timingMode         TimingMode

	gps GPSLocation

	running       bool
	lastTickMs    int64
	droppedFrames uint64
	sendFailures  uint64
}

// NewEngine returns an uninitialized Engine. Call Init before Start/Tick.
func NewEngine() *Engine {
	return &Engine{}
}

// Init validates cfg and (re)initializes the engine's full internal state:
// a zeroed neighbor table, a fresh crowding estimator and forward queue, a
// stopped discovery cycle, and the Init -> Discovery state transition. Init
// validation is the only fatal outcome in the engine (spec §7): on error the
// engine is left unusable until Init succeeds.
func (e *Engine) Init(cfg Config) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	e.cfg = cfg

	// Per-engine deterministic seed derived from node id so that two
	// distinct engines, both left unseeded, do not draw identical
	// sequences; SeedRandom lets callers override for exact reproducibility.
	const seedMultiplier = 2654435761
	e.rng = NewRNG(uint64(cfg.NodeID) * seedMultiplier)

	e.neighbors = NewNeighborTable(DefaultDirectThresholdDBm)
	e.crowding = NewCrowdingEstimator(DefaultRSSIMaxAgeMs)
	e.queue = NewForwardQueue(cfg.NodeID, DefaultSeenCacheMaxAgeMs)
	e.evaluator = NewEvaluator(e.neighbors, e.crowding, DefaultElectionWeights(), DefaultElectionThresholds())
	e.cycle = NewDiscoveryCycle(cfg.SlotDurationMs)

	e.noisySchedule = NewNoisySchedule(DefaultNoisySlots, DefaultNoisyListenRatio, DefaultMaxRetries)
	e.stochasticSchedule = NewStochasticSchedule(
		DefaultStochasticSlots, DefaultStochasticListenRatio, DefaultMaxRetries,
		DefaultMinBroadcastCap, DefaultMaxBroadcastCap,
	)
	e.timingMode = TimingStochastic

	e.prevState = StateInit
	e.state = StateDiscovery
	e.stateEntryCycle = 0
	e.currentCycle = 0
	e.lastCandidateHeardCycle = 0
	e.clusterheadID = 0
	e.clusterClass = 0
	e.pdsf = 0
	e.candidacyScore = 0
	e.electionHash = NodeHash(cfg.NodeID)
	e.bestHeard = heardCandidate{}

	e.gps = GPSLocation{}
	e.running = false
	e.droppedFrames = 0
	e.sendFailures = 0

	return nil
}

// Start marks the engine running and resets the discovery cycle. Idempotent.
func (e *Engine) Start() {
	if e.running {
		return
	}
	e.running = true
	e.cycle.Start()
	e.noisySchedule.ResetCycle()
	e.stochasticSchedule.ResetCycle()
}

// Stop clears the running flag (spec §5: cooperative cancellation). Any
// future Tick becomes a no-op until Start is called again. Idempotent.
func (e *Engine) Stop() {
	e.running = false
	e.cycle.Stop()
}

// Running reports whether the engine is currently started.
func (e *Engine) Running() bool { return e.running }

// SetGPS updates the node's own GPS location. Idempotent for repeated
// identical calls.
func (e *Engine) SetGPS(x, y, z float64, valid bool) {
	e.gps = GPSLocation{X: x, Y: y, Z: z, Valid: valid}
}

// SetCrowding overrides the frozen crowding factor directly, bypassing the
// window machinery. Used by embedders that compute crowding externally.
func (e *Engine) SetCrowding(factor float64) {
	e.crowding.SetCrowding(factor)
}

// SetNoiseLevel selects the active broadcast schedule. At or above
// noiseLevelThreshold the engine measures crowding via the Noisy schedule;
// below it, the Stochastic schedule governs neighbor-facing broadcasts.
func (e *Engine) SetNoiseLevel(level float64) {
	if level >= noiseLevelThreshold {
		e.timingMode = TimingNoisy
		if !e.crowding.WindowActive() {
			e.crowding.OpenWindow(e.lastTickMs, noisyWindowDurationMs)
		}
		return
	}
	e.timingMode = TimingStochastic
}

// MarkCandidateHeard records that a candidate/clusterhead announcement was
// heard during the current cycle, for use by the candidacy cooldown.
func (e *Engine) MarkCandidateHeard() {
	e.lastCandidateHeardCycle = e.currentCycle
}

// SeedRandom reseeds the engine's deterministic RNG.
func (e *Engine) SeedRandom(seed uint64) {
	e.rng.Seed(seed)
}

// GetNodeSnapshot returns a read-only observability view of the node.
func (e *Engine) GetNodeSnapshot() NodeView {
	return NodeView{
		NodeID:            e.cfg.NodeID,
		State:             e.state,
		CycleCount:        e.cycle.CycleCount(),
		NeighborCount:     e.neighbors.Count(),
		DirectConnections: e.evaluator.DirectConnections(),
		AverageRSSI:       e.neighbors.AverageRSSI(),
		CrowdingFactor:    e.crowding.CalculateCrowding(),
		PDSF:              e.pdsf,
		CandidacyScore:    e.candidacyScore,
		MessagesForwarded: e.evaluator.MessagesForwarded(),
		MessagesReceived:  e.evaluator.MessagesReceived(),
		QueueLen:          e.queue.Len(),
		SeenCacheLen:      e.queue.SeenCount(),
		ClusterheadID:     e.clusterheadID,
		ClusterClass:      e.clusterClass,
		ElectionHash:      e.electionHash,
		DroppedFrames:     e.droppedFrames,
		SendFailures:      e.sendFailures,
	}
}

func (e *Engine) activeSchedule() *Schedule {
	if e.timingMode == TimingNoisy {
		return e.noisySchedule
	}
	return e.stochasticSchedule
}

// Tick drives the engine forward by exactly one slot, keyed to nowMs (spec
// §4.9). Ticks are indivisible: Tick starts no goroutines and returns only
// after every side effect of this slot (including any send callback
// invocation) has completed. A Tick on a stopped engine is a no-op.
func (e *Engine) Tick(nowMs int64) error {
	if !e.running {
		return nil
	}
	e.lastTickMs = nowMs

	e.crowding.CheckExpiry(nowMs)

	slot, wrapped := e.cycle.Advance()
	e.currentCycle = e.cycle.CycleCount()
	if wrapped {
		e.activeSchedule().ResetCycle()
	}

	if slot == SlotEmit {
		e.emit(nowMs)
	} else {
		e.drainOne()
	}

	if wrapped {
		e.evaluatePeriodic(nowMs)
	}

	if e.cfg.MetricsCallback != nil {
		e.cfg.MetricsCallback(e.cfg.UserContext, e.snapshotMetrics())
	}

	return nil
}

func (e *Engine) emit(nowMs int64) {
	sched := e.activeSchedule()
	action := sched.Advance(e.rng, e.crowding.CalculateCrowding())
	if action == ActionListen {
		return
	}

	var pkt Packet
	switch e.state {
	case StateClusterheadCandidate, StateClusterhead:
		pkt = e.buildElectionFrame()
	default:
		pkt = e.buildDiscoveryFrame()
	}

	e.sendPacket(&pkt, sched)
}

func (e *Engine) buildDiscoveryFrame() Packet {
	var pkt Packet
	pkt.MessageType = MessageDiscovery
	pkt.SenderID = e.cfg.NodeID
	pkt.TTL = e.cfg.InitialTTL
	pkt.AppendPath(e.cfg.NodeID)
	pkt.GPSAvailable = e.gps.Valid
	pkt.GPS = e.gps
	return pkt
}

func (e *Engine) buildElectionFrame() Packet {
	var pkt Packet
	pkt.MessageType = MessageElectionAnnouncement
	pkt.IsClusterhead = e.state == StateClusterhead
	pkt.SenderID = e.cfg.NodeID
	pkt.TTL = e.cfg.InitialTTL
	pkt.AppendPath(e.cfg.NodeID)
	pkt.GPSAvailable = e.gps.Valid
	pkt.GPS = e.gps
	pkt.ClassID = e.clusterClass
	pkt.DirectConnections = uint32(e.evaluator.DirectConnections())
	pkt.PDSF = 1
	pkt.Score = e.candidacyScore
	pkt.Hash = e.electionHash
	e.pdsf = 1
	return pkt
}

// sendPacket serializes pkt into a pooled buffer and invokes the send
// callback. Each failure is counted and recorded on the broadcast schedule;
// the send is re-attempted within the same Tick for as long as
// sched.RecordFailure permits another retry, after which the frame is
// dropped.
func (e *Engine) sendPacket(pkt *Packet, sched *Schedule) {
	bufPtr := BufferPool.Get().(*[]byte)
	buf := *bufPtr
	defer BufferPool.Put(bufPtr)

	n, err := Serialize(pkt, buf)
	if err != nil {
		e.logf(LogError, "serialize outgoing frame: %v", err)
		return
	}

	if e.cfg.SendCallback == nil {
		return
	}

	for {
		sendErr := e.cfg.SendCallback(e.cfg.UserContext, buf[:n])
		if sendErr == nil {
			sched.RecordSuccess()
			return
		}
		e.sendFailures++
		e.logf(LogWarn, "send callback failed: %v", sendErr)
		if !sched.RecordFailure() {
			return
		}
	}
}

func (e *Engine) drainOne() {
	pkt, ok := e.queue.Dequeue()
	if !ok {
		return
	}

	pkt.TTL--
	if pkt.TTL == 0 {
		e.droppedFrames++
		return
	}
	if !pkt.AppendPath(e.cfg.NodeID) {
		e.droppedFrames++
		return
	}

	// Restamp the carried GPS to this hop's own location: downstream nodes'
	// proximity filtering compares against the last forwarder's position
	// (LHGPS), not the originator's.
	pkt.GPSAvailable = e.gps.Valid
	pkt.GPS = e.gps

	if pkt.MessageType == MessageElectionAnnouncement {
		direct := uint32(e.evaluator.DirectConnections())
		alreadyReached := e.alreadyReachedCount(pkt)
		prevPi := replayPi(pkt.HistorySlice())
		newPDSF, _, unique := PDSFUpdate(pkt.PDSF, prevPi, direct, alreadyReached)
		pkt.PDSF = newPDSF
		pkt.AppendHistory(unique)
	}

	e.evaluator.RecordForwarded()
	e.sendPacket(pkt, e.activeSchedule())
}

// alreadyReachedCount estimates how many of this node's direct neighbors
// were already counted by a prior hop, approximated as direct neighbors
// whose id already appears in the frame's path (they necessarily already
// handled the message). Spec §4.8 does not define how a single hop
// observes "already counted by prior hops" in a distributed setting; this
// is the chosen, documented approximation (see DESIGN.md).
func (e *Engine) alreadyReachedCount(pkt *Packet) uint32 {
	var count uint32
	e.neighbors.ForEach(func(n *Neighbor) {
		if n.IsDirect && pkt.ContainsNode(n.NodeID) {
			count++
		}
	})
	return count
}

// replayPi reconstructs the running product term from a packet's recorded
// pdsf_history, since pi itself is not carried on the wire (spec §4.1 does
// not allocate a field for it). Replaying from the same seed (1) the
// accumulator itself uses reproduces the exact prior pi, saturation
// included.
func replayPi(history []uint32) uint32 {
	pi := uint32(1)
	for _, u := range history {
		pi = saturatingMulU32(pi, u)
	}
	return pi
}

// Receive parses an inbound frame, updates RSSI/neighbor state, and — if
// the forwarding filter admits it — enqueues it for later draining (spec
// §4.9 receive path). Parse failures increment the dropped counter and are
// returned to the caller; queue admission failures (Loop/Duplicate/
// Overflow) are also returned, matching spec §7's "local errors" policy.
func (e *Engine) Receive(frame []byte, rssiDbm int8, nowMs int64) error {
	if !e.running {
		return nil
	}

	var pkt Packet
	if err := Parse(frame, &pkt); err != nil {
		e.droppedFrames++
		e.logf(LogDebug, "parse inbound frame: %v", err)
		return err
	}

	e.crowding.AddSample(rssiDbm, nowMs)

	var lastHopGPS GPSLocation
	if pkt.GPSAvailable {
		lastHopGPS = pkt.GPS
	}

	if _, err := e.neighbors.Upsert(pkt.SenderID, lastHopGPS, rssiDbm, nowMs); err != nil {
		e.logf(LogWarn, "neighbor table: %v", err)
	}

	if pkt.MessageType == MessageElectionAnnouncement {
		// Resets the cooldown clock on any announcement heard, not only a
		// higher-scored one — stricter than §4.9's "no conflicting
		// higher-scored candidate heard" wording, but the cooldown itself is
		// an inferred mechanism (see DESIGN.md).
		e.lastCandidateHeardCycle = e.currentCycle
		if !e.bestHeard.valid || pkt.Score > e.bestHeard.score {
			e.bestHeard = heardCandidate{
				nodeID:        pkt.SenderID,
				score:         pkt.Score,
				pdsf:          pkt.PDSF,
				isClusterhead: pkt.IsClusterhead,
				valid:         true,
			}
		}
	}

	e.evaluator.RecordReceived()

	// Spec §8 boundary: a path already at MaxPathLen is rejected with
	// overflow regardless of TTL, independent of the §4.6 admission list.
	if pkt.PathLen >= MaxPathLen {
		e.droppedFrames++
		return ErrOverflow
	}

	admitted := ForwardAdmit(
		pkt.TTL, e.crowding.CalculateCrowding(), e.evaluator.DirectConnections(),
		lastHopGPS, e.gps, e.cfg.ProximityThresholdM, e.rng,
	)
	if !admitted {
		return nil
	}

	return e.queue.Enqueue(&pkt, nowMs)
}

func (e *Engine) shouldBecomeEdge() bool {
	return e.evaluator.DirectConnections() < minEdgeNeighbors
}

// transitionTowards applies the node-state transition table; it is a no-op
// returning false for a rejected transition (spec §7: silent no-op).
func (e *Engine) transitionTowards(target NodeState) bool {
	if e.state == target {
		return true
	}
	if !TryTransition(e.state, target) {
		return false
	}
	e.prevState = e.state
	e.state = target
	e.stateEntryCycle = e.currentCycle
	return true
}

// evaluatePeriodic runs once per completed cycle: queue/neighbor
// maintenance, the candidacy check, and the state transition policy (spec
// §4.9 step 5).
func (e *Engine) evaluatePeriodic(nowMs int64) {
	e.queue.PruneSeenCache(nowMs)
	e.neighbors.Prune(DefaultNeighborMaxAgeMs, nowMs)

	switch {
	case e.state == StateClusterhead:
		// A clusterhead only ever re-evaluates its own candidacy if it is
		// displaced by a higher-scored peer below; otherwise it holds.
		if e.bestHeard.valid && e.bestHeard.isClusterhead && e.bestHeard.score > e.candidacyScore {
			e.transitionTowards(StateClusterheadCandidate)
		}

	case e.evaluator.ShouldBecomeCandidate():
		e.candidacyScore = e.evaluator.CandidacyScore()
		if e.state != StateClusterheadCandidate {
			e.transitionTowards(StateClusterheadCandidate)
		}

		switch {
		case e.bestHeard.valid && e.bestHeard.score > e.candidacyScore:
			e.clusterheadID = e.bestHeard.nodeID
			e.transitionTowards(StateClusterMember)
		case e.currentCycle-e.stateEntryCycle >= candidateCooldownCycles &&
			e.currentCycle-e.lastCandidateHeardCycle >= candidateCooldownCycles:
			e.transitionTowards(StateClusterhead)
			e.pdsf = 1
		}

	case e.shouldBecomeEdge():
		e.transitionTowards(StateEdge)

	default:
		if e.bestHeard.valid && e.bestHeard.isClusterhead && e.bestHeard.score > e.candidacyScore {
			projected := saturatingAddU32(e.bestHeard.pdsf, uint32(e.evaluator.DirectConnections()))
			if projected <= maxClusterMembers {
				e.clusterheadID = e.bestHeard.nodeID
				e.transitionTowards(StateClusterMember)
			}
		}
	}

	e.bestHeard = heardCandidate{}
}

func (e *Engine) logf(level LogLevel, format string, args ...any) {
	if e.cfg.LogCallback == nil {
		return
	}
	e.cfg.LogCallback(e.cfg.UserContext, level, fmt.Sprintf(format, args...))
}

func (e *Engine) snapshotMetrics() ConnectivityMetrics {
	return ConnectivityMetrics{
		State:             e.state,
		CycleCount:        e.cycle.CycleCount(),
		NeighborCount:     e.neighbors.Count(),
		DirectConnections: e.evaluator.DirectConnections(),
		AverageRSSI:       e.neighbors.AverageRSSI(),
		CrowdingFactor:    e.crowding.CalculateCrowding(),
		PDSF:              e.pdsf,
		CandidacyScore:    e.candidacyScore,
		MessagesForwarded: e.evaluator.MessagesForwarded(),
		MessagesReceived:  e.evaluator.MessagesReceived(),
		QueueLen:          e.queue.Len(),
		SeenCacheLen:      e.queue.SeenCount(),
	}
}
