package mesh

// -------------------------------------------------------------------------
// Deterministic RNG
// -------------------------------------------------------------------------

// rngMultiplier and rngIncrement are the classic Knuth/PCG 64-bit LCG
// constants. Per spec §9, the forwarding RNG (and, here, the broadcast
// timing RNG that shares it) lives on the engine instance rather than as
// process-global state, so that two engines seeded identically produce
// identical sequences regardless of what else is running in the process.
const (
	rngMultiplier uint64 = 6364136223846793005
	rngIncrement  uint64 = 1442695040888963407
)

// RNG is a minimal deterministic linear congruential generator. It is not
// cryptographically secure and is not meant to be: spec §4.8 notes the FNV
// hash and §4.4/§9 both call for reproducible, non-adversarial randomness
// only.
type RNG struct {
	state uint64
}

// NewRNG constructs an RNG seeded with seed. A zero seed is valid input; the
// LCG's additive increment keeps the first draw from being degenerate.
func NewRNG(seed uint64) *RNG {
	return &RNG{state: seed}
}

// Seed reseeds the generator, discarding any prior state.
func (r *RNG) Seed(seed uint64) { r.state = seed }

func (r *RNG) next() uint64 {
	r.state = r.state*rngMultiplier + rngIncrement
	return r.state
}

// Float64 returns a uniform value in [0, 1).
func (r *RNG) Float64() float64 {
	return float64(r.next()>>11) / float64(uint64(1)<<53)
}

// -------------------------------------------------------------------------
// Broadcast timing
// -------------------------------------------------------------------------

// TimingMode selects between the Noisy and Stochastic broadcast schedules
// (spec §4.4).
type TimingMode uint8

const (
	// TimingNoisy is the phase used during crowding measurement.
	TimingNoisy TimingMode = iota
	// TimingStochastic is the neighbor-facing phase.
	TimingStochastic
)

// BroadcastAction is the outcome of one Schedule.Advance call.
type BroadcastAction uint8

const (
	// ActionListen means this slot must not transmit.
	ActionListen BroadcastAction = iota
	// ActionBroadcast means this slot may transmit.
	ActionBroadcast
)

// Defaults per spec §4.4 and reasonable values for fields spec.md leaves
// unparameterized beyond "bounded by max_retries (default 3)".
const (
	DefaultNoisyListenRatio      = 0.8
	DefaultNoisySlots            = 10
	DefaultStochasticListenRatio = 0.8
	DefaultStochasticSlots       = 20
	DefaultMaxRetries            = 3
	DefaultMinBroadcastCap       = 1
	DefaultMaxBroadcastCap       = 4
)

// Schedule implements one of the two broadcast-timing phases. Both phases
// share the same retry/success/failure bookkeeping; only the cap behavior
// on ActionBroadcast differs (Stochastic caps broadcasts-per-cycle as a
// function of crowding; Noisy does not cap at all).
type Schedule struct {
	mode        TimingMode
	numSlots    int
	listenRatio float64
	maxRetries  int
	retryCount  int

	successCount uint64
	failureCount uint64

	broadcastsThisCycle int
	minBroadcastCap     int
	maxBroadcastCap     int
}

// NewNoisySchedule constructs the Noisy phase schedule.
func NewNoisySchedule(numSlots int, listenRatio float64, maxRetries int) *Schedule {
	return &Schedule{
		mode:        TimingNoisy,
		numSlots:    numSlots,
		listenRatio: listenRatio,
		maxRetries:  maxRetries,
	}
}

// NewStochasticSchedule constructs the Stochastic phase schedule. minCap and
// maxCap bound the linearly-crowding-derived broadcasts-per-cycle cap.
func NewStochasticSchedule(numSlots int, listenRatio float64, maxRetries, minCap, maxCap int) *Schedule {
	return &Schedule{
		mode:            TimingStochastic,
		numSlots:        numSlots,
		listenRatio:     listenRatio,
		maxRetries:      maxRetries,
		minBroadcastCap: minCap,
		maxBroadcastCap: maxCap,
	}
}

// Mode returns which phase this schedule implements.
func (s *Schedule) Mode() TimingMode { return s.mode }

// NumSlots returns the configured number of slots for this phase.
func (s *Schedule) NumSlots() int { return s.numSlots }

// ResetCycle clears the per-cycle broadcast counter used by the Stochastic
// cap. Callers invoke this once per discovery-cycle wrap.
func (s *Schedule) ResetCycle() { s.broadcastsThisCycle = 0 }

// Advance draws a uniform sample from rng and returns whether this slot
// should broadcast or listen. crowding (already clamped to [0,1] by the
// caller) only affects the Stochastic cap; Noisy ignores it.
func (s *Schedule) Advance(rng *RNG, crowding float64) BroadcastAction {
	u := rng.Float64()
	action := ActionListen
	if u >= s.listenRatio {
		action = ActionBroadcast
	}

	if action == ActionBroadcast && s.mode == TimingStochastic {
		if s.broadcastsThisCycle >= s.broadcastCap(crowding) {
			return ActionListen
		}
	}

	if action == ActionBroadcast {
		s.broadcastsThisCycle++
	}
	return action
}

// broadcastCap linearly decreases from maxBroadcastCap at crowding 0 to
// minBroadcastCap at crowding 1.
func (s *Schedule) broadcastCap(crowding float64) int {
	c := clamp01(crowding)
	span := float64(s.maxBroadcastCap - s.minBroadcastCap)
	capF := float64(s.maxBroadcastCap) - span*c
	capInt := int(capF)
	if capInt < s.minBroadcastCap {
		capInt = s.minBroadcastCap
	}
	return capInt
}

// RecordSuccess resets the retry counter and bumps the success counter.
func (s *Schedule) RecordSuccess() {
	s.retryCount = 0
	s.successCount++
}

// RecordFailure increments the failure counter and the retry counter, and
// reports whether another retry attempt is still allowed. Callers must not
// retry once this returns false.
func (s *Schedule) RecordFailure() bool {
	s.failureCount++
	s.retryCount++
	return s.retryCount <= s.maxRetries
}

// Successes returns the cumulative success count.
func (s *Schedule) Successes() uint64 { return s.successCount }

// Failures returns the cumulative failure count.
func (s *Schedule) Failures() uint64 { return s.failureCount }

// RetryCount returns the current consecutive-failure retry count.
func (s *Schedule) RetryCount() int { return s.retryCount }
