package mesh

// SlotsPerCycle is the fixed number of slots in a discovery cycle (spec §4.3).
const SlotsPerCycle = 4

// DefaultSlotDurationMs is the default configured slot duration. The engine
// never measures wall-clock time against this value itself (spec §9: "the
// discovery cycle does not require timer threads; it is purely a counter
// advanced by the caller's tick"); it exists so callers/tests can document
// and reason about expected cadence.
const DefaultSlotDurationMs uint32 = 100

// Slot identifies a position within a discovery cycle.
type Slot uint8

const (
	// SlotEmit is slot 0: emit the node's own discovery or election frame.
	SlotEmit Slot = 0
	// SlotDrain1 is slot 1: drain one forward-queue entry if present.
	SlotDrain1 Slot = 1
	// SlotDrain2 is slot 2: drain one forward-queue entry if present.
	SlotDrain2 Slot = 2
	// SlotDrain3 is slot 3: drain one forward-queue entry if present.
	SlotDrain3 Slot = 3
)

// SlotCallback is invoked after Advance moves to a new slot.
type SlotCallback func(slot Slot)

// CycleCompleteCallback is invoked after Advance wraps back to SlotEmit.
type CycleCompleteCallback func(cycleCount uint64)

// DiscoveryCycle is the 4-slot rotation driving per-tick dispatch. It holds
// no clock: Advance is called once per engine Tick and moves the cycle
// forward by exactly one slot, strictly monotonically.
type DiscoveryCycle struct {
	slotDurationMs  uint32
	running         bool
	slot            Slot
	cycleCount      uint64
	seenFirstEmit   bool
	onSlot          SlotCallback
	onCycleComplete CycleCompleteCallback
}

// NewDiscoveryCycle constructs a stopped cycle with the given slot duration.
func NewDiscoveryCycle(slotDurationMs uint32) *DiscoveryCycle {
	return &DiscoveryCycle{slotDurationMs: slotDurationMs}
}

// SetSlotDuration changes the documented slot duration. It only succeeds
// while the cycle is stopped, per spec §4.3.
func (c *DiscoveryCycle) SetSlotDuration(ms uint32) bool {
	if c.running {
		return false
	}
	c.slotDurationMs = ms
	return true
}

// SlotDurationMs returns the configured slot duration.
func (c *DiscoveryCycle) SlotDurationMs() uint32 { return c.slotDurationMs }

// SetCallbacks installs the optional per-slot and cycle-complete callbacks.
func (c *DiscoveryCycle) SetCallbacks(onSlot SlotCallback, onCycleComplete CycleCompleteCallback) {
	c.onSlot = onSlot
	c.onCycleComplete = onCycleComplete
}

// Start resets the cycle and marks it running. The cycle is positioned one
// slot before SlotEmit so that the very first Advance call lands on slot 0,
// matching the engine's "slot 0 emits" contract from tick one. That first
// landing on SlotEmit is not a completed cycle, so seenFirstEmit suppresses
// it from the wrap signal Advance reports.
func (c *DiscoveryCycle) Start() {
	c.running = true
	c.slot = SlotDrain3
	c.cycleCount = 0
	c.seenFirstEmit = false
}

// Stop clears the running flag. A stopped cycle's Advance is a no-op.
func (c *DiscoveryCycle) Stop() { c.running = false }

// Running reports whether the cycle currently advances on Advance calls.
func (c *DiscoveryCycle) Running() bool { return c.running }

// CurrentSlot returns the current slot.
func (c *DiscoveryCycle) CurrentSlot() Slot { return c.slot }

// CycleCount returns the number of fully completed cycles.
func (c *DiscoveryCycle) CycleCount() uint64 { return c.cycleCount }

// Advance moves the cycle forward by exactly one slot: slot = (slot+1) mod
// SlotsPerCycle. cycleCount increments when a full rotation has completed,
// i.e. on every landing on SlotEmit after the first — the first landing
// only marks the start of the initial cycle, not the end of one. It is a
// no-op, returning the unchanged current slot and false, when the cycle is
// stopped.
func (c *DiscoveryCycle) Advance() (Slot, bool) {
	if !c.running {
		return c.slot, false
	}
	c.slot = Slot((uint8(c.slot) + 1) % SlotsPerCycle)

	var wrapped bool
	if c.slot == SlotEmit {
		wrapped = c.seenFirstEmit
		c.seenFirstEmit = true
	}

	if c.onSlot != nil {
		c.onSlot(c.slot)
	}
	if wrapped {
		c.cycleCount++
		if c.onCycleComplete != nil {
			c.onCycleComplete(c.cycleCount)
		}
	}
	return c.slot, wrapped
}
