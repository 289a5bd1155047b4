package mesh

// MaxRSSISamples bounds the RSSI sample window (spec §3).
const MaxRSSISamples = 100

// DefaultRSSIMaxAgeMs is the default sample staleness bound.
const DefaultRSSIMaxAgeMs int64 = 10_000

// rssiCrowdingLowDBm and rssiCrowdingHighDBm bound the linear RSSI-to-
// crowding map (spec §3): mean RSSI at or below the low bound maps to 0.0,
// at or above the high bound maps to 1.0.
const (
	rssiCrowdingLowDBm  = -90.0
	rssiCrowdingHighDBm = -40.0
)

// rssiSample is one timestamped RSSI observation.
type rssiSample struct {
	rssi int8
	tsMs int64
}

// CrowdingEstimator tracks a time-windowed RSSI sample set and derives a
// crowding factor in [0, 1] summarizing local channel occupancy (spec §4.5).
type CrowdingEstimator struct {
	samples  [MaxRSSISamples]rssiSample
	count    int
	maxAgeMs int64

	windowActive     bool
	windowStartMs    int64
	windowDurationMs int64

	lastCrowdingFactor float64
}

// NewCrowdingEstimator constructs an estimator with no active window and a
// last-frozen crowding factor of 0 (spec §8: "Empty RSSI window: crowding
// returns last-frozen value (0.0 if never measured)").
func NewCrowdingEstimator(maxAgeMs int64) *CrowdingEstimator {
	return &CrowdingEstimator{maxAgeMs: maxAgeMs}
}

// OpenWindow begins a noisy window of durationMs starting at nowMs. While
// active, AddSample appends observations; CheckExpiry closes the window
// once it elapses.
func (c *CrowdingEstimator) OpenWindow(nowMs, durationMs int64) {
	c.windowActive = true
	c.windowStartMs = nowMs
	c.windowDurationMs = durationMs
}

// CloseWindow manually closes an active window, freezing last_crowding_factor
// from the samples currently held. A no-op if no window is active.
func (c *CrowdingEstimator) CloseWindow() {
	if !c.windowActive {
		return
	}
	c.freeze()
	c.windowActive = false
}

// CheckExpiry closes the window if nowMs has reached its scheduled end.
// Intended to be called once per engine Tick (spec §4.9 step 1).
func (c *CrowdingEstimator) CheckExpiry(nowMs int64) {
	if c.windowActive && nowMs >= c.windowStartMs+c.windowDurationMs {
		c.freeze()
		c.windowActive = false
	}
}

// WindowActive reports whether a noisy window is currently open.
func (c *CrowdingEstimator) WindowActive() bool { return c.windowActive }

// SampleCount returns the number of samples currently held.
func (c *CrowdingEstimator) SampleCount() int { return c.count }

// AddSample appends an RSSI observation at nowMs. Samples older than
// maxAgeMs are evicted first. Outside an active window, the sample is
// ignored (spec §4.5: "Outside an active window, new samples are ignored").
func (c *CrowdingEstimator) AddSample(rssi int8, nowMs int64) {
	if !c.windowActive {
		return
	}
	c.evictOld(nowMs)

	if c.count >= MaxRSSISamples {
		copy(c.samples[:MaxRSSISamples-1], c.samples[1:MaxRSSISamples])
		c.count = MaxRSSISamples - 1
	}
	c.samples[c.count] = rssiSample{rssi: rssi, tsMs: nowMs}
	c.count++
}

// evictOld compacts the sample set in place, dropping entries older than
// maxAgeMs relative to nowMs.
func (c *CrowdingEstimator) evictOld(nowMs int64) {
	w := 0
	for r := 0; r < c.count; r++ {
		if nowMs-c.samples[r].tsMs <= c.maxAgeMs {
			c.samples[w] = c.samples[r]
			w++
		}
	}
	c.count = w
}

// mean returns the arithmetic mean RSSI of all held samples, and false if
// there are none.
func (c *CrowdingEstimator) mean() (float64, bool) {
	if c.count == 0 {
		return 0, false
	}
	var sum float64
	for i := 0; i < c.count; i++ {
		sum += float64(c.samples[i].rssi)
	}
	return sum / float64(c.count), true
}

// freeze maps the current sample mean to last_crowding_factor. If there are
// no samples, last_crowding_factor is left unchanged.
func (c *CrowdingEstimator) freeze() {
	mean, ok := c.mean()
	if !ok {
		return
	}
	c.lastCrowdingFactor = mapRSSIToCrowding(mean)
}

// mapRSSIToCrowding applies the piecewise-linear RSSI-to-crowding rule from
// spec §3.
func mapRSSIToCrowding(meanRSSI float64) float64 {
	if meanRSSI <= rssiCrowdingLowDBm {
		return 0.0
	}
	if meanRSSI >= rssiCrowdingHighDBm {
		return 1.0
	}
	return (meanRSSI - rssiCrowdingLowDBm) / (rssiCrowdingHighDBm - rssiCrowdingLowDBm)
}

// CalculateCrowding returns the live mapped mean while the window is active
// and non-empty, or the last frozen value otherwise.
func (c *CrowdingEstimator) CalculateCrowding() float64 {
	if c.windowActive {
		if mean, ok := c.mean(); ok {
			return mapRSSIToCrowding(mean)
		}
	}
	return c.lastCrowdingFactor
}

// SetCrowding overrides last_crowding_factor directly, bypassing window
// logic. Used by the engine's external set_crowding operation (spec §6).
func (c *CrowdingEstimator) SetCrowding(factor float64) {
	c.lastCrowdingFactor = clamp01(factor)
}
