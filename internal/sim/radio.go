package sim

import (
	"math"
	"math/rand/v2"
)

// RSSI parameters, grounded on the simple indoor path-loss model used for
// BLE/802.15.4-class radios: RSSI equals txPowerDbm at referenceRangeMeters
// and falls by 10*pathLossExponent dB per decade of distance beyond it.
// rssiInvalid marks an RSSI that does not fit in an int8.
const (
	rssiInvalid          = int8(-128)
	txPowerDbm           = 0.0
	pathLossExponent     = 3.5
	referenceRangeMeters = 30.0
)

// Position is a node's location in the simulated plane.
type Position struct {
	X, Y float64
}

// Distance returns the Euclidean distance in meters between two positions.
func (p Position) Distance(other Position) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// radioModel computes received signal strength between two simulated
// positions and advances node positions under an optional bounded
// random-walk mobility model.
//
// Grounded on the indoor path-loss computation in the reference radio
// model (distance normalized to a reference range, log-distance loss,
// rounded and clamped to an int8 RSSI), adapted here for a 2-D plane
// instead of a 3-D radio-range disc.
type radioModel struct {
	areaWidth, areaHeight float64
	mobility              MobilityConfig
	rng                   *rand.Rand
}

// MobilityConfig controls the bounded random-walk mobility model.
type MobilityConfig struct {
	Enabled  bool
	MaxStepM float64
}

func newRadioModel(areaWidth, areaHeight float64, mobility MobilityConfig, seed uint64) *radioModel {
	return &radioModel{
		areaWidth:  areaWidth,
		areaHeight: areaHeight,
		mobility:   mobility,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// randomPosition returns a uniformly random position within the configured
// area bounds.
func (r *radioModel) randomPosition() Position {
	return Position{
		X: r.rng.Float64() * r.areaWidth,
		Y: r.rng.Float64() * r.areaHeight,
	}
}

// step applies one tick of bounded random-walk mobility to pos, clamping
// the result to the area bounds. A no-op when mobility is disabled.
func (r *radioModel) step(pos Position) Position {
	if !r.mobility.Enabled {
		return pos
	}
	dx := (r.rng.Float64()*2 - 1) * r.mobility.MaxStepM
	dy := (r.rng.Float64()*2 - 1) * r.mobility.MaxStepM

	next := Position{X: pos.X + dx, Y: pos.Y + dy}
	next.X = clamp(next.X, 0, r.areaWidth)
	next.Y = clamp(next.Y, 0, r.areaHeight)
	return next
}

// rssiBetween computes the simulated RSSI in dBm a receiver at rx would
// observe from a transmitter at tx, using a log-distance path loss model.
// Returns rssiInvalid only when the rounded RSSI falls outside the int8
// range; there is no separate usable-range cutoff.
func rssiBetween(tx, rx Position) int8 {
	dist := tx.Distance(rx)
	if dist < 1.0 {
		dist = 1.0
	}

	pathLoss := 10 * pathLossExponent * math.Log10(dist/referenceRangeMeters)
	rssi := txPowerDbm - pathLoss

	rounded := math.Round(rssi)
	if rounded < float64(rssiInvalid) || rounded > 127 {
		return rssiInvalid
	}
	return int8(rounded)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
