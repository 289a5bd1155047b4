package mesh

import (
	"encoding/binary"
	"math"
)

// Default election score weights (spec §4.8), summing to 1.0.
const (
	DefaultWeightDirect = 0.35
	DefaultWeightCN     = 0.30
	DefaultWeightGeo    = 0.20
	DefaultWeightFwd    = 0.15
)

// Default candidacy thresholds (spec §4.8).
const (
	DefaultMinNeighbors = 10
	DefaultMinCNRatio   = 5.0
	DefaultMinGeoDist   = 0.3
)

// geoNormalizerMeters is the fixed geographic-distribution normalizer.
// Spec §9 explicitly calls this out as a named constant, not something to
// derive dynamically.
const geoNormalizerMeters = 100.0

// FNV-1a offset basis and prime, per spec §4.8's hash definition.
const (
	fnvOffsetBasis uint32 = 2166136261
	fnvPrime       uint32 = 16777619
)

// ElectionWeights are the score weights applied to each normalized input.
type ElectionWeights struct {
	Direct float64
	CN     float64
	Geo    float64
	Fwd    float64
}

// DefaultElectionWeights returns the spec §4.8 defaults.
func DefaultElectionWeights() ElectionWeights {
	return ElectionWeights{
		Direct: DefaultWeightDirect,
		CN:     DefaultWeightCN,
		Geo:    DefaultWeightGeo,
		Fwd:    DefaultWeightFwd,
	}
}

// ElectionThresholds gate candidacy eligibility.
type ElectionThresholds struct {
	MinNeighbors int
	MinCNRatio   float64
	MinGeoDist   float64
}

// DefaultElectionThresholds returns the spec §4.8 defaults.
func DefaultElectionThresholds() ElectionThresholds {
	return ElectionThresholds{
		MinNeighbors: DefaultMinNeighbors,
		MinCNRatio:   DefaultMinCNRatio,
		MinGeoDist:   DefaultMinGeoDist,
	}
}

// Evaluator computes clusterhead candidacy metrics over a shared neighbor
// table and crowding estimator (spec §4.8). It holds its own forwarded/
// received counters; neighbor and RSSI state are owned elsewhere and only
// read here.
type Evaluator struct {
	neighbors  *NeighborTable
	crowding   *CrowdingEstimator
	weights    ElectionWeights
	thresholds ElectionThresholds

	messagesForwarded uint64
	messagesReceived  uint64
}

// NewEvaluator constructs an Evaluator over the given shared neighbor table
// and crowding estimator.
func NewEvaluator(neighbors *NeighborTable, crowding *CrowdingEstimator, weights ElectionWeights, thresholds ElectionThresholds) *Evaluator {
	return &Evaluator{neighbors: neighbors, crowding: crowding, weights: weights, thresholds: thresholds}
}

// RecordForwarded increments the forwarded-message counter.
func (e *Evaluator) RecordForwarded() { e.messagesForwarded++ }

// RecordReceived increments the received-message counter.
func (e *Evaluator) RecordReceived() { e.messagesReceived++ }

// MessagesForwarded returns the cumulative forwarded-message count.
func (e *Evaluator) MessagesForwarded() uint64 { return e.messagesForwarded }

// MessagesReceived returns the cumulative received-message count.
func (e *Evaluator) MessagesReceived() uint64 { return e.messagesReceived }

// DirectConnections returns the current direct-neighbor count.
func (e *Evaluator) DirectConnections() int { return e.neighbors.DirectCount() }

// CrowdingFactor returns the current crowding-estimator output.
func (e *Evaluator) CrowdingFactor() float64 { return e.crowding.CalculateCrowding() }

// ConnectionNoiseRatio returns direct_connections / (1 + crowding_factor).
func (e *Evaluator) ConnectionNoiseRatio() float64 {
	return float64(e.DirectConnections()) / (1.0 + e.CrowdingFactor())
}

// GeographicDistribution returns 0 when fewer than 2 neighbors carry valid
// GPS; otherwise the sample standard deviation of neighbor distances from
// their centroid, normalized by geoNormalizerMeters and clamped to [0,1].
func (e *Evaluator) GeographicDistribution() float64 {
	var sumX, sumY, sumZ float64
	n := 0
	e.neighbors.ForEach(func(nb *Neighbor) {
		if nb.GPS.Valid {
			sumX += nb.GPS.X
			sumY += nb.GPS.Y
			sumZ += nb.GPS.Z
			n++
		}
	})
	if n < 2 {
		return 0
	}

	cx, cy, cz := sumX/float64(n), sumY/float64(n), sumZ/float64(n)
	centroid := GPSLocation{X: cx, Y: cy, Z: cz, Valid: true}

	var sumSquares float64
	e.neighbors.ForEach(func(nb *Neighbor) {
		if nb.GPS.Valid {
			d := nb.GPS.Distance(centroid)
			sumSquares += d * d
		}
	})

	variance := sumSquares / float64(n-1)
	stdDev := math.Sqrt(variance)
	return clamp01(stdDev / geoNormalizerMeters)
}

// ForwardingSuccessRate returns messages_forwarded / messages_received, or 0
// when no messages have been received.
func (e *Evaluator) ForwardingSuccessRate() float64 {
	if e.messagesReceived == 0 {
		return 0
	}
	return float64(e.messagesForwarded) / float64(e.messagesReceived)
}

// CandidacyScore computes the weighted candidacy score (spec §4.8),
// clamped to [0, 1].
func (e *Evaluator) CandidacyScore() float64 {
	direct := float64(e.DirectConnections())
	cn := e.ConnectionNoiseRatio()
	geo := e.GeographicDistribution()
	fwd := e.ForwardingSuccessRate()

	score := e.weights.Direct*math.Min(1, direct/30) +
		e.weights.CN*math.Min(1, cn/10) +
		e.weights.Geo*geo +
		e.weights.Fwd*fwd
	return clamp01(score)
}

// ShouldBecomeCandidate implements the candidacy predicate (spec §4.8): all
// of direct_connections >= min_neighbors and connection_noise_ratio >=
// min_cn_ratio must hold; additionally, once 2 or more neighbors are known,
// geographic_distribution >= min_geo_dist must also hold. This is a pure
// predicate; callers that get true are responsible for setting is_candidate
// and recording the current CandidacyScore themselves.
func (e *Evaluator) ShouldBecomeCandidate() bool {
	direct := e.DirectConnections()
	if direct < e.thresholds.MinNeighbors {
		return false
	}
	if e.ConnectionNoiseRatio() < e.thresholds.MinCNRatio {
		return false
	}
	if e.neighbors.Count() >= 2 && e.GeographicDistribution() < e.thresholds.MinGeoDist {
		return false
	}
	return true
}

// -------------------------------------------------------------------------
// PDSF accumulator
// -------------------------------------------------------------------------

// PDSFUpdate computes one hop's contribution to the predicted-devices-so-far
// aggregate, using the product-of-sums-with-running-pi formula from spec
// §4.8/§9 (the simpler "baseline + baseline*direct" legacy form described in
// the same section is deliberately not implemented here; see DESIGN.md).
//
// already_reached is clamped to direct before use. unique is the per-hop
// unique-neighbor contribution (direct - already_reached after clamping);
// pi is this hop's running product term (prevPi * unique, saturating); pdsf
// is the updated aggregate (prevPDSF + pi, saturating). Both pdsf and pi
// saturate at math.MaxUint32.
func PDSFUpdate(prevPDSF, prevPi, direct, alreadyReached uint32) (pdsf, pi, unique uint32) {
	if alreadyReached > direct {
		alreadyReached = direct
	}
	unique = direct - alreadyReached
	pi = saturatingMulU32(prevPi, unique)
	pdsf = saturatingAddU32(prevPDSF, pi)
	return pdsf, pi, unique
}

// -------------------------------------------------------------------------
// Slot-assignment hash
// -------------------------------------------------------------------------

// NodeHash computes the FNV-1a variant hash over the little-endian bytes of
// nodeID (spec §4.8): deterministic, used only as a tie-break/slot index,
// never for security.
func NodeHash(nodeID uint32) uint32 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], nodeID)

	h := fnvOffsetBasis
	for _, c := range b {
		h ^= uint32(c)
		h *= fnvPrime
	}
	return h
}
