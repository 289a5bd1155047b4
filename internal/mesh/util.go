package mesh

// clamp01 clamps x to the closed interval [0, 1].
func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

// lerp linearly interpolates between a and b at fraction t (not itself
// clamped; callers clamp t beforehand when needed).
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// saturatingAddU32 adds b to a, clamping the result to math.MaxUint32
// instead of wrapping. Used by the PDSF accumulator (spec §4.8).
func saturatingAddU32(a, b uint32) uint32 {
	sum := uint64(a) + uint64(b)
	if sum > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(sum)
}

// saturatingMulU32 multiplies a by b, clamping the result to
// math.MaxUint32 instead of wrapping. Used by the PDSF product term.
func saturatingMulU32(a, b uint32) uint32 {
	product := uint64(a) * uint64(b)
	if product > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(product)
}
