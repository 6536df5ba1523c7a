// ABOUTME: Resolution tiers shared by the cache and the persistent store
// ABOUTME: Any zoom at or above MinTier is answered from its power-of-two tier
package peaks

import "math"

const (
	// MinTier is the finest tier worth caching; below it requests are
	// reduced directly
	MinTier = 16

	// BlockPeaks is the number of tier peaks held by one cache block
	BlockPeaks = 4096
)

// Tier returns the largest power of two not above fpp, and at least 1
func Tier(fpp float64) int64 {
	if fpp < 2 {
		return 1
	}
	t := int64(1)
	for float64(t*2) <= fpp && t < 1<<40 {
		t *= 2
	}
	return t
}

// tierIndex snaps a fractional frame position to the nearest tier boundary
func tierIndex(frame float64, tier int64) int64 {
	return int64(math.Round(frame / float64(tier)))
}

// tierSpan returns the tier peaks [i, j) that make up column k. Both ends
// derive from k, so boundaries never drift. last is one past the final
// tier peak of the source; a column reaching the end of the source takes
// every remaining tier peak so nothing past its last boundary is lost.
func tierSpan(start, end int64, fpp float64, tier int64, k int, frames, last int64) (int64, int64) {
	lo := float64(start) + float64(k)*fpp
	hi := math.Min(float64(start)+float64(k+1)*fpp, float64(end))

	i := min(tierIndex(lo, tier), last-1)
	j := tierIndex(hi, tier)
	if frames >= 0 && hi >= float64(frames) {
		j = last
	}
	j = min(max(j, i+1), last)
	return i, j
}
