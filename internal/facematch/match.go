package facematch

import (
	"fmt"
	"math"
)

// Match finds the entry nearest to probe. Ties keep the earliest entry. The
// result is a match only when the best distance is strictly below threshold;
// otherwise the best distance is still reported.
func Match(probe []float32, entries []Entry, threshold float64) MatchResult {
	return MatchWithin(probe, entries, threshold, math.Inf(1))
}

// MatchWithin is Match with a known upper bound on the nearest distance,
// usually the distance to one of the entries. Entries proven farther than
// the best distance so far are abandoned part way through. The result is the
// same as Match as long as some entry lies within bound.
func MatchWithin(probe []float32, entries []Entry, threshold, bound float64) MatchResult {
	result := MatchResult{Distance: math.Inf(1), Index: -1}
	if len(entries) == 0 {
		return result
	}

	// Squared limit with slack for the rounding of a bound that went through Sqrt.
	limit := bound * bound * (1 + 1e-9)
	for i := range entries {
		emb := entries[i].Embedding
		if len(emb) != len(probe) {
			result.Skipped++
			continue
		}
		sum, ok := squaredDistanceWithin(probe, emb, limit)
		if !ok {
			continue
		}
		if d := math.Sqrt(sum); d < result.Distance {
			result.Distance = d
			result.Index = i
			limit = sum
		}
	}

	if result.Index >= 0 && result.Distance < threshold {
		best := entries[result.Index]
		result.Matched = true
		result.Name = best.Name
		result.RecordID = best.RecordID
	}
	return result
}

// Confidence converts a distance into the percentage shown next to a match:
// (1 - distance) * 100, rounded down to two decimals. It is presentation only
// and plays no part in the match decision.
func Confidence(distance float64) float64 {
	// The epsilon absorbs float noise such as 69.99999999999999 for a 0.3 distance.
	return math.Floor((1-distance)*100*100+1e-6) / 100
}

// Label is the human-readable text for a recognized face.
func Label(name string, distance float64) string {
	return fmt.Sprintf("%s (confidence %.2f%%)", name, Confidence(distance))
}
