package facematch

import (
	"fmt"
	"math"
)

// DimensionMismatchError reports vectors of different lengths. On a gallery
// entry it signals corrupted data; the entry is excluded from the comparison.
type DimensionMismatchError struct {
	Probe int
	Entry int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: probe has %d, entry has %d", e.Probe, e.Entry)
}

// EuclideanDistance returns the L2 distance between two embeddings.
func EuclideanDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{Probe: len(a), Entry: len(b)}
	}

	sum, _ := squaredDistanceWithin(a, b, math.Inf(1))
	return math.Sqrt(sum), nil
}

// squaredDistanceWithin accumulates the squared L2 distance of equally long
// vectors and gives up once it exceeds limit.
func squaredDistanceWithin(a, b []float32, limit float64) (float64, bool) {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
		if sum > limit {
			return sum, false
		}
	}
	return sum, true
}
