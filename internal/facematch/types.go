// Package facematch provides the face matching primitives shared by the gallery,
// the recognition pipeline and the web handlers.
package facematch

// Entry is one known face: a display name paired with its embedding.
type Entry struct {
	RecordID  int64
	Name      string
	Embedding []float32
}

// MatchResult is the outcome of a nearest-neighbour search.
type MatchResult struct {
	Name     string  // empty when no match
	RecordID int64   // zero when no match
	Distance float64 // best distance seen, +Inf for an empty gallery
	Matched  bool
	Index    int // position of the nearest entry, -1 when none was comparable
	Skipped  int // entries excluded because of a dimension mismatch
}
