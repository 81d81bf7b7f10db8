// Package constants holds the tunables shared by the recognition packages,
// the HTTP API and the commands.
package constants

import "time"

// Embedding model constants
const (
	// EmbeddingDim is the length of the vector produced by the face embedding model
	EmbeddingDim = 192

	// EmbeddingInputSize is the square input edge (pixels) expected by the embedding model
	EmbeddingInputSize = 112

	// PixelScale is the divisor used to normalize 8-bit channels into [0,1]
	PixelScale = 255.0
)

// Face matching constants
const (
	// DefaultMatchThreshold is the strict upper bound on Euclidean distance for a match.
	// A distance equal to the threshold is a no-match.
	DefaultMatchThreshold = 1.0

	// DefaultMinDetectionScore drops detector boxes with a lower confidence
	DefaultMinDetectionScore = 0.5
)

// Gallery index constants
const (
	// HNSWMinEntries is the gallery size from which the approximate index is built
	HNSWMinEntries = 256

	// HNSWCandidates is the number of approximate neighbours that bound the exact scan
	HNSWCandidates = 32
)

// Frame source constants
const (
	// DefaultPollDelay is the pause between processed frames of a polled source
	DefaultPollDelay = 500 * time.Millisecond

	// ProbeTimeout bounds the reachability check of a remote camera
	ProbeTimeout = 5 * time.Second

	// UnchangedFrameDistance is the max dHash Hamming distance for two frames to be the same
	UnchangedFrameDistance = 2
)

// Processing constants
const (
	// WorkerPoolSize is the default number of parallel workers for bulk enrollment
	WorkerPoolSize = 4

	// EnrollmentJPEGQuality is the JPEG quality of stored face crops
	EnrollmentJPEGQuality = 95

	// AnnotatedJPEGQuality is the JPEG quality of annotated frames served over HTTP
	AnnotatedJPEGQuality = 85

	// MaxImageSize is the maximum dimension (width or height) accepted for enrollment photos
	MaxImageSize = 1920
)

// API constants
const (
	// MaxUploadSize limits multipart image uploads (20MB)
	MaxUploadSize = 20 << 20

	// MaxSummaryDocumentSize limits documents sent for summarization (1MB)
	MaxSummaryDocumentSize = 1 << 20

	// DefaultSimilarLimit is the number of faces returned by a similarity search
	DefaultSimilarLimit = 5

	// EventChannelBuffer is the per-listener buffer of frame and announcement feeds
	EventChannelBuffer = 100
)
