package database

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a face record does not exist
	ErrNotFound = errors.New("face record not found")
	// ErrEmptyName is returned when a record has no display name
	ErrEmptyName = errors.New("face name is required")
	// ErrEmptyImage is returned when a record has no encoded face image
	ErrEmptyImage = errors.New("face image is required")
)

// FaceRecord is an enrolled face: a display name and the cropped face image
// (base64 JPEG). Embedding caches the vector computed at enrollment; the
// gallery always recomputes it from the image.
type FaceRecord struct {
	ID        int64
	Name      string
	Image     string
	Embedding []float32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the fields required for a record to be usable for matching.
func (r *FaceRecord) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyName
	}
	if r.Image == "" {
		return ErrEmptyImage
	}
	return nil
}

// SimilarFace is a stored face returned by a similarity search
type SimilarFace struct {
	FaceRecord
	Distance float64
}
