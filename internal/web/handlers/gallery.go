package handlers

import (
	"net/http"
	"time"

	"github.com/kozaktomas/vision-assist/internal/gallery"
)

// SnapshotSource returns the current gallery snapshot.
type SnapshotSource interface {
	Load() *gallery.Snapshot
}

// GalleryHandler reports the state of the in-memory gallery
type GalleryHandler struct {
	gallery SnapshotSource
}

// NewGalleryHandler creates a new gallery handler
func NewGalleryHandler(g SnapshotSource) *GalleryHandler {
	return &GalleryHandler{gallery: g}
}

// SkippedRecord is an enrolled face left out of the gallery
type SkippedRecord struct {
	FaceID int64  `json:"face_id"`
	Name   string `json:"name"`
	Error  string `json:"error"`
}

// GalleryResponse describes the current snapshot
type GalleryResponse struct {
	Size    int             `json:"size"`
	Version uint64          `json:"version"`
	Indexed bool            `json:"indexed"`
	BuiltAt *time.Time      `json:"built_at,omitempty"`
	Names   []string        `json:"names"`
	Skipped []SkippedRecord `json:"skipped"`
}

// Get returns the current snapshot summary.
func (h *GalleryHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap := h.gallery.Load()

	resp := GalleryResponse{
		Size:    snap.Len(),
		Version: snap.Version(),
		Indexed: snap.Indexed(),
		Names:   make([]string, 0, snap.Len()),
		Skipped: []SkippedRecord{},
	}
	if builtAt := snap.BuiltAt(); !builtAt.IsZero() {
		resp.BuiltAt = &builtAt
	}
	for _, e := range snap.Entries() {
		resp.Names = append(resp.Names, e.Name)
	}
	for _, f := range snap.Failures() {
		resp.Skipped = append(resp.Skipped, SkippedRecord{
			FaceID: f.RecordID,
			Name:   f.Name,
			Error:  f.Err.Error(),
		})
	}

	respondJSON(w, http.StatusOK, resp)
}
