package handlers

import (
	"errors"
	"image"
	"log/slog"
	"net/http"
	"time"

	"github.com/kozaktomas/vision-assist/internal/database"
	"github.com/kozaktomas/vision-assist/internal/embedding"
	"github.com/kozaktomas/vision-assist/internal/enroll"
	"github.com/kozaktomas/vision-assist/internal/pipeline"
)

// FacesHandler handles enrollment endpoints
type FacesHandler struct {
	reader database.FaceReader
	enroll *enroll.Service
}

// NewFacesHandler creates a new faces handler
func NewFacesHandler(reader database.FaceReader, svc *enroll.Service) *FacesHandler {
	return &FacesHandler{
		reader: reader,
		enroll: svc,
	}
}

// FaceResponse is an enrolled face as returned by the API
type FaceResponse struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Image        string    `json:"image,omitempty"`
	HasEmbedding bool      `json:"has_embedding"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toFaceResponse(f *database.FaceRecord, withImage bool) FaceResponse {
	resp := FaceResponse{
		ID:           f.ID,
		Name:         f.Name,
		HasEmbedding: len(f.Embedding) > 0,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
	if withImage {
		resp.Image = f.Image
	}
	return resp
}

// List returns all enrolled faces. Images are included with ?images=true.
func (h *FacesHandler) List(w http.ResponseWriter, r *http.Request) {
	withImages := r.URL.Query().Get("images") == "true"

	var (
		faces []database.FaceRecord
		err   error
	)
	if name := r.URL.Query().Get("name"); name != "" {
		faces, err = h.reader.FindFacesByName(r.Context(), name)
	} else {
		faces, err = h.reader.ListFaces(r.Context())
	}
	if err != nil {
		slog.Error("failed to list faces", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list faces")
		return
	}

	resp := make([]FaceResponse, len(faces))
	for i := range faces {
		resp[i] = toFaceResponse(&faces[i], withImages)
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get returns one face including its image.
func (h *FacesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	face, err := h.reader.GetFace(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toFaceResponse(face, true))
}

// Create enrolls the largest face of the uploaded "image" under "name".
func (h *FacesHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}

	photo, err := readUploadedImage(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	face, err := h.enroll.Enroll(r.Context(), r.FormValue("name"), photo)
	if err != nil {
		respondEnrollError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toFaceResponse(face, false))
}

// Update renames a face and optionally replaces its image.
func (h *FacesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !parseMultipart(w, r) {
		return
	}

	var photo image.Image
	photo, err = readUploadedImage(r, "image")
	if err != nil && !errors.Is(err, errMissingImage) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := r.FormValue("name")
	if name == "" && photo == nil {
		respondError(w, http.StatusBadRequest, "name or image is required")
		return
	}

	face, err := h.enroll.Update(r.Context(), id, name, photo)
	if err != nil {
		respondEnrollError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toFaceResponse(face, false))
}

// Delete removes one face.
func (h *FacesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.enroll.Delete(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAll removes every face.
func (h *FacesHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.enroll.DeleteAll(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, "face not found")
	case errors.Is(err, database.ErrEmptyName), errors.Is(err, database.ErrEmptyImage):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("face store error", "error", err)
		respondError(w, http.StatusInternalServerError, "face store error")
	}
}

func respondEnrollError(w http.ResponseWriter, err error) {
	var detErr *pipeline.DetectionError
	var extErr *embedding.ExtractionError
	switch {
	case errors.Is(err, enroll.ErrNoFaceDetected):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &detErr):
		respondError(w, http.StatusBadGateway, "face detector unavailable")
	case errors.As(err, &extErr):
		respondError(w, http.StatusBadGateway, "embedding model unavailable")
	default:
		respondStoreError(w, err)
	}
}
