package handlers

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/kozaktomas/vision-assist/internal/constants"
	"github.com/kozaktomas/vision-assist/internal/pipeline"
)

// FrameProcessor identifies the faces of one image.
type FrameProcessor interface {
	Process(ctx context.Context, frame image.Image) (*pipeline.AnnotatedResult, error)
}

// RecognizeHandler runs the recognition pipeline on uploaded images
type RecognizeHandler struct {
	processor FrameProcessor
}

// NewRecognizeHandler creates a new recognize handler
func NewRecognizeHandler(processor FrameProcessor) *RecognizeHandler {
	return &RecognizeHandler{processor: processor}
}

// BoxResponse is one detected face. Distance is absent when the gallery had
// no comparable entry.
type BoxResponse struct {
	Label      string   `json:"label"`
	X          int      `json:"x"`
	Y          int      `json:"y"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	Matched    bool     `json:"matched"`
	Name       string   `json:"name,omitempty"`
	FaceID     int64    `json:"face_id,omitempty"`
	Distance   *float64 `json:"distance,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// RecognizeResponse is the JSON result of a recognition
type RecognizeResponse struct {
	Summary         string        `json:"summary"`
	Detected        int           `json:"detected"`
	DetectionFailed bool          `json:"detection_failed"`
	Error           string        `json:"error,omitempty"`
	GalleryVersion  uint64        `json:"gallery_version"`
	Faces           []BoxResponse `json:"faces"`
}

// NewRecognizeResponse converts a pipeline result for the API.
func NewRecognizeResponse(result *pipeline.AnnotatedResult) RecognizeResponse {
	resp := RecognizeResponse{
		Summary:         result.Summary,
		Detected:        result.Detected,
		DetectionFailed: result.DetectionFailed,
		GalleryVersion:  result.GalleryVersion,
		Faces:           make([]BoxResponse, 0, len(result.Boxes)),
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}

	for _, b := range result.Boxes {
		box := BoxResponse{
			Label:  b.Label,
			X:      b.Rect.Min.X,
			Y:      b.Rect.Min.Y,
			Width:  b.Rect.Dx(),
			Height: b.Rect.Dy(),
		}
		if b.Err != nil {
			box.Error = b.Err.Error()
		}
		if o := b.Outcome; o != nil {
			box.Matched = o.Matched
			if !math.IsInf(o.Distance, 0) {
				d := o.Distance
				box.Distance = &d
			}
			if o.Matched {
				box.Name = o.Name
				box.FaceID = o.RecordID
				box.Confidence = o.Confidence
			}
		}
		resp.Faces = append(resp.Faces, box)
	}
	return resp
}

// Recognize identifies the faces in the uploaded "image". With ?format=jpeg
// the annotated image is returned instead of JSON.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}

	frame, err := readUploadedImage(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.processor.Process(r.Context(), frame)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Error("recognition failed", "error", err)
		respondError(w, http.StatusInternalServerError, "recognition failed")
		return
	}

	if r.URL.Query().Get("format") == "jpeg" {
		writeJPEG(w, result.Image, result.Summary)
		return
	}
	respondJSON(w, http.StatusOK, NewRecognizeResponse(result))
}

// writeJPEG encodes img as the response body. The summary is sent in the
// X-Summary header with newlines escaped.
func writeJPEG(w http.ResponseWriter, img image.Image, summary string) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: constants.AnnotatedJPEGQuality}); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode image")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "no-store")
	if summary != "" {
		w.Header().Set("X-Summary", strconv.Quote(summary))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
