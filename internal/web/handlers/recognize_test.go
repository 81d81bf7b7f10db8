package handlers

import (
	"context"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/kozaktomas/vision-assist/internal/database"
	"github.com/kozaktomas/vision-assist/internal/gallery"
	"github.com/kozaktomas/vision-assist/internal/pipeline"
)

var (
	aliceBox    = image.Rect(10, 10, 30, 30)
	strangerBox = image.Rect(50, 50, 70, 70)
)

func testGallery(t *testing.T) *gallery.Store {
	t.Helper()
	g := gallery.NewStore(&redExtractor{}, gallery.Options{})
	records := []database.FaceRecord{
		{ID: 1, Name: "Alice", Image: encodedFace(t, 10)},
		{ID: 2, Name: "Broken", Image: "not base64!"},
	}
	if _, err := g.Rebuild(context.Background(), records); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	return g
}

func testFrame() *image.RGBA {
	frame := solidImage(100, 100, 200)
	fillRect(frame, aliceBox, 10)
	fillRect(frame, strangerBox, 150)
	return frame
}

func TestRecognizeHandler_JSON(t *testing.T) {
	tests := []struct {
		name         string
		det          *stubDetector
		emptyGallery bool
		wantSummary  string
		wantFaces    int
		wantFailed   bool
	}{
		{
			name:        "one known face",
			det:         &stubDetector{boxes: []image.Rectangle{aliceBox}},
			wantSummary: "One face detected. Face found: Alice (confidence 100.00%)",
			wantFaces:   1,
		},
		{
			name:        "known and stranger",
			det:         &stubDetector{boxes: []image.Rectangle{aliceBox, strangerBox}},
			wantSummary: "2 faces detected\nFace found: Alice (confidence 100.00%)",
			wantFaces:   2,
		},
		{
			name:         "empty gallery",
			det:          &stubDetector{boxes: []image.Rectangle{aliceBox}},
			emptyGallery: true,
			wantSummary:  "One face detected",
			wantFaces:    1,
		},
		{
			name:        "no face",
			det:         &stubDetector{},
			wantSummary: pipeline.NoFaceSummary,
		},
		{
			name:       "detector failure",
			det:        &stubDetector{err: errors.New("connection refused")},
			wantFailed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := gallery.NewStore(&redExtractor{}, gallery.Options{})
			if !tt.emptyGallery {
				g = testGallery(t)
			}
			handler := NewRecognizeHandler(pipeline.New(tt.det, &redExtractor{}, g))
			recorder := httptest.NewRecorder()

			handler.Recognize(recorder, multipartRequest(t, "POST", "/api/v1/recognize", nil, testFrame()))
			assertStatusCode(t, recorder, http.StatusOK)

			var result RecognizeResponse
			parseJSONResponse(t, recorder, &result)
			if result.Summary != tt.wantSummary {
				t.Errorf("summary = %q, want %q", result.Summary, tt.wantSummary)
			}
			if len(result.Faces) != tt.wantFaces || result.Detected != tt.wantFaces {
				t.Errorf("faces = %d, detected = %d, want %d", len(result.Faces), result.Detected, tt.wantFaces)
			}
			if result.DetectionFailed != tt.wantFailed {
				t.Errorf("detection_failed = %v, want %v", result.DetectionFailed, tt.wantFailed)
			}
			if tt.wantFailed && result.Error == "" {
				t.Error("expected error text for failed detection")
			}
			if result.GalleryVersion != 0 && result.GalleryVersion != 1 {
				t.Errorf("gallery_version = %d", result.GalleryVersion)
			}
			if tt.emptyGallery {
				if face := result.Faces[0]; face.Matched || face.Distance != nil {
					t.Errorf("face against empty gallery = %+v", face)
				}
			}
		})
	}
}

func TestRecognizeHandler_FaceDetails(t *testing.T) {
	det := &stubDetector{boxes: []image.Rectangle{aliceBox, strangerBox, image.Rect(90, 90, 130, 130)}}
	handler := NewRecognizeHandler(pipeline.New(det, &redExtractor{}, testGallery(t)))
	recorder := httptest.NewRecorder()

	handler.Recognize(recorder, multipartRequest(t, "POST", "/api/v1/recognize", nil, testFrame()))

	var result RecognizeResponse
	parseJSONResponse(t, recorder, &result)
	if len(result.Faces) != 3 {
		t.Fatalf("expected 3 faces, got %d", len(result.Faces))
	}

	alice := result.Faces[0]
	if !alice.Matched || alice.Name != "Alice" || alice.FaceID != 1 || alice.Confidence != 100 ||
		alice.Distance == nil || *alice.Distance != 0 {
		t.Errorf("alice = %+v", alice)
	}
	if alice.X != 10 || alice.Y != 10 || alice.Width != 20 || alice.Height != 20 || alice.Label != "1" {
		t.Errorf("alice box = %+v", alice)
	}

	stranger := result.Faces[1]
	if stranger.Matched || stranger.Name != "" || stranger.Distance == nil || *stranger.Distance != 14 {
		t.Errorf("stranger = %+v", stranger)
	}

	if clipped := result.Faces[2]; clipped.Error == "" || clipped.Matched {
		t.Errorf("out of bounds box = %+v", clipped)
	}
}

func TestRecognizeHandler_JPEG(t *testing.T) {
	det := &stubDetector{boxes: []image.Rectangle{aliceBox}}
	handler := NewRecognizeHandler(pipeline.New(det, &redExtractor{}, testGallery(t)))
	recorder := httptest.NewRecorder()

	handler.Recognize(recorder, multipartRequest(t, "POST", "/api/v1/recognize?format=jpeg", nil, testFrame()))
	assertStatusCode(t, recorder, http.StatusOK)

	if ct := recorder.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	summary, err := strconv.Unquote(recorder.Header().Get("X-Summary"))
	if err != nil || summary != "One face detected. Face found: Alice (confidence 100.00%)" {
		t.Errorf("X-Summary = %q (%v)", summary, err)
	}

	img, err := jpeg.Decode(recorder.Body)
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 100 {
		t.Errorf("bounds = %v", img.Bounds())
	}
}

func TestRecognizeHandler_MissingImage(t *testing.T) {
	handler := NewRecognizeHandler(pipeline.New(&stubDetector{}, &redExtractor{}, testGallery(t)))
	recorder := httptest.NewRecorder()

	handler.Recognize(recorder, multipartRequest(t, "POST", "/api/v1/recognize", map[string]string{"x": "y"}, nil))

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "missing image")
}
