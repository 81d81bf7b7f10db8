package web

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/vision-assist/internal/config"
	"github.com/kozaktomas/vision-assist/internal/database"
	"github.com/kozaktomas/vision-assist/internal/database/memory"
	"github.com/kozaktomas/vision-assist/internal/enroll"
	"github.com/kozaktomas/vision-assist/internal/gallery"
	"github.com/kozaktomas/vision-assist/internal/pipeline"
)

type noFaces struct{}

func (noFaces) Detect(context.Context, image.Image) ([]image.Rectangle, error) { return nil, nil }

type zeroExtractor struct{}

func (zeroExtractor) Extract(context.Context, image.Image) ([]float32, error) {
	return []float32{0, 0}, nil
}

func newTestServer(t *testing.T, token string) *Server {
	t.Helper()
	cfg := &config.Config{Web: config.WebConfig{Host: "127.0.0.1", Port: 9090, APIToken: token}}

	store := memory.NewFaceStore()
	store.AddFace(database.FaceRecord{Name: "Alice", Image: "QQ=="})
	g := gallery.NewStore(zeroExtractor{}, gallery.Options{})

	return NewServer(cfg, Deps{
		Faces:     store,
		Enroll:    enroll.NewService(noFaces{}, zeroExtractor{}, store, nil),
		Gallery:   g,
		Processor: pipeline.New(noFaces{}, zeroExtractor{}, g),
	})
}

func TestServer_Routes(t *testing.T) {
	server := newTestServer(t, "")

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{"GET", "/api/v1/health", http.StatusOK},
		{"GET", "/api/v1/config", http.StatusOK},
		{"GET", "/api/v1/faces", http.StatusOK},
		{"GET", "/api/v1/faces/1", http.StatusOK},
		{"GET", "/api/v1/faces/2", http.StatusNotFound},
		{"GET", "/api/v1/gallery", http.StatusOK},
		{"GET", "/api/v1/announcements", http.StatusOK},
		{"GET", "/api/v1/stream/latest.jpg", http.StatusNotFound},
		{"GET", "/api/v1/stream/stats", http.StatusNotFound},
		{"POST", "/api/v1/summarize", http.StatusServiceUnavailable},
		{"GET", "/", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			server.Router().ServeHTTP(recorder, httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}")))
			if recorder.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d\nBody: %s", recorder.Code, tt.wantStatus, recorder.Body.String())
			}
		})
	}
}

func TestServer_Token(t *testing.T) {
	server := newTestServer(t, "s3cret")

	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/health", nil))
	if recorder.Code != http.StatusOK {
		t.Errorf("health without token = %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/faces", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("faces without token = %d", recorder.Code)
	}

	req := httptest.NewRequest("GET", "/api/v1/faces", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	recorder = httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Errorf("faces with token = %d", recorder.Code)
	}
}

func TestServer_Addr(t *testing.T) {
	if got := newTestServer(t, "").Addr(); got != "127.0.0.1:9090" {
		t.Errorf("Addr() = %q", got)
	}
}
