package enroll

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/kozaktomas/vision-assist/internal/database"
	"github.com/kozaktomas/vision-assist/internal/database/memory"
	"github.com/kozaktomas/vision-assist/internal/pipeline"
)

type stubDetector struct {
	boxes []image.Rectangle
	err   error
}

func (d *stubDetector) Detect(context.Context, image.Image) ([]image.Rectangle, error) {
	return d.boxes, d.err
}

type sizeExtractor struct {
	calls atomic.Int32
	err   error
}

// Extract embeds a crop as its width and height.
func (e *sizeExtractor) Extract(_ context.Context, img image.Image) ([]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(img.Bounds().Dx()), float32(img.Bounds().Dy())}, nil
}

func photo(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

func newService(det *stubDetector, ext *sizeExtractor) (*Service, *memory.FaceStore) {
	store := memory.NewFaceStore()
	return NewService(det, ext, store, nil), store
}

func TestEnrollLargestFace(t *testing.T) {
	det := &stubDetector{boxes: []image.Rectangle{
		image.Rect(0, 0, 10, 10),
		image.Rect(20, 20, 60, 50),  // largest valid
		image.Rect(50, 50, 150, 150), // larger but out of bounds
	}}
	svc, store := newService(det, &sizeExtractor{})

	rec, err := svc.Enroll(context.Background(), "  Alice  ", photo(100, 100))
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if rec.ID == 0 || rec.Name != "Alice" {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Embedding) != 2 || rec.Embedding[0] != 40 || rec.Embedding[1] != 30 {
		t.Errorf("embedding = %v, want crop of 40x30", rec.Embedding)
	}

	data, err := base64.StdEncoding.DecodeString(rec.Image)
	if err != nil {
		t.Fatalf("image is not base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("image is not JPEG: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 30 {
		t.Errorf("stored crop is %v", img.Bounds())
	}

	if n, _ := store.CountFaces(context.Background()); n != 1 {
		t.Errorf("store has %d faces, want 1", n)
	}
}

func TestEnrollErrors(t *testing.T) {
	tests := []struct {
		name    string
		det     *stubDetector
		ext     *sizeExtractor
		person  string
		photo   image.Image
		wantErr error
	}{
		{"empty name", &stubDetector{}, &sizeExtractor{}, " ", photo(10, 10), database.ErrEmptyName},
		{"empty photo", &stubDetector{}, &sizeExtractor{}, "Bob", image.NewRGBA(image.Rectangle{}), database.ErrEmptyImage},
		{"no faces", &stubDetector{}, &sizeExtractor{}, "Bob", photo(10, 10), ErrNoFaceDetected},
		{"only invalid faces", &stubDetector{boxes: []image.Rectangle{image.Rect(5, 5, 20, 20)}}, &sizeExtractor{}, "Bob", photo(10, 10), ErrNoFaceDetected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(tt.det, tt.ext)
			_, err := svc.Enroll(context.Background(), tt.person, tt.photo)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Enroll() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnrollDetectorFailure(t *testing.T) {
	svc, _ := newService(&stubDetector{err: errors.New("detector down")}, &sizeExtractor{})
	_, err := svc.Enroll(context.Background(), "Bob", photo(10, 10))

	var detErr *pipeline.DetectionError
	if !errors.As(err, &detErr) {
		t.Errorf("Enroll() error = %v, want DetectionError", err)
	}
}

func TestEnrollExtractionFailure(t *testing.T) {
	modelErr := errors.New("model failure")
	svc, store := newService(&stubDetector{boxes: []image.Rectangle{image.Rect(0, 0, 5, 5)}}, &sizeExtractor{err: modelErr})

	if _, err := svc.Enroll(context.Background(), "Bob", photo(10, 10)); !errors.Is(err, modelErr) {
		t.Errorf("Enroll() error = %v, want model failure", err)
	}
	if n, _ := store.CountFaces(context.Background()); n != 0 {
		t.Errorf("store has %d faces, want 0", n)
	}
}

func TestEnrollLimitsPhotoSize(t *testing.T) {
	ext := &sizeExtractor{}
	// The detector sees the scaled photo, so a full-frame box of the scaled size is valid.
	svc, _ := newService(&stubDetector{boxes: []image.Rectangle{image.Rect(0, 0, 1920, 960)}}, ext)

	rec, err := svc.Enroll(context.Background(), "Wide", photo(2000, 1000))
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if rec.Embedding[0] != 1920 || rec.Embedding[1] != 960 {
		t.Errorf("embedding = %v, want scaled crop", rec.Embedding)
	}
}

func TestLimitSize(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		wantBounds image.Rectangle
	}{
		{name: "small", w: 640, h: 480, wantBounds: image.Rect(0, 0, 640, 480)},
		{name: "wide", w: 2000, h: 1000, wantBounds: image.Rect(0, 0, 1920, 960)},
		{name: "tall", w: 1000, h: 4000, wantBounds: image.Rect(0, 0, 480, 1920)},
		{name: "extremely wide", w: 5000, h: 1, wantBounds: image.Rect(0, 0, 1920, 1)},
		{name: "extremely tall", w: 1, h: 5000, wantBounds: image.Rect(0, 0, 1, 1920)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := limitSize(photo(tt.w, tt.h), 1920).Bounds()
			if got != tt.wantBounds {
				t.Errorf("limitSize(%dx%d) bounds = %v, want %v", tt.w, tt.h, got, tt.wantBounds)
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	det := &stubDetector{boxes: []image.Rectangle{image.Rect(0, 0, 8, 8)}}
	svc, store := newService(det, &sizeExtractor{})

	rec, err := svc.Enroll(ctx, "Alice", photo(10, 10))
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	oldImage := rec.Image

	t.Run("rename only", func(t *testing.T) {
		updated, err := svc.Update(ctx, rec.ID, "Alicia", nil)
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if updated.Name != "Alicia" || updated.Image != oldImage {
			t.Errorf("updated = %+v", updated)
		}
	})

	t.Run("replace image", func(t *testing.T) {
		det.boxes = []image.Rectangle{image.Rect(0, 0, 6, 4)}
		updated, err := svc.Update(ctx, rec.ID, "", photo(10, 10))
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if updated.Name != "Alicia" {
			t.Errorf("name = %q, want kept", updated.Name)
		}
		if updated.Embedding[0] != 6 {
			t.Errorf("embedding = %v, want new crop", updated.Embedding)
		}
		stored, _ := store.GetFace(ctx, rec.ID)
		if stored.Image == oldImage {
			t.Error("image was not replaced")
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := svc.Update(ctx, 999, "X", nil); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("Update() error = %v, want ErrNotFound", err)
		}
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(&stubDetector{boxes: []image.Rectangle{image.Rect(0, 0, 8, 8)}}, &sizeExtractor{})

	a, _ := svc.Enroll(ctx, "Alice", photo(10, 10))
	svc.Enroll(ctx, "Bob", photo(10, 10))
	svc.Enroll(ctx, "Carol", photo(10, 10))

	if err := svc.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := svc.Delete(ctx, a.ID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}

	n, err := svc.DeleteAll(ctx)
	if err != nil || n != 2 {
		t.Errorf("DeleteAll() = %d, %v, want 2", n, err)
	}
	if c, _ := store.CountFaces(ctx); c != 0 {
		t.Errorf("store has %d faces, want 0", c)
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := photo(10, 10)
	img.Set(0, 0, color.RGBA{R: 1, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestPlanImport(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "jane_doe.png"))
	writePNG(t, filepath.Join(dir, "readme.txt"))
	if err := os.Mkdir(filepath.Join(dir, "Jiří Novák"), 0o700); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(dir, "Jiří Novák", "1.png"))
	writePNG(t, filepath.Join(dir, "Jiří Novák", "2.png"))

	items, err := PlanImport(dir)
	if err != nil {
		t.Fatalf("PlanImport() error = %v", err)
	}

	names := map[string]int{}
	for _, it := range items {
		names[it.Name]++
	}
	if len(items) != 3 || names["jane doe"] != 1 || names["Jiří Novák"] != 2 {
		t.Errorf("items = %+v", items)
	}
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "alice.png"))
	writePNG(t, filepath.Join(dir, "bob.png"))
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("nope"), 0o600); err != nil {
		t.Fatal(err)
	}

	items, err := PlanImport(dir)
	if err != nil {
		t.Fatalf("PlanImport() error = %v", err)
	}

	svc, store := newService(&stubDetector{boxes: []image.Rectangle{image.Rect(0, 0, 8, 8)}}, &sizeExtractor{})
	var done atomic.Int32
	results := svc.Import(context.Background(), items, 2, func(ImportResult) { done.Add(1) })

	if int(done.Load()) != len(items) {
		t.Errorf("onDone called %d times, want %d", done.Load(), len(items))
	}

	var ok, failed int
	for i, r := range results {
		if r.Item != items[i] {
			t.Errorf("result %d out of order", i)
		}
		if r.Err != nil {
			failed++
		} else {
			ok++
		}
	}
	if ok != 2 || failed != 1 {
		t.Errorf("ok = %d, failed = %d", ok, failed)
	}
	if n, _ := store.CountFaces(context.Background()); n != 2 {
		t.Errorf("store has %d faces, want 2", n)
	}
}

func TestNameFromFile(t *testing.T) {
	tests := map[string]string{
		"jane_doe.jpg":        "jane doe",
		"Jiri-Novak.PNG":      "Jiri Novak",
		"  spaced__out .jpeg": "spaced out",
	}
	for in, want := range tests {
		if got := nameFromFile(in); got != want {
			t.Errorf("nameFromFile(%q) = %q, want %q", in, got, want)
		}
	}
}
