// Package enroll adds known faces to the enrollment store.
package enroll

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"strings"

	"golang.org/x/image/draw"

	"github.com/kozaktomas/vision-assist/internal/constants"
	"github.com/kozaktomas/vision-assist/internal/database"
	"github.com/kozaktomas/vision-assist/internal/facematch"
	"github.com/kozaktomas/vision-assist/internal/pipeline"
)

// ErrNoFaceDetected is returned when a photo contains no usable face.
var ErrNoFaceDetected = errors.New("no face detected")

// Store is the part of the enrollment store used by the service.
type Store interface {
	database.FaceWriter
	GetFace(ctx context.Context, id int64) (*database.FaceRecord, error)
}

// Service enrolls, updates and removes known faces.
type Service struct {
	detector  pipeline.Detector
	extractor pipeline.Extractor
	store     Store
	logger    *slog.Logger
}

// NewService creates an enrollment service.
func NewService(detector pipeline.Detector, extractor pipeline.Extractor, store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		detector:  detector,
		extractor: extractor,
		store:     store,
		logger:    logger,
	}
}

// Face is a cropped face ready for storage.
type Face struct {
	Image     string // base64 JPEG
	Embedding []float32
	Box       image.Rectangle
}

// PrepareFace finds the largest face in photo, crops and encodes it and
// computes its embedding.
func (s *Service) PrepareFace(ctx context.Context, photo image.Image) (*Face, error) {
	if photo == nil || photo.Bounds().Empty() {
		return nil, database.ErrEmptyImage
	}
	photo = limitSize(photo, constants.MaxImageSize)

	boxes, err := s.detector.Detect(ctx, photo)
	if err != nil {
		return nil, &pipeline.DetectionError{Err: err}
	}

	idx := facematch.LargestBox(boxes, photo.Bounds())
	if idx < 0 {
		return nil, ErrNoFaceDetected
	}

	crop := pipeline.Crop(photo, boxes[idx])
	emb, err := s.extractor.Extract(ctx, crop)
	if err != nil {
		return nil, err
	}

	encoded, err := EncodeFace(crop)
	if err != nil {
		return nil, err
	}

	return &Face{Image: encoded, Embedding: emb, Box: boxes[idx]}, nil
}

// Enroll stores the largest face of photo under name.
func (s *Service) Enroll(ctx context.Context, name string, photo image.Image) (*database.FaceRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, database.ErrEmptyName
	}

	face, err := s.PrepareFace(ctx, photo)
	if err != nil {
		return nil, err
	}

	rec := &database.FaceRecord{Name: name, Image: face.Image, Embedding: face.Embedding}
	if err := s.store.InsertFace(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store face: %w", err)
	}

	s.logger.Info("face enrolled", "id", rec.ID, "name", rec.Name)
	return rec, nil
}

// Update renames a face and, when photo is not nil, replaces its image.
// An empty name keeps the current one.
func (s *Service) Update(ctx context.Context, id int64, name string, photo image.Image) (*database.FaceRecord, error) {
	rec, err := s.store.GetFace(ctx, id)
	if err != nil {
		return nil, err
	}

	if name = strings.TrimSpace(name); name != "" {
		rec.Name = name
	}

	if photo != nil {
		face, err := s.PrepareFace(ctx, photo)
		if err != nil {
			return nil, err
		}
		rec.Image = face.Image
		rec.Embedding = face.Embedding
	}

	if err := s.store.UpdateFace(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to update face: %w", err)
	}

	s.logger.Info("face updated", "id", rec.ID, "name", rec.Name, "image_replaced", photo != nil)
	return rec, nil
}

// Delete removes a face.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteFace(ctx, id); err != nil {
		return err
	}
	s.logger.Info("face deleted", "id", id)
	return nil
}

// DeleteAll removes every face and returns how many were removed.
func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAllFaces(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("all faces deleted", "count", n)
	return n, nil
}

// EncodeFace encodes a face crop as base64 JPEG.
func EncodeFace(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: constants.EnrollmentJPEGQuality}); err != nil {
		return "", fmt.Errorf("failed to encode face: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// limitSize scales img down so neither side exceeds maxSize.
func limitSize(img image.Image, maxSize int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxSize && height <= maxSize {
		return img
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = int(float64(height) * float64(maxSize) / float64(width))
	} else {
		newHeight = maxSize
		newWidth = int(float64(width) * float64(maxSize) / float64(height))
	}
	newWidth, newHeight = max(newWidth, 1), max(newHeight, 1)

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
	return resized
}
