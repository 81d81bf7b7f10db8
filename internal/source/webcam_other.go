//go:build !linux

package source

import (
	"context"
	"errors"
	"image"
	"log/slog"
)

// ErrWebcamUnsupported is returned on platforms without V4L2.
var ErrWebcamUnsupported = errors.New("local webcam capture is only supported on linux")

// WebcamSource is unavailable on this platform.
type WebcamSource struct{}

// NewWebcamSource always fails on this platform.
func NewWebcamSource(string, *slog.Logger) (*WebcamSource, error) {
	return nil, ErrWebcamUnsupported
}

func (s *WebcamSource) Next(context.Context) (image.Image, error) {
	return nil, ErrWebcamUnsupported
}

func (s *WebcamSource) Close() error {
	return nil
}
