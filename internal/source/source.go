// Package source provides camera frames to the monitor loop.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
)

// ErrExhausted is returned by sources that have no more frames.
var ErrExhausted = errors.New("frame source exhausted")

// Source yields frames on demand. Next blocks until a frame is available or ctx is done.
type Source interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Prober is implemented by sources that can check their reachability before use.
type Prober interface {
	Probe(ctx context.Context) error
}

// Decode decodes a JPEG, PNG or BMP frame.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}
