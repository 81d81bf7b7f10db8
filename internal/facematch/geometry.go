package facematch

import (
	"errors"
	"image"
	"math"
)

var (
	// ErrEmptyBox is returned for boxes with no area.
	ErrEmptyBox = errors.New("bounding box is empty")
	// ErrBoxOutOfBounds is returned for boxes that reach outside the image.
	ErrBoxOutOfBounds = errors.New("bounding box exceeds image bounds")
)

// RectFromCorners converts a detector bbox [x1, y1, x2, y2] in pixels into an
// image rectangle. Fractional edges are rounded to the nearest pixel. Returns
// an empty rectangle for malformed input, including inverted corners.
func RectFromCorners(bbox []float64) image.Rectangle {
	if len(bbox) != 4 || bbox[2] < bbox[0] || bbox[3] < bbox[1] {
		return image.Rectangle{}
	}
	return image.Rect(
		int(math.Round(bbox[0])),
		int(math.Round(bbox[1])),
		int(math.Round(bbox[2])),
		int(math.Round(bbox[3])),
	)
}

// ValidateBox checks that box is non-empty and lies fully within bounds.
// Boxes clipping the frame edge are rejected rather than clamped, so a crop
// never reads pixels outside the source image.
func ValidateBox(box, bounds image.Rectangle) error {
	if box.Dx() <= 0 || box.Dy() <= 0 {
		return ErrEmptyBox
	}
	if box.Min.X < bounds.Min.X || box.Min.Y < bounds.Min.Y ||
		box.Max.X > bounds.Max.X || box.Max.Y > bounds.Max.Y {
		return ErrBoxOutOfBounds
	}
	return nil
}

// Area returns the pixel area of a rectangle, zero for empty ones.
func Area(r image.Rectangle) int {
	if r.Empty() {
		return 0
	}
	return r.Dx() * r.Dy()
}

// LargestBox returns the index of the largest box that lies within bounds,
// or -1 when none does.
func LargestBox(boxes []image.Rectangle, bounds image.Rectangle) int {
	best, bestArea := -1, 0
	for i, b := range boxes {
		if ValidateBox(b, bounds) != nil {
			continue
		}
		if a := Area(b); a > bestArea {
			best, bestArea = i, a
		}
	}
	return best
}
