// Package fingerprint computes perceptual hashes used to recognise repeated camera frames.
package fingerprint

import (
	"fmt"
	"image"
	"math/bits"
	"sync"

	"golang.org/x/image/draw"
)

// dHash works on a 9x8 thumbnail: each row yields 8 horizontal differences.
const (
	hashCols = 9
	hashRows = 8
)

// HammingDistance is the number of differing bits of two hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether two hashes differ in at most threshold bits.
func Similar(a, b uint64, threshold int) bool {
	return HammingDistance(a, b) <= threshold
}

// DHash computes a 64-bit difference hash of img. Bit 63 is the top-left
// comparison; a bit is set when a pixel is brighter than its right neighbour.
func DHash(img image.Image) uint64 {
	thumb := thumbnail(img)

	var hash uint64
	for y := range hashRows {
		row := thumb.Pix[y*thumb.Stride : y*thumb.Stride+hashCols]
		for x := range hashCols - 1 {
			hash <<= 1
			if row[x] > row[x+1] {
				hash |= 1
			}
		}
	}
	return hash
}

// Hex formats a hash the way it is logged and reported.
func Hex(hash uint64) string {
	return fmt.Sprintf("%016x", hash)
}

// thumbnail scales img to the hash grid in 8-bit luma.
func thumbnail(img image.Image) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, hashCols, hashRows))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// ChangeDetector remembers the hash of the last frame it saw and reports
// whether the next frame differs from it. It is safe for concurrent use.
type ChangeDetector struct {
	mu        sync.Mutex
	threshold int
	last      uint64
	seen      bool
}

// NewChangeDetector creates a detector treating frames within threshold bits as unchanged.
func NewChangeDetector(threshold int) *ChangeDetector {
	return &ChangeDetector{threshold: threshold}
}

// Changed hashes img, stores the hash, and reports whether it differs from
// the previous frame. The first frame is always a change.
func (d *ChangeDetector) Changed(img image.Image) bool {
	hash := DHash(img)

	d.mu.Lock()
	defer d.mu.Unlock()

	changed := !d.seen || !Similar(hash, d.last, d.threshold)
	d.last, d.seen = hash, true
	return changed
}

// Reset forgets the last frame.
func (d *ChangeDetector) Reset() {
	d.mu.Lock()
	d.seen = false
	d.mu.Unlock()
}
