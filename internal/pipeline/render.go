package pipeline

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	boxLineWidth = 3
	labelPadding = 2
)

var (
	recognizedColor   = color.RGBA{0, 255, 0, 255}
	unrecognizedColor = color.RGBA{255, 0, 0, 255}
	labelColor        = color.RGBA{255, 255, 0, 255}
)

// Render draws boxes and labels onto a copy of img. The source is never modified.
func Render(img image.Image, boxes []DetectionBox) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Src)

	for i := range boxes {
		b := &boxes[i]
		c := unrecognizedColor
		if b.Recognized() {
			c = recognizedColor
		}

		r := b.Rect.Canon()
		for w := range boxLineWidth {
			drawHLine(dst, r.Min.X, r.Max.X-1, r.Min.Y+w, c)
			drawHLine(dst, r.Min.X, r.Max.X-1, r.Max.Y-1-w, c)
			drawVLine(dst, r.Min.Y, r.Max.Y-1, r.Min.X+w, c)
			drawVLine(dst, r.Min.Y, r.Max.Y-1, r.Max.X-1-w, c)
		}

		text := b.Label
		if b.Recognized() {
			text += " " + b.Outcome.MatchLabel
		}
		drawLabel(dst, r, text)
	}

	return dst
}

// drawLabel writes text above the box, or inside it when the box touches the top edge.
func drawLabel(dst *image.RGBA, box image.Rectangle, text string) {
	face := basicfont.Face7x13
	metrics := face.Metrics()
	y := box.Min.Y - labelPadding - metrics.Descent.Ceil()
	if y-metrics.Ascent.Ceil() < dst.Bounds().Min.Y {
		y = box.Min.Y + boxLineWidth + labelPadding + metrics.Ascent.Ceil()
	}

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(box.Min.X+labelPadding, y),
	}
	d.DrawString(text)
}

// drawHLine draws a horizontal line, clipped to the image.
func drawHLine(dst *image.RGBA, x1, x2, y int, c color.RGBA) {
	bounds := dst.Bounds()
	if y < bounds.Min.Y || y >= bounds.Max.Y {
		return
	}
	for x := max(x1, bounds.Min.X); x <= x2 && x < bounds.Max.X; x++ {
		dst.SetRGBA(x, y, c)
	}
}

// drawVLine draws a vertical line, clipped to the image.
func drawVLine(dst *image.RGBA, y1, y2, x int, c color.RGBA) {
	bounds := dst.Bounds()
	if x < bounds.Min.X || x >= bounds.Max.X {
		return
	}
	for y := max(y1, bounds.Min.Y); y <= y2 && y < bounds.Max.Y; y++ {
		dst.SetRGBA(x, y, c)
	}
}
