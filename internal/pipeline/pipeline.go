// Package pipeline turns a camera frame into identified, annotated faces.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"log/slog"

	"github.com/kozaktomas/vision-assist/internal/constants"
	"github.com/kozaktomas/vision-assist/internal/facematch"
	"github.com/kozaktomas/vision-assist/internal/gallery"
)

// Detector finds face bounding boxes in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error)
}

// Extractor computes the embedding of a cropped face.
type Extractor interface {
	Extract(ctx context.Context, img image.Image) ([]float32, error)
}

// Gallery provides the snapshot used for one frame.
type Gallery interface {
	Load() *gallery.Snapshot
}

// DetectionError reports a failed face detection. The frame is returned unannotated.
type DetectionError struct {
	Err error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("face detection failed: %v", e.Err)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

// MatchOutcome is the identification result of one face.
type MatchOutcome struct {
	Matched    bool
	MatchLabel string // "<name> (confidence <c>%)", empty without a match
	Name       string
	RecordID   int64
	Distance   float64
	Confidence float64
}

// DetectionBox is one detected face of a frame.
type DetectionBox struct {
	Rect  image.Rectangle
	Label string // face number, starting at 1
	// Outcome is nil when the box was rejected or no embedding was produced.
	Outcome *MatchOutcome
	Err     error
}

// Recognized reports whether the face matched a gallery entry.
func (b *DetectionBox) Recognized() bool {
	return b.Outcome != nil && b.Outcome.Matched
}

// AnnotatedResult is the output for one frame.
type AnnotatedResult struct {
	// Image is the annotated copy, or the original frame when nothing was drawn.
	Image           image.Image
	Boxes           []DetectionBox
	Summary         string
	Detected        int
	DetectionFailed bool
	Err             error
	// GalleryVersion is the version of the snapshot the faces were matched against.
	GalleryVersion uint64
}

// Recognized returns the boxes that matched a gallery entry.
func (r *AnnotatedResult) Recognized() []DetectionBox {
	var out []DetectionBox
	for _, b := range r.Boxes {
		if b.Recognized() {
			out = append(out, b)
		}
	}
	return out
}

// Pipeline runs detection, extraction, matching and rendering for frames.
type Pipeline struct {
	detector  Detector
	extractor Extractor
	gallery   Gallery
	threshold float64
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithThreshold sets the match acceptance threshold.
func WithThreshold(threshold float64) Option {
	return func(p *Pipeline) {
		if threshold > 0 {
			p.threshold = threshold
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pipeline.
func New(detector Detector, extractor Extractor, g Gallery, opts ...Option) *Pipeline {
	p := &Pipeline{
		detector:  detector,
		extractor: extractor,
		gallery:   g,
		threshold: constants.DefaultMatchThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Threshold returns the match acceptance threshold.
func (p *Pipeline) Threshold() float64 {
	return p.threshold
}

// Process identifies the faces in frame. Detection, extraction and per-face
// failures never produce an error; only a cancelled ctx does, and its partial
// result must be discarded.
func (p *Pipeline) Process(ctx context.Context, frame image.Image) (*AnnotatedResult, error) {
	rects, err := p.detector.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		detErr := &DetectionError{Err: err}
		p.logger.Warn("face detection failed", "error", err)
		return &AnnotatedResult{Image: frame, DetectionFailed: true, Err: detErr}, nil
	}

	if len(rects) == 0 {
		return &AnnotatedResult{Image: frame, Summary: Summarize(nil)}, nil
	}

	snap := p.gallery.Load()
	bounds := frame.Bounds()
	boxes := make([]DetectionBox, len(rects))

	for i, rect := range rects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		boxes[i] = DetectionBox{Rect: rect, Label: fmt.Sprintf("%d", i+1)}
		if err := facematch.ValidateBox(rect, bounds); err != nil {
			p.logger.Debug("skipping face box", "box", rect.String(), "bounds", bounds.String(), "error", err)
			boxes[i].Err = err
			continue
		}

		emb, err := p.extractor.Extract(ctx, Crop(frame, rect))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("embedding extraction failed", "box", rect.String(), "error", err)
			boxes[i].Err = err
			continue
		}

		boxes[i].Outcome = outcome(snap.Match(emb, p.threshold))
	}

	return &AnnotatedResult{
		Image:          Render(frame, boxes),
		Boxes:          boxes,
		Summary:        Summarize(boxes),
		Detected:       len(boxes),
		GalleryVersion: snap.Version(),
	}, nil
}

func outcome(res facematch.MatchResult) *MatchOutcome {
	o := &MatchOutcome{Distance: res.Distance}
	if res.Matched {
		o.Matched = true
		o.Name = res.Name
		o.RecordID = res.RecordID
		o.Confidence = facematch.Confidence(res.Distance)
		o.MatchLabel = facematch.Label(res.Name, res.Distance)
	}
	return o
}

// Crop copies rect out of img into a new RGBA image anchored at the origin.
func Crop(img image.Image, rect image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}
