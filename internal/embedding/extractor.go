// Package embedding turns cropped face images into fixed-length embedding vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/kozaktomas/vision-assist/internal/constants"
)

// ErrEmptyImage is returned for nil images or images without pixels.
var ErrEmptyImage = errors.New("image is empty")

// ExtractionError reports that an embedding could not be produced for an image.
// Callers treat it as "no embedding available" and skip the face.
type ExtractionError struct {
	Op  string // preprocess, run or validate
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("embedding extraction failed (%s): %v", e.Op, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Tensor is a dense float32 buffer in NHWC layout.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Runtime executes the embedding model on a preprocessed input tensor.
type Runtime interface {
	Run(ctx context.Context, input Tensor) ([]float32, error)
}

// RuntimeFunc adapts a function to the Runtime interface.
type RuntimeFunc func(ctx context.Context, input Tensor) ([]float32, error)

func (f RuntimeFunc) Run(ctx context.Context, input Tensor) ([]float32, error) {
	return f(ctx, input)
}

// Extractor resizes, normalizes and embeds face crops.
type Extractor struct {
	runtime   Runtime
	inputSize int
	dim       int
}

// NewExtractor creates an extractor for a model with a square input of
// inputSize pixels and an output of dim floats. Zero values select the
// MobileFaceNet defaults (112 and 192).
func NewExtractor(runtime Runtime, inputSize, dim int) *Extractor {
	if inputSize <= 0 {
		inputSize = constants.EmbeddingInputSize
	}
	if dim <= 0 {
		dim = constants.EmbeddingDim
	}
	return &Extractor{
		runtime:   runtime,
		inputSize: inputSize,
		dim:       dim,
	}
}

// Dim returns the embedding length produced by the extractor.
func (e *Extractor) Dim() int {
	return e.dim
}

// Extract returns the embedding of a cropped face. The model output is returned unchanged.
func (e *Extractor) Extract(ctx context.Context, img image.Image) ([]float32, error) {
	input, err := Preprocess(img, e.inputSize)
	if err != nil {
		return nil, &ExtractionError{Op: "preprocess", Err: err}
	}

	out, err := e.runtime.Run(ctx, input)
	if err != nil {
		return nil, &ExtractionError{Op: "run", Err: err}
	}

	if len(out) != e.dim {
		return nil, &ExtractionError{
			Op:  "validate",
			Err: fmt.Errorf("model returned %d values, expected %d", len(out), e.dim),
		}
	}
	return out, nil
}

// Preprocess scales img to size x size with bilinear interpolation and
// normalizes each RGB channel into [0,1].
func Preprocess(img image.Image, size int) (Tensor, error) {
	if img == nil || img.Bounds().Empty() {
		return Tensor{}, ErrEmptyImage
	}
	if size <= 0 {
		return Tensor{}, fmt.Errorf("invalid input size %d", size)
	}

	resized := resizeImage(img, size, size)

	data := make([]float32, 0, size*size*3)
	for y := range size {
		row := resized.Pix[y*resized.Stride:]
		for x := range size {
			px := row[x*4 : x*4+3]
			data = append(data,
				float32(px[0])/constants.PixelScale,
				float32(px[1])/constants.PixelScale,
				float32(px[2])/constants.PixelScale,
			)
		}
	}

	return Tensor{Shape: []int{1, size, size, 3}, Data: data}, nil
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
