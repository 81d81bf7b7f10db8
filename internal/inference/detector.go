package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/kozaktomas/vision-assist/internal/facematch"
)

const defaultDetectorURL = "http://localhost:8000"

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face detection endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// DetectorClient finds face bounding boxes using the detection server
type DetectorClient struct {
	http     httpClient
	minScore float64
}

// NewDetectorClient creates a new detector client. Detections scoring below
// minScore are dropped.
func NewDetectorClient(baseURL string, minScore float64) *DetectorClient {
	return &DetectorClient{
		http:     newHTTPClient(baseURL, defaultDetectorURL),
		minScore: minScore,
	}
}

// DetectFaces posts encoded image bytes and returns the raw detections.
func (c *DetectorClient) DetectFaces(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := c.http.postMultipartImage(ctx, "/detect/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &faceResp, nil
}

// Detect returns the face boxes of img in its own coordinate space, in the
// order reported by the server.
func (c *DetectorClient) Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	resp, err := c.DetectFaces(ctx, buf.Bytes())
	if err != nil {
		return nil, err
	}

	offset := img.Bounds().Min
	boxes := make([]image.Rectangle, 0, len(resp.Faces))
	for _, face := range resp.Faces {
		if face.DetScore < c.minScore {
			continue
		}
		rect := facematch.RectFromCorners(face.BBox)
		if rect.Empty() {
			continue
		}
		boxes = append(boxes, rect.Add(offset))
	}
	return boxes, nil
}
