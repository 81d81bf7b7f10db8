package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/vision-assist/internal/embedding"
)

const (
	defaultRuntimeURL   = "http://localhost:8501"
	defaultRuntimeModel = "mobile_face_net"
)

// RuntimeClient runs the embedding model on a TensorFlow Serving instance
// through its REST predict API.
type RuntimeClient struct {
	http  httpClient
	model string
}

// NewRuntimeClient creates a new model runtime client
func NewRuntimeClient(baseURL, model string) *RuntimeClient {
	if model == "" {
		model = defaultRuntimeModel
	}
	return &RuntimeClient{
		http:  newHTTPClient(baseURL, defaultRuntimeURL),
		model: model,
	}
}

type predictRequest struct {
	Instances [][][][]float32 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float32 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

type modelStatusResponse struct {
	ModelVersionStatus []struct {
		Version string `json:"version"`
		State   string `json:"state"`
	} `json:"model_version_status"`
}

// Run sends an NHWC tensor with a batch size of one and returns the first prediction.
func (c *RuntimeClient) Run(ctx context.Context, input embedding.Tensor) ([]float32, error) {
	instance, err := toHWC(input)
	if err != nil {
		return nil, err
	}

	body, err := c.http.postJSON(ctx, "/v1/models/"+c.model+":predict", predictRequest{
		Instances: [][][][]float32{instance},
	})
	if err != nil {
		return nil, err
	}

	var resp predictResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("model error: %s", resp.Error)
	}
	if len(resp.Predictions) == 0 || len(resp.Predictions[0]) == 0 {
		return nil, errors.New("empty prediction returned")
	}

	return resp.Predictions[0], nil
}

// Ready reports whether the served model has an AVAILABLE version.
func (c *RuntimeClient) Ready(ctx context.Context) error {
	body, err := c.http.get(ctx, "/v1/models/"+c.model)
	if err != nil {
		return err
	}

	var status modelStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("failed to parse model status: %w", err)
	}
	for _, v := range status.ModelVersionStatus {
		if v.State == "AVAILABLE" {
			return nil
		}
	}
	return fmt.Errorf("model %s has no available version", c.model)
}

// Model returns the served model name
func (c *RuntimeClient) Model() string {
	return c.model
}

// Close drops idle keep-alive connections to the model server.
func (c *RuntimeClient) Close() error {
	c.http.client.CloseIdleConnections()
	return nil
}

// toHWC reshapes a [1, H, W, C] tensor into nested slices for JSON encoding.
func toHWC(t embedding.Tensor) ([][][]float32, error) {
	if len(t.Shape) != 4 || t.Shape[0] != 1 {
		return nil, fmt.Errorf("unsupported tensor shape %v", t.Shape)
	}
	h, w, ch := t.Shape[1], t.Shape[2], t.Shape[3]
	if len(t.Data) != h*w*ch {
		return nil, fmt.Errorf("tensor has %d values, shape %v needs %d", len(t.Data), t.Shape, h*w*ch)
	}

	out := make([][][]float32, h)
	for y := range h {
		out[y] = make([][]float32, w)
		for x := range w {
			start := (y*w + x) * ch
			out[y][x] = t.Data[start : start+ch]
		}
	}
	return out, nil
}
