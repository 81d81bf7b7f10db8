// Package inference provides HTTP clients for the external face detection
// service and the embedding model server.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

const (
	// maxResponseSize bounds the bodies read from the collaborators.
	maxResponseSize = 8 << 20
	// maxErrorBody is how much of a failed response ends up in StatusError.
	maxErrorBody = 512
)

// StatusError is returned when a collaborator answers with a non-200 status.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.URL, e.Status, e.Body)
}

// httpClient is the transport shared by the detector and runtime clients.
type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL, defaultURL string) httpClient {
	if baseURL == "" {
		baseURL = defaultURL
	}
	return httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

// postMultipartImage uploads imageData as the "file" field. The part's
// Content-Type is sniffed from the data.
func (c *httpClient) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="frame"`)
	header.Set("Content-Type", imageContentType(imageData))
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	return c.send(ctx, http.MethodPost, endpoint, mw.FormDataContentType(), &buf)
}

func (c *httpClient) postJSON(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.send(ctx, http.MethodPost, endpoint, "application/json", bytes.NewReader(body))
}

func (c *httpClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	return c.send(ctx, http.MethodGet, endpoint, "", nil)
}

func (c *httpClient) send(ctx context.Context, method, endpoint, contentType string, body io.Reader) ([]byte, error) {
	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response of %s: %w", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody] + "..."
		}
		return nil, &StatusError{URL: url, Status: resp.StatusCode, Body: msg}
	}
	return data, nil
}

// imageContentType sniffs the image format of data, falling back to a
// generic binary type for anything that is not an image.
func imageContentType(data []byte) string {
	if ct := http.DetectContentType(data); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "application/octet-stream"
}
