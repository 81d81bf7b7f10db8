package source

import (
	"context"
	"fmt"
	"image"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/kozaktomas/vision-assist/internal/constants"
)

// HTTPSource polls a remote endpoint that serves the latest camera image.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates a source fetching frames from rawURL. A zero timeout
// lets a download run until it completes, fails or ctx is cancelled.
func NewHTTPSource(rawURL string, timeout time.Duration) (*HTTPSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid camera URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid camera URL %q: scheme must be http or https", rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid camera URL %q: missing host", rawURL)
	}

	return &HTTPSource{
		url:    rawURL,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// URL returns the polled endpoint.
func (s *HTTPSource) URL() string {
	return s.url
}

// Probe checks that the camera host accepts connections.
func (s *HTTPSource) Probe(ctx context.Context) error {
	u, err := url.Parse(s.url)
	if err != nil {
		return fmt.Errorf("invalid camera URL: %w", err)
	}

	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.ProbeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return fmt.Errorf("camera %s is not reachable: %w", host, err)
	}
	return conn.Close()
}

// Next downloads and decodes the current image.
func (s *HTTPSource) Next(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("camera returned status %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxUploadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	return Decode(data)
}

// Close releases idle connections.
func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
