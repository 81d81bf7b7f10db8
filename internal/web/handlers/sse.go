package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kozaktomas/vision-assist/internal/monitor"
)

// setupSSEConnection sets the event stream headers. On failure it writes an
// error response and returns false.
func setupSSEConnection(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return flusher, true
}

// sendSSEEvent writes one event. Nothing is written when data cannot be encoded.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
	return nil
}

// FrameEvent is a processed monitor frame without its image
type FrameEvent struct {
	ID         string            `json:"id"`
	Seq        uint64            `json:"seq"`
	CapturedAt time.Time         `json:"captured_at"`
	DurationMs int64             `json:"duration_ms"`
	Result     RecognizeResponse `json:"result"`
}

func newFrameEvent(f *monitor.Frame) FrameEvent {
	ev := FrameEvent{
		ID:         f.ID,
		Seq:        f.Seq,
		CapturedAt: f.CapturedAt,
		DurationMs: f.Duration.Milliseconds(),
	}
	if f.Result != nil {
		ev.Result = NewRecognizeResponse(f.Result)
	}
	return ev
}
