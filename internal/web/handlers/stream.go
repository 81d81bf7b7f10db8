package handlers

import (
	"log/slog"
	"net/http"

	"github.com/kozaktomas/vision-assist/internal/monitor"
)

// StreamHandler exposes the frames of the monitor loop
type StreamHandler struct {
	hub       *monitor.Hub
	announcer *monitor.Announcer
	stats     func() monitor.Stats
}

// NewStreamHandler creates a new stream handler. stats may be nil when no
// monitor is running.
func NewStreamHandler(hub *monitor.Hub, announcer *monitor.Announcer, stats func() monitor.Stats) *StreamHandler {
	return &StreamHandler{
		hub:       hub,
		announcer: announcer,
		stats:     stats,
	}
}

// Events streams "frame" and "announcement" events until the client disconnects.
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}

	frameCh := h.hub.AddListener()
	defer h.hub.RemoveListener(frameCh)

	var announceCh chan monitor.Announcement
	if h.announcer != nil {
		announceCh = h.announcer.AddListener()
		defer h.announcer.RemoveListener(announceCh)
	}

	send := func(eventType string, data any) {
		if err := sendSSEEvent(w, flusher, eventType, data); err != nil {
			slog.Error("dropping stream event", "error", err)
		}
	}

	if latest := h.hub.Latest(); latest != nil {
		send("frame", newFrameEvent(latest))
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-frameCh:
			if !ok {
				return
			}
			send("frame", newFrameEvent(&frame))
		case ann, ok := <-announceCh:
			if !ok {
				return
			}
			send("announcement", ann)
		}
	}
}

// Latest returns the most recent annotated frame as JPEG.
func (h *StreamHandler) Latest(w http.ResponseWriter, r *http.Request) {
	frame := h.hub.Latest()
	if frame == nil || frame.Result == nil || frame.Result.Image == nil {
		respondError(w, http.StatusNotFound, "no frame processed yet")
		return
	}
	w.Header().Set("X-Frame-ID", frame.ID)
	writeJPEG(w, frame.Result.Image, frame.Result.Summary)
}

// Stats returns the monitor counters.
func (h *StreamHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		respondError(w, http.StatusNotFound, "monitor is not running")
		return
	}
	respondJSON(w, http.StatusOK, h.stats())
}
