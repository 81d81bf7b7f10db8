package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/vision-assist/internal/monitor"
)

// AnnouncementsHandler toggles spoken-summary announcements
type AnnouncementsHandler struct {
	announcer *monitor.Announcer
}

// NewAnnouncementsHandler creates a new announcements handler
func NewAnnouncementsHandler(announcer *monitor.Announcer) *AnnouncementsHandler {
	return &AnnouncementsHandler{announcer: announcer}
}

// AnnouncementsState is the announcement toggle
type AnnouncementsState struct {
	Enabled *bool `json:"enabled"`
}

// Get returns the toggle state.
func (h *AnnouncementsHandler) Get(w http.ResponseWriter, r *http.Request) {
	enabled := h.announcer.Enabled()
	respondJSON(w, http.StatusOK, AnnouncementsState{Enabled: &enabled})
}

// Update switches announcements on or off.
func (h *AnnouncementsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req AnnouncementsState
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Enabled == nil {
		respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	h.announcer.SetEnabled(*req.Enabled)
	slog.Info("announcements toggled", "enabled", *req.Enabled)

	h.Get(w, r)
}
