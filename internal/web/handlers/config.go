package handlers

import (
	"net/http"

	"github.com/kozaktomas/vision-assist/internal/config"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Providers     []ProviderInfo `json:"providers"`
	Threshold     float64        `json:"threshold"`
	Index         string         `json:"index"`
	EmbeddingDim  int            `json:"embedding_dim"`
	Persistent    bool           `json:"persistent"`
	CameraEnabled bool           `json:"camera_enabled"`
	PollDelayMs   int64          `json:"poll_delay_ms"`
	SkipUnchanged bool           `json:"skip_unchanged"`
}

// ProviderInfo represents information about a summarization provider
type ProviderInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Get returns the non-secret configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	providers := []ProviderInfo{
		{
			Name:      "openai",
			Available: h.config.OpenAI.Token != "",
		},
		{
			Name:      "gemini",
			Available: h.config.Gemini.APIKey != "",
		},
		{
			Name:      "ollama",
			Available: true, // Always available (local)
		},
	}

	index := h.config.Recognition.Index
	if index == "" {
		index = "linear"
	}

	response := ConfigResponse{
		Providers:     providers,
		Threshold:     h.config.Recognition.Threshold,
		Index:         index,
		EmbeddingDim:  h.config.Embedding.Dim,
		Persistent:    h.config.Database.URL != "",
		CameraEnabled: h.config.Camera.Configured(),
		PollDelayMs:   h.config.Camera.PollDelay.Milliseconds(),
		SkipUnchanged: h.config.Camera.SkipUnchanged,
	}

	respondJSON(w, http.StatusOK, response)
}
