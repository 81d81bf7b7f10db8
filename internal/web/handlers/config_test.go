package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/vision-assist/internal/config"
)

func getConfig(t *testing.T, cfg *config.Config) ConfigResponse {
	t.Helper()
	recorder := httptest.NewRecorder()
	NewConfigHandler(cfg).Get(recorder, httptest.NewRequest("GET", "/api/v1/config", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var result ConfigResponse
	parseJSONResponse(t, recorder, &result)
	return result
}

func findProvider(result ConfigResponse, name string) *ProviderInfo {
	for i := range result.Providers {
		if result.Providers[i].Name == name {
			return &result.Providers[i]
		}
	}
	return nil
}

func TestConfigHandler_Get_Providers(t *testing.T) {
	tests := []struct {
		name       string
		cfg        *config.Config
		wantOpenAI bool
		wantGemini bool
	}{
		{"empty config", &config.Config{}, false, false},
		{"openai token", &config.Config{OpenAI: config.OpenAIConfig{Token: "sk-test"}}, true, false},
		{"gemini key", &config.Config{Gemini: config.GeminiConfig{APIKey: "key"}}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getConfig(t, tt.cfg)
			if len(result.Providers) != 3 {
				t.Fatalf("expected 3 providers, got %d", len(result.Providers))
			}

			for name, want := range map[string]bool{"openai": tt.wantOpenAI, "gemini": tt.wantGemini, "ollama": true} {
				p := findProvider(result, name)
				if p == nil {
					t.Fatalf("expected %s provider in response", name)
				}
				if p.Available != want {
					t.Errorf("%s available = %v, want %v", name, p.Available, want)
				}
			}
		})
	}
}

func TestConfigHandler_Get_Recognition(t *testing.T) {
	cfg := &config.Config{
		Recognition: config.RecognitionConfig{Threshold: 0.8, Index: "hnsw"},
		Embedding:   config.EmbeddingConfig{Dim: 192},
		Camera:      config.CameraConfig{URL: "http://cam.local/shot.jpg", PollDelay: 250 * time.Millisecond},
		Database:    config.DatabaseConfig{URL: "postgres://localhost/faces"},
	}

	result := getConfig(t, cfg)

	if result.Threshold != 0.8 || result.Index != "hnsw" || result.EmbeddingDim != 192 {
		t.Errorf("recognition settings = %+v", result)
	}
	if !result.CameraEnabled || result.PollDelayMs != 250 {
		t.Errorf("camera settings = %+v", result)
	}
	if !result.Persistent {
		t.Error("expected persistent store when DATABASE_URL is set")
	}
}

func TestConfigHandler_Get_DefaultIndex(t *testing.T) {
	if got := getConfig(t, &config.Config{}).Index; got != "linear" {
		t.Errorf("index = %q, want linear", got)
	}
}
