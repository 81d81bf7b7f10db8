package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/kozaktomas/vision-assist/internal/config"
	"github.com/kozaktomas/vision-assist/internal/constants"
)

var (
	// ErrEmptyDocument is returned when there is nothing to summarize
	ErrEmptyDocument = errors.New("document is empty")
	// ErrDocumentTooLarge is returned for documents above the size limit
	ErrDocumentTooLarge = errors.New("document is too large")
	// ErrInvalidDocument is returned for documents that are not UTF-8 text
	ErrInvalidDocument = errors.New("document is not valid UTF-8 text")
)

// Summarizer condenses a text document following an optional instruction.
type Summarizer interface {
	Name() string
	Summarize(ctx context.Context, document, instruction string) (*Summary, error)

	// Usage tracking.
	GetUsage() Usage
	ResetUsage()
}

// Summary is the result of summarizing a document.
type Summary struct {
	Text      string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Model     string   `json:"model"`
	Usage     Usage    `json:"usage"`
}

// Usage tracks token usage and calculates cost.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalCost    float64 `json:"total_cost"` // in USD
}

// RequestPricing holds input/output prices per 1M tokens
type RequestPricing struct {
	Input  float64
	Output float64
}

// usageTracker accumulates usage across calls. It is safe for concurrent use.
type usageTracker struct {
	mu      sync.Mutex
	usage   Usage
	pricing RequestPricing
}

// track adds one call and returns its own usage.
func (t *usageTracker) track(inputTokens, outputTokens int) Usage {
	call := Usage{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalCost: float64(inputTokens)/1_000_000*t.pricing.Input +
			float64(outputTokens)/1_000_000*t.pricing.Output,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.InputTokens += call.InputTokens
	t.usage.OutputTokens += call.OutputTokens
	t.usage.TotalCost += call.TotalCost
	return call
}

func (t *usageTracker) GetUsage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

func (t *usageTracker) ResetUsage() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage = Usage{}
}

// ValidateDocument checks that document is non-empty UTF-8 text within the size limit.
func ValidateDocument(document string) error {
	if strings.TrimSpace(document) == "" {
		return ErrEmptyDocument
	}
	if len(document) > constants.MaxSummaryDocumentSize {
		return ErrDocumentTooLarge
	}
	if !utf8.ValidString(document) {
		return ErrInvalidDocument
	}
	return nil
}

// Provider names accepted by New.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// New creates the summarizer for provider. An empty provider picks the
// first one with credentials: Gemini, then OpenAI, then a local Ollama.
func New(ctx context.Context, provider string, cfg *config.Config) (Summarizer, error) {
	if provider == "" {
		switch {
		case cfg.Gemini.APIKey != "":
			provider = ProviderGemini
		case cfg.OpenAI.Token != "":
			provider = ProviderOpenAI
		default:
			provider = ProviderOllama
		}
	}

	switch strings.ToLower(provider) {
	case ProviderGemini:
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY environment variable is required")
		}
		pricing := cfg.GetModelPricing(cfg.Gemini.Model)
		return NewGeminiSummarizer(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model,
			RequestPricing{Input: pricing.Standard.Input, Output: pricing.Standard.Output})
	case ProviderOpenAI:
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN environment variable is required")
		}
		pricing := cfg.GetModelPricing(cfg.OpenAI.Model)
		return NewOpenAISummarizer(cfg.OpenAI.Token, cfg.OpenAI.Model,
			RequestPricing{Input: pricing.Standard.Input, Output: pricing.Standard.Output}), nil
	case ProviderOllama:
		return NewOllamaSummarizer(cfg.Ollama.URL, cfg.Ollama.Model), nil
	default:
		return nil, fmt.Errorf("unknown summarizer provider %q (use %s, %s or %s)",
			provider, ProviderGemini, ProviderOpenAI, ProviderOllama)
	}
}
