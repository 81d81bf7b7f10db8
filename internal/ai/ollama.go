package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.2"
)

// OllamaSummarizer uses a local Ollama server. Usage is tracked without cost.
type OllamaSummarizer struct {
	usageTracker

	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaSummarizer(baseURL, model string) *OllamaSummarizer {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaSummarizer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

func (p *OllamaSummarizer) Name() string {
	return p.model
}

// ollamaRequest is the body of POST /api/chat. Stream is always false.
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

// ollamaResponse is the single reply of a non-streaming chat.
type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

func (p *OllamaSummarizer) Summarize(ctx context.Context, document, instruction string) (*Summary, error) {
	if err := ValidateDocument(document); err != nil {
		return nil, err
	}

	req := ollamaRequest{
		Model: p.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: buildSummaryPrompt()},
			{Role: "user", Content: buildSummaryContent(document, instruction)},
		},
		Format:  "json",
		Options: ollamaOptions{NumPredict: summaryMaxTokens},
	}

	return summarizeWithRetry(ctx, p.model, func(ctx context.Context, fix *correction) (answer, error) {
		if fix != nil {
			req.Messages = append(req.Messages,
				ollamaMessage{Role: "assistant", Content: fix.rejected},
				ollamaMessage{Role: "user", Content: fix.feedback},
			)
		}

		resp, err := p.chat(ctx, req)
		if err != nil {
			return answer{}, fmt.Errorf("ollama API error: %w", err)
		}
		// Local models are free; tokens are still counted.
		return answer{
			content: resp.Message.Content,
			usage:   p.track(resp.PromptEvalCount, resp.EvalCount),
		}, nil
	})
}

// chat sends a non-streaming request to /api/chat.
func (p *OllamaSummarizer) chat(ctx context.Context, chatReq ollamaRequest) (*ollamaResponse, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}
