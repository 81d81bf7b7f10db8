package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

type GeminiSummarizer struct {
	usageTracker

	client *genai.Client
	model  string
}

func NewGeminiSummarizer(ctx context.Context, apiKey, model string, pricing RequestPricing) (*GeminiSummarizer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiSummarizer{
		usageTracker: usageTracker{pricing: pricing},
		client:       client,
		model:        model,
	}, nil
}

func (p *GeminiSummarizer) Name() string {
	return p.model
}

func (p *GeminiSummarizer) Summarize(ctx context.Context, document, instruction string) (*Summary, error) {
	if err := ValidateDocument(document); err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(buildSummaryPrompt()),
			genai.NewPartFromText(buildSummaryContent(document, instruction)),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	return summarizeWithRetry(ctx, p.model, func(ctx context.Context, fix *correction) (answer, error) {
		if fix != nil {
			contents = append(contents,
				genai.NewContentFromText(fix.rejected, genai.RoleModel),
				genai.NewContentFromText(fix.feedback, genai.RoleUser),
			)
		}

		result, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
		if err != nil {
			return answer{}, fmt.Errorf("gemini API error: %w", err)
		}

		var a answer
		if md := result.UsageMetadata; md != nil {
			a.usage = p.track(int(md.PromptTokenCount), int(md.CandidatesTokenCount))
		}
		if a.content = result.Text(); a.content == "" {
			return answer{}, errors.New("no response from Gemini")
		}
		return a, nil
	})
}
