package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const defaultOpenAIModel = openai.ChatModelGPT4_1Mini

type OpenAISummarizer struct {
	usageTracker

	client *openai.Client
	model  string
}

// NewOpenAISummarizer creates a summarizer for the OpenAI chat API. Extra
// options (for example option.WithBaseURL) are passed to the client.
func NewOpenAISummarizer(apiKey, model string, pricing RequestPricing, opts ...option.RequestOption) *OpenAISummarizer {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAISummarizer{
		usageTracker: usageTracker{pricing: pricing},
		client:       &client,
		model:        model,
	}
}

func (p *OpenAISummarizer) Name() string {
	return p.model
}

func (p *OpenAISummarizer) Summarize(ctx context.Context, document, instruction string) (*Summary, error) {
	if err := ValidateDocument(document); err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(buildSummaryPrompt()),
			openai.UserMessage(buildSummaryContent(document, instruction)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		MaxTokens: openai.Int(summaryMaxTokens),
	}

	return summarizeWithRetry(ctx, p.model, func(ctx context.Context, fix *correction) (answer, error) {
		if fix != nil {
			params.Messages = append(params.Messages,
				openai.AssistantMessage(fix.rejected),
				openai.UserMessage(fix.feedback),
			)
		}

		resp, err := p.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return answer{}, fmt.Errorf("OpenAI API error: %w", err)
		}
		usage := p.track(int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens))
		if len(resp.Choices) == 0 {
			return answer{}, errors.New("no response from OpenAI")
		}
		return answer{content: resp.Choices[0].Message.Content, usage: usage}, nil
	})
}
