package ai

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed prompts/summarize.txt
var summarizePrompt string

const (
	// maxRetries bounds how often a model is asked to fix an unparsable answer.
	maxRetries = 3
	// summaryMaxTokens caps the length of a generated summary.
	summaryMaxTokens = 1000
)

// buildSummaryPrompt returns the system prompt for summarization.
// This is shared across all AI providers.
func buildSummaryPrompt() string {
	return summarizePrompt
}

// buildSummaryContent builds the user message: the instruction, then the document.
func buildSummaryContent(document, instruction string) string {
	var b strings.Builder
	if instruction = strings.TrimSpace(instruction); instruction != "" {
		fmt.Fprintf(&b, "Instruction: %s\n\n", instruction)
	}
	b.WriteString("Document:\n")
	b.WriteString(document)
	return b.String()
}

// answer is the text of one model call and the usage it cost.
type answer struct {
	content string
	usage   Usage
}

// correction is appended to a conversation after an unparsable answer: the
// rejected answer as the model's turn, then the feedback as the user's turn.
type correction struct {
	rejected string
	feedback string
}

// askFunc performs one model call. fix is nil on the first call.
type askFunc func(ctx context.Context, fix *correction) (answer, error)

// summarizeWithRetry calls ask until the answer parses as a summary, at most
// maxRetries times. Usage of every call is summed into the result.
func summarizeWithRetry(ctx context.Context, model string, ask askFunc) (*Summary, error) {
	var (
		total   Usage
		fix     *correction
		lastErr error
	)
	for range maxRetries {
		a, err := ask(ctx, fix)
		if err != nil {
			return nil, err
		}
		total.InputTokens += a.usage.InputTokens
		total.OutputTokens += a.usage.OutputTokens
		total.TotalCost += a.usage.TotalCost

		summary, err := parseSummary(a.content)
		if err == nil {
			summary.Model = model
			summary.Usage = total
			return summary, nil
		}
		lastErr = err
		fix = &correction{rejected: a.content, feedback: retryMessage(err)}
	}
	return nil, fmt.Errorf("failed to parse summary JSON after %d attempts: %w (last response: %s)", maxRetries, lastErr, fix.rejected)
}

// retryMessage asks the model to fix its previous answer.
func retryMessage(err error) string {
	return fmt.Sprintf("JSON parse error: %v. Please fix the JSON and try again. "+
		"Remember to escape quotes inside strings with backslash. Output ONLY valid JSON, no other text.", err)
}

// parseSummary decodes a model answer. Surrounding text is ignored.
func parseSummary(content string) (*Summary, error) {
	var s Summary
	if err := json.Unmarshal([]byte(extractJSON(content)), &s); err != nil {
		return nil, err
	}
	s.Text = strings.TrimSpace(s.Text)
	if s.Text == "" {
		return nil, fmt.Errorf("summary field is empty")
	}
	return &s, nil
}

// extractJSON attempts to extract JSON from a response that may contain extra text
func extractJSON(content string) string {
	// Try to find JSON object boundaries
	start := strings.Index(content, "{")
	if start == -1 {
		return content
	}

	// Find matching closing brace
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(content); i++ {
		c := content[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case c == '{' && !inString:
			depth++
		case c == '}' && !inString:
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}

	// If no matching brace found, return from start
	return content[start:]
}
