package commitmsg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// maxMinutesChars bounds how much of a meeting's minutes goes into the
// prompt. Committee minutes can run to dozens of pages.
const maxMinutesChars = 8000

// OpenAISummarizer extracts version-specific notes and minutes summaries
// with a chat completion model.
type OpenAISummarizer struct {
	client    *openai.Client
	model     string
	maxTokens int
}

func NewOpenAISummarizer(apiKey, model string, maxTokens int) *OpenAISummarizer {
	return &OpenAISummarizer{
		client:    openai.NewClient(apiKey),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, req SummaryRequest) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(req)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildPrompt(req SummaryRequest) string {
	dateStr := req.Effective.Format("January 2, 2006")

	minutesSection := "None available"
	if len(req.Minutes) > 0 {
		var parts []string
		for _, m := range req.Minutes {
			text := m.Text
			if len(text) > maxMinutesChars {
				text = text[:maxMinutesChars]
			}
			parts = append(parts, fmt.Sprintf("--- Meeting %s ---\n%s", m.Date.Format("2006-01-02"), text))
		}
		minutesSection = strings.Join(parts, "\n\n")
	}

	return fmt.Sprintf(`You are summarizing changes to a North Dakota court rule for a git commit message.

Rule: Rule %s - %s
Version effective date: %s

Below are the full explanatory notes for this rule (covering ALL versions).
Extract ONLY the paragraphs or sentences that describe changes effective %s.
Omit the opening summary line that lists all amendment dates.
Omit notes about other versions.
If no paragraphs specifically mention this date, include any general guidance paragraphs that appear to be undated.

If committee minutes text is provided, extract only the portions discussing Rule %s and summarize them briefly (2-3 sentences max).

Format the output as a clean commit message body (no subject line). Keep it concise.

EXPLANATORY NOTES:
%s

COMMITTEE MINUTES:
%s`,
		req.RuleNumber, req.RuleTitle, dateStr, dateStr, req.RuleNumber, req.Notes, minutesSection)
}
