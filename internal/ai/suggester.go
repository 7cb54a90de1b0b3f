// Package ai suggests a category for a transaction memo.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Suggester picks the best matching category name for a memo from the
// user's own category list.
type Suggester struct {
	client *openai.Client
	model  string
}

func New(apiKey, model string) *Suggester {
	return &Suggester{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

const systemPrompt = `You classify personal budget entries.
The user sends a short memo describing an income or expense, followed by
the list of their category names. Answer with exactly one name from the
list. If none fits, answer "none". No explanations.`

// SuggestCategory returns one of categories, or "" when nothing fits.
func (s *Suggester) SuggestCategory(ctx context.Context, memo string, categories []string) (string, error) {
	if len(categories) == 0 {
		return "", nil
	}

	userMsg := fmt.Sprintf("Memo: %s\nCategories: %s", memo, strings.Join(categories, ", "))

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userMsg,
			},
		},
		Temperature: 0.1,
		MaxTokens:   20,
	})
	if err != nil {
		return "", fmt.Errorf("call AI API: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from AI")
	}

	return matchCategory(resp.Choices[0].Message.Content, categories), nil
}

// matchCategory maps the model's answer back onto the allowed list. The
// model occasionally adds punctuation or changes case, anything that does
// not resolve to a listed name counts as no suggestion.
func matchCategory(answer string, categories []string) string {
	cleaned := strings.ToLower(strings.Trim(strings.TrimSpace(answer), `."'`))
	if cleaned == "" || cleaned == "none" {
		return ""
	}
	for _, c := range categories {
		if strings.ToLower(c) == cleaned {
			return c
		}
	}
	return ""
}
