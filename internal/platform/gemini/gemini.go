// Package gemini implements llm.Completer with Google's Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/phrazzld/mailroom/internal/config"
	"github.com/phrazzld/mailroom/internal/generation"
	"github.com/phrazzld/mailroom/internal/platform/llm"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// Completer calls the Gemini generateContent endpoint.
type Completer struct {
	client *genai.Client
	model  string
}

var _ llm.Completer = (*Completer)(nil)

// New creates a Gemini client from cfg.
func New(ctx context.Context, cfg config.LLMConfig) (*Completer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}
	return &Completer{client: client, model: model}, nil
}

// Complete implements llm.Completer.
func (c *Completer) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents(req), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: req.System}}},
	})
	if err != nil {
		return llm.Completion{}, err
	}
	return completion(resp)
}

// contents maps the conversation to Gemini's user/model roles.
func contents(req llm.Request) []*genai.Content {
	out := make([]*genai.Content, 0, len(req.History)+1)
	for _, m := range req.History {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
	}
	return append(out, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: req.Prompt}}})
}

func completion(resp *genai.GenerateContentResponse) (llm.Completion, error) {
	switch {
	case resp == nil:
		return llm.Completion{}, fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	case len(resp.Candidates) == 0:
		return llm.Completion{}, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	case resp.Candidates[0].FinishReason == genai.FinishReasonSafety:
		return llm.Completion{}, generation.ErrContentBlocked
	case resp.Candidates[0].Content == nil:
		return llm.Completion{}, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}
	var tokens int
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return llm.Completion{Text: text.String(), Tokens: tokens}, nil
}
