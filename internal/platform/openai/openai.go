// Package openai implements llm.Completer with the OpenAI chat completions
// API. BaseURL makes it usable against any OpenAI-compatible gateway.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/phrazzld/mailroom/internal/config"
	"github.com/phrazzld/mailroom/internal/generation"
	"github.com/phrazzld/mailroom/internal/platform/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Completer calls the chat completions endpoint.
type Completer struct {
	client openai.Client
	model  string
}

var _ llm.Completer = (*Completer)(nil)

// New creates a client from cfg.
func New(cfg config.LLMConfig) (*Completer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai API key cannot be empty", generation.ErrInvalidConfig)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Completer{client: openai.NewClient(opts...), model: model}, nil
}

// Complete implements llm.Completer.
func (c *Completer) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages(req),
	})
	if err != nil {
		return llm.Completion{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return llm.Completion{}, fmt.Errorf("%w: no choices returned", generation.ErrInvalidResponse)
	}
	if resp.Choices[0].FinishReason == "content_filter" {
		return llm.Completion{}, generation.ErrContentBlocked
	}
	return llm.Completion{
		Text:   resp.Choices[0].Message.Content,
		Tokens: int(resp.Usage.TotalTokens),
	}, nil
}

func messages(req llm.Request) []openai.ChatCompletionMessageParamUnion {
	msgs := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(req.System)}
	for _, m := range req.History {
		if m.Role == llm.RoleAssistant {
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return append(msgs, openai.UserMessage(req.Prompt))
}

// classify marks client errors other than rate limiting as permanent.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) &&
		apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 &&
		apiErr.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", llm.ErrPermanent, err)
	}
	return err
}
