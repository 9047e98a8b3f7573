// Package anthropic implements llm.Completer with the Anthropic messages API
// through llmkit. llmkit sends one system and one user message per call, so
// prior turns are replayed as a transcript inside the user message.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
	"github.com/phrazzld/mailroom/internal/config"
	"github.com/phrazzld/mailroom/internal/generation"
	"github.com/phrazzld/mailroom/internal/platform/llm"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-3-5-haiku-latest"

	defaultMaxTokens   = 1024
	defaultTemperature = 0.4
)

type promptFunc func(system, user string) (string, error)

// Completer calls the messages endpoint.
type Completer struct {
	call promptFunc
}

var _ llm.Completer = (*Completer)(nil)

// New creates a completer from cfg.
func New(cfg config.LLMConfig) (*Completer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic API key cannot be empty", generation.ErrInvalidConfig)
	}
	settings := types.RequestSettings{
		Model:       cfg.Model,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	}
	if settings.Model == "" {
		settings.Model = DefaultModel
	}

	apiKey := cfg.APIKey
	return &Completer{call: func(system, user string) (string, error) {
		response, err := anthropic.PromptWithSettings(system, user, "", apiKey, settings)
		if err != nil {
			return "", err
		}
		if len(response.Content) == 0 {
			return "", fmt.Errorf("%w: no content in response", generation.ErrInvalidResponse)
		}
		return response.Content[0].Text, nil
	}}, nil
}

type result struct {
	text string
	err  error
}

// Complete implements llm.Completer. llmkit takes no context, so a cancelled
// ctx abandons the call rather than aborting it.
func (c *Completer) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	done := make(chan result, 1)
	user := transcript(req)
	go func() {
		text, err := c.call(req.System, user)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return llm.Completion{}, r.err
		}
		return llm.Completion{Text: r.text}, nil
	case <-ctx.Done():
		return llm.Completion{}, ctx.Err()
	}
}

// transcript renders prior turns ahead of the new prompt.
func transcript(req llm.Request) string {
	if len(req.History) == 0 {
		return req.Prompt
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n\n")
	for _, m := range req.History {
		label := "User"
		if m.Role == llm.RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", label, m.Content)
	}
	b.WriteString("User:\n")
	b.WriteString(req.Prompt)
	return b.String()
}
