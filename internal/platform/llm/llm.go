// Package llm adapts single-call chat completion clients to the
// generation.Generator contract. Provider packages (gemini, openai,
// anthropic) only implement Completer; this package owns prompts,
// conversation history per resume handle, retries and cost accounting.
package llm

import (
	"context"
	"errors"
)

// Role of a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// Request is a single model call.
type Request struct {
	System  string
	History []Message
	Prompt  string
}

// Completion is the model's answer to a Request. Tokens is zero when the
// provider does not report usage.
type Completion struct {
	Text   string
	Tokens int
}

// Completer performs one model call.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// ErrPermanent marks completer errors that retrying cannot fix.
var ErrPermanent = errors.New("permanent model error")

// EstimateTokens approximates usage at four characters per token.
func EstimateTokens(req Request, answer string) int {
	n := len(req.System) + len(req.Prompt) + len(answer)
	for _, m := range req.History {
		n += len(m.Content)
	}
	return (n + 3) / 4
}
