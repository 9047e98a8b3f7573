package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mailroom/internal/config"
	"github.com/phrazzld/mailroom/internal/domain"
	"github.com/phrazzld/mailroom/internal/generation"
	"github.com/phrazzld/mailroom/internal/redact"
)

// Options tune a Generator.
type Options struct {
	// Provider names the backend in logs.
	Provider        string
	CostPer1KTokens float64
	MaxRetries      int
	RetryDelay      time.Duration
}

// OptionsFromConfig maps the LLM configuration section to Options.
func OptionsFromConfig(cfg config.LLMConfig) Options {
	return Options{
		Provider:        cfg.Provider,
		CostPer1KTokens: cfg.CostPer1KTokens,
		MaxRetries:      cfg.MaxRetries,
		RetryDelay:      time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}
}

// Generator implements generation.Generator on top of a Completer.
type Generator struct {
	completer Completer
	opts      Options
	logger    *slog.Logger

	mu            sync.Mutex
	conversations map[string][]Message
	rng           *rand.Rand
}

var _ generation.Generator = (*Generator)(nil)

// NewGenerator wraps completer.
func NewGenerator(completer Completer, opts Options, logger *slog.Logger) (*Generator, error) {
	if completer == nil {
		return nil, fmt.Errorf("%w: completer cannot be nil", generation.ErrInvalidConfig)
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Generator{
		completer:     completer,
		opts:          opts,
		logger:        logger.With("component", "llm_generator", "provider", opts.Provider),
		conversations: make(map[string][]Message),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Summarize implements generation.Summarizer.
func (g *Generator) Summarize(ctx context.Context, item domain.Item) (string, error) {
	prompt, err := generation.SummaryPrompt(item)
	if err != nil {
		return "", err
	}
	c, err := g.complete(ctx, Request{System: generation.SystemPrompt, Prompt: prompt})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(c.Text), nil
}

// GenerateDraft implements generation.Drafter.
func (g *Generator) GenerateDraft(ctx context.Context, item domain.Item) (string, error) {
	prompt, err := generation.DraftPrompt(item)
	if err != nil {
		return "", err
	}
	c, err := g.complete(ctx, Request{System: generation.SystemPrompt, Prompt: prompt})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(c.Text), nil
}

// Refine implements generation.Refiner. The first turn mints a resume
// handle; later turns replay the history stored under it. A handle this
// generator no longer knows, for example after a restart, falls back to a
// full-context prompt under the same handle.
func (g *Generator) Refine(
	ctx context.Context,
	req generation.RefineRequest,
) (string, generation.ResponseMetadata, error) {
	start := time.Now()
	if strings.TrimSpace(req.Feedback) == "" {
		return "", generation.ResponseMetadata{}, generation.ErrEmptyFeedback
	}

	handle := req.Session.ResumeHandle
	prompt := req.Prompt
	var history []Message
	if handle == "" {
		handle = uuid.NewString()
	} else {
		history = g.history(handle)
	}

	var err error
	switch {
	case prompt == "":
		turn := req.Session.Turn
		if history == nil {
			turn = 1
		}
		prompt, err = generation.RefinePrompt(req.Item, req.CurrentDraft, req.Feedback, turn)
	case history == nil && !generation.IsFullContextPrompt(prompt):
		g.logger.WarnContext(ctx, "conversation not found, resending full context",
			"item_id", req.Session.ItemID,
			"turn", req.Session.Turn)
		prompt, err = generation.RefinePrompt(req.Item, req.CurrentDraft, req.Feedback, 1)
	}
	if err != nil {
		return "", generation.ResponseMetadata{}, err
	}

	c, err := g.complete(ctx, Request{System: generation.SystemPrompt, History: history, Prompt: prompt})
	if err != nil {
		return "", generation.ResponseMetadata{}, err
	}
	text := strings.TrimSpace(c.Text)
	g.remember(handle, prompt, text)

	return text, generation.ResponseMetadata{
		ResumeHandle: handle,
		Cost:         g.cost(c.Tokens),
		Duration:     time.Since(start),
	}, nil
}

// Release drops the conversation stored under handle.
func (g *Generator) Release(handle string) {
	g.mu.Lock()
	delete(g.conversations, handle)
	g.mu.Unlock()
	g.logger.Debug("conversation released", "conversations", g.conversationCount())
}

func (g *Generator) conversationCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conversations)
}

func (g *Generator) history(handle string) []Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.conversations[handle]
	if !ok {
		return nil
	}
	return append([]Message(nil), h...)
}

func (g *Generator) remember(handle, prompt, answer string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conversations[handle] = append(g.conversations[handle],
		Message{Role: RoleUser, Content: prompt},
		Message{Role: RoleAssistant, Content: answer})
}

func (g *Generator) cost(tokens int) float64 {
	return float64(tokens) / 1000 * g.opts.CostPer1KTokens
}

// complete calls the completer with exponential backoff and jitter between
// attempts. Permanent errors and cancellation end the loop immediately.
func (g *Generator) complete(ctx context.Context, req Request) (Completion, error) {
	var lastErr error
	for attempt := 0; attempt <= g.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := g.backoff(attempt)
			g.logger.InfoContext(ctx, "retrying model call after delay",
				"attempt", attempt+1,
				"delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Completion{}, fmt.Errorf("%w: %w", generation.ErrTransientFailure, ctx.Err())
			}
		}

		c, err := g.completer.Complete(ctx, req)
		if err == nil && strings.TrimSpace(c.Text) == "" {
			err = fmt.Errorf("%w: empty completion", generation.ErrInvalidResponse)
		}
		if err == nil {
			if c.Tokens == 0 {
				c.Tokens = EstimateTokens(req, c.Text)
			}
			g.logger.DebugContext(ctx, "model call succeeded",
				"attempt", attempt+1,
				"tokens", c.Tokens)
			return c, nil
		}

		g.logger.ErrorContext(ctx, "model call failed",
			"attempt", attempt+1,
			"error", redact.Error(err))
		if errors.Is(err, ErrPermanent) || errors.Is(err, generation.ErrContentBlocked) ||
			errors.Is(err, generation.ErrInvalidResponse) {
			return Completion{}, fmt.Errorf("%w: %w", generation.ErrGenerationFailed, err)
		}
		if ctx.Err() != nil {
			return Completion{}, fmt.Errorf("%w: %w", generation.ErrTransientFailure, ctx.Err())
		}
		lastErr = err
	}

	g.logger.WarnContext(ctx, "maximum retry attempts reached", "max_retries", g.opts.MaxRetries)
	return Completion{}, fmt.Errorf("%w: exceeded maximum retry attempts (%d): %w",
		generation.ErrTransientFailure, g.opts.MaxRetries, lastErr)
}

// backoff is RetryDelay * 2^(attempt-1), scaled by a jitter factor in
// [0.5, 1.0).
func (g *Generator) backoff(attempt int) time.Duration {
	if g.opts.RetryDelay <= 0 {
		return 0
	}
	g.mu.Lock()
	jitter := 0.5 + g.rng.Float64()*0.5
	g.mu.Unlock()
	return time.Duration(float64(g.opts.RetryDelay) * math.Pow(2, float64(attempt-1)) * jitter)
}
