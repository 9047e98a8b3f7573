package echo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mailroom/internal/domain"
	"github.com/phrazzld/mailroom/internal/generation"
)

// Generator is a deterministic, offline generation.Generator. It backs
// the "echo" provider used for dry runs and end-to-end tests.
type Generator struct {
	// CostPerCall is reported as the cost of every refinement.
	CostPerCall float64
	// Delay is slept before every call returns.
	Delay time.Duration
}

// Summarize returns the subject and the first line of the body.
func (e *Generator) Summarize(ctx context.Context, item domain.Item) (string, error) {
	if err := e.wait(ctx); err != nil {
		return "", err
	}
	first := strings.TrimSpace(strings.SplitN(strings.TrimSpace(item.Body), "\n", 2)[0])
	return fmt.Sprintf("%s: %s", item.Subject, first), nil
}

// GenerateDraft returns a canned acknowledgement addressed to the sender.
func (e *Generator) GenerateDraft(ctx context.Context, item domain.Item) (string, error) {
	if err := e.wait(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("Hi %s,\n\nThanks for your note about %q. I'll get back to you shortly.", item.From, item.Subject), nil
}

// Refine appends the feedback to the current draft. The first turn mints a
// resume handle; later turns echo the handle they were given.
func (e *Generator) Refine(
	ctx context.Context,
	req generation.RefineRequest,
) (string, generation.ResponseMetadata, error) {
	start := time.Now()
	if err := e.wait(ctx); err != nil {
		return "", generation.ResponseMetadata{}, err
	}
	handle := req.Session.ResumeHandle
	if handle == "" {
		handle = uuid.NewString()
	}
	text := fmt.Sprintf("%s\n\n[revised: %s]", req.CurrentDraft, req.Feedback)
	return text, generation.ResponseMetadata{
		ResumeHandle: handle,
		Cost:         e.CostPerCall,
		Duration:     time.Since(start),
	}, nil
}

func (e *Generator) wait(ctx context.Context) error {
	if e.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(e.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
