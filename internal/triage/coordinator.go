// Package triage connects the schedulers to the review tracker. It is the
// single caller that decides when a refinement may start, so it enforces the
// turn limit and the one-refinement-per-item rule.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/phrazzld/mailroom/internal/domain"
	"github.com/phrazzld/mailroom/internal/generation"
	"github.com/phrazzld/mailroom/internal/redact"
	"github.com/phrazzld/mailroom/internal/review"
	"github.com/phrazzld/mailroom/internal/session"
	"github.com/phrazzld/mailroom/internal/source"
	"github.com/phrazzld/mailroom/internal/task"
)

var (
	// ErrMaxTurnsReached is returned when an item has used all its refinement turns.
	ErrMaxTurnsReached = errors.New("maximum refinement turns reached")
	// ErrRefinementInFlight is returned when the item already has a refinement running.
	ErrRefinementInFlight = errors.New("refinement already in flight")
	// ErrUnknownItem is returned for ids that are not part of the batch.
	ErrUnknownItem = errors.New("unknown item")
	// ErrItemFinished is returned when refining an accepted or skipped item.
	ErrItemFinished = errors.New("item already accepted or skipped")
	// ErrNoDraft is returned when refining an item that has no draft.
	ErrNoDraft = errors.New("item has no draft to refine")
)

// Config holds the coordinator's policy settings.
type Config struct {
	MaxConcurrent int
	MaxTurns      int
}

// releaser is implemented by generators that hold conversation history.
type releaser interface {
	Release(handle string)
}

// Coordinator owns one batch of items from intake to the last decision.
type Coordinator struct {
	tracker    *review.Tracker
	generation *task.GenerationScheduler
	refinement *task.RefinementScheduler
	sessions   *session.Tracker
	source     source.Source
	generator  generation.Generator
	maxTurns   int
	logger     *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
	cost     float64
}

// New builds a coordinator for items. src may be nil, in which case
// decisions are not written back.
func New(
	ctx context.Context,
	items []domain.Item,
	gen generation.Generator,
	sessions *session.Tracker,
	src source.Source,
	cfg Config,
	logger *slog.Logger,
) *Coordinator {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 5
	}
	c := &Coordinator{
		tracker:   review.NewTracker(items, logger),
		sessions:  sessions,
		source:    src,
		generator: gen,
		maxTurns:  cfg.MaxTurns,
		logger:    logger.With("component", "triage"),
		inFlight:  make(map[string]bool),
	}
	c.generation = task.NewGenerationScheduler(ctx, gen, gen,
		task.GenerationConfig{MaxConcurrent: cfg.MaxConcurrent}, logger)
	c.refinement = task.NewRefinementScheduler(ctx, gen, sessions,
		task.RefinementConfig{MaxConcurrent: cfg.MaxConcurrent}, logger)

	c.generation.OnComplete(c.generated)
	c.generation.OnFailed(c.generationFailed)
	c.refinement.OnComplete(c.refined)
	c.refinement.OnFailed(c.refinementFailed)
	return c
}

// Start enqueues every item for generation. Items the scheduler rejects get
// the failure placeholder right away so the batch can still finish; the first
// rejection is returned.
func (c *Coordinator) Start() error {
	queued := c.tracker.Items()
	c.logger.Info("starting generation", "items", len(queued))

	var firstErr error
	for _, q := range queued {
		if err := c.generation.Enqueue(q.Item); err != nil {
			c.generationFailed(q.Item.ID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Tracker exposes the review state for navigation and reporting.
func (c *Coordinator) Tracker() *review.Tracker {
	return c.tracker
}

// Next returns the next item to review.
func (c *Coordinator) Next() (domain.QueueItem, bool) {
	return c.tracker.Next()
}

func (c *Coordinator) generated(itemID, summary string, draft *string) {
	c.tracker.UpdateSummary(itemID, summary)
	if draft != nil {
		c.tracker.UpdateDraft(itemID, *draft)
	}
}

// generationFailed keeps the item reviewable with a placeholder summary.
func (c *Coordinator) generationFailed(itemID string, err error) {
	c.tracker.UpdateSummary(itemID, fmt.Sprintf("(summary unavailable: %s)", redact.Error(err)))
}

func (c *Coordinator) refined(itemID, result string, job task.RefinementJob) {
	c.tracker.MarkRefined(itemID, result)
	c.mu.Lock()
	c.cost += job.Cost
	c.mu.Unlock()
	c.settle(itemID)
}

func (c *Coordinator) refinementFailed(itemID string, err error) {
	c.tracker.MarkFailed(itemID, err)
	c.settle(itemID)
}

func (c *Coordinator) settle(itemID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, itemID)
}

// RequestRefinement asks for the item's draft to be rewritten from feedback.
// At most one refinement per item runs at a time and each item gets at most
// MaxTurns of them.
func (c *Coordinator) RequestRefinement(itemID, feedback string) (task.RefinementJob, error) {
	if strings.TrimSpace(feedback) == "" {
		return task.RefinementJob{}, generation.ErrEmptyFeedback
	}
	q, ok := c.tracker.Get(itemID)
	switch {
	case !ok:
		return task.RefinementJob{}, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	case q.State.IsTerminal():
		return task.RefinementJob{}, fmt.Errorf("%w: %s", ErrItemFinished, itemID)
	case q.Draft == nil:
		return task.RefinementJob{}, fmt.Errorf("%w: %s", ErrNoDraft, itemID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight[itemID] {
		return task.RefinementJob{}, fmt.Errorf("%w: %s", ErrRefinementInFlight, itemID)
	}
	// Restores turns spent in earlier runs from the snapshot store.
	if sess := c.sessions.GetOrCreate(itemID); sess.TurnCount >= c.maxTurns {
		return task.RefinementJob{}, fmt.Errorf("%w: %s has used %d of %d",
			ErrMaxTurnsReached, itemID, sess.TurnCount, c.maxTurns)
	}

	c.tracker.MarkRefining(itemID, feedback)
	job, err := c.refinement.Enqueue(itemID, q.Draft.FinalContent(), feedback, q.Item)
	if err != nil {
		c.tracker.MarkFailed(itemID, err)
		return task.RefinementJob{}, err
	}
	c.inFlight[itemID] = true

	c.logger.Info("refinement requested",
		"item_id", itemID,
		"job_id", job.ID)
	return job, nil
}

// Accept finishes the item with its current draft.
func (c *Coordinator) Accept(ctx context.Context, itemID string) error {
	return c.finish(ctx, itemID, c.tracker.MarkAccepted)
}

// Skip finishes the item without a reply.
func (c *Coordinator) Skip(ctx context.Context, itemID string) error {
	return c.finish(ctx, itemID, c.tracker.MarkSkipped)
}

// Edit replaces the draft text with the reviewer's own.
func (c *Coordinator) Edit(itemID, content string) error {
	if _, ok := c.tracker.Get(itemID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	return c.tracker.EditDraft(itemID, content)
}

func (c *Coordinator) finish(ctx context.Context, itemID string, mark func(string)) error {
	if _, ok := c.tracker.Get(itemID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	mark(itemID)

	if sess, ok := c.sessions.Get(itemID); ok {
		if r, ok := c.generator.(releaser); ok && sess.ResumeHandle != "" {
			r.Release(sess.ResumeHandle)
		}
	}
	c.sessions.Finalize(itemID)

	if c.source == nil {
		return nil
	}
	if err := c.source.MarkRead(ctx, []string{itemID}); err != nil {
		c.logger.Error("failed to mark item read",
			"item_id", itemID,
			"error", redact.Error(err))
		return fmt.Errorf("failed to mark item %s read: %w", itemID, err)
	}
	return nil
}

// WaitForGeneration blocks until every item has been generated.
func (c *Coordinator) WaitForGeneration() {
	c.generation.Wait()
}

// WaitForRefinements blocks until every requested refinement has settled.
func (c *Coordinator) WaitForRefinements(ctx context.Context) error {
	return c.refinement.Idle(ctx)
}

// TotalCost is the cost of every refinement completed in this batch. It
// survives Shutdown.
func (c *Coordinator) TotalCost() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cost
}

// InFlight reports whether itemID has a refinement running.
func (c *Coordinator) InFlight(itemID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[itemID]
}

// Shutdown stops accepting refinements, waits for running jobs and drops
// finished generation jobs.
func (c *Coordinator) Shutdown() {
	c.refinement.Cleanup()
	c.refinement.Wait()
	c.generation.Wait()
	removed := c.generation.Cleanup()
	c.logger.Info("triage shut down", "generation_jobs_removed", removed)
}
