package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/mailroom/internal/domain"
	"github.com/phrazzld/mailroom/internal/events"
	"github.com/phrazzld/mailroom/internal/generation"
	"github.com/phrazzld/mailroom/internal/redact"
)

// GenerationJob is the record of one item's summary/draft generation.
// Jobs stay in the scheduler until Cleanup removes them.
type GenerationJob struct {
	ItemID      string
	Item        domain.Item
	Status      JobStatus
	Summary     string
	Draft       *string
	QueuedAt    time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Err         error
}

// GenerationCompleted is emitted when a generation job succeeds. Draft is nil
// for items that need no reply.
type GenerationCompleted struct {
	ItemID  string
	Summary string
	Draft   *string
}

// GenerationFailed is emitted when a generation job fails.
type GenerationFailed struct {
	ItemID string
	Err    error
}

// GenerationConfig holds configuration options for the generation scheduler
type GenerationConfig struct {
	// MaxConcurrent caps how many items are generated at once.
	// If zero or negative, DefaultMaxConcurrent is used.
	MaxConcurrent int
}

// GenerationScheduler is a self-sustaining bounded pool: each enqueue and
// each job completion promotes the oldest queued job while a slot is free.
type GenerationScheduler struct {
	mu    sync.Mutex
	jobs  map[string]*GenerationJob
	queue jobQueue[*GenerationJob]
	slots *slotPool
	wg    sync.WaitGroup

	ctx        context.Context
	summarizer generation.Summarizer
	drafter    generation.Drafter
	logger     *slog.Logger

	completed *events.InMemoryEventEmitter[GenerationCompleted]
	failed    *events.InMemoryEventEmitter[GenerationFailed]
}

// NewGenerationScheduler creates a scheduler that calls summarizer for every
// item and drafter for items that need a reply. ctx is passed to every
// collaborator call.
func NewGenerationScheduler(
	ctx context.Context,
	summarizer generation.Summarizer,
	drafter generation.Drafter,
	config GenerationConfig,
	logger *slog.Logger,
) *GenerationScheduler {
	if config.MaxConcurrent <= 0 {
		logger.Warn("invalid max concurrency specified, using default",
			"specified", config.MaxConcurrent,
			"default", DefaultMaxConcurrent)
	}
	logger = logger.With("component", "generation_scheduler")
	s := &GenerationScheduler{
		jobs:       make(map[string]*GenerationJob),
		slots:      newSlotPool(config.MaxConcurrent),
		ctx:        ctx,
		summarizer: summarizer,
		drafter:    drafter,
		logger:     logger,
		completed:  events.NewInMemoryEventEmitter[GenerationCompleted](logger, "generation_completed"),
		failed:     events.NewInMemoryEventEmitter[GenerationFailed](logger, "generation_failed"),
	}
	logger.Debug("scheduler created", "max_concurrent", s.slots.Capacity())
	return s
}

// OnComplete registers fn to be called after every successful job.
func (s *GenerationScheduler) OnComplete(fn func(itemID, summary string, draft *string)) {
	s.completed.RegisterHandler(func(_ context.Context, e GenerationCompleted) {
		fn(e.ItemID, e.Summary, e.Draft)
	})
	s.logger.Debug("completion subscriber registered", "subscribers", s.completed.HandlerCount())
}

// OnFailed registers fn to be called after every failed job.
func (s *GenerationScheduler) OnFailed(fn func(itemID string, err error)) {
	s.failed.RegisterHandler(func(_ context.Context, e GenerationFailed) {
		fn(e.ItemID, e.Err)
	})
	s.logger.Debug("failure subscriber registered", "subscribers", s.failed.HandlerCount())
}

// Enqueue adds a queued job for item, replacing any earlier job for the same
// id, and starts it immediately if a slot is free.
func (s *GenerationScheduler) Enqueue(item domain.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	s.mu.Lock()
	job := &GenerationJob{
		ItemID:   item.ID,
		Item:     item,
		Status:   JobStatusQueued,
		QueuedAt: time.Now().UTC(),
	}
	if prev, ok := s.jobs[item.ID]; ok && prev.Status == JobStatusProcessing {
		s.logger.Warn("replacing job that is still processing",
			"item_id", item.ID)
	}
	s.jobs[item.ID] = job
	s.queue.Push(job)
	s.logger.Debug("job enqueued",
		"item_id", item.ID,
		"queue_len", s.queue.Len())
	s.pumpLocked()
	s.mu.Unlock()
	return nil
}

// EnqueueAll enqueues items in order and returns the first validation error.
// Valid items are enqueued even when others fail.
func (s *GenerationScheduler) EnqueueAll(items []domain.Item) error {
	var firstErr error
	for _, item := range items {
		if err := s.Enqueue(item); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// pumpLocked promotes queued jobs while slots are free. s.mu must be held.
func (s *GenerationScheduler) pumpLocked() {
	for s.queue.Len() > 0 {
		if !s.slots.TryAcquire() {
			return
		}
		job := s.nextQueuedLocked()
		if job == nil {
			s.slots.Release()
			return
		}
		job.Status = JobStatusProcessing
		job.StartedAt = time.Now().UTC()
		s.wg.Add(1)
		go s.run(job)
	}
}

// nextQueuedLocked pops the oldest job that is still current and queued.
// Entries superseded by a later Enqueue of the same id are skipped.
func (s *GenerationScheduler) nextQueuedLocked() *GenerationJob {
	for {
		job, ok := s.queue.Pop()
		if !ok {
			return nil
		}
		if s.jobs[job.ItemID] == job && job.Status == JobStatusQueued {
			return job
		}
	}
}

func (s *GenerationScheduler) run(job *GenerationJob) {
	defer s.wg.Done()

	logger := s.logger.With("item_id", job.ItemID)
	logger.Info("processing job")

	summary, draft, err := s.generate(job.Item)

	s.mu.Lock()
	job.CompletedAt = time.Now().UTC()
	duration := job.CompletedAt.Sub(job.StartedAt)
	if err != nil {
		job.Status = JobStatusFailed
		job.Err = err
	} else {
		job.Status = JobStatusComplete
		job.Summary = summary
		job.Draft = draft
	}
	s.slots.Release()
	s.pumpLocked()
	s.mu.Unlock()

	if err != nil {
		logger.Error("job failed",
			"error", redact.Error(err),
			"duration", duration)
		s.failed.EmitEvent(s.ctx, GenerationFailed{ItemID: job.ItemID, Err: err})
		return
	}
	logger.Info("job completed",
		"has_draft", draft != nil,
		"duration", duration)
	s.completed.EmitEvent(s.ctx, GenerationCompleted{
		ItemID:  job.ItemID,
		Summary: summary,
		Draft:   draft,
	})
}

func (s *GenerationScheduler) generate(item domain.Item) (summary string, draft *string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverError(r)
		}
	}()

	summary, err = s.summarizer.Summarize(s.ctx, item)
	if err != nil {
		return "", nil, fmt.Errorf("summarize: %w", err)
	}
	if !item.NeedsReply || s.drafter == nil {
		return summary, nil, nil
	}
	text, err := s.drafter.GenerateDraft(s.ctx, item)
	if err != nil {
		return "", nil, fmt.Errorf("generate draft: %w", err)
	}
	return summary, &text, nil
}

// PendingCount returns the number of jobs queued or processing.
func (s *GenerationScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, job := range s.jobs {
		if !job.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// ActiveCount returns the number of jobs processing right now.
func (s *GenerationScheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots.InUse()
}

// IsReady reports whether the job for itemID has completed successfully.
func (s *GenerationScheduler) IsReady(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[itemID]
	return ok && job.Status == JobStatusComplete
}

// Result returns a copy of the job for itemID if it has completed
// successfully.
func (s *GenerationScheduler) Result(itemID string) (GenerationJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[itemID]
	if !ok || job.Status != JobStatusComplete {
		return GenerationJob{}, false
	}
	return job.copy(), true
}

// Job returns a copy of the job for itemID in any state.
func (s *GenerationScheduler) Job(itemID string) (GenerationJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[itemID]
	if !ok {
		return GenerationJob{}, false
	}
	return job.copy(), true
}

// Cleanup forgets every finished job and returns how many were removed.
// Queued and processing jobs are kept.
func (s *GenerationScheduler) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.Status.IsTerminal() {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// Wait blocks until no job is queued or processing. Jobs enqueued while Wait
// is blocked are waited for as well.
func (s *GenerationScheduler) Wait() {
	s.wg.Wait()
}

func (j *GenerationJob) copy() GenerationJob {
	c := *j
	if j.Draft != nil {
		d := *j.Draft
		c.Draft = &d
	}
	return c
}
