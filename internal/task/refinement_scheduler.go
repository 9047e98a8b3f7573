package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mailroom/internal/channel"
	"github.com/phrazzld/mailroom/internal/domain"
	"github.com/phrazzld/mailroom/internal/events"
	"github.com/phrazzld/mailroom/internal/generation"
	"github.com/phrazzld/mailroom/internal/redact"
	"github.com/phrazzld/mailroom/internal/session"
)

// RefinementJob is one request to rewrite an item's draft from feedback.
type RefinementJob struct {
	ID           uuid.UUID
	ItemID       string
	Item         domain.Item
	CurrentDraft string
	Feedback     string
	Status       JobStatus
	// Turn and Prompt are set when processing starts. A backend that no
	// longer holds the conversation may resend full context instead of Prompt.
	Turn        int
	Prompt      string
	Result      string
	Cost        float64
	Duration    time.Duration
	QueuedAt    time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Err         error
}

// RefinementCompleted is emitted when a refinement job succeeds.
type RefinementCompleted struct {
	ItemID string
	Result string
	Job    RefinementJob
}

// RefinementFailed is emitted when a refinement job fails.
type RefinementFailed struct {
	ItemID string
	Err    error
	Job    RefinementJob
}

// RefinementConfig holds configuration options for the refinement scheduler
type RefinementConfig struct {
	// MaxConcurrent caps how many refinements run at once across all items.
	// If zero or negative, DefaultMaxConcurrent is used.
	MaxConcurrent int
}

// RefinementScheduler runs refinement jobs with a global concurrency cap and
// strict per-item ordering. Each item with at least one job gets a worker
// goroutine reading that item's queue from a KeyedChannel; a worker holds a
// global slot only while its job runs.
type RefinementScheduler struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]*RefinementJob
	order  []uuid.UUID
	closed bool
	// unsettled counts jobs whose subscribers have not been notified yet;
	// settled is closed and replaced whenever one is.
	unsettled int
	settled   chan struct{}
	queues    *channel.KeyedChannel[string, *RefinementJob]
	slots     *slotPool
	workers   sync.WaitGroup

	ctx      context.Context
	refiner  generation.Refiner
	sessions *session.Tracker
	logger   *slog.Logger

	completed *events.InMemoryEventEmitter[RefinementCompleted]
	failed    *events.InMemoryEventEmitter[RefinementFailed]
}

// NewRefinementScheduler creates a scheduler that refines drafts with refiner
// and keeps conversation continuity in sessions. ctx is passed to every
// refiner call and bounds how long workers wait for a slot.
func NewRefinementScheduler(
	ctx context.Context,
	refiner generation.Refiner,
	sessions *session.Tracker,
	config RefinementConfig,
	logger *slog.Logger,
) *RefinementScheduler {
	if config.MaxConcurrent <= 0 {
		logger.Warn("invalid max concurrency specified, using default",
			"specified", config.MaxConcurrent,
			"default", DefaultMaxConcurrent)
	}
	logger = logger.With("component", "refinement_scheduler")
	s := &RefinementScheduler{
		jobs:      make(map[uuid.UUID]*RefinementJob),
		settled:   make(chan struct{}),
		queues:    channel.New[string, *RefinementJob](),
		slots:     newSlotPool(config.MaxConcurrent),
		ctx:       ctx,
		refiner:   refiner,
		sessions:  sessions,
		logger:    logger,
		completed: events.NewInMemoryEventEmitter[RefinementCompleted](logger, "refinement_completed"),
		failed:    events.NewInMemoryEventEmitter[RefinementFailed](logger, "refinement_failed"),
	}
	logger.Debug("scheduler created", "max_concurrent", s.slots.Capacity())
	return s
}

// OnComplete registers fn to be called after every successful job.
func (s *RefinementScheduler) OnComplete(fn func(itemID, result string, job RefinementJob)) {
	s.completed.RegisterHandler(func(_ context.Context, e RefinementCompleted) {
		fn(e.ItemID, e.Result, e.Job)
	})
	s.logger.Debug("completion subscriber registered", "subscribers", s.completed.HandlerCount())
}

// OnFailed registers fn to be called after every failed job.
func (s *RefinementScheduler) OnFailed(fn func(itemID string, err error)) {
	s.failed.RegisterHandler(func(_ context.Context, e RefinementFailed) {
		fn(e.ItemID, e.Err)
	})
	s.logger.Debug("failure subscriber registered", "subscribers", s.failed.HandlerCount())
}

// Enqueue queues a refinement of currentDraft with feedback for itemID.
// Jobs for the same item run in the order they were enqueued.
func (s *RefinementScheduler) Enqueue(itemID, currentDraft, feedback string, item domain.Item) (RefinementJob, error) {
	if itemID == "" {
		return RefinementJob{}, fmt.Errorf("%w: %v", ErrInvalidJob, domain.ErrEmptyItemID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return RefinementJob{}, ErrSchedulerClosed
	}

	job := &RefinementJob{
		ID:           uuid.New(),
		ItemID:       itemID,
		Item:         item,
		CurrentDraft: currentDraft,
		Feedback:     feedback,
		Status:       JobStatusQueued,
		QueuedAt:     time.Now().UTC(),
	}

	created, err := s.queues.Register(itemID)
	if err != nil {
		return RefinementJob{}, ErrSchedulerClosed
	}
	if err := s.queues.Push(itemID, job); err != nil {
		return RefinementJob{}, ErrSchedulerClosed
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	s.unsettled++

	if created {
		s.workers.Add(1)
		go s.worker(itemID)
	}

	s.logger.Debug("job enqueued",
		"item_id", itemID,
		"job_id", job.ID,
		"item_queue_len", s.queues.Len(itemID))
	return *job, nil
}

// worker drains one item's queue until the queue is closed.
func (s *RefinementScheduler) worker(itemID string) {
	defer s.workers.Done()
	defer s.queues.Remove(itemID)

	logger := s.logger.With("item_id", itemID)
	logger.Debug("starting item worker")

	for {
		job, ok := s.queues.Next(s.ctx, itemID)
		if !ok {
			logger.Debug("item queue closed, stopping worker")
			return
		}
		if err := s.slots.Acquire(s.ctx); err != nil {
			s.finish(job, "", generation.ResponseMetadata{}, fmt.Errorf("waiting for a refinement slot: %w", err))
			continue
		}
		s.processJob(job)
		s.slots.Release()
	}
}

func (s *RefinementScheduler) processJob(job *RefinementJob) {
	sess := s.sessions.GetOrCreate(job.ItemID)
	turn, _ := s.sessions.IncrementTurn(job.ItemID)

	// Without a resume handle there is no conversation to continue, so the
	// prompt carries the full context even on later turns.
	fullContext := turn <= 1 || sess.ResumeHandle == ""
	promptTurn := turn
	if fullContext {
		promptTurn = 1
	}
	prompt, err := generation.RefinePrompt(job.Item, job.CurrentDraft, job.Feedback, promptTurn)

	s.mu.Lock()
	job.Status = JobStatusProcessing
	job.StartedAt = time.Now().UTC()
	job.Turn = turn
	job.Prompt = prompt
	s.mu.Unlock()

	logger := s.logger.With("item_id", job.ItemID, "job_id", job.ID, "turn", turn)
	logger.Info("processing job", "full_context", fullContext)

	if err != nil {
		s.finish(job, "", generation.ResponseMetadata{}, err)
		return
	}

	req := generation.RefineRequest{
		Session: generation.SessionContext{
			ItemID:       job.ItemID,
			ResumeHandle: sess.ResumeHandle,
			Turn:         turn,
		},
		Item:         job.Item,
		CurrentDraft: job.CurrentDraft,
		Feedback:     job.Feedback,
		Prompt:       prompt,
	}

	start := time.Now()
	text, meta, err := s.refine(req)
	if meta.Duration == 0 {
		meta.Duration = time.Since(start)
	}
	if err == nil {
		s.sessions.Update(job.ItemID, meta)
	}
	s.finish(job, text, meta, err)
}

func (s *RefinementScheduler) refine(req generation.RefineRequest) (text string, meta generation.ResponseMetadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverError(r)
		}
	}()
	return s.refiner.Refine(s.ctx, req)
}

// finish records the outcome on the job and notifies subscribers.
func (s *RefinementScheduler) finish(job *RefinementJob, text string, meta generation.ResponseMetadata, err error) {
	s.mu.Lock()
	job.CompletedAt = time.Now().UTC()
	job.Duration = meta.Duration
	if err != nil {
		job.Status = JobStatusFailed
		job.Err = err
	} else {
		job.Status = JobStatusComplete
		job.Result = text
		job.Cost = meta.Cost
	}
	snapshot := *job
	s.mu.Unlock()

	defer s.settle()

	logger := s.logger.With("item_id", job.ItemID, "job_id", job.ID)
	if err != nil {
		logger.Error("job failed", "error", redact.Error(err))
		s.failed.EmitEvent(s.ctx, RefinementFailed{ItemID: job.ItemID, Err: err, Job: snapshot})
		return
	}
	logger.Info("job completed",
		"cost", meta.Cost,
		"duration", meta.Duration)
	s.completed.EmitEvent(s.ctx, RefinementCompleted{ItemID: job.ItemID, Result: text, Job: snapshot})
}

func (s *RefinementScheduler) settle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsettled > 0 {
		s.unsettled--
	}
	close(s.settled)
	s.settled = make(chan struct{})
}

// PendingCount returns the number of jobs queued or processing.
func (s *RefinementScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

func (s *RefinementScheduler) pendingLocked() int {
	n := 0
	for _, job := range s.jobs {
		if !job.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// ActiveCount returns the number of jobs holding a slot right now.
func (s *RefinementScheduler) ActiveCount() int {
	return s.slots.InUse()
}

// Job returns a copy of the job with the given id.
func (s *RefinementScheduler) Job(id uuid.UUID) (RefinementJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return RefinementJob{}, false
	}
	return *job, true
}

// JobsByStatus returns copies of the jobs in status, in enqueue order.
func (s *RefinementScheduler) JobsByStatus(status JobStatus) []RefinementJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []RefinementJob
	for _, id := range s.order {
		if job, ok := s.jobs[id]; ok && job.Status == status {
			out = append(out, *job)
		}
	}
	return out
}

// JobsForItem returns copies of every job for itemID, in enqueue order.
func (s *RefinementScheduler) JobsForItem(itemID string) []RefinementJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []RefinementJob
	for _, id := range s.order {
		if job, ok := s.jobs[id]; ok && job.ItemID == itemID {
			out = append(out, *job)
		}
	}
	return out
}

// TotalCost returns the sum of the cost of every recorded job.
func (s *RefinementScheduler) TotalCost() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0.0
	for _, job := range s.jobs {
		total += job.Cost
	}
	return total
}

// Cleanup closes every item queue, which stops all workers once their
// current job is done, and forgets every job. Enqueue fails with
// ErrSchedulerClosed afterwards. Jobs already running complete or fail
// normally and still notify subscribers.
func (s *RefinementScheduler) Cleanup() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.jobs = make(map[uuid.UUID]*RefinementJob)
	s.order = nil
	s.unsettled = 0
	close(s.settled)
	s.settled = make(chan struct{})
	s.mu.Unlock()

	open := len(s.queues.Keys())
	s.queues.CloseAll()
	s.logger.Info("refinement scheduler closed", "open_item_queues", open)
}

// Wait blocks until every worker has exited. It only returns after Cleanup.
func (s *RefinementScheduler) Wait() {
	s.workers.Wait()
}

// Idle blocks until every enqueued job has finished and its subscribers have
// been notified, or ctx is done. It returns immediately after Cleanup.
func (s *RefinementScheduler) Idle(ctx context.Context) error {
	for {
		s.mu.Lock()
		pending := s.unsettled
		settled := s.settled
		s.mu.Unlock()

		if pending == 0 {
			return nil
		}
		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
