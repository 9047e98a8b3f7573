package task

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mailroom/internal/generation"
	"github.com/phrazzld/mailroom/internal/mocks"
	"github.com/phrazzld/mailroom/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessions(t *testing.T) *session.Tracker {
	t.Helper()
	store := session.NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	return session.NewTracker(store, setupTestLogger())
}

func waitIdle(t *testing.T, s *RefinementScheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Idle(ctx))
}

func TestRefinementScheduler_SameItemJobsContinueOneSession(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	gen := &mocks.MockGenerator{
		RefineFn: func(ctx context.Context, req generation.RefineRequest) (string, generation.ResponseMetadata, error) {
			<-release
			return "refined: " + req.Feedback, generation.ResponseMetadata{
				ResumeHandle: "handle-" + req.Session.ItemID,
				Cost:         0.5,
				Duration:     10 * time.Millisecond,
			}, nil
		},
	}
	sessions := newTestSessions(t)
	s := NewRefinementScheduler(context.Background(), gen, sessions, RefinementConfig{MaxConcurrent: 3}, setupTestLogger())

	var mu sync.Mutex
	var results []string
	s.OnComplete(func(itemID, result string, job RefinementJob) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, result)
	})

	item := testItem("a", true)
	first, err := s.Enqueue("a", "draft v1", "be warmer", item)
	require.NoError(t, err)
	second, err := s.Enqueue("a", "draft v1", "mention Friday", item)
	require.NoError(t, err)

	close(release)
	waitIdle(t, s)

	calls := gen.RefineCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "be warmer", calls[0].Feedback)
	assert.Equal(t, "mention Friday", calls[1].Feedback)

	assert.Equal(t, 1, calls[0].Session.Turn)
	assert.True(t, generation.IsFullContextPrompt(calls[0].Prompt))
	assert.Empty(t, calls[0].Session.ResumeHandle)

	assert.Equal(t, 2, calls[1].Session.Turn)
	assert.False(t, generation.IsFullContextPrompt(calls[1].Prompt))
	assert.NotContains(t, calls[1].Prompt, item.Body)
	assert.Equal(t, "handle-a", calls[1].Session.ResumeHandle)

	mu.Lock()
	assert.Equal(t, []string{"refined: be warmer", "refined: mention Friday"}, results)
	mu.Unlock()

	j1, ok := s.Job(first.ID)
	require.True(t, ok)
	assert.Equal(t, JobStatusComplete, j1.Status)
	j2, ok := s.Job(second.ID)
	require.True(t, ok)
	assert.Equal(t, JobStatusComplete, j2.Status)
	assert.False(t, j2.StartedAt.Before(j1.CompletedAt), "second job starts after the first completes")

	assert.InDelta(t, 1.0, s.TotalCost(), 1e-9)

	sess, ok := sessions.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, sess.TurnCount)
	assert.InDelta(t, 1.0, sess.TotalCost, 1e-9)
	assert.Equal(t, "handle-a", sess.ResumeHandle)
}

func TestRefinementScheduler_PerItemOrderAndGlobalCap(t *testing.T) {
	t.Parallel()

	const maxConcurrent = 3
	const items = 6
	const perItem = 8

	var running, peak atomic.Int32
	var perItemRunning sync.Map
	var mu sync.Mutex
	seen := map[string][]string{}

	gen := &mocks.MockGenerator{
		RefineFn: func(ctx context.Context, req generation.RefineRequest) (string, generation.ResponseMetadata, error) {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}

			counter, _ := perItemRunning.LoadOrStore(req.Session.ItemID, new(atomic.Int32))
			c := counter.(*atomic.Int32)
			if c.Add(1) != 1 {
				t.Errorf("two refinements of %s ran at once", req.Session.ItemID)
			}
			defer c.Add(-1)

			time.Sleep(time.Millisecond)
			mu.Lock()
			seen[req.Session.ItemID] = append(seen[req.Session.ItemID], req.Feedback)
			mu.Unlock()
			return req.Feedback, generation.ResponseMetadata{}, nil
		},
	}
	s := NewRefinementScheduler(context.Background(), gen, newTestSessions(t), RefinementConfig{MaxConcurrent: maxConcurrent}, setupTestLogger())

	var wg sync.WaitGroup
	for i := 0; i < items; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("item-%d", n)
			for j := 0; j < perItem; j++ {
				_, err := s.Enqueue(id, "draft", fmt.Sprintf("feedback-%d", j), testItem(id, true))
				assert.NoError(t, err)
				assert.LessOrEqual(t, s.ActiveCount(), maxConcurrent)
			}
		}(i)
	}
	wg.Wait()
	waitIdle(t, s)

	assert.LessOrEqual(t, int(peak.Load()), maxConcurrent)
	assert.Len(t, s.JobsByStatus(JobStatusComplete), items*perItem)

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < items; i++ {
		id := fmt.Sprintf("item-%d", i)
		require.Len(t, seen[id], perItem)
		for j := 0; j < perItem; j++ {
			assert.Equal(t, fmt.Sprintf("feedback-%d", j), seen[id][j], "item %s", id)
		}
	}
}

func TestRefinementScheduler_DifferentItemsRunInParallel(t *testing.T) {
	t.Parallel()

	started := make(chan string, 2)
	release := make(chan struct{})
	gen := &mocks.MockGenerator{
		RefineFn: func(ctx context.Context, req generation.RefineRequest) (string, generation.ResponseMetadata, error) {
			started <- req.Session.ItemID
			<-release
			return "ok", generation.ResponseMetadata{}, nil
		},
	}
	s := NewRefinementScheduler(context.Background(), gen, newTestSessions(t), RefinementConfig{MaxConcurrent: 2}, setupTestLogger())

	_, err := s.Enqueue("a", "d", "f", testItem("a", true))
	require.NoError(t, err)
	_, err = s.Enqueue("b", "d", "f", testItem("b", true))
	require.NoError(t, err)

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-started:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("refinements for different items did not overlap")
		}
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, got)
	assert.Equal(t, 2, s.ActiveCount())

	close(release)
	waitIdle(t, s)
	assert.Equal(t, 0, s.ActiveCount())
}

func TestRefinementScheduler_FailureReported(t *testing.T) {
	t.Parallel()

	boom := errors.New("rate limited")
	gen := &mocks.MockGenerator{Err: boom}
	sessions := newTestSessions(t)
	s := NewRefinementScheduler(context.Background(), gen, sessions, RefinementConfig{MaxConcurrent: 1}, setupTestLogger())

	var mu sync.Mutex
	failures := map[string]error{}
	completions := 0
	s.OnFailed(func(itemID string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failures[itemID] = err
	})
	s.OnComplete(func(string, string, RefinementJob) {
		mu.Lock()
		defer mu.Unlock()
		completions++
	})

	job, err := s.Enqueue("a", "draft", "feedback", testItem("a", true))
	require.NoError(t, err)
	waitIdle(t, s)

	mu.Lock()
	assert.ErrorIs(t, failures["a"], boom)
	assert.Equal(t, 0, completions)
	mu.Unlock()

	got, ok := s.Job(job.ID)
	require.True(t, ok)
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.ErrorIs(t, got.Err, boom)
	assert.Len(t, s.JobsByStatus(JobStatusFailed), 1)
	assert.Len(t, gen.RefineCalls(), 1, "failed jobs are not retried")

	// A failed call still consumed a turn, but recorded no cost.
	sess, ok := sessions.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, sess.TurnCount)
	assert.Zero(t, sess.TotalCost)
}

func TestRefinementScheduler_FullContextUntilConversationStarts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	gen := &mocks.MockGenerator{
		RefineFn: func(_ context.Context, req generation.RefineRequest) (string, generation.ResponseMetadata, error) {
			if calls.Add(1) == 1 {
				return "", generation.ResponseMetadata{}, errors.New("unavailable")
			}
			return "refined", generation.ResponseMetadata{ResumeHandle: "handle-a"}, nil
		},
	}
	s := NewRefinementScheduler(context.Background(), gen, newTestSessions(t), RefinementConfig{MaxConcurrent: 1}, setupTestLogger())

	item := testItem("a", true)
	failed, err := s.Enqueue("a", "draft", "be warmer", item)
	require.NoError(t, err)
	retried, err := s.Enqueue("a", "draft", "be warmer", item)
	require.NoError(t, err)
	followUp, err := s.Enqueue("a", "refined", "shorter", item)
	require.NoError(t, err)
	waitIdle(t, s)

	sent := gen.RefineCalls()
	require.Len(t, sent, 3)

	assert.Equal(t, 2, sent[1].Session.Turn)
	assert.Empty(t, sent[1].Session.ResumeHandle)
	assert.True(t, generation.IsFullContextPrompt(sent[1].Prompt), "no handle yet, so the original message is resent")
	assert.Contains(t, sent[1].Prompt, item.Body)

	assert.Equal(t, "handle-a", sent[2].Session.ResumeHandle)
	assert.False(t, generation.IsFullContextPrompt(sent[2].Prompt))

	for i, id := range []uuid.UUID{failed.ID, retried.ID, followUp.ID} {
		job, ok := s.Job(id)
		require.True(t, ok)
		assert.Equal(t, sent[i].Prompt, job.Prompt, "job %d records the prompt it sent", i+1)
	}
}

func TestRefinementScheduler_EmptyFeedbackFails(t *testing.T) {
	t.Parallel()

	gen := &mocks.MockGenerator{Refined: "never"}
	s := NewRefinementScheduler(context.Background(), gen, newTestSessions(t), RefinementConfig{MaxConcurrent: 1}, setupTestLogger())

	job, err := s.Enqueue("a", "draft", "", testItem("a", true))
	require.NoError(t, err)
	waitIdle(t, s)

	got, _ := s.Job(job.ID)
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.ErrorIs(t, got.Err, generation.ErrEmptyFeedback)
	assert.Empty(t, gen.RefineCalls())
}

func TestRefinementScheduler_CleanupWhileInFlight(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	gen := &mocks.MockGenerator{
		RefineFn: func(ctx context.Context, req generation.RefineRequest) (string, generation.ResponseMetadata, error) {
			started <- struct{}{}
			<-release
			return "done", generation.ResponseMetadata{}, nil
		},
	}
	s := NewRefinementScheduler(context.Background(), gen, newTestSessions(t), RefinementConfig{MaxConcurrent: 1}, setupTestLogger())

	completed := make(chan string, 2)
	s.OnComplete(func(itemID, result string, job RefinementJob) { completed <- job.Feedback })

	_, err := s.Enqueue("a", "draft", "first", testItem("a", true))
	require.NoError(t, err)
	_, err = s.Enqueue("a", "draft", "second", testItem("a", true))
	require.NoError(t, err)

	<-started
	s.Cleanup()

	_, err = s.Enqueue("a", "draft", "third", testItem("a", true))
	assert.ErrorIs(t, err, ErrSchedulerClosed)
	_, err = s.Enqueue("b", "draft", "other", testItem("b", true))
	assert.ErrorIs(t, err, ErrSchedulerClosed)

	close(release)

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not exit after cleanup")
	}

	assert.Equal(t, "first", <-completed, "in-flight job completes normally")
	assert.Len(t, gen.RefineCalls(), 1, "queued job is discarded")
	assert.Equal(t, 0, s.PendingCount())
	assert.Zero(t, s.TotalCost())

	// Cleanup is safe to call twice.
	s.Cleanup()
}

func TestRefinementScheduler_JobsForItem(t *testing.T) {
	t.Parallel()

	gen := &mocks.MockGenerator{Refined: "ok", Metadata: generation.ResponseMetadata{Cost: 0.25}}
	s := NewRefinementScheduler(context.Background(), gen, newTestSessions(t), RefinementConfig{MaxConcurrent: 2}, setupTestLogger())

	for _, id := range []string{"a", "b", "a"} {
		_, err := s.Enqueue(id, "draft", "feedback", testItem(id, true))
		require.NoError(t, err)
	}
	waitIdle(t, s)

	assert.Len(t, s.JobsForItem("a"), 2)
	assert.Len(t, s.JobsForItem("b"), 1)
	assert.InDelta(t, 0.75, s.TotalCost(), 1e-9)
	assert.Equal(t, 0, s.PendingCount())

	_, err := s.Enqueue("", "draft", "feedback", testItem("x", true))
	assert.ErrorIs(t, err, ErrInvalidJob)
}
