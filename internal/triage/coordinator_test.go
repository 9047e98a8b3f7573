package triage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/phrazzld/mailroom/internal/domain"
	"github.com/phrazzld/mailroom/internal/generation"
	"github.com/phrazzld/mailroom/internal/mocks"
	"github.com/phrazzld/mailroom/internal/platform/echo"
	"github.com/phrazzld/mailroom/internal/session"
	"github.com/phrazzld/mailroom/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mailbox = `
items:
  - id: msg-1
    from: ana@example.com
    subject: Quarterly numbers
    date: 2024-05-01T09:00:00Z
    body: Can you send the Q3 numbers by Friday?
    needs_reply: true
  - id: msg-2
    from: news@example.com
    subject: Weekly digest
    date: 2024-05-02T09:00:00Z
    body: Nothing to do here.
  - id: msg-3
    from: bob@example.com
    subject: Lunch
    date: 2024-05-03T09:00:00Z
    body: Free on Tuesday?
    needs_reply: true
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type fixture struct {
	coord    *Coordinator
	source   *source.FileSource
	sessions *session.Tracker
}

func newFixture(t *testing.T, gen generation.Generator, cfg Config) fixture {
	t.Helper()
	return newFixtureWithSnapshot(t, gen, cfg, filepath.Join(t.TempDir(), "sessions.json"))
}

// newFixtureWithSnapshot builds a coordinator whose sessions persist to path,
// so several fixtures can share one snapshot file like consecutive runs.
func newFixtureWithSnapshot(t *testing.T, gen generation.Generator, cfg Config, path string) fixture {
	t.Helper()
	log := testLogger()

	src, err := source.Parse([]byte(mailbox), log)
	require.NoError(t, err)
	items, err := src.ListUnprocessed(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	sessions := session.NewTracker(session.NewFileStore(path), log)
	coord := New(context.Background(), items, gen, sessions, src, cfg, log)
	t.Cleanup(coord.Shutdown)
	return fixture{coord: coord, source: src, sessions: sessions}
}

func waitRefinements(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.WaitForRefinements(ctx))
}

func TestCoordinator_EndToEndWithEcho(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &echo.Generator{CostPerCall: 0.25}, Config{MaxConcurrent: 2, MaxTurns: 3})
	ctx := context.Background()

	require.NoError(t, f.coord.Start())
	f.coord.WaitForGeneration()

	first, ok := f.coord.Next()
	require.True(t, ok)
	assert.Equal(t, "msg-1", first.Item.ID)
	assert.Equal(t, "Quarterly numbers: Can you send the Q3 numbers by Friday?", first.Summary)
	require.NotNil(t, first.Draft)

	_, err := f.coord.RequestRefinement("msg-1", "mention the attachment")
	require.NoError(t, err)
	waitRefinements(t, f.coord)

	refined, ok := f.coord.Next()
	require.True(t, ok)
	assert.Equal(t, "msg-1", refined.Item.ID, "refined items come back before unprocessed ones")
	assert.Equal(t, domain.ItemStateReviewing, refined.State)
	assert.Contains(t, refined.Draft.Content, "[revised: mention the attachment]")
	assert.Equal(t, 1, refined.RefinementCount)

	require.NoError(t, f.coord.Accept(ctx, "msg-1"))

	digest, ok := f.coord.Next()
	require.True(t, ok)
	assert.Equal(t, "msg-2", digest.Item.ID)
	assert.Nil(t, digest.Draft, "no draft for items that need no reply")
	require.NoError(t, f.coord.Skip(ctx, "msg-2"))

	lunch, ok := f.coord.Next()
	require.True(t, ok)
	require.NoError(t, f.coord.Edit(lunch.Item.ID, "Tuesday works, see you at noon."))
	require.NoError(t, f.coord.Accept(ctx, lunch.Item.ID))

	assert.True(t, f.coord.Tracker().Done())
	_, ok = f.coord.Next()
	assert.False(t, ok)

	accepted := f.coord.Tracker().AcceptedDrafts()
	require.Len(t, accepted, 2)
	assert.Equal(t, "Tuesday works, see you at noon.", accepted[1].Draft.FinalContent())
	assert.Equal(t, domain.DraftStatusEdited, accepted[1].Draft.Status)

	unread, err := f.source.ListUnprocessed(ctx)
	require.NoError(t, err)
	assert.Empty(t, unread, "every decision is written back to the source")

	assert.InDelta(t, 0.25, f.coord.TotalCost(), 1e-9)
	f.coord.Shutdown()
	assert.InDelta(t, 0.25, f.coord.TotalCost(), 1e-9, "cost outlives scheduler cleanup")
	assert.Zero(t, f.sessions.Active(), "accepting finalizes the session")
	snaps, err := f.sessions.Snapshots()
	require.NoError(t, err)
	require.Contains(t, snaps, "msg-1")
	assert.Equal(t, 1, snaps["msg-1"].TurnCount)
}

func TestCoordinator_GenerationFailureBecomesPlaceholder(t *testing.T) {
	t.Parallel()
	gen := &mocks.MockGenerator{
		SummarizeFn: func(_ context.Context, item domain.Item) (string, error) {
			if item.ID == "msg-2" {
				return "", generation.ErrGenerationFailed
			}
			return "summary " + item.ID, nil
		},
		Draft: "draft",
	}
	f := newFixture(t, gen, Config{MaxConcurrent: 3})

	require.NoError(t, f.coord.Start())
	f.coord.WaitForGeneration()

	q, ok := f.coord.Tracker().Get("msg-2")
	require.True(t, ok)
	assert.Contains(t, q.Summary, "(summary unavailable: ")
	assert.Equal(t, 3, f.coord.Tracker().Status().Unprocessed)

	seen := 0
	for {
		if _, ok := f.coord.Next(); !ok {
			break
		}
		seen++
	}
	assert.Equal(t, 3, seen, "failed items stay reviewable")
}

func TestCoordinator_RefinementInFlightGuard(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	gen := &mocks.MockGenerator{
		Summary: "summary",
		Draft:   "draft",
		RefineFn: func(context.Context, generation.RefineRequest) (string, generation.ResponseMetadata, error) {
			<-release
			return "refined", generation.ResponseMetadata{ResumeHandle: "h"}, nil
		},
	}
	f := newFixture(t, gen, Config{MaxConcurrent: 2, MaxTurns: 5})
	require.NoError(t, f.coord.Start())
	f.coord.WaitForGeneration()

	_, err := f.coord.RequestRefinement("msg-1", "warmer")
	require.NoError(t, err)
	assert.True(t, f.coord.InFlight("msg-1"))

	_, err = f.coord.RequestRefinement("msg-1", "shorter")
	assert.ErrorIs(t, err, ErrRefinementInFlight)

	q, _ := f.coord.Tracker().Get("msg-1")
	assert.Equal(t, domain.ItemStateRefining, q.State)

	close(release)
	waitRefinements(t, f.coord)
	assert.False(t, f.coord.InFlight("msg-1"))

	_, err = f.coord.RequestRefinement("msg-1", "shorter")
	require.NoError(t, err)
	waitRefinements(t, f.coord)
	assert.Len(t, gen.RefineCalls(), 2)
}

func TestCoordinator_MaxTurns(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &echo.Generator{}, Config{MaxConcurrent: 1, MaxTurns: 2})
	require.NoError(t, f.coord.Start())
	f.coord.WaitForGeneration()

	for i := 0; i < 2; i++ {
		_, err := f.coord.RequestRefinement("msg-1", "again")
		require.NoError(t, err)
		waitRefinements(t, f.coord)
	}

	_, err := f.coord.RequestRefinement("msg-1", "one more")
	assert.ErrorIs(t, err, ErrMaxTurnsReached)

	q, _ := f.coord.Tracker().Get("msg-1")
	assert.Equal(t, domain.ItemStateRefined, q.State, "a rejected request leaves the item alone")
	assert.Equal(t, 2, q.RefinementCount)
}

func TestCoordinator_MaxTurnsSurvivesRestart(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sessions.json")
	cfg := Config{MaxConcurrent: 1, MaxTurns: 2}

	first := newFixtureWithSnapshot(t, &echo.Generator{}, cfg, path)
	require.NoError(t, first.coord.Start())
	first.coord.WaitForGeneration()
	for i := 0; i < 2; i++ {
		_, err := first.coord.RequestRefinement("msg-1", "again")
		require.NoError(t, err)
		waitRefinements(t, first.coord)
	}
	first.coord.Shutdown()

	second := newFixtureWithSnapshot(t, &echo.Generator{}, cfg, path)
	require.NoError(t, second.coord.Start())
	second.coord.WaitForGeneration()

	_, err := second.coord.RequestRefinement("msg-1", "one more")
	assert.ErrorIs(t, err, ErrMaxTurnsReached, "turns spent in an earlier run count")

	q, _ := second.coord.Tracker().Get("msg-1")
	assert.NotEqual(t, domain.ItemStateRefining, q.State)
	assert.False(t, second.coord.InFlight("msg-1"))

	_, err = second.coord.RequestRefinement("msg-3", "fresh item")
	assert.NoError(t, err, "items without saved turns are unaffected")
	waitRefinements(t, second.coord)
}

func TestCoordinator_RequestRefinementRejections(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &echo.Generator{}, Config{MaxConcurrent: 1})
	require.NoError(t, f.coord.Start())
	f.coord.WaitForGeneration()

	tests := []struct {
		name     string
		id       string
		feedback string
		want     error
	}{
		{"empty feedback", "msg-1", "  ", generation.ErrEmptyFeedback},
		{"unknown item", "nope", "x", ErrUnknownItem},
		{"no draft", "msg-2", "x", ErrNoDraft},
	}
	for _, tc := range tests {
		_, err := f.coord.RequestRefinement(tc.id, tc.feedback)
		assert.ErrorIs(t, err, tc.want, tc.name)
	}

	require.NoError(t, f.coord.Skip(context.Background(), "msg-3"))
	_, err := f.coord.RequestRefinement("msg-3", "x")
	assert.ErrorIs(t, err, ErrItemFinished)
}

func TestCoordinator_RefinementFailureIsReviewable(t *testing.T) {
	t.Parallel()
	gen := &mocks.MockGenerator{
		Summary: "summary",
		Draft:   "draft",
		RefineFn: func(context.Context, generation.RefineRequest) (string, generation.ResponseMetadata, error) {
			return "", generation.ResponseMetadata{}, errors.New("model unavailable")
		},
	}
	f := newFixture(t, gen, Config{MaxConcurrent: 1})
	require.NoError(t, f.coord.Start())
	f.coord.WaitForGeneration()

	_, err := f.coord.RequestRefinement("msg-3", "shorter")
	require.NoError(t, err)
	waitRefinements(t, f.coord)

	q, ok := f.coord.Next()
	require.True(t, ok)
	assert.Equal(t, "msg-3", q.Item.ID)
	assert.Equal(t, domain.ItemStateFailed, q.State)
	assert.Equal(t, "model unavailable", q.Error)
	assert.Equal(t, "draft", q.Draft.Content, "the previous draft survives a failed refinement")
}

func TestCoordinator_ShutdownRejectsRefinements(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &echo.Generator{}, Config{MaxConcurrent: 1})
	require.NoError(t, f.coord.Start())
	f.coord.WaitForGeneration()

	f.coord.Shutdown()
	_, err := f.coord.RequestRefinement("msg-1", "warmer")
	assert.Error(t, err)

	q, _ := f.coord.Tracker().Get("msg-1")
	assert.Equal(t, domain.ItemStateFailed, q.State)
	assert.False(t, f.coord.InFlight("msg-1"))
}

func TestApplyDecisions(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &echo.Generator{}, Config{MaxConcurrent: 2})
	require.NoError(t, f.coord.Start())
	f.coord.WaitForGeneration()

	path := filepath.Join(t.TempDir(), "decisions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
decisions:
  - id: msg-1
    action: refine
    feedback: be brief
  - id: msg-1
    action: accept
  - id: msg-2
    action: skip
  - id: msg-3
    action: edit
    content: See you Tuesday.
  - id: msg-3
    action: accept
  - id: ghost
    action: accept
`), 0o600))

	decisions, err := LoadDecisions(path)
	require.NoError(t, err)
	require.Len(t, decisions, 6)

	err = f.coord.Apply(context.Background(), decisions)
	assert.ErrorIs(t, err, ErrUnknownItem)

	accepted := f.coord.Tracker().AcceptedDrafts()
	require.Len(t, accepted, 2)
	assert.Contains(t, accepted[0].Draft.Content, "[revised: be brief]")
	assert.Equal(t, "See you Tuesday.", accepted[1].Draft.FinalContent())
	assert.True(t, f.coord.Tracker().Done())
}

func TestLoadDecisionsValidation(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"unknown action":  "decisions:\n  - id: a\n    action: archive\n",
		"missing id":      "decisions:\n  - action: accept\n",
		"edit no content": "decisions:\n  - id: a\n    action: edit\n",
		"refine no text":  "decisions:\n  - id: a\n    action: refine\n",
	}
	for name, body := range tests {
		path := filepath.Join(t.TempDir(), "d.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		_, err := LoadDecisions(path)
		assert.ErrorIs(t, err, ErrInvalidDecision, name)
	}

	_, err := LoadDecisions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
