package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/mailroom/internal/generation"
)

// Tracker holds live sessions in memory and mirrors their metrics to a
// SnapshotStore. Operations on an unknown item id are silent no-ops.
//
// Tracker does not enforce a turn limit; callers compare TurnCount against
// their own policy before requesting another refinement.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*Session
	store    SnapshotStore
	logger   *slog.Logger
}

// NewTracker creates a tracker persisting to store. A nil store keeps
// sessions in memory only.
func NewTracker(store SnapshotStore, logger *slog.Logger) *Tracker {
	return &Tracker{
		sessions: make(map[string]*Session),
		store:    store,
		logger:   logger.With("component", "session_tracker"),
	}
}

// GetOrCreate returns the live session for itemID, restoring it from the
// store when possible and otherwise starting a fresh one.
func (t *Tracker) GetOrCreate(itemID string) Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[itemID]; ok {
		return *s
	}

	s := &Session{ItemID: itemID}
	if t.store != nil {
		snap, ok, err := t.store.Load(itemID)
		switch {
		case err != nil:
			t.logger.Warn("failed to load session snapshot, starting fresh",
				"item_id", itemID,
				"error", err)
		case ok:
			s = fromSnapshot(snap)
			s.ItemID = itemID
			t.logger.Debug("restored session from snapshot",
				"item_id", itemID,
				"turn_count", s.TurnCount)
		}
	}
	t.sessions[itemID] = s
	return *s
}

// Get returns the live session for itemID without creating one.
func (t *Tracker) Get(itemID string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[itemID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// IncrementTurn advances the turn count, persists it and returns the new
// value. The count is saved before the call runs, so a turn that fails still
// counts after a restart.
func (t *Tracker) IncrementTurn(itemID string) (int, bool) {
	t.mu.Lock()
	s, ok := t.sessions[itemID]
	if !ok {
		t.mu.Unlock()
		return 0, false
	}
	s.TurnCount++
	turn, snap := s.TurnCount, s.snapshot()
	t.mu.Unlock()

	t.persist(snap)
	return turn, true
}

// Update records a successful backend response: the resume handle is
// captured once, cost and duration accumulate, and the metrics snapshot is
// persisted.
func (t *Tracker) Update(itemID string, meta generation.ResponseMetadata) {
	t.mu.Lock()
	s, ok := t.sessions[itemID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if s.ResumeHandle == "" && meta.ResumeHandle != "" {
		s.ResumeHandle = meta.ResumeHandle
	}
	s.TotalCost += meta.Cost
	s.TotalDuration += meta.Duration.Round(time.Millisecond)
	snap := s.snapshot()
	t.mu.Unlock()

	t.persist(snap)
}

// Finalize drops the live session but keeps its persisted metrics.
func (t *Tracker) Finalize(itemID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, itemID)
}

// Destroy drops the live session and deletes its persisted metrics.
func (t *Tracker) Destroy(itemID string) {
	t.mu.Lock()
	delete(t.sessions, itemID)
	t.mu.Unlock()

	if t.store == nil {
		return
	}
	if err := t.store.Delete(itemID); err != nil {
		t.logger.Error("failed to delete session snapshot",
			"item_id", itemID,
			"error", err)
	}
}

// Active returns the number of live sessions.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Snapshots returns the persisted metrics of every session, live or finalized.
func (t *Tracker) Snapshots() (map[string]Snapshot, error) {
	if t.store == nil {
		return map[string]Snapshot{}, nil
	}
	return t.store.All()
}

func (t *Tracker) persist(snap Snapshot) {
	if t.store == nil {
		return
	}
	if err := t.store.Save(snap); err != nil {
		t.logger.Error("failed to persist session snapshot",
			"item_id", snap.ItemID,
			"error", err)
	}
}
