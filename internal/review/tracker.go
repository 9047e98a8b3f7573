package review

import (
	"log/slog"
	"sync"

	"github.com/phrazzld/mailroom/internal/domain"
)

// Status counts queue membership. Refining is derived from item states since
// items in flight belong to no queue.
type Status struct {
	Unprocessed  int `json:"unprocessed"`
	RefinedReady int `json:"refinedReady"`
	Completed    int `json:"completed"`
	Refining     int `json:"refining"`
	Total        int `json:"total"`
}

// Stats counts items by state.
type Stats struct {
	Total       int `json:"total"`
	Queued      int `json:"queued"`
	Reviewing   int `json:"reviewing"`
	Refining    int `json:"refining"`
	Refined     int `json:"refined"`
	Failed      int `json:"failed"`
	Accepted    int `json:"accepted"`
	Skipped     int `json:"skipped"`
	Refinements int `json:"refinements"`
}

// Tracker is the review state machine for one batch of items.
type Tracker struct {
	mu sync.Mutex

	unprocessed  []string
	refinedReady []string
	completed    []string

	sequence []string
	position map[string]int
	cursor   int
	current  string

	lookup map[string]*domain.QueueItem
	logger *slog.Logger
}

// NewTracker creates a tracker holding items in their given order. Every
// item starts queued in unprocessed. Duplicate ids after the first are
// dropped.
func NewTracker(items []domain.Item, logger *slog.Logger) *Tracker {
	t := &Tracker{
		position: make(map[string]int, len(items)),
		cursor:   -1,
		lookup:   make(map[string]*domain.QueueItem, len(items)),
		logger:   logger.With("component", "review_tracker"),
	}
	for _, item := range items {
		if _, dup := t.lookup[item.ID]; dup {
			t.logger.Warn("dropping duplicate item", "item_id", item.ID)
			continue
		}
		t.lookup[item.ID] = domain.NewQueueItem(item)
		t.position[item.ID] = len(t.sequence)
		t.sequence = append(t.sequence, item.ID)
		t.unprocessed = append(t.unprocessed, item.ID)
	}
	return t
}

// Next returns the next item to review. Refined-ready items come first, then
// the oldest unprocessed item whose summary has arrived. The second result is
// false when nothing is reviewable right now, which is not the same as the
// batch being finished.
//
// A failed item keeps its failed state so the reviewer can see the failure.
func (t *Tracker) Next() (domain.QueueItem, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.refinedReady) > 0 {
		id := t.refinedReady[0]
		t.refinedReady = t.refinedReady[1:]
		q := t.lookup[id]
		if q.State != domain.ItemStateFailed {
			q.State = domain.ItemStateReviewing
		}
		t.focusLocked(id)
		return q.Clone(), true
	}

	for i, id := range t.unprocessed {
		q := t.lookup[id]
		if q.Summary == "" {
			continue
		}
		t.unprocessed = append(t.unprocessed[:i:i], t.unprocessed[i+1:]...)
		q.State = domain.ItemStateReviewing
		t.focusLocked(id)
		return q.Clone(), true
	}
	return domain.QueueItem{}, false
}

// Previous moves the cursor one step back in the sequence. At the start it
// returns false and leaves the cursor where it is.
func (t *Tracker) Previous() (domain.QueueItem, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.moveLocked(t.cursor - 1)
}

// NextInSequence moves the cursor one step forward in the sequence. Past the
// end it returns false and leaves the cursor where it is.
func (t *Tracker) NextInSequence() (domain.QueueItem, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.moveLocked(t.cursor + 1)
}

func (t *Tracker) moveLocked(to int) (domain.QueueItem, bool) {
	if to < 0 || to >= len(t.sequence) {
		return domain.QueueItem{}, false
	}
	id := t.sequence[to]
	q := t.lookup[id]
	// Terminal and in-flight items are shown as they are.
	if !q.State.IsTerminal() && q.State != domain.ItemStateRefining {
		q.State = domain.ItemStateReviewing
	}
	t.cursor = to
	t.current = id
	return q.Clone(), true
}

func (t *Tracker) focusLocked(id string) {
	t.cursor = t.position[id]
	t.current = id
}

// Current returns the item under review, if any.
func (t *Tracker) Current() (domain.QueueItem, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == "" {
		return domain.QueueItem{}, false
	}
	return t.lookup[t.current].Clone(), true
}

// Cursor returns the current sequence position, or -1 before the first move.
func (t *Tracker) Cursor() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

// Get returns a copy of the item with the given id.
func (t *Tracker) Get(id string) (domain.QueueItem, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, ok := t.lookup[id]
	if !ok {
		return domain.QueueItem{}, false
	}
	return q.Clone(), true
}

// Items returns copies of every item in sequence order.
func (t *Tracker) Items() []domain.QueueItem {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.QueueItem, 0, len(t.sequence))
	for _, id := range t.sequence {
		out = append(out, t.lookup[id].Clone())
	}
	return out
}

// liveLocked returns the item for id unless it is unknown or already
// accepted or skipped. Late callbacks for such items are expected.
func (t *Tracker) liveLocked(id, op string) *domain.QueueItem {
	q, ok := t.lookup[id]
	if !ok {
		return nil
	}
	if q.State.IsTerminal() {
		t.logger.Debug("ignoring transition on finished item",
			"item_id", id,
			"op", op,
			"state", q.State)
		return nil
	}
	return q
}

// detachLocked removes id from the unprocessed and refined-ready queues.
func (t *Tracker) detachLocked(id string) {
	t.unprocessed = without(t.unprocessed, id)
	t.refinedReady = without(t.refinedReady, id)
}

func without(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func (t *Tracker) releaseLocked(id string) {
	if t.current == id {
		t.current = ""
	}
}
