package domain

import "time"

// ItemState is the review state of an item.
//
//	queued -> reviewing -> refining -> refined|failed -> reviewing ... -> accepted|skipped
type ItemState string

// Possible item states
const (
	ItemStateQueued    ItemState = "queued"
	ItemStateReviewing ItemState = "reviewing"
	ItemStateRefining  ItemState = "refining"
	ItemStateRefined   ItemState = "refined"
	ItemStateFailed    ItemState = "failed"
	ItemStateAccepted  ItemState = "accepted"
	ItemStateSkipped   ItemState = "skipped"
)

// IsTerminal reports whether the state ends the item's review.
func (s ItemState) IsTerminal() bool {
	return s == ItemStateAccepted || s == ItemStateSkipped
}

// IsValidItemState reports whether state is one of the known item states.
func IsValidItemState(state ItemState) bool {
	switch state {
	case ItemStateQueued, ItemStateReviewing, ItemStateRefining, ItemStateRefined,
		ItemStateFailed, ItemStateAccepted, ItemStateSkipped:
		return true
	default:
		return false
	}
}

// EntryKind labels an entry of an item's conversation log.
type EntryKind string

// Conversation entry kinds
const (
	EntryDraft    EntryKind = "draft"
	EntryFeedback EntryKind = "feedback"
	EntryRefined  EntryKind = "refined"
)

// ConversationEntry is one timestamped step of the draft/feedback exchange.
type ConversationEntry struct {
	Kind    EntryKind `json:"kind"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// QueueItem is the review tracker's record for one item.
type QueueItem struct {
	Item            Item                `json:"item"`
	Summary         string              `json:"summary"`
	Draft           *Draft              `json:"draft,omitempty"`
	State           ItemState           `json:"state"`
	RefinementCount int                 `json:"refinementCount"`
	Feedback        string              `json:"feedback,omitempty"`
	Error           string              `json:"error,omitempty"`
	Conversation    []ConversationEntry `json:"conversation"`
}

// NewQueueItem wraps an item in its initial queued state.
func NewQueueItem(item Item) *QueueItem {
	return &QueueItem{
		Item:  item,
		State: ItemStateQueued,
	}
}

// Clone returns a deep copy so callers cannot mutate tracker-owned state.
func (q *QueueItem) Clone() QueueItem {
	c := *q
	c.Draft = q.Draft.Clone()
	if q.Conversation != nil {
		c.Conversation = make([]ConversationEntry, len(q.Conversation))
		copy(c.Conversation, q.Conversation)
	}
	return c
}

// AppendEntry records a step in the conversation log.
func (q *QueueItem) AppendEntry(kind EntryKind, content string) {
	q.Conversation = append(q.Conversation, ConversationEntry{
		Kind:    kind,
		Content: content,
		At:      time.Now().UTC(),
	})
}
