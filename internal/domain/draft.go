package domain

// DraftStatus represents the reviewer's decision about a draft.
type DraftStatus string

// Possible draft status values
const (
	DraftStatusPending  DraftStatus = "pending"
	DraftStatusAccepted DraftStatus = "accepted"
	DraftStatusEdited   DraftStatus = "edited"
	DraftStatusSkipped  DraftStatus = "skipped"
)

// Draft is a proposed reply for an item.
type Draft struct {
	ItemID        string      `json:"itemId"`
	Content       string      `json:"content"`
	Status        DraftStatus `json:"status"`
	EditedContent string      `json:"editedContent,omitempty"`
}

// NewDraft creates a pending draft for the given item.
func NewDraft(itemID, content string) *Draft {
	return &Draft{
		ItemID:  itemID,
		Content: content,
		Status:  DraftStatusPending,
	}
}

// FinalContent returns the text that should be sent: the reviewer's edit when
// one exists, otherwise the generated content.
func (d *Draft) FinalContent() string {
	if d == nil {
		return ""
	}
	if d.EditedContent != "" {
		return d.EditedContent
	}
	return d.Content
}

// Clone returns a copy that shares no memory with d.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// IsValidDraftStatus reports whether status is one of the known draft statuses.
func IsValidDraftStatus(status DraftStatus) bool {
	switch status {
	case DraftStatusPending, DraftStatusAccepted, DraftStatusEdited, DraftStatusSkipped:
		return true
	default:
		return false
	}
}
