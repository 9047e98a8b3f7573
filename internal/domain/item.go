package domain

import (
	"fmt"
	"strings"
	"time"
)

// Item is a single inbound email handed to the pipeline. Items are treated
// as immutable once they enter the schedulers.
type Item struct {
	ID         string    `json:"id"         yaml:"id"`
	From       string    `json:"from"       yaml:"from"`
	Subject    string    `json:"subject"    yaml:"subject"`
	Date       time.Time `json:"date"       yaml:"date"`
	Body       string    `json:"body"       yaml:"body"`
	NeedsReply bool      `json:"needsReply" yaml:"needs_reply"`
}

// Validate checks if the Item has the fields every scheduler relies on.
func (i Item) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return ErrEmptyItemID
	}
	if strings.TrimSpace(i.Body) == "" && strings.TrimSpace(i.Subject) == "" {
		return fmt.Errorf("%w: item %s has neither subject nor body", ErrValidation, i.ID)
	}
	return nil
}
