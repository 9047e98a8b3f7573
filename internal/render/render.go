// Package render turns reviewed items into exportable drafts and reports.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/phrazzld/mailroom/internal/domain"
	"github.com/phrazzld/mailroom/internal/review"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

// Mail bodies are line oriented, so single newlines become <br>.
var markdown = goldmark.New(goldmark.WithRendererOptions(html.WithHardWraps()))

// Draft is an accepted reply ready to be sent.
type Draft struct {
	ItemID      string `json:"itemId"`
	To          string `json:"to"`
	Subject     string `json:"subject"`
	Markdown    string `json:"markdown"`
	HTML        string `json:"html"`
	Edited      bool   `json:"edited"`
	Refinements int    `json:"refinements"`
}

// Report is the outcome of one triage run.
type Report struct {
	GeneratedAt time.Time          `json:"generatedAt"`
	Status      review.Status      `json:"status"`
	Stats       review.Stats       `json:"stats"`
	TotalCost   float64            `json:"totalCost"`
	Items       []domain.QueueItem `json:"items"`
}

// HTML renders Markdown text as an HTML fragment. Raw HTML in the input is
// not passed through.
func HTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

// ReplySubject prefixes subject with "Re: " unless it already has one.
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// NewDraft renders the final content of q's draft.
func NewDraft(q domain.QueueItem) (Draft, error) {
	if q.Draft == nil {
		return Draft{}, fmt.Errorf("item %s: %w", q.Item.ID, domain.ErrEmptyContent)
	}
	content := strings.TrimSpace(q.Draft.FinalContent())
	body, err := HTML(content)
	if err != nil {
		return Draft{}, fmt.Errorf("item %s: %w", q.Item.ID, err)
	}
	return Draft{
		ItemID:      q.Item.ID,
		To:          q.Item.From,
		Subject:     ReplySubject(q.Item.Subject),
		Markdown:    content,
		HTML:        body,
		Edited:      q.Draft.Status == domain.DraftStatusEdited,
		Refinements: q.RefinementCount,
	}, nil
}

// AcceptedDrafts renders every accepted item that has a draft, keeping the
// order of items.
func AcceptedDrafts(items []domain.QueueItem) ([]Draft, error) {
	var out []Draft
	for _, q := range items {
		if q.State != domain.ItemStateAccepted || q.Draft == nil {
			continue
		}
		d, err := NewDraft(q)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// WriteMarkdown writes drafts as one Markdown document.
func WriteMarkdown(w io.Writer, drafts []Draft) error {
	for i, d := range drafts {
		if i > 0 {
			if _, err := io.WriteString(w, "\n---\n\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "## %s\n\nTo: %s\n\n%s\n", d.Subject, d.To, d.Markdown); err != nil {
			return err
		}
	}
	return nil
}

// WriteReport encodes report as indented JSON.
func WriteReport(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// ReadReport decodes a report written by WriteReport.
func ReadReport(r io.Reader) (Report, error) {
	var report Report
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return Report{}, fmt.Errorf("decoding report: %w", err)
	}
	return report, nil
}
