package generation

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/phrazzld/mailroom/internal/domain"
)

// SystemPrompt is shared by every backend.
const SystemPrompt = "You are an assistant that triages email. Be concise, accurate and write in the " +
	"voice of the mailbox owner. Reply with the requested text only."

var (
	summaryTemplate = template.Must(template.New("summary").Parse(
		`Summarize the following email in two or three sentences. Mention any action requested of the recipient.

From: {{.Item.From}}
Subject: {{.Item.Subject}}
Date: {{.Date}}

{{.Item.Body}}`))

	draftTemplate = template.Must(template.New("draft").Parse(
		`Write a reply to the following email. Return only the reply body.

From: {{.Item.From}}
Subject: {{.Item.Subject}}
Date: {{.Date}}

{{.Item.Body}}`))

	firstTurnTemplate = template.Must(template.New("refine_first").Parse(
		`Here is an email and a draft reply to it. Revise the draft according to the feedback and return only the revised reply.

Original email
From: {{.Item.From}}
Subject: {{.Item.Subject}}
Date: {{.Date}}

{{.Item.Body}}

Current draft
{{.CurrentDraft}}

Feedback
{{.Feedback}}`))

	followUpTemplate = template.Must(template.New("refine_followup").Parse(
		`Revise the draft again with this feedback and return only the revised reply.

{{.Feedback}}`))
)

type promptData struct {
	Item         domain.Item
	Date         string
	CurrentDraft string
	Feedback     string
}

func render(t *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func newPromptData(item domain.Item) promptData {
	date := ""
	if !item.Date.IsZero() {
		date = item.Date.Format("2006-01-02 15:04")
	}
	return promptData{Item: item, Date: date}
}

// SummaryPrompt renders the summarization prompt for item.
func SummaryPrompt(item domain.Item) (string, error) {
	return render(summaryTemplate, newPromptData(item))
}

// DraftPrompt renders the first-draft prompt for item.
func DraftPrompt(item domain.Item) (string, error) {
	return render(draftTemplate, newPromptData(item))
}

// RefinePrompt renders the refinement prompt. Turn 1 carries the original
// message, the current draft and the feedback; later turns carry only the
// feedback and rely on the backend session for the rest.
func RefinePrompt(item domain.Item, currentDraft, feedback string, turn int) (string, error) {
	if strings.TrimSpace(feedback) == "" {
		return "", ErrEmptyFeedback
	}
	data := newPromptData(item)
	data.CurrentDraft = currentDraft
	data.Feedback = feedback
	if turn <= 1 {
		return render(firstTurnTemplate, data)
	}
	return render(followUpTemplate, data)
}

// IsFullContextPrompt reports whether prompt was rendered for a first turn.
func IsFullContextPrompt(prompt string) bool {
	return strings.Contains(prompt, "Original email")
}
