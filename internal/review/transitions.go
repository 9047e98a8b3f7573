package review

import (
	"github.com/phrazzld/mailroom/internal/domain"
)

// MarkRefining records feedback and takes the item out of review while its
// refinement runs.
func (t *Tracker) MarkRefining(id, feedback string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q := t.liveLocked(id, "mark_refining")
	if q == nil {
		return
	}
	t.detachLocked(id)
	q.State = domain.ItemStateRefining
	q.Feedback = feedback
	q.Error = ""
	q.AppendEntry(domain.EntryFeedback, feedback)
	t.releaseLocked(id)
}

// MarkRefined replaces the draft with the refinement result and queues the
// item as refined-ready.
func (t *Tracker) MarkRefined(id, result string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q := t.liveLocked(id, "mark_refined")
	if q == nil {
		return
	}
	q.State = domain.ItemStateRefined
	q.RefinementCount++
	q.Error = ""
	q.AppendEntry(domain.EntryRefined, result)
	if q.Draft == nil {
		q.Draft = domain.NewDraft(id, result)
	} else {
		q.Draft.Content = result
		q.Draft.EditedContent = ""
		q.Draft.Status = domain.DraftStatusPending
	}
	t.detachLocked(id)
	t.refinedReady = append(t.refinedReady, id)
}

// MarkFailed records a refinement failure and queues the item as
// refined-ready so the failure is reviewed like any other result.
func (t *Tracker) MarkFailed(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q := t.liveLocked(id, "mark_failed")
	if q == nil {
		return
	}
	q.State = domain.ItemStateFailed
	if err != nil {
		q.Error = err.Error()
	} else {
		q.Error = "unknown error"
	}
	t.detachLocked(id)
	t.refinedReady = append(t.refinedReady, id)
}

// MarkAccepted finishes the item as accepted. Repeated calls and calls on
// skipped items do nothing.
func (t *Tracker) MarkAccepted(id string) {
	t.finish(id, domain.ItemStateAccepted)
}

// MarkSkipped finishes the item as skipped. Repeated calls and calls on
// accepted items do nothing.
func (t *Tracker) MarkSkipped(id string) {
	t.finish(id, domain.ItemStateSkipped)
}

func (t *Tracker) finish(id string, state domain.ItemState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q := t.liveLocked(id, "finish")
	if q == nil {
		return
	}
	q.State = state
	if q.Draft != nil {
		switch {
		case state == domain.ItemStateSkipped:
			q.Draft.Status = domain.DraftStatusSkipped
		case q.Draft.Status != domain.DraftStatusEdited:
			q.Draft.Status = domain.DraftStatusAccepted
		}
	}
	t.detachLocked(id)
	t.completed = append(t.completed, id)
	t.releaseLocked(id)
}

// UpdateSummary sets the item's summary, which makes it reviewable.
func (t *Tracker) UpdateSummary(id, summary string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if q, ok := t.lookup[id]; ok {
		q.Summary = summary
	}
}

// UpdateDraft sets the generated draft. The first call also seeds the
// conversation log.
func (t *Tracker) UpdateDraft(id, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, ok := t.lookup[id]
	if !ok {
		return
	}
	if q.Draft == nil {
		q.Draft = domain.NewDraft(id, content)
	} else {
		q.Draft.Content = content
	}
	for _, e := range q.Conversation {
		if e.Kind == domain.EntryDraft {
			return
		}
	}
	q.AppendEntry(domain.EntryDraft, content)
}

// EditDraft stores the reviewer's own wording for the draft.
func (t *Tracker) EditDraft(id, content string) error {
	if content == "" {
		return domain.ErrEmptyContent
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	q := t.liveLocked(id, "edit_draft")
	if q == nil {
		return nil
	}
	if q.Draft == nil {
		q.Draft = domain.NewDraft(id, "")
	}
	q.Draft.EditedContent = content
	q.Draft.Status = domain.DraftStatusEdited
	return nil
}
