package review

import "github.com/phrazzld/mailroom/internal/domain"

// Status returns queue sizes.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Status{
		Unprocessed:  len(t.unprocessed),
		RefinedReady: len(t.refinedReady),
		Completed:    len(t.completed),
		Total:        len(t.sequence),
	}
	for _, q := range t.lookup {
		if q.State == domain.ItemStateRefining {
			s.Refining++
		}
	}
	return s
}

// Stats returns item counts by state.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{Total: len(t.sequence)}
	for _, q := range t.lookup {
		s.Refinements += q.RefinementCount
		switch q.State {
		case domain.ItemStateQueued:
			s.Queued++
		case domain.ItemStateReviewing:
			s.Reviewing++
		case domain.ItemStateRefining:
			s.Refining++
		case domain.ItemStateRefined:
			s.Refined++
		case domain.ItemStateFailed:
			s.Failed++
		case domain.ItemStateAccepted:
			s.Accepted++
		case domain.ItemStateSkipped:
			s.Skipped++
		}
	}
	return s
}

// Done reports whether every item has been accepted or skipped.
func (t *Tracker) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.completed) == len(t.sequence)
}

// AcceptedDrafts returns the accepted items that have a draft, in the order
// they were completed.
func (t *Tracker) AcceptedDrafts() []domain.QueueItem {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []domain.QueueItem
	for _, id := range t.completed {
		q := t.lookup[id]
		if q.State == domain.ItemStateAccepted && q.Draft != nil {
			out = append(out, q.Clone())
		}
	}
	return out
}
