package generation

import (
	"context"
	"time"

	"github.com/phrazzld/mailroom/internal/domain"
)

// Summarizer produces a short summary of an item.
type Summarizer interface {
	Summarize(ctx context.Context, item domain.Item) (string, error)
}

// Drafter produces a first reply draft. It is only called for items that
// need a reply.
type Drafter interface {
	GenerateDraft(ctx context.Context, item domain.Item) (string, error)
}

// Refiner rewrites a draft from reviewer feedback. Implementations that keep
// conversational state return a ResumeHandle on the first call and continue
// that conversation when the handle is passed back.
type Refiner interface {
	Refine(ctx context.Context, req RefineRequest) (string, ResponseMetadata, error)
}

// Generator is the full collaborator contract implemented by every backend.
type Generator interface {
	Summarizer
	Drafter
	Refiner
}

// SessionContext carries the continuity information for one refinement call.
type SessionContext struct {
	ItemID string
	// ResumeHandle is empty on the first turn.
	ResumeHandle string
	// Turn is the 1-based turn number of this call.
	Turn int
}

// RefineRequest is everything a Refiner needs for one turn.
type RefineRequest struct {
	Session      SessionContext
	Item         domain.Item
	CurrentDraft string
	Feedback     string
	// Prompt is the rendered user message: full context on the first turn,
	// feedback only afterwards.
	Prompt string
}

// ResponseMetadata describes a completed refinement call.
type ResponseMetadata struct {
	ResumeHandle string
	Cost         float64
	Duration     time.Duration
}
