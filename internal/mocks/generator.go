package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/mailroom/internal/domain"
	"github.com/phrazzld/mailroom/internal/generation"
)

// MockGenerator implements generation.Generator for testing
type MockGenerator struct {
	// SummarizeFn allows test cases to mock the Summarize behavior
	SummarizeFn func(ctx context.Context, item domain.Item) (string, error)

	// GenerateDraftFn allows test cases to mock the GenerateDraft behavior
	GenerateDraftFn func(ctx context.Context, item domain.Item) (string, error)

	// RefineFn allows test cases to mock the Refine behavior
	RefineFn func(ctx context.Context, req generation.RefineRequest) (string, generation.ResponseMetadata, error)

	// Default response values
	Summary  string
	Draft    string
	Refined  string
	Metadata generation.ResponseMetadata
	Err      error

	// mu protects the call tracking state for concurrent test cases
	mu             sync.Mutex
	summarizeCalls []string
	draftCalls     []string
	refineCalls    []generation.RefineRequest
}

// Summarize implements the generation.Summarizer interface
func (m *MockGenerator) Summarize(ctx context.Context, item domain.Item) (string, error) {
	m.mu.Lock()
	m.summarizeCalls = append(m.summarizeCalls, item.ID)
	m.mu.Unlock()

	if m.SummarizeFn != nil {
		return m.SummarizeFn(ctx, item)
	}
	return m.Summary, m.Err
}

// GenerateDraft implements the generation.Drafter interface
func (m *MockGenerator) GenerateDraft(ctx context.Context, item domain.Item) (string, error) {
	m.mu.Lock()
	m.draftCalls = append(m.draftCalls, item.ID)
	m.mu.Unlock()

	if m.GenerateDraftFn != nil {
		return m.GenerateDraftFn(ctx, item)
	}
	return m.Draft, m.Err
}

// Refine implements the generation.Refiner interface
func (m *MockGenerator) Refine(
	ctx context.Context,
	req generation.RefineRequest,
) (string, generation.ResponseMetadata, error) {
	m.mu.Lock()
	m.refineCalls = append(m.refineCalls, req)
	m.mu.Unlock()

	if m.RefineFn != nil {
		return m.RefineFn(ctx, req)
	}
	return m.Refined, m.Metadata, m.Err
}

// SummarizeCalls returns the ids of every item passed to Summarize.
func (m *MockGenerator) SummarizeCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.summarizeCalls...)
}

// DraftCalls returns the ids of every item passed to GenerateDraft.
func (m *MockGenerator) DraftCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.draftCalls...)
}

// RefineCalls returns every request passed to Refine, in call order.
func (m *MockGenerator) RefineCalls() []generation.RefineRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]generation.RefineRequest(nil), m.refineCalls...)
}

// NewMockGeneratorWithError creates a MockGenerator whose every call fails with err
func NewMockGeneratorWithError(err error) *MockGenerator {
	return &MockGenerator{Err: err}
}

// MockGeneratorThatFails creates a MockGenerator that simulates a generation failure
func MockGeneratorThatFails() *MockGenerator {
	return NewMockGeneratorWithError(generation.ErrGenerationFailed)
}

// Reset resets the call tracking state
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.summarizeCalls = nil
	m.draftCalls = nil
	m.refineCalls = nil
}
