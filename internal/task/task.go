package task

import (
	"errors"
	"fmt"
)

// JobStatus represents the current state of a job
type JobStatus string

// Possible job status values. complete and failed are terminal.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the job has finished.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// Common errors returned by the schedulers
var (
	// ErrSchedulerClosed is returned when enqueueing after Cleanup. It
	// indicates a lifecycle bug in the caller.
	ErrSchedulerClosed = errors.New("scheduler is closed")

	// ErrInvalidJob is returned when a job is missing required fields.
	ErrInvalidJob = errors.New("invalid job")
)

// DefaultMaxConcurrent is used when a scheduler is configured with a
// non-positive concurrency limit.
const DefaultMaxConcurrent = 3

// recoverError converts a panic raised by a collaborator into an error so it
// fails the job instead of crashing the scheduler.
func recoverError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("collaborator panic: %w", err)
	}
	return fmt.Errorf("collaborator panic: %v", r)
}
