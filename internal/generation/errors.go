package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrGenerationFailed is returned when a model call fails for any general reason
	ErrGenerationFailed = errors.New("failed to generate text")

	// ErrInvalidResponse is returned when the model response cannot be parsed or is empty
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the provider refuses the content
	ErrContentBlocked = errors.New("content blocked by provider safety filters")

	// ErrTransientFailure is returned when retries of a transient error are exhausted
	ErrTransientFailure = errors.New("transient model failure")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrEmptyFeedback is returned when a refinement is requested without feedback
	ErrEmptyFeedback = errors.New("refinement feedback cannot be empty")
)
