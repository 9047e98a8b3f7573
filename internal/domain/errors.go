package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyItemID is returned when an item has no identifier.
	ErrEmptyItemID = errors.New("item ID cannot be empty")

	// ErrEmptyContent is returned when required content is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidDraftStatus is returned when a draft status is not valid.
	ErrInvalidDraftStatus = errors.New("invalid draft status")

	// ErrInvalidItemState is returned when an item state is not valid.
	ErrInvalidItemState = errors.New("invalid item state")
)
