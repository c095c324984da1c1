// Package apperrors provides sentinel and custom error types for the application.
package apperrors

import (
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation represents a validation error.
// Use when client input fails validation.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrInvalidEmbedding is the sentinel for malformed voiceprint embeddings.
// Use when a query or ingested embedding is empty, has the wrong dimension,
// contains non-finite components, or is a zero vector.
var ErrInvalidEmbedding = &InvalidEmbeddingError{}

// InvalidEmbeddingError is a sentinel error for malformed embedding vectors.
type InvalidEmbeddingError struct {
	Message string
}

// NewInvalidEmbeddingError creates an InvalidEmbeddingError with a custom message.
func NewInvalidEmbeddingError(message string) *InvalidEmbeddingError {
	return &InvalidEmbeddingError{Message: message}
}

// Error implements the error interface.
func (e *InvalidEmbeddingError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "invalid embedding"
}

// Is implements the error interface for error comparison.
func (e *InvalidEmbeddingError) Is(target error) bool {
	_, ok := target.(*InvalidEmbeddingError)

	return ok
}

// ErrProfileGone is the sentinel for profiles absorbed by a merge.
// Use when a requested profile no longer exists because it was merged into
// another; MergedInto carries the surviving profile for redirects.
var ErrProfileGone = &ProfileGoneError{}

// ProfileGoneError is a sentinel error for merged-away profiles.
type ProfileGoneError struct {
	ProfileID  uuid.UUID
	MergedInto uuid.UUID
}

// NewProfileGoneError creates a ProfileGoneError pointing at the surviving profile.
func NewProfileGoneError(profileID, mergedInto uuid.UUID) *ProfileGoneError {
	return &ProfileGoneError{
		ProfileID:  profileID,
		MergedInto: mergedInto,
	}
}

// Error implements the error interface.
func (e *ProfileGoneError) Error() string {
	if e.ProfileID != uuid.Nil && e.MergedInto != uuid.Nil {
		return "profile " + e.ProfileID.String() + " was merged into " + e.MergedInto.String()
	}

	return "profile was merged into another profile"
}

// Is implements the error interface for error comparison.
func (e *ProfileGoneError) Is(target error) bool {
	_, ok := target.(*ProfileGoneError)

	return ok
}

// ErrInvalidMergeRequest is the sentinel for merge precondition failures.
// Use when a merge names fewer than two profiles, repeats a profile, or the
// winner is not among the sources.
var ErrInvalidMergeRequest = &InvalidMergeRequestError{}

// InvalidMergeRequestError is a sentinel error for rejected merge requests.
type InvalidMergeRequestError struct {
	Message string
}

// NewInvalidMergeRequestError creates an InvalidMergeRequestError with a custom message.
func NewInvalidMergeRequestError(message string) *InvalidMergeRequestError {
	return &InvalidMergeRequestError{Message: message}
}

// Error implements the error interface.
func (e *InvalidMergeRequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "invalid merge request"
}

// Is implements the error interface for error comparison.
func (e *InvalidMergeRequestError) Is(target error) bool {
	_, ok := target.(*InvalidMergeRequestError)

	return ok
}

// ErrConflict is the sentinel for concurrent-modification conflicts (e.g. a
// profile's version changed between read and write).
var ErrConflict = &ConflictError{}

// ConflictError is a sentinel error for concurrent-modification conflicts.
type ConflictError struct {
	Message string
}

// NewConflictError creates a ConflictError with a custom message.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "conflict"
}

// Is implements the error interface for error comparison.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)

	return ok
}

// ErrLimitExceeded is the sentinel for limit-exceeded errors (e.g. webhook max count).
// Use when an operation is rejected because a configured limit was reached.
var ErrLimitExceeded = &LimitExceededError{}

// LimitExceededError is a sentinel error for limit-exceeded conditions.
type LimitExceededError struct {
	Message string
}

// NewLimitExceededError creates a LimitExceededError with a custom message.
func NewLimitExceededError(message string) *LimitExceededError {
	return &LimitExceededError{Message: message}
}

// Error implements the error interface.
func (e *LimitExceededError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "limit exceeded"
}

// Is implements the error interface for error comparison.
func (e *LimitExceededError) Is(target error) bool {
	_, ok := target.(*LimitExceededError)

	return ok
}

// ErrInvalidCursor is returned when a pagination cursor is malformed or out of range.
var ErrInvalidCursor = errors.New("invalid cursor")
