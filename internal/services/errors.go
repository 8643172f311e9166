package services

import (
	"errors"
	"fmt"
)

var (
	ErrValidationFailed = errors.New("validation failed")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("resource not found")

	ErrAttemptNotFound = fmt.Errorf("attempt %w", ErrNotFound)
	ErrQuizNotFound    = fmt.Errorf("quiz %w", ErrNotFound)

	// ErrTenantMismatch means the quiz belongs to a different classroom than
	// the caller. Never silently corrected.
	ErrTenantMismatch = errors.New("quiz does not belong to caller's classroom")

	// ErrAttemptCompleted guards mutations that may never touch a sealed attempt.
	ErrAttemptCompleted = errors.New("attempt is already completed")

	// ErrMissingCompletionData means finalization found neither ledger results
	// nor a completion payload in the grading conversation. The attempt must
	// not be finalized with unknown scores.
	ErrMissingCompletionData = errors.New("no completion data available for attempt")
)

// ValidationError is a business-rule failure on a single field.
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

func NewValidationError(field, message string, value interface{}) error {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// PermissionError carries the who/what/why of a denied operation.
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func (e *PermissionError) Unwrap() error {
	return ErrForbidden
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) error {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}
