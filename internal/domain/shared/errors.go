// Package shared contains domain types, errors, events, and value objects
// used across all domain packages. It has no external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds. Check them with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrMalformedInput  = errors.New("malformed input")
	ErrInvalidID       = errors.New("invalid ID")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyProcessed = errors.New("already processed")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")

	// Infrastructure errors
	ErrTransientStore     = errors.New("transient store failure")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "submission", "progression", "badge"
	Op      string // Operation that failed, e.g. "Find", "IncrementXP"
	Kind    error  // Base error kind for errors.Is()
	Message string
	Err     error // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error, or the kind when there is none.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches either the kind or anything in the wrapped chain.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Webhook errors
var (
	ErrSignatureMismatch = NewDomainError("webhook", "Verify", ErrUnauthorized, "signature verification failed")
	ErrMalformedPayload  = NewDomainError("webhook", "Decode", ErrMalformedInput, "push payload is malformed")
	ErrMissingSubmission = NewDomainError("webhook", "Route", ErrMalformedInput, "submission id is required")
)

// Submission domain errors
var (
	ErrSubmissionNotFound = NewDomainError("submission", "Find", ErrNotFound, "submission not found")
	ErrAssignmentNotFound = NewDomainError("assignment", "Find", ErrNotFound, "assignment not found")
	ErrInvalidStatus      = NewDomainError("submission", "Validate", ErrInvalidState, "unknown submission status")
	ErrInvalidScore       = NewDomainError("submission", "Validate", ErrValueOutOfRange, "score must be between 0 and 100")
)

// Progression domain errors
var (
	ErrUserNotFound     = NewDomainError("progression", "Find", ErrNotFound, "user not found")
	ErrNegativeXP       = NewDomainError("progression", "IncrementXP", ErrNegativeValue, "xp amount cannot be negative")
	ErrBadgeNotFound    = NewDomainError("badge", "Find", ErrNotFound, "badge not found")
	ErrUnknownCriterion = NewDomainError("badge", "ParseCriterion", ErrValidation, "unknown badge criterion")
)

// Leaderboard domain errors
var (
	ErrInvalidWindow = NewDomainError("leaderboard", "Validate", ErrMalformedInput, "unknown ranking window")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized checks for authentication failures.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsMalformed checks for undecodable or invalid caller input.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedInput)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrMalformedInput) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
