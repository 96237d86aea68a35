// Package shared contains common domain types and errors that are used across
// all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound = errors.New("entity not found")

	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrInvalidID    = errors.New("invalid ID")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyValue   = errors.New("value cannot be empty")
	ErrOutOfRange   = errors.New("value out of range")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrCorruptData        = errors.New("corrupt stored data")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrPolicyDenied = errors.New("content locked by access policy")

	// Progression errors
	ErrSessionLocked = errors.New("session is locked")

	// Content authoring errors
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "catalog", "progress", "access"
	Op      string // Operation that failed, e.g., "Load", "MarkComplete"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
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
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Catalog domain errors
var (
	ErrProgramNotFound = NewDomainError("catalog", "WeeksForProgram", ErrNotFound, "program not found")
	ErrWeekNotFound    = NewDomainError("catalog", "WeekByID", ErrNotFound, "week not found")
	ErrSessionNotFound = NewDomainError("catalog", "SessionByID", ErrNotFound, "session not found")
	ErrHabitNotFound   = NewDomainError("catalog", "Habit", ErrNotFound, "habit not found")
)

// Progress domain errors
var (
	ErrInvalidUserID      = NewDomainError("progress", "Validate", ErrInvalidID, "invalid user ID")
	ErrInvalidContentID   = NewDomainError("progress", "Validate", ErrInvalidID, "invalid content ID")
	ErrInvalidStepIndex   = NewDomainError("progress", "ToggleActionStep", ErrOutOfRange, "action step index out of range")
	ErrNoActionPlan       = NewDomainError("progress", "ToggleActionStep", ErrInvalidInput, "week has no action plan")
	ErrUnknownQuestion    = NewDomainError("progress", "SaveWorksheet", ErrInvalidInput, "unknown worksheet question")
	ErrNoWorksheet        = NewDomainError("progress", "SaveWorksheet", ErrInvalidInput, "session has no worksheet")
	ErrReflectionTooLarge = NewDomainError("progress", "SaveReflection", ErrOutOfRange, "reflection is too long")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPolicyDenied checks if the error is an access-policy denial.
func IsPolicyDenied(err error) bool {
	return errors.Is(err, ErrPolicyDenied)
}

// IsSessionLocked checks if the error is a progression-gate denial.
func IsSessionLocked(err error) bool {
	return errors.Is(err, ErrSessionLocked)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrOutOfRange)
}

// IsStorage checks if the error came from the persistence medium.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrCorruptData)
}
