package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks at the API boundary.
var (
	ErrValidation       = errors.New("validation failed")
	ErrInsufficientData = errors.New("insufficient data")
)

// ValidationError reports a missing or out-of-range required input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientDataError reports a series shorter than the analysis minimum.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: at least %d data points required, got %d", e.Need, e.Have)
}

// Is matches ErrInsufficientData.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// ErrProvider marks a simulated upstream provider failure.
var ErrProvider = errors.New("provider error")

// ProviderError is returned when a canned scenario simulates a provider outage.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

// Is matches ErrProvider.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}
