package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Input validation errors
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmptyPValues      = fmt.Errorf("%w: empty p-value array", ErrInvalidInput)
	ErrAllNaN            = fmt.Errorf("%w: all p-values are NaN", ErrInvalidInput)
	ErrPValueOutOfRange  = fmt.Errorf("%w: p-value outside [0, 1]", ErrInvalidInput)
	ErrInvalidAlpha      = fmt.Errorf("%w: alpha must be in (0, 1)", ErrInvalidInput)
	ErrUnsupportedMethod = errors.New("unsupported correction method")

	// Registry errors
	ErrInsufficientData = errors.New("insufficient data for correction")
	ErrPermissionDenied = errors.New("permission denied")
	ErrExportBlocked    = fmt.Errorf("%w: uncorrected tests remain, apply a correction or force the export", ErrPermissionDenied)
	ErrNotFound         = errors.New("resource not found")
	ErrSessionNotFound  = fmt.Errorf("%w: session", ErrNotFound)

	// Sequential errors
	ErrNonMonotonicFractions = fmt.Errorf("%w: information fractions must be strictly increasing in (0, 1]", ErrInvalidInput)
)

// Error constructors with context
func NewInvalidPValueError(index int, value float64) error {
	return fmt.Errorf("%w: p[%d] = %v", ErrPValueOutOfRange, index, value)
}

func NewUnsupportedMethodError(method string) error {
	return fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
}

func NewSessionNotFoundError(id SessionID) error {
	return fmt.Errorf("%w with id %s", ErrSessionNotFound, id)
}

// Error checking helpers
func IsInvalidInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrUnsupportedMethod)
}

func IsPermissionError(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
