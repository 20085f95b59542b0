package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")

	ErrDimensionMismatch    = errors.New("vector dimension mismatch")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrNotReady             = errors.New("retrieval not ready")
	ErrEmptyCorpus          = errors.New("corpus is empty")
)

// ValidationError reports malformed case or query input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// DimensionError returns an error matching ErrDimensionMismatch that names
// both lengths.
func DimensionError(want, got int) error {
	return fmt.Errorf("%w: expected=%d got=%d", ErrDimensionMismatch, want, got)
}
