package model

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by all components. Callers match with errors.Is.
var (
	ErrInsufficientData   = errors.New("insufficient data")
	ErrModelNotTrained    = errors.New("model not trained")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrSourceUnavailable  = errors.New("source unavailable")
	ErrValidationFailure  = errors.New("validation failure")
	ErrAlertNotFound      = errors.New("alert not found")
	ErrInvalidStatus      = errors.New("invalid alert status")

	ErrEmptyData = fmt.Errorf("empty training data: %w", ErrInsufficientData)
)

// ErrorCode maps an error to a stable machine-readable code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientData):
		return "INSUFFICIENT_DATA"
	case errors.Is(err, ErrModelNotTrained):
		return "MODEL_NOT_TRAINED"
	case errors.Is(err, ErrPersistenceFailure):
		return "PERSISTENCE_FAILURE"
	case errors.Is(err, ErrSourceUnavailable):
		return "SOURCE_UNAVAILABLE"
	case errors.Is(err, ErrValidationFailure):
		return "VALIDATION_FAILURE"
	case errors.Is(err, ErrAlertNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidStatus):
		return "VALIDATION_ERROR"
	}
	return "INTERNAL_ERROR"
}
