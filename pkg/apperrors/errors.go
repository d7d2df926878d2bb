package apperrors

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// Pipeline failure taxonomy. Callers wrap these with %w and test with errors.Is.
	ErrCatalogUnavailable = errors.New("schema catalog unavailable")
	ErrTransportFailure   = errors.New("generation service unavailable")
	ErrExtractionFailure  = errors.New("no SQL statement found in model output")
	ErrValidationFailure  = errors.New("generated SQL failed validation")
	ErrExecutionFailure   = errors.New("database rejected generated SQL")
	ErrExhausted          = errors.New("correction attempts exhausted")
	ErrCancelled          = errors.New("request cancelled")
)
