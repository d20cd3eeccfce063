package sessions

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrNotReady means the requested derivative needs a completed run
	// with the prerequisite artifacts in place.
	ErrNotReady = errors.New("completed analysis required")
)

const (
	ErrorCodeValidation        = "VALIDATION_ERROR"
	ErrorCodeLLMTimeout        = "LLM_TIMEOUT"
	ErrorCodeLLMSchemaMismatch = "LLM_SCHEMA_MISMATCH"
	ErrorCodeStorage           = "STORAGE_ERROR"
	ErrorCodeInternal          = "INTERNAL_ERROR"
)
