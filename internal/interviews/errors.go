package interviews

import "errors"

var (
	ErrNotFound           = errors.New("interview not found")
	ErrNotActive          = errors.New("interview is not active")
	ErrSessionNotReady    = errors.New("analysis session is not completed")
	ErrMissingSessionData = errors.New("analysis session is missing required artifacts")
)
