package usage

import (
	"errors"
	"fmt"
)

var (
	// ErrLimitReached indicates the user exhausted a feature's allowance.
	ErrLimitReached = errors.New("limit reached")
	// ErrUnknownFeature indicates a feature name outside the metered set.
	ErrUnknownFeature = errors.New("unknown feature")
)

// LimitError is the refusal for an exhausted feature, carrying the quota
// state so handlers can report used/limit/plan to the caller. It matches
// ErrLimitReached under errors.Is.
type LimitError struct {
	Feature string
	Plan    string
	Used    int
	Limit   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("limit reached: %s %d/%d on plan %s", e.Feature, e.Used, e.Limit, e.Plan)
}

func (e *LimitError) Is(target error) bool {
	return target == ErrLimitReached
}

// Details renders the error body payload for quota-refused responses.
func (e *LimitError) Details() map[string]any {
	return map[string]any{
		"limitReached": true,
		"feature":      e.Feature,
		"used":         e.Used,
		"limit":        e.Limit,
		"plan":         e.Plan,
	}
}

// NewLimitError builds a LimitError from an access check result.
func NewLimitError(plan string, access Access) *LimitError {
	return &LimitError{
		Feature: access.Feature,
		Plan:    plan,
		Used:    access.Used,
		Limit:   access.Limit,
	}
}
