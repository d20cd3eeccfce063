package structured

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"interview-backend/internal/llm"
)

// Outcome tags how a structured model response was obtained.
type Outcome string

const (
	// OutcomeClean means the response parsed as-is.
	OutcomeClean Outcome = "clean"
	// OutcomeRepaired means the object had to be carved out of surrounding text.
	OutcomeRepaired Outcome = "repaired"
	// OutcomeFailed means no JSON object could be recovered.
	OutcomeFailed Outcome = "failed"
)

// ErrNoObject indicates the response contained no recoverable JSON object.
var ErrNoObject = errors.New("no JSON object in response")

// Decode parses raw model output into v. Providers often wrap JSON in prose
// or markdown fences, so a failed direct parse falls back to the substring
// between the first '{' and the last '}'.
func Decode(raw string, v any) (Outcome, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return OutcomeFailed, ErrNoObject
	}
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return OutcomeClean, nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return OutcomeFailed, ErrNoObject
	}
	candidate := trimmed[start : end+1]
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return OutcomeFailed, fmt.Errorf("repair parse: %w", err)
	}
	return OutcomeRepaired, nil
}

// Complete calls the model and decodes the response into v. When neither the
// raw response nor the repaired substring parse, it asks the model once to fix
// its own output before giving up.
func Complete(ctx context.Context, client llm.Client, req llm.Request, v any) (Outcome, error) {
	req.ForceJSON = true
	raw, err := client.Complete(ctx, req)
	if err != nil {
		return OutcomeFailed, err
	}

	outcome, decodeErr := Decode(raw, v)
	if outcome != OutcomeFailed {
		return outcome, nil
	}

	fixReq := llm.Request{
		Messages: []llm.Message{
			llm.System("You repair malformed JSON. Respond with only the corrected JSON object, no commentary."),
			llm.User("Fix this so it parses as a single JSON object:\n\n" + raw),
		},
		ForceJSON:   true,
		Temperature: 0,
	}
	fixed, fixErr := client.Complete(ctx, fixReq)
	if fixErr != nil {
		return OutcomeFailed, fmt.Errorf("fix retry: %w (original: %v)", fixErr, decodeErr)
	}
	if outcome, err := Decode(fixed, v); outcome != OutcomeFailed {
		_ = err
		return OutcomeRepaired, nil
	}
	return OutcomeFailed, fmt.Errorf("llm output invalid: %w", decodeErr)
}
