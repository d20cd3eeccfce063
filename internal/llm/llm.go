package llm

import (
	"context"
	"errors"
)

// Message is a single chat turn sent to a provider.
type Message struct {
	Role    string
	Content string
}

// Request captures the inputs for a completion call.
type Request struct {
	Messages    []Message
	ForceJSON   bool
	Temperature float32
	MaxTokens   int
}

// Client abstracts chat-completion providers.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderClient is a stub implementation until provider wiring is added.
type PlaceholderClient struct{}

// Complete returns ErrNotImplemented.
func (PlaceholderClient) Complete(ctx context.Context, req Request) (string, error) {
	_ = ctx
	_ = req
	return "", ErrNotImplemented
}

// System builds a system message.
func System(content string) Message {
	return Message{Role: "system", Content: content}
}

// User builds a user message.
func User(content string) Message {
	return Message{Role: "user", Content: content}
}

// Assistant builds an assistant message.
func Assistant(content string) Message {
	return Message{Role: "assistant", Content: content}
}
