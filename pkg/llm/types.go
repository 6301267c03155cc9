package llm

import (
	"context"
	"errors"
)

// Client is the gateway to an external LLM endpoint. Implementations return
// the raw response text and never attempt to interpret it as JSON; that is
// the caller's job. Implementations must be safe for concurrent use.
type Client interface {
	Evaluate(ctx context.Context, prompt string, temperature float32) (string, error)
	// Close releases the underlying connection. Calling Close more than once
	// is a no-op.
	Close() error
}

// ErrEmptyResponse indicates the provider answered but produced no
// extractable text.
var ErrEmptyResponse = errors.New("llm: empty response from provider")

// TransportError wraps network or authentication failures talking to the
// provider.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "llm: transport failure: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }
