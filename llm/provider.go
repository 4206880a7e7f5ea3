package llm

import (
	"context"
	"errors"
)

// Provider is the interface every inference backend must implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "gemini", "openai").
	Name() string

	// GenerateContent sends a blocking request and returns the full response.
	GenerateContent(ctx context.Context, req *Request) (*Response, error)

	// GenerateContentStream opens a streaming request. Errors raised while
	// opening the stream are returned directly so callers can retry the open;
	// later failures end the sequence.
	GenerateContentStream(ctx context.Context, req *Request) (ResponseStream, error)
}

// TokenCounter is implemented by backends that can measure a prompt.
type TokenCounter interface {
	CountTokens(ctx context.Context, model string, contents []*Content) (int, error)
}

// Closer is implemented by backends that hold resources.
type Closer interface {
	Close() error
}

// ErrTokenCountUnavailable is returned when no backend can count tokens for a
// request. Callers treat it as "skip budget checks".
var ErrTokenCountUnavailable = errors.New("llm: token counting unavailable")
