package llm

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// mockProvider is a test double for Provider.
type mockProvider struct {
	name     string
	response *Response
	chunks   []*Response
	err      error
	lastReq  *Request
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockProvider) GenerateContentStream(ctx context.Context, req *Request) (ResponseStream, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return func(yield func(*Response, error) bool) {
		for _, c := range m.chunks {
			if !yield(c, nil) {
				return
			}
		}
	}, nil
}

type countingProvider struct {
	mockProvider
	tokens int
}

func (c *countingProvider) CountTokens(ctx context.Context, model string, contents []*Content) (int, error) {
	return c.tokens, nil
}

func newMockProvider(name, text string) *mockProvider {
	return &mockProvider{
		name: name,
		response: &Response{
			ID:       "test_resp",
			Model:    "test-model",
			Provider: name,
			Content:  ModelText(text),
			Usage:    Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
		},
	}
}

func TestClientGenerateContent(t *testing.T) {
	mock := newMockProvider("test-provider", "Hello!")
	client := NewClient(WithProvider("test-provider", mock))

	resp, err := client.GenerateContent(context.Background(), &Request{
		Model:    "test-model",
		Contents: []*Content{UserText("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Hello!" {
		t.Errorf("expected text %q, got %q", "Hello!", resp.Text())
	}
	if mock.lastReq.Provider != "test-provider" {
		t.Errorf("expected provider to be filled in, got %q", mock.lastReq.Provider)
	}
}

func TestClientProviderRouting(t *testing.T) {
	gemini := newMockProvider("gemini", "Gemini response")
	openai := newMockProvider("openai", "OpenAI response")
	client := NewClient(
		WithProvider("gemini", gemini),
		WithProvider("openai", openai),
		WithDefaultProvider("openai"),
	)

	resp, err := client.GenerateContent(context.Background(), &Request{Model: "gemini-2.5-pro"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Gemini response" {
		t.Errorf("catalog model should route to gemini, got %q", resp.Text())
	}

	resp, err = client.GenerateContent(context.Background(), &Request{Model: "custom"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "OpenAI response" {
		t.Errorf("unknown model should use default provider, got %q", resp.Text())
	}

	resp, err = client.GenerateContent(context.Background(), &Request{Model: "gemini-2.5-pro", Provider: "openai"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "OpenAI response" {
		t.Errorf("explicit provider should win, got %q", resp.Text())
	}
}

func TestClientUnknownProvider(t *testing.T) {
	client := NewClient()
	_, err := client.GenerateContent(context.Background(), &Request{Provider: "nope"})
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %T", err)
	}
}

func TestClientMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(ctx context.Context, req *Request, next func(context.Context, *Request) (*Response, error)) (*Response, error) {
			order = append(order, name+":before")
			resp, err := next(ctx, req)
			order = append(order, name+":after")
			return resp, err
		}
	}

	client := NewClient(
		WithProvider("p", newMockProvider("p", "ok")),
		WithMiddleware(mw("first"), mw("second"), LoggingMiddleware(zap.NewNop())),
	)
	if _, err := client.GenerateContent(context.Background(), &Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"first:before", "second:before", "second:after", "first:after"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], order[i])
		}
	}
}

func TestClientStream(t *testing.T) {
	mock := newMockProvider("p", "")
	mock.chunks = []*Response{{Content: ModelText("Hel")}, {Content: ModelText("lo")}}
	client := NewClient(
		WithProvider("p", mock),
		WithStreamMiddleware(StreamLoggingMiddleware(zap.NewNop())),
	)

	stream, err := client.GenerateContentStream(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var text string
	for chunk, err := range stream {
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		text += chunk.Text()
	}
	if text != "Hello" {
		t.Errorf("expected %q, got %q", "Hello", text)
	}
}

func TestClientCountTokens(t *testing.T) {
	counting := &countingProvider{mockProvider: *newMockProvider("gemini", ""), tokens: 42}
	client := NewClient(WithProvider("gemini", counting))
	n, err := client.CountTokens(context.Background(), "gemini-2.5-pro", nil)
	if err != nil || n != 42 {
		t.Fatalf("expected 42 tokens, got %d (%v)", n, err)
	}

	plain := NewClient(WithProvider("openai", newMockProvider("openai", "")))
	if _, err := plain.CountTokens(context.Background(), "gpt-4o", nil); !errors.Is(err, ErrTokenCountUnavailable) {
		t.Fatalf("expected ErrTokenCountUnavailable, got %v", err)
	}
}
