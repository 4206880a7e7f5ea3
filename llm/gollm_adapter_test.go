package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestGollmAdapterName(t *testing.T) {
	for _, provider := range []string{"openai", "anthropic"} {
		adapter, err := NewGollmAdapter(provider, "test-key-not-real")
		if err != nil {
			t.Logf("skipping %s adapter creation (expected without real key): %v", provider, err)
			continue
		}
		if adapter.Name() != provider {
			t.Errorf("expected name %q, got %q", provider, adapter.Name())
		}
	}
}

func TestGollmAdapterTranslateError(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai"}

	tests := []struct {
		msg       string
		retryable bool
		check     func(error) bool
	}{
		{"401 Unauthorized", false, func(e error) bool { var x *AuthenticationError; return errors.As(e, &x) }},
		{"invalid api key", false, func(e error) bool { var x *AuthenticationError; return errors.As(e, &x) }},
		{"403 Forbidden", false, func(e error) bool { var x *AccessDeniedError; return errors.As(e, &x) }},
		{"404 not found", false, func(e error) bool { var x *NotFoundError; return errors.As(e, &x) }},
		{"429 rate limit exceeded", true, func(e error) bool { var x *RateLimitError; return errors.As(e, &x) }},
		{"context length exceeded", false, func(e error) bool { var x *ContextLengthError; return errors.As(e, &x) }},
		{"500 internal server error", true, func(e error) bool { var x *ServerError; return errors.As(e, &x) }},
		{"model overloaded", true, func(e error) bool { var x *ServerError; return errors.As(e, &x) }},
		{"timeout waiting for response", true, func(e error) bool { var x *RequestTimeoutError; return errors.As(e, &x) }},
		{"content filter triggered", false, func(e error) bool { var x *ContentFilterError; return errors.As(e, &x) }},
		{"something unknown", false, func(e error) bool { var x *ProviderError; return errors.As(e, &x) }},
	}

	for _, tt := range tests {
		err := adapter.translateError(context.Background(), errors.New(tt.msg))
		if !tt.check(err) {
			t.Errorf("for %q: unexpected type %T", tt.msg, err)
		}
		if IsRetryable(err) != tt.retryable {
			t.Errorf("for %q: IsRetryable = %v, want %v", tt.msg, !tt.retryable, tt.retryable)
		}
	}
}

func TestGollmAdapterTranslateErrorCancelled(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := adapter.translateError(ctx, errors.New("500 internal server error"))
	if !IsCancellation(err) {
		t.Fatalf("expected cancellation, got %T", err)
	}
}

func TestGollmAdapterTranslateRequest(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai"}
	req := &Request{
		Contents: []*Content{
			UserText("list files"),
			NewContent(RoleModel, ThoughtPart("secret"), FunctionCallPart("c1", "ls", map[string]any{"path": "."})),
			NewContent(RoleUser, FunctionResponsePart("c1", "ls", map[string]any{"output": "a.go"})),
			ModelText("There is one file."),
		},
		Config: GenerateConfig{SystemInstruction: "be brief"},
	}

	prompt := adapter.translateRequest(req)
	for _, want := range []string{
		"list files",
		`[Tool Call ls]: {"path":"."}`,
		`[Tool Result ls]: {"output":"a.go"}`,
		"[Assistant]: There is one file.",
	} {
		if !strings.Contains(prompt.Input, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt.Input)
		}
	}
	if strings.Contains(prompt.Input, "secret") {
		t.Error("thoughts must not be sent")
	}
}

func TestParseToolCalls(t *testing.T) {
	text := `Let me look. [{"name": "read_file", "arguments": {"path": "main.go"}}]`
	calls := parseToolCalls(text)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "read_file" || calls[0].Args["path"] != "main.go" {
		t.Errorf("unexpected call %+v", calls[0])
	}
	if calls[0].ID == "" {
		t.Error("expected a generated call id")
	}
	if got := removeToolCallJSON(text, calls); got != "Let me look." {
		t.Errorf("unexpected cleaned text %q", got)
	}
}

func TestBuildResponse(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai", model: "gpt-4o"}
	resp := adapter.buildResponse(&Request{}, `[{"name": "ls", "arguments": {}}]`)
	if resp.FinishReason != "tool_calls" {
		t.Errorf("expected tool_calls finish, got %q", resp.FinishReason)
	}
	if len(resp.FunctionCalls()) != 1 {
		t.Errorf("expected one function call, got %d", len(resp.FunctionCalls()))
	}
	if resp.Model != "gpt-4o" {
		t.Errorf("expected default model, got %q", resp.Model)
	}
}

func TestEstimateTokens(t *testing.T) {
	req := &Request{Contents: []*Content{UserText("Hello world, this is a test message.")}}
	if tokens := estimateTokens(req); tokens <= 0 {
		t.Errorf("expected positive token estimate, got %d", tokens)
	}
	if tokens := estimateTokens(&Request{}); tokens != 10 {
		t.Errorf("expected default token estimate of 10, got %d", tokens)
	}
}
