package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance and implements Provider for the
// OpenAI and Anthropic backends. gollm works on single prompts, so the
// conversation is flattened into one prompt per request. It cannot count
// tokens, which makes callers skip budget-driven compression.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key for the adapter.
func WithAPIKey(key string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.apiKey = key
	}
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.temperature = t
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates a new GollmAdapter for the given provider.
// If apiKey is empty, gollm reads it from the environment.
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		apiKey:      apiKey,
		maxTokens:   8192,
		temperature: 0,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		if models := ListModels(provider); len(models) > 0 {
			model = models[0].ID
		} else {
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries are handled by Retry
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	l, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmAdapter{
		provider: provider,
		llm:      l,
		model:    model,
	}, nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM instance.
func NewGollmAdapterFromLLM(provider string, l gollm.LLM) *GollmAdapter {
	return &GollmAdapter{
		provider: provider,
		llm:      l,
	}
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// GenerateContent sends a blocking request and returns the full response.
func (a *GollmAdapter) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	prompt := a.translateRequest(req)
	a.applyRequestOptions(req)

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, a.translateError(ctx, err)
	}
	return a.buildResponse(req, text), nil
}

// GenerateContentStream opens a streaming request. Backends without native
// streaming generate the full reply at open time and yield it as one chunk.
func (a *GollmAdapter) GenerateContentStream(ctx context.Context, req *Request) (ResponseStream, error) {
	prompt := a.translateRequest(req)
	a.applyRequestOptions(req)

	if !a.llm.SupportsStreaming() {
		text, err := a.llm.Generate(ctx, prompt)
		if err != nil {
			return nil, a.translateError(ctx, err)
		}
		resp := a.buildResponse(req, text)
		return func(yield func(*Response, error) bool) {
			yield(resp, nil)
		}, nil
	}

	stream, err := a.llm.Stream(ctx, prompt)
	if err != nil {
		return nil, a.translateError(ctx, err)
	}

	id := "resp_" + uuid.New().String()[:8]
	return func(yield func(*Response, error) bool) {
		defer stream.Close()

		var full strings.Builder
		for {
			token, err := stream.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				yield(nil, a.translateError(ctx, err))
				return
			}
			if token == nil || token.Text == "" {
				continue
			}
			full.WriteString(token.Text)
			chunk := &Response{
				ID:       id,
				Model:    a.modelFor(req),
				Provider: a.provider,
				Content:  ModelText(token.Text),
			}
			if !yield(chunk, nil) {
				return
			}
		}

		calls := parseToolCalls(full.String())
		if len(calls) == 0 {
			return
		}
		final := &Response{
			ID:           id,
			Model:        a.modelFor(req),
			Provider:     a.provider,
			Content:      &Content{Role: RoleModel},
			FinishReason: "tool_calls",
		}
		for _, fc := range calls {
			final.Content.Parts = append(final.Content.Parts, Part{FunctionCall: &fc})
		}
		yield(final, nil)
	}, nil
}

// translateRequest flattens the conversation into a gollm Prompt.
func (a *GollmAdapter) translateRequest(req *Request) *gollm.Prompt {
	var lines []string
	for _, c := range req.Contents {
		if c == nil {
			continue
		}
		for _, p := range c.Parts {
			switch {
			case p.Thought:
				continue
			case p.FunctionCall != nil:
				args, _ := json.Marshal(p.FunctionCall.Args)
				lines = append(lines, fmt.Sprintf("[Tool Call %s]: %s", p.FunctionCall.Name, args))
			case p.FunctionResponse != nil:
				body, _ := json.Marshal(p.FunctionResponse.Response)
				prefix := "[Tool Result " + p.FunctionResponse.Name + "]"
				if _, failed := p.FunctionResponse.Response["error"]; failed {
					prefix = "[Tool Error " + p.FunctionResponse.Name + "]"
				}
				lines = append(lines, prefix+": "+string(body))
			case p.Text != "" && c.Role == RoleModel:
				lines = append(lines, "[Assistant]: "+p.Text)
			case p.Text != "":
				lines = append(lines, p.Text)
			}
		}
	}

	promptText := strings.Join(lines, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if sys := strings.TrimSpace(req.Config.SystemInstruction); sys != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(sys, gollm.CacheTypeEphemeral))
	}
	if req.Config.MaxOutputTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.Config.MaxOutputTokens))
	}
	if len(req.Config.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Config.Tools))
		for _, t := range req.Config.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
	}
	if req.Config.ResponseMIMEType == "application/json" && req.Config.ResponseSchema != nil {
		schema, _ := json.Marshal(req.Config.ResponseSchema)
		promptText += "\n\nRespond only with a JSON object matching this schema:\n" + string(schema)
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// applyRequestOptions applies request-level parameters to the gollm LLM.
func (a *GollmAdapter) applyRequestOptions(req *Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Config.Temperature != nil {
		a.llm.SetOption("temperature", *req.Config.Temperature)
	}
	if req.Config.TopP != nil {
		a.llm.SetOption("top_p", *req.Config.TopP)
	}
	if req.Config.MaxOutputTokens != nil {
		a.llm.SetOption("max_tokens", *req.Config.MaxOutputTokens)
	}
}

func (a *GollmAdapter) modelFor(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	return a.model
}

// buildResponse constructs a Response from the generated text.
func (a *GollmAdapter) buildResponse(req *Request, text string) *Response {
	calls := parseToolCalls(text)
	content := &Content{Role: RoleModel}
	if cleaned := removeToolCallJSON(text, calls); cleaned != "" {
		content.Parts = append(content.Parts, TextPart(cleaned))
	}
	for _, fc := range calls {
		content.Parts = append(content.Parts, Part{FunctionCall: &fc})
	}

	finish := "stop"
	if len(calls) > 0 {
		finish = "tool_calls"
	}

	in := estimateTokens(req)
	return &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        a.modelFor(req),
		Provider:     a.provider,
		Content:      content,
		FinishReason: finish,
		Usage: Usage{
			// gollm does not expose usage; estimate from text length.
			InputTokens:  in,
			OutputTokens: len(text) / 4,
			TotalTokens:  in + len(text)/4,
		},
	}
}

// parseToolCalls extracts tool calls that gollm returns as JSON embedded in
// the response text.
func parseToolCalls(text string) []FunctionCall {
	start := strings.Index(text, `[{"name"`)
	if start == -1 {
		return nil
	}

	var raw []struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text[start:]), &raw); err != nil {
		return nil
	}
	calls := make([]FunctionCall, 0, len(raw))
	for _, rc := range raw {
		calls = append(calls, FunctionCall{
			ID:   "call_" + uuid.New().String()[:8],
			Name: rc.Name,
			Args: rc.Arguments,
		})
	}
	return calls
}

// removeToolCallJSON removes parsed tool call JSON from the text.
func removeToolCallJSON(text string, calls []FunctionCall) string {
	if len(calls) == 0 {
		return text
	}
	if idx := strings.Index(text, `[{"name"`); idx != -1 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}

// translateError converts a gollm error into the llm error hierarchy.
func (a *GollmAdapter) translateError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return abortError(ctxErr)
	}
	msg := err.Error()
	base := func(status int, retryable bool) ProviderError {
		return ProviderError{
			SDKError:   SDKError{Message: msg, Cause: err},
			Provider:   a.provider,
			StatusCode: status,
			Retryable:  retryable,
		}
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		return &AuthenticationError{ProviderError: base(401, false)}
	case strings.Contains(lower, "403") || strings.Contains(lower, "forbidden"):
		return &AccessDeniedError{ProviderError: base(403, false)}
	case strings.Contains(lower, "404") || strings.Contains(lower, "not found"):
		return &NotFoundError{ProviderError: base(404, false)}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return &RateLimitError{ProviderError: base(429, true)}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		return &ContextLengthError{ProviderError: base(413, false)}
	case strings.Contains(lower, "500") || strings.Contains(lower, "internal server"):
		return &ServerError{ProviderError: base(500, true)}
	case strings.Contains(lower, "503") || strings.Contains(lower, "overloaded") || strings.Contains(lower, "unavailable"):
		return &ServerError{ProviderError: base(503, true)}
	case strings.Contains(lower, "timeout"):
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "safety"):
		return &ContentFilterError{ProviderError: base(0, false)}
	default:
		pe := base(0, false)
		return &pe
	}
}

// estimateTokens provides a rough token count from the request contents.
func estimateTokens(req *Request) int {
	total := 0
	for _, c := range req.Contents {
		total += len(c.Text()) / 4
	}
	if total == 0 {
		total = 10
	}
	return total
}
