package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/achadsiri/gemini-cli/chat"
	"github.com/achadsiri/gemini-cli/llm"
)

const (
	DefaultMaxTurns             = 100
	DefaultCompressionThreshold = 0.95
	DefaultCompressionTimeout   = 2 * time.Minute
	DefaultMaxToolRoundsPerTurn = 50
	DefaultLoopDetectionWindow  = 10
	DefaultMaxParallelTools     = 8
)

// Client drives a conversation: it compresses history when it grows too
// large, runs turns with their tool calls and lets the model continue on its
// own when it has more to say.
type Client struct {
	provider llm.Provider
	counter  llm.TokenCounter
	model    string
	tools    *ToolRegistry
	env      ExecutionEnvironment
	logger   *zap.Logger
	reporter ErrorReporter
	retry    llm.RetryPolicy
	now      func() time.Time

	maxTurns             int
	compressionThreshold float64
	tokenLimit           int
	compressionTimeout   time.Duration
	maxToolRounds        int
	loopWindow           int
	maxParallelTools     int
	toolCharLimits       map[string]int
	toolLineLimits       map[string]int
	envContext           bool
	fullContext          bool
	userMemory           string
	jsonModel            string
	generateConfig       llm.GenerateConfig

	mu   sync.Mutex
	chat *chat.Session
}

// Option configures a Client.
type Option func(*Client)

// WithoutEnvironmentContext starts sessions without the workspace description
// turns.
func WithoutEnvironmentContext() Option {
	return func(c *Client) { c.envContext = false }
}

// WithFullContext adds the content of every workspace file to the
// environment turns.
func WithFullContext(enabled bool) Option {
	return func(c *Client) { c.fullContext = enabled }
}

// WithMaxTurns bounds the number of turns one SendMessageStream call may run,
// continuations included.
func WithMaxTurns(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTurns = n
		}
	}
}

// WithCompressionThreshold sets the fraction of the token limit at which
// history is compressed.
func WithCompressionThreshold(f float64) Option {
	return func(c *Client) {
		if f > 0 {
			c.compressionThreshold = f
		}
	}
}

// WithTokenLimit overrides the model's token limit from the catalog.
func WithTokenLimit(n int) Option {
	return func(c *Client) { c.tokenLimit = n }
}

// WithCompressionTimeout bounds the summarization round trip.
func WithCompressionTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.compressionTimeout = d
		}
	}
}

// WithMaxToolRounds bounds the tool call rounds of a single turn.
func WithMaxToolRounds(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxToolRounds = n
		}
	}
}

// WithLoopDetection sets how many consecutive tool calls are inspected for a
// repeating pattern. Zero disables detection.
func WithLoopDetection(window int) Option {
	return func(c *Client) { c.loopWindow = window }
}

// WithToolOutputLimits overrides per-tool character and line limits.
func WithToolOutputLimits(chars, lines map[string]int) Option {
	return func(c *Client) {
		c.toolCharLimits = chars
		c.toolLineLimits = lines
	}
}

// WithUserMemory appends memory to the system instruction.
func WithUserMemory(memory string) Option {
	return func(c *Client) { c.userMemory = memory }
}

// WithJSONModel sets the model used for GenerateJSON calls that do not name
// one, including the next-speaker check.
func WithJSONModel(model string) Option {
	return func(c *Client) { c.jsonModel = model }
}

// WithGenerateConfig sets the base generation config of every request.
func WithGenerateConfig(cfg llm.GenerateConfig) Option {
	return func(c *Client) { c.generateConfig = cfg }
}

// WithRetryPolicy sets the retry policy of every request.
func WithRetryPolicy(p llm.RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithReporter sets where fatal errors are reported.
func WithReporter(r ErrorReporter) Option {
	return func(c *Client) {
		if r != nil {
			c.reporter = r
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client and starts its first session. A nil tools
// registry declares no tools; a nil env uses the current directory.
func NewClient(ctx context.Context, provider llm.Provider, model string, tools *ToolRegistry, env ExecutionEnvironment, opts ...Option) (*Client, error) {
	if provider == nil {
		return nil, &llm.ConfigurationError{SDKError: llm.SDKError{Message: "agent: provider is required"}}
	}
	if model == "" {
		model = llm.DefaultModel
	}
	if tools == nil {
		tools = NewToolRegistry()
	}
	if env == nil {
		local, err := NewLocalExecutionEnvironment("")
		if err != nil {
			return nil, err
		}
		env = local
	}

	temperature, topP := 0.0, 1.0
	c := &Client{
		provider:             provider,
		model:                model,
		tools:                tools,
		env:                  env,
		logger:               zap.NewNop(),
		retry:                llm.DefaultRetryPolicy(),
		now:                  time.Now,
		maxTurns:             DefaultMaxTurns,
		compressionThreshold: DefaultCompressionThreshold,
		compressionTimeout:   DefaultCompressionTimeout,
		maxToolRounds:        DefaultMaxToolRoundsPerTurn,
		loopWindow:           DefaultLoopDetectionWindow,
		maxParallelTools:     DefaultMaxParallelTools,
		envContext:           true,
		generateConfig:       llm.GenerateConfig{Temperature: &temperature, TopP: &topP},
	}
	c.counter, _ = provider.(llm.TokenCounter)
	for _, opt := range opts {
		opt(c)
	}
	if c.reporter == nil {
		c.reporter = NewFileReporter(c.logger)
	}

	session, err := c.startChat(ctx, nil)
	if err != nil {
		return nil, err
	}
	c.chat = session
	return c, nil
}

// Model returns the model of the conversation.
func (c *Client) Model() string { return c.model }

// Chat returns the active session.
func (c *Client) Chat() *chat.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chat
}

func (c *Client) setChat(s *chat.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chat = s
}

// ResetChat replaces the active session with a fresh one.
func (c *Client) ResetChat(ctx context.Context) error {
	session, err := c.startChat(ctx, nil)
	if err != nil {
		return err
	}
	c.setChat(session)
	return nil
}

// startChat creates a session. Without extra history it is seeded with the
// environment turns; otherwise with exactly extra.
func (c *Client) startChat(ctx context.Context, extra []*llm.Content) (*chat.Session, error) {
	var history []*llm.Content
	if extra == nil && c.envContext {
		history = c.environmentTurns(ctx)
	}
	history = append(history, extra...)

	config := c.generateConfig.Merge(llm.GenerateConfig{
		SystemInstruction: CoreSystemPrompt(c.userMemory),
		Tools:             c.tools.Declarations(),
	})
	session, err := chat.NewSession(c.provider, c.model, config, history,
		chat.WithRetryPolicy(c.retry),
		chat.WithLogger(c.logger.With(zap.String("component", "chat"))))
	if err != nil {
		c.reporter.Report(err, "Error initializing chat session.", history, "startChat")
		return nil, fmt.Errorf("failed to initialize chat: %w", err)
	}
	return session, nil
}

// SendMessageStream runs request as a new user message and returns the events
// of the whole exchange. The channel is closed when the exchange is over; the
// caller must drain it. Cancelling ctx ends the exchange early with an
// EventUserCancelled.
func (c *Client) SendMessageStream(ctx context.Context, request []llm.Part) <-chan Event {
	emitter := newEventEmitter(0)
	go func() {
		defer emitter.close()
		r := &run{c: c, emit: emitter}
		r.loop(ctx, request)
	}()
	return emitter.events()
}

// loop runs turns until the model yields to the user or the turn budget is
// spent.
func (r *run) loop(ctx context.Context, message []llm.Part) {
	for turns := r.c.maxTurns; turns > 0; turns-- {
		if ctx.Err() != nil {
			r.emit.emit(Event{Kind: EventUserCancelled})
			return
		}
		if r.c.tryCompressChat(ctx) {
			r.emit.emit(Event{Kind: EventChatCompressed})
		}

		session := r.c.Chat()
		if r.turn(ctx, session, message) != turnDone || ctx.Err() != nil {
			return
		}
		if turns == 1 {
			return
		}

		next, err := r.c.CheckNextSpeaker(ctx, session)
		if err != nil {
			if !llm.IsCancellation(err) {
				r.c.logger.Warn("next speaker check failed", zap.Error(err))
			}
			return
		}
		if next == nil || next.NextSpeaker != "model" {
			return
		}
		message = []llm.Part{llm.TextPart(continuePrompt)}
	}
}

// tryCompressChat replaces the active session with a two-turn summary when
// its curated history reaches the compression threshold. Compression is
// skipped when either the token count or the model's limit is unknown. Once
// the summary request is sent it is not cancelled with ctx, only bounded by
// the compression timeout.
func (c *Client) tryCompressChat(ctx context.Context) bool {
	if c.counter == nil {
		return false
	}
	session := c.Chat()
	curated := session.History(true)

	count, err := c.counter.CountTokens(ctx, c.model, curated)
	if err != nil {
		if !llm.IsCancellation(err) {
			c.logger.Warn("could not determine token count, skipping compression check",
				zap.String("model", c.model), zap.Error(err))
		}
		return false
	}
	limit := c.tokenLimit
	if limit <= 0 {
		limit = llm.TokenLimit(c.model)
	}
	if limit <= 0 {
		c.logger.Warn("no token limit defined, skipping compression check", zap.String("model", c.model))
		return false
	}
	if float64(count) < c.compressionThreshold*float64(limit) {
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.compressionTimeout)
	defer cancel()
	resp, err := session.Send(cctx, []llm.Part{llm.TextPart(compressionPrompt)}, llm.GenerateConfig{})
	if err != nil {
		c.reporter.Report(err, "Error compressing chat history.", curated, "compressChat")
		return false
	}

	compressed, err := c.startChat(cctx, []*llm.Content{
		llm.UserText(compressionPrompt),
		llm.ModelText(resp.Text()),
	})
	if err != nil {
		return false
	}
	c.setChat(compressed)
	c.logger.Info("compressed chat history",
		zap.Int("tokens", count),
		zap.Int("limit", limit),
		zap.Int("turns_before", len(curated)))
	return true
}

func (c *Client) policy() llm.RetryPolicy {
	p := c.retry
	onRetry := p.OnRetry
	p.OnRetry = func(err error, attempt int, delay time.Duration) {
		c.logger.Warn("retrying model request",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if onRetry != nil {
			onRetry(err, attempt, delay)
		}
	}
	return p
}

// GenerateJSON sends contents outside the conversation and decodes the reply
// as a JSON object conforming to schema. An empty model uses the configured
// JSON model, or the conversation model.
func (c *Client) GenerateJSON(ctx context.Context, contents []*llm.Content, schema map[string]any, model string) (map[string]any, error) {
	if model == "" {
		model = c.jsonModel
	}
	if model == "" {
		model = c.model
	}
	req := &llm.Request{
		Model:    model,
		Contents: contents,
		Config: c.generateConfig.Merge(llm.GenerateConfig{
			SystemInstruction: CoreSystemPrompt(c.userMemory),
			ResponseMIMEType:  "application/json",
			ResponseSchema:    schema,
		}),
	}

	resp, err := llm.Retry(ctx, c.policy(), func(ctx context.Context) (*llm.Response, error) {
		return c.provider.GenerateContent(ctx, req)
	})
	if err != nil {
		if llm.IsCancellation(err) || ctx.Err() != nil {
			return nil, err
		}
		c.reporter.Report(err, "Error generating JSON content via API.", contents, "generateJson-api")
		return nil, fmt.Errorf("failed to generate JSON content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		err := &llm.EmptyResponseError{SDKError: llm.SDKError{Message: "API returned an empty response for generateJson"}}
		c.reporter.Report(err, "Error in generateJson: API returned an empty response.", contents, "generateJson-empty-response")
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &out); err != nil {
		c.reporter.Report(err, "Failed to parse JSON response from generateJson.", map[string]any{
			"responseTextFailedToParse": text,
			"originalRequestContents":   contents,
		}, "generateJson-parse")
		return nil, fmt.Errorf("failed to parse API response as JSON: %w", err)
	}
	return out, nil
}

// GenerateContent sends contents outside the conversation with the
// conversation model.
func (c *Client) GenerateContent(ctx context.Context, contents []*llm.Content, cfg llm.GenerateConfig) (*llm.Response, error) {
	config := c.generateConfig.Merge(cfg)
	config.SystemInstruction = CoreSystemPrompt(c.userMemory)
	req := &llm.Request{Model: c.model, Contents: contents, Config: config}

	resp, err := llm.Retry(ctx, c.policy(), func(ctx context.Context) (*llm.Response, error) {
		return c.provider.GenerateContent(ctx, req)
	})
	if err != nil {
		if llm.IsCancellation(err) || ctx.Err() != nil {
			return nil, err
		}
		c.reporter.Report(err, fmt.Sprintf("Error generating content via API with model %s.", c.model), map[string]any{
			"requestContents": contents,
			"requestConfig":   config,
		}, "generateContent-api")
		return nil, fmt.Errorf("failed to generate content with model %s: %w", c.model, err)
	}
	return resp, nil
}

// stripCodeFence removes a markdown code fence some backends wrap JSON in.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
