package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Middleware wraps a blocking provider call. It receives the request and a
// next function that calls the downstream handler.
type Middleware func(ctx context.Context, req *Request, next func(context.Context, *Request) (*Response, error)) (*Response, error)

// StreamMiddleware wraps the opening of a streaming provider call.
type StreamMiddleware func(ctx context.Context, req *Request, next func(context.Context, *Request) (ResponseStream, error)) (ResponseStream, error)

// Client holds registered providers, routes requests by provider identifier
// and applies middleware. Client itself satisfies Provider and TokenCounter, so
// it can be handed to anything that expects a single backend.
type Client struct {
	providers       map[string]Provider
	defaultProvider string
	middleware      []Middleware
	streamMW        []StreamMiddleware
	logger          *zap.Logger
	mu              sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers a provider.
func WithProvider(name string, p Provider) ClientOption {
	return func(c *Client) {
		c.providers[name] = p
	}
}

// WithDefaultProvider sets the default provider name.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithMiddleware adds middleware to the client.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithStreamMiddleware adds stream middleware to the client.
func WithStreamMiddleware(mw ...StreamMiddleware) ClientOption {
	return func(c *Client) {
		c.streamMW = append(c.streamMW, mw...)
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]Provider),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// If no default and exactly one provider, use it.
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

// Name implements Provider.
func (c *Client) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.defaultProvider != "" {
		return c.defaultProvider
	}
	return "client"
}

// RegisterProvider adds a provider to the client.
func (c *Client) RegisterProvider(name string, p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = p
	if c.defaultProvider == "" {
		c.defaultProvider = name
	}
}

func (c *Client) resolveProvider(req *Request) (Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := req.Provider
	if name == "" {
		if info := GetModelInfo(req.Model); info != nil {
			if _, ok := c.providers[info.Provider]; ok {
				name = info.Provider
			}
		}
	}
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "no provider specified and no default provider configured",
		}}
	}

	p, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("provider %q is not registered", name),
		}}
	}
	return p, nil
}

// GenerateContent sends a blocking request through middleware to the resolved
// provider.
func (c *Client) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	p, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}
	r := *req
	if r.Provider == "" {
		r.Provider = p.Name()
	}

	handler := func(ctx context.Context, r *Request) (*Response, error) {
		return p.GenerateContent(ctx, r)
	}
	// Apply middleware in reverse order so first registered runs first.
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := handler
		handler = func(ctx context.Context, r *Request) (*Response, error) {
			return mw(ctx, r, next)
		}
	}
	return handler(ctx, &r)
}

// GenerateContentStream opens a streaming request through middleware to the
// resolved provider.
func (c *Client) GenerateContentStream(ctx context.Context, req *Request) (ResponseStream, error) {
	p, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}
	r := *req
	if r.Provider == "" {
		r.Provider = p.Name()
	}

	handler := func(ctx context.Context, r *Request) (ResponseStream, error) {
		return p.GenerateContentStream(ctx, r)
	}
	for i := len(c.streamMW) - 1; i >= 0; i-- {
		mw := c.streamMW[i]
		next := handler
		handler = func(ctx context.Context, r *Request) (ResponseStream, error) {
			return mw(ctx, r, next)
		}
	}
	return handler(ctx, &r)
}

// CountTokens asks the default provider to measure contents. It returns
// ErrTokenCountUnavailable when that provider cannot count.
func (c *Client) CountTokens(ctx context.Context, model string, contents []*Content) (int, error) {
	p, err := c.resolveProvider(&Request{Model: model})
	if err != nil {
		return 0, err
	}
	counter, ok := p.(TokenCounter)
	if !ok {
		c.logger.Debug("provider cannot count tokens", zap.String("provider", p.Name()), zap.String("model", model))
		return 0, ErrTokenCountUnavailable
	}
	return counter.CountTokens(ctx, model, contents)
}

// Close releases resources held by all registered providers.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var errs []error
	for _, p := range c.providers {
		if closer, ok := p.(Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// LoggingMiddleware logs every blocking call with its latency and outcome.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(ctx context.Context, req *Request, next func(context.Context, *Request) (*Response, error)) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		fields := []zap.Field{
			zap.String("provider", req.Provider),
			zap.String("model", req.Model),
			zap.Int("contents", len(req.Contents)),
			zap.Duration("latency", time.Since(start)),
		}
		if err != nil {
			logger.Debug("generate content failed", append(fields, zap.Error(err))...)
			return nil, err
		}
		logger.Debug("generate content",
			append(fields,
				zap.Int("input_tokens", resp.Usage.InputTokens),
				zap.Int("output_tokens", resp.Usage.OutputTokens),
				zap.String("finish_reason", resp.FinishReason),
			)...)
		return resp, nil
	}
}

// StreamLoggingMiddleware logs stream opens and the number of chunks each
// stream produced.
func StreamLoggingMiddleware(logger *zap.Logger) StreamMiddleware {
	return func(ctx context.Context, req *Request, next func(context.Context, *Request) (ResponseStream, error)) (ResponseStream, error) {
		start := time.Now()
		stream, err := next(ctx, req)
		if err != nil {
			logger.Debug("stream open failed",
				zap.String("provider", req.Provider),
				zap.String("model", req.Model),
				zap.Error(err))
			return nil, err
		}
		return func(yield func(*Response, error) bool) {
			chunks := 0
			defer func() {
				logger.Debug("stream finished",
					zap.String("provider", req.Provider),
					zap.String("model", req.Model),
					zap.Int("chunks", chunks),
					zap.Duration("latency", time.Since(start)))
			}()
			for resp, err := range stream {
				if err == nil {
					chunks++
				}
				if !yield(resp, err) {
					return
				}
			}
		}, nil
	}
}
