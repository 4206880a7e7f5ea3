package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/achadsiri/gemini-cli/llm"
)

// ErrStreamConsumed is yielded when a stream returned by SendStream is ranged
// over a second time.
var ErrStreamConsumed = errors.New("chat: stream already consumed")

// Session is one conversation with a model. Sends are applied to the history in
// call order: each send waits for the previous one to finish merging before it
// builds its request.
type Session struct {
	provider llm.Provider
	model    string
	config   llm.GenerateConfig
	retry    llm.RetryPolicy
	logger   *zap.Logger

	mu      sync.Mutex
	history []*llm.Content
	tail    chan struct{} // closed once the most recent send has finished
}

// Option configures a Session.
type Option func(*Session)

// WithRetryPolicy sets the policy used for every request of the session.
func WithRetryPolicy(p llm.RetryPolicy) Option {
	return func(s *Session) {
		s.retry = p
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSession creates a session seeded with history. It fails if any history
// entry has a role other than user or model.
func NewSession(provider llm.Provider, model string, config llm.GenerateConfig, history []*llm.Content, opts ...Option) (*Session, error) {
	if err := ValidateHistory(history); err != nil {
		return nil, err
	}
	s := &Session{
		provider: provider,
		model:    model,
		config:   config,
		retry:    llm.DefaultRetryPolicy(),
		logger:   zap.NewNop(),
		history:  llm.CloneContents(history),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Model returns the model the session talks to.
func (s *Session) Model() string {
	return s.model
}

// History returns a deep copy of the comprehensive history, or of the curated
// history when curated is true.
func (s *Session) History(curated bool) []*llm.Content {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyLocked(curated)
}

func (s *Session) historyLocked(curated bool) []*llm.Content {
	if curated {
		return llm.CloneContents(CuratedHistory(s.history))
	}
	return llm.CloneContents(s.history)
}

// AddHistory appends a copy of content to the comprehensive history.
func (s *Session) AddHistory(content *llm.Content) error {
	if err := ValidateHistory([]*llm.Content{content}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, content.Clone())
	return nil
}

// SetHistory replaces the comprehensive history with a copy of history.
func (s *Session) SetHistory(history []*llm.Content) error {
	if err := ValidateHistory(history); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = llm.CloneContents(history)
	return nil
}

// acquire takes the next place in the send order and waits for every earlier
// send to finish. The returned release must be called exactly when this send
// has finished merging. If ctx is cancelled while waiting, the place is handed
// on to the next sender as soon as the earlier sends complete.
func (s *Session) acquire(ctx context.Context) (func(), error) {
	s.mu.Lock()
	prev := s.tail
	mine := make(chan struct{})
	s.tail = mine
	s.mu.Unlock()

	var once sync.Once
	release := func() { once.Do(func() { close(mine) }) }

	if prev == nil {
		return release, nil
	}
	select {
	case <-prev:
		return release, nil
	case <-ctx.Done():
		go func() {
			<-prev
			release()
		}()
		return nil, &llm.AbortError{SDKError: llm.SDKError{Message: "send cancelled while waiting", Cause: ctx.Err()}}
	}
}

func (s *Session) buildRequest(message []llm.Part, cfg llm.GenerateConfig) (*llm.Request, *llm.Content, int) {
	user := (&llm.Content{Role: llm.RoleUser, Parts: message}).Clone()

	s.mu.Lock()
	curated := s.historyLocked(true)
	s.mu.Unlock()

	return &llm.Request{
		Model:    s.model,
		Contents: append(curated, user.Clone()),
		Config:   s.config.Merge(cfg),
	}, user, len(curated)
}

func (s *Session) policy(shouldRetry func(error) bool) llm.RetryPolicy {
	p := s.retry
	if shouldRetry != nil {
		p.ShouldRetry = shouldRetry
	}
	onRetry := p.OnRetry
	p.OnRetry = func(err error, attempt int, delay time.Duration) {
		s.logger.Warn("retrying model request",
			zap.String("model", s.model),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if onRetry != nil {
			onRetry(err, attempt, delay)
		}
	}
	return p
}

// Send sends message as a new user turn and waits for the full response. On
// success the exchange is merged into the history; on failure the history is
// left unchanged.
func (s *Session) Send(ctx context.Context, message []llm.Part, cfg llm.GenerateConfig) (*llm.Response, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	req, user, sent := s.buildRequest(message, cfg)
	resp, err := llm.Retry(ctx, s.policy(nil), func(ctx context.Context) (*llm.Response, error) {
		return s.provider.GenerateContent(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	// The tool-call replay starts with the curated history that was sent.
	var afc []*llm.Content
	if n := len(resp.AutomaticFunctionCallingHistory); n > sent {
		afc = resp.AutomaticFunctionCallingHistory[sent:]
	}
	var output []*llm.Content
	if resp.Content != nil {
		output = append(output, resp.Content)
	}
	s.recordHistory(user, output, afc)
	return resp, nil
}

// SendStream sends message as a new user turn and returns the response as a
// finite, single-use sequence of chunks. Every chunk is forwarded; only valid
// chunks are merged into the history, once the sequence is exhausted. The next
// send on this session waits until the returned sequence has been ranged over
// to completion or abandoned by breaking out of the loop, so callers must
// always range over it.
func (s *Session) SendStream(ctx context.Context, message []llm.Part, cfg llm.GenerateConfig) (llm.ResponseStream, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}

	req, user, _ := s.buildRequest(message, cfg)
	stream, err := llm.Retry(ctx, s.policy(llm.IsTransientStatus), func(ctx context.Context) (llm.ResponseStream, error) {
		return s.provider.GenerateContentStream(ctx, req)
	})
	if err != nil {
		release()
		return nil, err
	}

	var used atomic.Bool
	return func(yield func(*llm.Response, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield(nil, ErrStreamConsumed)
			return
		}
		defer release()

		var output []*llm.Content
		for chunk, err := range stream {
			if err != nil {
				yield(nil, err)
				return
			}
			if chunk.IsValid() {
				output = append(output, chunk.Content)
			}
			if !yield(chunk, nil) {
				return
			}
		}
		s.recordHistory(user, output, nil)
	}, nil
}

// recordHistory merges one exchange into the comprehensive history.
func (s *Session) recordHistory(user *llm.Content, output, afc []*llm.Content) {
	outputs := consolidate(llm.CloneContents(output))
	if len(outputs) == 0 && !user.IsFunctionResponse() {
		// Keep user and model turns alternating. The placeholder is invalid,
		// so curation drops it together with the user turn.
		outputs = []*llm.Content{{Role: llm.RoleModel, Parts: []llm.Part{}}}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(afc) > 0 {
		s.history = append(s.history, llm.CloneContents(CuratedHistory(afc))...)
	} else {
		s.history = append(s.history, user)
	}
	s.history = append(s.history, outputs...)

	s.logger.Debug("recorded exchange",
		zap.String("model", s.model),
		zap.Int("history_len", len(s.history)),
		zap.Int("model_turns", len(outputs)),
		zap.Bool("tool_replay", len(afc) > 0))
}
