package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/achadsiri/gemini-cli/chat"
	"github.com/achadsiri/gemini-cli/llm"
)

// turnOutcome says how a turn ended and whether the orchestrator may go on to
// the next-speaker check.
type turnOutcome int

const (
	// turnDone: the model finished without requesting tools.
	turnDone turnOutcome = iota
	// turnPending: tool calls were requested but left unexecuted.
	turnPending
	// turnStopped: cancelled, failed or stuck in a loop.
	turnStopped
)

// run is the state of one SendMessageStream invocation.
type run struct {
	c          *Client
	emit       *eventEmitter
	signatures []string
}

// turn sends message and keeps answering tool calls until the model replies
// without any, or the tool round budget runs out.
func (r *run) turn(ctx context.Context, session *chat.Session, message []llm.Part) turnOutcome {
	for round := 0; ; round++ {
		calls, ok := r.stream(ctx, session, message)
		if !ok {
			return turnStopped
		}
		if len(calls) == 0 {
			return turnDone
		}
		if round >= r.c.maxToolRounds {
			r.c.logger.Warn("tool round limit reached, cancelling pending calls",
				zap.Int("limit", r.c.maxToolRounds),
				zap.Int("pending", len(calls)))
			r.answerPending(session, calls)
			return turnPending
		}
		if r.loopDetected(calls) {
			r.emit.text(EventLoopDetected, fmt.Sprintf("the last %d tool calls repeat the same pattern", r.c.loopWindow))
			return turnStopped
		}

		responses := r.executeTools(ctx, calls)
		if ctx.Err() != nil {
			r.emit.emit(Event{Kind: EventUserCancelled})
			return turnStopped
		}
		message = nil
		for _, resp := range responses {
			message = append(message, resp.Parts...)
		}
	}
}

// stream performs one streaming send and forwards its chunks as events. It
// returns the tool calls the model requested.
func (r *run) stream(ctx context.Context, session *chat.Session, message []llm.Part) ([]ToolCallRequest, bool) {
	if ctx.Err() != nil {
		r.emit.emit(Event{Kind: EventUserCancelled})
		return nil, false
	}
	chunks, err := session.SendStream(ctx, message, llm.GenerateConfig{})
	if err != nil {
		r.failed(ctx, session, message, err)
		return nil, false
	}

	var calls []ToolCallRequest
	for chunk, err := range chunks {
		if err != nil {
			r.failed(ctx, session, message, err)
			return nil, false
		}
		if ctx.Err() != nil {
			r.emit.emit(Event{Kind: EventUserCancelled})
			return nil, false
		}
		if chunk.Content == nil {
			continue
		}
		for _, p := range chunk.Content.Parts {
			switch {
			case p.FunctionCall != nil:
				call := ToolCallRequest{
					CallID: p.FunctionCall.ID,
					Name:   p.FunctionCall.Name,
					Args:   p.FunctionCall.Args,
				}
				if call.CallID == "" {
					call.CallID = call.Name + "-" + uuid.NewString()
				}
				calls = append(calls, call)
				r.emit.emit(Event{Kind: EventToolCallRequest, ToolCall: &call})
			case p.Thought:
				r.emit.text(EventThought, p.Text)
			case p.Text != "":
				r.emit.text(EventContent, p.Text)
			}
		}
	}
	return calls, true
}

// failed ends the turn. Errors other than cancellation are reported with the
// request that caused them.
func (r *run) failed(ctx context.Context, session *chat.Session, message []llm.Part, err error) {
	if llm.IsCancellation(err) || ctx.Err() != nil {
		r.emit.emit(Event{Kind: EventUserCancelled})
		return
	}
	contents := append(session.History(true), llm.NewContent(llm.RoleUser, message...))
	r.c.reporter.Report(err, "Error when talking to Gemini API", contents, "Turn.run-sendMessageStream")
	r.emit.fail(fmt.Errorf("failed to get a response from model %s: %w", session.Model(), err))
}

// answerPending records an error response for every call that will not run,
// so the next request does not end on an unanswered function call.
func (r *run) answerPending(session *chat.Session, calls []ToolCallRequest) {
	answer := &llm.Content{Role: llm.RoleUser}
	for _, call := range calls {
		err := fmt.Errorf("tool call %q was not executed: tool round limit of %d reached", call.Name, r.c.maxToolRounds)
		answer.Parts = append(answer.Parts, toolErrorResponse(call, err).Parts...)
	}
	if err := session.AddHistory(answer); err != nil {
		r.c.logger.Warn("failed to record pending tool calls", zap.Error(err))
	}
}

func (r *run) loopDetected(calls []ToolCallRequest) bool {
	if r.c.loopWindow <= 0 {
		return false
	}
	for _, call := range calls {
		r.signatures = append(r.signatures, toolCallSignature(llm.FunctionCall{Name: call.Name, Args: call.Args}))
	}
	return DetectLoop(r.signatures, r.c.loopWindow)
}

// executeTools runs calls concurrently and emits their responses in call
// order.
func (r *run) executeTools(ctx context.Context, calls []ToolCallRequest) []ToolCallResponse {
	responses := make([]ToolCallResponse, len(calls))
	var g errgroup.Group
	g.SetLimit(r.c.maxParallelTools)
	for i, call := range calls {
		g.Go(func() error {
			responses[i] = r.c.executeToolCall(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	for i := range responses {
		r.emit.emit(Event{Kind: EventToolCallResponse, ToolResult: &responses[i]})
	}
	return responses
}

// executeToolCall runs one tool. Failures are returned as a function response
// carrying the error so the conversation can go on.
func (c *Client) executeToolCall(ctx context.Context, call ToolCallRequest) (resp ToolCallResponse) {
	tool := c.tools.Get(call.Name)
	if tool == nil {
		return toolErrorResponse(call, fmt.Errorf("tool %q not found in registry", call.Name))
	}
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("tool panicked", zap.String("tool", call.Name), zap.Any("panic", p))
			resp = toolErrorResponse(call, fmt.Errorf("tool %q panicked: %v", call.Name, p))
		}
	}()

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	result, err := tool.Execute(ctx, args)
	if err != nil {
		c.logger.Debug("tool failed", zap.String("tool", call.Name), zap.Error(err))
		return toolErrorResponse(call, err)
	}

	output := TruncateToolOutput(result.LLMContent, call.Name, c.toolCharLimits, c.toolLineLimits)
	return ToolCallResponse{
		CallID:        call.CallID,
		Name:          call.Name,
		Parts:         []llm.Part{llm.FunctionResponsePart(call.CallID, call.Name, map[string]any{"output": output})},
		ResultDisplay: result.ReturnDisplay,
	}
}

func toolErrorResponse(call ToolCallRequest, err error) ToolCallResponse {
	return ToolCallResponse{
		CallID:        call.CallID,
		Name:          call.Name,
		Parts:         []llm.Part{llm.FunctionResponsePart(call.CallID, call.Name, map[string]any{"error": err.Error()})},
		ResultDisplay: err.Error(),
		Err:           err,
	}
}
