package agent

import (
	"time"

	"github.com/achadsiri/gemini-cli/llm"
)

// EventKind identifies the type of an orchestration event.
type EventKind string

const (
	EventContent          EventKind = "content"
	EventThought          EventKind = "thought"
	EventToolCallRequest  EventKind = "tool_call_request"
	EventToolCallResponse EventKind = "tool_call_response"
	EventChatCompressed   EventKind = "chat_compressed"
	EventUserCancelled    EventKind = "user_cancelled"
	EventLoopDetected     EventKind = "loop_detected"
	EventError            EventKind = "error"
)

// ToolCallRequest describes a tool invocation requested by the model.
type ToolCallRequest struct {
	CallID string         `json:"call_id"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
}

// ToolCallResponse is the outcome of one tool invocation. Parts is what gets
// sent back to the model; ResultDisplay is meant for the user.
type ToolCallResponse struct {
	CallID        string     `json:"call_id"`
	Name          string     `json:"name"`
	Parts         []llm.Part `json:"parts"`
	ResultDisplay string     `json:"result_display,omitempty"`
	Err           error      `json:"-"`
}

// Event is one item of the stream returned by Client.SendMessageStream.
type Event struct {
	Kind       EventKind         `json:"kind"`
	Timestamp  time.Time         `json:"timestamp"`
	Text       string            `json:"text,omitempty"`
	ToolCall   *ToolCallRequest  `json:"tool_call,omitempty"`
	ToolResult *ToolCallResponse `json:"tool_result,omitempty"`
	Err        error             `json:"-"`
}

// eventEmitter delivers events to the caller through a buffered channel.
// Sends block once the buffer is full, so the caller has to drain the channel
// until it is closed.
type eventEmitter struct {
	ch chan Event
}

func newEventEmitter(bufferSize int) *eventEmitter {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &eventEmitter{ch: make(chan Event, bufferSize)}
}

func (e *eventEmitter) emit(ev Event) {
	ev.Timestamp = time.Now()
	e.ch <- ev
}

func (e *eventEmitter) text(kind EventKind, text string) {
	e.emit(Event{Kind: kind, Text: text})
}

func (e *eventEmitter) fail(err error) {
	e.emit(Event{Kind: EventError, Err: err, Text: err.Error()})
}

func (e *eventEmitter) events() <-chan Event {
	return e.ch
}

func (e *eventEmitter) close() {
	close(e.ch)
}
