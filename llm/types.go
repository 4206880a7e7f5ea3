package llm

import (
	"iter"
	"strings"
)

// Role identifies who produced a piece of content in a conversation.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// FunctionCall is a model-initiated tool invocation.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse carries the result of a tool invocation back to the model.
type FunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response,omitempty"`
}

// Part is the smallest unit of content. A well-formed part sets exactly one of
// Text, FunctionCall or FunctionResponse; Thought flags text as a reasoning
// trace rather than conversation content.
type Part struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// TextPart creates a text Part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ThoughtPart creates a thought Part.
func ThoughtPart(text string) Part {
	return Part{Text: text, Thought: true}
}

// FunctionCallPart creates a function call Part.
func FunctionCallPart(id, name string, args map[string]any) Part {
	return Part{FunctionCall: &FunctionCall{ID: id, Name: name, Args: args}}
}

// FunctionResponsePart creates a function response Part.
func FunctionResponsePart(id, name string, response map[string]any) Part {
	return Part{FunctionResponse: &FunctionResponse{ID: id, Name: name, Response: response}}
}

// IsEmpty reports whether the part carries nothing at all.
func (p Part) IsEmpty() bool {
	return p.Text == "" && !p.Thought && p.FunctionCall == nil && p.FunctionResponse == nil
}

// IsValid reports whether the part may be sent back to the service. Text parts
// must be non-empty unless they are thoughts.
func (p Part) IsValid() bool {
	if p.FunctionCall != nil || p.FunctionResponse != nil {
		return true
	}
	return p.Thought || p.Text != ""
}

// IsPlainText reports whether the part is non-empty, non-thought text.
func (p Part) IsPlainText() bool {
	return !p.Thought && p.FunctionCall == nil && p.FunctionResponse == nil && p.Text != ""
}

// Clone returns a deep copy of the part.
func (p Part) Clone() Part {
	out := Part{Text: p.Text, Thought: p.Thought}
	if p.FunctionCall != nil {
		out.FunctionCall = &FunctionCall{
			ID:   p.FunctionCall.ID,
			Name: p.FunctionCall.Name,
			Args: cloneMap(p.FunctionCall.Args),
		}
	}
	if p.FunctionResponse != nil {
		out.FunctionResponse = &FunctionResponse{
			ID:       p.FunctionResponse.ID,
			Name:     p.FunctionResponse.Name,
			Response: cloneMap(p.FunctionResponse.Response),
		}
	}
	return out
}

// Content is one role-tagged turn of a conversation.
type Content struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewContent creates a Content with the given role and parts.
func NewContent(role Role, parts ...Part) *Content {
	return &Content{Role: role, Parts: parts}
}

// UserText creates a user Content with a single text part.
func UserText(text string) *Content {
	return NewContent(RoleUser, TextPart(text))
}

// ModelText creates a model Content with a single text part.
func ModelText(text string) *Content {
	return NewContent(RoleModel, TextPart(text))
}

// IsValid reports whether the content has at least one part and every part is
// valid.
func (c *Content) IsValid() bool {
	if c == nil || len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		if p.IsEmpty() || !p.IsValid() {
			return false
		}
	}
	return true
}

// IsFunctionResponse reports whether c is a user turn made only of function
// responses.
func (c *Content) IsFunctionResponse() bool {
	if c == nil || c.Role != RoleUser || len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return true
}

// Text returns the concatenation of all non-thought text parts.
func (c *Content) Text() string {
	if c == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		if p.IsPlainText() {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// FunctionCalls returns the function calls carried by the content.
func (c *Content) FunctionCalls() []FunctionCall {
	if c == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range c.Parts {
		if p.FunctionCall != nil {
			calls = append(calls, *p.Clone().FunctionCall)
		}
	}
	return calls
}

// Clone returns a deep copy of the content. A nil receiver yields nil.
func (c *Content) Clone() *Content {
	if c == nil {
		return nil
	}
	out := &Content{Role: c.Role}
	if c.Parts != nil {
		out.Parts = make([]Part, len(c.Parts))
		for i, p := range c.Parts {
			out.Parts[i] = p.Clone()
		}
	}
	return out
}

// CloneContents deep-copies a slice of contents.
func CloneContents(contents []*Content) []*Content {
	if contents == nil {
		return nil
	}
	out := make([]*Content, len(contents))
	for i, c := range contents {
		out[i] = c.Clone()
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), x...)
	default:
		return v
	}
}

// FunctionDeclaration describes a callable tool to the model.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"` // JSON Schema
}

// GenerateConfig holds sampling parameters and request-level options.
type GenerateConfig struct {
	SystemInstruction string                `json:"system_instruction,omitempty"`
	Temperature       *float64              `json:"temperature,omitempty"`
	TopP              *float64              `json:"top_p,omitempty"`
	MaxOutputTokens   *int                  `json:"max_output_tokens,omitempty"`
	Tools             []FunctionDeclaration `json:"tools,omitempty"`
	ResponseMIMEType  string                `json:"response_mime_type,omitempty"`
	ResponseSchema    map[string]any        `json:"response_schema,omitempty"`
}

// Merge returns c with every set field of override applied on top.
func (c GenerateConfig) Merge(override GenerateConfig) GenerateConfig {
	out := c
	if override.SystemInstruction != "" {
		out.SystemInstruction = override.SystemInstruction
	}
	if override.Temperature != nil {
		out.Temperature = override.Temperature
	}
	if override.TopP != nil {
		out.TopP = override.TopP
	}
	if override.MaxOutputTokens != nil {
		out.MaxOutputTokens = override.MaxOutputTokens
	}
	if override.Tools != nil {
		out.Tools = override.Tools
	}
	if override.ResponseMIMEType != "" {
		out.ResponseMIMEType = override.ResponseMIMEType
	}
	if override.ResponseSchema != nil {
		out.ResponseSchema = override.ResponseSchema
	}
	return out
}

// Request is the input for both GenerateContent and GenerateContentStream.
type Request struct {
	Model    string         `json:"model"`
	Contents []*Content     `json:"contents"`
	Config   GenerateConfig `json:"config"`
	Provider string         `json:"provider,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens     int  `json:"input_tokens"`
	OutputTokens    int  `json:"output_tokens"`
	TotalTokens     int  `json:"total_tokens"`
	ReasoningTokens *int `json:"reasoning_tokens,omitempty"`
	CacheReadTokens *int `json:"cache_read_tokens,omitempty"`
}

// Add returns a new Usage that is the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:     u.InputTokens + other.InputTokens,
		OutputTokens:    u.OutputTokens + other.OutputTokens,
		TotalTokens:     u.TotalTokens + other.TotalTokens,
		ReasoningTokens: addOptionalInt(u.ReasoningTokens, other.ReasoningTokens),
		CacheReadTokens: addOptionalInt(u.CacheReadTokens, other.CacheReadTokens),
	}
}

func addOptionalInt(a, b *int) *int {
	if a == nil && b == nil {
		return nil
	}
	va, vb := 0, 0
	if a != nil {
		va = *a
	}
	if b != nil {
		vb = *b
	}
	sum := va + vb
	return &sum
}

// Response is a complete model reply, or one chunk of a streamed reply.
type Response struct {
	ID           string   `json:"id"`
	Model        string   `json:"model"`
	Provider     string   `json:"provider"`
	Content      *Content `json:"content,omitempty"` // first candidate; nil when the service returned none
	FinishReason string   `json:"finish_reason,omitempty"`
	Usage        Usage    `json:"usage"`

	// AutomaticFunctionCallingHistory is the service-side tool execution
	// transcript. It starts with the request contents that were sent. The
	// genai backend never fills it.
	AutomaticFunctionCallingHistory []*Content `json:"automatic_function_calling_history,omitempty"`
}

// Text returns the non-thought text of the response content.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return r.Content.Text()
}

// FunctionCalls returns the function calls in the response content.
func (r *Response) FunctionCalls() []FunctionCall {
	if r == nil {
		return nil
	}
	return r.Content.FunctionCalls()
}

// IsValid reports whether the response carries usable content.
func (r *Response) IsValid() bool {
	return r != nil && r.Content.IsValid()
}

// ResponseStream is a finite, single-use sequence of response chunks. A
// non-nil error ends the sequence.
type ResponseStream = iter.Seq2[*Response, error]
