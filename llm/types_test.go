package llm

import "testing"

func TestContentIsValid(t *testing.T) {
	tests := []struct {
		name    string
		content *Content
		want    bool
	}{
		{"nil", nil, false},
		{"no parts", &Content{Role: RoleModel}, false},
		{"text", ModelText("hi"), true},
		{"empty text", ModelText(""), false},
		{"empty part", NewContent(RoleModel, Part{}), false},
		{"thought with text", NewContent(RoleModel, ThoughtPart("thinking")), true},
		{"function call", NewContent(RoleModel, FunctionCallPart("1", "ls", nil)), true},
		{"mixed with empty", NewContent(RoleModel, TextPart("a"), TextPart("")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.content.IsValid(); got != tt.want {
				t.Errorf("IsValid = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFunctionResponse(t *testing.T) {
	fr := NewContent(RoleUser, FunctionResponsePart("1", "ls", map[string]any{"output": "a"}))
	if !fr.IsFunctionResponse() {
		t.Error("expected function response content")
	}
	mixed := NewContent(RoleUser, FunctionResponsePart("1", "ls", nil), TextPart("and"))
	if mixed.IsFunctionResponse() {
		t.Error("mixed content is not a pure function response")
	}
	if UserText("hi").IsFunctionResponse() {
		t.Error("text is not a function response")
	}
	model := NewContent(RoleModel, FunctionResponsePart("1", "ls", nil))
	if model.IsFunctionResponse() {
		t.Error("only user turns carry function responses")
	}
}

func TestContentCloneIsDeep(t *testing.T) {
	orig := NewContent(RoleModel,
		TextPart("hello"),
		FunctionCallPart("c1", "read_file", map[string]any{
			"path":  "/a",
			"opts":  map[string]any{"limit": 10},
			"globs": []any{"*.go"},
		}),
	)
	clone := orig.Clone()

	clone.Parts[0].Text = "changed"
	clone.Parts[1].FunctionCall.Args["path"] = "/b"
	clone.Parts[1].FunctionCall.Args["opts"].(map[string]any)["limit"] = 99
	clone.Parts[1].FunctionCall.Args["globs"].([]any)[0] = "*.md"

	if orig.Parts[0].Text != "hello" {
		t.Error("text mutated through clone")
	}
	args := orig.Parts[1].FunctionCall.Args
	if args["path"] != "/a" {
		t.Error("args mutated through clone")
	}
	if args["opts"].(map[string]any)["limit"] != 10 {
		t.Error("nested map mutated through clone")
	}
	if args["globs"].([]any)[0] != "*.go" {
		t.Error("nested slice mutated through clone")
	}
}

func TestContentTextSkipsThoughts(t *testing.T) {
	c := NewContent(RoleModel, ThoughtPart("hmm"), TextPart("a"), FunctionCallPart("", "x", nil), TextPart("b"))
	if got := c.Text(); got != "ab" {
		t.Errorf("expected %q, got %q", "ab", got)
	}
	if calls := c.FunctionCalls(); len(calls) != 1 || calls[0].Name != "x" {
		t.Errorf("unexpected calls %v", calls)
	}
}

func TestGenerateConfigMerge(t *testing.T) {
	temp := 0.0
	topP := 1.0
	base := GenerateConfig{SystemInstruction: "sys", Temperature: &temp, TopP: &topP}
	over := 0.5
	merged := base.Merge(GenerateConfig{Temperature: &over, ResponseMIMEType: "application/json"})

	if merged.SystemInstruction != "sys" {
		t.Error("unset override fields should keep the base value")
	}
	if *merged.Temperature != 0.5 {
		t.Errorf("expected temperature 0.5, got %v", *merged.Temperature)
	}
	if *merged.TopP != 1.0 {
		t.Error("top_p should be preserved")
	}
	if merged.ResponseMIMEType != "application/json" {
		t.Error("mime type should be overridden")
	}
}

func TestUsageAdd(t *testing.T) {
	r := 5
	a := Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30, ReasoningTokens: &r}
	b := Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}
	sum := a.Add(b)
	if sum.TotalTokens != 33 || sum.InputTokens != 11 || sum.OutputTokens != 22 {
		t.Errorf("unexpected sum %+v", sum)
	}
	if sum.ReasoningTokens == nil || *sum.ReasoningTokens != 5 {
		t.Error("expected reasoning tokens to carry over")
	}
	if sum.CacheReadTokens != nil {
		t.Error("expected nil cache tokens")
	}
}
