package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/achadsiri/gemini-cli/llm"
)

func TestDetectLoop(t *testing.T) {
	tests := []struct {
		name   string
		sigs   []string
		window int
		want   bool
	}{
		{"too short", []string{"a", "a"}, 3, false},
		{"single repeat", []string{"x", "a", "a", "a"}, 3, true},
		{"pair repeat", []string{"a", "b", "a", "b"}, 4, true},
		{"triple repeat", []string{"a", "b", "c", "a", "b", "c"}, 6, true},
		{"varied", []string{"a", "b", "c", "d"}, 4, false},
		{"disabled", []string{"a", "a", "a"}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLoop(tt.sigs, tt.window))
		})
	}
}

func TestToolCallSignature(t *testing.T) {
	a := toolCallSignature(llm.FunctionCall{Name: "read_file", Args: map[string]any{"path": "a", "limit": 1}})
	b := toolCallSignature(llm.FunctionCall{Name: "read_file", Args: map[string]any{"limit": 1, "path": "a"}})
	c := toolCallSignature(llm.FunctionCall{Name: "read_file", Args: map[string]any{"path": "b"}})

	assert.Equal(t, a, b, "argument order does not matter")
	assert.NotEqual(t, a, c)
}
