package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolRegistryKeepsRegistrationOrder(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(failingTool("b"))
	reg.Register(failingTool("a"))
	reg.Register(echoTool())

	assert.Equal(t, []string{"b", "a", "echo"}, reg.Names())
	decls := reg.Declarations()
	require.Len(t, decls, 3)
	assert.Equal(t, "echo", decls[2].Name)
}

func TestToolRegistryReplaceKeepsPosition(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(failingTool("a"))
	reg.Register(echoTool())
	replacement := echoTool()
	replacement.Decl.Description = "replaced"
	reg.Register(replacement)

	assert.Equal(t, 2, reg.Count())
	assert.Equal(t, []string{"a", "echo"}, reg.Names())
	assert.Equal(t, "replaced", reg.Get("echo").Declaration().Description)
}

func TestToolRegistryUnregister(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(failingTool("a"))
	reg.Register(echoTool())

	reg.Unregister("a")
	reg.Unregister("missing")

	assert.Nil(t, reg.Get("a"))
	assert.Equal(t, []string{"echo"}, reg.Names())
}

func TestGetIntArg(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		want   int
		wantOK bool
	}{
		{"float64", float64(12), 12, true},
		{"int", 7, 7, true},
		{"int64", int64(9), 9, true},
		{"json number", json.Number("42"), 42, true},
		{"bad json number", json.Number("4.5"), 0, false},
		{"string", "12", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := GetIntArg(map[string]any{"n": tt.value}, "n")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := GetIntArg(map[string]any{}, "n")
	assert.False(t, ok)
}

func TestGetStringSliceArg(t *testing.T) {
	got, ok := GetStringSliceArg(map[string]any{"p": []any{"a", 1, "b"}}, "p")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	got, ok = GetStringSliceArg(map[string]any{"p": []string{"x"}}, "p")
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, got)

	_, ok = GetStringSliceArg(map[string]any{"p": "x"}, "p")
	assert.False(t, ok)
}

func TestGetBoolArg(t *testing.T) {
	v, ok := GetBoolArg(map[string]any{"b": true}, "b")
	assert.True(t, ok)
	assert.True(t, v)

	_, ok = GetBoolArg(map[string]any{"b": "true"}, "b")
	assert.False(t, ok)
}
