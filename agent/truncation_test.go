package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateOutputHeadTail(t *testing.T) {
	out := TruncateOutput(strings.Repeat("a", 50)+strings.Repeat("b", 50), 20, TruncateHeadTail)

	assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 10)))
	assert.True(t, strings.HasSuffix(out, strings.Repeat("b", 10)))
	assert.Contains(t, out, "80 characters were removed from the middle")
}

func TestTruncateOutputTail(t *testing.T) {
	out := TruncateOutput(strings.Repeat("a", 50)+strings.Repeat("b", 10), 10, TruncateTail)

	assert.True(t, strings.HasPrefix(out, "[WARNING: Tool output was truncated. First 50 characters were removed.]"))
	assert.True(t, strings.HasSuffix(out, "\n\n"+strings.Repeat("b", 10)))
}

func TestTruncateOutputUnderLimit(t *testing.T) {
	assert.Equal(t, "short", TruncateOutput("short", 10, TruncateTail))
	assert.Equal(t, "short", TruncateOutput("short", 0, TruncateTail))
}

func TestTruncateLines(t *testing.T) {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = string(rune('0' + i))
	}
	out := TruncateLines(strings.Join(lines, "\n"), 4)

	assert.Equal(t, "0\n1\n[... 6 lines omitted ...]\n8\n9", out)
	assert.Equal(t, "a\nb", TruncateLines("a\nb", 4))
}

func TestTruncateToolOutputOverrides(t *testing.T) {
	output := strings.Repeat("x\n", 300)

	def := TruncateToolOutput(output, ToolShell, nil, nil)
	assert.Contains(t, def, "lines omitted")

	override := TruncateToolOutput(output, ToolShell, nil, map[string]int{ToolShell: 1000})
	assert.Equal(t, output, override)

	chars := TruncateToolOutput(output, ToolShell, map[string]int{ToolShell: 10}, map[string]int{ToolShell: 0})
	assert.Contains(t, chars, "590 characters were removed")
}
