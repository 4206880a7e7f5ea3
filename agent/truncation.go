package agent

import (
	"fmt"
	"strings"
)

// TruncationMode specifies how output is truncated.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

const fallbackCharLimit = 30000

// DefaultToolCharLimits bounds the tool output sent back to the model.
var DefaultToolCharLimits = map[string]int{
	"read_file":           50000,
	"read_many_files":     100000,
	"run_shell_command":   30000,
	"search_file_content": 20000,
	"glob":                20000,
	"list_directory":      20000,
	"web_fetch":           40000,
	"replace":             10000,
	"write_file":          1000,
}

// DefaultTruncationModes picks which end of the output survives.
var DefaultTruncationModes = map[string]TruncationMode{
	"read_file":           TruncateHeadTail,
	"read_many_files":     TruncateHeadTail,
	"run_shell_command":   TruncateHeadTail,
	"web_fetch":           TruncateHeadTail,
	"search_file_content": TruncateTail,
	"glob":                TruncateTail,
	"list_directory":      TruncateTail,
	"replace":             TruncateTail,
	"write_file":          TruncateTail,
}

// DefaultToolLineLimits is applied after character truncation.
var DefaultToolLineLimits = map[string]int{
	"run_shell_command":   256,
	"search_file_content": 200,
	"glob":                500,
}

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars

	if mode == TruncateTail {
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed.]\n\n", removed) +
			output[len(output)-maxChars:]
	}

	half := maxChars / 2
	return output[:half] +
		fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
			"If you need to see specific parts, re-run the tool with more targeted parameters.]\n\n", removed) +
		output[len(output)-half:]
}

// TruncateLines keeps the first and last lines of output.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies character then line truncation for the named
// tool. Entries in charLimits and lineLimits override the defaults.
func TruncateToolOutput(output string, toolName string, charLimits, lineLimits map[string]int) string {
	maxChars, ok := charLimits[toolName]
	if !ok {
		maxChars, ok = DefaultToolCharLimits[toolName]
		if !ok {
			maxChars = fallbackCharLimit
		}
	}
	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}
	result := TruncateOutput(output, maxChars, mode)

	maxLines, ok := lineLimits[toolName]
	if !ok {
		maxLines = DefaultToolLineLimits[toolName]
	}
	return TruncateLines(result, maxLines)
}
