package agent

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/achadsiri/gemini-cli/llm"
)

// toolCallSignature is the call name plus a hash of its arguments.
// encoding/json sorts map keys, so equal arguments hash equally.
func toolCallSignature(call llm.FunctionCall) string {
	raw, err := json.Marshal(call.Args)
	if err != nil {
		raw = []byte(fmt.Sprint(call.Args))
	}
	h := sha256.Sum256(raw)
	return fmt.Sprintf("%s:%x", call.Name, h[:8])
}

// DetectLoop reports whether the last windowSize signatures repeat a pattern
// of length 1, 2 or 3.
func DetectLoop(signatures []string, windowSize int) bool {
	if windowSize <= 0 || len(signatures) < windowSize {
		return false
	}
	window := signatures[len(signatures)-windowSize:]

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i++ {
			if window[i] != window[i%patternLen] {
				allMatch = false
			}
		}
		if allMatch {
			return true
		}
	}
	return false
}
