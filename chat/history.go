package chat

import (
	"fmt"

	"github.com/achadsiri/gemini-cli/llm"
)

// ValidateHistory reports an error if any content carries a role other than
// user or model. An empty history is valid.
func ValidateHistory(history []*llm.Content) error {
	for i, c := range history {
		if c == nil {
			return fmt.Errorf("history entry %d is nil", i)
		}
		if c.Role != llm.RoleUser && c.Role != llm.RoleModel {
			return fmt.Errorf("role must be user or model, but got %q", c.Role)
		}
	}
	return nil
}

// CuratedHistory filters a comprehensive history down to the turns that can be
// sent back to the service. A run of consecutive model turns is kept only if
// every turn in it is valid; otherwise the run is dropped together with the
// user turn that preceded it. The returned slice shares its elements with the
// input.
func CuratedHistory(comprehensive []*llm.Content) []*llm.Content {
	curated := make([]*llm.Content, 0, len(comprehensive))
	for i := 0; i < len(comprehensive); {
		if comprehensive[i].Role == llm.RoleUser {
			curated = append(curated, comprehensive[i])
			i++
			continue
		}

		start := i
		valid := true
		for i < len(comprehensive) && comprehensive[i].Role == llm.RoleModel {
			if !comprehensive[i].IsValid() {
				valid = false
			}
			i++
		}
		if valid {
			curated = append(curated, comprehensive[start:i]...)
		} else if len(curated) > 0 {
			curated = curated[:len(curated)-1]
		}
	}
	return curated
}

// isTextContent reports whether c is a model turn whose first part is plain
// text, the shape that consolidation may merge into.
func isTextContent(c *llm.Content) bool {
	return c != nil && c.Role == llm.RoleModel && len(c.Parts) > 0 && c.Parts[0].IsPlainText()
}

// stripThoughts returns c without thought parts, or nil if nothing else
// remains. A content that had no parts to begin with is returned unchanged.
func stripThoughts(c *llm.Content) *llm.Content {
	if len(c.Parts) == 0 {
		return c
	}
	out := &llm.Content{Role: c.Role}
	for _, p := range c.Parts {
		if !p.Thought {
			out.Parts = append(out.Parts, p)
		}
	}
	if len(out.Parts) == 0 {
		return nil
	}
	return out
}

// consolidate drops thought parts and merges adjacent text model turns: the
// text of the second is appended to the first part of the first, and its
// remaining parts are appended after.
func consolidate(outputs []*llm.Content) []*llm.Content {
	var merged []*llm.Content
	for _, c := range outputs {
		c = stripThoughts(c)
		if c == nil {
			continue
		}
		if len(merged) > 0 && isTextContent(merged[len(merged)-1]) && isTextContent(c) {
			appendText(merged[len(merged)-1], c)
			continue
		}
		merged = append(merged, c)
	}
	return merged
}

func appendText(dst, src *llm.Content) {
	dst.Parts[0].Text += src.Parts[0].Text
	dst.Parts = append(dst.Parts, src.Parts[1:]...)
}
