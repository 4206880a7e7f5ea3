package llm

import "strings"

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID                string   `json:"id"`
	Provider          string   `json:"provider"`
	DisplayName       string   `json:"display_name"`
	ContextWindow     int      `json:"context_window"`
	MaxOutput         int      `json:"max_output,omitempty"`
	SupportsTools     bool     `json:"supports_tools"`
	SupportsReasoning bool     `json:"supports_reasoning"`
	Aliases           []string `json:"aliases,omitempty"`
}

// Well-known model identifiers.
const (
	DefaultModel          = "gemini-2.5-pro"
	DefaultFlashModel     = "gemini-2.5-flash"
	DefaultEmbeddingModel = "gemini-embedding-001"
)

// Models is the built-in model catalog.
var Models = []ModelInfo{
	// Gemini
	{
		ID: "gemini-2.5-pro", Provider: "gemini", DisplayName: "Gemini 2.5 Pro",
		ContextWindow: 1048576, MaxOutput: 65536,
		SupportsTools: true, SupportsReasoning: true,
		Aliases: []string{"pro"},
	},
	{
		ID: "gemini-2.5-flash", Provider: "gemini", DisplayName: "Gemini 2.5 Flash",
		ContextWindow: 1048576, MaxOutput: 65536,
		SupportsTools: true, SupportsReasoning: true,
		Aliases: []string{"flash"},
	},
	{
		ID: "gemini-2.5-flash-lite", Provider: "gemini", DisplayName: "Gemini 2.5 Flash-Lite",
		ContextWindow: 1048576, MaxOutput: 65536,
		SupportsTools: true, SupportsReasoning: true,
		Aliases: []string{"flash-lite"},
	},
	{
		ID: "gemini-2.0-flash", Provider: "gemini", DisplayName: "Gemini 2.0 Flash",
		ContextWindow: 1048576, MaxOutput: 8192,
		SupportsTools: true,
	},
	{
		ID: "gemini-2.0-flash-preview-image-generation", Provider: "gemini", DisplayName: "Gemini 2.0 Flash Image Generation",
		ContextWindow: 32000, MaxOutput: 8192,
	},
	{
		ID: "gemini-1.5-pro", Provider: "gemini", DisplayName: "Gemini 1.5 Pro",
		ContextWindow: 2097152, MaxOutput: 8192,
		SupportsTools: true,
	},
	{
		ID: "gemini-1.5-flash", Provider: "gemini", DisplayName: "Gemini 1.5 Flash",
		ContextWindow: 1048576, MaxOutput: 8192,
		SupportsTools: true,
	},

	// Anthropic
	{
		ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5",
		ContextWindow: 200000, MaxOutput: 16384,
		SupportsTools: true, SupportsReasoning: true,
		Aliases: []string{"sonnet", "claude-sonnet"},
	},

	// OpenAI
	{
		ID: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o",
		ContextWindow: 128000, MaxOutput: 16384,
		SupportsTools: true,
	},
	{
		ID: "gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o Mini",
		ContextWindow: 128000, MaxOutput: 16384,
		SupportsTools: true,
	},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown. A
// "models/" resource prefix is ignored.
func GetModelInfo(modelID string) *ModelInfo {
	modelID = strings.TrimPrefix(modelID, "models/")
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		result := make([]ModelInfo, len(Models))
		copy(result, Models)
		return result
	}
	var result []ModelInfo
	for _, m := range Models {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// TokenLimit returns the context window of model in tokens, or 0 when the model
// is not in the catalog.
func TokenLimit(model string) int {
	if info := GetModelInfo(model); info != nil {
		return info.ContextWindow
	}
	return 0
}
