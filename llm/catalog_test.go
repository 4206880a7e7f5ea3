package llm

import "testing"

func TestGetModelInfo(t *testing.T) {
	info := GetModelInfo("gemini-2.5-pro")
	if info == nil {
		t.Fatal("expected to find gemini-2.5-pro")
	}
	if info.Provider != "gemini" {
		t.Errorf("expected provider %q, got %q", "gemini", info.Provider)
	}

	if info := GetModelInfo("models/gemini-2.5-flash"); info == nil || info.ID != "gemini-2.5-flash" {
		t.Errorf("expected resource prefix to be ignored, got %v", info)
	}
	if info := GetModelInfo("flash"); info == nil || info.ID != "gemini-2.5-flash" {
		t.Errorf("expected alias lookup, got %v", info)
	}
	if GetModelInfo("nonexistent-model") != nil {
		t.Error("expected nil for unknown model")
	}
}

func TestListModels(t *testing.T) {
	if all := ListModels(""); len(all) != len(Models) {
		t.Errorf("expected %d models, got %d", len(Models), len(all))
	}
	for _, m := range ListModels("gemini") {
		if m.Provider != "gemini" {
			t.Errorf("expected provider gemini, got %q", m.Provider)
		}
	}
}

func TestTokenLimit(t *testing.T) {
	tests := map[string]int{
		"gemini-1.5-pro":   2097152,
		"gemini-2.5-pro":   1048576,
		"gemini-2.5-flash": 1048576,
		"gemini-2.0-flash-preview-image-generation": 32000,
		"mystery-model": 0,
	}
	for model, want := range tests {
		if got := TokenLimit(model); got != want {
			t.Errorf("TokenLimit(%q) = %d, want %d", model, got, want)
		}
	}
}
