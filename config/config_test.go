package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	target, home := t.TempDir(), t.TempDir()

	cfg, err := Load(LoadOptions{TargetDir: target, HomeDir: home, Environ: []string{"GEMINI_API_KEY=k"}})
	require.NoError(t, err)

	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, "gemini-2.5-pro", cfg.Model)
	assert.Equal(t, ProviderGemini, cfg.Provider)
	assert.Equal(t, 100, cfg.MaxTurns)
	assert.InDelta(t, 0.95, cfg.CompressionThreshold, 1e-9)
	assert.Equal(t, ApprovalDefault, cfg.ApprovalMode)
	assert.Equal(t, DefaultContextFileName, cfg.ContextFileName)
	assert.Equal(t, "GeminiCLI/unknown", cfg.UserAgent)
	assert.Equal(t, target, cfg.TargetDir)
	assert.Empty(t, cfg.EnvFile)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	target, home := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(target, ".env"), `
# comment
export GEMINI_API_KEY="from-file"
GEMINI_MODEL='gemini-2.5-flash'
GEMINI_MAX_TURNS=7
`)

	cfg, err := Load(LoadOptions{TargetDir: target, HomeDir: home, Environ: []string{"GEMINI_MODEL=from-env"}})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(target, ".env"), cfg.EnvFile)
	assert.Equal(t, "from-file", cfg.APIKey)
	assert.Equal(t, "from-env", cfg.Model)
	assert.Equal(t, 7, cfg.MaxTurns)
}

func TestLoadRejectsMalformedEnvironment(t *testing.T) {
	_, err := Load(LoadOptions{TargetDir: t.TempDir(), HomeDir: t.TempDir(), Environ: []string{"GEMINI_MAX_TURNS=many"}})
	assert.ErrorContains(t, err, "parse environment")
}

func TestFindEnvFile(t *testing.T) {
	root, home := t.TempDir(), t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	assert.Empty(t, FindEnvFile(nested, home))

	writeFile(t, filepath.Join(home, ".env"), "X=1")
	assert.Equal(t, filepath.Join(home, ".env"), FindEnvFile(nested, home))

	writeFile(t, filepath.Join(home, SettingsDirName, ".env"), "X=1")
	assert.Equal(t, filepath.Join(home, SettingsDirName, ".env"), FindEnvFile(nested, home))

	writeFile(t, filepath.Join(root, "a", ".env"), "X=1")
	assert.Equal(t, filepath.Join(root, "a", ".env"), FindEnvFile(nested, home))

	writeFile(t, filepath.Join(root, "a", SettingsDirName, ".env"), "X=1")
	assert.Equal(t, filepath.Join(root, "a", SettingsDirName, ".env"), FindEnvFile(nested, home))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Provider: ProviderGemini, MaxTurns: 100, CompressionThreshold: 0.95}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing gemini key", func(c *Config) {}, "GEMINI_API_KEY"},
		{"gemini key", func(c *Config) { c.APIKey = "k" }, ""},
		{"vertex without project", func(c *Config) { c.VertexAI = true }, "GOOGLE_CLOUD_PROJECT"},
		{"vertex", func(c *Config) { c.VertexAI, c.Project, c.Location = true, "p", "us-central1" }, ""},
		{"openai without key", func(c *Config) { c.Provider = ProviderOpenAI }, "OPENAI_API_KEY"},
		{"anthropic", func(c *Config) { c.Provider, c.AnthropicAPIKey = ProviderAnthropic, "k" }, ""},
		{"unknown provider", func(c *Config) { c.Provider = "mystery" }, "unknown provider"},
		{"zero turns", func(c *Config) { c.APIKey, c.MaxTurns = "k", 0 }, "max turns"},
		{"threshold too high", func(c *Config) { c.APIKey, c.CompressionThreshold = "k", 1.5 }, "compression threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestProviderAPIKey(t *testing.T) {
	cfg := &Config{APIKey: "g", OpenAIAPIKey: "o", AnthropicAPIKey: "a"}
	for provider, want := range map[string]string{ProviderGemini: "g", ProviderOpenAI: "o", ProviderAnthropic: "a"} {
		cfg.Provider = provider
		assert.Equal(t, want, cfg.ProviderAPIKey())
	}
}
