package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
)

// SettingsDirName is the per-user and per-workspace configuration directory.
const SettingsDirName = ".gemini"

// ApprovalMode controls whether tools that modify the workspace may run.
type ApprovalMode string

const (
	// ApprovalDefault registers read-only tools only; no prompt is available
	// to confirm edits or commands in non-interactive runs.
	ApprovalDefault ApprovalMode = "default"
	// ApprovalYolo registers every tool.
	ApprovalYolo ApprovalMode = "yolo"
)

// Provider names accepted by Config.Provider.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the resolved runtime configuration. Environment variables are
// bound through struct tags; the rest comes from settings files and flags.
type Config struct {
	APIKey          string `env:"GEMINI_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	Model           string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-pro"`
	Provider        string `env:"GEMINI_PROVIDER" envDefault:"gemini"`
	VertexAI        bool   `env:"GOOGLE_GENAI_USE_VERTEXAI"`
	Project         string `env:"GOOGLE_CLOUD_PROJECT"`
	Location        string `env:"GOOGLE_CLOUD_LOCATION"`
	Debug           bool   `env:"DEBUG"`
	UserAgent       string `env:"GEMINI_USER_AGENT" envDefault:"GeminiCLI/unknown"`

	MaxTurns             int     `env:"GEMINI_MAX_TURNS" envDefault:"100"`
	CompressionThreshold float64 `env:"GEMINI_COMPRESSION_THRESHOLD" envDefault:"0.95"`
	TokenLimit           int     `env:"GEMINI_TOKEN_LIMIT"`

	TargetDir    string
	FullContext  bool
	ApprovalMode ApprovalMode

	CoreTools        []string
	ExcludeTools     []string
	ContextFileName  string
	ToolOutputLimits map[string]int

	UserMemory      string
	MemoryFileCount int

	// EnvFile is the .env file the environment was supplemented from, if any.
	EnvFile string
}

// LoadOptions points Load at the directories and environment to read.
// Zero values mean the process defaults.
type LoadOptions struct {
	TargetDir string
	HomeDir   string
	Environ   []string
	Logger    *zap.Logger
}

// Load resolves the configuration for a workspace: the nearest .env file,
// the process environment, the user and workspace settings files, and the
// hierarchical memory files.
func Load(opts LoadOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	target := opts.TargetDir
	if target == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		target = wd
	}
	target, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("resolve target directory: %w", err)
	}
	home := opts.HomeDir
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}

	vars := env.ToMap(environ)
	envFile := FindEnvFile(target, home)
	if envFile != "" {
		fileVars, err := ReadEnvFile(envFile)
		if err != nil {
			return nil, err
		}
		// Variables already set in the real environment win.
		for k, v := range fileVars {
			if _, ok := vars[k]; !ok {
				vars[k] = v
			}
		}
		logger.Debug("loaded env file", zap.String("path", envFile))
	}

	cfg := &Config{
		TargetDir:    target,
		ApprovalMode: ApprovalDefault,
		EnvFile:      envFile,
	}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	settings := LoadSettings(target, home, logger)
	cfg.ApplySettings(settings.Merged())

	memory, count, err := LoadMemory(target, home, cfg.ContextFileName, logger)
	if err != nil {
		return nil, err
	}
	cfg.UserMemory = memory
	cfg.MemoryFileCount = count
	return cfg, nil
}

// ApplySettings copies the settings that have a Config counterpart.
func (c *Config) ApplySettings(s Settings) {
	c.CoreTools = s.CoreTools
	c.ExcludeTools = s.ExcludeTools
	c.ContextFileName = s.ContextFileName
	if c.ContextFileName == "" {
		c.ContextFileName = DefaultContextFileName
	}
	c.ToolOutputLimits = s.ToolOutputLimits
	if s.MaxSessionTurns > 0 {
		c.MaxTurns = s.MaxSessionTurns
	}
}

// Validate checks that the selected provider can authenticate.
func (c *Config) Validate() error {
	if c.MaxTurns < 1 {
		return fmt.Errorf("max turns must be at least 1, got %d", c.MaxTurns)
	}
	if c.CompressionThreshold <= 0 || c.CompressionThreshold > 1 {
		return fmt.Errorf("compression threshold must be in (0, 1], got %g", c.CompressionThreshold)
	}
	switch c.Provider {
	case ProviderGemini:
		if c.VertexAI {
			if c.Project == "" || c.Location == "" {
				return errors.New("GOOGLE_CLOUD_PROJECT and GOOGLE_CLOUD_LOCATION must be set when GOOGLE_GENAI_USE_VERTEXAI is true")
			}
			return nil
		}
		if c.APIKey == "" {
			return errors.New("GEMINI_API_KEY environment variable not found. Add that to your .env and try again, no reload needed")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY must be set for the openai provider")
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return errors.New("ANTHROPIC_API_KEY must be set for the anthropic provider")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	return nil
}

// ProviderAPIKey returns the key for the selected provider.
func (c *Config) ProviderAPIKey() string {
	switch c.Provider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	default:
		return c.APIKey
	}
}

// FindEnvFile walks up from dir looking for .gemini/.env or .env, falling
// back to the same two files under home. It returns "" when none exists.
func FindEnvFile(dir, home string) string {
	current := filepath.Clean(dir)
	for {
		for _, candidate := range []string{
			filepath.Join(current, SettingsDirName, ".env"),
			filepath.Join(current, ".env"),
		} {
			if fileExists(candidate) {
				return candidate
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	if home == "" {
		return ""
	}
	for _, candidate := range []string{
		filepath.Join(home, SettingsDirName, ".env"),
		filepath.Join(home, ".env"),
	} {
		if fileExists(candidate) {
			return candidate
		}
	}
	return ""
}

// ReadEnvFile parses KEY=VALUE lines. Blank lines and lines starting with '#'
// are ignored, an optional "export " prefix is dropped, and matching
// surrounding quotes are stripped from values.
func ReadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	defer f.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
			value = value[1 : len(value)-1]
		}
		vars[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return vars, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
