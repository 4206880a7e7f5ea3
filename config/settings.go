package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
)

// Settings is the contents of a settings.json file. Files may contain
// comments and trailing commas.
type Settings struct {
	CoreTools        []string       `json:"coreTools,omitempty"`
	ExcludeTools     []string       `json:"excludeTools,omitempty"`
	ContextFileName  string         `json:"contextFileName,omitempty"`
	MaxSessionTurns  int            `json:"maxSessionTurns,omitempty"`
	ToolOutputLimits map[string]int `json:"toolOutputLimits,omitempty"`
}

// SettingScope names where a settings file lives.
type SettingScope string

const (
	ScopeUser      SettingScope = "User"
	ScopeWorkspace SettingScope = "Workspace"
)

// SettingsFile is one loaded settings file.
type SettingsFile struct {
	Path     string
	Settings Settings
}

// LoadedSettings holds the user and workspace settings.
type LoadedSettings struct {
	User      SettingsFile
	Workspace SettingsFile
}

// Merged returns the user settings overlaid with every field the workspace
// settings set.
func (l *LoadedSettings) Merged() Settings {
	merged := l.User.Settings
	ws := l.Workspace.Settings
	if ws.CoreTools != nil {
		merged.CoreTools = ws.CoreTools
	}
	if ws.ExcludeTools != nil {
		merged.ExcludeTools = ws.ExcludeTools
	}
	if ws.ContextFileName != "" {
		merged.ContextFileName = ws.ContextFileName
	}
	if ws.MaxSessionTurns != 0 {
		merged.MaxSessionTurns = ws.MaxSessionTurns
	}
	if ws.ToolOutputLimits != nil {
		merged.ToolOutputLimits = ws.ToolOutputLimits
	}
	return merged
}

// ForScope returns the settings file for scope.
func (l *LoadedSettings) ForScope(scope SettingScope) (*SettingsFile, error) {
	switch scope {
	case ScopeUser:
		return &l.User, nil
	case ScopeWorkspace:
		return &l.Workspace, nil
	default:
		return nil, fmt.Errorf("invalid scope: %s", scope)
	}
}

// SetValue changes one scope's settings with fn and saves that file.
func (l *LoadedSettings) SetValue(scope SettingScope, fn func(*Settings)) error {
	file, err := l.ForScope(scope)
	if err != nil {
		return err
	}
	fn(&file.Settings)
	return SaveSettings(*file)
}

// UserSettingsPath is ~/.gemini/settings.json under home.
func UserSettingsPath(home string) string {
	return filepath.Join(home, SettingsDirName, "settings.json")
}

// WorkspaceSettingsPath is <workspace>/.gemini/settings.json.
func WorkspaceSettingsPath(workspace string) string {
	return filepath.Join(workspace, SettingsDirName, "settings.json")
}

// LoadSettings reads the user and workspace settings. A missing file is
// empty settings; an unreadable or malformed one is logged and treated the
// same way so a broken file never prevents startup.
func LoadSettings(workspace, home string, logger *zap.Logger) *LoadedSettings {
	if logger == nil {
		logger = zap.NewNop()
	}
	loaded := &LoadedSettings{
		User:      SettingsFile{Path: UserSettingsPath(home)},
		Workspace: SettingsFile{Path: WorkspaceSettingsPath(workspace)},
	}
	for _, file := range []*SettingsFile{&loaded.User, &loaded.Workspace} {
		settings, err := ReadSettings(file.Path)
		if err != nil {
			logger.Error("error reading settings file", zap.String("path", file.Path), zap.Error(err))
			continue
		}
		file.Settings = settings
	}
	return loaded
}

// ReadSettings parses one settings file. A missing file yields zero Settings.
func ReadSettings(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &s); err != nil {
		return s, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

// SaveSettings writes file as indented JSON, creating its directory.
func SaveSettings(file SettingsFile) error {
	if err := os.MkdirAll(filepath.Dir(file.Path), 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	data, err := json.MarshalIndent(file.Settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return os.WriteFile(file.Path, data, 0o644)
}
