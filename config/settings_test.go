package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoadSettingsWorkspaceOverridesUser(t *testing.T) {
	workspace, home := t.TempDir(), t.TempDir()
	writeFile(t, UserSettingsPath(home), `{
  // user defaults
  "coreTools": ["read_file", "glob"],
  "contextFileName": "AGENTS.md",
  "maxSessionTurns": 20,
}`)
	writeFile(t, WorkspaceSettingsPath(workspace), `{
  /* project */
  "coreTools": ["read_file"],
  "toolOutputLimits": {"read_file": 1000},
}`)

	loaded := LoadSettings(workspace, home, nil)
	merged := loaded.Merged()

	assert.Equal(t, []string{"read_file"}, merged.CoreTools)
	assert.Equal(t, "AGENTS.md", merged.ContextFileName)
	assert.Equal(t, 20, merged.MaxSessionTurns)
	assert.Equal(t, map[string]int{"read_file": 1000}, merged.ToolOutputLimits)
	assert.Equal(t, []string{"read_file", "glob"}, loaded.User.Settings.CoreTools)
}

func TestLoadSettingsMalformedFileIsLoggedAndIgnored(t *testing.T) {
	workspace, home := t.TempDir(), t.TempDir()
	writeFile(t, WorkspaceSettingsPath(workspace), `{"coreTools": [`)
	writeFile(t, UserSettingsPath(home), `{"excludeTools": ["web_fetch"]}`)
	core, logs := observer.New(zap.ErrorLevel)

	merged := LoadSettings(workspace, home, zap.New(core)).Merged()

	assert.Equal(t, []string{"web_fetch"}, merged.ExcludeTools)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, WorkspaceSettingsPath(workspace), logs.All()[0].ContextMap()["path"])
}

func TestReadSettingsMissingFile(t *testing.T) {
	s, err := ReadSettings(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Zero(t, s.MaxSessionTurns)
	assert.Nil(t, s.CoreTools)
}

func TestSetValueSavesScope(t *testing.T) {
	workspace, home := t.TempDir(), t.TempDir()
	loaded := LoadSettings(workspace, home, nil)

	require.NoError(t, loaded.SetValue(ScopeWorkspace, func(s *Settings) {
		s.ExcludeTools = []string{"run_shell_command"}
	}))

	reread, err := ReadSettings(WorkspaceSettingsPath(workspace))
	require.NoError(t, err)
	assert.Equal(t, []string{"run_shell_command"}, reread.ExcludeTools)

	_, err = loaded.ForScope("System")
	assert.Error(t, err)
}

func TestApplySettings(t *testing.T) {
	cfg := &Config{MaxTurns: 100}
	cfg.ApplySettings(Settings{CoreTools: []string{"glob"}, MaxSessionTurns: 5})

	assert.Equal(t, []string{"glob"}, cfg.CoreTools)
	assert.Equal(t, 5, cfg.MaxTurns)
	assert.Equal(t, DefaultContextFileName, cfg.ContextFileName)
}
