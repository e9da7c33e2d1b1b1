package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectExecMode_NonRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root")
	}

	cfg := DetectExecMode()
	home, _ := os.UserHomeDir()

	assert.Equal(t, ExecModeUser, cfg.Mode)
	assert.False(t, cfg.IsRoot)
	assert.Equal(t, filepath.Join(home, ".local", "bin", "applockd"), cfg.BinaryPath)
	assert.Equal(t, filepath.Join(home, "Library", "LaunchAgents"), cfg.PlistDir)
	assert.Equal(t, filepath.Join(home, ".applockd"), cfg.DataDir)
}

func TestExecModeConfig_PlistPathUsesLabel(t *testing.T) {
	cfg := DetectExecMode()
	assert.Equal(t, filepath.Join(cfg.PlistDir, LaunchdLabel+".plist"), cfg.PlistPath)
}

func TestExecModeConfig_ConfigPath(t *testing.T) {
	cfg := DetectExecMode()
	assert.Equal(t, filepath.Join(cfg.DataDir, "config.toml"), cfg.ConfigPath())
}

func TestGetUserModeConfig_AlwaysUserPaths(t *testing.T) {
	cfg := GetUserModeConfig()

	assert.Equal(t, ExecModeUser, cfg.Mode)
	assert.Contains(t, cfg.BinaryPath, filepath.Join(".local", "bin", "applockd"))
	assert.Contains(t, cfg.PlistDir, "LaunchAgents")
}

func TestGetRealUserHome_WithoutSudo(t *testing.T) {
	require.NoError(t, os.Unsetenv("SUDO_USER"))

	home, _ := os.UserHomeDir()
	assert.Equal(t, home, GetRealUserHome())
}

func TestExecMode_String(t *testing.T) {
	assert.Equal(t, "user (LaunchAgent, non-root)", ExecModeUser.String())
	assert.Equal(t, "system (LaunchDaemon, root)", ExecModeSystem.String())
	assert.Equal(t, "unknown", ExecMode("other").String())
}
