package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLaunchdManager(t *testing.T, mode ExecMode) *LaunchdManagerImpl {
	t.Helper()
	plistPath := filepath.Join(t.TempDir(), LaunchdLabel+".plist")
	return NewLaunchdManagerWithPath(mode, plistPath)
}

func TestLaunchdManager_GeneratePlistContent(t *testing.T) {
	m := newTestLaunchdManager(t, ExecModeUser)

	content, err := m.generatePlistContent("/usr/local/bin/applockd")
	require.NoError(t, err)

	s := string(content)
	assert.Contains(t, s, "<string>"+LaunchdLabel+"</string>")
	assert.Contains(t, s, "<string>/usr/local/bin/applockd</string>")
	assert.Contains(t, s, "<string>daemon</string>")
	assert.Contains(t, s, "/var/tmp/applockd.log")
	assert.Contains(t, s, "<key>RunAtLoad</key>")
}

func TestLaunchdManager_SystemTemplateDiffers(t *testing.T) {
	user := newTestLaunchdManager(t, ExecModeUser)
	system := newTestLaunchdManager(t, ExecModeSystem)

	userContent, err := user.generatePlistContent("/usr/local/bin/applockd")
	require.NoError(t, err)
	systemContent, err := system.generatePlistContent("/usr/local/bin/applockd")
	require.NoError(t, err)

	assert.NotEqual(t, userContent, systemContent)
	// Agent restarts only on crash; daemon is kept alive unconditionally.
	assert.Contains(t, string(userContent), "<key>Crashed</key>")
	assert.NotContains(t, string(systemContent), "<key>Crashed</key>")
}

func TestLaunchdManager_IsInstalled(t *testing.T) {
	m := newTestLaunchdManager(t, ExecModeUser)

	assert.False(t, m.IsInstalled())

	content, err := m.generatePlistContent("/usr/local/bin/applockd")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.GetPlistPath(), content, 0644))

	assert.True(t, m.IsInstalled())
}

func TestLaunchdManager_NeedsUpdate(t *testing.T) {
	m := newTestLaunchdManager(t, ExecModeUser)

	// Not installed: install, not update.
	assert.False(t, m.NeedsUpdate("/usr/local/bin/applockd"))

	content, err := m.generatePlistContent("/usr/local/bin/applockd")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.GetPlistPath(), content, 0644))

	assert.False(t, m.NeedsUpdate("/usr/local/bin/applockd"))
	assert.True(t, m.NeedsUpdate("/somewhere/else/applockd"),
		"binary path change must trigger an update")

	require.NoError(t, os.WriteFile(m.GetPlistPath(), []byte("tampered"), 0644))
	assert.True(t, m.NeedsUpdate("/usr/local/bin/applockd"))
}
