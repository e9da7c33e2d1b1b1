package infra

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// LaunchAgent plist template (runs as user)
const launchAgentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
        <string>daemon</string>
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    <dict>
        <key>Crashed</key>
        <true/>
    </dict>

    <key>StandardOutPath</key>
    <string>{{.LogPath}}</string>

    <key>StandardErrorPath</key>
    <string>{{.ErrorLogPath}}</string>

    <key>ProcessType</key>
    <string>Background</string>

    <key>ThrottleInterval</key>
    <integer>10</integer>
</dict>
</plist>`

// LaunchDaemon plist template (runs as root)
const launchDaemonTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
        <string>daemon</string>
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    <true/>

    <key>StandardOutPath</key>
    <string>{{.LogPath}}</string>

    <key>StandardErrorPath</key>
    <string>{{.ErrorLogPath}}</string>

    <key>ThrottleInterval</key>
    <integer>10</integer>
</dict>
</plist>`

const logDir = "/var/tmp"

type plistConfig struct {
	Label          string
	ExecutablePath string
	LogPath        string
	ErrorLogPath   string
}

// LaunchdManagerImpl implements domain.LaunchAgentManager for both modes.
type LaunchdManagerImpl struct {
	mode      ExecMode
	plistDir  string
	plistPath string
}

// NewLaunchdManager creates a launchd manager for the given exec mode.
func NewLaunchdManager(execMode *ExecModeConfig) domain.LaunchAgentManager {
	return &LaunchdManagerImpl{
		mode:      execMode.Mode,
		plistDir:  execMode.PlistDir,
		plistPath: execMode.PlistPath,
	}
}

// NewLaunchdManagerWithPath creates a launchd manager at a specific plist path (for testing).
func NewLaunchdManagerWithPath(mode ExecMode, plistPath string) *LaunchdManagerImpl {
	return &LaunchdManagerImpl{
		mode:      mode,
		plistDir:  filepath.Dir(plistPath),
		plistPath: plistPath,
	}
}

// generatePlistContent renders the plist for the current mode.
func (m *LaunchdManagerImpl) generatePlistContent(execPath string) ([]byte, error) {
	tmplStr := launchAgentTemplate
	if m.mode == ExecModeSystem {
		tmplStr = launchDaemonTemplate
	}

	config := plistConfig{
		Label:          LaunchdLabel,
		ExecutablePath: execPath,
		LogPath:        filepath.Join(logDir, "applockd.log"),
		ErrorLogPath:   filepath.Join(logDir, "applockd.error.log"),
	}

	tmpl, err := template.New("plist").Parse(tmplStr)
	if err != nil {
		return nil, fmt.Errorf("parse plist template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, config); err != nil {
		return nil, fmt.Errorf("execute plist template: %w", err)
	}

	return buf.Bytes(), nil
}

// Install creates and loads the plist (LaunchAgent or LaunchDaemon).
func (m *LaunchdManagerImpl) Install(execPath string) error {
	if err := os.MkdirAll(m.plistDir, 0755); err != nil {
		return err
	}

	content, err := m.generatePlistContent(execPath)
	if err != nil {
		return fmt.Errorf("generate plist content: %w", err)
	}

	if err := os.WriteFile(m.plistPath, content, 0644); err != nil {
		return err
	}

	return m.load()
}

// Uninstall unloads and removes the plist.
func (m *LaunchdManagerImpl) Uninstall() error {
	// Unload first (ignore errors if not loaded)
	_ = m.unload()
	return os.Remove(m.plistPath)
}

// IsInstalled checks if plist is installed.
func (m *LaunchdManagerImpl) IsInstalled() bool {
	_, err := os.Stat(m.plistPath)
	return err == nil
}

// NeedsUpdate checks if plist exists but has different content than expected.
func (m *LaunchdManagerImpl) NeedsUpdate(execPath string) bool {
	if !m.IsInstalled() {
		return false // Doesn't exist, needs install not update
	}

	currentContent, err := os.ReadFile(m.plistPath)
	if err != nil {
		return true
	}

	expectedContent, err := m.generatePlistContent(execPath)
	if err != nil {
		return true
	}

	return !bytes.Equal(currentContent, expectedContent)
}

// Update unloads, updates plist content, and reloads.
func (m *LaunchdManagerImpl) Update(execPath string) error {
	_ = m.unload()

	content, err := m.generatePlistContent(execPath)
	if err != nil {
		return fmt.Errorf("generate plist content: %w", err)
	}

	if err := os.WriteFile(m.plistPath, content, 0644); err != nil {
		return err
	}

	return m.load()
}

// CleanupOtherMode removes the plist from the other mode's location if
// it exists, handling user<->system mode migration.
func (m *LaunchdManagerImpl) CleanupOtherMode() error {
	var otherPlist string
	if m.mode == ExecModeUser {
		otherPlist = "/Library/LaunchDaemons/" + LaunchdLabel + ".plist"
	} else {
		home := GetRealUserHome()
		otherPlist = filepath.Join(home, "Library/LaunchAgents", LaunchdLabel+".plist")
	}

	if _, err := os.Stat(otherPlist); os.IsNotExist(err) {
		return nil
	}

	_ = exec.Command("launchctl", "unload", otherPlist).Run()
	return os.Remove(otherPlist)
}

// GetPlistPath returns the plist file path.
func (m *LaunchdManagerImpl) GetPlistPath() string {
	return m.plistPath
}

// GetMode returns the current execution mode.
func (m *LaunchdManagerImpl) GetMode() ExecMode {
	return m.mode
}

// load loads the plist using launchctl. `launchctl load` is deprecated
// but still works; bootstrap would need domain juggling we don't need.
func (m *LaunchdManagerImpl) load() error {
	return exec.Command("launchctl", "load", m.plistPath).Run()
}

// unload unloads the plist using launchctl.
func (m *LaunchdManagerImpl) unload() error {
	return exec.Command("launchctl", "unload", m.plistPath).Run()
}

// Ensure LaunchdManagerImpl implements domain.LaunchAgentManager.
var _ domain.LaunchAgentManager = (*LaunchdManagerImpl)(nil)
