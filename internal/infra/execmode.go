package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the execution mode of the application.
type ExecMode string

const (
	// ExecModeUser runs as user with LaunchAgent (no sudo required)
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root with LaunchDaemon (sudo required)
	ExecModeSystem ExecMode = "system"
)

// LaunchdLabel is the launchd job label. It is deliberately stable and
// findable so a user can always `launchctl unload` the agent.
const LaunchdLabel = "com.elitegoblin.applockd"

// ExecModeConfig holds paths and settings based on execution mode.
type ExecModeConfig struct {
	Mode       ExecMode
	BinaryPath string // Where the binary should be installed
	PlistDir   string // Where the plist file goes
	PlistPath  string // Full path to plist file
	DataDir    string // Where the config, key and credential store live
	IsRoot     bool   // Whether running as root
}

// ConfigPath returns the config file path inside the data directory.
func (c *ExecModeConfig) ConfigPath() string {
	return filepath.Join(c.DataDir, "config.toml")
}

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	isRoot := os.Geteuid() == 0
	home, _ := os.UserHomeDir()

	if isRoot {
		return &ExecModeConfig{
			Mode:       ExecModeSystem,
			BinaryPath: "/usr/local/bin/applockd",
			PlistDir:   "/Library/LaunchDaemons",
			PlistPath:  "/Library/LaunchDaemons/" + LaunchdLabel + ".plist",
			DataDir:    "/var/lib/applockd",
			IsRoot:     true,
		}
	}

	return &ExecModeConfig{
		Mode:       ExecModeUser,
		BinaryPath: filepath.Join(home, ".local", "bin", "applockd"),
		PlistDir:   filepath.Join(home, "Library", "LaunchAgents"),
		PlistPath:  filepath.Join(home, "Library", "LaunchAgents", LaunchdLabel+".plist"),
		DataDir:    filepath.Join(home, ".applockd"),
		IsRoot:     false,
	}
}

// GetUserModeConfig returns user mode config regardless of current euid.
// When running under sudo, uses SUDO_USER to find the invoking user's
// home directory.
func GetUserModeConfig() *ExecModeConfig {
	home := GetRealUserHome()
	return &ExecModeConfig{
		Mode:       ExecModeUser,
		BinaryPath: filepath.Join(home, ".local", "bin", "applockd"),
		PlistDir:   filepath.Join(home, "Library", "LaunchAgents"),
		PlistPath:  filepath.Join(home, "Library", "LaunchAgents", LaunchdLabel+".plist"),
		DataDir:    filepath.Join(home, ".applockd"),
		IsRoot:     os.Geteuid() == 0,
	}
}

// GetRealUserHome returns the real user's home directory, even when
// running under sudo (os.UserHomeDir would report /var/root).
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (LaunchDaemon, root)"
	case ExecModeUser:
		return "user (LaunchAgent, non-root)"
	default:
		return "unknown"
	}
}
