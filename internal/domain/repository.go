package domain

import (
	"context"
	"time"
)

// Detector observes application lifecycle transitions and publishes them
// on Events. Implementations: push (OS workspace notifications) and
// poll (periodic process enumeration).
type Detector interface {
	// Start begins observation. Non-blocking; events flow until Stop.
	Start(ctx context.Context) error

	// Events returns the transition stream. Closed by Stop.
	Events() <-chan WatchEvent

	// Stop tears down OS resources and closes the event channel.
	Stop() error
}

// Authenticator evaluates one ownership challenge.
// Challenge blocks until the user responds, the backend errors out, or
// ctx expires; it never fails open.
type Authenticator interface {
	// Name identifies the backend (e.g. "touchid", "password").
	Name() string

	// Available reports whether the backend can evaluate challenges now.
	Available() bool

	// Challenge prompts the user with the given reason and returns the verdict.
	Challenge(ctx context.Context, reason string) ChallengeResult
}

// AppHandle is a live reference to one running application instance.
// Push detectors back it with an OS application object; poll detectors
// back it with a bare PID. All methods tolerate the process being gone.
type AppHandle interface {
	// PID returns the process ID, or 0 if unknown.
	PID() int

	// Name returns the application display or process name.
	Name() string

	// Hide makes the app invisible without stopping it.
	Hide() error

	// Unhide reverses Hide.
	Unhide() error

	// Activate brings the app to the foreground.
	Activate() error

	// Terminate requests a graceful quit.
	Terminate() error

	// ForceTerminate kills without cleanup.
	ForceTerminate() error

	// IsTerminated checks if the process already exited.
	IsTerminated() bool
}

// RecoveryPolicy decides what happens to a locked app around a challenge:
// Suspend puts it out of reach before the prompt, Restore brings it back
// after success. Failure paths never call Restore.
type RecoveryPolicy interface {
	// Name returns the policy name (e.g. "restore", "relaunch").
	Name() string

	// Suspend removes the app from the user's reach.
	Suspend(h AppHandle) error

	// Restore returns the app to the user after a passed challenge.
	Restore(h AppHandle) error
}

// Locker consumes detector events and drives authentication challenges.
// Safe for concurrent use; the poll strategy invokes HandleEvent from
// overlapping detection cycles.
type Locker interface {
	// HandleEvent processes one lifecycle transition. Blocks only while
	// this call itself runs a challenge.
	HandleEvent(ctx context.Context, ev WatchEvent)

	// UpdateTargets swaps the protected set. Existing session state is
	// kept; entries no longer in the set simply stop being checked.
	UpdateTargets(set TargetSet)

	// UpdateTimings swaps the grace window and challenge ceiling.
	UpdateTimings(grace, challengeTimeout time.Duration)

	// Sweep drops sessions whose process died without a terminate event.
	Sweep()

	// TrackedCount returns the number of live sessions (for heartbeat).
	TrackedCount() int

	// Shutdown waits for an in-flight challenge to finish, up to ctx.
	Shutdown(ctx context.Context) error
}

// Presenter surfaces lock state to the user outside the challenge dialog
// itself. Best effort: failures never affect the lock decision.
type Presenter interface {
	// ShowLocked announces that the app was locked.
	ShowLocked(appName string) error

	// ClearLocked withdraws the lock announcement after unlock.
	ClearLocked(appName string) error
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// Processes returns a snapshot of visible processes as pid -> name.
	Processes() (map[int]string, error)

	// Terminate requests a graceful stop (SIGTERM).
	Terminate(pid int) error

	// Kill terminates a process by PID (SIGKILL).
	Kill(pid int) error

	// Suspend stops a process without killing it (SIGSTOP).
	Suspend(pid int) error

	// Resume reverses Suspend (SIGCONT).
	Resume(pid int) error

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// FileSystemManager handles filesystem operations.
type FileSystemManager interface {
	// Exists checks if a path exists.
	Exists(path string) bool

	// Delete removes a file or directory recursively.
	Delete(path string) error

	// ExpandHome expands ~ to the user's home directory.
	ExpandHome(path string) string
}

// DaemonRegistry provides daemon discovery for CLI commands.
// Implementation: JSON file in /var/tmp/ guarded by flock.
type DaemonRegistry interface {
	// Register saves the daemon's PID and metadata.
	Register(daemon Daemon) error

	// Lookup returns the registered daemon, or nil if none.
	Lookup() (*RegistryEntry, error)

	// UpdateHeartbeat refreshes the liveness timestamp.
	UpdateHeartbeat(pid int) error

	// Unregister removes the entry if it belongs to pid.
	Unregister(pid int) error

	// GetRegistryPath returns the registry file path (for tests).
	GetRegistryPath() string
}

// LaunchAgentManager handles macOS LaunchAgent plist operations.
type LaunchAgentManager interface {
	// Install creates and loads the LaunchAgent plist.
	Install(execPath string) error

	// Uninstall unloads and removes the LaunchAgent plist.
	Uninstall() error

	// IsInstalled checks if LaunchAgent is installed.
	IsInstalled() bool

	// GetPlistPath returns the plist file path.
	GetPlistPath() string

	// NeedsUpdate checks if plist exists but has different content than expected.
	NeedsUpdate(execPath string) bool

	// Update unloads, updates plist content, and reloads.
	Update(execPath string) error

	// CleanupOtherMode removes plist from the other mode location if exists.
	CleanupOtherMode() error
}

// KeyProvider abstracts the source of encryption keys for the secret store.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// SecretStore provides encrypted persistent storage for secrets
// (password hashes, install metadata).
type SecretStore interface {
	// GetSecret retrieves a secret by key.
	GetSecret(key string) (string, error)

	// SetSecret stores a secret.
	SetSecret(key, value string) error

	// DeleteSecret removes a secret by key.
	DeleteSecret(key string) error

	// Close releases resources (e.g., database connection).
	Close() error
}
