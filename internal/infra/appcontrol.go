package infra

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// CommandRunner abstracts command execution for testing
type CommandRunner interface {
	Run(name string, args ...string) error
	Output(name string, args ...string) ([]byte, error)
}

// RealCommandRunner executes real system commands
type RealCommandRunner struct{}

// Run executes a command and waits for it to complete
func (r *RealCommandRunner) Run(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// Output executes a command and returns its stdout
func (r *RealCommandRunner) Output(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

// FileChecker abstracts file system checks for testing
type FileChecker interface {
	Exists(path string) bool
}

// RealFileChecker checks real filesystem
type RealFileChecker struct{}

// Exists checks if a file/directory exists
func (r *RealFileChecker) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// AppLauncher starts applications through the OS launcher so a fresh
// instance comes up the way the user would have started it.
type AppLauncher struct {
	runner CommandRunner
	logger *zap.Logger
}

// NewAppLauncher creates a launcher using `open -a`.
func NewAppLauncher(logger *zap.Logger) *AppLauncher {
	return &AppLauncher{runner: &RealCommandRunner{}, logger: logger}
}

// NewAppLauncherWithRunner creates a launcher with an injectable runner (for testing).
func NewAppLauncherWithRunner(runner CommandRunner, logger *zap.Logger) *AppLauncher {
	return &AppLauncher{runner: runner, logger: logger}
}

// Launch starts the named application.
func (l *AppLauncher) Launch(appName string) error {
	if err := l.runner.Run("open", "-a", appName); err != nil {
		return fmt.Errorf("launch %s: %w", appName, err)
	}
	l.logger.Info("launched application", zap.String("app", appName))
	return nil
}

// PidHandle is a domain.AppHandle backed by a bare PID, used by the poll
// detector which only sees process enumerations. Suspension works through
// signals (SIGSTOP/SIGCONT), so the handle behaves the same on every
// Unix host the poll detector runs on. Foregrounding needs the OS
// launcher and is best effort.
type PidHandle struct {
	pid    int
	name   string
	pm     domain.ProcessManager
	runner CommandRunner
}

// NewPidHandle wraps a PID observed by the poll detector.
func NewPidHandle(pid int, name string, pm domain.ProcessManager, runner CommandRunner) *PidHandle {
	return &PidHandle{pid: pid, name: name, pm: pm, runner: runner}
}

func (h *PidHandle) PID() int     { return h.pid }
func (h *PidHandle) Name() string { return h.name }

// Hide suspends the process so it cannot react while the challenge runs.
func (h *PidHandle) Hide() error {
	if err := h.pm.Suspend(h.pid); err != nil {
		return fmt.Errorf("suspend pid %d: %w", h.pid, err)
	}
	return nil
}

// Unhide resumes the suspended process.
func (h *PidHandle) Unhide() error {
	if err := h.pm.Resume(h.pid); err != nil {
		return fmt.Errorf("resume pid %d: %w", h.pid, err)
	}
	return nil
}

// Activate resumes the process and asks the OS launcher to bring it to
// the foreground. The resume is the contract; foregrounding is cosmetic,
// so a missing launcher is not an error.
func (h *PidHandle) Activate() error {
	if err := h.pm.Resume(h.pid); err != nil {
		return fmt.Errorf("resume pid %d: %w", h.pid, err)
	}
	if h.runner != nil && h.name != "" {
		_ = h.runner.Run("open", "-a", h.name)
	}
	return nil
}

// Terminate requests a graceful quit.
func (h *PidHandle) Terminate() error {
	return h.pm.Terminate(h.pid)
}

// ForceTerminate kills without cleanup.
func (h *PidHandle) ForceTerminate() error {
	err := h.pm.Kill(h.pid)
	if err != nil && strings.Contains(err.Error(), "process does not exist") {
		return nil
	}
	return err
}

// IsTerminated checks process liveness.
func (h *PidHandle) IsTerminated() bool {
	return !h.pm.IsRunning(h.pid)
}

// Ensure PidHandle implements domain.AppHandle.
var _ domain.AppHandle = (*PidHandle)(nil)
