// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"os/exec"
	"syscall"
	"time"
)

// FakeApp is a disposable child process that stands in for a protected
// application. It runs `sleep`, so its process name is "sleep".
type FakeApp struct {
	cmd *exec.Cmd
}

// StartFakeApp spawns the child process.
func StartFakeApp() (*FakeApp, error) {
	cmd := exec.Command("sleep", "300")
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &FakeApp{cmd: cmd}, nil
}

// ProcessName returns the name the process shows up under.
func (f *FakeApp) ProcessName() string {
	return "sleep"
}

// PID returns the child's process ID.
func (f *FakeApp) PID() int {
	return f.cmd.Process.Pid
}

// Stop kills the child and reaps it.
func (f *FakeApp) Stop() error {
	if err := f.cmd.Process.Kill(); err != nil {
		return err
	}
	_, err := f.cmd.Process.Wait()
	return err
}

// Signal sends sig to the child.
func (f *FakeApp) Signal(sig syscall.Signal) error {
	return f.cmd.Process.Signal(sig)
}

// WaitGone blocks until the pid stops answering signal 0, or the timeout
// elapses.
func (f *FakeApp) WaitGone(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(f.PID(), 0); err != nil {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}
