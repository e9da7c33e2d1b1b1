package daemon

import (
	"os/exec"
	"syscall"
)

// StartDaemon spawns the daemon process detached from the caller, so
// `applockd start` can return while the daemon keeps running.
func StartDaemon(binaryPath string) error {
	cmd := exec.Command(binaryPath, "daemon")

	// New session: survives the terminal closing.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	return cmd.Start()
}
