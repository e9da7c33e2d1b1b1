//go:build darwin

package infra

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Foundation -framework AppKit

#include <AppKit/AppKit.h>

// Window-level process control through NSRunningApplication, looked up
// by pid on every call so a stale handle degrades to a no-op instead of
// acting on a recycled pid's app object.

static NSRunningApplication* applock_appForPid(int pid) {
	return [NSRunningApplication runningApplicationWithProcessIdentifier:(pid_t)pid];
}

static int applock_hideApp(int pid) {
	@autoreleasepool {
		NSRunningApplication* app = applock_appForPid(pid);
		if (!app) return -1;
		return [app hide] ? 0 : -2;
	}
}

static int applock_unhideApp(int pid) {
	@autoreleasepool {
		NSRunningApplication* app = applock_appForPid(pid);
		if (!app) return -1;
		return [app unhide] ? 0 : -2;
	}
}

static int applock_activateApp(int pid) {
	@autoreleasepool {
		NSRunningApplication* app = applock_appForPid(pid);
		if (!app) return -1;
		return [app activateWithOptions:NSApplicationActivateIgnoringOtherApps] ? 0 : -2;
	}
}

static int applock_terminateApp(int pid) {
	@autoreleasepool {
		NSRunningApplication* app = applock_appForPid(pid);
		if (!app) return -1;
		return [app terminate] ? 0 : -2;
	}
}

static int applock_forceTerminateApp(int pid) {
	@autoreleasepool {
		NSRunningApplication* app = applock_appForPid(pid);
		if (!app) return 0; // already gone
		return [app forceTerminate] ? 0 : -2;
	}
}

static int applock_isAppTerminated(int pid) {
	@autoreleasepool {
		NSRunningApplication* app = applock_appForPid(pid);
		if (!app) return 1;
		return [app isTerminated] ? 1 : 0;
	}
}
*/
import "C"

import (
	"fmt"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// DarwinAppHandle is a domain.AppHandle backed by NSRunningApplication,
// produced by the push detector. Hide/unhide work at the application
// level, which is what the restore recovery policy needs.
type DarwinAppHandle struct {
	pid  int
	name string
}

// NewDarwinAppHandle wraps a pid observed via workspace notifications.
func NewDarwinAppHandle(pid int, name string) *DarwinAppHandle {
	return &DarwinAppHandle{pid: pid, name: name}
}

func (h *DarwinAppHandle) PID() int     { return h.pid }
func (h *DarwinAppHandle) Name() string { return h.name }

// Hide makes the application invisible without stopping it.
func (h *DarwinAppHandle) Hide() error {
	if rc := C.applock_hideApp(C.int(h.pid)); rc < 0 {
		return fmt.Errorf("hide %s (pid %d): code %d", h.name, h.pid, int(rc))
	}
	return nil
}

// Unhide reverses Hide.
func (h *DarwinAppHandle) Unhide() error {
	if rc := C.applock_unhideApp(C.int(h.pid)); rc < 0 {
		return fmt.Errorf("unhide %s (pid %d): code %d", h.name, h.pid, int(rc))
	}
	return nil
}

// Activate brings the application to the foreground.
func (h *DarwinAppHandle) Activate() error {
	if rc := C.applock_activateApp(C.int(h.pid)); rc < 0 {
		return fmt.Errorf("activate %s (pid %d): code %d", h.name, h.pid, int(rc))
	}
	return nil
}

// Terminate requests a graceful quit.
func (h *DarwinAppHandle) Terminate() error {
	if rc := C.applock_terminateApp(C.int(h.pid)); rc < 0 {
		return fmt.Errorf("terminate %s (pid %d): code %d", h.name, h.pid, int(rc))
	}
	return nil
}

// ForceTerminate kills without cleanup. A vanished app is not an error.
func (h *DarwinAppHandle) ForceTerminate() error {
	if rc := C.applock_forceTerminateApp(C.int(h.pid)); rc < 0 {
		return fmt.Errorf("force terminate %s (pid %d): code %d", h.name, h.pid, int(rc))
	}
	return nil
}

// IsTerminated checks if the application already exited.
func (h *DarwinAppHandle) IsTerminated() bool {
	return C.applock_isAppTerminated(C.int(h.pid)) == 1
}

// Ensure DarwinAppHandle implements domain.AppHandle.
var _ domain.AppHandle = (*DarwinAppHandle)(nil)
