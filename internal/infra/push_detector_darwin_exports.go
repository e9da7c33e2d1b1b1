//go:build darwin

package infra

/*
#include <stdlib.h>
*/
import "C"

import (
	"github.com/eliteGoblin/applockd/internal/domain"
)

//export applockLifecycleCallback
func applockLifecycleCallback(appName *C.char, pid C.int, eventType C.int) {
	pushDetectorMu.RLock()
	d := currentPushDetector
	pushDetectorMu.RUnlock()

	if d == nil {
		return
	}

	var kind domain.EventKind
	switch eventType {
	case 0:
		kind = domain.EventLaunched
	case 1:
		kind = domain.EventActivated
	case 2:
		kind = domain.EventTerminated
	default:
		return
	}

	name := C.GoString(appName)
	d.deliver(domain.WatchEvent{
		Kind:       kind,
		Identifier: name,
		PID:        int(pid),
		Handle:     NewDarwinAppHandle(int(pid), name),
	})
}
