//go:build darwin

package infra

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Foundation -framework AppKit

#include <AppKit/AppKit.h>
#include <pthread.h>
#include <unistd.h>

// Lifecycle observation via NSWorkspace notifications. The observer runs
// on a dedicated pthread with its own CFRunLoop; events cross into Go
// through exported callbacks that do non-blocking channel sends.

static volatile int applockMonitorRunning = 0;
static volatile int applockCallbacksEnabled = 0;
static pthread_t applockMonitorThread;
static CFRunLoopRef applockMonitorRunLoop = NULL;

// Defined with //export in the Go code.
void applockLifecycleCallback(char* appName, int pid, int eventType);

enum {
	applockEventLaunched   = 0,
	applockEventActivated  = 1,
	applockEventTerminated = 2,
};

static void notifyLifecycle(const char* appName, int pid, int eventType) {
	if (applockCallbacksEnabled) {
		applockLifecycleCallback((char*)appName, pid, eventType);
	}
}

@interface ApplockLifecycleObserver : NSObject
+ (instancetype)sharedObserver;
- (void)startObserving;
- (void)stopObserving;
@end

static ApplockLifecycleObserver* applockSharedObserver = nil;

@implementation ApplockLifecycleObserver

+ (instancetype)sharedObserver {
	static dispatch_once_t onceToken;
	dispatch_once(&onceToken, ^{
		applockSharedObserver = [[ApplockLifecycleObserver alloc] init];
	});
	return applockSharedObserver;
}

- (void)startObserving {
	NSNotificationCenter* center = [[NSWorkspace sharedWorkspace] notificationCenter];

	[center addObserver:self
	           selector:@selector(appLaunched:)
	               name:NSWorkspaceDidLaunchApplicationNotification
	             object:nil];

	[center addObserver:self
	           selector:@selector(appActivated:)
	               name:NSWorkspaceDidActivateApplicationNotification
	             object:nil];

	[center addObserver:self
	           selector:@selector(appTerminated:)
	               name:NSWorkspaceDidTerminateApplicationNotification
	             object:nil];
}

- (void)stopObserving {
	[[[NSWorkspace sharedWorkspace] notificationCenter] removeObserver:self];
}

- (void)forward:(NSNotification*)notification as:(int)eventType {
	if (!applockCallbacksEnabled) return;

	@autoreleasepool {
		NSRunningApplication* app = [notification userInfo][NSWorkspaceApplicationKey];
		if (!app) return;

		const char* name = app.localizedName ? [app.localizedName UTF8String] : "";
		notifyLifecycle(name, (int)app.processIdentifier, eventType);
	}
}

- (void)appLaunched:(NSNotification*)notification {
	[self forward:notification as:applockEventLaunched];
}

- (void)appActivated:(NSNotification*)notification {
	[self forward:notification as:applockEventActivated];
}

- (void)appTerminated:(NSNotification*)notification {
	[self forward:notification as:applockEventTerminated];
}

@end

static void* applockMonitorThreadFunc(void* arg) {
	(void)arg;

	@autoreleasepool {
		applockMonitorRunLoop = CFRunLoopGetCurrent();

		[[ApplockLifecycleObserver sharedObserver] startObserving];

		applockMonitorRunning = 1;

		CFRunLoopRun();

		[[ApplockLifecycleObserver sharedObserver] stopObserving];

		applockMonitorRunning = 0;
		applockMonitorRunLoop = NULL;
	}

	return NULL;
}

static void applock_setCallbacks(void) {
	applockCallbacksEnabled = 1;
}

static int applock_startMonitoring(void) {
	if (applockMonitorRunning) return 1;

	if (pthread_create(&applockMonitorThread, NULL, applockMonitorThreadFunc, NULL) != 0) {
		return -1;
	}

	// Wait for startup.
	for (int i = 0; i < 100 && !applockMonitorRunning; i++) {
		usleep(10000);
	}

	return applockMonitorRunning ? 0 : -2;
}

static void applock_stopMonitoring(void) {
	if (!applockMonitorRunning) return;

	applockCallbacksEnabled = 0;
	applockMonitorRunning = 0;

	if (applockMonitorRunLoop) {
		CFRunLoopStop(applockMonitorRunLoop);
	}

	pthread_join(applockMonitorThread, NULL);
}
*/
import "C"

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// pushEventBuffer sizes the push detector channel. The callback thread
// never blocks; overflow is dropped and the next activation retries.
const pushEventBuffer = 100

var (
	pushDetectorMu      sync.RWMutex
	currentPushDetector *PushDetector
)

// PushDetector implements domain.Detector via NSWorkspace lifecycle
// notifications. Only one instance can observe at a time; the observer
// is process-global OS state.
type PushDetector struct {
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	events  chan domain.WatchEvent
}

// NewPushDetector creates the workspace-notification detector.
func NewPushDetector(logger *zap.Logger) (domain.Detector, error) {
	return &PushDetector{
		logger: logger,
		events: make(chan domain.WatchEvent, pushEventBuffer),
	}, nil
}

// Start spawns the observer run-loop thread.
func (d *PushDetector) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}

	pushDetectorMu.Lock()
	currentPushDetector = d
	pushDetectorMu.Unlock()

	C.applock_setCallbacks()
	if result := C.applock_startMonitoring(); result < 0 {
		pushDetectorMu.Lock()
		currentPushDetector = nil
		pushDetectorMu.Unlock()
		return fmt.Errorf("workspace observer failed to start (code %d)", int(result))
	}

	d.running = true
	d.logger.Info("push detector started, observing workspace notifications")
	return nil
}

// Events returns the transition stream.
func (d *PushDetector) Events() <-chan domain.WatchEvent {
	return d.events
}

// Stop tears down the run loop and closes the event channel.
func (d *PushDetector) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	d.running = false

	C.applock_stopMonitoring()

	pushDetectorMu.Lock()
	currentPushDetector = nil
	pushDetectorMu.Unlock()

	close(d.events)
	return nil
}

// deliver is called from the exported C callback.
func (d *PushDetector) deliver(ev domain.WatchEvent) {
	select {
	case d.events <- ev:
	default:
		d.logger.Debug("event channel full, dropping",
			zap.String("kind", string(ev.Kind)),
			zap.String("app", ev.Identifier))
	}
}

// Ensure PushDetector implements domain.Detector.
var _ domain.Detector = (*PushDetector)(nil)
