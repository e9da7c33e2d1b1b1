//go:build darwin

package infra

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Foundation -framework LocalAuthentication

#include <stdlib.h>
#include <LocalAuthentication/LocalAuthentication.h>

// Blocking device-owner check. evaluatePolicy resolves on a private
// queue; a dispatch semaphore turns it into a synchronous call so the
// Go side can wrap it in a goroutine and race it against its context.

static int applock_touchidAvailable(void) {
	@autoreleasepool {
		LAContext* context = [[LAContext alloc] init];
		NSError* error = nil;
		BOOL ok = [context canEvaluatePolicy:LAPolicyDeviceOwnerAuthentication
		                               error:&error];
		return ok ? 1 : 0;
	}
}

// Returns 1 on success, 0 on user failure/cancel, -1 when the policy
// cannot be evaluated at all.
static int applock_touchidChallenge(const char* reason) {
	@autoreleasepool {
		LAContext* context = [[LAContext alloc] init];
		NSError* availError = nil;
		if (![context canEvaluatePolicy:LAPolicyDeviceOwnerAuthentication
		                          error:&availError]) {
			return -1;
		}

		NSString* nsReason = [NSString stringWithUTF8String:reason];
		dispatch_semaphore_t sema = dispatch_semaphore_create(0);
		__block int outcome = 0;

		[context evaluatePolicy:LAPolicyDeviceOwnerAuthentication
		        localizedReason:nsReason
		                  reply:^(BOOL success, NSError* error) {
			outcome = success ? 1 : 0;
			dispatch_semaphore_signal(sema);
		}];

		dispatch_semaphore_wait(sema, DISPATCH_TIME_FOREVER);
		return outcome;
	}
}
*/
import "C"

import (
	"context"
	"unsafe"

	"go.uber.org/zap"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// TouchIDAuthenticator challenges through the device-owner policy
// (Touch ID, Apple Watch, or the account password as macOS decides).
type TouchIDAuthenticator struct {
	logger *zap.Logger
}

// NewTouchIDAuthenticator creates the biometric authenticator.
func NewTouchIDAuthenticator(logger *zap.Logger) *TouchIDAuthenticator {
	return &TouchIDAuthenticator{logger: logger}
}

func (a *TouchIDAuthenticator) Name() string { return "touchid" }

// Available reports whether the device-owner policy can be evaluated.
func (a *TouchIDAuthenticator) Available() bool {
	return C.applock_touchidAvailable() == 1
}

// Challenge runs the system authentication prompt. The C call blocks
// until the user responds; ctx expiry is handled by the caller racing
// this result, so a late answer is simply discarded.
func (a *TouchIDAuthenticator) Challenge(ctx context.Context, reason string) domain.ChallengeResult {
	cReason := C.CString(reason)
	defer C.free(unsafe.Pointer(cReason))

	resultCh := make(chan int, 1)
	go func() {
		resultCh <- int(C.applock_touchidChallenge(cReason))
	}()

	select {
	case outcome := <-resultCh:
		switch outcome {
		case 1:
			return domain.ChallengeResult{Verdict: domain.ChallengeSuccess}
		case -1:
			return domain.ChallengeResult{
				Verdict: domain.ChallengeUnavailable,
				Cause:   "device owner authentication cannot be evaluated",
			}
		default:
			return domain.ChallengeResult{
				Verdict: domain.ChallengeFailure,
				Cause:   "authentication failed or cancelled",
			}
		}
	case <-ctx.Done():
		a.logger.Warn("touch id challenge abandoned", zap.Error(ctx.Err()))
		return domain.ChallengeResult{
			Verdict: domain.ChallengeFailure,
			Cause:   "challenge timed out",
		}
	}
}

// Ensure TouchIDAuthenticator implements domain.Authenticator.
var _ domain.Authenticator = (*TouchIDAuthenticator)(nil)
