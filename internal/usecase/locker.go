// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// session tracks one protected application instance.
// lastAuthenticatedAt zero means "must authenticate on next activation".
type session struct {
	entry               string
	appName             string
	pid                 int
	handle              domain.AppHandle
	lastAuthenticatedAt time.Time
	authInFlight        bool

	// expectRelaunch marks a session whose instance we killed and will
	// respawn after a passed challenge. The next instance of this entry
	// adopts the grace instead of resetting it, otherwise the relaunch
	// policy would kill its own respawn forever.
	expectRelaunch bool
}

// LockerImpl implements domain.Locker. One instance serves both detector
// strategies: the push pump calls HandleEvent sequentially, the poll pump
// calls it from overlapping goroutines, so all session state lives behind
// one mutex. The mutex is never held across the authenticator call; the
// challengePending guard is what keeps challenges serialized.
type LockerImpl struct {
	auth      domain.Authenticator
	recovery  domain.RecoveryPolicy
	presenter domain.Presenter
	processes domain.ProcessManager
	clock     domain.Clock
	logger    *zap.Logger

	mu               sync.Mutex
	targets          domain.TargetSet
	sessions         map[string]*session
	challengePending bool
	grace            time.Duration
	challengeTimeout time.Duration

	challengeWG sync.WaitGroup
}

// NewLocker creates the lock state controller.
func NewLocker(
	auth domain.Authenticator,
	recovery domain.RecoveryPolicy,
	presenter domain.Presenter,
	pm domain.ProcessManager,
	clock domain.Clock,
	logger *zap.Logger,
) *LockerImpl {
	return &LockerImpl{
		auth:             auth,
		recovery:         recovery,
		presenter:        presenter,
		processes:        pm,
		clock:            clock,
		logger:           logger,
		sessions:         make(map[string]*session),
		grace:            60 * time.Second,
		challengeTimeout: 60 * time.Second,
	}
}

// UpdateTargets swaps the protected set. Sessions whose entry left the
// set stay in the map but stop being checked; sessions for entries still
// present keep their grace across the reload.
func (l *LockerImpl) UpdateTargets(set domain.TargetSet) {
	l.mu.Lock()
	l.targets = set
	l.mu.Unlock()

	l.logger.Info("targets updated",
		zap.Int("count", len(set.Entries)),
		zap.String("mode", string(set.Mode)))
}

// UpdateTimings swaps the grace window and challenge ceiling. An in-flight
// challenge keeps the ceiling it started with.
func (l *LockerImpl) UpdateTimings(grace, challengeTimeout time.Duration) {
	l.mu.Lock()
	l.grace = grace
	l.challengeTimeout = challengeTimeout
	l.mu.Unlock()
}

// HandleEvent processes one lifecycle transition. For Activated events
// that claim the challenge guard, the call blocks until the challenge
// resolves; all other paths return quickly.
func (l *LockerImpl) HandleEvent(ctx context.Context, ev domain.WatchEvent) {
	switch ev.Kind {
	case domain.EventLaunched:
		l.handleLaunched(ev)
	case domain.EventTerminated:
		l.handleTerminated(ev)
	case domain.EventActivated:
		l.handleActivated(ctx, ev)
	}
}

// handleLaunched creates or resets the session for a matching target.
// A brand-new instance must always authenticate once, so any prior grace
// is discarded, except for the instance we respawned ourselves.
func (l *LockerImpl) handleLaunched(ev domain.WatchEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.targets.Match(ev.Identifier)
	if !ok {
		return
	}

	if s, tracked := l.sessions[entry]; tracked && s.expectRelaunch {
		s.expectRelaunch = false
		s.appName = ev.Identifier
		s.pid = ev.PID
		s.handle = ev.Handle
		l.logger.Debug("adopted relaunched instance",
			zap.String("app", ev.Identifier),
			zap.Int("pid", ev.PID))
		return
	}

	l.sessions[entry] = &session{
		entry:   entry,
		appName: ev.Identifier,
		pid:     ev.PID,
		handle:  ev.Handle,
	}
	l.logger.Info("tracking launched target",
		zap.String("app", ev.Identifier),
		zap.Int("pid", ev.PID))
}

// handleTerminated discards the session so the next open re-challenges.
// A session mid-challenge is left alone; the completion path reads the
// handle's terminated state and skips the restore.
func (l *LockerImpl) handleTerminated(ev domain.WatchEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.targets.Match(ev.Identifier)
	if !ok {
		return
	}
	s, tracked := l.sessions[entry]
	if !tracked || s.authInFlight || s.expectRelaunch {
		return
	}
	// Stale terminate for an instance we no longer track.
	if ev.PID != 0 && s.pid != 0 && ev.PID != s.pid {
		return
	}

	delete(l.sessions, entry)
	l.logger.Info("target terminated, authentication cleared",
		zap.String("app", ev.Identifier),
		zap.Int("pid", ev.PID))
}

// handleActivated is the challenge decision point.
func (l *LockerImpl) handleActivated(ctx context.Context, ev domain.WatchEvent) {
	l.mu.Lock()

	entry, ok := l.targets.Match(ev.Identifier)
	if !ok {
		l.mu.Unlock()
		return
	}

	s, tracked := l.sessions[entry]
	if !tracked {
		s = &session{entry: entry, appName: ev.Identifier, pid: ev.PID, handle: ev.Handle}
		l.sessions[entry] = s
	} else {
		if s.expectRelaunch {
			// The respawned instance showed up without a launch event.
			s.expectRelaunch = false
			s.pid = ev.PID
		} else if ev.PID != 0 && s.pid != 0 && ev.PID != s.pid {
			// Same name, new pid: a fresh instance must authenticate.
			s.lastAuthenticatedAt = time.Time{}
			s.pid = ev.PID
		} else if ev.PID != 0 {
			s.pid = ev.PID
		}
		if ev.Handle != nil {
			s.handle = ev.Handle
		}
		if ev.Identifier != "" {
			s.appName = ev.Identifier
		}
	}

	// Grace fast path.
	if !s.lastAuthenticatedAt.IsZero() && l.clock.Since(s.lastAuthenticatedAt) < l.grace {
		l.mu.Unlock()
		return
	}

	if s.authInFlight {
		l.mu.Unlock()
		return
	}

	// One challenge at a time, process-wide. A dropped activation is
	// re-challenged on the next activation once the guard frees up.
	if l.challengePending {
		l.mu.Unlock()
		l.logger.Debug("challenge pending, dropping activation",
			zap.String("app", ev.Identifier))
		return
	}

	l.challengePending = true
	s.authInFlight = true
	l.challengeWG.Add(1)
	handle := s.handle
	appName := s.appName
	timeout := l.challengeTimeout
	l.mu.Unlock()

	l.runChallenge(ctx, s, handle, appName, timeout)
}

// runChallenge owns the guard: suspend, prompt, then branch on the
// verdict. finalize releases the guard on every path.
func (l *LockerImpl) runChallenge(ctx context.Context, s *session, handle domain.AppHandle, appName string, timeout time.Duration) {
	defer l.challengeWG.Done()

	logger := l.logger.With(
		zap.String("challenge_id", uuid.NewString()),
		zap.String("app", appName))

	logger.Info("challenge starting",
		zap.String("authenticator", l.auth.Name()),
		zap.String("recovery", l.recovery.Name()),
		zap.Duration("timeout", timeout))

	if err := l.recovery.Suspend(handle); err != nil {
		logger.Warn("suspend failed", zap.Error(err))
	}
	if err := l.presenter.ShowLocked(appName); err != nil {
		logger.Debug("lock notice failed", zap.Error(err))
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	result := l.awaitChallenge(cctx, fmt.Sprintf("unlock %s", appName))
	cancel()

	if err := l.presenter.ClearLocked(appName); err != nil {
		logger.Debug("clearing lock notice failed", zap.Error(err))
	}

	l.finalize(s, handle, result, logger)
}

// awaitChallenge runs the authenticator with a bounded wait. The ctx
// deadline is enforced on both sides: passed down for backends that honor
// it, and raced against here for backends that do not.
func (l *LockerImpl) awaitChallenge(ctx context.Context, reason string) domain.ChallengeResult {
	resultCh := make(chan domain.ChallengeResult, 1)
	go func() {
		resultCh <- l.auth.Challenge(ctx, reason)
	}()

	select {
	case res := <-resultCh:
		return res
	case <-ctx.Done():
		return domain.ChallengeResult{
			Verdict: domain.ChallengeFailure,
			Cause:   "challenge timed out",
		}
	}
}

// finalize applies the verdict and releases the guard. Unavailable and
// timeout count as failure: the target never gets through unchallenged.
func (l *LockerImpl) finalize(s *session, handle domain.AppHandle, result domain.ChallengeResult, logger *zap.Logger) {
	l.mu.Lock()

	s.authInFlight = false
	l.challengePending = false

	if result.Succeeded() {
		s.lastAuthenticatedAt = l.clock.Now()
		if l.recovery.Name() == domain.RecoveryRelaunch {
			// Suspend killed the instance; the respawn below inherits
			// this grace when it shows up.
			s.expectRelaunch = true
			s.pid = 0
		}
		l.mu.Unlock()

		logger.Info("challenge passed")
		if err := l.recovery.Restore(handle); err != nil {
			logger.Warn("restore failed", zap.Error(err))
		}
		return
	}

	if l.sessions[s.entry] == s {
		delete(l.sessions, s.entry)
	}
	l.mu.Unlock()

	logger.Warn("challenge failed, terminating target",
		zap.String("verdict", string(result.Verdict)),
		zap.String("cause", result.Cause))

	if handle != nil && !handle.IsTerminated() {
		if err := handle.ForceTerminate(); err != nil {
			logger.Warn("force terminate failed", zap.Error(err))
		}
	}
}

// Sweep drops sessions whose process died without a terminate event
// (dropped detector events, crashed apps). Sessions mid-challenge are
// left alone.
func (l *LockerImpl) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for entry, s := range l.sessions {
		if s.authInFlight {
			continue
		}
		if s.expectRelaunch {
			// The respawn never arrived; drop once its grace is spent.
			if l.clock.Since(s.lastAuthenticatedAt) >= l.grace {
				delete(l.sessions, entry)
				l.logger.Debug("swept session, relaunch never arrived",
					zap.String("app", s.appName))
			}
			continue
		}
		if s.pid > 0 && !l.processes.IsRunning(s.pid) {
			delete(l.sessions, entry)
			l.logger.Debug("swept dead session",
				zap.String("app", s.appName),
				zap.Int("pid", s.pid))
		}
	}
}

// TrackedCount returns the number of live sessions.
func (l *LockerImpl) TrackedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

// Shutdown waits for an in-flight challenge to finish so the user's
// answer is not thrown away mid-prompt.
func (l *LockerImpl) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.challengeWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ensure LockerImpl implements domain.Locker.
var _ domain.Locker = (*LockerImpl)(nil)
