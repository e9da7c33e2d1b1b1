package policy

import (
	"fmt"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// RelaunchName selects RelaunchPolicy in config.
const RelaunchName = domain.RecoveryRelaunch

// RelaunchPolicy kills the instance before the challenge and starts a
// fresh one on success. Harsher than RestorePolicy (unsaved state is
// lost) but nothing of the old session leaks past the lock.
type RelaunchPolicy struct {
	launcher Launcher
}

// NewRelaunchPolicy creates the kill-and-relaunch recovery policy.
func NewRelaunchPolicy(launcher Launcher) *RelaunchPolicy {
	return &RelaunchPolicy{launcher: launcher}
}

func (p *RelaunchPolicy) Name() string {
	return RelaunchName
}

// Suspend force-kills the instance up front. The challenge then decides
// whether a fresh one gets started.
func (p *RelaunchPolicy) Suspend(h domain.AppHandle) error {
	if h.IsTerminated() {
		return nil
	}
	if err := h.ForceTerminate(); err != nil {
		return fmt.Errorf("terminate %s: %w", h.Name(), err)
	}
	return nil
}

// Restore launches a fresh instance by name.
func (p *RelaunchPolicy) Restore(h domain.AppHandle) error {
	if err := p.launcher.Launch(h.Name()); err != nil {
		return fmt.Errorf("relaunch %s: %w", h.Name(), err)
	}
	return nil
}

// Ensure RelaunchPolicy implements domain.RecoveryPolicy.
var _ domain.RecoveryPolicy = (*RelaunchPolicy)(nil)
