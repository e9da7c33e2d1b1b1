package policy

import (
	"fmt"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// RestoreName selects RestorePolicy in config.
const RestoreName = domain.RecoveryRestore

// RestorePolicy keeps the running instance alive across the challenge:
// hidden while the prompt is up, unhidden and refocused on success.
// Unsaved state inside the app survives.
type RestorePolicy struct{}

// NewRestorePolicy creates the keep-alive recovery policy.
func NewRestorePolicy() *RestorePolicy {
	return &RestorePolicy{}
}

func (p *RestorePolicy) Name() string {
	return RestoreName
}

// Suspend hides the app so the user cannot interact with it while the
// challenge is pending.
func (p *RestorePolicy) Suspend(h domain.AppHandle) error {
	if h.IsTerminated() {
		return nil
	}
	if err := h.Hide(); err != nil {
		return fmt.Errorf("hide %s: %w", h.Name(), err)
	}
	return nil
}

// Restore unhides and refocuses the instance. A no-op when the user
// quit the app while the challenge was up.
func (p *RestorePolicy) Restore(h domain.AppHandle) error {
	if h.IsTerminated() {
		return nil
	}
	if err := h.Unhide(); err != nil {
		return fmt.Errorf("unhide %s: %w", h.Name(), err)
	}
	if err := h.Activate(); err != nil {
		return fmt.Errorf("activate %s: %w", h.Name(), err)
	}
	return nil
}

// Ensure RestorePolicy implements domain.RecoveryPolicy.
var _ domain.RecoveryPolicy = (*RestorePolicy)(nil)
