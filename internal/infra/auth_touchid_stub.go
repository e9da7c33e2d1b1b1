//go:build !darwin

package infra

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// TouchIDAuthenticator exists only on darwin; elsewhere every challenge
// is Unavailable so the chain falls through to the password backend.
type TouchIDAuthenticator struct {
	logger *zap.Logger
}

// NewTouchIDAuthenticator creates the stub authenticator.
func NewTouchIDAuthenticator(logger *zap.Logger) *TouchIDAuthenticator {
	return &TouchIDAuthenticator{logger: logger}
}

func (a *TouchIDAuthenticator) Name() string { return "touchid" }

func (a *TouchIDAuthenticator) Available() bool { return false }

func (a *TouchIDAuthenticator) Challenge(ctx context.Context, reason string) domain.ChallengeResult {
	return domain.ChallengeResult{
		Verdict: domain.ChallengeUnavailable,
		Cause:   "local authentication not supported on this platform",
	}
}

// Ensure TouchIDAuthenticator implements domain.Authenticator.
var _ domain.Authenticator = (*TouchIDAuthenticator)(nil)
