package infra

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// ChainAuthenticator tries its backends in order and hands the
// challenge to the first one that is available. No available backend
// means Unavailable, which the locker treats as a failed challenge.
type ChainAuthenticator struct {
	backends []domain.Authenticator
	logger   *zap.Logger
}

// NewChainAuthenticator creates the "auto" authenticator.
func NewChainAuthenticator(logger *zap.Logger, backends ...domain.Authenticator) *ChainAuthenticator {
	return &ChainAuthenticator{backends: backends, logger: logger}
}

func (a *ChainAuthenticator) Name() string { return "auto" }

// Available reports whether any backend can evaluate challenges.
func (a *ChainAuthenticator) Available() bool {
	for _, b := range a.backends {
		if b.Available() {
			return true
		}
	}
	return false
}

// Challenge dispatches to the first available backend.
func (a *ChainAuthenticator) Challenge(ctx context.Context, reason string) domain.ChallengeResult {
	for _, b := range a.backends {
		if !b.Available() {
			continue
		}
		a.logger.Debug("dispatching challenge", zap.String("backend", b.Name()))
		return b.Challenge(ctx, reason)
	}

	return domain.ChallengeResult{
		Verdict: domain.ChallengeUnavailable,
		Cause:   "no authentication backend available",
	}
}

// Ensure ChainAuthenticator implements domain.Authenticator.
var _ domain.Authenticator = (*ChainAuthenticator)(nil)
