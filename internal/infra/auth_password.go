package infra

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// SecretKeyPasswordHash is the credential-store key holding the bcrypt
// hash of the unlock password.
const SecretKeyPasswordHash = "password_hash"

// passwordAttempts is how many tries the dialog allows per challenge.
const passwordAttempts = 3

// PasswordAuthenticator challenges with a hidden-answer dialog and
// verifies against the bcrypt hash in the credential store.
type PasswordAuthenticator struct {
	secrets domain.SecretStore
	runner  CommandRunner
	logger  *zap.Logger
}

// NewPasswordAuthenticator creates the password-dialog authenticator.
func NewPasswordAuthenticator(secrets domain.SecretStore, logger *zap.Logger) *PasswordAuthenticator {
	return &PasswordAuthenticator{
		secrets: secrets,
		runner:  &RealCommandRunner{},
		logger:  logger,
	}
}

// NewPasswordAuthenticatorWithRunner injects a command runner (for testing).
func NewPasswordAuthenticatorWithRunner(secrets domain.SecretStore, runner CommandRunner, logger *zap.Logger) *PasswordAuthenticator {
	return &PasswordAuthenticator{secrets: secrets, runner: runner, logger: logger}
}

func (a *PasswordAuthenticator) Name() string { return "password" }

// Available reports whether an unlock password has been set.
func (a *PasswordAuthenticator) Available() bool {
	hash, err := a.secrets.GetSecret(SecretKeyPasswordHash)
	return err == nil && hash != ""
}

// Challenge prompts up to three times. Cancelling the dialog or running
// out of attempts is a failure; a missing hash is Unavailable.
func (a *PasswordAuthenticator) Challenge(ctx context.Context, reason string) domain.ChallengeResult {
	hash, err := a.secrets.GetSecret(SecretKeyPasswordHash)
	if err != nil || hash == "" {
		return domain.ChallengeResult{
			Verdict: domain.ChallengeUnavailable,
			Cause:   "no unlock password configured",
		}
	}

	for attempt := 1; attempt <= passwordAttempts; attempt++ {
		if ctx.Err() != nil {
			return domain.ChallengeResult{
				Verdict: domain.ChallengeFailure,
				Cause:   "challenge timed out",
			}
		}

		password, ok := a.prompt(reason, attempt)
		if !ok {
			return domain.ChallengeResult{
				Verdict: domain.ChallengeFailure,
				Cause:   "dialog cancelled",
			}
		}

		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil {
			return domain.ChallengeResult{Verdict: domain.ChallengeSuccess}
		}

		a.logger.Info("wrong password",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", passwordAttempts))
	}

	return domain.ChallengeResult{
		Verdict: domain.ChallengeFailure,
		Cause:   fmt.Sprintf("%d wrong attempts", passwordAttempts),
	}
}

// prompt shows one hidden-answer dialog and returns the entered text.
// ok is false when the user cancelled or the dialog could not be shown.
func (a *PasswordAuthenticator) prompt(reason string, attempt int) (password string, ok bool) {
	title := reason
	if attempt > 1 {
		title = fmt.Sprintf("%s (attempt %d of %d)", reason, attempt, passwordAttempts)
	}

	script := fmt.Sprintf(
		`display dialog %q default answer "" with hidden answer buttons {"Cancel", "OK"} default button "OK" with title "applockd"`,
		title)

	out, err := a.runner.Output("osascript", "-e", script)
	if err != nil {
		// Cancel makes osascript exit non-zero.
		return "", false
	}

	return parseDialogAnswer(string(out))
}

// parseDialogAnswer extracts the text from osascript's record output,
// e.g. `button returned:OK, text returned:hunter2`.
func parseDialogAnswer(out string) (string, bool) {
	out = strings.TrimRight(out, "\n")
	const marker = "text returned:"
	idx := strings.Index(out, marker)
	if idx < 0 {
		return "", false
	}
	return out[idx+len(marker):], true
}

// HashPassword produces the bcrypt hash stored in the credential store.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Ensure PasswordAuthenticator implements domain.Authenticator.
var _ domain.Authenticator = (*PasswordAuthenticator)(nil)
