package infra

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// NotificationPresenter announces lock state through the notification
// center. Best effort by contract: a failed notification never changes
// the lock decision.
type NotificationPresenter struct {
	runner CommandRunner
	logger *zap.Logger
}

// NewNotificationPresenter creates the notification-center presenter.
func NewNotificationPresenter(logger *zap.Logger) *NotificationPresenter {
	return &NotificationPresenter{runner: &RealCommandRunner{}, logger: logger}
}

// NewNotificationPresenterWithRunner injects a command runner (for testing).
func NewNotificationPresenterWithRunner(runner CommandRunner, logger *zap.Logger) *NotificationPresenter {
	return &NotificationPresenter{runner: runner, logger: logger}
}

// ShowLocked posts a notification that the app is locked pending
// authentication.
func (p *NotificationPresenter) ShowLocked(appName string) error {
	script := fmt.Sprintf(
		`display notification "%s is locked. Authenticate to continue." with title "applockd"`,
		appName)
	if err := p.runner.Run("osascript", "-e", script); err != nil {
		return fmt.Errorf("show lock notification: %w", err)
	}
	return nil
}

// ClearLocked is a no-op for the notification center; notifications
// expire on their own.
func (p *NotificationPresenter) ClearLocked(appName string) error {
	return nil
}

// NopPresenter discards all presentation. Used in tests and when the
// daemon runs headless.
type NopPresenter struct{}

func (NopPresenter) ShowLocked(appName string) error  { return nil }
func (NopPresenter) ClearLocked(appName string) error { return nil }

// Ensure both presenters implement domain.Presenter.
var (
	_ domain.Presenter = (*NotificationPresenter)(nil)
	_ domain.Presenter = NopPresenter{}
)
