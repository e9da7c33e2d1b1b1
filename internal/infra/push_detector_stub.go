//go:build !darwin

package infra

import (
	"errors"

	"go.uber.org/zap"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// ErrPushUnsupported is returned where workspace notifications do not
// exist. Callers fall back to the poll detector.
var ErrPushUnsupported = errors.New("push detector requires macOS workspace notifications")

// NewPushDetector always fails off darwin.
func NewPushDetector(logger *zap.Logger) (domain.Detector, error) {
	return nil, ErrPushUnsupported
}
