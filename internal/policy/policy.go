// Package policy implements the Strategy pattern for post-challenge
// recovery. Each policy defines how a locked app is put out of reach
// while the challenge runs and how it comes back after a pass.
package policy

import (
	"fmt"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// Launcher starts an application by name. Implemented in infra via the
// OS launcher so a fresh instance gets a clean session.
type Launcher interface {
	Launch(appName string) error
}

// ForName returns the recovery policy selected in config.
func ForName(name string, launcher Launcher) (domain.RecoveryPolicy, error) {
	switch name {
	case RestoreName:
		return NewRestorePolicy(), nil
	case RelaunchName:
		return NewRelaunchPolicy(launcher), nil
	default:
		return nil, fmt.Errorf("unknown recovery policy: %s", name)
	}
}

// ForStrategy resolves a possibly-empty policy name against the active
// detection strategy. Push detection keeps live handles, so restore is
// the natural default; poll detection only knows PIDs, where relaunch
// is the reliable path back. An explicit name always wins.
func ForStrategy(name, strategy string, launcher Launcher) (domain.RecoveryPolicy, error) {
	if name == "" {
		if strategy == "poll" {
			return NewRelaunchPolicy(launcher), nil
		}
		return NewRestorePolicy(), nil
	}
	return ForName(name, launcher)
}
