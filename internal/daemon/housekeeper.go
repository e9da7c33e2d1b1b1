package daemon

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// HousekeeperConfig holds the periodic maintenance intervals.
type HousekeeperConfig struct {
	HeartbeatInterval  time.Duration // registry liveness refresh
	SweepInterval      time.Duration // stale session sweep
	PlistCheckInterval time.Duration // LaunchAgent plist check
}

// DefaultHousekeeperConfig returns the default maintenance cadence.
func DefaultHousekeeperConfig() HousekeeperConfig {
	return HousekeeperConfig{
		HeartbeatInterval:  30 * time.Second,
		SweepInterval:      30 * time.Second,
		PlistCheckInterval: 60 * time.Second,
	}
}

// Housekeeper runs the daemon's periodic maintenance: heartbeat updates,
// stale session sweeps, and LaunchAgent plist self-heal. It runs beside
// the event pump and shares its context.
type Housekeeper struct {
	config      HousekeeperConfig
	registry    domain.DaemonRegistry
	locker      domain.Locker
	launchAgent domain.LaunchAgentManager
	logger      *zap.Logger
	pid         int
}

// NewHousekeeper creates the maintenance loop. launchAgent may be nil
// when running in the foreground without an installed agent.
func NewHousekeeper(
	config HousekeeperConfig,
	registry domain.DaemonRegistry,
	locker domain.Locker,
	launchAgent domain.LaunchAgentManager,
	pid int,
	logger *zap.Logger,
) *Housekeeper {
	return &Housekeeper{
		config:      config,
		registry:    registry,
		locker:      locker,
		launchAgent: launchAgent,
		logger:      logger,
		pid:         pid,
	}
}

// Run blocks until ctx is cancelled.
func (h *Housekeeper) Run(ctx context.Context) error {
	h.ensurePlistInstalled()

	heartbeatTicker := time.NewTicker(h.config.HeartbeatInterval)
	sweepTicker := time.NewTicker(h.config.SweepInterval)
	plistTicker := time.NewTicker(h.config.PlistCheckInterval)

	defer func() {
		heartbeatTicker.Stop()
		sweepTicker.Stop()
		plistTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-heartbeatTicker.C:
			if err := h.registry.UpdateHeartbeat(h.pid); err != nil {
				h.logger.Warn("failed to update heartbeat", zap.Error(err))
			}

		case <-sweepTicker.C:
			h.locker.Sweep()

		case <-plistTicker.C:
			h.ensurePlistInstalled()
		}
	}
}

// ensurePlistInstalled restores or refreshes the LaunchAgent plist so
// the daemon survives reboots even if the plist is deleted or edited.
func (h *Housekeeper) ensurePlistInstalled() {
	if h.launchAgent == nil {
		return
	}

	execPath, err := os.Executable()
	if err != nil {
		h.logger.Error("failed to get executable path", zap.Error(err))
		return
	}

	if !h.launchAgent.IsInstalled() {
		h.logger.Info("LaunchAgent plist missing, restoring")
		if err := h.launchAgent.Install(execPath); err != nil {
			h.logger.Error("failed to restore LaunchAgent plist", zap.Error(err))
		}
	} else if h.launchAgent.NeedsUpdate(execPath) {
		h.logger.Info("LaunchAgent plist outdated, updating")
		if err := h.launchAgent.Update(execPath); err != nil {
			h.logger.Error("failed to update LaunchAgent plist", zap.Error(err))
		}
	}
}
