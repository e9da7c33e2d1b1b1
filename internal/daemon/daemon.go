// Package daemon wires the detector, config store, and lock controller
// into the long-running applockd process.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/applockd/internal/config"
	"github.com/eliteGoblin/applockd/internal/domain"
)

// shutdownDrain bounds how long a shutdown waits for an in-flight
// challenge before giving up on it.
const shutdownDrain = 90 * time.Second

// Daemon runs the event pump: detector events in, locker decisions out.
type Daemon struct {
	info     domain.Daemon
	store    *config.Store
	locker   domain.Locker
	detector domain.Detector
	registry domain.DaemonRegistry
	strategy string
	logger   *zap.Logger

	reloadCh chan struct{}
}

// New creates the daemon assembly.
func New(
	info domain.Daemon,
	store *config.Store,
	locker domain.Locker,
	detector domain.Detector,
	registry domain.DaemonRegistry,
	strategy string,
	logger *zap.Logger,
) *Daemon {
	return &Daemon{
		info:     info,
		store:    store,
		locker:   locker,
		detector: detector,
		registry: registry,
		strategy: strategy,
		logger:   logger,
		reloadCh: make(chan struct{}, 1),
	}
}

// Reload requests a config reload (SIGHUP handler calls this).
// Coalesces when one is already queued.
func (d *Daemon) Reload() {
	select {
	case d.reloadCh <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled. Returns the detector start error
// if observation cannot begin at all.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.registry.Register(d.info); err != nil {
		d.logger.Error("failed to register daemon", zap.Error(err))
		return err
	}

	cfg := d.store.Current()
	d.locker.UpdateTargets(cfg.TargetSet())
	d.locker.UpdateTimings(cfg.Lock.Grace.Std(), cfg.Lock.ChallengeTimeout.Std())

	// Config file edits (fsnotify) feed the locker the same way a
	// SIGHUP reload does.
	d.store.OnChange(func(cfg *config.Config) {
		d.locker.UpdateTargets(cfg.TargetSet())
		d.locker.UpdateTimings(cfg.Lock.Grace.Std(), cfg.Lock.ChallengeTimeout.Std())
	})
	if err := d.store.Watch(); err != nil {
		d.logger.Warn("config watch unavailable, reload via SIGHUP only", zap.Error(err))
	}

	if err := d.detector.Start(ctx); err != nil {
		d.logger.Error("detector failed to start", zap.Error(err))
		return err
	}

	d.logger.Info("daemon started",
		zap.Int("pid", d.info.PID),
		zap.String("strategy", d.strategy),
		zap.Int("targets", len(cfg.Targets.Entries)))

	d.pump(ctx)

	return d.shutdown()
}

// pump consumes detector events until ctx is cancelled or the event
// channel closes. Push events are handled inline to preserve per-app
// ordering; poll events get a goroutine each, mirroring overlapping
// detection cycles, which the locker's mutex and challenge guard make
// safe.
func (d *Daemon) pump(ctx context.Context) {
	concurrent := d.strategy == config.StrategyPoll

	for {
		select {
		case <-ctx.Done():
			return

		case <-d.reloadCh:
			if err := d.store.Reload(); err == nil {
				d.logger.Info("reload applied")
			}

		case ev, ok := <-d.detector.Events():
			if !ok {
				d.logger.Warn("detector event channel closed")
				return
			}
			if concurrent {
				go d.locker.HandleEvent(ctx, ev)
			} else {
				d.locker.HandleEvent(ctx, ev)
			}
		}
	}
}

// shutdown stops observation, lets an in-flight challenge finish, and
// deregisters. Never hard-kills a challenge mid-prompt.
func (d *Daemon) shutdown() error {
	d.logger.Info("daemon stopping")

	if err := d.detector.Stop(); err != nil {
		d.logger.Warn("detector stop failed", zap.Error(err))
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownDrain)
	defer cancel()
	if err := d.locker.Shutdown(drainCtx); err != nil {
		d.logger.Warn("in-flight challenge did not finish before shutdown", zap.Error(err))
	}

	d.store.Stop()

	if err := d.registry.Unregister(d.info.PID); err != nil {
		d.logger.Warn("failed to deregister daemon", zap.Error(err))
	}

	d.logger.Info("daemon stopped")
	return nil
}
