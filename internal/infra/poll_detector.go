package infra

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// pollEventBuffer is the poll detector's channel capacity. Sends never
// block; a dropped event is re-synthesized on the next cycle anyway.
const pollEventBuffer = 64

// TargetFilter returns the current protected set. The poll detector
// consults it every cycle so a config reload applies on the next scan
// without restarting the detector.
type TargetFilter func() domain.TargetSet

// PollDetector implements domain.Detector by enumerating processes on a
// fixed interval and synthesizing lifecycle events from the deltas:
// a new matching pid yields Launched then Activated, a still-present
// matching pid yields Activated, a vanished pid yields Terminated.
// Events carry PID-backed handles.
type PollDetector struct {
	pm       domain.ProcessManager
	filter   TargetFilter
	interval time.Duration
	runner   CommandRunner
	logger   *zap.Logger

	mu      sync.Mutex
	tracked map[int]string // matching pid -> observed name

	events   chan domain.WatchEvent
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewPollDetector creates a poll detector scanning every interval.
func NewPollDetector(pm domain.ProcessManager, filter TargetFilter, interval time.Duration, logger *zap.Logger) *PollDetector {
	return &PollDetector{
		pm:       pm,
		filter:   filter,
		interval: interval,
		runner:   &RealCommandRunner{},
		logger:   logger,
		tracked:  make(map[int]string),
		events:   make(chan domain.WatchEvent, pollEventBuffer),
		done:     make(chan struct{}),
	}
}

// Start begins the scan loop. Non-blocking.
func (d *PollDetector) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.loop(ctx)

	d.logger.Info("poll detector started",
		zap.Duration("interval", d.interval))
	return nil
}

// Events returns the synthesized transition stream.
func (d *PollDetector) Events() <-chan domain.WatchEvent {
	return d.events
}

// Stop halts scanning and closes the event channel.
func (d *PollDetector) Stop() error {
	d.stopOnce.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		<-d.done
		close(d.events)
	})
	return nil
}

func (d *PollDetector) loop(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	// First scan right away so a target that is already running gets
	// challenged without waiting a full interval.
	d.scan()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.scan()
		}
	}
}

// scan enumerates processes and emits the delta events for one cycle.
func (d *PollDetector) scan() {
	snapshot, err := d.pm.Processes()
	if err != nil {
		d.logger.Warn("process enumeration failed", zap.Error(err))
		return
	}

	set := d.filter()

	d.mu.Lock()

	var launched, activated []domain.WatchEvent
	for pid, name := range snapshot {
		if !set.Matches(name) {
			continue
		}
		handle := NewPidHandle(pid, name, d.pm, d.runner)
		ev := domain.WatchEvent{Identifier: name, PID: pid, Handle: handle}
		if _, known := d.tracked[pid]; !known {
			d.tracked[pid] = name
			ev.Kind = domain.EventLaunched
			launched = append(launched, ev)
		}
		// Every present matching pid counts as active this cycle; the
		// locker's grace fast path makes the repeats cheap.
		ev.Kind = domain.EventActivated
		activated = append(activated, ev)
	}

	var terminated []domain.WatchEvent
	for pid, name := range d.tracked {
		if _, alive := snapshot[pid]; alive {
			continue
		}
		delete(d.tracked, pid)
		terminated = append(terminated, domain.WatchEvent{
			Kind:       domain.EventTerminated,
			Identifier: name,
			PID:        pid,
			Handle:     NewPidHandle(pid, name, d.pm, d.runner),
		})
	}

	d.mu.Unlock()

	for _, ev := range launched {
		d.emit(ev)
	}
	for _, ev := range terminated {
		d.emit(ev)
	}
	for _, ev := range activated {
		d.emit(ev)
	}
}

// emit performs a non-blocking send. A full channel means the consumer
// is behind a challenge; the next cycle regenerates the state anyway.
func (d *PollDetector) emit(ev domain.WatchEvent) {
	select {
	case d.events <- ev:
	default:
		d.logger.Debug("event channel full, dropping",
			zap.String("kind", string(ev.Kind)),
			zap.String("app", ev.Identifier),
			zap.Int("pid", ev.PID))
	}
}

// TrackedPIDs returns the pids currently considered alive (for status).
func (d *PollDetector) TrackedPIDs() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	pids := make([]int, 0, len(d.tracked))
	for pid := range d.tracked {
		pids = append(pids, pid)
	}
	return pids
}

// Ensure PollDetector implements domain.Detector.
var _ domain.Detector = (*PollDetector)(nil)
