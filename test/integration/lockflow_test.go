package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/applockd/internal/config"
	"github.com/eliteGoblin/applockd/internal/daemon"
	"github.com/eliteGoblin/applockd/internal/domain"
	"github.com/eliteGoblin/applockd/internal/infra"
	"github.com/eliteGoblin/applockd/internal/policy"
	"github.com/eliteGoblin/applockd/internal/usecase"
)

// scriptedAuthenticator returns queued verdicts, success once the queue
// is empty.
type scriptedAuthenticator struct {
	mu       sync.Mutex
	verdicts []domain.ChallengeVerdict
	reasons  []string
}

func (a *scriptedAuthenticator) Name() string    { return "scripted" }
func (a *scriptedAuthenticator) Available() bool { return true }

func (a *scriptedAuthenticator) Challenge(ctx context.Context, reason string) domain.ChallengeResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reasons = append(a.reasons, reason)
	if len(a.verdicts) == 0 {
		return domain.ChallengeResult{Verdict: domain.ChallengeSuccess}
	}
	v := a.verdicts[0]
	a.verdicts = a.verdicts[1:]
	return domain.ChallengeResult{Verdict: v, Cause: "scripted"}
}

func (a *scriptedAuthenticator) challengeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reasons)
}

func (a *scriptedAuthenticator) reason(i int) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i >= len(a.reasons) {
		return ""
	}
	return a.reasons[i]
}

// fakeHandle records the control operations the policies run against it.
type fakeHandle struct {
	mu          sync.Mutex
	pid         int
	name        string
	hides       int
	unhides     int
	activations int
	terminated  bool
}

func (h *fakeHandle) PID() int     { return h.pid }
func (h *fakeHandle) Name() string { return h.name }

func (h *fakeHandle) Hide() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hides++
	return nil
}

func (h *fakeHandle) Unhide() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unhides++
	return nil
}

func (h *fakeHandle) Activate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activations++
	return nil
}

func (h *fakeHandle) Terminate() error { return h.ForceTerminate() }

func (h *fakeHandle) ForceTerminate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminated = true
	return nil
}

func (h *fakeHandle) IsTerminated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminated
}

func (h *fakeHandle) counts() (hides, unhides, activations int, terminated bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hides, h.unhides, h.activations, h.terminated
}

// stubProcesses answers liveness from a fixed set.
type stubProcesses struct {
	mu      sync.Mutex
	running map[int]bool
}

func newStubProcesses() *stubProcesses {
	return &stubProcesses{running: make(map[int]bool)}
}

func (p *stubProcesses) setRunning(pid int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running[pid] = ok
}

func (p *stubProcesses) FindByName(pattern string) ([]int, error) { return nil, nil }
func (p *stubProcesses) Processes() (map[int]string, error)       { return map[int]string{}, nil }
func (p *stubProcesses) Terminate(pid int) error                  { return nil }
func (p *stubProcesses) Kill(pid int) error                       { return nil }
func (p *stubProcesses) Suspend(pid int) error                    { return nil }
func (p *stubProcesses) Resume(pid int) error                     { return nil }
func (p *stubProcesses) GetCurrentPID() int                       { return os.Getpid() }

func (p *stubProcesses) IsRunning(pid int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running[pid]
}

// scriptedDetector feeds pre-arranged events to the daemon pump.
type scriptedDetector struct {
	events chan domain.WatchEvent
}

func newScriptedDetector() *scriptedDetector {
	return &scriptedDetector{events: make(chan domain.WatchEvent, 32)}
}

func (d *scriptedDetector) Start(ctx context.Context) error     { return nil }
func (d *scriptedDetector) Events() <-chan domain.WatchEvent    { return d.events }
func (d *scriptedDetector) Stop() error                         { return nil }
func (d *scriptedDetector) emit(ev domain.WatchEvent)           { d.events <- ev }

var _ = Describe("Lock flow", func() {
	var (
		auth   *scriptedAuthenticator
		clock  *domain.MockClock
		procs  *stubProcesses
		locker *usecase.LockerImpl
		handle *fakeHandle
		ctx    context.Context
	)

	targets := domain.TargetSet{
		Entries: []string{"Slack"},
		Mode:    domain.MatchSubstring,
	}

	BeforeEach(func() {
		auth = &scriptedAuthenticator{}
		clock = domain.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
		procs = newStubProcesses()
		handle = &fakeHandle{pid: 501, name: "Slack"}
		procs.setRunning(501, true)

		locker = usecase.NewLocker(
			auth,
			policy.NewRestorePolicy(),
			infra.NopPresenter{},
			procs,
			clock,
			zap.NewNop(),
		)
		locker.UpdateTargets(targets)
		locker.UpdateTimings(30*time.Second, 5*time.Second)
		ctx = context.Background()
	})

	activate := func() {
		locker.HandleEvent(ctx, domain.WatchEvent{
			Kind: domain.EventActivated, Identifier: "Slack", PID: 501, Handle: handle,
		})
	}

	launch := func() {
		locker.HandleEvent(ctx, domain.WatchEvent{
			Kind: domain.EventLaunched, Identifier: "Slack", PID: 501, Handle: handle,
		})
	}

	Context("when a protected app is opened", func() {
		It("challenges on first activation and restores on success", func() {
			launch()
			activate()

			Expect(auth.challengeCount()).To(Equal(1))
			hides, unhides, activations, terminated := handle.counts()
			Expect(hides).To(Equal(1))
			Expect(unhides).To(Equal(1))
			Expect(activations).To(Equal(1))
			Expect(terminated).To(BeFalse())
		})

		It("does not challenge again within the grace period", func() {
			launch()
			activate()
			clock.Advance(10 * time.Second)
			activate()

			Expect(auth.challengeCount()).To(Equal(1))
		})

		It("challenges again after the grace period expires", func() {
			launch()
			activate()
			clock.Advance(31 * time.Second)
			activate()

			Expect(auth.challengeCount()).To(Equal(2))
		})

		It("terminates the app when the challenge fails", func() {
			auth.verdicts = []domain.ChallengeVerdict{domain.ChallengeFailure}

			launch()
			activate()

			Expect(auth.challengeCount()).To(Equal(1))
			_, unhides, _, terminated := handle.counts()
			Expect(terminated).To(BeTrue())
			Expect(unhides).To(BeZero())
		})

		It("treats an unavailable authenticator as failure", func() {
			auth.verdicts = []domain.ChallengeVerdict{domain.ChallengeUnavailable}

			launch()
			activate()

			_, _, _, terminated := handle.counts()
			Expect(terminated).To(BeTrue())
		})

		It("re-challenges after a failed attempt once the app opens again", func() {
			auth.verdicts = []domain.ChallengeVerdict{domain.ChallengeFailure}

			launch()
			activate()
			launch()
			activate()

			Expect(auth.challengeCount()).To(Equal(2))
		})
	})

	Context("when the app quits", func() {
		It("clears the grace so the next open challenges again", func() {
			launch()
			activate()
			locker.HandleEvent(ctx, domain.WatchEvent{
				Kind: domain.EventTerminated, Identifier: "Slack", PID: 501, Handle: handle,
			})
			launch()
			activate()

			Expect(auth.challengeCount()).To(Equal(2))
		})
	})

	Context("when an app is not protected", func() {
		It("never challenges", func() {
			locker.HandleEvent(ctx, domain.WatchEvent{
				Kind: domain.EventActivated, Identifier: "Notes", PID: 777,
				Handle: &fakeHandle{pid: 777, name: "Notes"},
			})

			Expect(auth.challengeCount()).To(BeZero())
		})
	})

	Context("with the relaunch policy", func() {
		It("kills before the prompt and starts a fresh instance on success", func() {
			launched := make([]string, 0, 1)
			locker = usecase.NewLocker(
				auth,
				policy.NewRelaunchPolicy(launcherFunc(func(appName string) error {
					launched = append(launched, appName)
					return nil
				})),
				infra.NopPresenter{},
				procs,
				clock,
				zap.NewNop(),
			)
			locker.UpdateTargets(targets)
			locker.UpdateTimings(30*time.Second, 5*time.Second)

			launch()
			activate()

			_, _, _, terminated := handle.counts()
			Expect(terminated).To(BeTrue())
			Expect(launched).To(Equal([]string{"Slack"}))

			// The respawned instance inherits the grace.
			locker.HandleEvent(ctx, domain.WatchEvent{
				Kind: domain.EventLaunched, Identifier: "Slack", PID: 502,
				Handle: &fakeHandle{pid: 502, name: "Slack"},
			})
			locker.HandleEvent(ctx, domain.WatchEvent{
				Kind: domain.EventActivated, Identifier: "Slack", PID: 502,
				Handle: &fakeHandle{pid: 502, name: "Slack"},
			})
			Expect(auth.challengeCount()).To(Equal(1))
		})
	})

	Context("when targets change at runtime", func() {
		It("stops challenging entries that left the set", func() {
			locker.UpdateTargets(domain.TargetSet{
				Entries: []string{"Discord"},
				Mode:    domain.MatchSubstring,
			})
			activate()

			Expect(auth.challengeCount()).To(BeZero())
		})
	})
})

// launcherFunc adapts a function to the policy.Launcher interface.
type launcherFunc func(appName string) error

func (f launcherFunc) Launch(appName string) error { return f(appName) }

var _ = Describe("Daemon pump", func() {
	var (
		tmpDir   string
		store    *config.Store
		detector *scriptedDetector
		auth     *scriptedAuthenticator
		handle   *fakeHandle
		procs    *stubProcesses
		registry *infra.FileRegistry
		d        *daemon.Daemon
		cancel   context.CancelFunc
		done     chan error
		stopOnce *sync.Once
		stopErr  error
	)

	// stop cancels the daemon and waits for Run to return, exactly once.
	stop := func() error {
		stopOnce.Do(func() {
			cancel()
			stopErr = <-done
		})
		return stopErr
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()

		cfg := config.Default()
		cfg.Targets.Entries = []string{"Slack"}
		cfgPath := filepath.Join(tmpDir, "config.toml")
		Expect(cfg.Save(cfgPath)).To(Succeed())

		store = config.NewStore(cfgPath, zap.NewNop())
		store.Load()

		detector = newScriptedDetector()
		auth = &scriptedAuthenticator{}
		handle = &fakeHandle{pid: 601, name: "Slack"}
		procs = newStubProcesses()
		procs.setRunning(os.Getpid(), true)
		procs.setRunning(601, true)

		locker := usecase.NewLocker(
			auth,
			policy.NewRestorePolicy(),
			infra.NopPresenter{},
			procs,
			domain.RealClock{},
			zap.NewNop(),
		)

		registry = infra.NewFileRegistryWithPath(filepath.Join(tmpDir, "registry.json"), procs)

		info := domain.Daemon{PID: os.Getpid(), StartedAt: time.Now(), Strategy: config.StrategyPush}
		d = daemon.New(info, store, locker, detector, registry, config.StrategyPush, zap.NewNop())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		stopOnce = new(sync.Once)
		go func() { done <- d.Run(ctx) }()

		Eventually(func() *domain.RegistryEntry {
			entry, _ := registry.Lookup()
			return entry
		}).Should(Not(BeNil()))
	})

	AfterEach(func() {
		Expect(stop()).To(Succeed())
	})

	It("drives a full open-challenge-restore cycle from detector events", func() {
		detector.emit(domain.WatchEvent{Kind: domain.EventLaunched, Identifier: "Slack", PID: 601, Handle: handle})
		detector.emit(domain.WatchEvent{Kind: domain.EventActivated, Identifier: "Slack", PID: 601, Handle: handle})

		Eventually(auth.challengeCount).Should(Equal(1))
		Eventually(func() int {
			_, _, activations, _ := handle.counts()
			return activations
		}).Should(Equal(1))
	})

	It("applies config edits to the running daemon", func() {
		cfg := store.Current()
		updated := *cfg
		updated.Targets = config.TargetsConfig{Entries: []string{"Discord"}, Match: cfg.Targets.Match}
		Expect(store.Save(&updated)).To(Succeed())

		detector.emit(domain.WatchEvent{Kind: domain.EventActivated, Identifier: "Slack", PID: 601, Handle: handle})
		detector.emit(domain.WatchEvent{Kind: domain.EventActivated, Identifier: "Discord", PID: 602,
			Handle: &fakeHandle{pid: 602, name: "Discord"}})

		Eventually(auth.challengeCount).Should(Equal(1))
		Expect(auth.reason(0)).To(ContainSubstring("Discord"))
	})

	It("removes the registry entry on shutdown", func() {
		Expect(stop()).To(Succeed())

		entry, err := registry.Lookup()
		Expect(err).NotTo(HaveOccurred())
		Expect(entry).To(BeNil())
	})
})
