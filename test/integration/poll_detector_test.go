//go:build integration

package integration

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/applockd/internal/domain"
	"github.com/eliteGoblin/applockd/internal/infra"
	"github.com/eliteGoblin/applockd/test/fixtures"
)

// Observes a real child process through the poll detector and the real
// process manager. Tagged because it depends on process enumeration
// timing on the host.
var _ = Describe("Poll detector against a live process", func() {
	var (
		app      *fixtures.FakeApp
		detector domain.Detector
		cancel   context.CancelFunc
	)

	BeforeEach(func() {
		var err error
		app, err = fixtures.StartFakeApp()
		Expect(err).NotTo(HaveOccurred())

		filter := func() domain.TargetSet {
			return domain.TargetSet{
				Entries: []string{app.ProcessName()},
				Mode:    domain.MatchExact,
			}
		}
		detector = infra.NewPollDetector(infra.NewProcessManager(), filter, 100*time.Millisecond, zap.NewNop())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		Expect(detector.Start(ctx)).To(Succeed())
	})

	AfterEach(func() {
		cancel()
		detector.Stop()
		app.Stop()
	})

	It("reports launch and termination of the child", func() {
		var launched domain.WatchEvent
		Eventually(detector.Events(), 5*time.Second).Should(Receive(&launched))
		Expect(launched.Kind).To(Equal(domain.EventLaunched))
		Expect(launched.PID).To(Equal(app.PID()))

		Expect(app.Stop()).To(Succeed())
		Expect(app.WaitGone(3 * time.Second)).To(BeTrue())

		Eventually(func() bool {
			select {
			case ev := <-detector.Events():
				return ev.Kind == domain.EventTerminated && ev.PID == launched.PID
			default:
				return false
			}
		}, 5*time.Second).Should(BeTrue())
	})
})
