package continuation_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sk8tingusmc/forge/internal/continuation"
	"github.com/sk8tingusmc/forge/internal/event"
	"github.com/sk8tingusmc/forge/pkg/types"
)

// continuationSignals captures iteration/terminal hook invocations in
// order, for assertions on ordering and monotonic counting.
type continuationSignals struct {
	mu          sync.Mutex
	iterations  []int
	terminal    types.ContinuationStatus
	terminalSet bool
	writes      []string
}

func (s *continuationSignals) recordIteration(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iterations = append(s.iterations, i)
}

func (s *continuationSignals) recordTerminal(status types.ContinuationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminal = status
	s.terminalSet = true
}

func (s *continuationSignals) recordWrite(ptyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, ptyID)
}

func (s *continuationSignals) snapshot() ([]int, types.ContinuationStatus, bool, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.iterations...), s.terminal, s.terminalSet, append([]string(nil), s.writes...)
}

var _ = Describe("Engine", func() {
	var (
		bus     *event.Bus
		engine  *continuation.Engine
		signals *continuationSignals
		hooks   continuation.Hooks
	)

	BeforeEach(func() {
		bus = event.NewBus()
		engine = continuation.New(bus)
		signals = &continuationSignals{}
		hooks = continuation.Hooks{
			OnIteration: func(ptyID string, i int) { signals.recordIteration(i) },
			OnTerminal:  func(ptyID string, status types.ContinuationStatus) { signals.recordTerminal(status) },
		}
	})

	AfterEach(func() {
		_ = bus.Close()
	})

	It("kicks off an immediate iteration bypassing the quiet timer", func() {
		engine.Start("pty1", "ws1", "ship it", 5, func(ptyID string) { signals.recordWrite(ptyID) }, hooks, continuation.Options{KickOff: true})

		Eventually(func() []int {
			iters, _, _, _ := signals.snapshot()
			return iters
		}).Should(Equal([]int{1}))

		_, _, _, writes := signals.snapshot()
		Expect(writes).To(Equal([]string{"pty1"}))
	})

	It("reaches max_reached after maxIterations immediate kick-offs", func() {
		engine.Start("pty2", "ws1", "loop", 2, func(ptyID string) {
			signals.recordWrite(ptyID)
			engine.OnOutput(ptyID, []byte("still working\n"))
		}, hooks, continuation.Options{KickOff: true, QuietDelay: 10 * time.Millisecond})

		Eventually(func() bool {
			_, status, done, _ := signals.snapshot()
			return done && status == types.ContinuationMaxReached
		}, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

		iters, _, _, _ := signals.snapshot()
		Expect(iters).To(Equal([]int{1, 2}))
	})

	It("detects a completion pattern and emits done without further iterations", func() {
		engine.Start("pty3", "ws1", "finish", 10, func(ptyID string) { signals.recordWrite(ptyID) }, hooks, continuation.Options{QuietDelay: 20 * time.Millisecond})
		engine.OnOutput("pty3", []byte("working...\nall tasks completed\n"))

		Eventually(func() bool {
			_, status, done, _ := signals.snapshot()
			return done && status == types.ContinuationDone
		}, time.Second, 10*time.Millisecond).Should(BeTrue())

		iters, _, _, _ := signals.snapshot()
		Expect(iters).To(BeEmpty())
	})

	It("reschedules without iterating when requirePrompt is set and no idle prompt is present", func() {
		engine.Start("pty4", "ws1", "keep going", 10, func(ptyID string) { signals.recordWrite(ptyID) }, hooks, continuation.Options{QuietDelay: 20 * time.Millisecond, RequirePrompt: true})
		engine.OnOutput("pty4", []byte("still compiling...\n"))

		Consistently(func() []int {
			iters, _, _, _ := signals.snapshot()
			return iters
		}, 150*time.Millisecond, 10*time.Millisecond).Should(BeEmpty())

		engine.Stop("pty4")
	})

	It("runs an iteration once an idle prompt line appears", func() {
		engine.Start("pty5", "ws1", "keep going", 10, func(ptyID string) { signals.recordWrite(ptyID) }, hooks, continuation.Options{QuietDelay: 20 * time.Millisecond, RequirePrompt: true})
		engine.OnOutput("pty5", []byte("done compiling\n$ "))

		Eventually(func() []int {
			iters, _, _, _ := signals.snapshot()
			return iters
		}, time.Second, 10*time.Millisecond).Should(Equal([]int{1}))

		engine.Stop("pty5")
	})

	It("stops immediately and marks cancelled", func() {
		engine.Start("pty6", "ws1", "goal", 10, func(ptyID string) {}, hooks, continuation.Options{QuietDelay: time.Hour})
		engine.Stop("pty6")

		_, status, done, _ := signals.snapshot()
		Expect(done).To(BeTrue())
		Expect(status).To(Equal(types.ContinuationCancelled))

		_, ok := engine.State("pty6")
		Expect(ok).To(BeFalse())
	})

	It("starting a new continuation for the same ptyId cancels the prior one", func() {
		engine.Start("pty7", "ws1", "first goal", 10, func(ptyID string) {}, hooks, continuation.Options{QuietDelay: time.Hour})
		firstSignals := signals

		secondSignals := &continuationSignals{}
		secondHooks := continuation.Hooks{
			OnIteration: func(ptyID string, i int) { secondSignals.recordIteration(i) },
			OnTerminal:  func(ptyID string, status types.ContinuationStatus) { secondSignals.recordTerminal(status) },
		}
		engine.Start("pty7", "ws1", "second goal", 10, func(ptyID string) {}, secondHooks, continuation.Options{KickOff: true})

		Eventually(func() []int {
			iters, _, _, _ := secondSignals.snapshot()
			return iters
		}).Should(Equal([]int{1}))

		_, _, firstDone, _ := firstSignals.snapshot()
		Expect(firstDone).To(BeFalse())

		cp, ok := engine.State("pty7")
		Expect(ok).To(BeTrue())
		Expect(cp.Goal).To(Equal("second goal"))
	})
})
