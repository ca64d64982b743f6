package synthesis_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sk8tingusmc/forge/internal/event"
	"github.com/sk8tingusmc/forge/internal/synthesis"
)

// writeFakeCLI writes an executable shell script standing in for an
// assistant CLI: it echoes its stdin back prefixed with "reply: ".
func writeFakeCLI(dir string) string {
	if runtime.GOOS == "windows" {
		Skip("fake CLI script is POSIX-only")
	}
	path := filepath.Join(dir, "fake-cli.sh")
	script := "#!/bin/sh\ninput=$(cat)\necho \"reply: $input\"\n"
	Expect(os.WriteFile(path, []byte(script), 0o755)).To(Succeed())
	return path
}

var _ = Describe("Orchestrator", func() {
	var (
		bus    *event.Bus
		orch   *synthesis.Orchestrator
		cliDir string
		cli    string
	)

	BeforeEach(func() {
		bus = event.NewBus()
		orch = synthesis.New(bus)
		cliDir = GinkgoT().TempDir()
		cli = writeFakeCLI(cliDir)
	})

	AfterEach(func() {
		_ = bus.Close()
	})

	It("fans out n parallel runs, reports monotonic progress, and emits exactly one done event", func() {
		var progress []int
		unsubProgress := bus.Subscribe(event.SynthesisProgress, func(e event.Event) {
			d := e.Data.(event.SynthesisProgressData)
			progress = append(progress, d.Completed)
		})
		defer unsubProgress()

		doneCh := make(chan event.SynthesisDoneData, 1)
		unsubDone := bus.Subscribe(event.SynthesisDone, func(e event.Event) {
			doneCh <- e.Data.(event.SynthesisDoneData)
		})
		defer unsubDone()

		workDir := GinkgoT().TempDir()
		result, err := orch.Run(context.Background(), cli, workDir, "ws1", "do the thing", 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.OK).To(BeTrue())
		Expect(result.Count).To(Equal(2))
		Expect(result.SessionID).NotTo(BeEmpty())
		Expect(result.JobID).NotTo(BeEmpty())

		var done event.SynthesisDoneData
		select {
		case done = <-doneCh:
		case <-time.After(5 * time.Second):
			Fail("timed out waiting for done event")
		}
		Expect(done.SessionID).To(Equal(result.SessionID))
		Expect(done.Total).To(Equal(2))

		Expect(progress).To(Equal([]int{0, 1, 2}))
	})

	It("clamps n into [1, 12]", func() {
		workDir := GinkgoT().TempDir()
		result, err := orch.Run(context.Background(), cli, workDir, "ws1", "goal", 99)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Count).To(Equal(12))
	})

	It("deletes the isolated home directories for every run once the job completes", func() {
		before, _ := filepath.Glob(filepath.Join(os.TempDir(), "forge-synthesis-*"))

		workDir := GinkgoT().TempDir()
		_, err := orch.Run(context.Background(), cli, workDir, "ws1", "goal", 3)
		Expect(err).NotTo(HaveOccurred())

		after, _ := filepath.Glob(filepath.Join(os.TempDir(), "forge-synthesis-*"))
		Expect(after).To(HaveLen(len(before)))
	})

	It("surfaces an error when the final synthesis call fails to spawn", func() {
		missingCLI := filepath.Join(cliDir, "does-not-exist")
		workDir := GinkgoT().TempDir()
		_, err := orch.Run(context.Background(), missingCLI, workDir, "ws1", "goal", 2)
		Expect(err).To(HaveOccurred())
	})

	It("never places the goal on argv", func() {
		// A fake CLI that appends its argv to a log would reveal a leaked
		// goal; every invocation's argv must be free of the goal text.
		argvLog := filepath.Join(cliDir, "argv.log")
		argvCLI := filepath.Join(cliDir, "argv-cli.sh")
		script := "#!/bin/sh\necho \"$@\" >> '" + argvLog + "'\ncat\n"
		Expect(os.WriteFile(argvCLI, []byte(script), 0o755)).To(Succeed())

		workDir := GinkgoT().TempDir()
		goal := "a very specific needle-goal-xyz"
		result, err := orch.Run(context.Background(), argvCLI, workDir, "ws1", goal, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Count).To(Equal(1))

		argv, err := os.ReadFile(argvLog)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(argv)).To(ContainSubstring("-p"))
		Expect(string(argv)).NotTo(ContainSubstring(goal))
	})
})

var _ = Describe("combineOutputs and postProcess formatting", func() {
	It("formats combined output as numbered Claude blocks", func() {
		// The final synthesis run (the one given --session-id) saves the
		// prompt it receives on stdin, which embeds the combined output.
		bus := event.NewBus()
		defer bus.Close()
		orch := synthesis.New(bus)

		dir := GinkgoT().TempDir()
		promptFile := filepath.Join(dir, "final-prompt.txt")
		cli := filepath.Join(dir, "capture-cli.sh")
		script := "#!/bin/sh\ninput=$(cat)\ncase \"$*\" in\n*--session-id*) printf '%s' \"$input\" > '" + promptFile + "' ;;\n*) echo \"reply: $input\" ;;\nesac\n"
		Expect(os.WriteFile(cli, []byte(script), 0o755)).To(Succeed())

		_, err := orch.Run(context.Background(), cli, GinkgoT().TempDir(), "ws1", "goal", 2)
		Expect(err).NotTo(HaveOccurred())

		data, err := os.ReadFile(promptFile)
		Expect(err).NotTo(HaveOccurred())
		combined := string(data)
		Expect(combined).To(ContainSubstring("=== Claude 1/2 ===\nreply: goal"))
		Expect(combined).To(ContainSubstring("=== Claude 2/2 ==="))
		Expect(strings.Count(combined, "=== Claude")).To(Equal(2))
	})
})
