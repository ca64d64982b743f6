// Package synthesis implements the best-of-N orchestrator: it runs a goal
// through n isolated, non-interactive assistant invocations in parallel,
// then combines their outputs with one final run bound to a fresh session
// identifier the caller can resume interactively.
package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sk8tingusmc/forge/internal/event"
	"github.com/sk8tingusmc/forge/pkg/types"
)

const (
	runTimeout     = 10 * time.Minute
	sigkillDelay   = 200 * time.Millisecond
	timedOutMarker = "(timed out)"
)

// configFiles is the fixed set of files copied into each run's isolated
// home, relative to the real home directory.
var configFiles = []string{
	".claude.json",
	filepath.Join(".claude", ".credentials.json"),
	filepath.Join(".claude", "settings.json"),
	filepath.Join(".claude", "settings.local.json"),
	filepath.Join(".claude", "CLAUDE.md"),
}

// corruptionWarnings lists config-corruption warning line prefixes the
// assistant CLI emits to stderr; these are stripped from a run's output
// before it is used in synthesis.
var corruptionWarnings = []string{
	"Warning: ~/.claude.json",
	"Warning: config file",
	"claude.json is corrupted",
}

var blankRunCollapse = strings.NewReplacer(
	"\n\n\n\n", "\n\n",
	"\n\n\n", "\n\n",
)

// Result is returned by Run on success.
type Result struct {
	OK        bool   `json:"ok"`
	Count     int    `json:"count"`
	SessionID string `json:"sessionId"`
	JobID     string `json:"jobId"`
}

// Orchestrator runs synthesis jobs and publishes their progress onto bus.
type Orchestrator struct {
	bus *event.Bus
}

// New creates an Orchestrator that emits synthesis.* events onto bus.
func New(bus *event.Bus) *Orchestrator {
	return &Orchestrator{bus: bus}
}

// Run executes a full best-of-n synthesis job: n parallel isolated runs of
// cliPath against goal, combined by one final run bound to a fresh session
// id. It blocks until every child has finished or timed out.
func (o *Orchestrator) Run(ctx context.Context, cliPath, workspacePath, workspaceID, goal string, n int) (Result, error) {
	if n < 1 {
		n = 1
	}
	if n > 12 {
		n = 12
	}

	jobID := uuid.New().String()
	job := &types.SynthesisJob{
		JobID:       jobID,
		WorkspaceID: workspaceID,
		Goal:        goal,
		N:           n,
		Total:       n,
		Status:      types.SynthesisRunning,
	}

	sanitizeClaudeConfig()

	o.publishProgress(job)

	outputs := make([]string, n)
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			out, err := runIsolated(ctx, cliPath, workspacePath, goal, []string{"-p", "--no-session-persistence"})
			if err != nil {
				out = fmt.Sprintf("(runner error: %v)", err)
			}
			mu.Lock()
			outputs[i] = out
			job.Completed++
			o.publishProgress(job)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	combined := combineOutputs(outputs)
	synthesisPrompt := buildSynthesisPrompt(combined)

	sessionID := uuid.New().String()
	if _, err := runIsolated(ctx, cliPath, workspacePath, synthesisPrompt, []string{"-p", "--session-id", sessionID}); err != nil {
		return Result{}, fmt.Errorf("final synthesis run failed to spawn: %w", err)
	}

	job.Status = types.SynthesisDone
	job.SessionID = sessionID
	o.bus.Publish(event.Event{
		Type: event.SynthesisDone,
		Data: event.SynthesisDoneData{JobID: jobID, SessionID: sessionID, Total: n},
	})

	return Result{OK: true, Count: n, SessionID: sessionID, JobID: jobID}, nil
}

func (o *Orchestrator) publishProgress(job *types.SynthesisJob) {
	o.bus.Publish(event.Event{
		Type: event.SynthesisProgress,
		Data: event.SynthesisProgressData{JobID: job.JobID, Completed: job.Completed, Total: job.Total},
	})
}

// combineOutputs formats n run outputs as "=== Claude i/n ===\n<text>"
// blocks separated by a blank line.
func combineOutputs(outputs []string) string {
	var b strings.Builder
	for i, out := range outputs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== Claude %d/%d ===\n%s", i+1, len(outputs), out)
	}
	return b.String()
}

func buildSynthesisPrompt(combined string) string {
	var b strings.Builder
	b.WriteString("You are a world-class synthesizer. Here are independent answers from multiple runs of the same assistant against the same task.\n\n")
	b.WriteString(combined)
	b.WriteString("\n\nProduce one final, concise, high-quality answer that combines the strongest parts of each, resolving any disagreement.")
	return b.String()
}

// runIsolated builds a fresh isolated home, launches cliPath as a
// non-interactive child piping goal via stdin, and returns its filtered
// combined output, deleting the isolated home in a finally. The returned
// error is non-nil only when the child could not be spawned at all
// (isolated-home setup, stdin pipe, or process start failure); a
// completed run that exited non-zero or timed out is reported as a
// descriptive string with a nil error, per the caller's failure contract.
func runIsolated(ctx context.Context, cliPath, workspacePath, goal string, args []string) (string, error) {
	home, err := newIsolatedHome()
	if err != nil {
		return "", fmt.Errorf("create isolated home: %w", err)
	}
	defer os.RemoveAll(home.root)

	out, err := spawnAndCollect(ctx, cliPath, workspacePath, goal, args, home)
	if err != nil {
		return "", err
	}
	return postProcess(out), nil
}

type isolatedHome struct {
	root string // temp directory root
	home string // root/home
}

// newIsolatedHome creates a fresh temp directory with a home subtree,
// pre-creating Windows AppData directories, and copies over the assistant
// config files that exist in the real home.
func newIsolatedHome() (isolatedHome, error) {
	root, err := os.MkdirTemp("", "forge-synthesis-*")
	if err != nil {
		return isolatedHome{}, err
	}
	home := filepath.Join(root, "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		os.RemoveAll(root)
		return isolatedHome{}, err
	}

	if runtime.GOOS == "windows" {
		for _, sub := range []string{filepath.Join("AppData", "Roaming"), filepath.Join("AppData", "Local")} {
			if err := os.MkdirAll(filepath.Join(home, sub), 0o755); err != nil {
				os.RemoveAll(root)
				return isolatedHome{}, err
			}
		}
	}

	realHome, err := os.UserHomeDir()
	if err == nil {
		for _, rel := range configFiles {
			copyIfExists(filepath.Join(realHome, rel), filepath.Join(home, rel))
		}
	}

	return isolatedHome{root: root, home: home}, nil
}

func copyIfExists(src, dst string) {
	data, err := os.ReadFile(src)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return
	}
	_ = os.WriteFile(dst, data, 0o600)
}

// spawnAndCollect launches cliPath as a non-PTY child with goal written to
// stdin, a 10-minute watchdog, and an environment whose home variables are
// redirected into the isolated home.
func spawnAndCollect(ctx context.Context, cliPath, workDir, goal string, args []string, home isolatedHome) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, cliPath, args...)
	cmd.Dir = workDir
	cmd.Env = redirectedEnv(home.home)
	if runtime.GOOS != "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", fmt.Errorf("open stdin pipe: %w", err)
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start cli: %w", err)
	}

	if _, err := io.WriteString(stdin, goal); err != nil {
		_ = stdin.Close()
	}
	_ = stdin.Close()

	waitErr := cmd.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		return timedOutMarker, nil
	}

	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			return fmt.Sprintf("(exit code %d)", exitErr.ExitCode()), nil
		}
		return fmt.Sprintf("(runner error: %v)", waitErr), nil
	}

	return buf.String(), nil
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if runtime.GOOS == "windows" {
		_ = exec.Command("taskkill", "/pid", fmt.Sprint(pid), "/f", "/t").Run()
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	time.Sleep(sigkillDelay)
	if cmd.ProcessState == nil {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
}

// redirectedEnv copies the parent environment with HOME (and, on Windows,
// the USERPROFILE family) redirected into homeDir.
func redirectedEnv(homeDir string) []string {
	env := os.Environ()
	filtered := make([]string, 0, len(env)+5)
	skip := map[string]bool{
		"HOME": true, "USERPROFILE": true, "HOMEDRIVE": true,
		"HOMEPATH": true, "APPDATA": true, "LOCALAPPDATA": true,
	}
	for _, kv := range env {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		if skip[kv[:idx]] {
			continue
		}
		filtered = append(filtered, kv)
	}

	filtered = append(filtered, "HOME="+homeDir)
	if runtime.GOOS == "windows" {
		filtered = append(filtered,
			"USERPROFILE="+homeDir,
			"APPDATA="+filepath.Join(homeDir, "AppData", "Roaming"),
			"LOCALAPPDATA="+filepath.Join(homeDir, "AppData", "Local"),
		)
	}
	return filtered
}

// postProcess strips fixed config-corruption warning lines and collapses
// runs of 3+ blank lines down to 2.
func postProcess(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		drop := false
		for _, w := range corruptionWarnings {
			if strings.HasPrefix(strings.TrimSpace(line), w) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, line)
		}
	}
	joined := strings.Join(kept, "\n")
	for strings.Contains(joined, "\n\n\n") {
		joined = blankRunCollapse.Replace(joined)
	}
	return joined
}

// sanitizeClaudeConfig checks the real ~/.claude.json for parse errors
// and, if found, best-effort restores the newest valid backup from the
// known backup directory. Synthesis proceeds regardless of outcome.
func sanitizeClaudeConfig() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	configPath := filepath.Join(home, ".claude.json")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return
	}
	if json.Valid(data) {
		return
	}

	backupDir := filepath.Join(home, ".claude", "backups")
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return
	}

	var newest string
	var newestMod time.Time
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(backupDir, ent.Name())
		candidate, err := os.ReadFile(path)
		if err != nil || !json.Valid(candidate) {
			continue
		}
		if info.ModTime().After(newestMod) {
			newest = path
			newestMod = info.ModTime()
		}
	}

	if newest == "" {
		return
	}
	if data, err := os.ReadFile(newest); err == nil {
		_ = os.WriteFile(configPath, data, 0o600)
	}
}
