// Package continuation implements the per-ptyId state machine that
// watches an assistant's PTY output and periodically decides whether to
// re-engage it, up to a fixed iteration cap.
package continuation

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sk8tingusmc/forge/internal/event"
	"github.com/sk8tingusmc/forge/pkg/types"
)

const (
	// OneShotDoneMarker is appended (as "; echo <marker>") to each
	// iteration of a one-shot loop so the engine can detect the shell
	// command completed, even though the shell itself has no prompt.
	OneShotDoneMarker = "__forge_oneshot_done__"

	minQuietDelay     = 250 * time.Millisecond
	defaultQuietDelay = 12 * time.Second
	maxBufferLen      = 50000
	trimmedBufferLen  = 20000
	promptTailLines   = 5
)

var promptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`❯\s*$`),
	regexp.MustCompile(`\$\s*$`),
	regexp.MustCompile(`(?i)^[a-z]:\\.*>\s*$`),
	regexp.MustCompile(`(?i)(claude|gemini|codex)>\s*$`),
	regexp.MustCompile(`>\s*$`),
	regexp.MustCompile(regexp.QuoteMeta(OneShotDoneMarker)),
}

var completionPattern = regexp.MustCompile(`(?i)<promise>done</promise>|all tasks completed|task complete|finished successfully|completed successfully`)

// Hooks are invoked by the engine as a continuation progresses. All are
// optional; a nil hook is simply skipped.
type Hooks struct {
	// OnIteration fires after the iteration counter is advanced and the
	// continuation.iteration event is published, before onContinue writes
	// to the PTY.
	OnIteration func(ptyID string, iteration int)
	// OnTerminal fires exactly once when a continuation reaches a
	// terminal status (done, max_reached, or cancelled).
	OnTerminal func(ptyID string, status types.ContinuationStatus)
}

// Options configures a Start call.
type Options struct {
	// KickOff, if true, runs one iteration immediately, bypassing the
	// quiet timer and prompt check for the first step.
	KickOff bool
	// RequirePrompt gates re-engagement on an idle prompt being seen in
	// the last few output lines, rather than on silence alone.
	RequirePrompt bool
	// QuietDelay overrides the default quiet period before the engine
	// re-evaluates. Zero selects the default; positive values are clamped
	// to >= 250ms.
	QuietDelay time.Duration
}

// OnContinue is called to re-engage the assistant: write either
// "continue\n" or a one-shot command terminated by a newline to ptyID.
type OnContinue func(ptyID string)

type runState struct {
	mu sync.Mutex

	ptyID       string
	workspaceID string
	goal        string

	maxIterations    int
	currentIteration int
	status           types.ContinuationStatus
	requirePrompt    bool
	quietDelay       time.Duration

	outputBuffer []byte
	timer        *time.Timer

	onContinue OnContinue
	hooks      Hooks
}

// Engine runs at most one continuation per ptyId; starting a new one
// cancels any prior state for that id.
type Engine struct {
	bus *event.Bus

	mu     sync.Mutex
	states map[string]*runState
}

// New creates an Engine that emits continuation.* events onto bus.
func New(bus *event.Bus) *Engine {
	return &Engine{bus: bus, states: make(map[string]*runState)}
}

// Start begins a new continuation for ptyId, silently discarding any prior
// state for that id (no cancellation notification: the prior run is being
// superseded, not cancelled).
func (e *Engine) Start(ptyID, workspaceID, goal string, maxIterations int, onContinue OnContinue, hooks Hooks, opts Options) {
	e.stop(ptyID, false)

	quiet := opts.QuietDelay
	if quiet <= 0 {
		quiet = defaultQuietDelay
	} else if quiet < minQuietDelay {
		quiet = minQuietDelay
	}

	rs := &runState{
		ptyID:         ptyID,
		workspaceID:   workspaceID,
		goal:          goal,
		maxIterations: maxIterations,
		status:        types.ContinuationRunning,
		requirePrompt: opts.RequirePrompt,
		quietDelay:    quiet,
		onContinue:    onContinue,
		hooks:         hooks,
	}

	e.mu.Lock()
	e.states[ptyID] = rs
	e.mu.Unlock()

	if opts.KickOff {
		e.runIteration(rs)
		return
	}
	e.armTimer(rs)
}

// OnOutput appends a PTY output chunk to ptyId's buffer (trimming on
// overflow) and re-arms its quiet timer. A ptyId with no active
// continuation is ignored.
func (e *Engine) OnOutput(ptyID string, chunk []byte) {
	e.mu.Lock()
	rs := e.states[ptyID]
	e.mu.Unlock()
	if rs == nil {
		return
	}

	rs.mu.Lock()
	rs.outputBuffer = append(rs.outputBuffer, chunk...)
	if len(rs.outputBuffer) > maxBufferLen {
		rs.outputBuffer = rs.outputBuffer[len(rs.outputBuffer)-trimmedBufferLen:]
	}
	if rs.timer != nil {
		rs.timer.Stop()
	}
	rs.mu.Unlock()

	e.armTimer(rs)
}

// armTimer (re)schedules rs's quiet-timeout tick.
func (e *Engine) armTimer(rs *runState) {
	rs.mu.Lock()
	if rs.timer != nil {
		rs.timer.Stop()
	}
	delay := rs.quietDelay
	rs.timer = time.AfterFunc(delay, func() { e.onTimerFire(rs) })
	rs.mu.Unlock()
}

// onTimerFire evaluates completion, then prompt-idle, then the iteration
// cap, in that order, guarded by rs.mu so a concurrent OnOutput cannot
// race the decision.
func (e *Engine) onTimerFire(rs *runState) {
	rs.mu.Lock()

	e.mu.Lock()
	_, stillTracked := e.states[rs.ptyID]
	e.mu.Unlock()
	if !stillTracked {
		rs.mu.Unlock()
		return
	}

	if completionPattern.Match(rs.outputBuffer) {
		rs.status = types.ContinuationDone
		rs.mu.Unlock()
		e.finish(rs, types.ContinuationDone)
		return
	}

	if rs.requirePrompt && !hasIdlePrompt(rs.outputBuffer) {
		rs.mu.Unlock()
		e.armTimer(rs)
		return
	}

	rs.mu.Unlock()
	e.runIteration(rs)
}

// runIteration advances the iteration counter and re-engages the
// assistant, or ends the continuation if the cap has been reached.
func (e *Engine) runIteration(rs *runState) {
	rs.mu.Lock()
	if rs.currentIteration >= rs.maxIterations {
		rs.status = types.ContinuationMaxReached
		rs.mu.Unlock()
		e.finish(rs, types.ContinuationMaxReached)
		return
	}

	rs.currentIteration++
	rs.outputBuffer = nil
	iteration := rs.currentIteration
	ptyID := rs.ptyID
	onContinue := rs.onContinue
	hooks := rs.hooks
	rs.mu.Unlock()

	e.bus.PublishSync(event.Event{
		Type: event.ContinuationIteration,
		Data: event.ContinuationIterationData{PtyID: ptyID, Iteration: iteration},
	})
	if hooks.OnIteration != nil {
		hooks.OnIteration(ptyID, iteration)
	}

	if onContinue != nil {
		onContinue(ptyID)
	}

	e.armTimer(rs)
}

// finish transitions rs to a terminal status, removes it from the
// engine's tracking map, and notifies hooks/the event bus exactly once.
func (e *Engine) finish(rs *runState, status types.ContinuationStatus) {
	e.mu.Lock()
	delete(e.states, rs.ptyID)
	e.mu.Unlock()

	rs.mu.Lock()
	if rs.timer != nil {
		rs.timer.Stop()
	}
	ptyID := rs.ptyID
	goal := rs.goal
	iterations := rs.currentIteration
	hooks := rs.hooks
	rs.mu.Unlock()

	switch status {
	case types.ContinuationMaxReached:
		e.bus.Publish(event.Event{
			Type: event.ContinuationMaxReached,
			Data: event.ContinuationMaxReachedData{PtyID: ptyID, Iterations: iterations, Goal: goal},
		})
	default:
		e.bus.Publish(event.Event{
			Type: event.ContinuationDone,
			Data: event.ContinuationDoneData{PtyID: ptyID, Iterations: iterations},
		})
	}
	if hooks.OnTerminal != nil {
		hooks.OnTerminal(ptyID, status)
	}
}

// Stop cancels ptyId's continuation immediately, if one is running.
func (e *Engine) Stop(ptyID string) {
	e.stop(ptyID, true)
}

// stop removes ptyId's run state, if any, and stops its timer. When notify
// is true (an explicit caller-requested Stop) it also publishes
// continuation.cancelled and invokes OnTerminal; when false (Start
// superseding a prior run for the same id) it does neither, since the
// prior run was never visibly cancelled to begin with.
func (e *Engine) stop(ptyID string, notify bool) {
	e.mu.Lock()
	rs, ok := e.states[ptyID]
	if ok {
		delete(e.states, ptyID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	rs.mu.Lock()
	if rs.timer != nil {
		rs.timer.Stop()
	}
	hooks := rs.hooks
	rs.mu.Unlock()

	if !notify {
		return
	}

	e.bus.Publish(event.Event{Type: event.ContinuationCancelled, Data: event.ContinuationTerminalData{PtyID: ptyID}})
	if hooks.OnTerminal != nil {
		hooks.OnTerminal(ptyID, types.ContinuationCancelled)
	}
}

// State reports ptyId's current checkpoint, if a continuation is active.
func (e *Engine) State(ptyID string) (types.ContinuationCheckpoint, bool) {
	e.mu.Lock()
	rs, ok := e.states[ptyID]
	e.mu.Unlock()
	if !ok {
		return types.ContinuationCheckpoint{}, false
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	return types.ContinuationCheckpoint{
		PtyID:            rs.ptyID,
		WorkspaceID:      rs.workspaceID,
		Goal:             rs.goal,
		MaxIterations:    rs.maxIterations,
		CurrentIteration: rs.currentIteration,
		Status:           rs.status,
	}, true
}

// hasIdlePrompt reports whether the last few lines of buf look like an
// idle shell/assistant prompt.
func hasIdlePrompt(buf []byte) bool {
	lines := strings.Split(string(buf), "\n")
	start := 0
	if len(lines) > promptTailLines {
		start = len(lines) - promptTailLines
	}
	for _, line := range lines[start:] {
		for _, p := range promptPatterns {
			if p.MatchString(line) {
				return true
			}
		}
	}
	return false
}
