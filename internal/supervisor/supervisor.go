// Package supervisor implements the top-level command surface: it owns
// the live session/PTY/continuation maps under single-writer discipline
// and wires the PTY Manager, Router, Store, Continuation Engine, and
// Synthesis Orchestrator together.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sk8tingusmc/forge/internal/continuation"
	"github.com/sk8tingusmc/forge/internal/event"
	"github.com/sk8tingusmc/forge/internal/ptymgr"
	"github.com/sk8tingusmc/forge/internal/router"
	"github.com/sk8tingusmc/forge/internal/store"
	"github.com/sk8tingusmc/forge/internal/synthesis"
	"github.com/sk8tingusmc/forge/internal/workspace"
	"github.com/sk8tingusmc/forge/pkg/types"
)

const (
	goalWriteDelay     = 1500 * time.Millisecond
	idleNotifyDelay    = 5 * time.Second
	defaultMaxIterations = 20
	minMaxIterations     = 1
	maxMaxIterations     = 100
	defaultSynthesisN    = 5
	minSynthesisN        = 1
	maxSynthesisN        = 12
)

// spawnMode classifies how a session's PTY was spawned, which in turn
// decides what the Continuation Engine's onContinue callback writes.
type spawnMode string

const (
	modeInteractive spawnMode = "interactive"
	modeResume      spawnMode = "resume"
	modeOneShotLoop spawnMode = "one_shot_loop"
	modeShellSession spawnMode = "shell_session"
)

// liveSession is the Supervisor's in-memory record of a spawned PTY,
// mirrored durably in the agent_sessions table.
type liveSession struct {
	ptyID       string
	workspaceID string
	cliType     string
	goal        string
	mode        spawnMode

	goalTimer  *time.Timer
	idleTimer  *time.Timer
	lastOutput time.Time
}

// ShellSpawnRequest captures a shell.spawn command's arguments.
type ShellSpawnRequest struct {
	CLIType         string
	WorkspacePath   string
	WorkspaceID     string
	Goal            string
	OneShotLoop     bool
	ShellSession    bool
	ResumeSessionID string
	Cols            int
	Rows            int
}

// Supervisor owns the session map keyed by ptyId and wires every other
// component's output back into the event bus and the Store.
type Supervisor struct {
	bus   *event.Bus
	st    *store.Store
	pty   *ptymgr.Manager
	cont  *continuation.Engine
	synth *synthesis.Orchestrator
	log   zerolog.Logger

	mu        sync.Mutex
	sessions  map[string]*liveSession
	focused   bool
	unsubData func()
	unsubExit func()
}

// New wires a Supervisor around an already-open Store and event bus.
func New(bus *event.Bus, st *store.Store, log zerolog.Logger) *Supervisor {
	s := &Supervisor{
		bus:      bus,
		st:       st,
		pty:      ptymgr.New(bus),
		cont:     continuation.New(bus),
		synth:    synthesis.New(bus),
		log:      log,
		sessions: make(map[string]*liveSession),
	}
	s.unsubData = bus.Subscribe(event.PtyData, s.onPtyData)
	s.unsubExit = bus.Subscribe(event.PtyExit, s.onPtyExit)
	return s
}

// SetFocused records whether the UI window currently has focus; idle and
// exit notifications are only emitted while it is false.
func (s *Supervisor) SetFocused(focused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focused = focused
}

// Close unsubscribes from the event bus. It does not kill live sessions.
func (s *Supervisor) Close() {
	if s.unsubData != nil {
		s.unsubData()
	}
	if s.unsubExit != nil {
		s.unsubExit()
	}
}

// OpenedWorkspace is the result of WorkspaceOpen.
type OpenedWorkspace struct {
	Workspace types.Workspace `json:"workspace"`
	Skills    []types.Skill   `json:"skills"`
	AgentsMd  string          `json:"agentsMd"`
}

// WorkspaceOpen resolves path to an absolute directory, validates it
// exists, computes its id, upserts the workspace row, and loads its skills
// and AGENTS.md content.
func (s *Supervisor) WorkspaceOpen(ctx context.Context, path string) (OpenedWorkspace, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return OpenedWorkspace{}, fmt.Errorf("resolve workspace path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return OpenedWorkspace{}, fmt.Errorf("workspace directory: %w", err)
	}
	if !info.IsDir() {
		return OpenedWorkspace{}, fmt.Errorf("workspace path is not a directory: %s", abs)
	}

	id := types.WorkspaceID(abs)
	name := filepath.Base(abs)
	if err := s.st.UpsertWorkspace(ctx, id, abs, name); err != nil {
		return OpenedWorkspace{}, err
	}
	ws, err := s.st.GetWorkspace(ctx, id)
	if err != nil {
		return OpenedWorkspace{}, err
	}

	skills, err := workspace.ScanSkills(abs)
	if err != nil {
		return OpenedWorkspace{}, err
	}
	agentsMd, err := workspace.LoadAgentsMd(abs)
	if err != nil {
		return OpenedWorkspace{}, err
	}

	s.bus.Publish(event.Event{Type: event.WorkspaceOpened, Data: event.WorkspaceOpenedData{WorkspaceID: id, Path: abs}})

	return OpenedWorkspace{Workspace: ws, Skills: skills, AgentsMd: agentsMd}, nil
}

// WorkspaceList delegates to the Store.
func (s *Supervisor) WorkspaceList(ctx context.Context) ([]types.Workspace, error) {
	return s.st.ListWorkspaces(ctx)
}

// WorkspaceGet delegates to the Store.
func (s *Supervisor) WorkspaceGet(ctx context.Context, id string) (types.Workspace, error) {
	return s.st.GetWorkspace(ctx, id)
}

// ActiveSessions delegates to the Store. An empty workspaceID lists active
// sessions across every workspace.
func (s *Supervisor) ActiveSessions(ctx context.Context, workspaceID string) ([]types.AgentSession, error) {
	return s.st.ListActiveSessions(ctx, workspaceID)
}

// WorkspacePin delegates to the Store.
func (s *Supervisor) WorkspacePin(ctx context.Context, id string, pinned bool) error {
	return s.st.SetWorkspacePinned(ctx, id, pinned)
}

// ShellSpawn validates req, picks a spawn spec for its mode, creates the
// PTY and its AgentSession row, and arranges any mode-specific initial
// write.
func (s *Supervisor) ShellSpawn(ctx context.Context, req ShellSpawnRequest) (string, error) {
	if !req.ShellSession && !types.IsValidCLIType(req.CLIType) {
		return "", fmt.Errorf("unknown CLI type: %q", req.CLIType)
	}
	if info, err := os.Stat(req.WorkspacePath); err != nil || !info.IsDir() {
		return "", fmt.Errorf("workspace directory does not exist: %s", req.WorkspacePath)
	}

	mode, spec, initialWrite, err := s.resolveSpawn(req)
	if err != nil {
		return "", err
	}

	ptyID, err := s.pty.Spawn(ptymgr.Spec{
		Cmd:  spec.Cmd,
		Args: spec.Args,
		Cwd:  spec.Cwd,
		Cols: req.Cols,
		Rows: req.Rows,
	})
	if err != nil {
		return "", fmt.Errorf("spawn pty: %w", err)
	}

	if err := s.st.CreateAgentSession(ctx, ptyID, req.WorkspaceID, req.CLIType, req.Goal); err != nil {
		s.pty.Kill(ptyID)
		return "", err
	}

	ls := &liveSession{
		ptyID:       ptyID,
		workspaceID: req.WorkspaceID,
		cliType:     req.CLIType,
		goal:        req.Goal,
		mode:        mode,
		lastOutput:  time.Now(),
	}

	s.mu.Lock()
	s.sessions[ptyID] = ls
	if initialWrite != "" {
		ls.goalTimer = time.AfterFunc(goalWriteDelay, func() { s.pty.Write(ptyID, []byte(initialWrite)) })
	}
	s.mu.Unlock()

	return ptyID, nil
}

// resolveSpawn picks the SpawnSpec and any initial-write payload for req's
// mode, enforcing the per-mode eligibility rules.
func (s *Supervisor) resolveSpawn(req ShellSpawnRequest) (spawnMode, router.SpawnSpec, string, error) {
	switch {
	case req.ShellSession:
		return modeShellSession, router.PlatformShellSpec(req.WorkspacePath), "", nil

	case req.ResumeSessionID != "":
		if req.CLIType != "claude" {
			return "", router.SpawnSpec{}, "", errors.New("resume is only supported for claude")
		}
		cmd := router.BuildResumeCommand(req.CLIType, req.ResumeSessionID)
		if cmd == "" {
			return "", router.SpawnSpec{}, "", errors.New("could not build resume command")
		}
		return modeResume, router.PlatformShellSpec(req.WorkspacePath), cmd + "\n", nil

	case req.OneShotLoop:
		if req.CLIType != "claude" || req.Goal == "" {
			return "", router.SpawnSpec{}, "", errors.New("one-shot loop requires cliType=claude and a non-empty goal")
		}
		return modeOneShotLoop, router.PlatformShellSpec(req.WorkspacePath), "", nil

	default:
		spec := router.BuildSpawnSpec(req.CLIType, req.WorkspacePath)
		var initial string
		if req.Goal != "" {
			initial = req.Goal + "\r"
		}
		return modeInteractive, spec, initial, nil
	}
}

// ShellWrite forwards data to ptyId's PTY. Unknown ids are a silent no-op.
func (s *Supervisor) ShellWrite(ptyID string, data []byte) {
	s.pty.Write(ptyID, data)
}

// ShellResize validates and forwards a resize to ptyId.
func (s *Supervisor) ShellResize(ptyID string, cols, rows int) error {
	return s.pty.Resize(ptyID, cols, rows)
}

// ShellKill tears ptyId down idempotently: PTY kill, continuation stop,
// goal-timer stop, and the AgentSession row closed out.
func (s *Supervisor) ShellKill(ctx context.Context, ptyID string) {
	s.mu.Lock()
	ls, ok := s.sessions[ptyID]
	if ok {
		delete(s.sessions, ptyID)
	}
	s.mu.Unlock()

	s.pty.Kill(ptyID)
	s.cont.Stop(ptyID)

	if ok {
		if ls.goalTimer != nil {
			ls.goalTimer.Stop()
		}
		if ls.idleTimer != nil {
			ls.idleTimer.Stop()
		}
		_ = s.st.EndAgentSession(ctx, ptyID)
		_ = s.st.DeleteContinuationState(ctx, ptyID)
		s.bus.Publish(event.Event{Type: event.SessionEnded, Data: event.SessionEndedData{SessionID: ptyID, WorkspaceID: ls.workspaceID}})
	}
}

// AgentRoute delegates to the Router.
func (s *Supervisor) AgentRoute(goal, preferredCLI string) router.Decision {
	return router.RouteTask(goal, preferredCLI)
}

// MemoryStore delegates to the Store.
func (s *Supervisor) MemoryStore(ctx context.Context, workspaceID, key, content string, category types.MemoryCategory) error {
	return s.st.StoreMemory(ctx, workspaceID, key, content, category)
}

// MemorySearch delegates to the Store.
func (s *Supervisor) MemorySearch(ctx context.Context, workspaceID, query string) ([]types.Memory, error) {
	return s.st.SearchMemory(ctx, workspaceID, query)
}

// MemoryList delegates to the Store.
func (s *Supervisor) MemoryList(ctx context.Context, workspaceID string, category types.MemoryCategory) ([]types.Memory, error) {
	return s.st.ListMemories(ctx, workspaceID, category)
}

// MemoryDelete delegates to the Store.
func (s *Supervisor) MemoryDelete(ctx context.Context, workspaceID, key string) error {
	return s.st.DeleteMemory(ctx, workspaceID, key)
}

// ContinuationStart clamps maxIterations, persists the initial checkpoint,
// and starts the Continuation Engine with hooks that keep the checkpoint
// and the owning AgentSession's iteration_count in sync.
func (s *Supervisor) ContinuationStart(ctx context.Context, ptyID, workspaceID, goal string, maxIterations int, requirePrompt, kickOff bool) error {
	switch {
	case maxIterations == 0:
		maxIterations = defaultMaxIterations
	case maxIterations < minMaxIterations:
		maxIterations = minMaxIterations
	case maxIterations > maxMaxIterations:
		maxIterations = maxMaxIterations
	}

	onContinue := func(id string) {
		s.mu.Lock()
		sess := s.sessions[id]
		s.mu.Unlock()
		if sess != nil && sess.mode == modeOneShotLoop {
			cmd := router.BuildOneShotCommand(sess.cliType, sess.goal) + "; echo " + continuation.OneShotDoneMarker + "\n"
			s.pty.Write(id, []byte(cmd))
			return
		}
		s.pty.Write(id, []byte("continue\n"))
	}

	hooks := continuation.Hooks{
		OnIteration: func(id string, iteration int) {
			cp := types.ContinuationCheckpoint{
				PtyID: id, WorkspaceID: workspaceID, Goal: goal,
				MaxIterations: maxIterations, CurrentIteration: iteration,
				Status: types.ContinuationRunning,
			}
			if err := s.st.SaveContinuationState(ctx, cp); err != nil {
				s.log.Warn().Err(err).Str("ptyId", id).Msg("checkpoint save failed")
			}
			if err := s.st.IncrementSessionIteration(ctx, id); err != nil {
				s.log.Warn().Err(err).Str("ptyId", id).Msg("iteration increment failed")
			}
		},
		OnTerminal: func(id string, status types.ContinuationStatus) {
			if err := s.st.DeleteContinuationState(ctx, id); err != nil {
				s.log.Warn().Err(err).Str("ptyId", id).Msg("checkpoint delete failed")
			}
		},
	}

	cp := types.ContinuationCheckpoint{
		PtyID: ptyID, WorkspaceID: workspaceID, Goal: goal,
		MaxIterations: maxIterations, CurrentIteration: 0,
		Status: types.ContinuationRunning,
	}
	if err := s.st.SaveContinuationState(ctx, cp); err != nil {
		return err
	}

	s.cont.Start(ptyID, workspaceID, goal, maxIterations, onContinue, hooks, continuation.Options{
		RequirePrompt: requirePrompt,
		KickOff:       kickOff,
	})
	return nil
}

// ContinuationStop delegates to the Continuation Engine.
func (s *Supervisor) ContinuationStop(ptyID string) {
	s.cont.Stop(ptyID)
}

// ContinuationState delegates to the Continuation Engine.
func (s *Supervisor) ContinuationState(ptyID string) (types.ContinuationCheckpoint, bool) {
	return s.cont.State(ptyID)
}

// EnsembleSynthesis clamps n and delegates to the Synthesis Orchestrator.
func (s *Supervisor) EnsembleSynthesis(ctx context.Context, cliPath, workspacePath, workspaceID, goal string, n int) (synthesis.Result, error) {
	switch {
	case n == 0:
		n = defaultSynthesisN
	case n < minSynthesisN:
		n = minSynthesisN
	case n > maxSynthesisN:
		n = maxSynthesisN
	}
	return s.synth.Run(ctx, cliPath, workspacePath, workspaceID, goal, n)
}

// onPtyData feeds output into the Continuation Engine and re-arms ptyId's
// idle-notification timer.
func (s *Supervisor) onPtyData(e event.Event) {
	d, ok := e.Data.(event.PtyDataData)
	if !ok {
		return
	}
	s.cont.OnOutput(d.PtyID, d.Chunk)

	s.mu.Lock()
	ls, ok := s.sessions[d.PtyID]
	if !ok {
		s.mu.Unlock()
		return
	}
	ls.lastOutput = time.Now()
	if ls.idleTimer != nil {
		ls.idleTimer.Stop()
	}
	ptyID := d.PtyID
	ls.idleTimer = time.AfterFunc(idleNotifyDelay, func() { s.onIdleTimeout(ptyID) })
	s.mu.Unlock()
}

// onIdleTimeout emits an idle notification if the window is unfocused.
func (s *Supervisor) onIdleTimeout(ptyID string) {
	s.mu.Lock()
	focused := s.focused
	_, tracked := s.sessions[ptyID]
	s.mu.Unlock()
	if tracked && !focused {
		s.bus.Publish(event.Event{Type: event.NotificationIdle, Data: event.NotificationIdleData{PtyID: ptyID}})
	}
}

// onPtyExit tears ptyId's session down as ShellKill does (a no-op if it
// was already killed) and emits an exit notification if the window is
// unfocused.
func (s *Supervisor) onPtyExit(e event.Event) {
	d, ok := e.Data.(event.PtyExitData)
	if !ok {
		return
	}
	s.ShellKill(context.Background(), d.PtyID)
	s.mu.Lock()
	focused := s.focused
	s.mu.Unlock()
	if !focused {
		s.bus.Publish(event.Event{Type: event.NotificationExit, Data: event.NotificationExitData{PtyID: d.PtyID, Code: d.Code}})
	}
}
