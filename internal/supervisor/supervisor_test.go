package supervisor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sk8tingusmc/forge/internal/event"
	"github.com/sk8tingusmc/forge/internal/store"
	"github.com/sk8tingusmc/forge/pkg/types"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *event.Bus) {
	t.Helper()
	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	dbPath := filepath.Join(t.TempDir(), "forge.db")
	st, err := store.Open(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sup := New(bus, st, zerolog.Nop())
	t.Cleanup(sup.Close)
	return sup, bus
}

func TestWorkspaceOpen_UpsertsAndLoadsSkillsAndAgentsMd(t *testing.T) {
	sup, bus := newTestSupervisor(t)
	ctx := context.Background()

	var opened event.WorkspaceOpenedData
	openedCh := make(chan struct{}, 1)
	unsub := bus.Subscribe(event.WorkspaceOpened, func(e event.Event) {
		opened = e.Data.(event.WorkspaceOpenedData)
		openedCh <- struct{}{}
	})
	defer unsub()

	root := t.TempDir()
	result, err := sup.WorkspaceOpen(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, types.WorkspaceID(mustAbs(t, root)), result.Workspace.ID)
	assert.Empty(t, result.Skills)
	assert.Empty(t, result.AgentsMd)

	select {
	case <-openedCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for workspace.opened")
	}
	assert.Equal(t, result.Workspace.ID, opened.WorkspaceID)
}

func TestWorkspaceOpen_RejectsMissingDirectory(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	_, err := sup.WorkspaceOpen(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestWorkspacePin_DelegatesToStore(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	ctx := context.Background()

	root := t.TempDir()
	opened, err := sup.WorkspaceOpen(ctx, root)
	require.NoError(t, err)

	require.NoError(t, sup.WorkspacePin(ctx, opened.Workspace.ID, true))

	got, err := sup.WorkspaceGet(ctx, opened.Workspace.ID)
	require.NoError(t, err)
	assert.True(t, got.Pinned)
}

func TestShellSpawn_ShellSessionThenKillIsIdempotent(t *testing.T) {
	sup, bus := newTestSupervisor(t)
	ctx := context.Background()

	exitCh := make(chan event.PtyExitData, 1)
	unsub := bus.Subscribe(event.PtyExit, func(e event.Event) {
		exitCh <- e.Data.(event.PtyExitData)
	})
	defer unsub()

	require.NoError(t, sup.st.UpsertWorkspace(ctx, "ws1", t.TempDir(), "ws1"))
	ptyID, err := sup.ShellSpawn(ctx, ShellSpawnRequest{
		CLIType:       "claude",
		WorkspacePath: t.TempDir(),
		WorkspaceID:   "ws1",
		ShellSession:  true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ptyID)

	sup.ShellKill(ctx, ptyID)

	select {
	case <-exitCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pty exit")
	}

	// Idempotent: a second kill on an already-removed session is a no-op.
	sup.ShellKill(ctx, ptyID)
}

func TestShellSpawn_RejectsUnknownCLIType(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	_, err := sup.ShellSpawn(context.Background(), ShellSpawnRequest{
		CLIType:       "not-a-real-cli",
		WorkspacePath: t.TempDir(),
		WorkspaceID:   "ws1",
	})
	assert.Error(t, err)
}

func TestShellSpawn_ResumeRequiresClaudeAndSessionID(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	_, err := sup.ShellSpawn(context.Background(), ShellSpawnRequest{
		CLIType:         "gemini",
		WorkspacePath:   t.TempDir(),
		WorkspaceID:     "ws1",
		ResumeSessionID: "abc123",
	})
	assert.Error(t, err)
}

func TestShellSpawn_OneShotLoopRequiresClaudeAndGoal(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	_, err := sup.ShellSpawn(context.Background(), ShellSpawnRequest{
		CLIType:       "claude",
		WorkspacePath: t.TempDir(),
		WorkspaceID:   "ws1",
		OneShotLoop:   true,
	})
	assert.Error(t, err)
}

func TestAgentRoute_DelegatesToRouter(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	decision := sup.AgentRoute("refactor this module", "")
	assert.Equal(t, "claude", decision.CLI)
}

func TestMemoryStoreAndSearch_RoundTrip(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	ctx := context.Background()

	require.NoError(t, sup.st.UpsertWorkspace(ctx, "ws1", t.TempDir(), "ws1"))
	require.NoError(t, sup.MemoryStore(ctx, "ws1", "note-1", "remember the deploy window", types.MemoryCore))
	results, err := sup.MemorySearch(ctx, "ws1", "deploy")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "note-1", results[0].Key)
}

func TestContinuationStart_ClampsMaxIterationsAndKicksOff(t *testing.T) {
	sup, bus := newTestSupervisor(t)
	ctx := context.Background()

	require.NoError(t, sup.st.UpsertWorkspace(ctx, "ws1", t.TempDir(), "ws1"))
	ptyID, err := sup.ShellSpawn(ctx, ShellSpawnRequest{
		CLIType:       "claude",
		WorkspacePath: t.TempDir(),
		WorkspaceID:   "ws1",
		ShellSession:  true,
	})
	require.NoError(t, err)
	defer sup.ShellKill(ctx, ptyID)

	iterCh := make(chan event.ContinuationIterationData, 1)
	unsub := bus.Subscribe(event.ContinuationIteration, func(e event.Event) {
		iterCh <- e.Data.(event.ContinuationIterationData)
	})
	defer unsub()

	err = sup.ContinuationStart(ctx, ptyID, "ws1", "keep going", -5, false, true)
	require.NoError(t, err)

	select {
	case d := <-iterCh:
		assert.Equal(t, 1, d.Iteration)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for iteration event")
	}

	cp, ok := sup.ContinuationState(ptyID)
	require.True(t, ok)
	assert.Equal(t, minMaxIterations, cp.MaxIterations)

	sup.ContinuationStop(ptyID)
}

func mustAbs(t *testing.T, path string) string {
	t.Helper()
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	return abs
}
