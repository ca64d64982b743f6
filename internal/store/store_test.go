package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sk8tingusmc/forge/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "forge.db")
	s, err := Open(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWorkspace_UpsertAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertWorkspace(ctx, "ws1", "/home/me/proj", "proj"))
	list, err := s.ListWorkspaces(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "ws1", list[0].ID)

	// Re-upsert on the same path with a new id replaces the id and bumps lastOpened.
	require.NoError(t, s.UpsertWorkspace(ctx, "ws1-again", "/home/me/proj", "proj"))
	list, err = s.ListWorkspaces(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "ws1-again", list[0].ID)
}

func TestWorkspace_PinnedSortsFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertWorkspace(ctx, "a", "/a", "a"))
	require.NoError(t, s.UpsertWorkspace(ctx, "b", "/b", "b"))
	require.NoError(t, s.SetWorkspacePinned(ctx, "b", true))

	list, err := s.ListWorkspaces(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "b", list[0].ID)
}

func TestMemory_StoreListDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertWorkspace(ctx, "ws1", "/home/me/proj", "proj"))

	require.NoError(t, s.StoreMemory(ctx, "ws1", "api-key-format", "keys start with sk-", types.MemoryCore))
	require.NoError(t, s.StoreMemory(ctx, "ws1", "daily-note", "fixed the router today", types.MemoryDaily))

	all, err := s.ListMemories(ctx, "ws1", "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	core, err := s.ListMemories(ctx, "ws1", types.MemoryCore)
	require.NoError(t, err)
	require.Len(t, core, 1)
	require.Equal(t, "api-key-format", core[0].Key)

	require.NoError(t, s.DeleteMemory(ctx, "ws1", "daily-note"))
	all, err = s.ListMemories(ctx, "ws1", "")
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestMemory_StoreUpsertsOnSameKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertWorkspace(ctx, "ws1", "/home/me/proj", "proj"))

	require.NoError(t, s.StoreMemory(ctx, "ws1", "k", "v1", types.MemoryCore))
	require.NoError(t, s.StoreMemory(ctx, "ws1", "k", "v2", types.MemoryCore))

	all, err := s.ListMemories(ctx, "ws1", "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "v2", all[0].Content)
}

func TestMemory_SearchFullText(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertWorkspace(ctx, "ws1", "/home/me/proj", "proj"))
	require.NoError(t, s.StoreMemory(ctx, "ws1", "router-note", "the router uses weighted keyword rules", types.MemoryCore))
	require.NoError(t, s.StoreMemory(ctx, "ws1", "unrelated", "something about pizza toppings", types.MemoryCore))

	results, err := s.SearchMemory(ctx, "ws1", "router")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "router-note", results[0].Key)
}

func TestMemory_SearchFallsBackToLikeOnBadFTSSyntax(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertWorkspace(ctx, "ws1", "/home/me/proj", "proj"))
	require.NoError(t, s.StoreMemory(ctx, "ws1", "note", "50% of tasks are done", types.MemoryCore))

	// A bare '"' is invalid fts5 MATCH syntax; the LIKE fallback runs
	// instead of surfacing the error (and copes with the % present in user
	// content). No stored content contains the literal query, so no rows.
	results, err := s.SearchMemory(ctx, "ws1", `"unterminated`)
	require.NoError(t, err)
	require.Len(t, results, 0)
}

func TestAgentSession_Lifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertWorkspace(ctx, "ws1", "/home/me/proj", "proj"))

	require.NoError(t, s.CreateAgentSession(ctx, "sess1", "ws1", "claude", "fix the bug"))
	active, err := s.ListActiveSessions(ctx, "ws1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, 0, active[0].IterationCount)

	require.NoError(t, s.IncrementSessionIteration(ctx, "sess1"))
	active, err = s.ListActiveSessions(ctx, "ws1")
	require.NoError(t, err)
	require.Equal(t, 1, active[0].IterationCount)

	require.NoError(t, s.EndAgentSession(ctx, "sess1"))
	active, err = s.ListActiveSessions(ctx, "ws1")
	require.NoError(t, err)
	require.Len(t, active, 0)
}

func TestContinuationState_SaveUpdateDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertWorkspace(ctx, "ws1", "/home/me/proj", "proj"))

	cp := types.ContinuationCheckpoint{
		PtyID: "pty1", WorkspaceID: "ws1", Goal: "ship it",
		MaxIterations: 10, CurrentIteration: 0, Status: types.ContinuationRunning,
	}
	require.NoError(t, s.SaveContinuationState(ctx, cp))

	checkpoints, err := s.ListContinuationCheckpoints(ctx)
	require.NoError(t, err)
	require.Len(t, checkpoints, 1)
	require.Equal(t, 0, checkpoints[0].CurrentIteration)

	require.NoError(t, s.UpdateContinuationIteration(ctx, "pty1", 3, types.ContinuationRunning))
	checkpoints, err = s.ListContinuationCheckpoints(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, checkpoints[0].CurrentIteration)

	require.NoError(t, s.DeleteContinuationState(ctx, "pty1"))
	checkpoints, err = s.ListContinuationCheckpoints(ctx)
	require.NoError(t, err)
	require.Len(t, checkpoints, 0)
}
