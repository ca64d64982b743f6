package facade

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"

	"github.com/sk8tingusmc/forge/internal/supervisor"
	"github.com/sk8tingusmc/forge/pkg/types"
)

// commandHandler executes one named command against raw JSON body, returning
// the value to be serialized as the response, or an error.
type commandHandler func(ctx context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error)

// commands is the fixed dispatch table behind POST /command/{name}.
var commands = map[string]commandHandler{
	"workspace.open":           cmdWorkspaceOpen,
	"workspace.list":           cmdWorkspaceList,
	"workspace.get":            cmdWorkspaceGet,
	"workspace.pickDirectory":  cmdWorkspacePickDirectory,
	"workspace.getSkills":      cmdWorkspaceGetSkills,
	"workspace.getAgentsMd":    cmdWorkspaceGetAgentsMd,
	"workspace.activeSessions": cmdWorkspaceActiveSessions,
	"workspace.pin":            cmdWorkspacePin,
	"memory.store":             cmdMemoryStore,
	"memory.search":            cmdMemorySearch,
	"memory.list":              cmdMemoryList,
	"memory.delete":            cmdMemoryDelete,
	"agent.route":              cmdAgentRoute,
	"shell.spawn":              cmdShellSpawn,
	"shell.list":               cmdShellList,
	"shell.kill":               cmdShellKill,
	"shell.openExternal":       cmdShellOpenExternal,
	"shell.openPath":           cmdShellOpenPath,
	"continuation.start":       cmdContinuationStart,
	"continuation.stop":        cmdContinuationStop,
	"continuation.state":       cmdContinuationState,
	"ensemble.synthesis":       cmdEnsembleSynthesis,
}

func decode[T any](body json.RawMessage) (T, error) {
	var v T
	if len(body) == 0 {
		return v, nil
	}
	err := json.Unmarshal(body, &v)
	return v, err
}

type workspaceOpenRequest struct {
	Path string `json:"path"`
}

func cmdWorkspaceOpen(ctx context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[workspaceOpenRequest](body)
	if err != nil {
		return nil, err
	}
	if req.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	return sup.WorkspaceOpen(ctx, req.Path)
}

func cmdWorkspaceList(ctx context.Context, sup *supervisor.Supervisor, _ json.RawMessage) (any, error) {
	return sup.WorkspaceList(ctx)
}

type workspaceGetRequest struct {
	ID string `json:"id"`
}

func cmdWorkspaceGet(ctx context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[workspaceGetRequest](body)
	if err != nil {
		return nil, err
	}
	return sup.WorkspaceGet(ctx, req.ID)
}

// cmdWorkspacePickDirectory has no headless equivalent: a native directory
// picker requires a desktop GUI the core does not host.
func cmdWorkspacePickDirectory(context.Context, *supervisor.Supervisor, json.RawMessage) (any, error) {
	return nil, errNotImplemented{"workspace.pickDirectory requires a native directory picker, unavailable in this headless core"}
}

type workspacePathRequest struct {
	Path string `json:"path"`
}

func cmdWorkspaceGetSkills(_ context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[workspacePathRequest](body)
	if err != nil {
		return nil, err
	}
	opened, err := sup.WorkspaceOpen(context.Background(), req.Path)
	if err != nil {
		return nil, err
	}
	return opened.Skills, nil
}

func cmdWorkspaceGetAgentsMd(_ context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[workspacePathRequest](body)
	if err != nil {
		return nil, err
	}
	opened, err := sup.WorkspaceOpen(context.Background(), req.Path)
	if err != nil {
		return nil, err
	}
	return opened.AgentsMd, nil
}

type workspaceIDRequest struct {
	WorkspaceID string `json:"workspaceId"`
}

func cmdWorkspaceActiveSessions(ctx context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[workspaceIDRequest](body)
	if err != nil {
		return nil, err
	}
	return sup.ActiveSessions(ctx, req.WorkspaceID)
}

type workspacePinRequest struct {
	ID     string `json:"id"`
	Pinned bool   `json:"pinned"`
}

func cmdWorkspacePin(ctx context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[workspacePinRequest](body)
	if err != nil {
		return nil, err
	}
	if err := sup.WorkspacePin(ctx, req.ID, req.Pinned); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

type memoryStoreRequest struct {
	WorkspaceID string              `json:"workspaceId"`
	Key         string              `json:"key"`
	Content     string              `json:"content"`
	Category    types.MemoryCategory `json:"category,omitempty"`
}

func cmdMemoryStore(ctx context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[memoryStoreRequest](body)
	if err != nil {
		return nil, err
	}
	if err := sup.MemoryStore(ctx, req.WorkspaceID, req.Key, req.Content, req.Category); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

type memorySearchRequest struct {
	WorkspaceID string `json:"workspaceId"`
	Query       string `json:"query"`
}

func cmdMemorySearch(ctx context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[memorySearchRequest](body)
	if err != nil {
		return nil, err
	}
	return sup.MemorySearch(ctx, req.WorkspaceID, req.Query)
}

type memoryListRequest struct {
	WorkspaceID string               `json:"workspaceId"`
	Category    types.MemoryCategory `json:"category,omitempty"`
}

func cmdMemoryList(ctx context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[memoryListRequest](body)
	if err != nil {
		return nil, err
	}
	return sup.MemoryList(ctx, req.WorkspaceID, req.Category)
}

type memoryDeleteRequest struct {
	WorkspaceID string `json:"workspaceId"`
	Key         string `json:"key"`
}

func cmdMemoryDelete(ctx context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[memoryDeleteRequest](body)
	if err != nil {
		return nil, err
	}
	if err := sup.MemoryDelete(ctx, req.WorkspaceID, req.Key); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

type agentRouteRequest struct {
	Description string `json:"description"`
	Preferred   string `json:"preferred,omitempty"`
}

func cmdAgentRoute(_ context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[agentRouteRequest](body)
	if err != nil {
		return nil, err
	}
	return sup.AgentRoute(req.Description, req.Preferred), nil
}

type shellSpawnRequest struct {
	CLIType         string `json:"cliType"`
	WorkspacePath   string `json:"workspacePath"`
	WorkspaceID     string `json:"workspaceId"`
	Goal            string `json:"goal,omitempty"`
	OneShotLoop     bool   `json:"oneShotLoop,omitempty"`
	ShellSession    bool   `json:"shellSession,omitempty"`
	ResumeSessionID string `json:"resumeSessionId,omitempty"`
	Cols            int    `json:"cols,omitempty"`
	Rows            int    `json:"rows,omitempty"`
}

func cmdShellSpawn(ctx context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[shellSpawnRequest](body)
	if err != nil {
		return nil, err
	}
	ptyID, err := sup.ShellSpawn(ctx, supervisor.ShellSpawnRequest{
		CLIType:         req.CLIType,
		WorkspacePath:   req.WorkspacePath,
		WorkspaceID:     req.WorkspaceID,
		Goal:            req.Goal,
		OneShotLoop:     req.OneShotLoop,
		ShellSession:    req.ShellSession,
		ResumeSessionID: req.ResumeSessionID,
		Cols:            req.Cols,
		Rows:            req.Rows,
	})
	if err != nil {
		return nil, err
	}
	return map[string]string{"ptyId": ptyID}, nil
}

func cmdShellList(ctx context.Context, sup *supervisor.Supervisor, _ json.RawMessage) (any, error) {
	return sup.ActiveSessions(ctx, "")
}

type ptyIDRequest struct {
	PtyID string `json:"ptyId"`
}

func cmdShellKill(ctx context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[ptyIDRequest](body)
	if err != nil {
		return nil, err
	}
	sup.ShellKill(ctx, req.PtyID)
	return map[string]bool{"ok": true}, nil
}

type urlRequest struct {
	URL string `json:"url"`
}

func cmdShellOpenExternal(_ context.Context, _ *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[urlRequest](body)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("shell.openExternal rejects non-http(s) URLs")
	}
	if err := openWithOSHandler(req.URL); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

type pathRequest struct {
	Path string `json:"path"`
}

func cmdShellOpenPath(_ context.Context, _ *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[pathRequest](body)
	if err != nil {
		return nil, err
	}
	if err := openWithOSHandler(req.Path); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

// openWithOSHandler shells out to the platform's default opener. Grounded
// on the teacher's bash tool's platform-dispatch-by-GOOS shape.
func openWithOSHandler(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	return cmd.Start()
}

type continuationStartRequest struct {
	PtyID         string `json:"ptyId"`
	WorkspaceID   string `json:"workspaceId"`
	Goal          string `json:"goal"`
	MaxIterations int    `json:"maxIterations,omitempty"`
	RequirePrompt bool   `json:"requirePrompt,omitempty"`
	KickOff       bool   `json:"kickOff,omitempty"`
}

func cmdContinuationStart(ctx context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[continuationStartRequest](body)
	if err != nil {
		return nil, err
	}
	if err := sup.ContinuationStart(ctx, req.PtyID, req.WorkspaceID, req.Goal, req.MaxIterations, req.RequirePrompt, req.KickOff); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func cmdContinuationStop(_ context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[ptyIDRequest](body)
	if err != nil {
		return nil, err
	}
	sup.ContinuationStop(req.PtyID)
	return map[string]bool{"ok": true}, nil
}

func cmdContinuationState(_ context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[ptyIDRequest](body)
	if err != nil {
		return nil, err
	}
	cp, ok := sup.ContinuationState(req.PtyID)
	if !ok {
		return nil, errNotFound{"no active continuation for ptyId"}
	}
	return cp, nil
}

type ensembleSynthesisRequest struct {
	CLIPath       string `json:"cliPath"`
	WorkspacePath string `json:"workspacePath"`
	WorkspaceID   string `json:"workspaceId"`
	Goal          string `json:"goal"`
	N             int    `json:"n,omitempty"`
}

func cmdEnsembleSynthesis(ctx context.Context, sup *supervisor.Supervisor, body json.RawMessage) (any, error) {
	req, err := decode[ensembleSynthesisRequest](body)
	if err != nil {
		return nil, err
	}
	cliPath := req.CLIPath
	if cliPath == "" {
		cliPath = "claude"
	}
	return sup.EnsembleSynthesis(ctx, cliPath, req.WorkspacePath, req.WorkspaceID, req.Goal, req.N)
}

type errNotImplemented struct{ msg string }

func (e errNotImplemented) Error() string { return e.msg }

type errNotFound struct{ msg string }

func (e errNotFound) Error() string { return e.msg }

// statusFor maps a dispatch error to an HTTP status code.
func statusFor(err error) int {
	switch err.(type) {
	case errNotImplemented:
		return 501
	case errNotFound:
		return 404
	default:
		return 400
	}
}
