package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sk8tingusmc/forge/pkg/types"
)

// CreateAgentSession inserts a new active agent-session row.
func (s *Store) CreateAgentSession(ctx context.Context, id, workspaceID, cliType, goal string) error {
	now := time.Now().Unix()
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO agent_sessions (id, workspace_id, cli_type, goal, status, iteration_count, started_at)
			VALUES (?, ?, ?, ?, ?, 0, ?)
		`, id, workspaceID, cliType, goal, string(types.SessionActive), now)
		if err != nil {
			return fmt.Errorf("create agent session: %w", err)
		}
		return nil
	})
}

// EndAgentSession marks a session ended and stamps endedAt.
func (s *Store) EndAgentSession(ctx context.Context, id string) error {
	now := time.Now().Unix()
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE agent_sessions SET status = ?, ended_at = ? WHERE id = ?
		`, string(types.SessionEnded), now, id)
		if err != nil {
			return fmt.Errorf("end agent session: %w", err)
		}
		return nil
	})
}

// IncrementSessionIteration bumps a session's iteration_count by one.
func (s *Store) IncrementSessionIteration(ctx context.Context, id string) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE agent_sessions SET iteration_count = iteration_count + 1 WHERE id = ?
		`, id)
		if err != nil {
			return fmt.Errorf("increment session iteration: %w", err)
		}
		return nil
	})
}

// RecordSessionTokens adds to a session's cumulative input/output token counts.
func (s *Store) RecordSessionTokens(ctx context.Context, id string, inputDelta, outputDelta int) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE agent_sessions SET token_input = token_input + ?, token_output = token_output + ? WHERE id = ?
		`, inputDelta, outputDelta, id)
		if err != nil {
			return fmt.Errorf("record session tokens: %w", err)
		}
		return nil
	})
}

// ListActiveSessions returns every agent_sessions row still active,
// optionally narrowed to one workspace (pass "" for all workspaces).
func (s *Store) ListActiveSessions(ctx context.Context, workspaceID string) ([]types.AgentSession, error) {
	query := `
		SELECT id, workspace_id, cli_type, goal, status, iteration_count, token_input, token_output, started_at, ended_at
		FROM agent_sessions WHERE status = ?`
	args := []any{string(types.SessionActive)}
	if workspaceID != "" {
		query += " AND workspace_id = ?"
		args = append(args, workspaceID)
	}
	query += " ORDER BY started_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var out []types.AgentSession
	for rows.Next() {
		var a types.AgentSession
		var status string
		if err := rows.Scan(&a.ID, &a.WorkspaceID, &a.CLIType, &a.Goal, &status, &a.IterationCount, &a.TokenInput, &a.TokenOutput, &a.StartedAt, &a.EndedAt); err != nil {
			return nil, fmt.Errorf("scan agent session: %w", err)
		}
		a.Status = types.SessionStatus(status)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent sessions: %w", err)
	}
	return out, nil
}
