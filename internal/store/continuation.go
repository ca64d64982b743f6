package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sk8tingusmc/forge/pkg/types"
)

// SaveContinuationState writes or replaces the checkpoint for a ptyId so a
// running continuation can be reported on after a crash or UI refresh.
func (s *Store) SaveContinuationState(ctx context.Context, c types.ContinuationCheckpoint) error {
	now := time.Now().Unix()
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO continuation_state (pty_id, workspace_id, goal, max_iterations, current_iteration, status, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(pty_id) DO UPDATE SET
				workspace_id = excluded.workspace_id,
				goal = excluded.goal,
				max_iterations = excluded.max_iterations,
				current_iteration = excluded.current_iteration,
				status = excluded.status,
				updated_at = excluded.updated_at
		`, c.PtyID, c.WorkspaceID, c.Goal, c.MaxIterations, c.CurrentIteration, string(c.Status), now)
		if err != nil {
			return fmt.Errorf("save continuation state: %w", err)
		}
		return nil
	})
}

// UpdateContinuationIteration bumps the checkpoint's current_iteration and
// status for an in-flight continuation.
func (s *Store) UpdateContinuationIteration(ctx context.Context, ptyID string, iteration int, status types.ContinuationStatus) error {
	now := time.Now().Unix()
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE continuation_state SET current_iteration = ?, status = ?, updated_at = ? WHERE pty_id = ?
		`, iteration, string(status), now, ptyID)
		if err != nil {
			return fmt.Errorf("update continuation iteration: %w", err)
		}
		return nil
	})
}

// DeleteContinuationState removes a checkpoint once its continuation
// reaches a terminal status.
func (s *Store) DeleteContinuationState(ctx context.Context, ptyID string) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM continuation_state WHERE pty_id = ?`, ptyID)
		if err != nil {
			return fmt.Errorf("delete continuation state: %w", err)
		}
		return nil
	})
}

// ListContinuationCheckpoints returns every stored checkpoint, including
// any left behind by a process that exited while a continuation was running.
func (s *Store) ListContinuationCheckpoints(ctx context.Context) ([]types.ContinuationCheckpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pty_id, workspace_id, goal, max_iterations, current_iteration, status FROM continuation_state
	`)
	if err != nil {
		return nil, fmt.Errorf("list continuation checkpoints: %w", err)
	}
	defer rows.Close()

	var out []types.ContinuationCheckpoint
	for rows.Next() {
		var c types.ContinuationCheckpoint
		var status string
		if err := rows.Scan(&c.PtyID, &c.WorkspaceID, &c.Goal, &c.MaxIterations, &c.CurrentIteration, &status); err != nil {
			return nil, fmt.Errorf("scan continuation checkpoint: %w", err)
		}
		c.Status = types.ContinuationStatus(status)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate continuation checkpoints: %w", err)
	}
	return out, nil
}
