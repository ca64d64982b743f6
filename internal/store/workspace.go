package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sk8tingusmc/forge/pkg/types"
)

// UpsertWorkspace inserts a workspace or, on a path conflict, refreshes its
// lastOpened timestamp and replaces its id with the caller-supplied one.
func (s *Store) UpsertWorkspace(ctx context.Context, id, path, name string) error {
	now := time.Now().Unix()
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO workspaces (id, path, name, pinned, last_opened, config)
			VALUES (?, ?, ?, 0, ?, '{}')
			ON CONFLICT(path) DO UPDATE SET
				id = excluded.id,
				name = excluded.name,
				last_opened = excluded.last_opened
		`, id, path, name, now)
		if err != nil {
			return fmt.Errorf("upsert workspace: %w", err)
		}
		return nil
	})
}

// SetWorkspacePinned toggles a workspace's pinned state.
func (s *Store) SetWorkspacePinned(ctx context.Context, id string, pinned bool) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE workspaces SET pinned = ? WHERE id = ?`, pinned, id)
		if err != nil {
			return fmt.Errorf("set workspace pinned: %w", err)
		}
		return nil
	})
}

// ListWorkspaces returns up to 20 workspaces ordered pinned-first, then by
// most recently opened.
func (s *Store) ListWorkspaces(ctx context.Context) ([]types.Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, name, last_opened, pinned, config
		FROM workspaces
		ORDER BY pinned DESC, last_opened DESC
		LIMIT 20
	`)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var out []types.Workspace
	for rows.Next() {
		var w types.Workspace
		if err := rows.Scan(&w.ID, &w.Path, &w.Name, &w.LastOpened, &w.Pinned, &w.Config); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}
	return out, nil
}

// GetWorkspace returns a single workspace by id, or sql.ErrNoRows if absent.
func (s *Store) GetWorkspace(ctx context.Context, id string) (types.Workspace, error) {
	var w types.Workspace
	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, name, last_opened, pinned, config FROM workspaces WHERE id = ?
	`, id).Scan(&w.ID, &w.Path, &w.Name, &w.LastOpened, &w.Pinned, &w.Config)
	if err != nil {
		return types.Workspace{}, fmt.Errorf("get workspace: %w", err)
	}
	return w, nil
}
