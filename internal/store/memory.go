package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sk8tingusmc/forge/pkg/types"
)

// StoreMemory upserts a memory on (workspaceId, key), updating its content,
// category, and updatedAt.
func (s *Store) StoreMemory(ctx context.Context, workspaceID, key, content string, category types.MemoryCategory) error {
	if category == "" {
		category = types.MemoryCore
	}
	now := time.Now().Unix()
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO workspace_memories (workspace_id, key, content, category, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(workspace_id, key) DO UPDATE SET
				content = excluded.content,
				category = excluded.category,
				updated_at = excluded.updated_at
		`, workspaceID, key, content, string(category), now, now)
		if err != nil {
			return fmt.Errorf("store memory: %w", err)
		}
		return nil
	})
}

// SearchMemory runs a BM25-ranked full-text search over a workspace's
// memories. If query is not valid FTS5 syntax, it falls back to a
// properly-escaped LIKE search over key and content. Any other error
// propagates.
func (s *Store) SearchMemory(ctx context.Context, workspaceID, query string) ([]types.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.workspace_id, m.key, m.content, m.category, m.created_at, m.updated_at
		FROM memories_fts f
		JOIN workspace_memories m ON m.id = f.rowid
		WHERE memories_fts MATCH ? AND m.workspace_id = ?
		ORDER BY bm25(memories_fts)
		LIMIT 10
	`, query, workspaceID)
	if err != nil {
		if isFTSSyntaxError(err) {
			return s.searchMemoryLike(ctx, workspaceID, query)
		}
		return nil, fmt.Errorf("search memory: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// isFTSSyntaxError reports whether err originates from fts5 rejecting the
// MATCH query's syntax, as opposed to some other SQL failure.
func isFTSSyntaxError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "fts5") || strings.Contains(msg, "malformed match")
}

func (s *Store) searchMemoryLike(ctx context.Context, workspaceID, query string) ([]types.Memory, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, key, content, category, created_at, updated_at
		FROM workspace_memories
		WHERE workspace_id = ? AND (key LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\')
		ORDER BY updated_at DESC
		LIMIT 10
	`, workspaceID, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("search memory (like fallback): %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// escapeLike escapes \, %, and _ so user input can never smuggle wildcards
// into a LIKE pattern.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// ListMemories returns a workspace's memories newest-first, optionally
// filtered to one category.
func (s *Store) ListMemories(ctx context.Context, workspaceID string, category types.MemoryCategory) ([]types.Memory, error) {
	var rows *sql.Rows
	var err error
	if category != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, workspace_id, key, content, category, created_at, updated_at
			FROM workspace_memories
			WHERE workspace_id = ? AND category = ?
			ORDER BY updated_at DESC
		`, workspaceID, string(category))
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, workspace_id, key, content, category, created_at, updated_at
			FROM workspace_memories
			WHERE workspace_id = ?
			ORDER BY updated_at DESC
		`, workspaceID)
	}
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// DeleteMemory removes a single memory by workspace and key.
func (s *Store) DeleteMemory(ctx context.Context, workspaceID, key string) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM workspace_memories WHERE workspace_id = ? AND key = ?
		`, workspaceID, key)
		if err != nil {
			return fmt.Errorf("delete memory: %w", err)
		}
		return nil
	})
}

func scanMemories(rows *sql.Rows) ([]types.Memory, error) {
	var out []types.Memory
	for rows.Next() {
		var m types.Memory
		var category string
		if err := rows.Scan(&m.ID, &m.WorkspaceID, &m.Key, &m.Content, &category, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		m.Category = types.MemoryCategory(category)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return out, nil
}
