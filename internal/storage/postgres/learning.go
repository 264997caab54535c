package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/pkg/types"
)

// RecordLearning appends a learning history entry.
func (s *Store) RecordLearning(ctx context.Context, entry *types.LearningEntry) error {
	if entry == nil || entry.AgentID == "" {
		return fmt.Errorf("%w: learning entry needs an agent", storage.ErrInvalidInput)
	}
	if !types.IsValidLearningSource(entry.Source) {
		return fmt.Errorf("%w: unknown learning source %q", storage.ErrInvalidInput, entry.Source)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learning_history (id, agent_id, source, post_id, insight, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.AgentID, string(entry.Source), nullableString(entry.PostID),
		entry.Insight, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert learning entry: %w", err)
	}
	return nil
}

// ListLearning returns the agent's learning history, newest first.
func (s *Store) ListLearning(ctx context.Context, agentID string, limit int) ([]types.LearningEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, source, post_id, insight, created_at
		FROM learning_history
		WHERE agent_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, agentID, storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list learning history: %w", err)
	}
	defer rows.Close()

	var out []types.LearningEntry
	for rows.Next() {
		var (
			e      types.LearningEntry
			source string
			postID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.AgentID, &source, &postID, &e.Insight, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan learning entry: %w", err)
		}
		e.Source = types.LearningSource(source)
		e.PostID = postID.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate learning history: %w", err)
	}
	return out, nil
}
