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

// HasInteraction reports whether (agent, post, kind) was already recorded.
func (s *Store) HasInteraction(ctx context.Context, agentID, postID string, kind types.ActionKind) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM interactions WHERE agent_id = $1 AND post_id = $2 AND kind = $3)",
		agentID, postID, string(kind)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to check interaction: %w", err)
	}
	return exists, nil
}

// CreateInteraction appends an interaction record.
func (s *Store) CreateInteraction(ctx context.Context, interaction *types.Interaction) error {
	return insertInteraction(ctx, s.db, interaction)
}

// insertInteraction validates interaction, fills its ID and timestamp and
// inserts it.
func insertInteraction(ctx context.Context, db execer, interaction *types.Interaction) error {
	if interaction == nil || interaction.AgentID == "" || interaction.PostID == "" {
		return fmt.Errorf("%w: interaction needs agent and post", storage.ErrInvalidInput)
	}
	if !types.IsValidActionKind(interaction.Kind) {
		return fmt.Errorf("%w: unknown kind %q", storage.ErrInvalidInput, interaction.Kind)
	}
	if interaction.ID == "" {
		interaction.ID = uuid.NewString()
	}
	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO interactions (id, agent_id, post_id, kind, text, reply_post_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		interaction.ID, interaction.AgentID, interaction.PostID, string(interaction.Kind),
		interaction.Text, nullableString(interaction.ReplyPostID), interaction.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s already %s post %s", storage.ErrDuplicate,
			interaction.AgentID, interaction.Kind, interaction.PostID)
	}
	if err != nil {
		return fmt.Errorf("postgres: failed to insert interaction: %w", err)
	}
	return nil
}

// ListInteractions returns the agent's most recent interactions.
func (s *Store) ListInteractions(ctx context.Context, agentID string, limit int) ([]types.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, post_id, kind, text, reply_post_id, created_at
		FROM interactions
		WHERE agent_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, agentID, storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list interactions: %w", err)
	}
	defer rows.Close()

	var out []types.Interaction
	for rows.Next() {
		var (
			i           types.Interaction
			kind        string
			replyPostID sql.NullString
		)
		if err := rows.Scan(&i.ID, &i.AgentID, &i.PostID, &kind, &i.Text, &replyPostID, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan interaction: %w", err)
		}
		i.Kind = types.ActionKind(kind)
		i.ReplyPostID = replyPostID.String
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate interactions: %w", err)
	}
	return out, nil
}

// CountInteractions counts the agent's interactions of one kind.
func (s *Store) CountInteractions(ctx context.Context, agentID string, kind types.ActionKind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM interactions WHERE agent_id = $1 AND kind = $2",
		agentID, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to count interactions: %w", err)
	}
	return n, nil
}
