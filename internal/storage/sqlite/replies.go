package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/pkg/types"
)

// CreateReply inserts the reply post and its interaction in one transaction.
func (s *Store) CreateReply(ctx context.Context, reply *types.Post, interaction *types.Interaction) error {
	if reply == nil || interaction == nil || interaction.Kind != types.ActionReply {
		return fmt.Errorf("%w: reply needs a post and a reply interaction", storage.ErrInvalidInput)
	}
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	if interaction.ID == "" {
		interaction.ID = uuid.NewString()
	}
	interaction.ReplyPostID = reply.ID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM interactions WHERE agent_id = ? AND post_id = ? AND kind = ?",
		interaction.AgentID, interaction.PostID, string(types.ActionReply)).Scan(&existing)
	switch {
	case err == nil && existing == interaction.ID:
		return nil
	case err == nil:
		return fmt.Errorf("%w: %s already replied to post %s", storage.ErrDuplicate,
			interaction.AgentID, interaction.PostID)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("sqlite: failed to check reply: %w", err)
	}

	if err := insertPost(ctx, tx, reply); err != nil {
		return err
	}
	if err := insertInteraction(ctx, tx, interaction); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit reply: %w", err)
	}
	return nil
}

// GetInteraction retrieves an interaction by ID.
func (s *Store) GetInteraction(ctx context.Context, id string) (*types.Interaction, error) {
	var (
		i           types.Interaction
		kind        string
		replyPostID sql.NullString
		createdAt   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, post_id, kind, text, reply_post_id, created_at
		FROM interactions WHERE id = ?`, id).
		Scan(&i.ID, &i.AgentID, &i.PostID, &kind, &i.Text, &replyPostID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get interaction %s: %w", id, err)
	}
	i.Kind = types.ActionKind(kind)
	i.ReplyPostID = replyPostID.String
	if i.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &i, nil
}
