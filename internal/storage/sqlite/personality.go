package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/pkg/types"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertPersonality(ctx context.Context, db execer, agentID string, t *types.PersonalityTraits) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO personalities (agent_id, formality, enthusiasm, depth, empathy, humor, creativity,
			evolution_stage, total_interactions, positive_feedback, negative_feedback, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			formality = excluded.formality,
			enthusiasm = excluded.enthusiasm,
			depth = excluded.depth,
			empathy = excluded.empathy,
			humor = excluded.humor,
			creativity = excluded.creativity,
			evolution_stage = MAX(personalities.evolution_stage, excluded.evolution_stage),
			total_interactions = excluded.total_interactions,
			positive_feedback = excluded.positive_feedback,
			negative_feedback = excluded.negative_feedback,
			updated_at = excluded.updated_at`,
		agentID, t.Formality, t.Enthusiasm, t.Depth, t.Empathy, t.Humor, t.Creativity,
		t.EvolutionStage, t.TotalInteractions, t.PositiveFeedback, t.NegativeFeedback,
		formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: failed to upsert personality: %w", err)
	}
	return nil
}

// GetPersonality returns the traits of an agent.
func (s *Store) GetPersonality(ctx context.Context, agentID string) (*types.PersonalityTraits, error) {
	var (
		t         types.PersonalityTraits
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT agent_id, formality, enthusiasm, depth, empathy, humor, creativity,
			evolution_stage, total_interactions, positive_feedback, negative_feedback, updated_at
		FROM personalities WHERE agent_id = ?`, agentID).Scan(
		&t.AgentID, &t.Formality, &t.Enthusiasm, &t.Depth, &t.Empathy, &t.Humor, &t.Creativity,
		&t.EvolutionStage, &t.TotalInteractions, &t.PositiveFeedback, &t.NegativeFeedback, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get personality: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdatePersonality creates or replaces the agent's traits. The stored
// evolution stage never decreases.
func (s *Store) UpdatePersonality(ctx context.Context, agentID string, traits *types.PersonalityTraits) error {
	if traits == nil {
		return fmt.Errorf("%w: traits are required", storage.ErrInvalidInput)
	}
	traits.AgentID = agentID
	traits.UpdatedAt = time.Now().UTC()
	return upsertPersonality(ctx, s.db, agentID, traits)
}
