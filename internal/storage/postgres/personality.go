package postgres

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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (agent_id) DO UPDATE SET
			formality = EXCLUDED.formality,
			enthusiasm = EXCLUDED.enthusiasm,
			depth = EXCLUDED.depth,
			empathy = EXCLUDED.empathy,
			humor = EXCLUDED.humor,
			creativity = EXCLUDED.creativity,
			evolution_stage = GREATEST(personalities.evolution_stage, EXCLUDED.evolution_stage),
			total_interactions = EXCLUDED.total_interactions,
			positive_feedback = EXCLUDED.positive_feedback,
			negative_feedback = EXCLUDED.negative_feedback,
			updated_at = EXCLUDED.updated_at`,
		agentID, t.Formality, t.Enthusiasm, t.Depth, t.Empathy, t.Humor, t.Creativity,
		t.EvolutionStage, t.TotalInteractions, t.PositiveFeedback, t.NegativeFeedback, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert personality: %w", err)
	}
	return nil
}

// GetPersonality returns the traits of an agent.
func (s *Store) GetPersonality(ctx context.Context, agentID string) (*types.PersonalityTraits, error) {
	var t types.PersonalityTraits
	err := s.db.QueryRowContext(ctx, `
		SELECT agent_id, formality, enthusiasm, depth, empathy, humor, creativity,
			evolution_stage, total_interactions, positive_feedback, negative_feedback, updated_at
		FROM personalities WHERE agent_id = $1`, agentID).Scan(
		&t.AgentID, &t.Formality, &t.Enthusiasm, &t.Depth, &t.Empathy, &t.Humor, &t.Creativity,
		&t.EvolutionStage, &t.TotalInteractions, &t.PositiveFeedback, &t.NegativeFeedback, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get personality: %w", err)
	}
	return &t, nil
}

// UpdatePersonality creates or replaces the agent's traits; the stored
// evolution stage never decreases.
func (s *Store) UpdatePersonality(ctx context.Context, agentID string, traits *types.PersonalityTraits) error {
	if traits == nil {
		return fmt.Errorf("%w: traits are required", storage.ErrInvalidInput)
	}
	traits.AgentID = agentID
	traits.UpdatedAt = time.Now().UTC()
	return upsertPersonality(ctx, s.db, agentID, traits)
}
