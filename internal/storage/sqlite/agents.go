package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/pkg/types"
)

const agentColumns = `
	a.id, a.name, a.description, a.skills, a.trigger_words, a.response_style,
	a.rate_limit, a.status, a.created_at, a.updated_at,
	p.formality, p.enthusiasm, p.depth, p.empathy, p.humor, p.creativity,
	p.evolution_stage, p.total_interactions, p.positive_feedback, p.negative_feedback,
	p.updated_at`

const agentFrom = `
	FROM agents a
	LEFT JOIN personalities p ON p.agent_id = a.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*types.Agent, error) {
	var (
		a                      types.Agent
		skills, triggers       string
		status                 string
		createdAt, updatedAt   string
		formality, enthusiasm  sql.NullFloat64
		depth, empathy         sql.NullFloat64
		humor, creativity      sql.NullFloat64
		stage, total, pos, neg sql.NullInt64
		personalityUpdatedAt   sql.NullString
	)
	err := row.Scan(
		&a.ID, &a.Name, &a.Description, &skills, &triggers, &a.ResponseStyle,
		&a.RateLimit, &status, &createdAt, &updatedAt,
		&formality, &enthusiasm, &depth, &empathy, &humor, &creativity,
		&stage, &total, &pos, &neg, &personalityUpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = types.AgentStatus(status)
	if a.Skills, err = decodeStrings(skills); err != nil {
		return nil, err
	}
	if a.TriggerWords, err = decodeStrings(triggers); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	if formality.Valid {
		p := &types.PersonalityTraits{
			AgentID:           a.ID,
			Formality:         formality.Float64,
			Enthusiasm:        enthusiasm.Float64,
			Depth:             depth.Float64,
			Empathy:           empathy.Float64,
			Humor:             humor.Float64,
			Creativity:        creativity.Float64,
			EvolutionStage:    int(stage.Int64),
			TotalInteractions: int(total.Int64),
			PositiveFeedback:  int(pos.Int64),
			NegativeFeedback:  int(neg.Int64),
		}
		if personalityUpdatedAt.Valid {
			if p.UpdatedAt, err = parseTime(personalityUpdatedAt.String); err != nil {
				return nil, err
			}
		}
		a.Personality = p
	}
	return &a, nil
}

func (s *Store) queryAgents(ctx context.Context, where string, args ...any) ([]types.Agent, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+agentColumns+agentFrom+" "+where+" ORDER BY a.id", args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query agents: %w", err)
	}
	defer rows.Close()

	var agents []types.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan agent: %w", err)
		}
		agents = append(agents, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to iterate agents: %w", err)
	}
	return agents, nil
}

// ListActiveAgents returns active agents ordered by id.
func (s *Store) ListActiveAgents(ctx context.Context) ([]types.Agent, error) {
	return s.queryAgents(ctx, "WHERE a.status = ?", string(types.AgentActive))
}

// ListAgents returns all agents ordered by id.
func (s *Store) ListAgents(ctx context.Context) ([]types.Agent, error) {
	return s.queryAgents(ctx, "")
}

// GetAgent retrieves an agent with its personality, if any.
func (s *Store) GetAgent(ctx context.Context, id string) (*types.Agent, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+agentColumns+agentFrom+" WHERE a.id = ?", id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get agent %s: %w", id, err)
	}
	return a, nil
}

// CreateAgent inserts the agent and, when present, its personality in one
// transaction.
func (s *Store) CreateAgent(ctx context.Context, agent *types.Agent) error {
	if agent == nil || agent.Name == "" {
		return fmt.Errorf("%w: agent name is required", storage.ErrInvalidInput)
	}
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if agent.Status == "" {
		agent.Status = types.AgentActive
	}
	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now
	if err := agent.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	skills, err := encodeStrings(agent.Skills)
	if err != nil {
		return err
	}
	triggers, err := encodeStrings(agent.TriggerWords)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO agents (id, name, description, skills, trigger_words, response_style,
			rate_limit, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Name, agent.Description, skills, triggers, agent.ResponseStyle,
		agent.RateLimit, string(agent.Status), formatTime(agent.CreatedAt), formatTime(agent.UpdatedAt))
	if storage.IsUniqueViolation(err) {
		return fmt.Errorf("%w: agent %q", storage.ErrDuplicate, agent.Name)
	}
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert agent: %w", err)
	}

	if agent.Personality != nil {
		agent.Personality.AgentID = agent.ID
		if err := upsertPersonality(ctx, tx, agent.ID, agent.Personality); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit agent: %w", err)
	}
	return nil
}

// CountAgents returns the number of agents.
func (s *Store) CountAgents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM agents").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: failed to count agents: %w", err)
	}
	return n, nil
}

// SetAgentStatus changes an agent's status.
func (s *Store) SetAgentStatus(ctx context.Context, id string, status types.AgentStatus) error {
	if !types.IsValidAgentStatus(status) {
		return fmt.Errorf("%w: unknown status %q", storage.ErrInvalidInput, status)
	}
	result, err := s.db.ExecContext(ctx,
		"UPDATE agents SET status = ?, updated_at = ? WHERE id = ?",
		string(status), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update agent status: %w", err)
	}
	return rowsAffected(result, "agent status")
}
