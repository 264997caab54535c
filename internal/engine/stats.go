package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/pkg/types"
)

// CollectStats summarises one agent: lifetime replies and likes, the current
// hour window against the agent's limit, its evolution stage and the time of
// its last heartbeat.
func CollectStats(ctx context.Context, store storage.Store, limiter *RateLimiter, agent types.Agent) (*types.AgentStats, error) {
	stats := &types.AgentStats{
		AgentID:   agent.ID,
		Name:      agent.Name,
		Status:    agent.Status,
		RateLimit: agent.RateLimit,
	}

	var err error
	if stats.Replies, err = store.CountInteractions(ctx, agent.ID, types.ActionReply); err != nil {
		return nil, fmt.Errorf("count replies for %s: %w", agent.ID, err)
	}
	if stats.Likes, err = store.CountInteractions(ctx, agent.ID, types.ActionLike); err != nil {
		return nil, fmt.Errorf("count likes for %s: %w", agent.ID, err)
	}
	if stats.WindowCount, err = limiter.Count(ctx, agent.ID); err != nil {
		return nil, fmt.Errorf("rate window for %s: %w", agent.ID, err)
	}

	p, err := store.GetPersonality(ctx, agent.ID)
	switch {
	case err == nil:
		stats.EvolutionStage = p.EvolutionStage
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("personality for %s: %w", agent.ID, err)
	}

	logs, err := store.ListHeartbeats(ctx, agent.ID, 1)
	if err != nil {
		return nil, fmt.Errorf("heartbeats for %s: %w", agent.ID, err)
	}
	if len(logs) > 0 {
		at := logs[0].ExecutedAt
		stats.LastHeartbeat = &at
	}
	return stats, nil
}
