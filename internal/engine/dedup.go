package engine

import (
	"context"

	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/pkg/types"
)

// DeduplicationGuard answers whether an agent already acted on a post.
type DeduplicationGuard struct {
	store storage.InteractionStore
}

// NewDeduplicationGuard wraps store.
func NewDeduplicationGuard(store storage.InteractionStore) *DeduplicationGuard {
	return &DeduplicationGuard{store: store}
}

// HasActed reports whether (agent, post, kind) is already recorded.
func (g *DeduplicationGuard) HasActed(ctx context.Context, agentID, postID string, kind types.ActionKind) (bool, error) {
	return g.store.HasInteraction(ctx, agentID, postID, kind)
}

// Engaged reports whether the agent already replied to or liked the post.
func (g *DeduplicationGuard) Engaged(ctx context.Context, agentID, postID string) (bool, error) {
	for _, kind := range []types.ActionKind{types.ActionReply, types.ActionLike} {
		acted, err := g.HasActed(ctx, agentID, postID, kind)
		if err != nil || acted {
			return acted, err
		}
	}
	return false, nil
}
