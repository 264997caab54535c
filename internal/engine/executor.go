package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrypster/agentpulse/internal/llm"
	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/pkg/types"
)

// executorStore is the storage the executor writes to.
type executorStore interface {
	storage.PostStore
	storage.InteractionStore
	storage.RateWindowStore
}

// Outcome describes what Execute did.
type Outcome struct {
	// Kind is the action actually taken. A reply that could not be
	// generated ends as an observe.
	Kind types.ActionKind

	// Committed is true when an interaction was recorded.
	Committed bool

	// Duplicate is true when the agent had already taken this action.
	Duplicate bool

	// RateLimited is true when the reply budget was exhausted.
	RateLimited bool

	Interaction *types.Interaction
	ReplyPost   *types.Post
}

// InteractionExecutor carries out a decided action against the store.
type InteractionExecutor struct {
	store     executorStore
	limiter   *RateLimiter
	dedup     *DeduplicationGuard
	generator llm.ContentGenerator
	ops       opRunner
	logger    *zap.Logger
}

// NewInteractionExecutor wires the executor. opTimeout bounds every store
// and generator call.
func NewInteractionExecutor(store executorStore, limiter *RateLimiter, generator llm.ContentGenerator, opTimeout time.Duration, logger *zap.Logger) *InteractionExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InteractionExecutor{
		store:     store,
		limiter:   limiter,
		dedup:     NewDeduplicationGuard(store),
		generator: generator,
		ops:       opRunner{timeout: opTimeout, logger: logger},
		logger:    logger,
	}
}

// Execute performs kind for agent on post. A rate-limit denial is reported
// in the Outcome, not as an error. Generation failures are returned as
// *ContentGenerationError with an observe Outcome.
func (x *InteractionExecutor) Execute(ctx context.Context, agent *types.Agent, post *types.Post, personality *types.PersonalityTraits, kind types.ActionKind) (Outcome, error) {
	switch kind {
	case types.ActionReply:
		return x.reply(ctx, agent, post, personality)
	case types.ActionLike:
		return x.like(ctx, agent, post)
	default:
		return Outcome{Kind: types.ActionObserve}, nil
	}
}

func (x *InteractionExecutor) hasActed(ctx context.Context, agentID, postID string, kind types.ActionKind) (bool, error) {
	var acted bool
	err := x.ops.do(ctx, "has_interaction", func(ctx context.Context) error {
		var err error
		acted, err = x.dedup.HasActed(ctx, agentID, postID, kind)
		return err
	})
	return acted, err
}

func (x *InteractionExecutor) reply(ctx context.Context, agent *types.Agent, post *types.Post, personality *types.PersonalityTraits) (Outcome, error) {
	out := Outcome{Kind: types.ActionReply}

	acted, err := x.hasActed(ctx, agent.ID, post.ID, types.ActionReply)
	if err != nil {
		return out, err
	}
	if acted {
		out.Duplicate = true
		return out, nil
	}

	var res *Reservation
	err = x.ops.do(ctx, "admit_reply", func(ctx context.Context) error {
		var err error
		res, err = x.limiter.Reserve(ctx, agent.ID, agent.RateLimit)
		return err
	})
	if err != nil {
		return out, err
	}
	if res == nil {
		out.RateLimited = true
		return out, nil
	}

	// From here on the slot must be released on every failure path.
	release := func() {
		if err := x.ops.commit(ctx, "release_reply", res.Release); err != nil {
			x.logger.Error("engine: failed to release reply slot",
				zap.String("agent_id", agent.ID),
				zap.Time("hour", res.Hour()),
				zap.Error(err))
		}
	}

	genCtx, cancel := context.WithTimeout(ctx, x.ops.timeout)
	text, err := x.generator.Generate(genCtx, agent, post, personality)
	cancel()
	if err == nil && text == "" {
		err = llm.ErrEmptyContent
	}
	if err != nil {
		release()
		return Outcome{Kind: types.ActionObserve}, &ContentGenerationError{AgentID: agent.ID, PostID: post.ID, Err: err}
	}

	// IDs are fixed before the write so a retried or ambiguous write can be
	// recognised as ours.
	replyPost := &types.Post{ID: uuid.NewString(), AgentID: agent.ID, Content: text, ReplyTo: post.ID}
	in := &types.Interaction{
		ID:      uuid.NewString(),
		AgentID: agent.ID,
		PostID:  post.ID,
		Kind:    types.ActionReply,
		Text:    text,
	}
	err = x.ops.commit(ctx, "create_reply", func(ctx context.Context) error {
		return x.store.CreateReply(ctx, replyPost, in)
	})
	if err != nil && !errors.Is(err, storage.ErrDuplicate) && x.stored(ctx, in.ID) {
		x.logger.Warn("engine: reply write reported an error but committed",
			zap.String("agent_id", agent.ID),
			zap.String("post_id", post.ID),
			zap.Error(err))
		err = nil
	}
	if err != nil {
		release()
		if errors.Is(err, storage.ErrDuplicate) {
			out.Duplicate = true
			return out, nil
		}
		return out, err
	}
	res.Keep()

	if err := x.ops.commit(ctx, "increment_replies", func(ctx context.Context) error {
		return x.store.IncrementPostCounters(ctx, post.ID, types.CounterDelta{Replies: 1})
	}); err != nil {
		x.logger.Warn("engine: reply counter not updated",
			zap.String("post_id", post.ID),
			zap.Error(err))
	}

	out.Committed = true
	out.Interaction = in
	out.ReplyPost = replyPost
	return out, nil
}

func (x *InteractionExecutor) like(ctx context.Context, agent *types.Agent, post *types.Post) (Outcome, error) {
	out := Outcome{Kind: types.ActionLike}

	acted, err := x.hasActed(ctx, agent.ID, post.ID, types.ActionLike)
	if err != nil {
		return out, err
	}
	if acted {
		out.Duplicate = true
		return out, nil
	}

	var created bool
	if err := x.ops.commit(ctx, "create_like", func(ctx context.Context) error {
		var err error
		created, err = x.store.CreateLike(ctx, post.ID, agent.ID)
		return err
	}); err != nil {
		return out, err
	}
	if created {
		if err := x.ops.commit(ctx, "increment_likes", func(ctx context.Context) error {
			return x.store.IncrementPostCounters(ctx, post.ID, types.CounterDelta{Likes: 1})
		}); err != nil {
			x.logger.Warn("engine: like counter not updated",
				zap.String("post_id", post.ID),
				zap.Error(err))
		}
	}

	in := &types.Interaction{ID: uuid.NewString(), AgentID: agent.ID, PostID: post.ID, Kind: types.ActionLike}
	err = x.ops.commit(ctx, "create_interaction", func(ctx context.Context) error {
		return x.store.CreateInteraction(ctx, in)
	})
	if err != nil && x.stored(ctx, in.ID) {
		err = nil
	}
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			out.Duplicate = true
			return out, nil
		}
		return out, err
	}

	out.Committed = true
	out.Interaction = in
	return out, nil
}

// stored reports whether the interaction with id was written. It settles
// writes whose outcome is unknown, such as a timeout after commit or a
// retry that collided with the first attempt.
func (x *InteractionExecutor) stored(ctx context.Context, id string) bool {
	var found bool
	err := x.ops.commit(ctx, "get_interaction", func(ctx context.Context) error {
		_, err := x.store.GetInteraction(ctx, id)
		found = err == nil
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		x.logger.Warn("engine: could not confirm interaction write", zap.String("interaction_id", id), zap.Error(err))
	}
	return found
}
