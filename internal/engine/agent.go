package engine

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/scrypster/agentpulse/pkg/types"
)

// agentResult is what one agent contributed to a sweep.
type agentResult struct {
	processed   bool
	skipped     bool
	replies     int
	likes       int
	observed    int
	rateLimited int
	genFailures int
	errors      []string
}

func (r agentResult) addTo(rep *SweepReport) {
	if r.processed {
		rep.AgentsProcessed++
	}
	if r.skipped {
		rep.AgentsSkipped++
	}
	rep.RepliesSent += r.replies
	rep.LikesGiven += r.likes
	rep.Observed += r.observed
	rep.RateLimited += r.rateLimited
	rep.GenerationFailures += r.genFailures
	rep.Errors = append(rep.Errors, r.errors...)
}

// processAgent walks the posts for one agent. It stops at the first
// rate-limit denial; every other failure skips the post and moves on. An
// agent that has started is not interrupted by cancellation of ctx, only by
// the per-operation timeouts.
func (s *Scheduler) processAgent(ctx context.Context, agent *types.Agent, posts []types.Post) agentResult {
	ctx = context.WithoutCancel(ctx)
	var res agentResult
	logger := s.logger.With(zap.String("agent_id", agent.ID), zap.String("agent", agent.Name))

	if err := agent.Validate(); err != nil {
		cerr := &ConfigurationError{AgentID: agent.ID, Err: err}
		logger.Warn("engine: agent skipped", zap.Error(cerr))
		res.skipped = true
		res.errors = append(res.errors, cerr.Error())
		if agent.ID != "" {
			s.recordHeartbeat(ctx, agent.ID, res)
		}
		return res
	}
	res.processed = true
	personality := agent.Personality

	fail := func(post *types.Post, err error) {
		logger.Warn("engine: post skipped", zap.String("post_id", post.ID), zap.Error(err))
		res.errors = append(res.errors, err.Error())
	}

scan:
	for i := range posts {
		post := &posts[i]

		var engaged bool
		if err := s.ops.do(ctx, "engaged", func(ctx context.Context) error {
			var err error
			engaged, err = s.dedup.Engaged(ctx, agent.ID, post.ID)
			return err
		}); err != nil {
			fail(post, err)
			continue
		}
		if engaged {
			continue
		}

		rnd := s.random(agent.ID, post.ID)
		eligible, reason := s.eligibility.Check(agent, post, personality, rnd)
		var draw float64
		if eligible {
			draw = rnd.Float64()
		}
		kind := s.policy.Decide(eligible, draw)
		if eligible {
			logger.Debug("engine: decided",
				zap.String("post_id", post.ID),
				zap.String("reason", string(reason)),
				zap.Float64("draw", draw),
				zap.String("action", string(kind)))
		}

		out, err := s.executor.Execute(ctx, agent, post, personality, kind)
		var genErr *ContentGenerationError
		switch {
		case errors.As(err, &genErr):
			logger.Warn("engine: reply generation failed, observing", zap.String("post_id", post.ID), zap.Error(genErr.Err))
			res.genFailures++
			res.observed++
			s.evolution.RecordGenerationFailure(ctx, agent.ID)
		case err != nil:
			fail(post, err)
		case out.RateLimited:
			logger.Info("engine: reply budget exhausted for this hour",
				zap.String("post_id", post.ID),
				zap.Int("rate_limit", agent.RateLimit))
			res.rateLimited++
			break scan
		case out.Committed:
			if out.Kind == types.ActionReply {
				res.replies++
			} else {
				res.likes++
			}
			s.evolution.RecordInteraction(ctx, agent.ID, post, out.Kind)
			s.emitInteraction(*out.Interaction)
		case out.Duplicate:
		default:
			res.observed++
		}
	}

	s.recordHeartbeat(ctx, agent.ID, res)
	return res
}

func (s *Scheduler) recordHeartbeat(ctx context.Context, agentID string, res agentResult) {
	log := &types.HeartbeatLog{
		AgentID:            agentID,
		ResponsesGenerated: res.replies,
		LikesGiven:         res.likes,
		Status:             types.HeartbeatSuccess,
		ExecutedAt:         s.now(),
	}
	if len(res.errors) > 0 {
		log.Status = types.HeartbeatFailed
		log.Error = res.errors[0]
	}
	if err := s.ops.commit(ctx, "record_heartbeat", func(ctx context.Context) error {
		return s.store.RecordHeartbeat(ctx, log)
	}); err != nil {
		s.logger.Warn("engine: heartbeat log not written", zap.String("agent_id", agentID), zap.Error(err))
	}
}

// sortNewestFirst orders posts by creation time, newest first, with id as
// a tie breaker so the order is stable across stores.
func sortNewestFirst(posts []types.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}
