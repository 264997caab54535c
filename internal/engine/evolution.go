package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/pkg/types"
)

const (
	// DefaultEvolutionInterval is the number of interactions per stage.
	DefaultEvolutionInterval = 20

	// traitStep scales the feedback balance into a trait nudge.
	traitStep = 0.5
)

// evolutionStore is what evolution reads and writes.
type evolutionStore interface {
	storage.PersonalityStore
	storage.LearningStore
}

// PersonalityEvolution updates trait vectors from engagement and keeps each
// agent's learning history. Failures are logged; callers on the sweep path
// never see them.
type PersonalityEvolution struct {
	store    evolutionStore
	interval int
	ops      opRunner
	logger   *zap.Logger

	// mu serializes read-modify-write cycles within the process.
	mu sync.Mutex
}

// NewPersonalityEvolution returns an evolution tracker advancing a stage
// every interval interactions.
func NewPersonalityEvolution(store evolutionStore, interval int, opTimeout time.Duration, logger *zap.Logger) *PersonalityEvolution {
	if interval < 1 {
		interval = DefaultEvolutionInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersonalityEvolution{
		store:    store,
		interval: interval,
		ops:      opRunner{timeout: opTimeout, logger: logger},
		logger:   logger,
	}
}

// RecordInteraction counts a committed reply or like on post as positive
// engagement and adds it to the learning history. The history entry is
// written even for agents without a personality.
func (e *PersonalityEvolution) RecordInteraction(ctx context.Context, agentID string, post *types.Post, kind types.ActionKind) {
	source, ok := types.LearningSourceFor(kind)
	if !ok {
		return
	}
	defer e.learn(ctx, agentID, source, post)
	if err := e.apply(ctx, agentID, func(p *types.PersonalityTraits) {
		p.TotalInteractions++
		p.PositiveFeedback++
		if p.TotalInteractions%e.interval == 0 {
			Evolve(p)
		}
	}); err != nil {
		e.logFailure(agentID, "interaction", err)
	}
}

// RecordGenerationFailure counts negative feedback for a reply that could
// not be produced.
func (e *PersonalityEvolution) RecordGenerationFailure(ctx context.Context, agentID string) {
	if err := e.apply(ctx, agentID, func(p *types.PersonalityTraits) {
		p.NegativeFeedback++
	}); err != nil {
		e.logFailure(agentID, "generation_failure", err)
	}
}

// RecordFeedback applies external feedback. Unlike the sweep hooks it
// returns the error so API callers can report a missing personality.
// Positive feedback about a known post is also added to the learning
// history; post may be nil.
func (e *PersonalityEvolution) RecordFeedback(ctx context.Context, agentID string, post *types.Post, positive bool) (*types.PersonalityTraits, error) {
	var updated *types.PersonalityTraits
	err := e.apply(ctx, agentID, func(p *types.PersonalityTraits) {
		if positive {
			p.PositiveFeedback++
		} else {
			p.NegativeFeedback++
		}
		updated = p.Clone()
	})
	if err == nil && positive {
		e.learn(ctx, agentID, types.LearnedFromPositiveFeedback, post)
	}
	return updated, err
}

// learn appends a history entry quoting post. Without a post there is
// nothing to learn from.
func (e *PersonalityEvolution) learn(ctx context.Context, agentID string, source types.LearningSource, post *types.Post) {
	if post == nil {
		return
	}
	entry := &types.LearningEntry{
		AgentID: agentID,
		Source:  source,
		PostID:  post.ID,
		Insight: types.Insight(source, post.Content),
	}
	if err := e.ops.commit(ctx, "record_learning", func(ctx context.Context) error {
		return e.store.RecordLearning(ctx, entry)
	}); err != nil {
		e.logger.Warn("engine: learning history not recorded",
			zap.String("agent_id", agentID),
			zap.String("source", string(source)),
			zap.Error(err))
	}
}

func (e *PersonalityEvolution) apply(ctx context.Context, agentID string, mutate func(*types.PersonalityTraits)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var p *types.PersonalityTraits
	if err := e.ops.commit(ctx, "get_personality", func(ctx context.Context) error {
		var err error
		p, err = e.store.GetPersonality(ctx, agentID)
		return err
	}); err != nil {
		return err
	}
	stage := p.EvolutionStage
	mutate(p)
	p.Clamp()
	if p.EvolutionStage < stage {
		p.EvolutionStage = stage
	}
	if p.EvolutionStage > stage {
		e.logger.Info("engine: personality evolved",
			zap.String("agent_id", agentID),
			zap.Int("stage", p.EvolutionStage),
			zap.Float64("enthusiasm", p.Enthusiasm),
			zap.Float64("formality", p.Formality),
			zap.Float64("creativity", p.Creativity))
	}
	return e.ops.commit(ctx, "update_personality", func(ctx context.Context) error {
		return e.store.UpdatePersonality(ctx, agentID, p)
	})
}

func (e *PersonalityEvolution) logFailure(agentID, event string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		e.logger.Debug("engine: agent has no personality to evolve", zap.String("agent_id", agentID))
		return
	}
	e.logger.Warn("engine: personality update failed",
		zap.String("agent_id", agentID),
		zap.String("event", event),
		zap.Error(err))
}

// Evolve advances p by one stage and nudges traits by the feedback balance
// (positive - negative) / (positive + negative): enthusiasm and creativity
// follow it, formality moves against it. Traits stay within bounds.
func Evolve(p *types.PersonalityTraits) {
	p.EvolutionStage++
	total := p.PositiveFeedback + p.NegativeFeedback
	if total > 0 {
		balance := float64(p.PositiveFeedback-p.NegativeFeedback) / float64(total)
		p.Enthusiasm += balance * traitStep
		p.Creativity += balance * traitStep
		p.Formality -= balance * traitStep
	}
	p.Clamp()
}
