package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/internal/storage/memory"
	"github.com/scrypster/agentpulse/pkg/types"
)

func TestStore_AgentsSortedAndCopied(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, s.CreateAgent(ctx, &types.Agent{ID: "b", Name: "B", RateLimit: 1, Skills: []string{"x"}}))
	require.NoError(t, s.CreateAgent(ctx, &types.Agent{ID: "a", Name: "A", RateLimit: 1}))

	agents, err := s.ListActiveAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "a", agents[0].ID)

	agents[1].Skills[0] = "mutated"
	got, err := s.GetAgent(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Skills[0])

	assert.ErrorIs(t, s.CreateAgent(ctx, &types.Agent{Name: "A", RateLimit: 1}), storage.ErrDuplicate)
}

func TestStore_AdmitReplyIsAtomic(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	hour := time.Now()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.AdmitReply(ctx, "a", hour, 5); ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, admitted)

	count, err := s.GetRateWindow(ctx, "a", hour)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestStore_InteractionsDuplicate(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	i := &types.Interaction{AgentID: "a", PostID: "p", Kind: types.ActionReply}
	require.NoError(t, s.CreateInteraction(ctx, i))
	assert.ErrorIs(t, s.CreateInteraction(ctx, &types.Interaction{AgentID: "a", PostID: "p", Kind: types.ActionReply}), storage.ErrDuplicate)
	require.NoError(t, s.CreateInteraction(ctx, &types.Interaction{AgentID: "a", PostID: "p", Kind: types.ActionLike}))

	n, err := s.CountInteractions(ctx, "a", types.ActionReply)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_ClosedIsUnavailable(t *testing.T) {
	s := memory.NewStore()
	require.NoError(t, s.Close())

	_, err := s.ListActiveAgents(context.Background())
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestStore_PersonalityStageMonotonic(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	p := types.NeutralPersonality("a")
	p.EvolutionStage = 4
	require.NoError(t, s.UpdatePersonality(ctx, "a", p))
	p.EvolutionStage = 1
	require.NoError(t, s.UpdatePersonality(ctx, "a", p))

	got, err := s.GetPersonality(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 4, got.EvolutionStage)
}

func TestStore_CreateReply(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	in := &types.Interaction{ID: "in-1", AgentID: "a", PostID: "p", Kind: types.ActionReply, Text: "hi"}
	require.NoError(t, s.CreateReply(ctx, &types.Post{AgentID: "a", Content: "hi", ReplyTo: "p"}, in))
	require.NotEmpty(t, in.ReplyPostID)

	// Replaying the committed interaction ID stores nothing new.
	require.NoError(t, s.CreateReply(ctx,
		&types.Post{AgentID: "a", Content: "hi", ReplyTo: "p"},
		&types.Interaction{ID: "in-1", AgentID: "a", PostID: "p", Kind: types.ActionReply}))
	assert.ErrorIs(t, s.CreateReply(ctx,
		&types.Post{AgentID: "a", Content: "again", ReplyTo: "p"},
		&types.Interaction{AgentID: "a", PostID: "p", Kind: types.ActionReply}), storage.ErrDuplicate)

	posts, err := s.ListRecentPosts(ctx, time.Time{}, 10)
	require.NoError(t, err)
	assert.Len(t, posts, 1)

	got, err := s.GetInteraction(ctx, "in-1")
	require.NoError(t, err)
	assert.Equal(t, posts[0].ID, got.ReplyPostID)

	assert.ErrorIs(t, s.CreateReply(ctx, &types.Post{AgentID: "a", Content: "x"},
		&types.Interaction{AgentID: "a", PostID: "q", Kind: types.ActionLike}), storage.ErrInvalidInput)
}

func TestStore_LearningHistoryNewestFirst(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, s.RecordLearning(ctx, &types.LearningEntry{AgentID: "a", Source: types.LearnedFromLike, Insight: "first"}))
	require.NoError(t, s.RecordLearning(ctx, &types.LearningEntry{AgentID: "b", Source: types.LearnedFromLike, Insight: "other"}))
	require.NoError(t, s.RecordLearning(ctx, &types.LearningEntry{AgentID: "a", Source: types.LearnedFromReply, Insight: "second"}))
	assert.ErrorIs(t, s.RecordLearning(ctx, &types.LearningEntry{Source: types.LearnedFromLike}), storage.ErrInvalidInput)

	list, err := s.ListLearning(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Insight)
	assert.NotEmpty(t, list[0].ID)
}
