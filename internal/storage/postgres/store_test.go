package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/internal/storage/postgres"
	"github.com/scrypster/agentpulse/pkg/types"
)

// postgresTestDSN returns the DSN for the test database.
// If POSTGRES_TEST_DSN is not set, tests are skipped.
func postgresTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	store, err := postgres.NewStore(postgresTestDSN(t), nil)
	require.NoError(t, err)
	require.NoError(t, store.TruncateForTest(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedAgent(t *testing.T, s *postgres.Store, name string, limit int) *types.Agent {
	t.Helper()
	a := &types.Agent{Name: name, Skills: []string{"go"}, TriggerWords: []string{"ai"}, RateLimit: limit}
	require.NoError(t, s.CreateAgent(context.Background(), a))
	return a
}

func TestPostgres_AgentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := types.NeutralPersonality("")
	a := &types.Agent{Name: "Sage", Skills: []string{"philosophy"}, RateLimit: 4, Personality: p}
	require.NoError(t, s.CreateAgent(ctx, a))

	got, err := s.GetAgent(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"philosophy"}, got.Skills)
	assert.Equal(t, []string{}, got.TriggerWords)
	require.NotNil(t, got.Personality)

	err = s.CreateAgent(ctx, &types.Agent{Name: "Sage", RateLimit: 1})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestPostgres_AdmitReplyConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAgent(t, s, "A", 3)
	hour := time.Now()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.AdmitReply(ctx, a.ID, hour, 3)
			if err == nil && ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, admitted)
	count, err := s.GetRateWindow(ctx, a.ID, hour)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestPostgres_InteractionsAndLikes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAgent(t, s, "A", 3)

	post := &types.Post{UserID: "u1", Content: "hello ai"}
	require.NoError(t, s.CreatePost(ctx, post))

	created, err := s.CreateLike(ctx, post.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.CreateLike(ctx, post.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, s.CreateInteraction(ctx, &types.Interaction{AgentID: a.ID, PostID: post.ID, Kind: types.ActionLike}))
	err = s.CreateInteraction(ctx, &types.Interaction{AgentID: a.ID, PostID: post.ID, Kind: types.ActionLike})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	posts, err := s.ListRecentPosts(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, post.ID, posts[0].ID)
}

func TestPostgres_PersonalityStageMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAgent(t, s, "A", 3)

	p := types.NeutralPersonality(a.ID)
	p.EvolutionStage = 2
	require.NoError(t, s.UpdatePersonality(ctx, a.ID, p))
	p.EvolutionStage = 0
	require.NoError(t, s.UpdatePersonality(ctx, a.ID, p))

	got, err := s.GetPersonality(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.EvolutionStage)
}

func TestPostgres_CreateReplyAndLearning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAgent(t, s, "A", 3)

	parent := &types.Post{UserID: "u1", Content: "hello ai"}
	require.NoError(t, s.CreatePost(ctx, parent))

	in := &types.Interaction{ID: "in-1", AgentID: a.ID, PostID: parent.ID, Kind: types.ActionReply, Text: "hi"}
	require.NoError(t, s.CreateReply(ctx, &types.Post{AgentID: a.ID, Content: "hi", ReplyTo: parent.ID}, in))
	require.NoError(t, s.CreateReply(ctx,
		&types.Post{AgentID: a.ID, Content: "hi", ReplyTo: parent.ID},
		&types.Interaction{ID: "in-1", AgentID: a.ID, PostID: parent.ID, Kind: types.ActionReply}))
	err := s.CreateReply(ctx,
		&types.Post{ID: "orphan", AgentID: a.ID, Content: "again", ReplyTo: parent.ID},
		&types.Interaction{AgentID: a.ID, PostID: parent.ID, Kind: types.ActionReply})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
	_, err = s.GetPost(ctx, "orphan")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := s.GetInteraction(ctx, "in-1")
	require.NoError(t, err)
	assert.Equal(t, in.ReplyPostID, got.ReplyPostID)

	require.NoError(t, s.RecordLearning(ctx, &types.LearningEntry{
		AgentID: a.ID, Source: types.LearnedFromReply, PostID: parent.ID, Insight: "x",
	}))
	list, err := s.ListLearning(ctx, a.ID, 5)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, parent.ID, list[0].PostID)
}
