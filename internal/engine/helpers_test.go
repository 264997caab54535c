package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrypster/agentpulse/internal/storage/memory"
	"github.com/scrypster/agentpulse/pkg/types"
)

var testNow = time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// stubGenerator returns canned text and counts calls.
type stubGenerator struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (g *stubGenerator) Generate(ctx context.Context, agent *types.Agent, post *types.Post, _ *types.PersonalityTraits) (string, error) {
	n := g.calls.Add(1)
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	if g.err != nil {
		return "", g.err
	}
	return fmt.Sprintf("%s on %s (#%d)", agent.Name, post.ID, n), nil
}

func (g *stubGenerator) GetModel() string { return "stub" }

// blockingGenerator parks every call until release is closed or ctx ends.
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingGenerator() *blockingGenerator {
	return &blockingGenerator{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *blockingGenerator) Generate(ctx context.Context, _ *types.Agent, _ *types.Post, _ *types.PersonalityTraits) (string, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return "finally", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *blockingGenerator) GetModel() string { return "blocking" }

func newAgent(t *testing.T, store *memory.Store, id string, limit int, triggers []string, p *types.PersonalityTraits) *types.Agent {
	t.Helper()
	a := &types.Agent{
		ID:           id,
		Name:         "Agent_" + id,
		Skills:       []string{"gardening"},
		TriggerWords: triggers,
		RateLimit:    limit,
		Status:       types.AgentActive,
		Personality:  p,
	}
	require.NoError(t, store.CreateAgent(context.Background(), a))
	return a
}

func newUserPost(t *testing.T, store *memory.Store, id, content string, at time.Time) *types.Post {
	t.Helper()
	p := &types.Post{ID: id, UserID: "user-1", Content: content, CreatedAt: at}
	require.NoError(t, store.CreatePost(context.Background(), p))
	return p
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.OperationTimeout = time.Second
	cfg.RandomSeed = 7
	return cfg
}

func newTestScheduler(t *testing.T, store *memory.Store, gen *stubGenerator, cfg Config, opts ...SchedulerOption) *Scheduler {
	t.Helper()
	if gen == nil {
		gen = &stubGenerator{}
	}
	s, err := NewScheduler(store, gen, cfg, opts...)
	require.NoError(t, err)
	return s
}

// flakyStore fails HasInteraction a number of times before delegating.
type flakyStore struct {
	*memory.Store
	failures atomic.Int32
}

func (f *flakyStore) HasInteraction(ctx context.Context, agentID, postID string, kind types.ActionKind) (bool, error) {
	if f.failures.Add(-1) >= 0 {
		return false, errors.New("disk I/O error")
	}
	return f.Store.HasInteraction(ctx, agentID, postID, kind)
}

// extraAgentsStore appends agents the backing store would refuse to persist.
type extraAgentsStore struct {
	*memory.Store
	extra []types.Agent
}

func (e *extraAgentsStore) ListActiveAgents(ctx context.Context) ([]types.Agent, error) {
	agents, err := e.Store.ListActiveAgents(ctx)
	return append(agents, e.extra...), err
}

// lostAckStore commits every reply but reports a timeout for the first few
// writes, as when the connection drops after the commit.
type lostAckStore struct {
	*memory.Store
	lost atomic.Int32
}

func (s *lostAckStore) CreateReply(ctx context.Context, reply *types.Post, in *types.Interaction) error {
	if err := s.Store.CreateReply(ctx, reply, in); err != nil {
		return err
	}
	if s.lost.Add(-1) >= 0 {
		return errors.New("i/o timeout")
	}
	return nil
}

// failingReplyStore rejects reply writes a number of times before
// delegating.
type failingReplyStore struct {
	*memory.Store
	failures atomic.Int32
}

func (s *failingReplyStore) CreateReply(ctx context.Context, reply *types.Post, in *types.Interaction) error {
	if s.failures.Add(-1) >= 0 {
		return errors.New("connection reset by peer")
	}
	return s.Store.CreateReply(ctx, reply, in)
}

// repliesBy counts the reply posts agentID made to postID.
func repliesBy(t *testing.T, store *memory.Store, agentID, postID string) int {
	t.Helper()
	posts, err := store.ListRecentPosts(context.Background(), time.Time{}, 100)
	require.NoError(t, err)
	n := 0
	for _, p := range posts {
		if p.AgentID == agentID && p.ReplyTo == postID {
			n++
		}
	}
	return n
}
