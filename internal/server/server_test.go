package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/agentpulse/internal/config"
	"github.com/scrypster/agentpulse/internal/engine"
	"github.com/scrypster/agentpulse/internal/generator"
	"github.com/scrypster/agentpulse/internal/notify"
	"github.com/scrypster/agentpulse/internal/server"
	"github.com/scrypster/agentpulse/internal/storage/memory"
	"github.com/scrypster/agentpulse/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type replyGenerator struct {
	started chan struct{}
	release chan struct{}
}

func (g *replyGenerator) Generate(ctx context.Context, agent *types.Agent, _ *types.Post, _ *types.PersonalityTraits) (string, error) {
	if g.started != nil {
		close(g.started)
		select {
		case <-g.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "reply from " + agent.Name, nil
}

func (g *replyGenerator) GetModel() string { return "test" }

type testEnv struct {
	cfg       *config.Config
	store     *memory.Store
	scheduler *engine.Scheduler
	srv       *server.Server
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Heartbeat: config.HeartbeatConfig{SweepTimeout: time.Minute},
		Security:  config.SecurityConfig{SecurityMode: "development"},
		Generator: config.GeneratorConfig{MaxAgents: 10, MinRateLimit: 5, MaxRateLimit: 20},
	}
}

func newEnv(t *testing.T, cfg *config.Config, gen *replyGenerator) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	if gen == nil {
		gen = &replyGenerator{}
	}
	store := memory.NewStore()
	ecfg := engine.DefaultConfig()
	ecfg.OperationTimeout = time.Second
	sched, err := engine.NewScheduler(store, gen, ecfg, engine.WithRandomFactory(engine.FixedFactory(0.1)))
	require.NoError(t, err)

	g, err := generator.New(store, generator.DefaultCatalog(), cfg.Generator, 42, nil)
	require.NoError(t, err)

	srv, err := server.New(cfg, store, sched, server.WithGenerator(g), server.WithVersion("test"))
	require.NoError(t, err)
	return &testEnv{cfg: cfg, store: store, scheduler: sched, srv: srv}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) addAgent(t *testing.T, id string, triggers []string, p *types.PersonalityTraits) *types.Agent {
	t.Helper()
	a := &types.Agent{
		ID:           id,
		Name:         "Agent_" + id,
		Skills:       []string{"gardening"},
		TriggerWords: triggers,
		RateLimit:    5,
		Status:       types.AgentActive,
		Personality:  p,
	}
	require.NoError(t, e.store.CreateAgent(context.Background(), a))
	return a
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := server.New(nil, nil, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	env := newEnv(t, nil, nil)

	rec := env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])

	for name, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "1; mode=block",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		assert.Equal(t, want, rec.Header().Get(name), name)
	}

	require.NoError(t, env.store.Close())
	rec = env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuth_ProductionRequiresToken(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{SecurityMode: "production", APIToken: "s3cret"}
	env := newEnv(t, cfg, nil)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/agents", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		env.do(t, http.MethodGet, "/api/agents", nil, "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK,
		env.do(t, http.MethodGet, "/api/agents", nil, "Authorization", "Bearer s3cret").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/health", nil).Code, "health stays open")
}

func TestAuth_ProductionWithoutTokenRejectsAll(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{SecurityMode: "production"}
	env := newEnv(t, cfg, nil)

	assert.Equal(t, http.StatusUnauthorized,
		env.do(t, http.MethodGet, "/api/agents", nil, "Authorization", "Bearer ").Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimitPerSecond = 0.001
	cfg.Server.RateLimitBurst = 1
	env := newEnv(t, cfg, nil)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/health", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodGet, "/api/health", nil).Code)
}

func TestAgents_ListAndFilter(t *testing.T) {
	env := newEnv(t, nil, nil)
	env.addAgent(t, "a1", nil, nil)
	env.addAgent(t, "a2", nil, nil)
	require.NoError(t, env.store.SetAgentStatus(context.Background(), "a2", types.AgentInactive))

	type listResp struct {
		Agents []types.Agent `json:"agents"`
		Count  int           `json:"count"`
	}
	all := decode[listResp](t, env.do(t, http.MethodGet, "/api/agents", nil))
	assert.Equal(t, 2, all.Count)

	active := decode[listResp](t, env.do(t, http.MethodGet, "/api/agents?status=active", nil))
	require.Len(t, active.Agents, 1)
	assert.Equal(t, "a1", active.Agents[0].ID)
}

func TestAgents_Generate(t *testing.T) {
	env := newEnv(t, nil, nil)

	rec := env.do(t, http.MethodPost, "/api/agents", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	n, err := env.store.CountAgents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAgents_GenerateAtCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.Generator.MaxAgents = 1
	env := newEnv(t, cfg, nil)
	env.addAgent(t, "a1", nil, nil)

	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/agents", nil).Code)
}

func TestAgentStats(t *testing.T) {
	env := newEnv(t, nil, nil)
	ctx := context.Background()
	env.addAgent(t, "a1", nil, &types.PersonalityTraits{Enthusiasm: 5, EvolutionStage: 3})
	require.NoError(t, env.store.CreateInteraction(ctx, &types.Interaction{AgentID: "a1", PostID: "p1", Kind: types.ActionReply}))
	require.NoError(t, env.store.CreateInteraction(ctx, &types.Interaction{AgentID: "a1", PostID: "p2", Kind: types.ActionLike}))
	require.NoError(t, env.store.CreateInteraction(ctx, &types.Interaction{AgentID: "a1", PostID: "p3", Kind: types.ActionLike}))
	require.NoError(t, env.scheduler.Limiter().Increment(ctx, "a1"))

	rec := env.do(t, http.MethodGet, "/api/agents/a1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decode[types.AgentStats](t, rec)
	assert.Equal(t, 1, stats.Replies)
	assert.Equal(t, 2, stats.Likes)
	assert.Equal(t, 1, stats.WindowCount)
	assert.Equal(t, 5, stats.RateLimit)
	assert.Equal(t, 3, stats.EvolutionStage)
	assert.Nil(t, stats.LastHeartbeat)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/agents/missing/stats", nil).Code)
}

func TestAgentStatus(t *testing.T) {
	env := newEnv(t, nil, nil)
	env.addAgent(t, "a1", nil, nil)

	rec := env.do(t, http.MethodPost, "/api/agents/a1/status", map[string]string{"status": "inactive"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	a, err := env.store.GetAgent(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, types.AgentInactive, a.Status)

	assert.Equal(t, http.StatusBadRequest,
		env.do(t, http.MethodPost, "/api/agents/a1/status", map[string]string{"status": "sleeping"}).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(t, http.MethodPost, "/api/agents/a1/status", map[string]string{}).Code)
	assert.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodPost, "/api/agents/missing/status", map[string]string{"status": "active"}).Code)
}

func TestAgentFeedback(t *testing.T) {
	env := newEnv(t, nil, nil)
	env.addAgent(t, "a1", nil, &types.PersonalityTraits{Enthusiasm: 5})
	env.addAgent(t, "bare", nil, nil)

	rec := env.do(t, http.MethodPost, "/api/agents/a1/feedback", map[string]bool{"positive": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[types.PersonalityTraits](t, rec).PositiveFeedback)

	rec = env.do(t, http.MethodPost, "/api/agents/a1/feedback", map[string]bool{"positive": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[types.PersonalityTraits](t, rec).NegativeFeedback)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/agents/a1/feedback", map[string]bool{}).Code)
	assert.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodPost, "/api/agents/bare/feedback", map[string]bool{"positive": true}).Code)
}

func TestAgentLearning(t *testing.T) {
	env := newEnv(t, nil, nil)
	env.addAgent(t, "a1", nil, &types.PersonalityTraits{Enthusiasm: 5})
	ctx := context.Background()
	post := &types.Post{ID: "p1", UserID: "u1", Content: "compost every week"}
	require.NoError(t, env.store.CreatePost(ctx, post))

	rec := env.do(t, http.MethodPost, "/api/agents/a1/feedback", map[string]any{"positive": true, "post_id": "p1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodPost, "/api/agents/a1/feedback", map[string]any{"positive": false, "post_id": "p1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodPost, "/api/agents/a1/feedback", map[string]any{"positive": true, "post_id": "missing"}).Code)

	type learningResp struct {
		AgentID  string                `json:"agent_id"`
		Learning []types.LearningEntry `json:"learning"`
		Count    int                   `json:"count"`
	}
	rec = env.do(t, http.MethodGet, "/api/agents/a1/learning?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[learningResp](t, rec)
	require.Equal(t, 1, got.Count)
	assert.Equal(t, types.LearnedFromPositiveFeedback, got.Learning[0].Source)
	assert.Equal(t, "p1", got.Learning[0].PostID)
	assert.Equal(t, `Successful engagement with content: "compost every week"`, got.Learning[0].Insight)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/agents/a1/learning?limit=x", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/agents/nobody/learning", nil).Code)
}

func TestPosts_CreateListAndReply(t *testing.T) {
	env := newEnv(t, nil, nil)

	rec := env.do(t, http.MethodPost, "/api/posts", map[string]string{"user_id": "u1", "content": "hello feed"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	parent := decode[types.Post](t, rec)
	require.NotEmpty(t, parent.ID)

	rec = env.do(t, http.MethodPost, "/api/posts", map[string]string{"user_id": "u2", "content": "hi", "reply_to": parent.ID})
	require.Equal(t, http.StatusCreated, rec.Code)

	got, err := env.store.GetPost(context.Background(), parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RepliesCount)

	type listResp struct {
		Posts []types.Post `json:"posts"`
		Count int          `json:"count"`
	}
	list := decode[listResp](t, env.do(t, http.MethodGet, "/api/posts?limit=10", nil))
	assert.Equal(t, 2, list.Count)

	list = decode[listResp](t, env.do(t, http.MethodGet, "/api/posts?limit=1", nil))
	assert.Equal(t, 1, list.Count)
}

func TestPosts_Validation(t *testing.T) {
	env := newEnv(t, nil, nil)

	assert.Equal(t, http.StatusBadRequest,
		env.do(t, http.MethodPost, "/api/posts", map[string]string{"user_id": "u1"}).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(t, http.MethodPost, "/api/posts", map[string]string{"user_id": "u1", "content": strings.Repeat("x", server.MaxPostRunes+1)}).Code)
	assert.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodPost, "/api/posts", map[string]string{"user_id": "u1", "content": "x", "reply_to": "nope"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/posts?limit=abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/posts?since=yesterday", nil).Code)
}

func TestHeartbeat_RunAndStatus(t *testing.T) {
	env := newEnv(t, nil, nil)
	env.addAgent(t, "a1", []string{"ai"}, nil)
	require.NoError(t, env.store.CreatePost(context.Background(), &types.Post{UserID: "u1", Content: "thoughts on ai?"}))

	rec := env.do(t, http.MethodPost, "/api/heartbeat/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[engine.SweepReport](t, rec)
	assert.Equal(t, 1, report.AgentsProcessed)
	assert.Equal(t, 1, report.RepliesSent)

	rec = env.do(t, http.MethodGet, "/api/heartbeat/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		State      string              `json:"state"`
		Running    bool                `json:"running"`
		LastReport *engine.SweepReport `json:"last_report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "idle", status.State)
	assert.False(t, status.Running)
	require.NotNil(t, status.LastReport)
	assert.Equal(t, 1, status.LastReport.RepliesSent)

	env.scheduler.WaitNotifications()
}

func TestHeartbeat_RunWhileSweeping(t *testing.T) {
	gen := &replyGenerator{started: make(chan struct{}), release: make(chan struct{})}
	env := newEnv(t, nil, gen)
	env.addAgent(t, "a1", []string{"ai"}, nil)
	require.NoError(t, env.store.CreatePost(context.Background(), &types.Post{UserID: "u1", Content: "ai"}))

	first := make(chan int, 1)
	go func() {
		first <- env.do(t, http.MethodPost, "/api/heartbeat/run", nil).Code
	}()

	select {
	case <-gen.started:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not reach generation")
	}
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/heartbeat/run", nil).Code)

	close(gen.release)
	assert.Equal(t, http.StatusOK, <-first)
	env.scheduler.WaitNotifications()
}

func TestServer_StartAndWebSocket(t *testing.T) {
	env := newEnv(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	addr, err := env.srv.Start(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		env.srv.Wait()
	})
	require.NotContains(t, addr, ":0")

	resp, err := http.Get("http://" + addr + "/api/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(dialCtx, "ws://"+addr+"/ws", nil) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	require.NoError(t, err)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }() //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	hub := env.srv.Hub()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	evt := notify.InteractionEvent(types.Interaction{AgentID: "a1", PostID: "p1", Kind: types.ActionLike})
	require.NoError(t, hub.Publish(ctx, evt))

	_, data, err := conn.Read(dialCtx)
	require.NoError(t, err)
	var got notify.Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, notify.EventInteraction, got.Type)
	assert.Equal(t, "a1", got.AgentID)
	assert.Equal(t, types.ActionLike, got.Kind)
}
