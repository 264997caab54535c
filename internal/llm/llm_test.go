package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/agentpulse/internal/config"
	"github.com/scrypster/agentpulse/pkg/types"
)

// fixedSource always picks the first element and draws zero.
type fixedSource struct{ f float64 }

func (fixedSource) IntN(int) int { return 0 }
func (s fixedSource) Float64() float64 { return s.f }

type stubGenerator struct {
	calls int
	err   error
}

func (s *stubGenerator) Generate(context.Context, *types.Agent, *types.Post, *types.PersonalityTraits) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "ok", nil
}

func (s *stubGenerator) GetModel() string { return "stub" }

func testAgent() *types.Agent {
	return &types.Agent{
		ID:            "agent-1",
		Name:          "Tech_Bot",
		Description:   "Talks about tech",
		Skills:        []string{"golang", "databases"},
		TriggerWords:  []string{"ai"},
		ResponseStyle: "concise",
		RateLimit:     10,
		Status:        types.AgentActive,
	}
}

func TestNormalizeReply(t *testing.T) {
	got, err := normalizeReply(`  "hello there"  `)
	require.NoError(t, err)
	assert.Equal(t, "hello there", got)

	_, err = normalizeReply("   ")
	assert.ErrorIs(t, err, ErrEmptyContent)

	long := strings.Repeat("word ", 100)
	got, err = normalizeReply(long)
	require.NoError(t, err)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxReplyRunes)
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestTemplateGenerator_NoPersonalityUsesDefaults(t *testing.T) {
	g := NewTemplateGenerator(fixedSource{})
	post := &types.Post{ID: "p1", Content: "nothing relevant"}

	got, err := g.Generate(context.Background(), testAgent(), post, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, defaultOpenings[0]), got)
	assert.Contains(t, got, "golang")
	assert.Equal(t, TemplateModel, g.GetModel())
}

func TestTemplateGenerator_TraitBands(t *testing.T) {
	g := NewTemplateGenerator(fixedSource{})

	excited := types.NeutralPersonality("agent-1")
	excited.Enthusiasm = 9
	assert.Equal(t, excitedOpenings[0], g.openings(excited)[0])

	terse := types.NeutralPersonality("agent-1")
	terse.Enthusiasm = 2
	assert.Equal(t, terseOpenings[0], g.openings(terse)[0])

	neutral := types.NeutralPersonality("agent-1")
	assert.Equal(t, neutralOpenings, g.openings(neutral))

	formal := types.NeutralPersonality("agent-1")
	formal.Formality = 9
	formal.Humor = 9
	ops := g.openings(formal)
	assert.Contains(t, ops, formalOpenings[0])
	assert.Contains(t, ops, humorousOpenings[0])
}

func TestTemplateGenerator_SkillMatch(t *testing.T) {
	g := NewTemplateGenerator(fixedSource{})
	post := &types.Post{ID: "p1", Content: "Anyone tuning DATABASES lately?"}
	assert.Equal(t, "databases", matchedSkill(testAgent().Skills, post.Content))

	got, err := g.Generate(context.Background(), testAgent(), post, nil)
	require.NoError(t, err)
	assert.Contains(t, got, "databases")
}

func TestTemplateGenerator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTemplateGenerator(nil).Generate(ctx, testAgent(), &types.Post{Content: "x"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Hour}, nil)
	stub := &stubGenerator{err: errors.New("boom")}
	g := NewBreakerGenerator(stub, cb)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := g.Generate(ctx, testAgent(), &types.Post{}, nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, "open", cb.State())

	_, err := g.Generate(ctx, testAgent(), &types.Post{}, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, stub.calls)

	m := cb.Metrics()
	assert.Equal(t, uint64(2), m.TotalFailures)
	assert.Equal(t, uint64(1), m.Rejected)
}

func TestCircuitBreaker_PassesThroughSuccess(t *testing.T) {
	g := NewBreakerGenerator(&stubGenerator{}, NewCircuitBreaker(DefaultCircuitBreakerConfig(), nil))
	got, err := g.Generate(context.Background(), testAgent(), &types.Post{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, "stub", g.GetModel())
	assert.Equal(t, "closed", g.Breaker().State())
}

func TestOpenAIClient_Generate(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Great take on golang!  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	got, err := c.Generate(context.Background(), testAgent(), &types.Post{Content: "golang 1.24 is out"}, types.NeutralPersonality("agent-1"))
	require.NoError(t, err)
	assert.Equal(t, "Great take on golang!", got)
	assert.Equal(t, "gpt-4o-mini", gotBody["model"])
	assert.EqualValues(t, 100, gotBody["max_tokens"])

	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	system := msgs[0].(map[string]any)["content"].(string)
	assert.Contains(t, system, "Tech_Bot")
	assert.Contains(t, system, "golang, databases")
}

func TestOpenAIClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"nope"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	_, err := c.Generate(context.Background(), testAgent(), &types.Post{Content: "hi"}, nil)
	assert.Error(t, err)
}

func TestNewContentGenerator(t *testing.T) {
	g, err := NewContentGenerator(config.LLMConfig{LLMProvider: "template"}, nil)
	require.NoError(t, err)
	assert.Equal(t, TemplateModel, g.GetModel())

	g, err = NewContentGenerator(config.LLMConfig{LLMProvider: "openai"}, nil)
	require.NoError(t, err)
	assert.Equal(t, TemplateModel, g.GetModel(), "missing key falls back to templates")

	g, err = NewContentGenerator(config.LLMConfig{LLMProvider: "openai", OpenAIAPIKey: "k", OpenAIModel: "gpt-4o"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", g.GetModel())

	_, err = NewContentGenerator(config.LLMConfig{LLMProvider: "ollama"}, nil)
	assert.Error(t, err)
}
