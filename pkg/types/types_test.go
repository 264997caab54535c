package types_test

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/scrypster/agentpulse/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAgent() *types.Agent {
	return &types.Agent{
		ID:        "agent-1",
		Name:      "Helper",
		Skills:    []string{"go"},
		RateLimit: 5,
		Status:    types.AgentActive,
	}
}

func TestAgentValidate(t *testing.T) {
	require.NoError(t, validAgent().Validate())

	tests := []struct {
		name   string
		mutate func(a *types.Agent)
	}{
		{"missing id", func(a *types.Agent) { a.ID = "" }},
		{"zero rate limit", func(a *types.Agent) { a.RateLimit = 0 }},
		{"negative rate limit", func(a *types.Agent) { a.RateLimit = -3 }},
		{"unknown status", func(a *types.Agent) { a.Status = "sleeping" }},
		{"trait out of range", func(a *types.Agent) {
			p := types.NeutralPersonality(a.ID)
			p.Humor = 11
			a.Personality = p
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAgent()
			tt.mutate(a)
			err := a.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrInvalidAgent))
		})
	}
}

func TestClampTrait(t *testing.T) {
	assert.Equal(t, 0.0, types.ClampTrait(-2))
	assert.Equal(t, 10.0, types.ClampTrait(12.5))
	assert.Equal(t, 4.2, types.ClampTrait(4.2))
	assert.Equal(t, 0.0, types.ClampTrait(math.NaN()))
}

func TestPersonalityClampAndClone(t *testing.T) {
	p := types.NeutralPersonality("a")
	p.Enthusiasm = 14
	p.Formality = -1
	p.Clamp()
	assert.Equal(t, 10.0, p.Enthusiasm)
	assert.Equal(t, 0.0, p.Formality)
	require.NoError(t, p.Validate())

	c := p.Clone()
	c.Humor = 1
	assert.Equal(t, types.TraitNeutral, p.Humor, "clone must not alias the original")

	var nilTraits *types.PersonalityTraits
	assert.Nil(t, nilTraits.Clone())
}

func TestHourWindow(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2026, 3, 1, 1, 59, 30, 0, loc)

	got := types.HourWindow(ts)

	assert.Equal(t, time.Date(2026, 2, 28, 23, 0, 0, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestPostAuthorship(t *testing.T) {
	p := types.Post{AgentID: "a1", LikesCount: 2, RepliesCount: 3}
	assert.True(t, p.IsAgentAuthored())
	assert.True(t, p.IsAuthoredBy("a1"))
	assert.False(t, p.IsAuthoredBy("a2"))
	assert.False(t, p.IsAuthoredBy(""))
	assert.Equal(t, 5, p.Engagement())

	u := types.Post{UserID: "u1"}
	assert.False(t, u.IsAgentAuthored())
	assert.False(t, u.IsAuthoredBy(""))
}

func TestInsight(t *testing.T) {
	assert.Equal(t, `Replied to content: "short post"`, types.Insight(types.LearnedFromReply, "short\n post"))
	assert.Equal(t, `Liked content: "x"`, types.Insight(types.LearnedFromLike, "x"))

	long := strings.Repeat("é", 150)
	got := types.Insight(types.LearnedFromPositiveFeedback, long)
	assert.Equal(t, `Successful engagement with content: "`+strings.Repeat("é", 100)+`..."`, got)
}

func TestLearningSourceFor(t *testing.T) {
	s, ok := types.LearningSourceFor(types.ActionReply)
	assert.True(t, ok)
	assert.Equal(t, types.LearnedFromReply, s)

	s, ok = types.LearningSourceFor(types.ActionLike)
	assert.True(t, ok)
	assert.Equal(t, types.LearnedFromLike, s)

	_, ok = types.LearningSourceFor(types.ActionObserve)
	assert.False(t, ok)

	assert.True(t, types.IsValidLearningSource(types.LearnedFromPositiveFeedback))
	assert.False(t, types.IsValidLearningSource("gossip"))
}
