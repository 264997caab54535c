package engine

import (
	"strings"

	"github.com/scrypster/agentpulse/pkg/types"
)

// spontaneousScale turns enthusiasm/10 into the spontaneous engagement
// probability; an agent at full enthusiasm engages with 30% of posts.
const spontaneousScale = 0.3

// Reason explains an eligibility verdict.
type Reason string

// Eligibility reasons, in evaluation order.
const (
	ReasonOwnPost     Reason = "own_post"
	ReasonTrigger     Reason = "trigger_word"
	ReasonSkill       Reason = "skill"
	ReasonSpontaneous Reason = "spontaneous"
	ReasonNone        Reason = "none"
)

// EligibilityFilter decides whether an agent engages with a post at all.
type EligibilityFilter struct{}

// Check applies the rules in order; the first match wins. A random draw is
// taken from rnd only when neither trigger words nor skills matched and the
// agent has a personality.
func (EligibilityFilter) Check(agent *types.Agent, post *types.Post, personality *types.PersonalityTraits, rnd RandomSource) (bool, Reason) {
	if post.IsAuthoredBy(agent.ID) {
		return false, ReasonOwnPost
	}
	content := strings.ToLower(post.Content)
	if containsAny(content, agent.TriggerWords) {
		return true, ReasonTrigger
	}
	if containsAny(content, agent.Skills) {
		return true, ReasonSkill
	}
	if personality != nil && rnd.Float64() < SpontaneousChance(personality) {
		return true, ReasonSpontaneous
	}
	return false, ReasonNone
}

// SpontaneousChance is the probability that the agent engages with a post
// matching none of its words.
func SpontaneousChance(p *types.PersonalityTraits) float64 {
	if p == nil {
		return 0
	}
	return types.ClampTrait(p.Enthusiasm) / types.TraitMax * spontaneousScale
}

// containsAny reports whether lowered content contains any non-empty word,
// case-insensitively.
func containsAny(content string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(content, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
