package llm

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/scrypster/agentpulse/pkg/types"
)

// TemplateModel is the model name reported by TemplateGenerator.
const TemplateModel = "template"

// trait bands
const (
	traitHigh = 7.0
	traitLow  = 4.0
)

var (
	defaultOpenings = []string{
		"Interesting point. ",
		"Good thought. ",
		"I noticed this: ",
		"Worth a look. ",
	}
	excitedOpenings = []string{
		"Love this! ",
		"This is great! ",
		"Oh, fascinating! ",
	}
	terseOpenings = []string{
		"I see. ",
		"Noted. ",
		"Hm. ",
	}
	neutralOpenings = []string{
		"Interesting point. ",
		"Good observation. ",
	}
	empathicOpenings = []string{
		"I hear you. ",
		"That makes a lot of sense. ",
	}
	deepOpenings = []string{
		"Let me add some depth here: ",
		"There's more to unpack: ",
	}
	shallowOpenings = []string{
		"In short: ",
		"Quick take: ",
	}
	humorousOpenings = []string{
		"Plot twist: ",
		"Not to be dramatic, but ",
	}
	creativeOpenings = []string{
		"Here's an unusual angle: ",
		"Picture it differently: ",
	}
	formalOpenings = []string{
		"I would note that ",
		"It is worth observing that ",
	}
	casualOpenings = []string{
		"Honestly, ",
		"Ngl, ",
	}
	replyBodies = []string{
		"this lines up with what I know about {skill}.",
		"there's a real angle here on {skill}.",
		"I'd love to hear more about where this is going.",
		"this connects to a few things I've been thinking about.",
		"good to see {skill} getting attention.",
		"this raises questions worth exploring further.",
		"I've seen similar patterns before.",
		"thanks for putting this out there.",
	}
)

const fallbackOpening = "Interesting. "

// Source is the randomness TemplateGenerator draws from. *rand.Rand from
// math/rand/v2 satisfies it.
type Source interface {
	IntN(n int) int
	Float64() float64
}

// TemplateGenerator builds replies from phrase pools chosen by personality
// traits. It needs no network and is the default provider.
type TemplateGenerator struct {
	mu  sync.Mutex
	rnd Source
}

// NewTemplateGenerator uses rnd for phrase selection; nil seeds from the clock.
func NewTemplateGenerator(rnd Source) *TemplateGenerator {
	if rnd == nil {
		seed := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &TemplateGenerator{rnd: rnd}
}

// Generate composes an opening and a body. The opening pool grows with every
// trait outside the neutral band; a matched skill adds an expertise opening.
func (g *TemplateGenerator) Generate(ctx context.Context, agent *types.Agent, post *types.Post, personality *types.PersonalityTraits) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if agent == nil || post == nil {
		return "", errors.New("template: agent and post are required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	openings := g.openings(personality)
	skill := matchedSkill(agent.Skills, post.Content)
	if skill != "" {
		openings = append(openings, "From my work in "+skill+": ", "Speaking as someone into "+skill+", ")
	}

	opening := fallbackOpening
	if len(openings) > 0 {
		opening = openings[g.rnd.IntN(len(openings))]
	}

	bodySkill := skill
	if bodySkill == "" {
		bodySkill = "the topic"
		if len(agent.Skills) > 0 {
			bodySkill = agent.Skills[0]
		}
	}
	body := strings.ReplaceAll(replyBodies[g.rnd.IntN(len(replyBodies))], "{skill}", bodySkill)

	return normalizeReply(opening + body)
}

func (g *TemplateGenerator) openings(p *types.PersonalityTraits) []string {
	if p == nil {
		return append([]string(nil), defaultOpenings...)
	}
	var out []string
	switch {
	case p.Enthusiasm > traitHigh:
		out = append(out, excitedOpenings...)
	case p.Enthusiasm < traitLow:
		out = append(out, terseOpenings...)
	default:
		out = append(out, neutralOpenings...)
	}
	if p.Empathy > traitHigh {
		out = append(out, empathicOpenings...)
	}
	switch {
	case p.Depth > traitHigh:
		out = append(out, deepOpenings...)
	case p.Depth < traitLow:
		out = append(out, shallowOpenings...)
	}
	if p.Humor > traitHigh && g.rnd.Float64() < 0.5 {
		out = append(out, humorousOpenings...)
	}
	if p.Creativity > traitHigh {
		out = append(out, creativeOpenings...)
	}
	switch {
	case p.Formality > traitHigh:
		out = append(out, formalOpenings...)
	case p.Formality < traitLow:
		out = append(out, casualOpenings...)
	}
	return out
}

// matchedSkill returns the first skill mentioned in content, case-insensitively.
func matchedSkill(skills []string, content string) string {
	lower := strings.ToLower(content)
	for _, s := range skills {
		if s != "" && strings.Contains(lower, strings.ToLower(s)) {
			return s
		}
	}
	return ""
}

// GetModel returns TemplateModel.
func (g *TemplateGenerator) GetModel() string {
	return TemplateModel
}

var _ ContentGenerator = (*TemplateGenerator)(nil)
