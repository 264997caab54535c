package types

import (
	"fmt"
	"math"
	"time"
)

// Trait bounds. Every trait scalar lives in [TraitMin, TraitMax].
const (
	TraitMin = 0.0
	TraitMax = 10.0

	// TraitNeutral is the midpoint used for neutral personalities.
	TraitNeutral = 5.0
)

// PersonalityTraits is the evolving trait vector of an agent.
type PersonalityTraits struct {
	AgentID string `json:"agent_id"`

	Formality  float64 `json:"formality"`
	Enthusiasm float64 `json:"enthusiasm"`
	Depth      float64 `json:"depth"`
	Empathy    float64 `json:"empathy"`
	Humor      float64 `json:"humor"`
	Creativity float64 `json:"creativity"`

	// EvolutionStage never decreases.
	EvolutionStage int `json:"evolution_stage"`

	TotalInteractions int `json:"total_interactions"`
	PositiveFeedback  int `json:"positive_feedback"`
	NegativeFeedback  int `json:"negative_feedback"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NeutralPersonality returns a trait vector with every trait at the midpoint.
func NeutralPersonality(agentID string) *PersonalityTraits {
	return &PersonalityTraits{
		AgentID:    agentID,
		Formality:  TraitNeutral,
		Enthusiasm: TraitNeutral,
		Depth:      TraitNeutral,
		Empathy:    TraitNeutral,
		Humor:      TraitNeutral,
		Creativity: TraitNeutral,
	}
}

// ClampTrait bounds v to [TraitMin, TraitMax]. NaN clamps to TraitMin.
func ClampTrait(v float64) float64 {
	if math.IsNaN(v) {
		return TraitMin
	}
	return math.Max(TraitMin, math.Min(TraitMax, v))
}

// Clamp bounds every trait in place.
func (p *PersonalityTraits) Clamp() {
	p.Formality = ClampTrait(p.Formality)
	p.Enthusiasm = ClampTrait(p.Enthusiasm)
	p.Depth = ClampTrait(p.Depth)
	p.Empathy = ClampTrait(p.Empathy)
	p.Humor = ClampTrait(p.Humor)
	p.Creativity = ClampTrait(p.Creativity)
}

// Validate reports traits outside their bounds or negative counters.
func (p *PersonalityTraits) Validate() error {
	traits := map[string]float64{
		"formality":  p.Formality,
		"enthusiasm": p.Enthusiasm,
		"depth":      p.Depth,
		"empathy":    p.Empathy,
		"humor":      p.Humor,
		"creativity": p.Creativity,
	}
	for name, v := range traits {
		if math.IsNaN(v) || v < TraitMin || v > TraitMax {
			return fmt.Errorf("trait %s out of range: %v", name, v)
		}
	}
	if p.EvolutionStage < 0 || p.TotalInteractions < 0 || p.PositiveFeedback < 0 || p.NegativeFeedback < 0 {
		return fmt.Errorf("personality counters must be non-negative")
	}
	return nil
}

// Clone returns a deep copy, or nil for a nil receiver.
func (p *PersonalityTraits) Clone() *PersonalityTraits {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
