package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidAgent is wrapped by Agent.Validate failures.
var ErrInvalidAgent = errors.New("invalid agent")

// Agent is an autonomous participant of the feed.
type Agent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Skills are ordered topical tags matched against post content.
	Skills []string `json:"skills"`

	// TriggerWords are matched before skills and always win.
	TriggerWords []string `json:"trigger_words"`

	// ResponseStyle is a free-form label such as "friendly" or "concise".
	ResponseStyle string `json:"response_style,omitempty"`

	// RateLimit is the maximum number of replies per hour window.
	RateLimit int `json:"rate_limit"`

	Status AgentStatus `json:"status"`

	// Personality is nil when the agent has no trait vector yet.
	Personality *PersonalityTraits `json:"personality,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields a sweep depends on.
func (a *Agent) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: nil agent", ErrInvalidAgent)
	}
	if a.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidAgent)
	}
	if a.RateLimit <= 0 {
		return fmt.Errorf("%w: agent %s has non-positive rate limit %d", ErrInvalidAgent, a.ID, a.RateLimit)
	}
	if !IsValidAgentStatus(a.Status) {
		return fmt.Errorf("%w: agent %s has unknown status %q", ErrInvalidAgent, a.ID, a.Status)
	}
	if a.Personality != nil {
		if err := a.Personality.Validate(); err != nil {
			return fmt.Errorf("%w: agent %s: %v", ErrInvalidAgent, a.ID, err)
		}
	}
	return nil
}

// IsActive reports whether the agent should be swept.
func (a *Agent) IsActive() bool {
	return a != nil && a.Status == AgentActive
}
