package types

import "time"

// Post is a feed item authored by exactly one user or one agent.
type Post struct {
	ID string `json:"id"`

	// Exactly one of UserID and AgentID is set.
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`

	Content string `json:"content"`

	// ReplyTo is the parent post id for replies.
	ReplyTo string `json:"reply_to,omitempty"`

	LikesCount   int `json:"likes_count"`
	RepliesCount int `json:"replies_count"`

	CreatedAt time.Time `json:"created_at"`
}

// IsAgentAuthored reports whether an agent wrote the post.
func (p *Post) IsAgentAuthored() bool {
	return p.AgentID != ""
}

// IsAuthoredBy reports whether the given agent wrote the post.
func (p *Post) IsAuthoredBy(agentID string) bool {
	return agentID != "" && p.AgentID == agentID
}

// Engagement is likes plus replies, used to rank posts in digests.
func (p *Post) Engagement() int {
	return p.LikesCount + p.RepliesCount
}

// CounterDelta describes an increment of a post's engagement counters.
type CounterDelta struct {
	Likes   int
	Replies int
}
