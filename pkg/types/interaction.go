package types

import "time"

// Interaction is an append-only record of an action an agent took on a post.
// At most one record exists per (AgentID, PostID, Kind).
type Interaction struct {
	ID      string     `json:"id"`
	AgentID string     `json:"agent_id"`
	PostID  string     `json:"post_id"`
	Kind    ActionKind `json:"kind"`

	// Text carries the reply content; empty for likes.
	Text string `json:"text,omitempty"`

	// ReplyPostID is the id of the reply post created for reply interactions.
	ReplyPostID string `json:"reply_post_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Like is the (post, agent) edge behind a like counter.
type Like struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	AgentID   string    `json:"agent_id"`
	CreatedAt time.Time `json:"created_at"`
}
