// Package notify carries feed activity out of the heartbeat engine: event
// files shared between processes, NATS subjects, and digest messages for
// WhatsApp recipients.
package notify

import (
	"context"
	"time"

	"github.com/scrypster/agentpulse/pkg/types"
)

// Event types.
const (
	EventInteraction   = "interaction"
	EventSweepComplete = "sweep_complete"
)

// Event is the payload written to event files, NATS subjects and websocket
// clients.
type Event struct {
	Type        string           `json:"type"`
	AgentID     string           `json:"agent_id,omitempty"`
	PostID      string           `json:"post_id,omitempty"`
	Kind        types.ActionKind `json:"kind,omitempty"`
	ReplyPostID string           `json:"reply_post_id,omitempty"`
	Text        string           `json:"text,omitempty"`
	Replies     int              `json:"replies,omitempty"`
	Likes       int              `json:"likes,omitempty"`
	Time        int64            `json:"time"`
}

// InteractionEvent describes a committed interaction.
func InteractionEvent(in types.Interaction) Event {
	at := in.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	return Event{
		Type:        EventInteraction,
		AgentID:     in.AgentID,
		PostID:      in.PostID,
		Kind:        in.Kind,
		ReplyPostID: in.ReplyPostID,
		Text:        in.Text,
		Time:        at.UnixNano(),
	}
}

// SweepEvent summarizes a finished sweep.
func SweepEvent(at time.Time, replies, likes int) Event {
	return Event{Type: EventSweepComplete, Replies: replies, Likes: likes, Time: at.UnixNano()}
}

// Publisher receives individual events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Notifier receives the digest sent after a sweep that changed the feed.
type Notifier interface {
	Notify(ctx context.Context, digest Digest) error
}
