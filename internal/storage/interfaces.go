// Package storage provides composable storage interfaces for the heartbeat
// engine and its HTTP API.
//
// The storage layer is split into small interfaces that backends implement
// together as a Store. The engine only depends on the subset it needs, which
// keeps fakes in tests short.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/agentpulse/pkg/types"
)

// AgentStore provides agent lookup and lifecycle operations.
type AgentStore interface {
	// ListActiveAgents returns agents with status active, ordered by id.
	ListActiveAgents(ctx context.Context) ([]types.Agent, error)

	// ListAgents returns every agent regardless of status, ordered by id.
	ListAgents(ctx context.Context) ([]types.Agent, error)

	// GetAgent retrieves an agent by ID.
	// Returns ErrNotFound if the agent doesn't exist.
	GetAgent(ctx context.Context, id string) (*types.Agent, error)

	// CreateAgent inserts a new agent. ID and timestamps are filled in when empty.
	// Returns ErrDuplicate if an agent with the same name exists.
	CreateAgent(ctx context.Context, agent *types.Agent) error

	// CountAgents returns the number of stored agents.
	CountAgents(ctx context.Context) (int, error)

	// SetAgentStatus activates or deactivates an agent.
	// Returns ErrNotFound if the agent doesn't exist.
	SetAgentStatus(ctx context.Context, id string, status types.AgentStatus) error
}

// PostStore provides access to feed posts and their counters.
type PostStore interface {
	// ListRecentPosts returns posts created at or after since, newest first.
	ListRecentPosts(ctx context.Context, since time.Time, limit int) ([]types.Post, error)

	// GetPost retrieves a post by ID.
	// Returns ErrNotFound if the post doesn't exist.
	GetPost(ctx context.Context, id string) (*types.Post, error)

	// CreatePost inserts a post authored by a user or an agent.
	// ID and CreatedAt are assigned when empty.
	CreatePost(ctx context.Context, post *types.Post) error

	// IncrementPostCounters atomically adds delta to the post's counters.
	// Returns ErrNotFound if the post doesn't exist.
	IncrementPostCounters(ctx context.Context, postID string, delta types.CounterDelta) error

	// CreateLike records the (post, agent) like edge.
	// Returns false without error when the edge already exists.
	CreateLike(ctx context.Context, postID, agentID string) (bool, error)
}

// InteractionStore holds the append-only interaction log.
type InteractionStore interface {
	// HasInteraction reports whether the agent already acted on the post with kind.
	HasInteraction(ctx context.Context, agentID, postID string, kind types.ActionKind) (bool, error)

	// CreateInteraction appends an interaction.
	// Returns ErrDuplicate when (agent, post, kind) already exists.
	CreateInteraction(ctx context.Context, interaction *types.Interaction) error

	// CreateReply inserts an agent's reply post and its reply interaction in
	// one transaction, so neither exists without the other. IDs are assigned
	// when empty; callers that retry must assign them up front. Replaying a
	// call whose interaction ID is already stored is a no-op. Returns
	// ErrDuplicate when the agent replied to the post under another ID.
	CreateReply(ctx context.Context, reply *types.Post, interaction *types.Interaction) error

	// GetInteraction retrieves an interaction by ID.
	// Returns ErrNotFound if the interaction doesn't exist.
	GetInteraction(ctx context.Context, id string) (*types.Interaction, error)

	// ListInteractions returns the agent's most recent interactions, newest first.
	ListInteractions(ctx context.Context, agentID string, limit int) ([]types.Interaction, error)

	// CountInteractions counts the agent's interactions of one kind.
	CountInteractions(ctx context.Context, agentID string, kind types.ActionKind) (int, error)
}

// RateWindowStore keeps per-agent reply counts per UTC hour.
type RateWindowStore interface {
	// GetRateWindow returns the count for (agent, hour); zero when absent.
	GetRateWindow(ctx context.Context, agentID string, hour time.Time) (int, error)

	// UpsertRateWindow sets the count for (agent, hour).
	UpsertRateWindow(ctx context.Context, agentID string, hour time.Time, count int) error

	// AdmitReply increments the count for (agent, hour) only if it is below
	// limit, in a single atomic step. Returns false when the window is full.
	AdmitReply(ctx context.Context, agentID string, hour time.Time, limit int) (bool, error)

	// ReleaseReply undoes one AdmitReply. The count never drops below zero.
	ReleaseReply(ctx context.Context, agentID string, hour time.Time) error

	// ResetRateWindows deletes the windows of one agent, or of every agent
	// when agentID is empty, and returns how many rows were removed.
	ResetRateWindows(ctx context.Context, agentID string) (int, error)
}

// PersonalityStore persists trait vectors.
type PersonalityStore interface {
	// GetPersonality returns the agent's traits.
	// Returns ErrNotFound when the agent has no personality.
	GetPersonality(ctx context.Context, agentID string) (*types.PersonalityTraits, error)

	// UpdatePersonality creates or replaces the agent's traits.
	UpdatePersonality(ctx context.Context, agentID string, traits *types.PersonalityTraits) error
}

// LearningStore keeps the append-only learning history of each agent.
type LearningStore interface {
	// RecordLearning appends an entry. ID and CreatedAt are assigned when empty.
	RecordLearning(ctx context.Context, entry *types.LearningEntry) error

	// ListLearning returns the agent's most recent entries, newest first.
	ListLearning(ctx context.Context, agentID string, limit int) ([]types.LearningEntry, error)
}

// HeartbeatStore records per-agent sweep outcomes.
type HeartbeatStore interface {
	// RecordHeartbeat appends a heartbeat log row.
	RecordHeartbeat(ctx context.Context, log *types.HeartbeatLog) error

	// ListHeartbeats returns the most recent logs for an agent, newest first.
	// An empty agentID lists logs of every agent.
	ListHeartbeats(ctx context.Context, agentID string, limit int) ([]types.HeartbeatLog, error)
}

// Store is the full capability set implemented by every backend.
type Store interface {
	AgentStore
	PostStore
	InteractionStore
	RateWindowStore
	PersonalityStore
	LearningStore
	HeartbeatStore

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
