// Package types defines the core data structures shared by the heartbeat
// engine, the storage backends and the HTTP API: agents and their
// personalities, feed posts, interactions and hourly rate windows.
package types

// AgentStatus represents whether an agent takes part in heartbeat sweeps.
type AgentStatus string

// ActionKind is the outcome of a decision for one (agent, post) pair.
type ActionKind string

// HeartbeatStatus is the per-agent result recorded for a sweep.
type HeartbeatStatus string

// Agent status constants
const (
	// AgentActive agents are visited by every sweep.
	AgentActive AgentStatus = "active"

	// AgentInactive agents are ignored by sweeps but keep their history.
	AgentInactive AgentStatus = "inactive"
)

// Action kinds
const (
	// ActionReply creates a reply post authored by the agent.
	ActionReply ActionKind = "reply"

	// ActionLike adds a like edge and bumps the like counter.
	ActionLike ActionKind = "like"

	// ActionObserve does nothing and is not persisted.
	ActionObserve ActionKind = "observe"
)

// Heartbeat log statuses
const (
	HeartbeatSuccess HeartbeatStatus = "success"
	HeartbeatFailed  HeartbeatStatus = "failed"
)
