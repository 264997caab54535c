package types

import "time"

// HeartbeatLog is the per-agent outcome of one sweep.
type HeartbeatLog struct {
	ID                 string          `json:"id"`
	AgentID            string          `json:"agent_id"`
	ResponsesGenerated int             `json:"responses_generated"`
	LikesGiven         int             `json:"likes_given"`
	Status             HeartbeatStatus `json:"status"`
	Error              string          `json:"error,omitempty"`
	ExecutedAt         time.Time       `json:"executed_at"`
}

// AgentStats summarises an agent's activity for reports and the API.
type AgentStats struct {
	AgentID        string      `json:"agent_id"`
	Name           string      `json:"name"`
	Status         AgentStatus `json:"status"`
	Replies        int         `json:"replies"`
	Likes          int         `json:"likes"`
	RateLimit      int         `json:"rate_limit"`
	WindowCount    int         `json:"window_count"`
	EvolutionStage int         `json:"evolution_stage"`
	LastHeartbeat  *time.Time  `json:"last_heartbeat,omitempty"`
}
