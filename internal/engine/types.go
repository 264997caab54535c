// Package engine runs the heartbeat: on every sweep each active agent reads
// recent posts and decides, per post, whether to reply, like or merely
// observe. Admission is bounded by an hourly reply budget per agent and
// every committed interaction nudges the agent's personality.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/agentpulse/internal/config"
)

// Config holds configuration for the heartbeat engine.
type Config struct {
	// Interval is the time between periodic sweeps (default: 5m).
	Interval time.Duration

	// SweepTimeout bounds a sweep. Once exceeded, the agent in flight is
	// finished and no further agents start (default: 2m).
	SweepTimeout time.Duration

	// OperationTimeout bounds each store and generator call (default: 10s).
	OperationTimeout time.Duration

	// PostLookback is how far back a sweep looks for posts (default: 5m).
	PostLookback time.Duration

	// PostLimit caps the posts loaded per sweep (default: 20).
	PostLimit int

	// IncludeAgentPosts lets agents react to other agents' posts.
	IncludeAgentPosts bool

	// Concurrency is the number of agents processed in parallel (default: 1).
	Concurrency int

	// RunOnStart triggers a sweep as soon as Start is called.
	RunOnStart bool

	// RandomSeed seeds the per-pair random sources.
	RandomSeed int64

	// ReplyThreshold and LikeThreshold split the decision draw (0.4 / 0.7).
	ReplyThreshold float64
	LikeThreshold  float64

	// EvolutionInterval is the number of interactions per evolution stage (default: 20).
	EvolutionInterval int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:          5 * time.Minute,
		SweepTimeout:      2 * time.Minute,
		OperationTimeout:  10 * time.Second,
		PostLookback:      5 * time.Minute,
		PostLimit:         20,
		Concurrency:       1,
		RunOnStart:        true,
		ReplyThreshold:    DefaultReplyThreshold,
		LikeThreshold:     DefaultLikeThreshold,
		EvolutionInterval: DefaultEvolutionInterval,
	}
}

// ConfigFromSettings maps the heartbeat section of the application config.
func ConfigFromSettings(hc config.HeartbeatConfig) Config {
	return Config{
		Interval:          hc.Interval,
		SweepTimeout:      hc.SweepTimeout,
		OperationTimeout:  hc.OperationTimeout,
		PostLookback:      hc.PostLookback,
		PostLimit:         hc.PostLimit,
		IncludeAgentPosts: hc.IncludeAgentPosts,
		Concurrency:       hc.Concurrency,
		RunOnStart:        hc.RunOnStart,
		RandomSeed:        hc.RandomSeed,
		ReplyThreshold:    hc.ReplyThreshold,
		LikeThreshold:     hc.LikeThreshold,
		EvolutionInterval: hc.EvolutionInterval,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	var errs []error
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("Interval must be > 0, got %v", c.Interval))
	}
	if c.SweepTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SweepTimeout must be > 0, got %v", c.SweepTimeout))
	}
	if c.OperationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("OperationTimeout must be > 0, got %v", c.OperationTimeout))
	}
	if c.PostLookback <= 0 {
		errs = append(errs, fmt.Errorf("PostLookback must be > 0, got %v", c.PostLookback))
	}
	if c.PostLimit < 1 {
		errs = append(errs, fmt.Errorf("PostLimit must be >= 1, got %d", c.PostLimit))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("Concurrency must be >= 1, got %d", c.Concurrency))
	}
	if c.EvolutionInterval < 1 {
		errs = append(errs, fmt.Errorf("EvolutionInterval must be >= 1, got %d", c.EvolutionInterval))
	}
	if _, err := NewDecisionPolicy(c.ReplyThreshold, c.LikeThreshold); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// State is the scheduler's sweep state.
type State int32

// Scheduler states.
const (
	StateIdle State = iota
	StateSweeping
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSweeping:
		return "sweeping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	AgentsProcessed int `json:"agents_processed"`
	AgentsSkipped   int `json:"agents_skipped"`
	PostsConsidered int `json:"posts_considered"`

	RepliesSent        int `json:"replies_sent"`
	LikesGiven         int `json:"likes_given"`
	Observed           int `json:"observed"`
	RateLimited        int `json:"rate_limited"`
	GenerationFailures int `json:"generation_failures"`

	// Errors holds one message per skipped agent or agent-post pair.
	Errors []string `json:"errors,omitempty"`

	// SkippedTicks counts periodic ticks dropped because a sweep was running,
	// since the previous completed sweep.
	SkippedTicks int64 `json:"skipped_ticks"`

	// TimedOut is set when the sweep budget ran out before every agent started.
	TimedOut bool `json:"timed_out"`
}

// Duration is the wall time of the sweep.
func (r SweepReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Changed reports whether the sweep committed any interaction.
func (r SweepReport) Changed() bool {
	return r.RepliesSent > 0 || r.LikesGiven > 0
}
