// Package memory implements storage.Store in process memory. It backs the
// "memory" storage engine and the engine tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/pkg/types"
)

type interactionKey struct {
	agentID, postID string
	kind            types.ActionKind
}

type likeKey struct {
	postID, agentID string
}

type windowKey struct {
	agentID string
	hour    time.Time
}

// Store is a mutex-guarded in-memory storage.Store.
type Store struct {
	mu sync.Mutex

	agents        map[string]*types.Agent
	personalities map[string]*types.PersonalityTraits
	posts         map[string]*types.Post
	likes         map[likeKey]types.Like
	interactions  []types.Interaction
	interactionIx map[interactionKey]struct{}
	windows       map[windowKey]int
	heartbeats    []types.HeartbeatLog
	learning      []types.LearningEntry
	closed        bool
}

var _ storage.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		agents:        make(map[string]*types.Agent),
		personalities: make(map[string]*types.PersonalityTraits),
		posts:         make(map[string]*types.Post),
		likes:         make(map[likeKey]types.Like),
		interactionIx: make(map[interactionKey]struct{}),
		windows:       make(map[windowKey]int),
	}
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return fmt.Errorf("memory: %w: store closed", storage.ErrUnavailable)
	}
	return nil
}

func (s *Store) copyAgent(a *types.Agent) types.Agent {
	c := *a
	c.Skills = append([]string(nil), a.Skills...)
	c.TriggerWords = append([]string(nil), a.TriggerWords...)
	c.Personality = s.personalities[a.ID].Clone()
	return c
}

// ListActiveAgents returns active agents ordered by id.
func (s *Store) ListActiveAgents(ctx context.Context) ([]types.Agent, error) {
	return s.listAgents(ctx, true)
}

// ListAgents returns every agent ordered by id.
func (s *Store) ListAgents(ctx context.Context) ([]types.Agent, error) {
	return s.listAgents(ctx, false)
}

func (s *Store) listAgents(ctx context.Context, activeOnly bool) ([]types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	out := make([]types.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		if activeOnly && a.Status != types.AgentActive {
			continue
		}
		out = append(out, s.copyAgent(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetAgent retrieves an agent by id.
func (s *Store) GetAgent(ctx context.Context, id string) (*types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	a, ok := s.agents[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := s.copyAgent(a)
	return &c, nil
}

// CreateAgent stores a new agent and its optional personality.
func (s *Store) CreateAgent(ctx context.Context, agent *types.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if agent == nil || agent.Name == "" {
		return fmt.Errorf("%w: agent name is required", storage.ErrInvalidInput)
	}
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if agent.Status == "" {
		agent.Status = types.AgentActive
	}
	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now
	if err := agent.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	for _, existing := range s.agents {
		if existing.Name == agent.Name || existing.ID == agent.ID {
			return fmt.Errorf("%w: agent %q", storage.ErrDuplicate, agent.Name)
		}
	}

	stored := *agent
	stored.Skills = append([]string(nil), agent.Skills...)
	stored.TriggerWords = append([]string(nil), agent.TriggerWords...)
	stored.Personality = nil
	s.agents[agent.ID] = &stored
	if agent.Personality != nil {
		agent.Personality.AgentID = agent.ID
		p := agent.Personality.Clone()
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
		s.personalities[agent.ID] = p
	}
	return nil
}

// CountAgents returns the number of agents.
func (s *Store) CountAgents(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	return len(s.agents), nil
}

// SetAgentStatus changes an agent's status.
func (s *Store) SetAgentStatus(ctx context.Context, id string, status types.AgentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if !types.IsValidAgentStatus(status) {
		return fmt.Errorf("%w: unknown status %q", storage.ErrInvalidInput, status)
	}
	a, ok := s.agents[id]
	if !ok {
		return storage.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// ListRecentPosts returns posts created at or after since, newest first.
func (s *Store) ListRecentPosts(ctx context.Context, since time.Time, limit int) ([]types.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var out []types.Post
	for _, p := range s.posts {
		if !p.CreatedAt.Before(since) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit = storage.NormalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetPost retrieves a post by id.
func (s *Store) GetPost(ctx context.Context, id string) (*types.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	p, ok := s.posts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *p
	return &c, nil
}

// CreatePost stores a post authored by exactly one user or agent.
func (s *Store) CreatePost(ctx context.Context, post *types.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := s.preparePost(post); err != nil {
		return err
	}
	s.insertPost(post)
	return nil
}

// preparePost validates post and fills its ID and timestamp.
func (s *Store) preparePost(post *types.Post) error {
	if post == nil || post.Content == "" {
		return fmt.Errorf("%w: post content is required", storage.ErrInvalidInput)
	}
	if (post.UserID == "") == (post.AgentID == "") {
		return fmt.Errorf("%w: post needs exactly one author", storage.ErrInvalidInput)
	}
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if _, exists := s.posts[post.ID]; exists {
		return fmt.Errorf("%w: post %s", storage.ErrDuplicate, post.ID)
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (s *Store) insertPost(post *types.Post) {
	c := *post
	s.posts[post.ID] = &c
}

// IncrementPostCounters adds delta to the post's counters.
func (s *Store) IncrementPostCounters(ctx context.Context, postID string, delta types.CounterDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	p, ok := s.posts[postID]
	if !ok {
		return storage.ErrNotFound
	}
	p.LikesCount = max(p.LikesCount+delta.Likes, 0)
	p.RepliesCount = max(p.RepliesCount+delta.Replies, 0)
	return nil
}

// CreateLike records the like edge unless it already exists.
func (s *Store) CreateLike(ctx context.Context, postID, agentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return false, err
	}
	key := likeKey{postID: postID, agentID: agentID}
	if _, exists := s.likes[key]; exists {
		return false, nil
	}
	s.likes[key] = types.Like{ID: uuid.NewString(), PostID: postID, AgentID: agentID, CreatedAt: time.Now().UTC()}
	return true, nil
}

// HasInteraction reports whether (agent, post, kind) was recorded.
func (s *Store) HasInteraction(ctx context.Context, agentID, postID string, kind types.ActionKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return false, err
	}
	_, ok := s.interactionIx[interactionKey{agentID, postID, kind}]
	return ok, nil
}

// CreateInteraction appends an interaction record.
func (s *Store) CreateInteraction(ctx context.Context, interaction *types.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := s.prepareInteraction(interaction); err != nil {
		return err
	}
	s.insertInteraction(interaction)
	return nil
}

// CreateReply stores the reply post and its interaction under one lock.
func (s *Store) CreateReply(ctx context.Context, reply *types.Post, interaction *types.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if interaction == nil || interaction.Kind != types.ActionReply {
		return fmt.Errorf("%w: reply needs a reply interaction", storage.ErrInvalidInput)
	}
	if interaction.ID != "" {
		for _, in := range s.interactions {
			if in.ID == interaction.ID {
				return nil
			}
		}
	}
	if err := s.preparePost(reply); err != nil {
		return err
	}
	interaction.ReplyPostID = reply.ID
	if err := s.prepareInteraction(interaction); err != nil {
		return err
	}
	s.insertPost(reply)
	s.insertInteraction(interaction)
	return nil
}

// prepareInteraction validates interaction and fills its ID and timestamp.
func (s *Store) prepareInteraction(interaction *types.Interaction) error {
	if interaction == nil || interaction.AgentID == "" || interaction.PostID == "" {
		return fmt.Errorf("%w: interaction needs agent and post", storage.ErrInvalidInput)
	}
	if !types.IsValidActionKind(interaction.Kind) {
		return fmt.Errorf("%w: unknown kind %q", storage.ErrInvalidInput, interaction.Kind)
	}
	key := interactionKey{interaction.AgentID, interaction.PostID, interaction.Kind}
	if _, exists := s.interactionIx[key]; exists {
		return fmt.Errorf("%w: %s already %s post %s", storage.ErrDuplicate,
			interaction.AgentID, interaction.Kind, interaction.PostID)
	}
	if interaction.ID == "" {
		interaction.ID = uuid.NewString()
	}
	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (s *Store) insertInteraction(interaction *types.Interaction) {
	s.interactionIx[interactionKey{interaction.AgentID, interaction.PostID, interaction.Kind}] = struct{}{}
	s.interactions = append(s.interactions, *interaction)
}

// GetInteraction retrieves an interaction by ID.
func (s *Store) GetInteraction(ctx context.Context, id string) (*types.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	for _, in := range s.interactions {
		if in.ID == id {
			c := in
			return &c, nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListInteractions returns the agent's interactions, newest first.
func (s *Store) ListInteractions(ctx context.Context, agentID string, limit int) ([]types.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out []types.Interaction
	for i := len(s.interactions) - 1; i >= 0; i-- {
		if s.interactions[i].AgentID == agentID {
			out = append(out, s.interactions[i])
		}
	}
	if limit = storage.NormalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountInteractions counts the agent's interactions of one kind.
func (s *Store) CountInteractions(ctx context.Context, agentID string, kind types.ActionKind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	n := 0
	for _, i := range s.interactions {
		if i.AgentID == agentID && i.Kind == kind {
			n++
		}
	}
	return n, nil
}

// GetRateWindow returns the reply count for (agent, hour).
func (s *Store) GetRateWindow(ctx context.Context, agentID string, hour time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	return s.windows[windowKey{agentID, types.HourWindow(hour)}], nil
}

// UpsertRateWindow sets the reply count for (agent, hour).
func (s *Store) UpsertRateWindow(ctx context.Context, agentID string, hour time.Time, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.windows[windowKey{agentID, types.HourWindow(hour)}] = max(count, 0)
	return nil
}

// AdmitReply increments the window under the store mutex while below limit.
func (s *Store) AdmitReply(ctx context.Context, agentID string, hour time.Time, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return false, err
	}
	key := windowKey{agentID, types.HourWindow(hour)}
	if s.windows[key] >= limit {
		return false, nil
	}
	s.windows[key]++
	return true, nil
}

// ReleaseReply decrements the window, never below zero.
func (s *Store) ReleaseReply(ctx context.Context, agentID string, hour time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	key := windowKey{agentID, types.HourWindow(hour)}
	if s.windows[key] > 0 {
		s.windows[key]--
	}
	return nil
}

// ResetRateWindows drops windows for one agent or all agents.
func (s *Store) ResetRateWindows(ctx context.Context, agentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	n := 0
	for key := range s.windows {
		if agentID == "" || key.agentID == agentID {
			delete(s.windows, key)
			n++
		}
	}
	return n, nil
}

// GetPersonality returns the agent's traits or storage.ErrNotFound.
func (s *Store) GetPersonality(ctx context.Context, agentID string) (*types.PersonalityTraits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	p, ok := s.personalities[agentID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// UpdatePersonality creates or replaces the agent's traits, keeping the
// larger evolution stage.
func (s *Store) UpdatePersonality(ctx context.Context, agentID string, traits *types.PersonalityTraits) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if traits == nil {
		return fmt.Errorf("%w: traits are required", storage.ErrInvalidInput)
	}
	if err := traits.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	c := traits.Clone()
	c.AgentID = agentID
	c.UpdatedAt = time.Now().UTC()
	if prev, ok := s.personalities[agentID]; ok && prev.EvolutionStage > c.EvolutionStage {
		c.EvolutionStage = prev.EvolutionStage
	}
	s.personalities[agentID] = c
	return nil
}

// RecordHeartbeat appends a heartbeat log.
func (s *Store) RecordHeartbeat(ctx context.Context, log *types.HeartbeatLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if log == nil || log.AgentID == "" {
		return fmt.Errorf("%w: heartbeat log needs an agent", storage.ErrInvalidInput)
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.ExecutedAt.IsZero() {
		log.ExecutedAt = time.Now().UTC()
	}
	if log.Status == "" {
		log.Status = types.HeartbeatSuccess
	}
	s.heartbeats = append(s.heartbeats, *log)
	return nil
}

// ListHeartbeats returns recent heartbeat logs, newest first.
func (s *Store) ListHeartbeats(ctx context.Context, agentID string, limit int) ([]types.HeartbeatLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out []types.HeartbeatLog
	for i := len(s.heartbeats) - 1; i >= 0; i-- {
		if agentID == "" || s.heartbeats[i].AgentID == agentID {
			out = append(out, s.heartbeats[i])
		}
	}
	if limit = storage.NormalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecordLearning appends a learning history entry.
func (s *Store) RecordLearning(ctx context.Context, entry *types.LearningEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if entry == nil || entry.AgentID == "" {
		return fmt.Errorf("%w: learning entry needs an agent", storage.ErrInvalidInput)
	}
	if !types.IsValidLearningSource(entry.Source) {
		return fmt.Errorf("%w: unknown learning source %q", storage.ErrInvalidInput, entry.Source)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.learning = append(s.learning, *entry)
	return nil
}

// ListLearning returns the agent's learning history, newest first.
func (s *Store) ListLearning(ctx context.Context, agentID string, limit int) ([]types.LearningEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out []types.LearningEntry
	for i := len(s.learning) - 1; i >= 0; i-- {
		if s.learning[i].AgentID == agentID {
			out = append(out, s.learning[i])
		}
	}
	if limit = storage.NormalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping reports whether the store is still open.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check(ctx)
}

// Close marks the store closed; later calls fail with storage.ErrUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
