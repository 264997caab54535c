package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scrypster/agentpulse/internal/engine"
	"github.com/scrypster/agentpulse/internal/generator"
	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/pkg/types"
)

// MaxPostRunes bounds user post content.
const MaxPostRunes = 2000

type statusRequest struct {
	Status types.AgentStatus `json:"status" binding:"required"`
}

type feedbackRequest struct {
	Positive *bool `json:"positive" binding:"required"`

	// PostID names the post the feedback is about. Positive feedback on a
	// post is kept in the agent's learning history.
	PostID string `json:"post_id"`
}

type createPostRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Content string `json:"content" binding:"required"`
	ReplyTo string `json:"reply_to"`
}

type heartbeatStatus struct {
	State        string              `json:"state"`
	Running      bool                `json:"running"`
	SkippedTicks int64               `json:"skipped_ticks"`
	LastReport   *engine.SweepReport `json:"last_report,omitempty"`
}

func (s *Server) health(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": s.version})
}

func (s *Server) listAgents(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		agents []types.Agent
		err    error
	)
	if c.Query("status") == string(types.AgentActive) {
		agents, err = s.store.ListActiveAgents(ctx)
	} else {
		agents, err = s.store.ListAgents(ctx)
	}
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents, "count": len(agents)})
}

func (s *Server) generateAgent(c *gin.Context) {
	res, err := s.generator.Generate(c.Request.Context())
	if errors.Is(err, generator.ErrMaxAgents) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) agentStats(c *gin.Context) {
	ctx := c.Request.Context()
	agent, err := s.store.GetAgent(ctx, c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	stats, err := engine.CollectStats(ctx, s.store, s.scheduler.Limiter(), *agent)
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) setAgentStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status request"})
		return
	}

	ctx := c.Request.Context()
	agent, err := s.store.GetAgent(ctx, c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	if !types.IsValidStatusTransition(agent.Status, req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status " + string(req.Status)})
		return
	}
	if err := s.store.SetAgentStatus(ctx, agent.ID, req.Status); err != nil {
		s.storeError(c, err)
		return
	}
	s.logger.Info("server: agent status changed",
		zap.String("agent_id", agent.ID),
		zap.String("from", string(agent.Status)),
		zap.String("to", string(req.Status)))
	c.JSON(http.StatusOK, gin.H{"id": agent.ID, "status": req.Status})
}

func (s *Server) recordFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "positive is required"})
		return
	}
	ctx := c.Request.Context()
	var post *types.Post
	if req.PostID != "" {
		var err error
		if post, err = s.store.GetPost(ctx, req.PostID); err != nil {
			s.storeError(c, err)
			return
		}
	}
	traits, err := s.scheduler.Evolution().RecordFeedback(ctx, c.Param("id"), post, *req.Positive)
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, traits)
}

func (s *Server) listLearning(c *gin.Context) {
	limit := storage.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	agent, err := s.store.GetAgent(ctx, c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	entries, err := s.store.ListLearning(ctx, agent.ID, limit)
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": agent.ID, "learning": entries, "count": len(entries)})
}

func (s *Server) listPosts(c *gin.Context) {
	limit := storage.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		since = t
	}

	posts, err := s.store.ListRecentPosts(c.Request.Context(), since, storage.NormalizeLimit(limit))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "count": len(posts)})
}

func (s *Server) createPost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and content are required"})
		return
	}
	if len([]rune(req.Content)) > MaxPostRunes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content too long"})
		return
	}

	ctx := c.Request.Context()
	if req.ReplyTo != "" {
		if _, err := s.store.GetPost(ctx, req.ReplyTo); err != nil {
			s.storeError(c, err)
			return
		}
	}
	post := &types.Post{UserID: req.UserID, Content: req.Content, ReplyTo: req.ReplyTo}
	if err := s.store.CreatePost(ctx, post); err != nil {
		s.storeError(c, err)
		return
	}
	if req.ReplyTo != "" {
		if err := s.store.IncrementPostCounters(ctx, req.ReplyTo, types.CounterDelta{Replies: 1}); err != nil {
			s.logger.Warn("server: reply counter not incremented",
				zap.String("post_id", req.ReplyTo), zap.Error(err))
		}
	}
	c.JSON(http.StatusCreated, post)
}

func (s *Server) runHeartbeat(c *gin.Context) {
	report, err := s.scheduler.RunOnce(c.Request.Context())
	switch {
	case errors.Is(err, engine.ErrSweepInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": report})
	default:
		c.JSON(http.StatusOK, report)
	}
}

func (s *Server) heartbeatStatus(c *gin.Context) {
	c.JSON(http.StatusOK, heartbeatStatus{
		State:        s.scheduler.State().String(),
		Running:      s.scheduler.Running(),
		SkippedTicks: s.scheduler.SkippedTicks(),
		LastReport:   s.scheduler.LastReport(),
	})
}

// storeError maps storage sentinels onto status codes.
func (s *Server) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		s.logger.Error("server: request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
