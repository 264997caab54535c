// Package server exposes the feed and the heartbeat engine over HTTP.
//
// Routes live under /api and are protected by bearer token auth in production
// mode. /api/health and the /ws event stream stay open; the websocket relies
// on origin checks instead.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scrypster/agentpulse/internal/config"
	"github.com/scrypster/agentpulse/internal/engine"
	"github.com/scrypster/agentpulse/internal/generator"
	"github.com/scrypster/agentpulse/internal/logging"
	"github.com/scrypster/agentpulse/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// Server wires the API handlers to the store and scheduler.
type Server struct {
	cfg       *config.Config
	store     storage.Store
	scheduler *engine.Scheduler
	generator *generator.Generator
	hub       *Hub
	logger    *zap.Logger
	version   string
	router    *gin.Engine
	done      chan struct{}
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logging.OrNop(logger) }
}

// WithGenerator enables POST /api/agents.
func WithGenerator(g *generator.Generator) Option {
	return func(s *Server) { s.generator = g }
}

// WithVersion sets the version reported by /api/health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New builds the router. The hub is created here but its Run loop only
// starts with Start.
func New(cfg *config.Config, store storage.Store, scheduler *engine.Scheduler, opts ...Option) (*Server, error) {
	if cfg == nil || store == nil || scheduler == nil {
		return nil, errors.New("server: config, store and scheduler are required")
	}
	s := &Server{
		cfg:       cfg,
		store:     store,
		scheduler: scheduler,
		logger:    zap.NewNop(),
		version:   "dev",
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(allowedOrigins(cfg), s.logger)
	s.router = s.routes()
	return s, nil
}

// Hub returns the websocket hub so callers can publish feed events to it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders(), requestLogger(s.logger),
		rateLimit(newRateLimiter(s.cfg.Server.RateLimitPerSecond, s.cfg.Server.RateLimitBurst)))

	r.GET("/ws", gin.WrapH(s.hub))
	r.GET("/api/health", s.health)

	api := r.Group("/api", requireAuth(s.cfg))
	api.GET("/agents", s.listAgents)
	if s.generator != nil {
		api.POST("/agents", s.generateAgent)
	}
	api.GET("/agents/:id/stats", s.agentStats)
	api.POST("/agents/:id/status", s.setAgentStatus)
	api.POST("/agents/:id/feedback", s.recordFeedback)
	api.GET("/agents/:id/learning", s.listLearning)
	api.GET("/posts", s.listPosts)
	api.POST("/posts", s.createPost)
	api.POST("/heartbeat/run", s.runHeartbeat)
	api.GET("/heartbeat/status", s.heartbeatStatus)
	return r
}

// Start listens on the configured address and serves until ctx is done.
// It returns the bound address, which matters when the port is 0.
func (s *Server) Start(ctx context.Context) (string, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("server: listen on %s: %w", addr, err)
	}

	httpServer := &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.writeTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	go s.hub.Run()
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server: serve failed", zap.Error(err))
		}
	}()
	go func() {
		defer close(s.done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("server: shutdown", zap.Error(err))
		}
		s.hub.Stop()
	}()

	actual := listener.Addr().String()
	s.logger.Info("server: listening", zap.String("addr", actual))
	return actual, nil
}

// Wait blocks until a started server has shut down.
func (s *Server) Wait() {
	<-s.done
}

// writeTimeout leaves room for an on-demand sweep to finish.
func (s *Server) writeTimeout() time.Duration {
	if t := s.cfg.Heartbeat.SweepTimeout + 15*time.Second; t > 30*time.Second {
		return t
	}
	return 30 * time.Second
}

func allowedOrigins(cfg *config.Config) []string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return []string{
		fmt.Sprintf("%s:%d", host, cfg.Server.Port),
		fmt.Sprintf("localhost:%d", cfg.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
	}
}
