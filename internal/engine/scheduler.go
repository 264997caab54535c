package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scrypster/agentpulse/internal/llm"
	"github.com/scrypster/agentpulse/internal/notify"
	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/pkg/types"
)

// Scheduler runs heartbeat sweeps on a ticker or on demand.
type Scheduler struct {
	store       storage.Store
	cfg         Config
	logger      *zap.Logger
	now         func() time.Time
	random      RandomFactory
	notifier    notify.Notifier
	eligibility EligibilityFilter
	policy      DecisionPolicy
	limiter     *RateLimiter
	dedup       *DeduplicationGuard
	executor    *InteractionExecutor
	evolution   *PersonalityEvolution
	generator   llm.ContentGenerator
	ops         opRunner

	state        atomic.Int32
	skippedTicks atomic.Int64

	// lifecycle
	mu      sync.Mutex
	cancel  context.CancelFunc
	loopWG  sync.WaitGroup
	sweepWG sync.WaitGroup

	notifyWG sync.WaitGroup

	cbMu            sync.RWMutex
	onInteraction   func(types.Interaction)
	onSweepComplete func(SweepReport)

	lastMu sync.RWMutex
	last   *SweepReport
}

// SchedulerOption configures optional Scheduler dependencies.
type SchedulerOption func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for windows, lookback and reports.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRandomFactory replaces the seeded per-pair random sources.
func WithRandomFactory(f RandomFactory) SchedulerOption {
	return func(s *Scheduler) {
		if f != nil {
			s.random = f
		}
	}
}

// WithNotifier sends a digest after every sweep that committed interactions.
func WithNotifier(n notify.Notifier) SchedulerOption {
	return func(s *Scheduler) {
		s.notifier = n
	}
}

// NewScheduler validates cfg and wires the sweep components.
func NewScheduler(store storage.Store, generator llm.ContentGenerator, cfg Config, opts ...SchedulerOption) (*Scheduler, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("engine: content generator is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid config: %w", err)
	}

	s := &Scheduler{
		store:     store,
		cfg:       cfg,
		logger:    zap.NewNop(),
		now:       time.Now,
		generator: generator,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.random == nil {
		seed := cfg.RandomSeed
		if seed == 0 {
			seed = ClockSeed()
		}
		s.random = SeededRandom(seed)
	}

	s.policy, _ = NewDecisionPolicy(cfg.ReplyThreshold, cfg.LikeThreshold)
	s.ops = opRunner{timeout: cfg.OperationTimeout, logger: s.logger}
	s.limiter = NewRateLimiter(store, s.now)
	s.dedup = NewDeduplicationGuard(store)
	s.executor = NewInteractionExecutor(store, s.limiter, generator, cfg.OperationTimeout, s.logger)
	s.evolution = NewPersonalityEvolution(store, cfg.EvolutionInterval, cfg.OperationTimeout, s.logger)
	return s, nil
}

// SetOnInteraction sets a callback fired for every committed interaction.
func (s *Scheduler) SetOnInteraction(callback func(types.Interaction)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onInteraction = callback
}

// SetOnSweepComplete sets a callback fired after every sweep, including
// sweeps that returned early.
func (s *Scheduler) SetOnSweepComplete(callback func(SweepReport)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onSweepComplete = callback
}

// Evolution exposes the personality tracker for external feedback.
func (s *Scheduler) Evolution() *PersonalityEvolution {
	return s.evolution
}

// Limiter exposes the rate limiter for stats.
func (s *Scheduler) Limiter() *RateLimiter {
	return s.limiter
}

// State returns the current sweep state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// SkippedTicks returns the number of ticks dropped since the last sweep.
func (s *Scheduler) SkippedTicks() int64 {
	return s.skippedTicks.Load()
}

// Running reports whether the periodic loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// LastReport returns the most recent sweep report, or nil.
func (s *Scheduler) LastReport() *SweepReport {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

// RunOnce performs a sweep now. It returns ErrSweepInProgress while another
// sweep is running.
func (s *Scheduler) RunOnce(ctx context.Context) (SweepReport, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateSweeping)) {
		return SweepReport{}, ErrSweepInProgress
	}
	defer s.state.Store(int32(StateIdle))
	return s.sweep(ctx)
}

// Start launches the periodic loop. The loop stops when ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopWG.Add(1)
	go s.loop(loopCtx)

	s.logger.Info("engine: heartbeat started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("sweep_timeout", s.cfg.SweepTimeout),
		zap.Int("concurrency", s.cfg.Concurrency))
	return nil
}

// Stop cancels the loop and waits for the in-flight sweep and pending
// notifications, or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return ErrNotStarted
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.loopWG.Wait()
		s.sweepWG.Wait()
		s.notifyWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("engine: heartbeat stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine: stop: %w", ctx.Err())
	}
}

// WaitNotifications blocks until pending digests were delivered. Callers
// using RunOnce without Start use it before exiting.
func (s *Scheduler) WaitNotifications() {
	s.notifyWG.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.loopWG.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if s.cfg.RunOnStart {
		s.tick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick starts a sweep in the background unless one is already running, in
// which case the tick is counted and dropped.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateSweeping)) {
		n := s.skippedTicks.Add(1)
		s.logger.Warn("engine: sweep still running, tick skipped", zap.Int64("skipped_ticks", n))
		return
	}
	s.sweepWG.Add(1)
	go func() {
		defer s.sweepWG.Done()
		defer s.state.Store(int32(StateIdle))
		if _, err := s.sweep(ctx); err != nil {
			s.logger.Error("engine: sweep failed", zap.Error(err))
		}
	}()
}

// sweep is called with the state already set to sweeping.
func (s *Scheduler) sweep(ctx context.Context) (SweepReport, error) {
	start := s.now()
	report := SweepReport{StartedAt: start, SkippedTicks: s.skippedTicks.Swap(0)}
	deadline := start.Add(s.cfg.SweepTimeout)

	var agents []types.Agent
	err := s.ops.do(ctx, "list_active_agents", func(ctx context.Context) error {
		var err error
		agents, err = s.store.ListActiveAgents(ctx)
		return err
	})
	if err != nil {
		return s.finish(report, fmt.Errorf("engine: list agents: %w", err))
	}

	var posts []types.Post
	err = s.ops.do(ctx, "list_recent_posts", func(ctx context.Context) error {
		var err error
		posts, err = s.store.ListRecentPosts(ctx, start.Add(-s.cfg.PostLookback), s.cfg.PostLimit)
		return err
	})
	if err != nil {
		return s.finish(report, fmt.Errorf("engine: list posts: %w", err))
	}
	posts = s.candidatePosts(posts)
	report.PostsConsidered = len(posts)

	s.logger.Info("engine: sweep started",
		zap.Int("agents", len(agents)),
		zap.Int("posts", len(posts)))

	var mu sync.Mutex
	merge := func(r agentResult) {
		mu.Lock()
		defer mu.Unlock()
		r.addTo(&report)
	}

	if s.cfg.Concurrency <= 1 {
		for i := range agents {
			if s.budgetExhausted(ctx, deadline) {
				report.TimedOut = true
				break
			}
			merge(s.processAgent(ctx, &agents[i], posts))
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.cfg.Concurrency)
		for i := range agents {
			if s.budgetExhausted(ctx, deadline) {
				mu.Lock()
				report.TimedOut = true
				mu.Unlock()
				break
			}
			agent := &agents[i]
			g.Go(func() error {
				// Go may have waited for a free slot.
				if s.budgetExhausted(ctx, deadline) {
					mu.Lock()
					report.TimedOut = true
					mu.Unlock()
					return nil
				}
				merge(s.processAgent(ctx, agent, posts))
				return nil
			})
		}
		_ = g.Wait()
	}

	rep, _ := s.finish(report, nil)
	if rep.Changed() && s.notifier != nil {
		s.sendDigest(ctx, rep, agents)
	}
	return rep, nil
}

// budgetExhausted is checked before an agent starts; an agent that already
// started always finishes.
func (s *Scheduler) budgetExhausted(ctx context.Context, deadline time.Time) bool {
	return ctx.Err() != nil || !s.now().Before(deadline)
}

func (s *Scheduler) finish(report SweepReport, err error) (SweepReport, error) {
	report.FinishedAt = s.now()
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
	}

	s.lastMu.Lock()
	r := report
	s.last = &r
	s.lastMu.Unlock()

	fields := []zap.Field{
		zap.Int("agents_processed", report.AgentsProcessed),
		zap.Int("agents_skipped", report.AgentsSkipped),
		zap.Int("replies", report.RepliesSent),
		zap.Int("likes", report.LikesGiven),
		zap.Int("observed", report.Observed),
		zap.Int("rate_limited", report.RateLimited),
		zap.Int("errors", len(report.Errors)),
		zap.Bool("timed_out", report.TimedOut),
		zap.Duration("duration", report.Duration()),
	}
	if err != nil {
		s.logger.Error("engine: sweep aborted", append(fields, zap.Error(err))...)
	} else {
		s.logger.Info("engine: sweep complete", fields...)
	}

	s.cbMu.RLock()
	cb := s.onSweepComplete
	s.cbMu.RUnlock()
	if cb != nil {
		cb(report)
	}
	return report, err
}

// candidatePosts drops agent-authored posts unless configured otherwise and
// orders the rest newest first.
func (s *Scheduler) candidatePosts(posts []types.Post) []types.Post {
	out := make([]types.Post, 0, len(posts))
	for _, p := range posts {
		if p.IsAgentAuthored() && !s.cfg.IncludeAgentPosts {
			continue
		}
		out = append(out, p)
	}
	sortNewestFirst(out)
	return out
}

func (s *Scheduler) emitInteraction(in types.Interaction) {
	s.cbMu.RLock()
	cb := s.onInteraction
	s.cbMu.RUnlock()
	if cb != nil {
		cb(in)
	}
}

// sendDigest delivers the digest in the background. Stop and
// WaitNotifications wait for it.
func (s *Scheduler) sendDigest(ctx context.Context, report SweepReport, agents []types.Agent) {
	authors := make(map[string]string, len(agents))
	for _, a := range agents {
		authors[a.ID] = a.Name
	}

	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*s.cfg.OperationTimeout)
		defer cancel()

		posts, err := s.store.ListRecentPosts(ctx, time.Time{}, notify.DigestRecentPosts)
		if err != nil {
			s.logger.Warn("engine: digest skipped, posts unavailable", zap.Error(err))
			return
		}
		digest := notify.BuildDigest(report.FinishedAt, report.AgentsProcessed, report.RepliesSent, report.LikesGiven, posts, authors)
		if err := s.notifier.Notify(ctx, digest); err != nil {
			s.logger.Warn("engine: digest delivery failed", zap.Error(err))
		}
	}()
}
