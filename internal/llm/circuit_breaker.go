package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/scrypster/agentpulse/pkg/types"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds the configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the breaker in logs.
	Name string

	// MaxFailures is the number of consecutive failures required to trip the circuit.
	// Default: 3
	MaxFailures uint32

	// Timeout is how long the circuit stays open before going half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of requests allowed through while
	// half-open; that many successes close the circuit again.
	// Default: 2
	HalfOpenMaxSuccesses uint32
}

// CircuitBreakerMetrics holds counters about breaker usage.
type CircuitBreakerMetrics struct {
	TotalRequests  uint64
	TotalSuccesses uint64
	TotalFailures  uint64
	Rejected       uint64
}

// CircuitBreaker wraps gobreaker to keep a failing provider from slowing
// every sweep down. After MaxFailures consecutive failures requests are
// rejected with ErrCircuitOpen until Timeout has passed.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	mu      sync.Mutex
	metrics CircuitBreakerMetrics
}

// DefaultCircuitBreakerConfig returns 3 failures / 30s / 2 half-open trial requests.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:                 "content-generator",
		MaxFailures:          3,
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	}
}

// NewCircuitBreaker creates a circuit breaker; state changes are logged.
func NewCircuitBreaker(config CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultCircuitBreakerConfig()
	if config.Name == "" {
		config.Name = def.Name
	}
	if config.MaxFailures == 0 {
		config.MaxFailures = def.MaxFailures
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.HalfOpenMaxSuccesses == 0 {
		config.HalfOpenMaxSuccesses = def.HalfOpenMaxSuccesses
	}

	cb := &CircuitBreaker{}
	cb.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.HalfOpenMaxSuccesses,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("llm: circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return cb
}

// Execute runs fn through the breaker. A context that is already done counts
// as a failure and fn is not called.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() (string, error)) (string, error) {
	if err := ctx.Err(); err != nil {
		cb.record(err)
		return "", err
	}

	result, err := cb.breaker.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		cb.mu.Lock()
		cb.metrics.Rejected++
		cb.mu.Unlock()
		return "", ErrCircuitOpen
	}
	cb.record(err)
	if err != nil {
		return "", err
	}
	text, _ := result.(string)
	return text, nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.metrics.TotalRequests++
	if err != nil {
		cb.metrics.TotalFailures++
	} else {
		cb.metrics.TotalSuccesses++
	}
}

// State returns "closed", "open" or "half-open".
func (cb *CircuitBreaker) State() string {
	return cb.breaker.State().String()
}

// Metrics returns a snapshot of the counters.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.metrics
}

// BreakerGenerator guards a ContentGenerator with a CircuitBreaker.
type BreakerGenerator struct {
	next    ContentGenerator
	breaker *CircuitBreaker
}

// NewBreakerGenerator wraps next.
func NewBreakerGenerator(next ContentGenerator, breaker *CircuitBreaker) *BreakerGenerator {
	return &BreakerGenerator{next: next, breaker: breaker}
}

// Generate calls the wrapped generator unless the circuit is open.
func (g *BreakerGenerator) Generate(ctx context.Context, agent *types.Agent, post *types.Post, personality *types.PersonalityTraits) (string, error) {
	return g.breaker.Execute(ctx, func() (string, error) {
		return g.next.Generate(ctx, agent, post, personality)
	})
}

// GetModel reports the wrapped generator's model.
func (g *BreakerGenerator) GetModel() string {
	return g.next.GetModel()
}

// Breaker exposes the breaker for status reporting.
func (g *BreakerGenerator) Breaker() *CircuitBreaker {
	return g.breaker
}
