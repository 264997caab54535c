package generator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/agentpulse/internal/config"
	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/pkg/types"
)

// ErrMaxAgents is returned when the store already holds MaxAgents agents.
var ErrMaxAgents = errors.New("maximum agent count reached")

// Generator creates agents from random templates.
type Generator struct {
	store   storage.AgentStore
	catalog *Catalog
	cfg     config.GeneratorConfig
	logger  *zap.Logger
	now     func() time.Time

	mu   sync.Mutex
	rnd  *rand.Rand
	last time.Time // names stay unique when agents are created within one millisecond
}

// New returns a generator. A zero seed seeds from the clock.
func New(store storage.AgentStore, catalog *Catalog, cfg config.GeneratorConfig, seed uint64, logger *zap.Logger) (*Generator, error) {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if cfg.MinRateLimit < 1 || cfg.MaxRateLimit < cfg.MinRateLimit {
		return nil, fmt.Errorf("generator: rate limit range [%d, %d] is invalid", cfg.MinRateLimit, cfg.MaxRateLimit)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{
		store:   store,
		catalog: catalog,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		rnd:     rand.New(rand.NewPCG(seed, seed>>7|1)),
	}, nil
}

// Result describes a generated agent.
type Result struct {
	Agent    *types.Agent `json:"agent"`
	Template string       `json:"personality_type"`
}

// Generate picks a template, varies its traits and stores a new active
// agent with its personality at stage 0.
func (g *Generator) Generate(ctx context.Context) (*Result, error) {
	if g.cfg.MaxAgents > 0 {
		count, err := g.store.CountAgents(ctx)
		if err != nil {
			return nil, fmt.Errorf("generator: count agents: %w", err)
		}
		if count >= g.cfg.MaxAgents {
			return nil, fmt.Errorf("%w (%d)", ErrMaxAgents, g.cfg.MaxAgents)
		}
	}

	g.mu.Lock()
	tpl := g.catalog.Templates[g.rnd.IntN(len(g.catalog.Templates))]
	offset := g.rnd.Float64()*2 - 1
	rateLimit := g.cfg.MinRateLimit + g.rnd.IntN(g.cfg.MaxRateLimit-g.cfg.MinRateLimit+1)
	at := g.now().Truncate(time.Millisecond)
	if !at.After(g.last) {
		at = g.last.Add(time.Millisecond)
	}
	g.last = at
	g.mu.Unlock()

	personality := tpl.Personality(offset)
	agent := &types.Agent{
		Name:          AgentName(tpl.Name, at),
		Description:   Bio(tpl, personality),
		Skills:        append([]string(nil), tpl.Skills...),
		TriggerWords:  append([]string(nil), tpl.TriggerWords...),
		ResponseStyle: tpl.ResponseStyle,
		RateLimit:     rateLimit,
		Status:        types.AgentActive,
		Personality:   personality,
	}
	if err := g.store.CreateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("generator: create agent: %w", err)
	}

	g.logger.Info("generator: agent created",
		zap.String("agent_id", agent.ID),
		zap.String("name", agent.Name),
		zap.String("template", tpl.Name),
		zap.Int("rate_limit", agent.RateLimit),
		zap.Strings("skills", agent.Skills))
	return &Result{Agent: agent, Template: tpl.Name}, nil
}

// AgentName is the template name with whitespace runs replaced by
// underscores, suffixed with the creation time in unix milliseconds.
func AgentName(template string, at time.Time) string {
	return strings.Join(strings.Fields(template), "_") + "_" + strconv.FormatInt(at.UnixMilli(), 10)
}

// Bio describes an agent from its template and varied traits.
func Bio(t Template, p *types.PersonalityTraits) string {
	var register string
	switch {
	case p.Formality > 6:
		register = "Professional"
	case p.Formality > 3:
		register = "Casual"
	default:
		register = "Very informal"
	}

	var energy string
	switch {
	case p.Enthusiasm > 6:
		energy = "highly enthusiastic"
	case p.Enthusiasm > 3:
		energy = "moderately engaged"
	default:
		energy = "calm and reserved"
	}

	bio := fmt.Sprintf("%s %s communicator who is %s.", t.Description, register, energy)
	if len(t.Skills) > 0 {
		bio += " Passionate about " + strings.Join(t.Skills[:min(3, len(t.Skills))], ", ") + "."
	}
	return bio
}
