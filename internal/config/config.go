// Package config provides configuration management for agentpulse.
// It loads settings from environment variables with the PULSE_ prefix,
// optionally overlaid by a YAML file, and provides sensible defaults for all
// configuration options.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/agentpulse/pkg/types"
)

// Config holds all configuration settings for agentpulse.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	LLM       LLMConfig       `yaml:"llm"`
	Notify    NotifyConfig    `yaml:"notify"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
	Generator GeneratorConfig `yaml:"generator"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // Server port (default: 6464)
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)

	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"` // API requests per second (default: 20)
	RateLimitBurst     int     `yaml:"rate_limit_burst"`      // API burst size (default: 40)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string `yaml:"engine"`       // sqlite, postgres or memory (default: sqlite)
	DataPath      string `yaml:"data_path"`    // Path to data directory (default: ./data)
	PostgresDSN   string `yaml:"postgres_dsn"` // PostgreSQL connection string
}

// HeartbeatConfig controls the periodic sweep.
type HeartbeatConfig struct {
	Interval          time.Duration `yaml:"interval"`            // Sweep cadence (default: 5m)
	SweepTimeout      time.Duration `yaml:"sweep_timeout"`       // Budget per sweep (default: 2m)
	OperationTimeout  time.Duration `yaml:"operation_timeout"`   // Per store/generator call (default: 10s)
	PostLookback      time.Duration `yaml:"post_lookback"`       // How far back posts are considered (default: 5m)
	PostLimit         int           `yaml:"post_limit"`          // Posts loaded per sweep (default: 20)
	IncludeAgentPosts bool          `yaml:"include_agent_posts"` // Let agents react to other agents (default: false)
	Concurrency       int           `yaml:"concurrency"`         // Agents processed in parallel (default: 1)
	RunOnStart        bool          `yaml:"run_on_start"`        // Sweep immediately when started (default: true)
	RandomSeed        int64         `yaml:"random_seed"`         // 0 picks a seed at startup
	ReplyThreshold    float64       `yaml:"reply_threshold"`     // Draw below this replies (default: 0.4)
	LikeThreshold     float64       `yaml:"like_threshold"`      // Draw below this likes (default: 0.7)
	EvolutionInterval int           `yaml:"evolution_interval"`  // Interactions per evolution stage (default: 20)
}

// LLMConfig contains content generator configuration.
type LLMConfig struct {
	LLMProvider   string        `yaml:"provider"`       // template or openai (default: template)
	OpenAIAPIKey  string        `yaml:"openai_api_key"` // OpenAI API key
	OpenAIModel   string        `yaml:"openai_model"`   // OpenAI model name (default: gpt-4o-mini)
	OpenAIBaseURL string        `yaml:"openai_base_url"`
	MaxTokens     int           `yaml:"max_tokens"` // Reply token budget (default: 100)
	Timeout       time.Duration `yaml:"timeout"`    // Request timeout (default: 30s)
}

// NotifyConfig selects where sweep events and digests go.
type NotifyConfig struct {
	EventFiles         bool     `yaml:"event_files"`         // Write event files under DataPath/events (default: true)
	NATSURL            string   `yaml:"nats_url"`            // Publish events to NATS when set
	NATSSubjectPrefix  string   `yaml:"nats_subject_prefix"` // Subject prefix (default: feed)
	WhatsAppToken      string   `yaml:"whatsapp_token"`
	WhatsAppPhoneID    string   `yaml:"whatsapp_phone_id"`
	WhatsAppRecipients []string `yaml:"whatsapp_recipients"`
	WhatsAppAPIURL     string   `yaml:"whatsapp_api_url"` // (default: https://graph.facebook.com/v18.0)

	// Filters for event files forwarded to websocket clients by serve.
	WatchEventTypes []string      `yaml:"watch_event_types"` // Empty forwards all types
	WatchKinds      []string      `yaml:"watch_kinds"`       // reply and/or like; empty forwards both
	WatchMaxAge     time.Duration `yaml:"watch_max_age"`     // Drop older events (default: 1h, 0 keeps all)
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string `yaml:"mode"`      // development or production (default: development)
	APIToken     string `yaml:"api_token"` // Bearer token required in production
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format"` // json or console (default: json)
}

// GeneratorConfig controls the agent generator.
type GeneratorConfig struct {
	MaxAgents     int    `yaml:"max_agents"`     // Generation stops at this many agents (default: 100)
	MinRateLimit  int    `yaml:"min_rate_limit"` // (default: 5)
	MaxRateLimit  int    `yaml:"max_rate_limit"` // (default: 20)
	TemplatesFile string `yaml:"templates_file"` // Optional YAML catalog replacing the built-in one
}

// LoadConfig loads configuration from environment variables with sensible defaults.
// All environment variables use the PULSE_ prefix.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML file over the environment-derived configuration.
// Values present in the file win over environment variables and defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := buildBaseConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load picks LoadFile when path is set and LoadConfig otherwise.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadConfig()
	}
	return LoadFile(path)
}

// Validate rejects settings the heartbeat cannot run with.
func (c *Config) Validate() error {
	var errs []error
	h := c.Heartbeat
	if h.Interval <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat interval must be positive, got %s", h.Interval))
	}
	if h.SweepTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sweep timeout must be positive, got %s", h.SweepTimeout))
	}
	if h.OperationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("operation timeout must be positive, got %s", h.OperationTimeout))
	}
	if h.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", h.Concurrency))
	}
	if h.ReplyThreshold < 0 || h.LikeThreshold > 1 || h.ReplyThreshold > h.LikeThreshold {
		errs = append(errs, fmt.Errorf("thresholds must satisfy 0 <= reply (%v) <= like (%v) <= 1",
			h.ReplyThreshold, h.LikeThreshold))
	}
	switch c.Storage.StorageEngine {
	case "sqlite", "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres storage requires PULSE_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage engine %q", c.Storage.StorageEngine))
	}
	if c.Security.SecurityMode == "production" && c.Security.APIToken == "" {
		errs = append(errs, errors.New("production mode requires PULSE_API_TOKEN"))
	}
	if c.Generator.MinRateLimit < 1 || c.Generator.MinRateLimit > c.Generator.MaxRateLimit {
		errs = append(errs, fmt.Errorf("generator rate limits must satisfy 1 <= min (%d) <= max (%d)",
			c.Generator.MinRateLimit, c.Generator.MaxRateLimit))
	}
	for _, k := range c.Notify.WatchKinds {
		if kind := types.ActionKind(k); !kind.IsRecorded() {
			errs = append(errs, fmt.Errorf("watch kind must be reply or like, got %q", k))
		}
	}
	if c.Notify.WatchMaxAge < 0 {
		errs = append(errs, fmt.Errorf("watch max age must not be negative, got %s", c.Notify.WatchMaxAge))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether API authentication is enforced.
func (c *Config) IsProduction() bool {
	return c.Security.SecurityMode == "production"
}

func buildBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               getEnvInt("PULSE_PORT", 6464),
			Host:               getEnv("PULSE_HOST", "127.0.0.1"),
			RateLimitPerSecond: getEnvFloat("PULSE_API_RATE_LIMIT", 20),
			RateLimitBurst:     getEnvInt("PULSE_API_RATE_BURST", 40),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("PULSE_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("PULSE_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("PULSE_POSTGRES_DSN", ""),
		},
		Heartbeat: HeartbeatConfig{
			Interval:          getEnvDuration("PULSE_HEARTBEAT_INTERVAL", 5*time.Minute),
			SweepTimeout:      getEnvDuration("PULSE_SWEEP_TIMEOUT", 2*time.Minute),
			OperationTimeout:  getEnvDuration("PULSE_OPERATION_TIMEOUT", 10*time.Second),
			PostLookback:      getEnvDuration("PULSE_POST_LOOKBACK", 5*time.Minute),
			PostLimit:         getEnvInt("PULSE_POST_LIMIT", 20),
			IncludeAgentPosts: getEnvBool("PULSE_INCLUDE_AGENT_POSTS", false),
			Concurrency:       getEnvInt("PULSE_SWEEP_CONCURRENCY", 1),
			RunOnStart:        getEnvBool("PULSE_RUN_ON_START", true),
			RandomSeed:        int64(getEnvInt("PULSE_RANDOM_SEED", 0)),
			ReplyThreshold:    getEnvFloat("PULSE_REPLY_THRESHOLD", 0.4),
			LikeThreshold:     getEnvFloat("PULSE_LIKE_THRESHOLD", 0.7),
			EvolutionInterval: getEnvInt("PULSE_EVOLUTION_INTERVAL", 20),
		},
		LLM: LLMConfig{
			LLMProvider:   getEnv("PULSE_LLM_PROVIDER", "template"),
			OpenAIAPIKey:  getEnv("PULSE_OPENAI_API_KEY", ""),
			OpenAIModel:   getEnv("PULSE_OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL: getEnv("PULSE_OPENAI_BASE_URL", ""),
			MaxTokens:     getEnvInt("PULSE_LLM_MAX_TOKENS", 100),
			Timeout:       getEnvDuration("PULSE_LLM_TIMEOUT", 30*time.Second),
		},
		Notify: NotifyConfig{
			EventFiles:         getEnvBool("PULSE_EVENT_FILES", true),
			NATSURL:            getEnv("PULSE_NATS_URL", ""),
			NATSSubjectPrefix:  getEnv("PULSE_NATS_SUBJECT_PREFIX", "feed"),
			WhatsAppToken:      getEnv("PULSE_WHATSAPP_TOKEN", ""),
			WhatsAppPhoneID:    getEnv("PULSE_WHATSAPP_PHONE_ID", ""),
			WhatsAppRecipients: getEnvList("PULSE_WHATSAPP_RECIPIENTS"),
			WhatsAppAPIURL:     getEnv("PULSE_WHATSAPP_API_URL", "https://graph.facebook.com/v18.0"),
			WatchEventTypes:    getEnvList("PULSE_WATCH_EVENT_TYPES"),
			WatchKinds:         getEnvList("PULSE_WATCH_KINDS"),
			WatchMaxAge:        getEnvDuration("PULSE_WATCH_MAX_AGE", time.Hour),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("PULSE_SECURITY_MODE", "development"),
			APIToken:     getEnv("PULSE_API_TOKEN", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("PULSE_LOG_LEVEL", "info"),
			Format: getEnv("PULSE_LOG_FORMAT", "json"),
		},
		Generator: GeneratorConfig{
			MaxAgents:     getEnvInt("PULSE_MAX_AGENTS", 100),
			MinRateLimit:  getEnvInt("PULSE_MIN_RATE_LIMIT", 5),
			MaxRateLimit:  getEnvInt("PULSE_MAX_RATE_LIMIT", 20),
			TemplatesFile: getEnv("PULSE_TEMPLATES_FILE", ""),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the variable cannot be parsed as an integer, the default is returned.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s", "5m").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
