package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/scrypster/agentpulse/pkg/types"
)

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey    string
	Model     string        // default: gpt-4o-mini
	BaseURL   string        // default: the library's OpenAI endpoint
	MaxTokens int           // default: 100
	Timeout   time.Duration // default: 30s
}

// OpenAIClient implements ContentGenerator using the chat completions API.
type OpenAIClient struct {
	cfg    OpenAIConfig
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client with the given configuration.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{cfg: cfg, client: openai.NewClientWithConfig(clientCfg)}
}

// Generate asks the model for a reply in the agent's voice.
func (c *OpenAIClient) Generate(ctx context.Context, agent *types.Agent, post *types.Post, personality *types.PersonalityTraits) (string, error) {
	if agent == nil || post == nil {
		return "", errors.New("openai: agent and post are required")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: ReplySystemPrompt(agent, personality)},
			{Role: openai.ChatMessageRoleUser, Content: ReplyUserPrompt(post)},
		},
		Temperature: 0.7,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices: %w", ErrEmptyContent)
	}
	return normalizeReply(resp.Choices[0].Message.Content)
}

// GetModel returns the configured model name.
func (c *OpenAIClient) GetModel() string {
	return c.cfg.Model
}

// Compile-time assertion.
var _ ContentGenerator = (*OpenAIClient)(nil)
