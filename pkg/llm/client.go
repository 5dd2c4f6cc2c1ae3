// Package llm wraps the Anthropic Messages API behind a single-shot
// analysis call. The engine treats analysis as best effort: callers keep
// the incident moving when Generate fails, and the deterministic planner
// never consumes model output.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Defaults for the analysis call.
const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 1024
	DefaultTimeout   = 60 * time.Second
)

// Analyst produces an incident narrative. Implemented by Client and by
// test fakes.
type Analyst interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Config for the Anthropic client.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64
	Timeout   time.Duration
}

// Client is the production Analyst.
type Client struct {
	model     anthropic.Model
	maxTokens int64
	timeout   time.Duration

	// create is the API call, swappable in tests.
	create func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// New creates a client. The API key must be set; model and limits default.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	api := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	c := &Client{
		model:     anthropic.Model(cfg.Model),
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}
	c.create = func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
		return api.Messages.New(ctx, params)
	}
	return c, nil
}

// Generate performs one bounded Messages call and returns the concatenated
// text blocks.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := c.create(callCtx, params)
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("llm generate: empty response")
	}
	return text, nil
}

var _ Analyst = (*Client)(nil)
