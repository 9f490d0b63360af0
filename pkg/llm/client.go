package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aksel/sage/internal/observability"
	"github.com/aksel/sage/internal/tracing"
	"github.com/aksel/sage/pkg/prompts"
)

// Generator is the generation capability consumed by the orchestration
// packages: free-form text in, text out, plus a structured variant.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStructured(ctx context.Context, prompt string, schema Schema) (map[string]interface{}, error)
}

// Config holds settings for a Client.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
	MaxRetries  int
}

// Client implements Generator over a Provider, adding retry with
// exponential backoff, metrics, and tracing.
type Client struct {
	provider Provider
	library  *prompts.Library
	cfg      Config
	logger   zerolog.Logger
}

// NewClient creates a Client for the configured provider.
func NewClient(cfg Config, library *prompts.Library) (*Client, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if library == nil {
		library = prompts.NewLibrary()
	}

	provider, err := NewProviderFactory().NewProvider(cfg.Provider, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	return &Client{
		provider: provider,
		library:  library,
		cfg:      cfg,
		logger:   log.With().Str("component", "llm").Str("provider", provider.Name()).Logger(),
	}, nil
}

// Generate produces free-form text for the prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"sage.llm",
		"llm.generate",
		attribute.String("provider", c.provider.Name()),
		attribute.String("model", c.cfg.Model),
	)
	defer span.End()

	start := time.Now()
	response, err := c.callWithRetry(ctx, Request{
		Model:       c.cfg.Model,
		Prompt:      prompt,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	observability.RecordGeneration(c.provider.Name(), "text", time.Since(start), err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if response.Usage != nil {
		c.logger.Debug().
			Int("input_tokens", response.Usage.InputTokens).
			Int("output_tokens", response.Usage.OutputTokens).
			Msg("Generation complete")
	}

	return response.Content, nil
}

// callWithRetry calls the provider with exponential backoff on
// transient errors: 1s, 2s, 4s.
func (c *Client) callWithRetry(ctx context.Context, request Request) (*Response, error) {
	maxRetries := c.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		response, err := c.provider.Generate(ctx, request)
		if err == nil {
			return response, nil
		}

		lastErr = err

		// Don't retry on permanent errors
		if !IsRetryableError(err) {
			return nil, err
		}

		// Last attempt - don't wait
		if attempt == maxRetries-1 {
			break
		}

		delay := time.Duration(1<<attempt) * time.Second
		c.logger.Info().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying after error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}
