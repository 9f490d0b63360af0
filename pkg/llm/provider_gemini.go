package llm

import (
	"context"
	"fmt"
)

// GeminiProvider implements Provider for Google Gemini.
type GeminiProvider struct {
	apiKey string
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{
		apiKey: apiKey,
	}
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Generate makes an API call to Google Gemini.
// TODO: implement Gemini API integration
func (p *GeminiProvider) Generate(ctx context.Context, request Request) (*Response, error) {
	return nil, fmt.Errorf("gemini provider not yet implemented - use anthropic or openai")
}
