package llm

import (
	"context"
	"fmt"
)

// Provider is the boundary to a hosted text-generation API.
type Provider interface {
	// Generate makes a single blocking API call.
	Generate(ctx context.Context, request Request) (*Response, error)

	// Name returns the provider name ("openai", "anthropic", "gemini").
	Name() string
}

// ProviderFactory creates providers by name.
type ProviderFactory struct{}

// NewProviderFactory creates a provider factory.
func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{}
}

// NewProvider creates a provider for the given name.
func (f *ProviderFactory) NewProvider(providerName string, apiKey string) (Provider, error) {
	switch providerName {
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	case "gemini":
		return NewGeminiProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerName)
	}
}
