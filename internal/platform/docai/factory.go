package docai

import (
	"fmt"
	"strings"
)

// Config holds extraction provider configuration.
type Config struct {
	// Provider name: "openai", "anthropic", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout for API requests, in seconds
	Timeout int

	// Temperature for chat completions
	Temperature float32
}

// NewExtractor creates an extraction provider based on configuration.
// Returns (nil, nil) when no provider is configured: document extraction is
// simply disabled and uploads land in the review queue.
func NewExtractor(config Config) (Extractor, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIExtractor(config)

	case "anthropic", "claude":
		return NewAnthropicExtractor(config)

	case "", "none":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown extraction provider: %s (supported: openai, anthropic)", config.Provider)
	}
}
