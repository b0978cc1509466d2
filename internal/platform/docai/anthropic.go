package docai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel   = "claude-3-5-haiku-20241022"
	anthropicMaxRetries     = 3
	anthropicInitialBackoff = 1 * time.Second
)

// AnthropicExtractor implements Extractor using the Anthropic Messages API.
type AnthropicExtractor struct {
	client         anthropic.Client
	model          anthropic.Model
	maxRetries     int
	initialBackoff time.Duration
}

// NewAnthropicExtractor creates a new Anthropic extractor.
func NewAnthropicExtractor(config Config) (*AnthropicExtractor, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	model := config.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicExtractor{
		client:         anthropic.NewClient(opts...),
		model:          anthropic.Model(model),
		maxRetries:     anthropicMaxRetries,
		initialBackoff: anthropicInitialBackoff,
	}, nil
}

// Name returns the provider name.
func (p *AnthropicExtractor) Name() string {
	return "anthropic"
}

// Available checks if the provider is properly configured.
func (p *AnthropicExtractor) Available(ctx context.Context) bool {
	// Simple check: make a minimal API call
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 10,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("Hi")),
		},
	})
	return err == nil
}

// ExtractFields runs one extraction call with retry on transient failures.
func (p *AnthropicExtractor) ExtractFields(ctx context.Context, req Request) (*Result, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, 2)
	if len(req.ImageData) > 0 {
		mimeType := req.ImageMIME
		if mimeType == "" {
			mimeType = "image/png"
		}
		encoded := base64.StdEncoding.EncodeToString(req.ImageData)
		blocks = append(blocks, anthropic.NewImageBlockBase64(mimeType, encoded))
	}
	blocks = append(blocks, anthropic.NewTextBlock(buildSystemPrompt()+"\n\n"+buildUserPrompt(req.Text)))

	content, err := p.callWithRetry(ctx, blocks)
	if err != nil {
		return nil, err
	}
	return decodeResult(content, p.Name(), string(p.model))
}

func (p *AnthropicExtractor) callWithRetry(ctx context.Context, blocks []anthropic.ContentBlockParamUnion) (string, error) {
	var lastErr error
	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	}

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := p.client.Messages.New(ctx, params)

		if err == nil {
			if len(message.Content) > 0 {
				content := message.Content[0]
				if content.Type == "text" {
					return content.Text, nil
				}
				return "", fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
			}
			return "", fmt.Errorf("unexpected response format: no content blocks")
		}

		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if !isRetryable(err) {
			return "", fmt.Errorf("non-retryable error: %w", err)
		}
	}

	return "", fmt.Errorf("failed after %d retries: %w", p.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		statusCode := apiErr.StatusCode
		if statusCode == 429 || statusCode >= 500 {
			return true
		}
		return false
	}

	return false
}
