package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// AnthropicProvider implements Provider over the Anthropic Messages
// API. The client reads ANTHROPIC_API_KEY from the environment.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates a provider pinned to a default model.
func NewAnthropicProvider(model string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(),
		model:  model,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// GenerateCompletion calls the Messages API and returns the first text
// block.
func (p *AnthropicProvider) GenerateCompletion(ctx context.Context, prompt string, opts Options) (string, error) {
	params := p.params(prompt, opts)

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", NewError(KindAPI, "no text block in response", nil)
}

// GenerateStructured asks the model for JSON conforming to schema and
// returns the raw bytes.
func (p *AnthropicProvider) GenerateStructured(ctx context.Context, prompt string, schema string, opts Options) (json.RawMessage, error) {
	if opts.System == "" {
		opts.System = "Respond with a single JSON object and nothing else. It must conform to this schema: " + schema
	}
	params := p.params(prompt, opts)

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			text := strings.TrimSpace(block.Text)
			// Models sometimes wrap JSON in a code fence.
			text = strings.TrimPrefix(text, "```json")
			text = strings.TrimPrefix(text, "```")
			text = strings.TrimSuffix(text, "```")
			return json.RawMessage(strings.TrimSpace(text)), nil
		}
	}
	return nil, NewError(KindAPI, "no text block in response", nil)
}

func (p *AnthropicProvider) params(prompt string, opts Options) anthropic.MessageNewParams {
	model := opts.Model
	if model == "" {
		model = p.model
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}
	return params
}

// classify maps SDK and transport failures onto the error taxonomy.
func classify(err error) *Error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 429:
			return NewError(KindRateLimited, "rate limited by provider", err)
		case apierr.StatusCode == 401 || apierr.StatusCode == 403:
			return NewError(KindConfiguration, "provider rejected credentials", err)
		case apierr.StatusCode >= 500:
			return NewError(KindNetwork, "provider unavailable", err)
		default:
			return NewError(KindAPI, "provider request failed", err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, "provider call timed out", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewError(KindTimeout, "provider call timed out", err)
		}
		return NewError(KindNetwork, "network failure talking to provider", err)
	}

	if strings.Contains(err.Error(), "api key") || strings.Contains(err.Error(), "API key") {
		return NewError(KindConfiguration, "missing or invalid API key", err)
	}

	return NewError(KindAPI, "provider call failed", err)
}
