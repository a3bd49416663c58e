package modelrunner

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider adapts the Anthropic Messages API to the Provider
// interface, including the Messages count_tokens endpoint as an accurate
// TokenCounter, the way the teacher's internal/llm/anthropic package does.
type AnthropicProvider struct {
	client anthropic.Client
	cache  *TokenCache
}

// NewAnthropicProvider constructs a provider for the given API key/base URL.
func NewAnthropicProvider(apiKey, baseURL string, cache *TokenCache) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...), cache: cache}
}

func (p *AnthropicProvider) Generate(ctx context.Context, model string, prompt string) (Result, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("anthropic generate: %w", err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return Result{Text: sb.String()}, nil
}

func (p *AnthropicProvider) Embed(context.Context, string, string) (Result, error) {
	return Result{}, fmt.Errorf("anthropic provider does not support embeddings")
}

func (p *AnthropicProvider) Tokenizer(model string) TokenCounter {
	return newCachedCounter(&anthropicTokenizer{client: p.client, model: model}, p.cache)
}

// anthropicTokenizer calls the Messages API's count_tokens endpoint for an
// accurate preflight count, as the teacher's MessagesTokenizer does.
type anthropicTokenizer struct {
	client anthropic.Client
	model  string
}

func (t *anthropicTokenizer) CountTokens(ctx context.Context, text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}
	resp, err := t.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model: anthropic.Model(t.model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("anthropic count_tokens: %w", err)
	}
	return int(resp.InputTokens), nil
}
