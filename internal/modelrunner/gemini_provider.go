package modelrunner

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider adapts Google's genai SDK to the Provider interface. The
// teacher proxies Gemini over raw HTTP (internal/llm/gemini.go); this uses
// the genai client directly since there is no outer HTTP transport here.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider constructs a provider for the given API key.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, model string, prompt string) (Result, error) {
	resp, err := p.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return Result{}, fmt.Errorf("gemini generate: %w", err)
	}
	return Result{Text: resp.Text()}, nil
}

func (p *GeminiProvider) Embed(ctx context.Context, model string, text string) (Result, error) {
	resp, err := p.client.Models.EmbedContent(ctx, model, genai.Text(text), nil)
	if err != nil {
		return Result{}, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return Result{}, fmt.Errorf("gemini embed: empty response")
	}
	return Result{Embedding: resp.Embeddings[0].Values}, nil
}

// Tokenizer returns nil: Gemini's token counting needs a separate call not
// wired here, so callers fall back to the heuristic counter.
func (p *GeminiProvider) Tokenizer(string) TokenCounter { return nil }
