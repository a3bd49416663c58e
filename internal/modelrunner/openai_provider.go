package modelrunner

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIProvider adapts the OpenAI chat completions and embeddings APIs to
// the Provider interface, adapted from the call shape in the teacher's
// internal/llm/openai_client.go (trimmed: no tool calls, no streaming).
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider constructs a provider for the given API key/base URL.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...)}
}

func (p *OpenAIProvider) Generate(ctx context.Context, model string, prompt string) (Result, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("openai generate: empty response")
	}
	return Result{Text: resp.Choices[0].Message.Content}, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, model string, text string) (Result, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: model,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return Result{}, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return Result{}, fmt.Errorf("openai embed: empty response")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return Result{Embedding: vec}, nil
}

// Tokenizer returns nil: OpenAI has no accurate count_tokens endpoint in
// this SDK, so callers fall back to the heuristic counter.
func (p *OpenAIProvider) Tokenizer(string) TokenCounter { return nil }
