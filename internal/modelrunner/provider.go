package modelrunner

import "context"

// Result is the outcome of a single inference call.
type Result struct {
	Text      string
	Embedding []float32
}

// Provider is the uniform surface the model runner calls regardless of
// backing service. Unlike the teacher's tool-calling Provider interface,
// this one is trimmed to what the conversation orchestrator and signal
// extractors actually need: single-turn generation and embedding.
type Provider interface {
	// Generate produces a text completion for the given prompt under model.
	Generate(ctx context.Context, model string, prompt string) (Result, error)
	// Embed produces an embedding vector for text under model.
	Embed(ctx context.Context, model string, text string) (Result, error)
	// Tokenizer returns an accurate counter when the provider can offer one
	// (e.g. Anthropic's count_tokens endpoint), or nil to fall back to the
	// heuristic counter.
	Tokenizer(model string) TokenCounter
}
