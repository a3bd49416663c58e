package modelrunner

import "context"

// TokenCounter returns an estimated or exact token count for text under a
// given model's tokenization scheme.
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// heuristicCounter is the chars/4 fallback used when a model has no
// accurate API-backed tokenizer configured.
type heuristicCounter struct{}

func (heuristicCounter) CountTokens(_ context.Context, text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return len([]rune(text))/4 + 1, nil
}

// cachedCounter wraps a TokenCounter with a TokenCache so repeated chunk
// text (common across overlapping windows) isn't re-counted.
type cachedCounter struct {
	inner TokenCounter
	cache *TokenCache
}

func newCachedCounter(inner TokenCounter, cache *TokenCache) TokenCounter {
	if cache == nil {
		return inner
	}
	return &cachedCounter{inner: inner, cache: cache}
}

func (c *cachedCounter) CountTokens(ctx context.Context, text string) (int, error) {
	if n, ok := c.cache.Get(text); ok {
		return n, nil
	}
	n, err := c.inner.CountTokens(ctx, text)
	if err != nil {
		return 0, err
	}
	c.cache.Set(text, n)
	return n, nil
}
