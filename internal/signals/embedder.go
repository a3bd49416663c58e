package signals

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"innerlog/internal/chunker"
	"innerlog/internal/config"
	"innerlog/internal/embedding"
)

// Embedder produces a fixed-dimension dense vector per chunk. Adapted from
// the teacher's rag/embedder.Embedder split: a real HTTP-backed embedder
// for production, a deterministic hash-based one as a fallback.
type Embedder interface {
	ChunkExtractor
	Dimension() int
}

// clientEmbedder wraps the shared embedding.EmbedText HTTP client.
type clientEmbedder struct {
	cfg config.EmbeddingConfig
	dim int
}

// NewClientEmbedder constructs an Embedder that calls the configured
// embedding endpoint, one chunk per request (as the teacher does, to avoid
// batch-inference instability on some embedding servers).
func NewClientEmbedder(cfg config.EmbeddingConfig) Embedder {
	return &clientEmbedder{cfg: cfg, dim: cfg.Dimension}
}

func (c *clientEmbedder) Name() string   { return "embedder:" + c.cfg.Model }
func (c *clientEmbedder) Dimension() int { return c.dim }

func (c *clientEmbedder) Extract(ctx context.Context, ch chunker.Chunk) (Signal, float64, error) {
	vecs, err := embedding.EmbedText(ctx, c.cfg, []string{ch.Text})
	if err != nil {
		return Signal{}, 0, fmt.Errorf("embed chunk: %w", err)
	}
	if len(vecs) == 0 {
		return Signal{}, 0, fmt.Errorf("embed chunk: empty response")
	}
	return Signal{Embedding: normalize(vecs[0])}, 1.0, nil
}

// deterministicEmbedder hashes byte 3-grams into a fixed-size vector,
// unit-normalized — adapted verbatim in spirit from the teacher's
// deterministicEmbedder, used as a dependency-free fallback when no
// embedding API key is configured.
type deterministicEmbedder struct {
	dim  int
	seed uint64
}

// NewDeterministicEmbedder constructs a seeded, deterministic Embedder.
func NewDeterministicEmbedder(dim int, seed uint64) Embedder {
	if dim <= 0 {
		dim = 64
	}
	return &deterministicEmbedder{dim: dim, seed: seed}
}

func (d *deterministicEmbedder) Name() string   { return "embedder:deterministic" }
func (d *deterministicEmbedder) Dimension() int { return d.dim }

func (d *deterministicEmbedder) Extract(_ context.Context, ch chunker.Chunk) (Signal, float64, error) {
	v := make([]float32, d.dim)
	b := []byte(ch.Text)
	if len(b) < 3 {
		addGram(d.seed, b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			addGram(d.seed, b[i:i+3], v)
		}
	}
	return Signal{Embedding: normalize(v)}, 1.0, nil
}

func addGram(seed uint64, gram []byte, v []float32) {
	h := fnv.New64a()
	if seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(seed >> (8 * i))
		}
		_, _ = h.Write(tmp[:])
	}
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
