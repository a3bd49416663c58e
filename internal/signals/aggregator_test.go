package signals

import (
	"context"
	"errors"
	"testing"

	"innerlog/internal/chunker"
)

type fakeExtractor struct {
	name    string
	results map[int]func(chunker.Chunk) (Signal, float64, error)
	calls   int
}

func (f *fakeExtractor) Name() string { return f.name }

func (f *fakeExtractor) Extract(_ context.Context, c chunker.Chunk) (Signal, float64, error) {
	f.calls++
	if fn, ok := f.results[c.ByteOffset]; ok {
		return fn(c)
	}
	return Signal{}, 0, nil
}

func mkChunks(n int) []chunker.Chunk {
	out := make([]chunker.Chunk, n)
	for i := range out {
		out[i] = chunker.Chunk{ByteOffset: i, WeightHint: 1.0 / float64(n)}
	}
	return out
}

func TestRun_AggregatesSentimentAcrossChunks(t *testing.T) {
	chunks := mkChunks(2)
	pos, neg := 0.8, -0.4
	ext := &fakeExtractor{
		name: "sentiment",
		results: map[int]func(chunker.Chunk) (Signal, float64, error){
			0: func(chunker.Chunk) (Signal, float64, error) {
				return Signal{SentimentScore: &pos}, 1.0, nil
			},
			1: func(chunker.Chunk) (Signal, float64, error) {
				return Signal{SentimentScore: &neg}, 1.0, nil
			},
		},
	}
	agg, err := Run(context.Background(), chunks, []ChunkExtractor{ext})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg.SentimentScore == nil {
		t.Fatal("expected sentiment to be known")
	}
	want := (0.8*0.5 + -0.4*0.5)
	if diff := *agg.SentimentScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("want %v, got %v", want, *agg.SentimentScore)
	}
	if agg.MoodLabel == "" {
		t.Fatal("expected mood label to be derived")
	}
	if agg.Unavailable != nil {
		t.Fatalf("expected no unavailable signals, got %v", agg.Unavailable)
	}
}

func TestRun_AllChunksFail_MarksUnavailable(t *testing.T) {
	chunks := mkChunks(2)
	failErr := errors.New("model fault")
	ext := &fakeExtractor{
		name: "sentiment",
		results: map[int]func(chunker.Chunk) (Signal, float64, error){
			0: func(chunker.Chunk) (Signal, float64, error) { return Signal{}, 0, failErr },
			1: func(chunker.Chunk) (Signal, float64, error) { return Signal{}, 0, failErr },
		},
	}
	agg, err := Run(context.Background(), chunks, []ChunkExtractor{ext})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg.SentimentScore != nil {
		t.Fatal("expected sentiment to remain unknown, not neutral")
	}
	if agg.Unavailable == nil || agg.Unavailable["sentiment"] == "" {
		t.Fatalf("expected sentiment marked unavailable, got %v", agg.Unavailable)
	}
}

func TestRun_PartialFailure_OtherExtractorsStillCompute(t *testing.T) {
	chunks := mkChunks(2)
	failErr := errors.New("model fault")
	score := 0.5
	failing := &fakeExtractor{
		name: "crisis",
		results: map[int]func(chunker.Chunk) (Signal, float64, error){
			0: func(chunker.Chunk) (Signal, float64, error) { return Signal{}, 0, failErr },
			1: func(chunker.Chunk) (Signal, float64, error) { return Signal{}, 0, failErr },
		},
	}
	working := &fakeExtractor{
		name: "sentiment",
		results: map[int]func(chunker.Chunk) (Signal, float64, error){
			0: func(chunker.Chunk) (Signal, float64, error) { return Signal{SentimentScore: &score}, 1.0, nil },
			1: func(chunker.Chunk) (Signal, float64, error) { return Signal{SentimentScore: &score}, 1.0, nil },
		},
	}
	agg, err := Run(context.Background(), chunks, []ChunkExtractor{failing, working})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg.CrisisScore != nil {
		t.Fatal("expected crisis score to remain unknown")
	}
	if agg.Unavailable["crisis"] == "" {
		t.Fatal("expected crisis marked unavailable")
	}
	if agg.SentimentScore == nil {
		t.Fatal("expected sentiment to still compute despite crisis failure")
	}
}

func TestRun_TopicTagsKeepTopK(t *testing.T) {
	chunks := mkChunks(1)
	topics := map[string]float64{}
	for i := 0; i < TopicTagTopK+5; i++ {
		topics[string(rune('a'+i))] = float64(i + 1)
	}
	ext := &fakeExtractor{
		name: "topic",
		results: map[int]func(chunker.Chunk) (Signal, float64, error){
			0: func(chunker.Chunk) (Signal, float64, error) {
				return Signal{TopicTags: topics}, 1.0, nil
			},
		},
	}
	agg, err := Run(context.Background(), chunks, []ChunkExtractor{ext})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agg.TopicTags) != TopicTagTopK {
		t.Fatalf("expected %d tags, got %d", TopicTagTopK, len(agg.TopicTags))
	}
}

func TestRun_MeanEmbeddingIsUnitNorm(t *testing.T) {
	chunks := mkChunks(2)
	ext := &fakeExtractor{
		name: "embedder",
		results: map[int]func(chunker.Chunk) (Signal, float64, error){
			0: func(chunker.Chunk) (Signal, float64, error) {
				return Signal{Embedding: []float32{1, 0}}, 1.0, nil
			},
			1: func(chunker.Chunk) (Signal, float64, error) {
				return Signal{Embedding: []float32{0, 1}}, 1.0, nil
			},
		},
	}
	agg, err := Run(context.Background(), chunks, []ChunkExtractor{ext})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var norm float64
	for _, x := range agg.Embedding {
		norm += float64(x) * float64(x)
	}
	if diff := norm - 1.0; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("expected unit norm embedding, got norm=%v", norm)
	}
}
