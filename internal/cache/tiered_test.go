package cache

import (
	"context"
	"testing"
)

func TestTiered_SetGetLocalOnly(t *testing.T) {
	c := New(10, nil)
	ctx := context.Background()
	if err := c.Set(ctx, "k1", []byte("v1"), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := c.Get(ctx, "k1")
	if !ok || string(v) != "v1" {
		t.Fatalf("expected hit v1, got %q ok=%v", v, ok)
	}
}

func TestTiered_Miss(t *testing.T) {
	c := New(10, nil)
	if _, ok := c.Get(context.Background(), "missing"); ok {
		t.Fatal("expected miss")
	}
}

func TestTiered_Invalidate(t *testing.T) {
	c := New(10, nil)
	ctx := context.Background()
	c.Set(ctx, "k1", []byte("v1"), 0)
	if err := c.Invalidate(ctx, "k1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.Get(ctx, "k1"); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestTiered_InvalidatePrefix(t *testing.T) {
	c := New(10, nil)
	ctx := context.Background()
	c.Set(ctx, "analytics:mood:u1:7d", []byte("a"), 0)
	c.Set(ctx, "analytics:mood:u1:30d", []byte("b"), 0)
	c.Set(ctx, "analytics:mood:u2:7d", []byte("c"), 0)
	if err := c.InvalidatePrefix(ctx, "analytics:mood:u1:"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.Get(ctx, "analytics:mood:u1:7d"); ok {
		t.Fatal("expected u1 7d evicted")
	}
	if _, ok := c.Get(ctx, "analytics:mood:u1:30d"); ok {
		t.Fatal("expected u1 30d evicted")
	}
	if _, ok := c.Get(ctx, "analytics:mood:u2:7d"); !ok {
		t.Fatal("expected u2 key untouched")
	}
}

func TestTiered_InvalidateSuffix(t *testing.T) {
	c := New(10, nil)
	ctx := context.Background()
	c.Set(ctx, EntrySignalKey("u1", "e1", "1"), []byte("a"), 0)
	c.Set(ctx, EntrySignalKey("u1", "e2", "1"), []byte("b"), 0)
	c.Set(ctx, EntrySignalKey("u1", "e1", "2"), []byte("c"), 0)
	if err := c.InvalidateSuffix(ctx, prefixEntrySignal, ":v1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.Get(ctx, EntrySignalKey("u1", "e1", "1")); ok {
		t.Fatal("expected v1 entry evicted")
	}
	if _, ok := c.Get(ctx, EntrySignalKey("u1", "e2", "1")); ok {
		t.Fatal("expected v1 entry evicted")
	}
	if _, ok := c.Get(ctx, EntrySignalKey("u1", "e1", "2")); !ok {
		t.Fatal("expected v2 entry untouched")
	}
}

func TestInvalidateEntry_ClearsEntrySignalEmbeddingAndUserProjections(t *testing.T) {
	c := New(10, nil)
	ctx := context.Background()
	c.Set(ctx, EntrySignalKey("u1", "e1", "1"), []byte("a"), 0)
	c.Set(ctx, EmbeddingKey("e1", "1"), []byte("b"), 0)
	c.Set(ctx, MoodTrendKey("u1", "7d"), []byte("c"), 0)
	c.Set(ctx, RetrievalResultKey("u1", "s1"), []byte("d"), 0)

	if err := InvalidateEntry(ctx, c, "u1", "e1", "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, k := range []string{
		EntrySignalKey("u1", "e1", "1"),
		EmbeddingKey("e1", "1"),
		MoodTrendKey("u1", "7d"),
		RetrievalResultKey("u1", "s1"),
	} {
		if _, ok := c.Get(ctx, k); ok {
			t.Fatalf("expected %q evicted", k)
		}
	}
}

func TestInvalidateSession_ClearsSessionAndRetrievalCache(t *testing.T) {
	c := New(10, nil)
	ctx := context.Background()
	c.Set(ctx, SessionContextKey("s1"), []byte("a"), 0)
	c.Set(ctx, RetrievalResultKey("u1", "s1"), []byte("b"), 0)
	c.Set(ctx, MoodTrendKey("u1", "7d"), []byte("c"), 0)

	if err := InvalidateSession(ctx, c, "u1", "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.Get(ctx, SessionContextKey("s1")); ok {
		t.Fatal("expected session context evicted")
	}
	if _, ok := c.Get(ctx, RetrievalResultKey("u1", "s1")); ok {
		t.Fatal("expected retrieval result evicted")
	}
	if _, ok := c.Get(ctx, MoodTrendKey("u1", "7d")); ok {
		t.Fatal("expected mood projection evicted")
	}
}

func TestInvalidateAnalysisVersion_ScopedToVersion(t *testing.T) {
	c := New(10, nil)
	ctx := context.Background()
	c.Set(ctx, EntrySignalKey("u1", "e1", "1"), []byte("a"), 0)
	c.Set(ctx, EntrySignalKey("u1", "e1", "2"), []byte("b"), 0)
	c.Set(ctx, EmbeddingKey("e1", "1"), []byte("c"), 0)

	if err := InvalidateAnalysisVersion(ctx, c, "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.Get(ctx, EntrySignalKey("u1", "e1", "1")); ok {
		t.Fatal("expected v1 signal evicted")
	}
	if _, ok := c.Get(ctx, EmbeddingKey("e1", "1")); ok {
		t.Fatal("expected v1 embedding evicted")
	}
	if _, ok := c.Get(ctx, EntrySignalKey("u1", "e1", "2")); !ok {
		t.Fatal("expected v2 signal untouched")
	}
}
