package chunker

import (
	"strings"
	"testing"
)

func TestChunk_EmptyText(t *testing.T) {
	if got := Chunk("", Options{TokenBudget: 100}); got != nil {
		t.Errorf("expected nil for empty text, got %v", got)
	}
}

func TestChunk_ShortTextSingleWindow(t *testing.T) {
	text := "a short journal entry about today"
	chunks := Chunk(text, Options{TokenBudget: 300, Overlap: 50})
	if len(chunks) != 1 {
		t.Fatalf("expected exactly one window, got %d", len(chunks))
	}
	if chunks[0].Text != text {
		t.Errorf("window text mismatch: got %q", chunks[0].Text)
	}
	if chunks[0].ByteOffset != 0 || chunks[0].ByteLength != len(text) {
		t.Errorf("unexpected offsets: %+v", chunks[0])
	}
}

func TestChunk_ReconstructsOriginalFromUniqueSpans(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 200)
	chunks := Chunk(text, Options{TokenBudget: 64, Overlap: 16})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple windows for long text, got %d", len(chunks))
	}
	var rebuilt strings.Builder
	prevEnd := 0
	for _, c := range chunks {
		uniqueStart := prevEnd
		if uniqueStart < c.ByteOffset {
			uniqueStart = c.ByteOffset
		}
		end := c.ByteOffset + c.ByteLength
		rebuilt.WriteString(text[uniqueStart:end])
		prevEnd = end
	}
	if rebuilt.String() != text {
		t.Fatalf("reconstruction mismatch: lengths got=%d want=%d", rebuilt.Len(), len(text))
	}
}

func TestChunk_NoWindowExceedsBudgetByteHeuristic(t *testing.T) {
	text := strings.Repeat("word ", 2000)
	chunks := Chunk(text, Options{TokenBudget: 50, Overlap: 10})
	for _, c := range chunks {
		if c.EstimatedTokenCount > 60 { // small slack for heuristic rounding
			t.Errorf("window exceeds budget: got %d tokens", c.EstimatedTokenCount)
		}
	}
}

func TestChunk_WeightHintsSumToOne(t *testing.T) {
	text := strings.Repeat("entry text ", 500)
	chunks := Chunk(text, Options{TokenBudget: 40, Overlap: 8})
	var sum float64
	for _, c := range chunks {
		sum += c.WeightHint
	}
	if sum < 0.99 || sum > 1.01 {
		t.Errorf("expected weight hints to sum to ~1.0, got %f", sum)
	}
}
