// Package signals turns chunks into typed signals and folds them into a
// per-document aggregate, per spec §4.3.
package signals

import (
	"context"

	"innerlog/internal/chunker"
)

// Signal is the typed output of one extractor on one chunk.
type Signal struct {
	SentimentScore   *float64           // [-1, 1]
	EmotionDist      map[string]float64 // emotion -> weight, sums to 1
	CrisisScore      *float64           // [0, 1]
	CrisisIndicators []string           // closed vocabulary tags
	TopicTags        map[string]float64 // tag -> confidence
	Embedding        []float32          // unit-norm
}

// ChunkExtractor turns one chunk into a signal plus a confidence in [0, 1].
// Implementations must be deterministic given identical input and model
// weights, and must not read mutable global state (spec §4.3).
type ChunkExtractor interface {
	Name() string
	Extract(ctx context.Context, c chunker.Chunk) (Signal, float64, error)
}

// ExtractorOutcome pairs one extractor's per-chunk result with the chunk it
// came from, for the aggregator's weighting step.
type ExtractorOutcome struct {
	Chunk      chunker.Chunk
	Signal     Signal
	Confidence float64
	Err        error
}

// moodThresholds implements the fixed score->label mapping spec §4.3 and
// DESIGN.md's resolved Open Question require: five mood labels derived from
// the aggregated sentiment score.
var moodThresholds = []struct {
	min   float64
	label string
}{
	{-1.0, "very_negative"},
	{-0.6, "negative"},
	{-0.2, "neutral"},
	{0.2, "positive"},
	{0.6, "very_positive"},
}

// MoodLabel maps an aggregated sentiment score in [-1, 1] to one of five
// fixed mood labels, applied once to the aggregated record — never voted
// per-chunk (spec §4.3).
func MoodLabel(sentimentScore float64) string {
	label := moodThresholds[0].label
	for _, t := range moodThresholds {
		if sentimentScore >= t.min {
			label = t.label
		}
	}
	return label
}

// EmotionFamily is the fixed mapping from fine-grained emotions to the
// coarse family used when no scalar sentiment score is available but an
// emotion distribution is (spec §4.3's documented emotion->mood mapping).
var EmotionFamily = map[string]string{
	"anger":     "negative",
	"sadness":   "negative",
	"fear":      "negative",
	"disgust":   "negative",
	"joy":       "positive",
	"gratitude": "positive",
	"love":      "positive",
	"surprise":  "neutral",
	"neutral":   "neutral",
}

// crisisVocabulary is the closed set of indicator tags the crisis extractor
// may emit (spec §4.3).
var crisisVocabulary = map[string]bool{
	"self_harm":          true,
	"hopelessness":       true,
	"isolation":          true,
	"substance":          true,
	"suicidal_ideation":  true,
}

// IsCrisisIndicator reports whether tag belongs to the closed vocabulary.
func IsCrisisIndicator(tag string) bool { return crisisVocabulary[tag] }
