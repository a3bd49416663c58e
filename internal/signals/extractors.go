package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"innerlog/internal/apperr"
	"innerlog/internal/chunker"
	"innerlog/internal/modelrunner"
)

// modelExtractor is shared scaffolding for the three classifier-style
// extractors: each sends a chunk to a named model and parses a small JSON
// result out of the generated text. Determinism (spec §4.3) rests on the
// model weights being fixed per analysis-version; the extractor itself
// reads no mutable global state.
type modelExtractor struct {
	runner *modelrunner.Registry
	model  string
	name   string
	prompt func(text string) string
	parse  func(raw string) (Signal, float64, error)
}

func (m *modelExtractor) Name() string { return m.name }

func (m *modelExtractor) Extract(ctx context.Context, c chunker.Chunk) (Signal, float64, error) {
	res, err := m.runner.Infer(ctx, m.model, m.prompt(c.Text))
	if err != nil {
		return Signal{}, 0, fmt.Errorf("%s: %w", m.name, err)
	}
	sig, conf, err := m.parse(res.Text)
	if err != nil {
		return Signal{}, 0, fmt.Errorf("%s: %w: %v", m.name, apperr.ErrModelFault, err)
	}
	return sig, conf, nil
}

type sentimentPayload struct {
	Score      float64            `json:"score"`
	Confidence float64            `json:"confidence"`
	Emotions   map[string]float64 `json:"emotions"`
}

// NewSentimentExtractor classifies sentiment/mood per chunk: a scalar score
// in [-1, 1] plus an optional fine-grained emotion distribution, mapped to
// the five-level mood family via EmotionFamily/MoodLabel at aggregation
// time, not per-chunk (spec §4.3).
func NewSentimentExtractor(runner *modelrunner.Registry, model string) ChunkExtractor {
	return &modelExtractor{
		runner: runner,
		model:  model,
		name:   "sentiment",
		prompt: func(text string) string {
			return "Classify the sentiment of this journal text. Respond with JSON " +
				`{"score": <-1..1>, "confidence": <0..1>, "emotions": {"<emotion>": <0..1>, ...}}.` +
				"\n\nText:\n" + text
		},
		parse: func(raw string) (Signal, float64, error) {
			var p sentimentPayload
			if err := json.Unmarshal([]byte(extractJSON(raw)), &p); err != nil {
				return Signal{}, 0, err
			}
			score := clamp(p.Score, -1, 1)
			return Signal{SentimentScore: &score, EmotionDist: p.Emotions}, clamp(p.Confidence, 0, 1), nil
		},
	}
}

type crisisPayload struct {
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
	Indicators []string `json:"indicators"`
}

// NewCrisisExtractor classifies crisis risk per chunk: a scalar score in
// [0, 1] plus indicator tags restricted to the closed vocabulary. Unknown
// tags from the model are dropped rather than surfaced, since downstream
// policy assumes a closed set (spec §4.3).
func NewCrisisExtractor(runner *modelrunner.Registry, model string) ChunkExtractor {
	return &modelExtractor{
		runner: runner,
		model:  model,
		name:   "crisis",
		prompt: func(text string) string {
			return "Assess crisis risk indicators (self_harm, hopelessness, isolation, " +
				"substance, suicidal_ideation) in this journal text. Respond with JSON " +
				`{"score": <0..1>, "confidence": <0..1>, "indicators": ["..."]}.` +
				"\n\nText:\n" + text
		},
		parse: func(raw string) (Signal, float64, error) {
			var p crisisPayload
			if err := json.Unmarshal([]byte(extractJSON(raw)), &p); err != nil {
				return Signal{}, 0, err
			}
			score := clamp(p.Score, 0, 1)
			var tags []string
			for _, t := range p.Indicators {
				if IsCrisisIndicator(t) {
					tags = append(tags, t)
				}
			}
			return Signal{CrisisScore: &score, CrisisIndicators: tags}, clamp(p.Confidence, 0, 1), nil
		},
	}
}

type topicPayload struct {
	Confidence float64            `json:"confidence"`
	Topics     map[string]float64 `json:"topics"`
}

// NewTopicExtractor produces a ranked list of topic tags with confidences
// per chunk (spec §4.3); top-K selection by aggregated weight happens at
// aggregation time.
func NewTopicExtractor(runner *modelrunner.Registry, model string) ChunkExtractor {
	return &modelExtractor{
		runner: runner,
		model:  model,
		name:   "topic",
		prompt: func(text string) string {
			return "Tag the topics discussed in this journal text. Respond with JSON " +
				`{"confidence": <0..1>, "topics": {"<tag>": <0..1>, ...}}.` +
				"\n\nText:\n" + text
		},
		parse: func(raw string) (Signal, float64, error) {
			var p topicPayload
			if err := json.Unmarshal([]byte(extractJSON(raw)), &p); err != nil {
				return Signal{}, 0, err
			}
			return Signal{TopicTags: p.Topics}, clamp(p.Confidence, 0, 1), nil
		},
	}
}

// extractJSON trims common chat-model wrapping (code fences) around a JSON
// payload so a strict json.Unmarshal still succeeds.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
