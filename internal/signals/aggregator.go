package signals

import (
	"context"

	"golang.org/x/sync/errgroup"

	"innerlog/internal/aggregate"
	"innerlog/internal/apperr"
	"innerlog/internal/chunker"
)

// AggregatedSignal is the per-document fold of all chunk-level signals
// (spec §4.3). A nil field means "not known" — consumers must not treat an
// absent signal as neutral.
type AggregatedSignal struct {
	SentimentScore    *float64
	MoodLabel         string
	EmotionDist       map[string]float64
	CrisisScore       *float64
	CrisisIndicators  []string
	TopicTags         map[string]float64
	Embedding         []float32
	Unavailable       map[string]string // extractor name -> failure reason
}

// TopicTagTopK bounds the number of topic tags kept after aggregation.
const TopicTagTopK = 8

// Run fans an entry's chunks out across all registered extractors
// concurrently via errgroup, so a device fault in one extractor does not
// block the others (grounded on the teacher's parallel candidate-gathering
// in rag/retrieve/candidates.go), then folds the per-chunk outcomes into
// one AggregatedSignal.
func Run(ctx context.Context, chunks []chunker.Chunk, extractors []ChunkExtractor) (AggregatedSignal, error) {
	outcomes := make([][]ExtractorOutcome, len(extractors))
	g, gctx := errgroup.WithContext(ctx)
	for ei, ext := range extractors {
		ei, ext := ei, ext
		g.Go(func() error {
			results := make([]ExtractorOutcome, len(chunks))
			for ci, c := range chunks {
				sig, conf, err := ext.Extract(gctx, c)
				results[ci] = ExtractorOutcome{Chunk: c, Signal: sig, Confidence: conf, Err: err}
			}
			outcomes[ei] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return AggregatedSignal{}, err
	}

	agg := AggregatedSignal{Unavailable: map[string]string{}}
	for ei, ext := range extractors {
		results := outcomes[ei]
		allFailed := true
		for _, r := range results {
			if r.Err == nil {
				allFailed = false
				break
			}
		}
		if allFailed && len(results) > 0 {
			agg.Unavailable[ext.Name()] = results[0].Err.Error()
			continue
		}
		foldInto(&agg, results)
	}
	if agg.SentimentScore != nil || len(agg.EmotionDist) > 0 {
		agg.MoodLabel = deriveMood(agg.SentimentScore, agg.EmotionDist)
	}
	if len(agg.Unavailable) == 0 {
		agg.Unavailable = nil
	}
	return agg, nil
}

func foldInto(agg *AggregatedSignal, results []ExtractorOutcome) {
	var sentiments, crisisScores, weights, crisisWeights []float64
	var emotionDists, topicDists []map[string]float64
	var emotionWeights, topicWeights []float64
	var embeddings [][]float32
	var indicators []string

	for _, r := range results {
		if r.Err != nil {
			continue
		}
		w := r.Chunk.WeightHint * r.Confidence
		if r.Signal.SentimentScore != nil {
			sentiments = append(sentiments, *r.Signal.SentimentScore)
			weights = append(weights, w)
		}
		if r.Signal.CrisisScore != nil {
			crisisScores = append(crisisScores, *r.Signal.CrisisScore)
			crisisWeights = append(crisisWeights, w)
		}
		if len(r.Signal.EmotionDist) > 0 {
			emotionDists = append(emotionDists, r.Signal.EmotionDist)
			emotionWeights = append(emotionWeights, w)
		}
		if len(r.Signal.TopicTags) > 0 {
			topicDists = append(topicDists, r.Signal.TopicTags)
			topicWeights = append(topicWeights, w)
		}
		if r.Signal.Embedding != nil {
			embeddings = append(embeddings, r.Signal.Embedding)
		}
		indicators = append(indicators, r.Signal.CrisisIndicators...)
	}

	if len(sentiments) > 0 {
		if m, ok := aggregate.WeightedMean(sentiments, weights); ok {
			v := aggregate.Saturate(m, -1, 1)
			agg.SentimentScore = &v
		}
	}
	if len(crisisScores) > 0 {
		if m, ok := aggregate.WeightedMean(crisisScores, crisisWeights); ok {
			v := aggregate.Saturate(m, 0, 1)
			agg.CrisisScore = &v
		}
	}
	if len(emotionDists) > 0 {
		agg.EmotionDist = aggregate.WeightedDistribution(emotionDists, emotionWeights)
	}
	if len(topicDists) > 0 {
		agg.TopicTags = aggregate.TopK(aggregate.WeightedDistribution(topicDists, topicWeights), TopicTagTopK)
	}
	if len(embeddings) > 0 {
		agg.Embedding = aggregate.MeanVector(embeddings)
	}
	if len(indicators) > 0 {
		seen := map[string]bool{}
		var uniq []string
		for _, t := range indicators {
			if !seen[t] {
				seen[t] = true
				uniq = append(uniq, t)
			}
		}
		agg.CrisisIndicators = uniq
	}
}

// deriveMood computes the mood label once from the aggregated sentiment
// score and emotion distribution, never from a per-chunk vote (spec §4.3).
func deriveMood(sentiment *float64, emotions map[string]float64) string {
	if sentiment != nil {
		return MoodLabel(*sentiment)
	}
	// No scalar sentiment available: fall back to the dominant emotion's
	// family via the fixed EmotionFamily mapping.
	var bestEmotion string
	var bestWeight float64
	for e, w := range emotions {
		if w > bestWeight {
			bestEmotion, bestWeight = e, w
		}
	}
	switch EmotionFamily[bestEmotion] {
	case "negative":
		return "negative"
	case "positive":
		return "positive"
	default:
		return "neutral"
	}
}

// Err wraps apperr for callers that need a typed sentinel for "no
// extractors configured", which is a caller input error, not a model fault.
var ErrNoExtractors = apperr.ErrInputInvalid
