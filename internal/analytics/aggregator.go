package analytics

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"innerlog/internal/aggregate"
	"innerlog/internal/cache"
	"innerlog/internal/signals"
	"innerlog/internal/store"
)

const dayBucketLayout = "2006-01-02"

// Aggregator derives the analytics projections of spec §4.9. Every
// projection is a pure function of persisted signal/message data for the
// requested window; Aggregator's only mutable state is the cache tier it
// reads through.
type Aggregator struct {
	source    Source
	cache     *cache.Tiered
	clock     Clock
	cacheTTL  time.Duration
	topicTopK int
}

func New(source Source, c *cache.Tiered, opts ...Option) *Aggregator {
	a := &Aggregator{
		source:    source,
		cache:     c,
		clock:     systemClock{},
		cacheTTL:  10 * time.Minute,
		topicTopK: signals.TopicTagTopK,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// cached fetches a JSON-cached projection by key, or computes and stores it
// on miss. A cached value that fails to unmarshal into T is treated as a
// miss and recomputed.
func cached[T any](ctx context.Context, a *Aggregator, key string, compute func() (T, error)) (T, error) {
	var zero T
	if a.cache != nil {
		if raw, ok := a.cache.Get(ctx, key); ok {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				return v, nil
			}
		}
	}
	v, err := compute()
	if err != nil {
		return zero, err
	}
	if a.cache != nil {
		if raw, err := json.Marshal(v); err == nil {
			_ = a.cache.Set(ctx, key, raw, a.cacheTTL)
		}
	}
	return v, nil
}

// MoodTrend buckets a user's entry sentiment by day over the window
// [since, now). A signal whose sentiment extractor is unavailable
// contributes to the denominator of Coverage but not to the numerator or
// to any bucket's mean (spec §4.9: "not silently substitute neutral
// values").
func (a *Aggregator) MoodTrend(ctx context.Context, userID, window string, since time.Time) (MoodTrend, error) {
	return cached(ctx, a, cache.MoodTrendKey(userID, window), func() (MoodTrend, error) {
		sigs, err := a.source.ListEntrySignalsSince(ctx, userID, since)
		if err != nil {
			return MoodTrend{}, err
		}
		type bucketAcc struct {
			values []float64
			count  int
		}
		buckets := map[string]*bucketAcc{}
		var order []string
		var available, total int
		for _, sig := range sigs {
			total++
			if _, unavailable := sig.Unavailable["sentiment"]; unavailable || sig.SentimentScore == nil {
				continue
			}
			available++
			key := sig.CreatedAt.Format(dayBucketLayout)
			acc, ok := buckets[key]
			if !ok {
				acc = &bucketAcc{}
				buckets[key] = acc
				order = append(order, key)
			}
			acc.values = append(acc.values, *sig.SentimentScore)
			acc.count++
		}
		sort.Strings(order)
		points := make([]MoodPoint, 0, len(order))
		for _, key := range order {
			acc := buckets[key]
			weights := make([]float64, len(acc.values))
			for i := range weights {
				weights[i] = 1
			}
			mean, ok := aggregate.WeightedMean(acc.values, weights)
			if !ok {
				continue
			}
			points = append(points, MoodPoint{
				Bucket:         key,
				MeanSentiment:  mean,
				MoodLabel:      signals.MoodLabel(mean),
				ObservationCnt: acc.count,
			})
		}
		coverage := coverageOf(available, total)
		return MoodTrend{Points: points, Coverage: coverage}, nil
	})
}

// WritingFrequency counts entries per day bucket over the window. It has
// no "unavailable" notion (an entry either exists or it doesn't), so
// Coverage is always 1.0.
func (a *Aggregator) WritingFrequency(ctx context.Context, userID, window string, since time.Time) (WritingFrequency, error) {
	return cached(ctx, a, cache.WritingFrequencyKey(userID, window), func() (WritingFrequency, error) {
		entries, err := a.source.ListEntriesSince(ctx, userID, since)
		if err != nil {
			return WritingFrequency{}, err
		}
		buckets := map[string]int{}
		for _, e := range entries {
			buckets[e.CreatedAt.Format(dayBucketLayout)]++
		}
		return WritingFrequency{Buckets: buckets, Total: len(entries), Coverage: 1.0}, nil
	})
}

// TopicDistribution folds every entry's topic-tag distribution into one
// renormalized, top-K distribution for the window, using the same
// weighted-distribution fold the signal aggregator uses across chunks.
func (a *Aggregator) TopicDistribution(ctx context.Context, userID, window string, since time.Time) (TopicDistribution, error) {
	return cached(ctx, a, cache.TopicDistributionKey(userID, window), func() (TopicDistribution, error) {
		sigs, err := a.source.ListEntrySignalsSince(ctx, userID, since)
		if err != nil {
			return TopicDistribution{}, err
		}
		var dists []map[string]float64
		var weights []float64
		var available, total int
		for _, sig := range sigs {
			total++
			if _, unavailable := sig.Unavailable["topics"]; unavailable || len(sig.TopicTags) == 0 {
				continue
			}
			available++
			dists = append(dists, sig.TopicTags)
			weights = append(weights, 1)
		}
		dist := aggregate.WeightedDistribution(dists, weights)
		dist = aggregate.TopK(dist, a.topicTopK)
		return TopicDistribution{Tags: dist, Coverage: coverageOf(available, total)}, nil
	})
}

// CrossSessionPatterns compares journaling sentiment against conversational
// sentiment over the same window (spec §4.9's "cross-session patterns"),
// cached under the shared user-profile key.
func (a *Aggregator) CrossSessionPatterns(ctx context.Context, userID, window string, since time.Time) (CrossSessionPattern, error) {
	return cached(ctx, a, cache.ProfileKey(userID)+":"+window, func() (CrossSessionPattern, error) {
		entrySigs, err := a.source.ListEntrySignalsSince(ctx, userID, since)
		if err != nil {
			return CrossSessionPattern{}, err
		}
		msgSigs, err := a.source.ListMessageSignalsSince(ctx, userID, since)
		if err != nil {
			return CrossSessionPattern{}, err
		}
		journalMean, journalAvail, journalTotal := meanEntrySentiment(entrySigs)
		chatMean, chatAvail, chatTotal := meanMessageSentiment(msgSigs)
		coverage := coverageOf(journalAvail+chatAvail, journalTotal+chatTotal)
		return CrossSessionPattern{
			JournalMeanSentiment: journalMean,
			ChatMeanSentiment:    chatMean,
			Divergence:           journalMean - chatMean,
			Coverage:             coverage,
		}, nil
	})
}

func meanEntrySentiment(sigs []store.EntrySignal) (mean float64, available, total int) {
	var values, weights []float64
	for _, sig := range sigs {
		total++
		if _, unavailable := sig.Unavailable["sentiment"]; unavailable || sig.SentimentScore == nil {
			continue
		}
		available++
		values = append(values, *sig.SentimentScore)
		weights = append(weights, 1)
	}
	m, _ := aggregate.WeightedMean(values, weights)
	return m, available, total
}

func meanMessageSentiment(sigs []store.MessageSignal) (mean float64, available, total int) {
	var values, weights []float64
	for _, sig := range sigs {
		total++
		if _, unavailable := sig.Unavailable["sentiment"]; unavailable || sig.SentimentScore == nil {
			continue
		}
		available++
		values = append(values, *sig.SentimentScore)
		weights = append(weights, 1)
	}
	m, _ := aggregate.WeightedMean(values, weights)
	return m, available, total
}

func coverageOf(available, total int) float64 {
	if total == 0 {
		return 1.0
	}
	return float64(available) / float64(total)
}
