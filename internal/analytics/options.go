package analytics

import "time"

// Clock abstracts time so tests can control "now", adapted from the same
// seam in internal/conversation.Clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures an Aggregator during construction.
type Option func(*Aggregator)

func WithClock(c Clock) Option { return func(a *Aggregator) { a.clock = c } }

// WithCacheTTL overrides the default projection cache TTL.
func WithCacheTTL(d time.Duration) Option { return func(a *Aggregator) { a.cacheTTL = d } }

// WithTopicTagTopK overrides how many topic tags survive in the topic
// distribution projection.
func WithTopicTagTopK(k int) Option { return func(a *Aggregator) { a.topicTopK = k } }
