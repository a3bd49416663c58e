package cache

import "fmt"

// Key namespace prefixes, documented and treated as opaque by anything
// outside this package (spec §6 "Cache key namespace").
const (
	prefixMood       = "analytics:mood"
	prefixWritingFreq = "analytics:writing_freq"
	prefixTopicDist  = "analytics:topics"
	prefixProfile    = "psychology:profile"
	prefixCrisis     = "crisis:assessment"
	prefixEmbedding  = "ai:embedding"
	prefixEntrySignal = "signal:entry"
	prefixMsgSignal  = "signal:message"
	prefixRetrieval  = "retrieval:result"
	prefixSession    = "session:context"
)

// EntrySignalKey scopes an entry's aggregated signal cache by the analysis
// version that produced it, so an analysis-version bump naturally misses
// the old key rather than requiring every existing key be found and
// deleted (spec §4.5's "invalidate all derived caches globally for that
// version").
func EntrySignalKey(userID, entryID, analysisVersion string) string {
	return fmt.Sprintf("%s:%s:%s:v%s", prefixEntrySignal, userID, entryID, analysisVersion)
}

func MessageSignalKey(userID, messageID, analysisVersion string) string {
	return fmt.Sprintf("%s:%s:%s:v%s", prefixMsgSignal, userID, messageID, analysisVersion)
}

func EmbeddingKey(entryID, analysisVersion string) string {
	return fmt.Sprintf("%s:%s:v%s", prefixEmbedding, entryID, analysisVersion)
}

func CrisisAssessmentKey(contentHash, analysisVersion string) string {
	return fmt.Sprintf("%s:%s:v%s", prefixCrisis, contentHash, analysisVersion)
}

func MoodTrendKey(userID, window string) string {
	return fmt.Sprintf("%s:%s:%s", prefixMood, userID, window)
}

func WritingFrequencyKey(userID, window string) string {
	return fmt.Sprintf("%s:%s:%s", prefixWritingFreq, userID, window)
}

func TopicDistributionKey(userID, window string) string {
	return fmt.Sprintf("%s:%s:%s", prefixTopicDist, userID, window)
}

func ProfileKey(userID string) string {
	return fmt.Sprintf("%s:%s", prefixProfile, userID)
}

func RetrievalResultKey(userID, sessionID string) string {
	return fmt.Sprintf("%s:%s:%s", prefixRetrieval, userID, sessionID)
}

func SessionContextKey(sessionID string) string {
	return fmt.Sprintf("%s:%s", prefixSession, sessionID)
}

// userMoodPrefix, userFreqPrefix, userTopicPrefix and userRetrievalPrefix
// are the per-user prefixes of each projection/retrieval domain, used by
// InvalidateEntry/InvalidateSession for prefix-wide eviction.
func userMoodPrefix(userID string) string  { return fmt.Sprintf("%s:%s:", prefixMood, userID) }
func userFreqPrefix(userID string) string  { return fmt.Sprintf("%s:%s:", prefixWritingFreq, userID) }
func userTopicPrefix(userID string) string { return fmt.Sprintf("%s:%s:", prefixTopicDist, userID) }
func userRetrievalPrefix(userID string) string {
	return fmt.Sprintf("%s:%s:", prefixRetrieval, userID)
}
