package cache

import "context"

// InvalidateEntry implements spec §4.5's entry write/delete rule: invalidate
// that entry's signal cache, its embedding cache, the user's analytics
// projections, and the user's retrieval result cache. This is the single
// choke point every entry writer must call — no cache tier is mutated
// ad hoc elsewhere, closing the teacher's own "implicit cache invalidation"
// gap (see Design Notes).
func InvalidateEntry(ctx context.Context, c *Tiered, userID, entryID, analysisVersion string) error {
	if err := c.Invalidate(ctx, EntrySignalKey(userID, entryID, analysisVersion)); err != nil {
		return err
	}
	if err := c.Invalidate(ctx, EmbeddingKey(entryID, analysisVersion)); err != nil {
		return err
	}
	if err := c.InvalidatePrefix(ctx, userMoodPrefix(userID)); err != nil {
		return err
	}
	if err := c.InvalidatePrefix(ctx, userFreqPrefix(userID)); err != nil {
		return err
	}
	if err := c.InvalidatePrefix(ctx, userTopicPrefix(userID)); err != nil {
		return err
	}
	if err := c.InvalidatePrefix(ctx, ProfileKey(userID)+":"); err != nil {
		return err
	}
	return c.InvalidatePrefix(ctx, userRetrievalPrefix(userID))
}

// InvalidateSession implements spec §4.5's message-write rule: invalidate
// that session's retrieval context cache and the user's short-window
// analytics projection. "Short-window" here is approximated as the whole
// user mood-trend prefix, since the window granularity lives in the
// projection key, not in a separate cache tier.
func InvalidateSession(ctx context.Context, c *Tiered, userID, sessionID string) error {
	if err := c.Invalidate(ctx, SessionContextKey(sessionID)); err != nil {
		return err
	}
	if err := c.Invalidate(ctx, RetrievalResultKey(userID, sessionID)); err != nil {
		return err
	}
	return c.InvalidatePrefix(ctx, userMoodPrefix(userID))
}

// InvalidateAnalysisVersion implements spec §4.5's analysis-version-change
// rule: invalidate all derived caches globally for that version. Because
// signal/embedding/crisis keys fold the analysis version into the key
// itself (EntrySignalKey, EmbeddingKey, CrisisAssessmentKey), a version
// bump already makes old keys unreachable for new reads; this sweep frees
// the now-dead storage rather than waiting on TTL expiry.
func InvalidateAnalysisVersion(ctx context.Context, c *Tiered, analysisVersion string) error {
	suffix := ":v" + analysisVersion
	if err := c.InvalidateSuffix(ctx, prefixEntrySignal, suffix); err != nil {
		return err
	}
	if err := c.InvalidateSuffix(ctx, prefixMsgSignal, suffix); err != nil {
		return err
	}
	if err := c.InvalidateSuffix(ctx, prefixEmbedding, suffix); err != nil {
		return err
	}
	return c.InvalidateSuffix(ctx, prefixCrisis, suffix)
}
