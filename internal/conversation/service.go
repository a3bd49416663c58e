// Package conversation implements the per-turn orchestration protocol of
// spec §4.8: append, analyze, retrieve, compose, generate, append, invalidate.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"innerlog/internal/apperr"
	"innerlog/internal/cache"
	"innerlog/internal/chunker"
	"innerlog/internal/fingerprint"
	"innerlog/internal/modelrunner"
	"innerlog/internal/observability"
	"innerlog/internal/signals"
	"innerlog/internal/store"
	"innerlog/internal/util"
)

// Service is the conversation orchestrator, built with functional options
// adapted from the teacher's internal/rag/service.Service/Option pattern.
type Service struct {
	store      SessionStore
	vector     store.VectorStore
	cache      *cache.Tiered
	runner     *modelrunner.Registry
	coordinator *fingerprint.Coordinator
	embedder   signals.Embedder
	extractors []signals.ChunkExtractor

	generationModel string
	analysisVersion string

	sessionTypes    map[string]SessionTypeConfig
	clock           Clock
	metrics         Metrics
	defaultDeadline time.Duration
	crisisThreshold float64
}

// Deps bundles the required collaborators that have no sane zero-value
// default (unlike Clock/Metrics, which Option can substitute).
type Deps struct {
	Store            SessionStore
	Vector           store.VectorStore
	Cache            *cache.Tiered
	Runner           *modelrunner.Registry
	Coordinator      *fingerprint.Coordinator
	Embedder         signals.Embedder
	Extractors       []signals.ChunkExtractor
	GenerationModel  string
	AnalysisVersion  string
}

func New(d Deps, opts ...Option) *Service {
	s := &Service{
		store:           d.Store,
		vector:          d.Vector,
		cache:           d.Cache,
		runner:          d.Runner,
		coordinator:     d.Coordinator,
		embedder:        d.Embedder,
		extractors:      d.Extractors,
		generationModel: d.GenerationModel,
		analysisVersion: d.AnalysisVersion,
		sessionTypes:    DefaultSessionTypes(),
		clock:           systemClock{},
		metrics:         noopMetrics{},
		defaultDeadline: 30 * time.Second,
		crisisThreshold: 0.7,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TurnResult is what the caller receives after a successful turn.
type TurnResult struct {
	UserMessage      store.ChatMessage
	AssistantMessage store.ChatMessage
	CrisisFlagged    bool
	CrisisScore      *float64
}

// Turn runs the full per-turn protocol of spec §4.8 for one user message.
func (s *Service) Turn(ctx context.Context, userID, sessionID, content string) (TurnResult, error) {
	if ctx.Err() != nil {
		return TurnResult{}, apperr.ErrCancelled
	}
	if _, ok := ctx.Deadline(); !ok && s.defaultDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.defaultDeadline)
		defer cancel()
	}
	log := observability.LoggerWithTrace(ctx)

	session, err := s.store.GetSession(ctx, userID, sessionID)
	if err != nil {
		return TurnResult{}, err
	}
	cfg, ok := s.sessionTypes[session.SessionType]
	if !ok {
		return TurnResult{}, fmt.Errorf("%w: unknown session type %q", apperr.ErrInputInvalid, session.SessionType)
	}

	// 1. Append the user message under the session's sequence lock.
	userMsg, err := s.store.AppendMessage(ctx, userID, sessionID, "user", content)
	if err != nil {
		return TurnResult{}, err
	}

	// 2. Run the signal pipeline on the user message. Empty content is a
	// caller error, not a degraded pipeline, so it short-circuits the turn
	// rather than proceeding with an un-analyzed message.
	agg, embedding, err := s.analyzeMessage(ctx, userID, userMsg)
	if err != nil {
		if errors.Is(err, apperr.ErrInputInvalid) {
			return TurnResult{}, err
		}
		log.Warn().Err(err).Str("message_id", userMsg.ID).Msg("message_signal_pipeline_failed")
	}
	var crisisFlagged bool
	if agg.CrisisScore != nil && *agg.CrisisScore >= s.crisisThreshold {
		crisisFlagged = true
	}

	// 3. Retrieve context: top-K entries by similarity + last-N by recency.
	contextText, err := s.retrieveContext(ctx, userID, sessionID, embedding, cfg)
	if err != nil {
		return TurnResult{}, err
	}

	// 4. Compose the prompt.
	prompt := composePrompt(cfg, contextText, content)

	// 5. Invoke the generation model; on ModelFault, do not persist a
	// partial assistant turn.
	result, err := s.runner.Infer(ctx, s.generationModel, prompt)
	if err != nil {
		s.metrics.IncCounter("conversation_generation_failures_total", map[string]string{"session_type": session.SessionType})
		return TurnResult{}, fmt.Errorf("generate turn: %w", err)
	}

	// 6. Append the assistant message under the same sequence lock.
	assistantMsg, err := s.store.AppendMessage(ctx, userID, sessionID, "assistant", result.Text)
	if err != nil {
		return TurnResult{}, err
	}

	// 7. Invalidate session-scoped caches.
	if s.cache != nil {
		if err := cache.InvalidateSession(ctx, s.cache, userID, sessionID); err != nil {
			log.Warn().Err(err).Msg("invalidate_session_cache_failed")
		}
	}

	return TurnResult{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		CrisisFlagged:    crisisFlagged,
		CrisisScore:      agg.CrisisScore,
	}, nil
}

// analyzeMessage chunks and runs the signal pipeline on one message,
// deduplicated through the fingerprint coordinator so repeated analysis of
// the same message (same user, message ID, content and analysis version)
// runs the pipeline once. The message ID is part of the fingerprint, so a
// new turn with the same text is a new message and is analyzed again.
func (s *Service) analyzeMessage(ctx context.Context, userID string, msg store.ChatMessage) (signals.AggregatedSignal, []float32, error) {
	chunks := chunker.Chunk(msg.Content, chunker.Options{TokenBudget: 512, Overlap: 0})
	if len(chunks) == 0 {
		return signals.AggregatedSignal{}, nil, apperr.ErrInputInvalid
	}

	// The model-invocation chain and the write live inside the
	// coordinator's fn so the at-most-once guarantee actually covers the
	// work it's meant to dedupe, not just a sentinel wrapped around
	// already-completed work. A cache hit within the fingerprint's TTL
	// returns the same serialized signal a fresh run would have produced.
	run := func(ctx context.Context) (string, error) {
		extractors := s.extractors
		if s.embedder != nil {
			extractors = append(append([]signals.ChunkExtractor{}, extractors...), s.embedder)
		}
		agg, err := signals.Run(ctx, chunks, extractors)
		if err != nil {
			return "", err
		}
		sig := store.MessageSignal{
			MessageID:        msg.ID,
			UserID:           userID,
			AnalysisVersion:  s.analysisVersion,
			SentimentScore:   agg.SentimentScore,
			MoodLabel:        agg.MoodLabel,
			CrisisScore:      agg.CrisisScore,
			CrisisIndicators: agg.CrisisIndicators,
			Unavailable:      agg.Unavailable,
		}
		if err := s.store.WriteMessageSignal(ctx, sig); err != nil {
			return "", err
		}
		payload, err := json.Marshal(agg)
		if err != nil {
			return "", err
		}
		return string(payload), nil
	}

	var (
		result string
		err    error
	)
	if s.coordinator != nil {
		fp := fingerprint.Compute(userID, msg.ID, msg.Content, s.analysisVersion)
		_, result, err = s.coordinator.Run(ctx, fp, run)
	} else {
		result, err = run(ctx)
	}
	if err != nil {
		return signals.AggregatedSignal{}, nil, err
	}
	var agg signals.AggregatedSignal
	if err := json.Unmarshal([]byte(result), &agg); err != nil {
		return signals.AggregatedSignal{}, nil, err
	}
	return agg, agg.Embedding, nil
}

// retrieveContext merges top-K similar entries with the last-N recent
// messages, deduplicates, and caps the result by the session type's token
// budget (spec §4.8 step 3).
func (s *Service) retrieveContext(ctx context.Context, userID, sessionID string, probe []float32, cfg SessionTypeConfig) (string, error) {
	var similar []store.VectorResult
	if len(probe) > 0 && s.vector != nil {
		var err error
		similar, err = s.vector.Query(ctx, userID, probe, cfg.RetrievalK)
		if err != nil {
			return "", fmt.Errorf("retrieve similar entries: %w", err)
		}
	}
	recent, err := s.store.ListMessages(ctx, userID, sessionID, cfg.RecentN)
	if err != nil {
		return "", fmt.Errorf("retrieve recent messages: %w", err)
	}

	type scored struct {
		text  string
		score float64
	}
	seenEntries := map[string]bool{}
	var merged []scored
	for i, r := range similar {
		if seenEntries[r.EntryID] {
			continue
		}
		seenEntries[r.EntryID] = true
		entry, err := s.store.GetEntry(ctx, userID, r.EntryID)
		if err != nil {
			continue
		}
		rank := 1.0 - float64(i)/float64(len(similar)+1)
		merged = append(merged, scored{text: entry.Text, score: cfg.SimilarityWeight * rank})
	}
	for i, m := range recent {
		recency := float64(i+1) / float64(len(recent)+1)
		merged = append(merged, scored{text: m.Role + ": " + m.Content, score: cfg.RecencyWeight * recency})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].score > merged[j].score })

	budget := cfg.TokenBudget
	if budget <= 0 {
		budget = 4000
	}
	var out string
	var used int
	for _, m := range merged {
		n := util.CountTokens(m.text)
		if used+n > budget {
			continue
		}
		out += m.text + "\n\n"
		used += n
	}
	return out, nil
}

func composePrompt(cfg SessionTypeConfig, contextText, userMessage string) string {
	return cfg.SystemDirective + "\n\n" +
		"Relevant context:\n" + contextText + "\n" +
		"User: " + userMessage
}
