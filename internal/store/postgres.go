package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"innerlog/internal/apperr"
)

// Store is the authoritative relational store, adapted from the teacher's
// internal/persistence/databases.pgChatStore, generalized from a
// chat-only store to the full schema spec §6 enumerates.
type Store struct {
	pool   *pgxpool.Pool
	vector VectorStore
}

func NewStore(pool *pgxpool.Pool, vector VectorStore) *Store {
	return &Store{pool: pool, vector: vector}
}

func (s *Store) Close() { s.pool.Close() }

// Init creates the schema if absent. Called once at startup.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS topics (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(user_id, name)
);
CREATE INDEX IF NOT EXISTS topics_user_idx ON topics(user_id);

CREATE TABLE IF NOT EXISTS entries (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    topic_id TEXT REFERENCES topics(id) ON DELETE SET NULL,
    text TEXT NOT NULL,
    word_count INTEGER NOT NULL DEFAULT 0,
    char_count INTEGER NOT NULL DEFAULT 0,
    analysis_version TEXT NOT NULL DEFAULT '',
    content_fingerprint TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS entries_user_created_idx ON entries(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS entries_user_topic_idx ON entries(user_id, topic_id);
CREATE INDEX IF NOT EXISTS entries_text_fts_idx ON entries USING gin (to_tsvector('english', text));

CREATE TABLE IF NOT EXISTS entry_signals (
    entry_id TEXT PRIMARY KEY REFERENCES entries(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    analysis_version TEXT NOT NULL,
    sentiment_score DOUBLE PRECISION,
    mood_label TEXT NOT NULL DEFAULT '',
    emotion_dist JSONB NOT NULL DEFAULT '{}'::jsonb,
    crisis_score DOUBLE PRECISION,
    crisis_indicators JSONB NOT NULL DEFAULT '[]'::jsonb,
    topic_tags JSONB NOT NULL DEFAULT '{}'::jsonb,
    unavailable JSONB NOT NULL DEFAULT '{}'::jsonb,
    indexed BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS entry_signals_user_idx ON entry_signals(user_id);
CREATE INDEX IF NOT EXISTS entry_signals_unindexed_idx ON entry_signals(indexed) WHERE NOT indexed;

CREATE TABLE IF NOT EXISTS chat_sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    session_type TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    next_sequence BIGINT NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS chat_sessions_user_idx ON chat_sessions(user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS chat_messages (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    sequence BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(session_id, sequence)
);
CREATE INDEX IF NOT EXISTS chat_messages_session_idx ON chat_messages(session_id, created_at);

CREATE TABLE IF NOT EXISTS message_signals (
    message_id TEXT PRIMARY KEY REFERENCES chat_messages(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    analysis_version TEXT NOT NULL,
    sentiment_score DOUBLE PRECISION,
    mood_label TEXT NOT NULL DEFAULT '',
    crisis_score DOUBLE PRECISION,
    crisis_indicators JSONB NOT NULL DEFAULT '[]'::jsonb,
    unavailable JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS analytics_projections (
    user_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    window TEXT NOT NULL,
    payload JSONB NOT NULL,
    coverage DOUBLE PRECISION NOT NULL DEFAULT 1,
    computed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, kind, window)
);

CREATE TABLE IF NOT EXISTS migration_log (
    id BIGSERIAL PRIMARY KEY,
    ts TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    from_version TEXT NOT NULL,
    to_version TEXT NOT NULL,
    scope TEXT NOT NULL,
    notes TEXT NOT NULL DEFAULT ''
);
`)
	return err
}

// EnsureUser idempotently records a user, adapted from the teacher's
// ON-CONFLICT-DO-NOTHING session creation pattern.
func (s *Store) EnsureUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO users(id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID)
	return err
}

// EnsureTopic idempotently creates a topic by (user, name); duplicate
// creation under concurrent writers surfaces as success, not Conflict,
// since the operation is declared idempotent here (spec leaves topic
// identity scheme to the implementation).
func (s *Store) EnsureTopic(ctx context.Context, userID, name string) (Topic, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Topic{}, apperr.ErrInputInvalid
	}
	id := uuid.NewString()
	row := s.pool.QueryRow(ctx, `
WITH ins AS (
  INSERT INTO topics (id, user_id, name) VALUES ($1, $2, $3)
  ON CONFLICT (user_id, name) DO NOTHING
  RETURNING id, user_id, name, created_at
)
SELECT id, user_id, name, created_at FROM ins
UNION ALL
SELECT id, user_id, name, created_at FROM topics WHERE user_id = $2 AND name = $3
LIMIT 1`, id, userID, name)
	var t Topic
	if err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.CreatedAt); err != nil {
		return Topic{}, err
	}
	return t, nil
}

// WriteEntryWithSignal implements spec §4.6's atomic Entry+Signal+vector
// write protocol: begin transaction, write Entry and Signal, write the
// vector-index record, mark the signal row indexed, commit. A vector-index
// failure rolls the whole transaction back and surfaces a typed error. When
// an embedding is written, no Signal is visible with indexed=false after a
// successful return; when embedding is empty or no vector store is
// configured, the Signal commits with indexed=false and is listed by
// EntriesNeedingReconciliation. Adapted from the teacher's AppendMessages transaction
// shape (begin -> writes -> commit, rollback on any failure).
func (s *Store) WriteEntryWithSignal(ctx context.Context, entry Entry, signal EntrySignal, embedding []float32) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	entry.SetContent(entry.Text, signal.AnalysisVersion)
	if _, err := tx.Exec(ctx, `
INSERT INTO entries (id, user_id, topic_id, text, word_count, char_count, analysis_version, content_fingerprint, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
  text = EXCLUDED.text, topic_id = EXCLUDED.topic_id,
  word_count = EXCLUDED.word_count, char_count = EXCLUDED.char_count,
  analysis_version = EXCLUDED.analysis_version, content_fingerprint = EXCLUDED.content_fingerprint,
  updated_at = EXCLUDED.updated_at
`, entry.ID, entry.UserID, entry.TopicID, entry.Text, entry.WordCount, entry.CharCount,
		entry.AnalysisVersion, entry.ContentFingerprint, entry.CreatedAt, entry.UpdatedAt); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}

	emotionJSON, _ := json.Marshal(signal.EmotionDist)
	crisisTagsJSON, _ := json.Marshal(signal.CrisisIndicators)
	topicTagsJSON, _ := json.Marshal(signal.TopicTags)
	unavailableJSON, _ := json.Marshal(signal.Unavailable)
	if _, err := tx.Exec(ctx, `
INSERT INTO entry_signals (entry_id, user_id, analysis_version, sentiment_score, mood_label, emotion_dist, crisis_score, crisis_indicators, topic_tags, unavailable, indexed)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE)
ON CONFLICT (entry_id) DO UPDATE SET
  analysis_version = EXCLUDED.analysis_version, sentiment_score = EXCLUDED.sentiment_score,
  mood_label = EXCLUDED.mood_label, emotion_dist = EXCLUDED.emotion_dist,
  crisis_score = EXCLUDED.crisis_score, crisis_indicators = EXCLUDED.crisis_indicators,
  topic_tags = EXCLUDED.topic_tags, unavailable = EXCLUDED.unavailable, indexed = FALSE
`, entry.ID, entry.UserID, signal.AnalysisVersion, signal.SentimentScore, signal.MoodLabel,
		emotionJSON, signal.CrisisScore, crisisTagsJSON, topicTagsJSON, unavailableJSON); err != nil {
		return fmt.Errorf("write entry signal: %w", err)
	}

	if len(embedding) > 0 && s.vector != nil {
		if err := s.vector.Upsert(ctx, entry.UserID, entry.ID, embedding); err != nil {
			return fmt.Errorf("%w: vector index write: %v", apperr.ErrStoreFault, err)
		}
		if _, err := tx.Exec(ctx, `UPDATE entry_signals SET indexed = TRUE WHERE entry_id = $1`, entry.ID); err != nil {
			return fmt.Errorf("mark indexed: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// EntriesNeedingReconciliation lists entries whose signal row is not marked
// indexed, i.e. whose vector-index record was never written (spec §4.6's
// reconciliation guarantee). It expects the caller to re-derive the
// embedding for each entry (this store does not own embedding
// computation), so it only reports which entries need reconciliation.
func (s *Store) EntriesNeedingReconciliation(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx, `
SELECT e.id, e.user_id, e.topic_id, e.text, e.word_count, e.char_count, e.analysis_version, e.content_fingerprint, e.created_at, e.updated_at
FROM entries e
JOIN entry_signals s ON s.entry_id = e.id
WHERE NOT s.indexed
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.TopicID, &e.Text, &e.WordCount, &e.CharCount, &e.AnalysisVersion, &e.ContentFingerprint, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkIndexed flips the reconciled signal's indexed flag once the caller
// has rewritten its vector-index record.
func (s *Store) MarkIndexed(ctx context.Context, entryID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE entry_signals SET indexed = TRUE WHERE entry_id = $1`, entryID)
	return err
}

func (s *Store) GetEntry(ctx context.Context, userID, entryID string) (Entry, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, user_id, topic_id, text, word_count, char_count, analysis_version, content_fingerprint, created_at, updated_at
FROM entries WHERE id = $1 AND user_id = $2`, entryID, userID)
	var e Entry
	if err := row.Scan(&e.ID, &e.UserID, &e.TopicID, &e.Text, &e.WordCount, &e.CharCount, &e.AnalysisVersion, &e.ContentFingerprint, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, apperr.ErrNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func (s *Store) DeleteEntry(ctx context.Context, userID, entryID string) error {
	cmd, err := s.pool.Exec(ctx, `DELETE FROM entries WHERE id = $1 AND user_id = $2`, entryID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	if s.vector != nil {
		return s.vector.Delete(ctx, userID, entryID)
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, topic_id, text, word_count, char_count, analysis_version, content_fingerprint, created_at, updated_at
FROM entries WHERE user_id = $1
ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.TopicID, &e.Text, &e.WordCount, &e.CharCount, &e.AnalysisVersion, &e.ContentFingerprint, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListEntriesSince returns a user's entries created at or after since,
// oldest first, for writing-frequency and other time-bucketed projections.
func (s *Store) ListEntriesSince(ctx context.Context, userID string, since time.Time) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, topic_id, text, word_count, char_count, analysis_version, content_fingerprint, created_at, updated_at
FROM entries WHERE user_id = $1 AND created_at >= $2
ORDER BY created_at ASC`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.TopicID, &e.Text, &e.WordCount, &e.CharCount, &e.AnalysisVersion, &e.ContentFingerprint, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListEntrySignalsSince returns a user's entry signals for entries created
// at or after since, oldest first, feeding the analytics aggregator's
// window queries (spec §4.9).
func (s *Store) ListEntrySignalsSince(ctx context.Context, userID string, since time.Time) ([]EntrySignal, error) {
	rows, err := s.pool.Query(ctx, `
SELECT es.entry_id, es.user_id, es.analysis_version, es.sentiment_score, es.mood_label,
       es.emotion_dist, es.crisis_score, es.crisis_indicators, es.topic_tags, es.unavailable, es.created_at
FROM entry_signals es
JOIN entries e ON e.id = es.entry_id
WHERE es.user_id = $1 AND e.created_at >= $2
ORDER BY e.created_at ASC`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EntrySignal
	for rows.Next() {
		var sig EntrySignal
		var emotionDist, crisisIndicators, topicTags, unavailable []byte
		if err := rows.Scan(&sig.EntryID, &sig.UserID, &sig.AnalysisVersion, &sig.SentimentScore, &sig.MoodLabel,
			&emotionDist, &sig.CrisisScore, &crisisIndicators, &topicTags, &unavailable, &sig.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(emotionDist, &sig.EmotionDist)
		_ = json.Unmarshal(crisisIndicators, &sig.CrisisIndicators)
		_ = json.Unmarshal(topicTags, &sig.TopicTags)
		_ = json.Unmarshal(unavailable, &sig.Unavailable)
		out = append(out, sig)
	}
	return out, rows.Err()
}

// CreateSession creates a chat session with an immutable session type
// (spec §4.8: "The session type is immutable for the lifetime of a
// session.").
func (s *Store) CreateSession(ctx context.Context, userID, sessionType string) (ChatSession, error) {
	id := uuid.NewString()
	row := s.pool.QueryRow(ctx, `
INSERT INTO chat_sessions (id, user_id, session_type) VALUES ($1, $2, $3)
RETURNING id, user_id, session_type, created_at, updated_at`, id, userID, sessionType)
	var cs ChatSession
	if err := row.Scan(&cs.ID, &cs.UserID, &cs.SessionType, &cs.CreatedAt, &cs.UpdatedAt); err != nil {
		return ChatSession{}, err
	}
	return cs, nil
}

func (s *Store) GetSession(ctx context.Context, userID, sessionID string) (ChatSession, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, user_id, session_type, created_at, updated_at
FROM chat_sessions WHERE id = $1`, sessionID)
	var cs ChatSession
	var owner string
	if err := row.Scan(&cs.ID, &owner, &cs.SessionType, &cs.CreatedAt, &cs.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ChatSession{}, apperr.ErrNotFound
		}
		return ChatSession{}, err
	}
	cs.UserID = owner
	if owner != userID {
		return ChatSession{}, apperr.ErrForbidden
	}
	return cs, nil
}

// AppendMessage assigns the next gapless sequence number under the
// session row's lock (`SELECT ... FOR UPDATE`), inserts the message, and
// bumps the session's updated_at — all within one transaction, adapted
// from the teacher's AppendMessages. The caller must not hold this across
// a model call (spec §5): compose the content beforehand, call this only
// to persist.
func (s *Store) AppendMessage(ctx context.Context, userID, sessionID, role, content string) (ChatMessage, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ChatMessage{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var owner string
	var nextSeq int64
	row := tx.QueryRow(ctx, `SELECT user_id, next_sequence FROM chat_sessions WHERE id = $1 FOR UPDATE`, sessionID)
	if err := row.Scan(&owner, &nextSeq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ChatMessage{}, apperr.ErrNotFound
		}
		return ChatMessage{}, err
	}
	if owner != userID {
		return ChatMessage{}, apperr.ErrForbidden
	}

	msg := ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		Sequence:  nextSeq,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO chat_messages (id, session_id, user_id, role, content, sequence, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.SessionID, msg.UserID, msg.Role, msg.Content, msg.Sequence, msg.CreatedAt); err != nil {
		return ChatMessage{}, fmt.Errorf("write message: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE chat_sessions SET next_sequence = $2, updated_at = NOW() WHERE id = $1`, sessionID, nextSeq+1); err != nil {
		return ChatMessage{}, fmt.Errorf("advance sequence: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return ChatMessage{}, err
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, userID, sessionID string, limit int) ([]ChatMessage, error) {
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, session_id, user_id, role, content, sequence, created_at FROM (
    SELECT id, session_id, user_id, role, content, sequence, created_at
    FROM chat_messages WHERE session_id = $1
    ORDER BY sequence DESC LIMIT $2
) sub
ORDER BY sequence ASC`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Role, &m.Content, &m.Sequence, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// WriteMessageSignal persists a message's aggregated signal, separate from
// the message append itself since signal computation can fail or lag
// without invalidating the already-persisted message (spec §4.8 step 2).
func (s *Store) WriteMessageSignal(ctx context.Context, sig MessageSignal) error {
	crisisTagsJSON, _ := json.Marshal(sig.CrisisIndicators)
	unavailableJSON, _ := json.Marshal(sig.Unavailable)
	_, err := s.pool.Exec(ctx, `
INSERT INTO message_signals (message_id, user_id, analysis_version, sentiment_score, mood_label, crisis_score, crisis_indicators, unavailable)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (message_id) DO UPDATE SET
  analysis_version = EXCLUDED.analysis_version, sentiment_score = EXCLUDED.sentiment_score,
  mood_label = EXCLUDED.mood_label, crisis_score = EXCLUDED.crisis_score,
  crisis_indicators = EXCLUDED.crisis_indicators, unavailable = EXCLUDED.unavailable
`, sig.MessageID, sig.UserID, sig.AnalysisVersion, sig.SentimentScore, sig.MoodLabel, sig.CrisisScore, crisisTagsJSON, unavailableJSON)
	return err
}

// ListMessageSignalsSince returns a user's message signals for chat
// messages created at or after since, oldest first (spec §4.9).
func (s *Store) ListMessageSignalsSince(ctx context.Context, userID string, since time.Time) ([]MessageSignal, error) {
	rows, err := s.pool.Query(ctx, `
SELECT ms.message_id, ms.user_id, ms.analysis_version, ms.sentiment_score, ms.mood_label,
       ms.crisis_score, ms.crisis_indicators, ms.unavailable, ms.created_at
FROM message_signals ms
JOIN chat_messages m ON m.id = ms.message_id
WHERE ms.user_id = $1 AND m.created_at >= $2
ORDER BY m.created_at ASC`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MessageSignal
	for rows.Next() {
		var sig MessageSignal
		var crisisIndicators, unavailable []byte
		if err := rows.Scan(&sig.MessageID, &sig.UserID, &sig.AnalysisVersion, &sig.SentimentScore, &sig.MoodLabel,
			&sig.CrisisScore, &crisisIndicators, &unavailable, &sig.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(crisisIndicators, &sig.CrisisIndicators)
		_ = json.Unmarshal(unavailable, &sig.Unavailable)
		out = append(out, sig)
	}
	return out, rows.Err()
}

// UpsertProjection stores a recomputed analytics projection (spec §4.9);
// projections are always rebuildable from Signal/Message data, so this is
// a pure cache write, never a source of truth.
func (s *Store) UpsertProjection(ctx context.Context, p AnalyticsProjection) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO analytics_projections (user_id, kind, window, payload, coverage, computed_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (user_id, kind, window) DO UPDATE SET payload = EXCLUDED.payload, coverage = EXCLUDED.coverage, computed_at = NOW()
`, p.UserID, p.Kind, p.Window, p.Payload, p.Coverage)
	return err
}

func (s *Store) GetProjection(ctx context.Context, userID, kind, window string) (AnalyticsProjection, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT user_id, kind, window, payload, coverage, computed_at
FROM analytics_projections WHERE user_id = $1 AND kind = $2 AND window = $3`, userID, kind, window)
	var p AnalyticsProjection
	if err := row.Scan(&p.UserID, &p.Kind, &p.Window, &p.Payload, &p.Coverage, &p.ComputedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AnalyticsProjection{}, false, nil
		}
		return AnalyticsProjection{}, false, err
	}
	return p, true, nil
}

// AppendMigrationLog records an analysis-version transition.
func (s *Store) AppendMigrationLog(ctx context.Context, e MigrationLogEntry) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO migration_log (from_version, to_version, scope, notes) VALUES ($1, $2, $3, $4)
`, e.FromVersion, e.ToVersion, e.Scope, e.Notes)
	return err
}

// LatestMigration returns the most recent migration-log entry. The startup
// reconciliation sweep in cmd/innerlogd does not call it.
func (s *Store) LatestMigration(ctx context.Context) (MigrationLogEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, ts, from_version, to_version, scope, notes FROM migration_log ORDER BY ts DESC LIMIT 1`)
	var e MigrationLogEntry
	if err := row.Scan(&e.ID, &e.Timestamp, &e.FromVersion, &e.ToVersion, &e.Scope, &e.Notes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MigrationLogEntry{}, false, nil
		}
		return MigrationLogEntry{}, false, err
	}
	return e, true, nil
}
