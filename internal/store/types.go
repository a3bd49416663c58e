// Package store is the authoritative relational and vector persistence
// layer (spec §4.6, §4.7): per-user isolation, referential integrity, and
// the atomic Entry+Signal+vector-index write protocol.
package store

import (
	"time"

	"innerlog/internal/fingerprint"
	"innerlog/internal/util"
)

type User struct {
	ID        string
	CreatedAt time.Time
}

type Topic struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

// Entry is one journal entry. WordCount, CharCount, and ContentFingerprint
// are derived from Text and AnalysisVersion; SetContent is the only path
// permitted to set them, so they can never drift out of sync (spec §3).
type Entry struct {
	ID                 string
	UserID             string
	TopicID            *string
	Text               string
	WordCount          int
	CharCount          int
	AnalysisVersion    string
	ContentFingerprint string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SetContent updates an Entry's text and recomputes word count, character
// count, and content fingerprint from it, keeping all four in sync as spec
// §3 requires. ID and UserID must already be set, since the fingerprint is
// scoped to both.
func (e *Entry) SetContent(text, analysisVersion string) {
	e.Text = text
	e.AnalysisVersion = analysisVersion
	e.WordCount = util.CountWords(text)
	e.CharCount = len([]rune(text))
	e.ContentFingerprint = fingerprint.Compute(e.UserID, e.ID, text, analysisVersion)
}

// EntrySignal is the aggregated signal record for one Entry at one
// analysis version (spec §4.3's AggregatedSignal, persisted).
type EntrySignal struct {
	EntryID          string
	UserID           string
	AnalysisVersion  string
	SentimentScore   *float64
	MoodLabel        string
	EmotionDist      map[string]float64
	CrisisScore      *float64
	CrisisIndicators []string
	TopicTags        map[string]float64
	Unavailable      map[string]string
	CreatedAt        time.Time
}

// ChatSession is a conversation session (spec §4.8).
type ChatSession struct {
	ID          string
	UserID      string
	SessionType string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChatMessage is one turn in a session, with a gapless per-session sequence
// number (spec §4.6).
type ChatMessage struct {
	ID        string
	SessionID string
	UserID    string
	Role      string // "user" | "assistant"
	Content   string
	Sequence  int64
	CreatedAt time.Time
}

// MessageSignal mirrors EntrySignal but for a chat message.
type MessageSignal struct {
	MessageID       string
	UserID          string
	AnalysisVersion string
	SentimentScore  *float64
	MoodLabel       string
	CrisisScore     *float64
	CrisisIndicators []string
	Unavailable     map[string]string
	CreatedAt       time.Time
}

// AnalyticsProjection is a cached, recomputable derived view (spec §4.9).
type AnalyticsProjection struct {
	UserID      string
	Kind        string // "mood_trend" | "writing_frequency" | "topic_distribution"
	Window      string
	Payload     []byte // JSON-encoded projection-specific shape
	Coverage    float64
	ComputedAt  time.Time
}

// MigrationLogEntry is an append-only record of an analysis-version
// transition (spec §6). Nothing at startup reads it; the reconciliation
// sweep runs unconditionally.
type MigrationLogEntry struct {
	ID          int64
	Timestamp   time.Time
	FromVersion string
	ToVersion   string
	Scope       string
	Notes       string
}
