package analytics

import (
	"context"
	"time"

	"innerlog/internal/store"
)

// Source is the slice of store.Store the aggregator needs, narrowed to an
// interface so tests can substitute a fake instead of a live Postgres-
// backed store (same pattern as internal/conversation.SessionStore).
type Source interface {
	ListEntriesSince(ctx context.Context, userID string, since time.Time) ([]store.Entry, error)
	ListEntrySignalsSince(ctx context.Context, userID string, since time.Time) ([]store.EntrySignal, error)
	ListMessageSignalsSince(ctx context.Context, userID string, since time.Time) ([]store.MessageSignal, error)
}
