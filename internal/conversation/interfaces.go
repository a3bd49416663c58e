package conversation

import (
	"context"

	"innerlog/internal/store"
)

// SessionStore is the slice of store.Store the orchestrator needs,
// narrowed to an interface so tests can substitute a fake instead of a
// live Postgres-backed store.
type SessionStore interface {
	GetSession(ctx context.Context, userID, sessionID string) (store.ChatSession, error)
	AppendMessage(ctx context.Context, userID, sessionID, role, content string) (store.ChatMessage, error)
	ListMessages(ctx context.Context, userID, sessionID string, limit int) ([]store.ChatMessage, error)
	GetEntry(ctx context.Context, userID, entryID string) (store.Entry, error)
	WriteMessageSignal(ctx context.Context, sig store.MessageSignal) error
}
