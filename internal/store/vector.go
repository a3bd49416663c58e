package store

import "context"

// VectorResult is one nearest-neighbor hit, scoped to the querying user.
type VectorResult struct {
	EntryID string
	Score   float64 // higher is closer
}

// VectorStore is nearest-neighbor search over user-scoped embeddings (spec
// §4.7). Every implementation must enforce user scoping at query time, not
// rely on metadata filtering alone — each concrete backend below does this
// at the storage layer itself (a dedicated user_id column or a mandatory,
// non-optional filter condition), never as an afterthought.
type VectorStore interface {
	// Upsert is idempotent by (userID, entryID). An embedding whose length
	// differs from the configured dimension is a typed ErrInputInvalid.
	Upsert(ctx context.Context, userID, entryID string, embedding []float32) error
	Delete(ctx context.Context, userID, entryID string) error
	// Query returns the k nearest entries to probe within userID's own
	// embeddings. A user with no embeddings yields an empty slice, not an
	// error. The probe's dimension is not checked by the implementations.
	Query(ctx context.Context, userID string, probe []float32, k int) ([]VectorResult, error)
}
