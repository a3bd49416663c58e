package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"innerlog/internal/apperr"
)

// postgresVectorStore is a pgvector-backed VectorStore, adapted from the
// teacher's databases.pgVector. The key departure: user_id is a first-class
// indexed column, not JSON metadata, so every query's WHERE clause enforces
// user scoping at the SQL layer (spec §4.7's no-cross-user-leakage
// invariant) rather than relying on a metadata filter the caller could omit.
type postgresVectorStore struct {
	pool       *pgxpool.Pool
	dimensions int
	metric     string
}

func NewPostgresVectorStore(pool *pgxpool.Pool, dimensions int, metric string) (VectorStore, error) {
	ctx := context.Background()
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return nil, fmt.Errorf("create vector extension: %w", err)
	}
	vecType := "vector"
	if dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimensions)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS entry_embeddings (
  user_id TEXT NOT NULL,
  entry_id TEXT NOT NULL,
  vec %s,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (user_id, entry_id)
);
CREATE INDEX IF NOT EXISTS entry_embeddings_user_idx ON entry_embeddings(user_id);
`, vecType)); err != nil {
		return nil, fmt.Errorf("create entry_embeddings table: %w", err)
	}
	return &postgresVectorStore{pool: pool, dimensions: dimensions, metric: strings.ToLower(strings.TrimSpace(metric))}, nil
}

func (p *postgresVectorStore) Upsert(ctx context.Context, userID, entryID string, embedding []float32) error {
	if p.dimensions > 0 && len(embedding) != p.dimensions {
		return apperr.ErrInputInvalid
	}
	lit := toVectorLiteral(embedding)
	_, err := p.pool.Exec(ctx, `
INSERT INTO entry_embeddings(user_id, entry_id, vec) VALUES ($1, $2, $3::vector)
ON CONFLICT (user_id, entry_id) DO UPDATE SET vec = EXCLUDED.vec, created_at = NOW()
`, userID, entryID, lit)
	return err
}

func (p *postgresVectorStore) Delete(ctx context.Context, userID, entryID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM entry_embeddings WHERE user_id = $1 AND entry_id = $2`, userID, entryID)
	return err
}

func (p *postgresVectorStore) Query(ctx context.Context, userID string, probe []float32, k int) ([]VectorResult, error) {
	if k <= 0 {
		k = 10
	}
	lit := toVectorLiteral(probe)
	op := "<=>"
	scoreExpr := "1 - (vec <=> $2::vector)"
	switch p.metric {
	case "l2", "euclidean":
		op = "<->"
		scoreExpr = "-(vec <-> $2::vector)"
	case "ip", "dot":
		op = "<#>"
		scoreExpr = "-(vec <#> $2::vector)"
	}
	query := fmt.Sprintf(`
SELECT entry_id, %s AS score
FROM entry_embeddings
WHERE user_id = $1
ORDER BY vec %s $2::vector
LIMIT $3`, scoreExpr, op)
	rows, err := p.pool.Query(ctx, query, userID, lit, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]VectorResult, 0, k)
	for rows.Next() {
		var r VectorResult
		if err := rows.Scan(&r.EntryID, &r.Score); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}
