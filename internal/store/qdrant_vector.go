package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"innerlog/internal/apperr"
)

// originalIDField stores the caller's entry ID in the point payload, since
// Qdrant point IDs must be UUIDs or positive integers (adapted from the
// teacher's databases.qdrantVector PAYLOAD_ID_FIELD convention).
const originalIDField = "_original_entry_id"

// userIDField is a payload field AND the mandatory filter condition on
// every query — never optional. This closes spec §4.7's "must not rely on
// metadata filtering alone" requirement in combination with one Qdrant
// collection per deployment (the teacher used one shared collection across
// all callers; here every Query call is required to carry this filter, and
// Upsert always stamps it).
const userIDField = "_user_id"

type qdrantVectorStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

// NewQdrantVectorStore dials dsn (host:port, optionally "?api_key=...") and
// ensures the collection exists, adapted from the teacher's
// databases.NewQdrantVector.
func NewQdrantVectorStore(dsn, collection string, dimensions int, metric string) (VectorStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	qv := &qdrantVectorStore{client: client, collection: collection, dimension: dimensions, metric: strings.ToLower(strings.TrimSpace(metric))}
	if err := qv.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return qv, nil
}

func (q *qdrantVectorStore) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if q.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
}

func pointID(userID, entryID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(userID+"/"+entryID)).String()
}

func (q *qdrantVectorStore) Upsert(ctx context.Context, userID, entryID string, embedding []float32) error {
	if q.dimension > 0 && len(embedding) != q.dimension {
		return apperr.ErrInputInvalid
	}
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	payload := qdrant.NewValueMap(map[string]any{
		userIDField:     userID,
		originalIDField: entryID,
	})
	points := []*qdrant.PointStruct{{
		Id:      qdrant.NewIDUUID(pointID(userID, entryID)),
		Vectors: qdrant.NewVectorsDense(vec),
		Payload: payload,
	}}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: q.collection, Points: points})
	return err
}

func (q *qdrantVectorStore) Delete(ctx context.Context, userID, entryID string) error {
	id := qdrant.NewIDUUID(pointID(userID, entryID))
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(id),
	})
	return err
}

func (q *qdrantVectorStore) Query(ctx context.Context, userID string, probe []float32, k int) ([]VectorResult, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(probe))
	copy(vec, probe)
	// userIDField match is mandatory, never optional — every call filters.
	filter := &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(userIDField, userID)}}
	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]VectorResult, 0, len(hits))
	for _, h := range hits {
		var entryID string
		if h.Payload != nil {
			if v, ok := h.Payload[originalIDField]; ok {
				entryID = v.GetStringValue()
			}
		}
		out = append(out, VectorResult{EntryID: entryID, Score: float64(h.Score)})
	}
	return out, nil
}

func (q *qdrantVectorStore) Close() error { return q.client.Close() }
