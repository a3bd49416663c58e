// Command innerlogd wires the analysis pipeline, storage, cache, and
// conversation orchestrator into one process. It is a composition root
// only: construction and background job draining, no HTTP listener,
// adapted from the teacher's cmd/orchestrator/main.go wiring style.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	kafka "github.com/segmentio/kafka-go"
	"github.com/rs/zerolog/log"

	"innerlog/internal/analysisqueue"
	"innerlog/internal/analytics"
	"innerlog/internal/apperr"
	"innerlog/internal/cache"
	"innerlog/internal/chunker"
	"innerlog/internal/config"
	"innerlog/internal/conversation"
	"innerlog/internal/fingerprint"
	"innerlog/internal/modelrunner"
	"innerlog/internal/observability"
	"innerlog/internal/signals"
	"innerlog/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("innerlogd")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	baseCtx := context.Background()
	shutdown, err := observability.InitOTel(baseCtx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	pool, err := store.OpenPool(baseCtx, cfg.Databases.Postgres)
	if err != nil {
		return fmt.Errorf("open postgres pool: %w", err)
	}
	defer pool.Close()

	vector, err := buildVectorStore(baseCtx, cfg.Databases.Vector, pool)
	if err != nil {
		return fmt.Errorf("build vector store: %w", err)
	}

	st := store.NewStore(pool, vector)
	if err := st.Init(baseCtx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	defer redisClient.Close()
	tiered := cache.New(cfg.Cache.LRUSize, redisClient)

	completionStore, err := fingerprint.NewRedisCompletionStore(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	if err != nil {
		return fmt.Errorf("init fingerprint completion store: %w", err)
	}
	defer completionStore.Close()
	coordinator := fingerprint.NewCoordinator(completionStore, cfg.Cache.EntryTTLSec)

	registry, err := buildModelRegistry(cfg)
	if err != nil {
		return fmt.Errorf("build model registry: %w", err)
	}

	embedder := buildEmbedder(cfg)
	extractors := []signals.ChunkExtractor{
		signals.NewSentimentExtractor(registry, "sentiment"),
		signals.NewCrisisExtractor(registry, "crisis"),
		signals.NewTopicExtractor(registry, "topics"),
	}

	convSvc := conversation.New(conversation.Deps{
		Store:           st,
		Vector:          vector,
		Cache:           tiered,
		Runner:          registry,
		Coordinator:     coordinator,
		Embedder:        embedder,
		Extractors:      extractors,
		GenerationModel: "generation",
		AnalysisVersion: "v1",
	})
	// convSvc and analyticsAgg are constructed here because they share this
	// process's pool/cache/coordinator, but this binary only runs the
	// analysis-queue worker loop; an API entrypoint wires them to handlers.
	_ = convSvc

	analyticsAgg := analytics.New(st, tiered)
	_ = analyticsAgg

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := runReconciliation(ctx, st, vector, embedder); err != nil {
		log.Warn().Err(err).Msg("startup_reconciliation_failed")
	}

	brokers := splitBrokers(cfg.Kafka.Brokers)
	jobsWriter := &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: cfg.Kafka.JobsTopic, Balancer: &kafka.LeastBytes{}}
	dlqWriter := &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: cfg.Kafka.JobsTopic + ".dlq", Balancer: &kafka.LeastBytes{}}
	defer jobsWriter.Close()
	defer dlqWriter.Close()

	process := buildAnalysisProcessor(st, tiered, extractors, embedder, "v1")
	dispatcher := analysisqueue.NewDispatcher(cfg.Kafka.JobsTopic, jobsWriter, coordinator, process, cfg.AnalysisQueueCapacity, 3)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  cfg.Kafka.GroupID,
		Topic:    cfg.Kafka.JobsTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	log.Info().Str("jobs_topic", cfg.Kafka.JobsTopic).Int("workers", cfg.AnalysisWorkerConcurrency).Msg("innerlogd starting analysis workers")
	if err := dispatcher.Run(ctx, reader, dlqWriter, cfg.AnalysisWorkerConcurrency); err != nil {
		return fmt.Errorf("analysis dispatcher stopped: %w", err)
	}

	log.Info().Msg("innerlogd stopped")
	return nil
}

func splitBrokers(csv string) []string {
	var out []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// buildVectorStore selects the vector backend per config.Databases.Vector.Backend,
// never falling back silently: an unknown backend is a startup error.
func buildVectorStore(ctx context.Context, vc config.VectorConfig, pool *pgxpool.Pool) (store.VectorStore, error) {
	switch vc.Backend {
	case "qdrant":
		return store.NewQdrantVectorStore(vc.DSN, vc.Collection, vc.Dimensions, vc.Metric)
	case "postgres":
		return store.NewPostgresVectorStore(pool, vc.Dimensions, vc.Metric)
	case "memory":
		return store.NewMemoryVectorStore(vc.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", vc.Backend)
	}
}

func buildModelRegistry(cfg config.Config) (*modelrunner.Registry, error) {
	models, err := config.LoadModelRegistry(cfg.Models.Path)
	if err != nil {
		return nil, err
	}
	tokenCache := modelrunner.NewTokenCache(modelrunner.TokenCacheConfig{})
	registry := modelrunner.NewRegistry()
	registry.RegisterBuilder("anthropic", func(m config.ModelConfig) (modelrunner.Provider, error) {
		return modelrunner.NewAnthropicProvider(m.APIKey, m.BaseURL, tokenCache), nil
	})
	registry.RegisterBuilder("openai", func(m config.ModelConfig) (modelrunner.Provider, error) {
		return modelrunner.NewOpenAIProvider(m.APIKey, m.BaseURL), nil
	})
	registry.RegisterBuilder("google", func(m config.ModelConfig) (modelrunner.Provider, error) {
		return modelrunner.NewGeminiProvider(context.Background(), m.APIKey)
	})
	registry.LoadFromConfig(models)
	return registry, nil
}

func buildEmbedder(cfg config.Config) signals.Embedder {
	if cfg.Embedding.APIKey == "" {
		log.Warn().Msg("no embedding API key configured, falling back to deterministic embedder")
		return signals.NewDeterministicEmbedder(cfg.Embedding.Dimension, 0)
	}
	return signals.NewClientEmbedder(cfg.Embedding)
}

// buildAnalysisProcessor closes over the collaborators an async analysis
// job needs, mirroring what conversation.Service.analyzeMessage does for
// the synchronous chat path: chunk, run the signal pipeline, persist. Entry
// jobs go through the atomic Entry+Signal write (and pick up the entry's
// existing topic assignment, since a re-analysis job carries only text);
// message jobs only ever touch the signal row.
func buildAnalysisProcessor(st *store.Store, tiered *cache.Tiered, extractors []signals.ChunkExtractor, embedder signals.Embedder, analysisVersion string) analysisqueue.Processor {
	return func(ctx context.Context, job analysisqueue.AnalysisJob) error {
		chunks := chunker.Chunk(job.Text, chunker.Options{TokenBudget: 512, Overlap: 0})
		if len(chunks) == 0 {
			return apperr.ErrInputInvalid
		}
		all := extractors
		if embedder != nil {
			all = append(append([]signals.ChunkExtractor{}, extractors...), embedder)
		}
		agg, err := signals.Run(ctx, chunks, all)
		if err != nil {
			return err
		}

		switch job.TargetKind {
		case "entry":
			existing, err := st.GetEntry(ctx, job.UserID, job.TargetID)
			topicID := existing.TopicID
			if err != nil {
				topicID = nil
			}
			entry := store.Entry{ID: job.TargetID, UserID: job.UserID, TopicID: topicID}
			entry.SetContent(job.Text, analysisVersion)
			sig := store.EntrySignal{
				EntryID:          job.TargetID,
				UserID:           job.UserID,
				AnalysisVersion:  analysisVersion,
				SentimentScore:   agg.SentimentScore,
				MoodLabel:        agg.MoodLabel,
				EmotionDist:      agg.EmotionDist,
				CrisisScore:      agg.CrisisScore,
				CrisisIndicators: agg.CrisisIndicators,
				TopicTags:        agg.TopicTags,
				Unavailable:      agg.Unavailable,
			}
			if err := st.WriteEntryWithSignal(ctx, entry, sig, agg.Embedding); err != nil {
				return err
			}
			if err := cache.InvalidateEntry(ctx, tiered, job.UserID, job.TargetID, analysisVersion); err != nil {
				return fmt.Errorf("%w: invalidate entry cache: %v", apperr.ErrStoreFault, err)
			}
			return nil
		case "message":
			sig := store.MessageSignal{
				MessageID:        job.TargetID,
				UserID:           job.UserID,
				AnalysisVersion:  analysisVersion,
				SentimentScore:   agg.SentimentScore,
				MoodLabel:        agg.MoodLabel,
				CrisisScore:      agg.CrisisScore,
				CrisisIndicators: agg.CrisisIndicators,
				Unavailable:      agg.Unavailable,
			}
			return st.WriteMessageSignal(ctx, sig)
		default:
			return fmt.Errorf("%w: unknown analysis job target kind %q", apperr.ErrInputInvalid, job.TargetKind)
		}
	}
}

func runReconciliation(ctx context.Context, st *store.Store, vector store.VectorStore, embedder signals.Embedder) error {
	entries, err := st.EntriesNeedingReconciliation(ctx, 500)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	log.Info().Int("count", len(entries)).Msg("reconciling unindexed entry signals")
	for _, e := range entries {
		rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		emb, err := embedFullText(rctx, embedder, e.Text)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("entry_id", e.ID).Msg("reconciliation_embed_failed")
			continue
		}
		if err := vector.Upsert(ctx, e.UserID, e.ID, emb); err != nil {
			log.Warn().Err(err).Str("entry_id", e.ID).Msg("reconciliation_upsert_failed")
			continue
		}
		if err := st.MarkIndexed(ctx, e.ID); err != nil {
			log.Warn().Err(err).Str("entry_id", e.ID).Msg("reconciliation_mark_indexed_failed")
		}
	}
	return nil
}

func embedFullText(ctx context.Context, embedder signals.Embedder, text string) ([]float32, error) {
	sig, _, err := embedder.Extract(ctx, chunker.Chunk{Text: text, WeightHint: 1})
	if err != nil {
		return nil, err
	}
	return sig.Embedding, nil
}
