package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables (optionally .env).
// Use Overload so .env values override existing OS environment variables,
// letting local/dev config deterministically control runtime behavior.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}
	cfg.Workdir = strings.TrimSpace(os.Getenv("WORKDIR"))
	cfg.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))
	cfg.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))

	cfg.Databases.DefaultDSN = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("POSTGRES_DSN"))
	cfg.Databases.Postgres.DSN = firstNonEmpty(os.Getenv("POSTGRES_DSN"), cfg.Databases.DefaultDSN)
	cfg.Databases.Postgres.MaxConns = int32(intFromEnv("POSTGRES_MAX_CONNS", 8))
	cfg.Databases.Postgres.MinConns = int32(intFromEnv("POSTGRES_MIN_CONNS", 0))
	cfg.Databases.Postgres.MaxConnLifetime = intFromEnv("POSTGRES_MAX_CONN_LIFETIME_SECONDS", 3600)
	cfg.Databases.Postgres.MaxConnIdleTime = intFromEnv("POSTGRES_MAX_CONN_IDLE_SECONDS", 300)

	cfg.Databases.Vector.Backend = strings.ToLower(strings.TrimSpace(os.Getenv("VECTOR_BACKEND")))
	if cfg.Databases.Vector.Backend == "" {
		if cfg.Databases.DefaultDSN != "" {
			cfg.Databases.Vector.Backend = "postgres"
		} else {
			cfg.Databases.Vector.Backend = "memory"
		}
	}
	cfg.Databases.Vector.DSN = firstNonEmpty(os.Getenv("VECTOR_DSN"), cfg.Databases.DefaultDSN)
	cfg.Databases.Vector.Collection = firstNonEmpty(os.Getenv("VECTOR_COLLECTION"), "entry_signals")
	cfg.Databases.Vector.Dimensions = intFromEnv("VECTOR_DIMENSIONS", 256)
	cfg.Databases.Vector.Metric = firstNonEmpty(os.Getenv("VECTOR_METRIC"), "cosine")

	cfg.Cache.RedisAddr = firstNonEmpty(os.Getenv("REDIS_ADDR"), "localhost:6379")
	cfg.Cache.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.Cache.RedisDB = intFromEnv("REDIS_DB", 0)
	cfg.Cache.LRUSize = intFromEnv("CACHE_LRU_SIZE", 2048)
	cfg.Cache.EntryTTLSec = intFromEnv("CACHE_ENTRY_TTL_SECONDS", 3600)
	cfg.Cache.SessionTTLSec = intFromEnv("CACHE_SESSION_TTL_SECONDS", 1800)

	cfg.Kafka.Brokers = firstNonEmpty(os.Getenv("KAFKA_BROKERS"), os.Getenv("KAFKA_BOOTSTRAP_SERVERS"), "localhost:9092")
	cfg.Kafka.JobsTopic = firstNonEmpty(os.Getenv("KAFKA_JOBS_TOPIC"), "innerlog.analysis.jobs")
	cfg.Kafka.ResultsTopic = firstNonEmpty(os.Getenv("KAFKA_RESULTS_TOPIC"), "innerlog.analysis.results")
	cfg.Kafka.DLQTopic = firstNonEmpty(os.Getenv("KAFKA_DLQ_TOPIC"), "innerlog.analysis.dlq")
	cfg.Kafka.GroupID = firstNonEmpty(os.Getenv("KAFKA_GROUP_ID"), "innerlog-analysis-workers")

	cfg.Embedding.BaseURL = firstNonEmpty(os.Getenv("EMBED_BASE_URL"), "https://api.openai.com")
	cfg.Embedding.Model = firstNonEmpty(os.Getenv("EMBED_MODEL"), "text-embedding-3-small")
	cfg.Embedding.APIKey = os.Getenv("EMBED_API_KEY")
	cfg.Embedding.APIHeader = firstNonEmpty(os.Getenv("EMBED_API_HEADER"), "Authorization")
	cfg.Embedding.Path = firstNonEmpty(os.Getenv("EMBED_PATH"), "/v1/embeddings")
	cfg.Embedding.Timeout = intFromEnv("EMBED_TIMEOUT_SECONDS", 30)
	cfg.Embedding.Dimension = intFromEnv("EMBED_DIMENSION", 256)

	cfg.Models.Path = firstNonEmpty(os.Getenv("MODEL_REGISTRY_PATH"), "models.yaml")

	cfg.Obs.ServiceName = firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "innerlogd")
	cfg.Obs.ServiceVersion = os.Getenv("SERVICE_VERSION")
	cfg.Obs.Environment = firstNonEmpty(os.Getenv("ENVIRONMENT"), "dev")
	cfg.Obs.OTLP = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	cfg.AnalysisQueueCapacity = intFromEnv("ANALYSIS_QUEUE_CAPACITY", 256)
	cfg.AnalysisWorkerConcurrency = intFromEnv("ANALYSIS_WORKER_CONCURRENCY", 4)

	if cfg.Workdir == "" {
		return Config{}, errors.New("WORKDIR is required (set in .env or environment)")
	}
	absWD, err := filepath.Abs(cfg.Workdir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve WORKDIR: %w", err)
	}
	info, err := os.Stat(absWD)
	if err != nil {
		return Config{}, fmt.Errorf("stat WORKDIR: %w", err)
	}
	if !info.IsDir() {
		return Config{}, fmt.Errorf("WORKDIR must be a directory: %s", absWD)
	}
	cfg.Workdir = absWD

	switch cfg.Databases.Vector.Backend {
	case "qdrant", "postgres", "memory":
	default:
		return Config{}, fmt.Errorf("VECTOR_BACKEND must be one of qdrant, postgres, or memory (got %q)", cfg.Databases.Vector.Backend)
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
