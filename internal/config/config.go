package config

// DatabasesConfig selects and configures the relational and vector store
// backends. A DefaultDSN is used by both when backend-specific DSNs are
// absent, mirroring the teacher's "auto" backend selection idiom.
type DatabasesConfig struct {
	DefaultDSN string
	Postgres   PostgresConfig
	Vector     VectorConfig
}

type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime int // seconds
	MaxConnIdleTime int // seconds
}

// VectorConfig configures the vector store backend: "qdrant", "postgres", or
// "memory" (tests only).
type VectorConfig struct {
	Backend    string
	DSN        string
	Collection string
	Dimensions int
	Metric     string
}

// CacheConfig configures the shared Redis tier and the in-process LRU tier.
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LRUSize       int
	EntryTTLSec   int
	SessionTTLSec int
}

// KafkaConfig configures the async analysis job queue.
type KafkaConfig struct {
	Brokers      string
	JobsTopic    string
	ResultsTopic string
	DLQTopic     string
	GroupID      string
}

// ModelConfig configures a single registered model entry. Multiple entries
// are loaded from ModelRegistryConfig.Path (YAML) at startup.
type ModelConfig struct {
	Name             string `yaml:"name"`
	Provider         string `yaml:"provider"` // anthropic, openai, google
	Model            string `yaml:"model"`
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url,omitempty"`
	MaxInputTokens   int    `yaml:"max_input_tokens"`
	MaxConcurrency   int    `yaml:"max_concurrency"`
	DevicePreference string `yaml:"device_preference,omitempty"`
}

// ModelRegistryConfig points at the YAML file listing available models.
type ModelRegistryConfig struct {
	Path string
}

// EmbeddingConfig configures the embedding HTTP endpoint used by the signal
// extractor's embedder, adapted from the teacher's embedding client config.
type EmbeddingConfig struct {
	BaseURL   string
	Model     string
	APIKey    string
	APIHeader string
	Path      string
	Timeout   int // seconds
	Dimension int
}

// ObsConfig controls OpenTelemetry tracing/metrics export, unchanged in
// shape from the teacher's internal/observability/otel.go consumer.
type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLP           string
}

// Config is the root configuration object for innerlogd.
type Config struct {
	Workdir  string
	LogPath  string
	LogLevel string

	Databases DatabasesConfig
	Cache     CacheConfig
	Kafka     KafkaConfig
	Embedding EmbeddingConfig
	Models    ModelRegistryConfig
	Obs       ObsConfig

	// AnalysisQueueCapacity bounds the in-memory job queue depth before
	// dispatch reports Overloaded (spec.md §5).
	AnalysisQueueCapacity int
	// AnalysisWorkerConcurrency bounds concurrent analysis jobs in flight.
	AnalysisWorkerConcurrency int
}
