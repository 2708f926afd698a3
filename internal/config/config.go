// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Mode names for provider wiring.
const (
	ModeLocal = "local"
	ModeCloud = "cloud"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"8080"`
	// DefaultMode selects the provider wiring: local (in-memory vector
	// store, deterministic stub when no API keys) or cloud (Qdrant +
	// Supabase Postgres).
	DefaultMode string `env:"DEFAULT_MODE" envDefault:"local"`

	OpenRouterAPIKey  string `env:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL string `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	OpenAIAPIKey      string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	EmbeddingsModel   string `env:"EMBEDDINGS_MODEL" envDefault:"text-embedding-3-small"`

	// Model ids per pipeline stage.
	UnderstandingModel string `env:"UNDERSTANDING_MODEL" envDefault:"openai/gpt-4o-mini"`
	RerankModel        string `env:"RERANK_MODEL" envDefault:"openai/gpt-4o-mini"`
	GenerationModel    string `env:"GENERATION_MODEL" envDefault:"anthropic/claude-3.5-sonnet"`
	VerifyModel        string `env:"VERIFY_MODEL" envDefault:"openai/gpt-4o-mini"`

	// SupabaseURL is a Postgres DSN; SupabaseServiceKey is appended as the
	// password when the DSN carries a placeholder.
	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_KEY"`

	QdrantURL        string `env:"QDRANT_URL" envDefault:"http://localhost:6333"`
	QdrantAPIKey     string `env:"QDRANT_API_KEY"`
	QdrantCollection string `env:"QDRANT_COLLECTION" envDefault:"cv_chunks"`

	RedisAddr    string   `env:"REDIS_ADDR"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	// EvalLogTopic is only used when KafkaBrokers is set.
	EvalLogTopic string `env:"EVAL_LOG_TOPIC" envDefault:"cv-rag.eval"`
	EvalLogPath  string `env:"EVAL_LOG_PATH" envDefault:"data/eval_log.jsonl"`

	RetrievalK              int     `env:"RETRIEVAL_K" envDefault:"8"`
	RetrievalScoreThreshold float64 `env:"RETRIEVAL_SCORE_THRESHOLD" envDefault:"0.25"`
	RerankEnabled           bool    `env:"RERANK_ENABLED" envDefault:"true"`
	VerifyEnabled           bool    `env:"VERIFY_ENABLED" envDefault:"true"`
	HistoryTurns            int     `env:"HISTORY_TURNS" envDefault:"6"`

	// Independent deadlines per provider operation.
	UnderstandTimeout time.Duration `env:"UNDERSTAND_TIMEOUT" envDefault:"60s"`
	RerankTimeout     time.Duration `env:"RERANK_TIMEOUT" envDefault:"60s"`
	VerifyTimeout     time.Duration `env:"VERIFY_TIMEOUT" envDefault:"60s"`
	GenerateTimeout   time.Duration `env:"GENERATE_TIMEOUT" envDefault:"120s"`
	EmbedTimeout      time.Duration `env:"EMBED_TIMEOUT" envDefault:"30s"`
	SearchTimeout     time.Duration `env:"SEARCH_TIMEOUT" envDefault:"30s"`

	EmbedCacheSize int `env:"EMBED_CACHE_SIZE" envDefault:"2048"`

	// Optional YAML overrides; embedded defaults apply when unset.
	TaxonomyPath    string `env:"TAXONOMY_PATH"`
	SuggestionsPath string `env:"SUGGESTIONS_PATH"`

	MaxUploadMB           int64         `env:"MAX_UPLOAD_MB" envDefault:"10"`
	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"180s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"cv-rag"`

	// AI Backoff Configuration
	AIBackoffMaxElapsedTime  time.Duration `env:"AI_BACKOFF_MAX_ELAPSED_TIME" envDefault:"180s"`
	AIBackoffInitialInterval time.Duration `env:"AI_BACKOFF_INITIAL_INTERVAL" envDefault:"2s"`
	AIBackoffMaxInterval     time.Duration `env:"AI_BACKOFF_MAX_INTERVAL" envDefault:"20s"`
	AIBackoffMultiplier      float64       `env:"AI_BACKOFF_MULTIPLIER" envDefault:"1.5"`

	Chunker ChunkerConfig
}

// ChunkerConfig carries the heuristic thresholds of metadata enrichment.
// The values are heuristics, not invariants, so they stay configurable.
type ChunkerConfig struct {
	// Hop score bands mapped from average tenure.
	HighHopTenureYears float64 `env:"CHUNKER_HIGH_HOP_TENURE_YEARS" envDefault:"1.5"`
	LowHopScore        float64 `env:"CHUNKER_LOW_HOP_SCORE" envDefault:"0.3"`
	HighHopScore       float64 `env:"CHUNKER_HIGH_HOP_SCORE" envDefault:"0.5"`
	// Gap larger than this between positions counts as an employment gap.
	GapYears float64 `env:"CHUNKER_GAP_YEARS" envDefault:"1.0"`
	// Estimated years per position when the CV carries no usable dates.
	UndatedPositionYears float64 `env:"CHUNKER_UNDATED_POSITION_YEARS" envDefault:"2.5"`
	FallbackYears        float64 `env:"CHUNKER_FALLBACK_YEARS" envDefault:"1.5"`
	MaxTotalYears        float64 `env:"CHUNKER_MAX_TOTAL_YEARS" envDefault:"40"`
	FullCVMaxChars       int     `env:"CHUNKER_FULL_CV_MAX_CHARS" envDefault:"4000"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if err := env.Parse(&cfg.Chunker); err != nil {
		return Config{}, fmt.Errorf("op=config.Load chunker: %w", err)
	}
	mode := strings.ToLower(cfg.DefaultMode)
	if mode != ModeLocal && mode != ModeCloud {
		return Config{}, fmt.Errorf("op=config.Load: %s: DEFAULT_MODE must be local or cloud", cfg.DefaultMode)
	}
	cfg.DefaultMode = mode
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// IsCloud reports whether cloud providers should be wired.
func (c Config) IsCloud() bool { return c.DefaultMode == ModeCloud }

// SupabaseDSN returns the Postgres DSN for cloud mode, substituting the
// service key into the password placeholder when present.
func (c Config) SupabaseDSN() string {
	if c.SupabaseServiceKey == "" {
		return c.SupabaseURL
	}
	return strings.ReplaceAll(c.SupabaseURL, "${SERVICE_KEY}", c.SupabaseServiceKey)
}

// GetAIBackoffConfig returns backoff configuration appropriate for the current environment.
// In test environments, uses much shorter timeouts for faster test execution.
func (c Config) GetAIBackoffConfig() (maxElapsedTime, initialInterval, maxInterval time.Duration, multiplier float64) {
	if c.IsTest() {
		return 5 * time.Second, 100 * time.Millisecond, 1 * time.Second, 2.0
	}
	return c.AIBackoffMaxElapsedTime, c.AIBackoffInitialInterval, c.AIBackoffMaxInterval, c.AIBackoffMultiplier
}
