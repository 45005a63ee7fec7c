package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Vector    VectorConfig
	Storage   StorageConfig
	Ingest    IngestConfig
	Retrieval RetrievalConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LLMConfig struct {
	OpenAIKey        string
	AnthropicKey     string
	DefaultProvider  string
	FallbackProvider string
	Model            string
	MaxTokens        int
	Temperature      float64
	Timeout          time.Duration
	MaxRetries       int
}

type EmbeddingConfig struct {
	OpenAIKey string
	Model     string
	Dimension int
}

type VectorConfig struct {
	Backend      string // "qdrant", "pgvector", or "memory"
	QdrantURL    string
	QdrantAPIKey string
	Timeout      time.Duration
}

type StorageConfig struct {
	Backend        string // "supabase" or "minio"
	Bucket         string
	SupabaseURL    string
	SupabaseKey    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
}

type IngestConfig struct {
	ChunkSize   int
	Overlap     int
	Concurrency int
}

type RetrievalConfig struct {
	TopK int
	// AllowUnscoped permits queries without a document scope to search
	// every ready document's collection. When off, such queries fail
	// with an ambiguous-scope error.
	AllowUnscoped bool
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	maxTokens, err := getEnvInt("LLM_MAX_TOKENS", 512)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_TOKENS: %w", err)
	}

	genTimeout, err := getEnvDuration("LLM_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TIMEOUT: %w", err)
	}

	temperature, err := getEnvFloat("LLM_TEMPERATURE", 0.2)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TEMPERATURE: %w", err)
	}

	embedDim, err := getEnvInt("EMBEDDING_DIM", 1536)
	if err != nil {
		return nil, fmt.Errorf("invalid EMBEDDING_DIM: %w", err)
	}

	vectorTimeout, err := getEnvDuration("VECTOR_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid VECTOR_TIMEOUT: %w", err)
	}

	chunkSize, err := getEnvInt("CHUNK_SIZE", 2000)
	if err != nil {
		return nil, fmt.Errorf("invalid CHUNK_SIZE: %w", err)
	}

	overlap, err := getEnvInt("CHUNK_OVERLAP", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid CHUNK_OVERLAP: %w", err)
	}

	concurrency, err := getEnvInt("INGEST_CONCURRENCY", 4)
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_CONCURRENCY: %w", err)
	}

	topK, err := getEnvInt("RETRIEVAL_TOP_K", 4)
	if err != nil {
		return nil, fmt.Errorf("invalid RETRIEVAL_TOP_K: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			Model:            getEnv("LLM_MODEL", "gpt-4o-mini"),
			MaxTokens:        maxTokens,
			Temperature:      temperature,
			Timeout:          genTimeout,
			MaxRetries:       maxRetries,
		},
		Embedding: EmbeddingConfig{
			OpenAIKey: getEnv("OPENAI_API_KEY", ""),
			Model:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension: embedDim,
		},
		Vector: VectorConfig{
			Backend:      getEnv("VECTOR_BACKEND", "qdrant"),
			QdrantURL:    getEnv("QDRANT_URL", "http://localhost:6333"),
			QdrantAPIKey: getEnv("QDRANT_API_KEY", ""),
			Timeout:      vectorTimeout,
		},
		Storage: StorageConfig{
			Backend:        getEnv("STORAGE_BACKEND", "supabase"),
			Bucket:         getEnv("STORAGE_BUCKET", "documents"),
			SupabaseURL:    getEnv("SUPABASE_URL", ""),
			SupabaseKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
			MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
			MinioUseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",
		},
		Ingest: IngestConfig{
			ChunkSize:   chunkSize,
			Overlap:     overlap,
			Concurrency: concurrency,
		},
		Retrieval: RetrievalConfig{
			TopK:          topK,
			AllowUnscoped: getEnv("RETRIEVAL_ALLOW_UNSCOPED", "true") == "true",
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Embedding.OpenAIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	switch c.Storage.Backend {
	case "supabase":
		if c.Storage.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.Storage.SupabaseKey == "" {
			missing = append(missing, "SUPABASE_SERVICE_KEY")
		}
	case "minio":
		if c.Storage.MinioAccessKey == "" {
			missing = append(missing, "MINIO_ACCESS_KEY")
		}
		if c.Storage.MinioSecretKey == "" {
			missing = append(missing, "MINIO_SECRET_KEY")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND: %s", c.Storage.Backend)
	}
	switch c.Vector.Backend {
	case "qdrant", "pgvector", "memory":
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND: %s", c.Vector.Backend)
	}
	if c.Ingest.Overlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.Ingest.Overlap, c.Ingest.ChunkSize)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
