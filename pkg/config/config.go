package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for lumina-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (engine's own PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Vector store configuration (Qdrant)
	Vector VectorConfig `yaml:"vector"`

	// AI model endpoints
	AI AIConfig `yaml:"ai"`

	// Analysis pipeline tuning
	Analysis AnalysisConfig `yaml:"analysis"`

	// Credential encryption key for stored database passwords.
	// Either a 32-byte base64 key (openssl rand -base64 32) or a passphrase.
	// Server will fail to start if this is not set.
	CredentialsKey string `yaml:"-" env:"CREDENTIALS_KEY"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"lumina"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"lumina_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// VectorConfig holds Qdrant connection settings.
type VectorConfig struct {
	Host       string `yaml:"host" env:"QDRANT_HOST" env-default:"localhost"`
	Port       int    `yaml:"port" env:"QDRANT_PORT" env-default:"6334"`
	Collection string `yaml:"collection" env:"QDRANT_COLLECTION" env-default:"table_insights"`
	APIKey     string `yaml:"-" env:"QDRANT_API_KEY"` // Secret - not in YAML
	Dimension  uint64 `yaml:"dimension" env:"QDRANT_DIMENSION" env-default:"768"`
	UseTLS     bool   `yaml:"use_tls" env:"QDRANT_USE_TLS" env-default:"false"`
}

// AIConfig holds LLM and embedding endpoint configuration.
// The LLM endpoint can be any OpenAI-compatible server (OpenAI, vLLM, Ollama)
// or Anthropic when provider is "anthropic". Embeddings always go through an
// OpenAI-compatible endpoint.
type AIConfig struct {
	Provider       string  `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"`
	LLMBaseURL     string  `yaml:"llm_base_url" env:"AI_LLM_BASE_URL" env-default:"https://api.openai.com/v1"`
	LLMModel       string  `yaml:"llm_model" env:"AI_LLM_MODEL" env-default:"gpt-4o-mini"`
	LLMAPIKey      string  `yaml:"-" env:"AI_LLM_API_KEY"` // Secret - not in YAML
	EmbeddingURL   string  `yaml:"embedding_url" env:"AI_EMBEDDING_URL" env-default:"https://api.openai.com/v1"`
	EmbeddingModel string  `yaml:"embedding_model" env:"AI_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	EmbeddingKey   string  `yaml:"-" env:"AI_EMBEDDING_API_KEY"` // Secret - not in YAML
	Temperature    float64 `yaml:"temperature" env:"AI_TEMPERATURE" env-default:"0.1"`
}

// AnalysisConfig tunes the schema analysis and chat pipelines.
type AnalysisConfig struct {
	// CategoryThreshold is the maximum distinct count for a column to be
	// treated as categorical and have its full value set collected.
	CategoryThreshold int `yaml:"category_threshold" env:"ANALYSIS_CATEGORY_THRESHOLD" env-default:"100"`
	// SampleSize is how many random values to collect for non-categorical columns.
	SampleSize int `yaml:"sample_size" env:"ANALYSIS_SAMPLE_SIZE" env-default:"50"`
	// MaxQueryRows caps rows returned to the agent from generated queries.
	MaxQueryRows int `yaml:"max_query_rows" env:"ANALYSIS_MAX_QUERY_ROWS" env-default:"100"`
	// QueryTimeoutSeconds bounds agent query execution.
	QueryTimeoutSeconds int `yaml:"query_timeout_seconds" env:"ANALYSIS_QUERY_TIMEOUT_SECONDS" env-default:"60"`
	// StatsTimeoutSeconds bounds per-column statistics queries during extraction.
	StatsTimeoutSeconds int `yaml:"stats_timeout_seconds" env:"ANALYSIS_STATS_TIMEOUT_SECONDS" env-default:"30"`
	// RunTimeoutMinutes bounds a full analysis run.
	RunTimeoutMinutes int `yaml:"run_timeout_minutes" env:"ANALYSIS_RUN_TIMEOUT_MINUTES" env-default:"30"`
	// SearchLimit is how many tables retrieval returns per question.
	SearchLimit int `yaml:"search_limit" env:"ANALYSIS_SEARCH_LIMIT" env-default:"5"`
	// ChatConcurrency limits concurrent query executions per connection.
	ChatConcurrency int `yaml:"chat_concurrency" env:"ANALYSIS_CHAT_CONCURRENCY" env-default:"4"`
	// HistoryLimit is how many prior messages feed intent extraction.
	HistoryLimit int `yaml:"history_limit" env:"ANALYSIS_HISTORY_LIMIT" env-default:"10"`
	// AdvisoryConcurrency limits concurrent LLM advisory calls during indexing.
	AdvisoryConcurrency int `yaml:"advisory_concurrency" env:"ANALYSIS_ADVISORY_CONCURRENCY" env-default:"8"`
	// AdvisoryEnabled toggles the LLM advisory layer of strategy decisions.
	AdvisoryEnabled bool `yaml:"advisory_enabled" env:"ANALYSIS_ADVISORY_ENABLED" env-default:"true"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Secrets (PGPASSWORD, CREDENTIALS_KEY, AI keys) must come from environment
// variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if cfg.CredentialsKey == "" {
		return nil, fmt.Errorf("CREDENTIALS_KEY must be set")
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
