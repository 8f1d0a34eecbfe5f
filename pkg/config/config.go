package config

import (
	"context"
	"time"
)

// Config represents the complete configuration for the assistant.
// It provides type-safe access to all configuration values with validation.
type Config struct {
	Server        ServerConfig        `koanf:"server"        validate:"required"`
	Runtime       RuntimeConfig       `koanf:"runtime"       validate:"required"`
	LLM           LLMConfig           `koanf:"llm"           validate:"required"`
	Embedder      EmbedderConfig      `koanf:"embedder"      validate:"required"`
	VectorDB      VectorDBConfig      `koanf:"vector_db"     validate:"required"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"     validate:"required"`
	Ingest        IngestConfig        `koanf:"ingest"        validate:"required"`
	Chat          ChatConfig          `koanf:"chat"`
	Monitoring    MonitoringConfig    `koanf:"monitoring"`
	Transcription TranscriptionConfig `koanf:"transcription"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host        string        `koanf:"host"         validate:"required"        env:"SERVER_HOST"`
	Port        int           `koanf:"port"         validate:"min=1,max=65535" env:"SERVER_PORT"`
	CORSEnabled bool          `koanf:"cors_enabled"                            env:"SERVER_CORS_ENABLED"`
	CORS        CORSConfig    `koanf:"cors"`
	Timeout     time.Duration `koanf:"timeout"                                 env:"SERVER_TIMEOUT"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"   env:"SERVER_CORS_ALLOWED_ORIGINS"`
	AllowCredentials bool     `koanf:"allow_credentials" env:"SERVER_CORS_ALLOW_CREDENTIALS"`
	MaxAge           int      `koanf:"max_age"           env:"SERVER_CORS_MAX_AGE"`
}

// RuntimeConfig contains runtime behavior configuration.
type RuntimeConfig struct {
	Environment string `koanf:"environment" validate:"oneof=development staging production" env:"RUNTIME_ENVIRONMENT"`
	LogLevel    string `koanf:"log_level"   validate:"oneof=debug info warn error disabled" env:"RUNTIME_LOG_LEVEL"`
	LogJSON     bool   `koanf:"log_json"                                                    env:"RUNTIME_LOG_JSON"`
	LogSource   bool   `koanf:"log_source"                                                  env:"RUNTIME_LOG_SOURCE"`
}

// LLMConfig configures the chat model used for answers and query translation.
type LLMConfig struct {
	Provider          string          `koanf:"provider"            validate:"oneof=openai anthropic ollama googleai mock" env:"LLM_PROVIDER"`
	Model             string          `koanf:"model"               validate:"required"                                    env:"LLM_MODEL"`
	APIKey            SensitiveString `koanf:"api_key"                                                                    env:"OPENAI_API_KEY"           sensitive:"true"`
	BaseURL           string          `koanf:"base_url"                                                                   env:"LLM_BASE_URL"`
	Temperature       float64         `koanf:"temperature"         validate:"min=0,max=2"                                 env:"LLM_TEMPERATURE"`
	MaxTokens         int             `koanf:"max_tokens"          validate:"min=0"                                       env:"LLM_MAX_TOKENS"`
	Timeout           time.Duration   `koanf:"timeout"                                                                    env:"LLM_TIMEOUT"`
	RetryAttempts     int             `koanf:"retry_attempts"      validate:"min=0"                                       env:"LLM_RETRY_ATTEMPTS"`
	RetryBackoffBase  time.Duration   `koanf:"retry_backoff_base"                                                         env:"LLM_RETRY_BACKOFF_BASE"`
	RequestsPerMinute int             `koanf:"requests_per_minute" validate:"min=0"                                       env:"LLM_REQUESTS_PER_MINUTE"`
}

// EmbedderConfig configures the embedding model.
type EmbedderConfig struct {
	Provider     string          `koanf:"provider"      validate:"oneof=openai ollama" env:"EMBEDDER_PROVIDER"`
	Model        string          `koanf:"model"         validate:"required"            env:"EMBEDDER_MODEL"`
	APIKey       SensitiveString `koanf:"api_key"                                      env:"EMBEDDER_API_KEY"       sensitive:"true"`
	BaseURL      string          `koanf:"base_url"                                     env:"EMBEDDER_BASE_URL"`
	Dimension    int             `koanf:"dimension"     validate:"min=1"               env:"EMBEDDER_DIMENSION"`
	BatchSize    int             `koanf:"batch_size"    validate:"min=1"               env:"EMBEDDER_BATCH_SIZE"`
	StripNewLine bool            `koanf:"strip_newline"                                env:"EMBEDDER_STRIP_NEWLINE"`
	CacheSize    int             `koanf:"cache_size"    validate:"min=0"               env:"EMBEDDER_CACHE_SIZE"`
	Timeout      time.Duration   `koanf:"timeout"                                      env:"EMBEDDER_TIMEOUT"`
}

// VectorDBConfig selects and configures the vector index backend.
type VectorDBConfig struct {
	Provider     string          `koanf:"provider"      validate:"oneof=memory filesystem pgvector qdrant redis pinecone" env:"VECTOR_DB_PROVIDER"`
	DSN          SensitiveString `koanf:"dsn"                                                                             env:"VECTOR_DB_DSN"           sensitive:"true"`
	Path         string          `koanf:"path"                                                                            env:"VECTOR_DB_PATH"`
	Table        string          `koanf:"table"                                                                           env:"VECTOR_DB_TABLE"`
	Collection   string          `koanf:"collection"                                                                      env:"VECTOR_DB_COLLECTION"`
	Index        string          `koanf:"index"                                                                           env:"PINECONE_INDEX"`
	Host         string          `koanf:"host"                                                                            env:"PINECONE_HOST"`
	APIKey       SensitiveString `koanf:"api_key"                                                                         env:"PINECONE_API_KEY"        sensitive:"true"`
	Metric       string          `koanf:"metric"        validate:"omitempty,oneof=cosine dot l2"                          env:"VECTOR_DB_METRIC"`
	EnsureSchema bool            `koanf:"ensure_schema"                                                                   env:"VECTOR_DB_ENSURE_SCHEMA"`
	Timeout      time.Duration   `koanf:"timeout"                                                                         env:"VECTOR_DB_TIMEOUT"`
}

// RetrievalConfig controls how passages are selected for a question.
type RetrievalConfig struct {
	Mode             string  `koanf:"mode"              validate:"oneof=similarity mmr" env:"RETRIEVAL_MODE"`
	TopK             int     `koanf:"top_k"             validate:"min=1"                env:"RETRIEVAL_TOP_K"`
	FetchK           int     `koanf:"fetch_k"           validate:"min=1"                env:"RETRIEVAL_FETCH_K"`
	MMRLambda        float64 `koanf:"mmr_lambda"        validate:"min=0,max=1"          env:"RETRIEVAL_MMR_LAMBDA"`
	SelfQuery        bool    `koanf:"self_query"                                        env:"RETRIEVAL_SELF_QUERY"`
	DocumentContents string  `koanf:"document_contents"                                 env:"RETRIEVAL_DOCUMENT_CONTENTS"`
	Namespace        string  `koanf:"namespace"         validate:"required"             env:"RETRIEVAL_NAMESPACE"`
}

// IngestConfig controls offline document ingestion.
type IngestConfig struct {
	ChunkSize     int    `koanf:"chunk_size"     validate:"min=1"                 env:"INGEST_CHUNK_SIZE"`
	ChunkOverlap  int    `koanf:"chunk_overlap"  validate:"min=0"                 env:"INGEST_CHUNK_OVERLAP"`
	ChunkStrategy string `koanf:"chunk_strategy" validate:"oneof=fixed recursive" env:"INGEST_CHUNK_STRATEGY"`
	Workers       int    `koanf:"workers"        validate:"min=1"                 env:"INGEST_WORKERS"`
	Namespace     string `koanf:"namespace"      validate:"required"              env:"INGEST_NAMESPACE"`
	RetryAttempts int    `koanf:"retry_attempts" validate:"min=0"                 env:"INGEST_RETRY_ATTEMPTS"`
}

// ChatConfig controls the conversation entry point.
type ChatConfig struct {
	FallbackMessage string        `koanf:"fallback_message" env:"CHAT_FALLBACK_MESSAGE"`
	RequestTimeout  time.Duration `koanf:"request_timeout"  env:"CHAT_REQUEST_TIMEOUT"`
}

// MonitoringConfig contains metrics exposure configuration.
type MonitoringConfig struct {
	Enabled bool   `koanf:"enabled" env:"MONITORING_ENABLED"`
	Path    string `koanf:"path"    env:"MONITORING_PATH"    validate:"omitempty,startswith=/"`
}

// TranscriptionConfig configures the speech-to-text collaborator.
type TranscriptionConfig struct {
	Enabled bool            `koanf:"enabled"  env:"TRANSCRIPTION_ENABLED"`
	Model   string          `koanf:"model"    env:"TRANSCRIPTION_MODEL"`
	BaseURL string          `koanf:"base_url" env:"TRANSCRIPTION_BASE_URL"`
	APIKey  SensitiveString `koanf:"api_key"  env:"TRANSCRIPTION_API_KEY"  sensitive:"true"`
	Timeout time.Duration   `koanf:"timeout"  env:"TRANSCRIPTION_TIMEOUT"`
}

// Service defines the configuration management service interface.
type Service interface {
	// Load loads configuration from the specified sources.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks if the configuration meets all validation requirements.
	Validate(config *Config) error
	// GetSource returns the source type for a specific configuration key.
	GetSource(key string) SourceType
}

// Source represents a configuration source.
type Source interface {
	Load() (map[string]any, error)
	Type() SourceType
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// Metadata tracks where each configuration key came from.
type Metadata struct {
	Sources  map[string]SourceType `json:"sources"`
	LoadedAt time.Time             `json:"loaded_at"`
}

// SensitiveString hides its value when printed or serialized.
type SensitiveString string

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

func (s SensitiveString) Value() string {
	return string(s)
}

func (s SensitiveString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        5001,
			CORSEnabled: true,
			CORS: CORSConfig{
				AllowedOrigins: []string{"http://localhost:3000"},
				MaxAge:         86400,
			},
			Timeout: 30 * time.Second,
		},
		Runtime: RuntimeConfig{
			Environment: "development",
			LogLevel:    "info",
		},
		LLM: LLMConfig{
			Provider:          "openai",
			Model:             "gpt-4o-mini",
			Temperature:       0.2,
			Timeout:           60 * time.Second,
			RetryAttempts:     3,
			RetryBackoffBase:  250 * time.Millisecond,
			RequestsPerMinute: 0,
		},
		Embedder: EmbedderConfig{
			Provider:     "openai",
			Model:        "text-embedding-3-small",
			Dimension:    1536,
			BatchSize:    64,
			StripNewLine: true,
			CacheSize:    1024,
			Timeout:      30 * time.Second,
		},
		VectorDB: VectorDBConfig{
			Provider:   "memory",
			Path:       "./data/index.json",
			Table:      "knowledge_chunks",
			Collection: "clinical-research-data",
			Index:      "clinical-research-data",
			Metric:     "cosine",
			Timeout:    10 * time.Second,
		},
		Retrieval: RetrievalConfig{
			Mode:             "similarity",
			TopK:             4,
			FetchK:           20,
			MMRLambda:        0.5,
			SelfQuery:        true,
			DocumentContents: "Information about Good Clinical Practice (GCP) guidelines for clinical trials and research best practices",
			Namespace:        "gcp_guidelines",
		},
		Ingest: IngestConfig{
			ChunkSize:     1000,
			ChunkOverlap:  0,
			ChunkStrategy: "fixed",
			Workers:       4,
			Namespace:     "gcp_guidelines",
			RetryAttempts: 2,
		},
		Chat: ChatConfig{
			FallbackMessage: "Unable to retrieve a response, please try again",
			RequestTimeout:  90 * time.Second,
		},
		Monitoring: MonitoringConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Transcription: TranscriptionConfig{
			Model:   "whisper-1",
			BaseURL: "https://api.openai.com/v1",
			Timeout: 60 * time.Second,
		},
	}
}
