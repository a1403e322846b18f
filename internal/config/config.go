// Package config provides application configuration with multi-source
// priority.
//
// Sources (highest to lowest):
//  1. Environment variables (CAREBRIDGE_ prefix, runtime override)
//  2. Config file (~/.carebridge/config.yaml)
//  3. Defaults (sensible values for local development)
//
// Categories:
//   - AI: provider, generative/vision/embedder models, sampling
//   - Storage: PostgreSQL connection (pgvector-enabled database)
//   - RAG: chunking, retrieval and prompt-budget knobs
//   - Privacy: encryption master key and key version
//   - Resilience: retry policy and timeouts
//
// Security: the encryption key and database password are never logged
// and are masked in MarshalJSON.
package config

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the Gemini API key is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrMissingEncryptionKey indicates no master key was provided.
	ErrMissingEncryptionKey = errors.New("missing encryption key")

	// ErrInvalidEncryptionKey indicates a master key that is not 32
	// hex-encoded bytes.
	ErrInvalidEncryptionKey = errors.New("invalid encryption key")

	// ErrInvalidModelName indicates an empty model identifier.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderDimension indicates an embedder dimension that
	// does not match the pgvector schema.
	ErrInvalidEmbedderDimension = errors.New("invalid embedder dimension")

	// ErrInvalidChunking indicates chunking knobs that cannot work.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTopK indicates a retrieval K outside [1, 50].
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidPostgresHost indicates an empty PostgreSQL host.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates a port outside [1, 65535].
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidRetryPolicy indicates nonsensical retry settings.
	ErrInvalidRetryPolicy = errors.New("invalid retry policy")
)

// Defaults for the Gemini-backed deployment.
const (
	// DefaultEmbedderModel outputs 3072 dimensions natively but is
	// truncated to 768 via output dimensionality; the pgvector schema
	// uses 768. See db/migrations.
	DefaultEmbedderModel = "gemini-embedding-001"

	DefaultModelName       = "googleai/gemini-2.5-flash"
	DefaultVisionModelName = "googleai/gemini-2.5-flash"

	DefaultEmbedderDimension = 768
	DefaultEmbedBatchSize    = 100
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON. When adding a
// new secret field, update MarshalJSON.
type Config struct {
	// AI provider and models
	Provider        string  `mapstructure:"provider" json:"provider"`
	ModelName       string  `mapstructure:"model_name" json:"model_name"`
	VisionModelName string  `mapstructure:"vision_model_name" json:"vision_model_name"`
	EmbedderModel   string  `mapstructure:"embedder_model" json:"embedder_model"`
	Temperature     float32 `mapstructure:"temperature" json:"temperature"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens" json:"max_output_tokens"`

	// Embedding geometry
	EmbedderDimension int `mapstructure:"embedder_dimension" json:"embedder_dimension"`
	EmbedBatchSize    int `mapstructure:"embed_batch_size" json:"embed_batch_size"`

	// RAG knobs
	TopK             int `mapstructure:"top_k" json:"top_k"`
	MaxChunkTokens   int `mapstructure:"max_chunk_tokens" json:"max_chunk_tokens"`
	OverlapTokens    int `mapstructure:"overlap_tokens" json:"overlap_tokens"`
	MaxContextTokens int `mapstructure:"max_context_tokens" json:"max_context_tokens"`
	MaxQuestionChars int `mapstructure:"max_question_chars" json:"max_question_chars"`

	// Privacy
	EncryptionKey string `mapstructure:"encryption_key" json:"encryption_key"`
	KeyVersion    int    `mapstructure:"key_version" json:"key_version"`

	// Resilience
	MaxRetryAttempts int           `mapstructure:"max_retry_attempts" json:"max_retry_attempts"`
	InitialBackoff   time.Duration `mapstructure:"initial_backoff" json:"initial_backoff"`
	CallTimeout      time.Duration `mapstructure:"call_timeout" json:"call_timeout"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout" json:"request_timeout"`

	// Answer cache (best effort, never a consistency mechanism)
	CacheTTL     time.Duration `mapstructure:"cache_ttl" json:"cache_ttl"`
	CacheEntries int           `mapstructure:"cache_entries" json:"cache_entries"`

	// PostgreSQL
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname" json:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode" json:"postgres_sslmode"`
}

// Load reads configuration from defaults, an optional config file and
// environment variables, then validates it.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	home, err := os.UserHomeDir()
	if err == nil {
		v.AddConfigPath(filepath.Join(home, ".carebridge"))
	}
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("CAREBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; env vars and defaults carry it.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "gemini")
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("vision_model_name", DefaultVisionModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("temperature", 0.3)
	v.SetDefault("max_output_tokens", 1024)

	v.SetDefault("embedder_dimension", DefaultEmbedderDimension)
	v.SetDefault("embed_batch_size", DefaultEmbedBatchSize)

	v.SetDefault("top_k", 5)
	v.SetDefault("max_chunk_tokens", 500)
	v.SetDefault("overlap_tokens", 50)
	v.SetDefault("max_context_tokens", 4000)
	v.SetDefault("max_question_chars", 2000)

	v.SetDefault("key_version", 1)

	v.SetDefault("max_retry_attempts", 3)
	v.SetDefault("initial_backoff", 500*time.Millisecond)
	v.SetDefault("call_timeout", 20*time.Second)
	v.SetDefault("request_timeout", 60*time.Second)

	v.SetDefault("cache_ttl", 10*time.Minute)
	v.SetDefault("cache_entries", 256)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "postgres")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_dbname", "carebridge")
	v.SetDefault("postgres_sslmode", "disable")
}

// MasterKey decodes the hex-encoded encryption master key.
func (c *Config) MasterKey() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, ErrMissingEncryptionKey
	}
	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: not hex encoded", ErrInvalidEncryptionKey)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: need 32 bytes, got %d", ErrInvalidEncryptionKey, len(key))
	}
	return key, nil
}

// quoteDSNValue quotes a value for PostgreSQL key=value DSN format so
// passwords with spaces or quotes parse correctly.
func quoteDSNValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// PostgresConnectionString returns the DSN for the pgx driver.
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresUser,
		quoteDSNValue(c.PostgresPassword),
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// PostgresURL returns the URL form golang-migrate expects. url.URL
// handles encoding of special characters in credentials.
func (c *Config) PostgresURL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:     c.PostgresDBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.PostgresSSLMode),
	}
	return u.String()
}

// parseDatabaseURL lets DATABASE_URL override the individual
// postgres_* settings, the form cloud deployments usually provide.
func (c *Config) parseDatabaseURL() error {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil
	}

	parsed, err := url.Parse(dbURL)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://, got %q", parsed.Scheme)
	}

	if host := parsed.Hostname(); host != "" {
		c.PostgresHost = host
	}
	if portStr := parsed.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid port in DATABASE_URL: %w", err)
		}
		c.PostgresPort = port
	}
	if parsed.User != nil {
		if user := parsed.User.Username(); user != "" {
			c.PostgresUser = user
		}
		if pass, ok := parsed.User.Password(); ok {
			c.PostgresPassword = pass
		}
	}
	if dbName := strings.TrimPrefix(parsed.Path, "/"); dbName != "" {
		c.PostgresDBName = dbName
	}
	if sslMode := parsed.Query().Get("sslmode"); sslMode != "" {
		c.PostgresSSLMode = sslMode
	}

	return nil
}

// MarshalJSON masks sensitive fields so a dumped config never leaks
// the master key or database password.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config
	masked := alias(*c)
	if masked.EncryptionKey != "" {
		masked.EncryptionKey = "****"
	}
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "****"
	}
	return json.Marshal(masked)
}
