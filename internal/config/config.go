// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Directory DirectoryConfig `mapstructure:"directory"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	DB        DBConfig        `mapstructure:"db"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DirectoryConfig points at the universities JSON file.
type DirectoryConfig struct {
	Path string `mapstructure:"path"`
}

// FetchConfig controls static page fetches and per-host politeness.
type FetchConfig struct {
	UserAgent         string  `mapstructure:"user_agent"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	RespectRobots     bool    `mapstructure:"respect_robots"`

	// ForbiddenThreshold blocks a host after this many 403/429 responses.
	ForbiddenThreshold int      `mapstructure:"forbidden_threshold"`
	BlockedHosts       []string `mapstructure:"blocked_hosts"`
}

// HeadlessConfig configures the headless browser.
type HeadlessConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	MaxParallel        int      `mapstructure:"max_parallel"`
	NavTimeoutSeconds  int      `mapstructure:"nav_timeout_seconds"`
	WaitTimeoutSeconds int      `mapstructure:"wait_timeout_seconds"`
	SettleMillis       int      `mapstructure:"settle_millis"`
	MaxPages           int      `mapstructure:"max_pages"`
	PromotionThreshold int      `mapstructure:"promotion_threshold"`
	ExtraMarkers       []string `mapstructure:"extra_markers"`
}

// LLM providers.
const (
	ProviderNone   = "none"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

// LLMConfig configures the language-model fallback.
type LLMConfig struct {
	Provider          string `mapstructure:"provider"`
	Model             string `mapstructure:"model"`
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	Strategy          string `mapstructure:"strategy"`
	MaxChars          int    `mapstructure:"max_chars"`
	MaxOutputTokens   int32  `mapstructure:"max_output_tokens"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	Concurrency       int    `mapstructure:"concurrency"`
}

// EmbeddingConfig configures research interest embeddings.
type EmbeddingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Model             string `mapstructure:"model"`
	APIKey            string `mapstructure:"api_key"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	BatchSize              int    `mapstructure:"batch_size"`
}

// Storage backends.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// StorageConfig selects where run snapshots are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the HTTP server and its run workers.
type ServerConfig struct {
	Port              int `mapstructure:"port"`
	Workers           int `mapstructure:"workers"`
	QueueDepth        int `mapstructure:"queue_depth"`
	RunTimeoutMinutes int `mapstructure:"run_timeout_minutes"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// PipelineConfig tunes record emission.
type PipelineConfig struct {
	RequireName  bool `mapstructure:"require_name"`
	LinkFallback bool `mapstructure:"link_fallback"`
}

// ProgressConfig controls live run progress events.
type ProgressConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	LogEnabled     bool `mapstructure:"log_enabled"`
	BufferSize     int  `mapstructure:"buffer_size"`
	MaxBatchEvents int  `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int  `mapstructure:"max_batch_wait_ms"`
	// MaxRuns bounds how many run tallies the API can report.
	MaxRuns int `mapstructure:"max_runs"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from defaults, an optional file and PROFCRAWLER_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PROFCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("directory.path", "universities.json")
	v.SetDefault("fetch.user_agent", "professor-crawler/0.1")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.requests_per_second", 1.0)
	v.SetDefault("fetch.burst", 2)
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.forbidden_threshold", 3)
	v.SetDefault("fetch.blocked_hosts", []string{})
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.wait_timeout_seconds", 10)
	v.SetDefault("headless.settle_millis", 500)
	v.SetDefault("headless.max_pages", 200)
	v.SetDefault("headless.promotion_threshold", 60)
	v.SetDefault("headless.extra_markers", []string{})
	v.SetDefault("llm.provider", ProviderOllama)
	v.SetDefault("llm.model", "mistral")
	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.strategy", "schema")
	v.SetDefault("llm.max_chars", 60000)
	v.SetDefault("llm.requests_per_minute", 30)
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("llm.concurrency", 4)
	v.SetDefault("embedding.enabled", false)
	v.SetDefault("embedding.model", "text-embedding-004")
	v.SetDefault("embedding.requests_per_minute", 1500)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.batch_size", 250)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.prefix", "exports")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.workers", 1)
	v.SetDefault("server.queue_depth", 16)
	v.SetDefault("server.run_timeout_minutes", 240)
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_enabled", false)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("progress.max_runs", 256)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	// Keys without a meaningful default are registered so AutomaticEnv can fill them.
	for _, key := range []string{
		"llm.api_key", "embedding.api_key", "db.dsn", "storage.base_dir", "storage.gcs_bucket",
		"pubsub.project_id", "pubsub.topic_name", "auth.api_key",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 0)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("pipeline.require_name", false)
	v.SetDefault("pipeline.link_fallback", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}
	check(c.Fetch.TimeoutSeconds > 0, "fetch.timeout_seconds must be > 0")
	check(c.Fetch.RequestsPerSecond >= 0, "fetch.requests_per_second must be >= 0")
	check(c.Fetch.ForbiddenThreshold >= 0, "fetch.forbidden_threshold must be >= 0")
	check(!c.Headless.Enabled || c.Headless.MaxParallel > 0,
		"headless.max_parallel must be > 0 when headless is enabled")
	check(c.Headless.MaxPages >= 0, "headless.max_pages must be >= 0")
	switch c.LLM.Provider {
	case ProviderNone, "":
	case ProviderOllama:
		check(c.LLM.BaseURL != "", "llm.base_url is required for the ollama provider")
		check(c.LLM.Model != "", "llm.model is required")
	case ProviderGemini:
		check(c.LLM.APIKey != "", "llm.api_key is required for the gemini provider")
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not one of none, ollama, gemini", c.LLM.Provider))
	}
	check(c.LLM.Concurrency >= 0, "llm.concurrency must be >= 0")
	check(!c.Embedding.Enabled || c.Embedding.APIKey != "", "embedding.api_key is required when embedding is enabled")
	check(c.DB.BatchSize >= 0, "db.batch_size must be >= 0")
	switch c.Storage.Backend {
	case BackendMemory, "":
	case BackendLocal:
		check(c.Storage.BaseDir != "", "storage.base_dir is required for the local backend")
	case BackendGCS:
		check(c.Storage.GCSBucket != "", "storage.gcs_bucket is required for the gcs backend")
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of memory, local, gcs", c.Storage.Backend))
	}
	check(c.PubSub.TopicName == "" || c.PubSub.ProjectID != "", "pubsub.project_id is required when a topic is set")
	check(c.Server.Port > 0, "server.port must be > 0")
	check(c.Server.Workers >= 0, "server.workers must be >= 0")
	check(c.Progress.BufferSize >= 0 && c.Progress.MaxBatchEvents >= 0 && c.Progress.MaxBatchWaitMs >= 0,
		"progress buffer and batch settings must be >= 0")
	check(!c.Auth.Enabled || c.Auth.APIKey != "", "auth.api_key must be set when auth is enabled")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// FetchTimeout is the per-request budget for static fetches.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// LLMTimeout caps a single completion.
func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// RunTimeout bounds one server-side run. Zero means unbounded.
func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.Server.RunTimeoutMinutes) * time.Minute
}
