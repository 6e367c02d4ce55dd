package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "universities.json", cfg.Directory.Path)
	require.Equal(t, 30*time.Second, cfg.FetchTimeout())
	require.InDelta(t, 1.0, cfg.Fetch.RequestsPerSecond, 1e-9)
	require.True(t, cfg.Fetch.RespectRobots)
	require.Equal(t, 3, cfg.Fetch.ForbiddenThreshold)
	require.True(t, cfg.Headless.Enabled)
	require.Equal(t, 500, cfg.Headless.SettleMillis)
	require.Equal(t, ProviderOllama, cfg.LLM.Provider)
	require.Equal(t, "schema", cfg.LLM.Strategy)
	require.Equal(t, 250, cfg.DB.BatchSize)
	require.Equal(t, BackendMemory, cfg.Storage.Backend)
	require.Equal(t, 8080, cfg.Server.Port)
	require.False(t, cfg.Pipeline.RequireName)
	require.Equal(t, "info", cfg.Logging.Level)
	require.True(t, cfg.Progress.Enabled)
	require.Equal(t, 256, cfg.Progress.MaxRuns)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
directory:
  path: /etc/profcrawler/universities.json
fetch:
  user_agent: test-agent
  timeout_seconds: 10
  requests_per_second: 0.5
  respect_robots: false
headless:
  enabled: false
  max_pages: 20
  extra_markers: ["data-v-app"]
llm:
  provider: gemini
  api_key: key
  model: gemini-2.0-flash
  strategy: detailed
  concurrency: 8
embedding:
  enabled: true
  api_key: embed-key
db:
  dsn: postgres://localhost/profs
  batch_size: 100
storage:
  backend: local
  base_dir: /tmp/exports
pubsub:
  project_id: proj
  topic_name: runs
server:
  port: 9090
  workers: 2
pipeline:
  require_name: true
  link_fallback: true
logging:
  development: false
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/etc/profcrawler/universities.json", cfg.Directory.Path)
	require.Equal(t, "test-agent", cfg.Fetch.UserAgent)
	require.Equal(t, 10*time.Second, cfg.FetchTimeout())
	require.False(t, cfg.Fetch.RespectRobots)
	require.False(t, cfg.Headless.Enabled)
	require.Equal(t, []string{"data-v-app"}, cfg.Headless.ExtraMarkers)
	require.Equal(t, ProviderGemini, cfg.LLM.Provider)
	require.Equal(t, "detailed", cfg.LLM.Strategy)
	require.Equal(t, 8, cfg.LLM.Concurrency)
	require.True(t, cfg.Embedding.Enabled)
	require.Equal(t, 100, cfg.DB.BatchSize)
	require.Equal(t, BackendLocal, cfg.Storage.Backend)
	require.Equal(t, "runs", cfg.PubSub.TopicName)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 2, cfg.Server.Workers)
	require.True(t, cfg.Pipeline.RequireName)
	require.True(t, cfg.Pipeline.LinkFallback)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PROFCRAWLER_SERVER_PORT", "7070")
	t.Setenv("PROFCRAWLER_LLM_PROVIDER", "none")
	t.Setenv("PROFCRAWLER_DB_DSN", "postgres://env/profs")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, ProviderNone, cfg.LLM.Provider)
	require.Equal(t, "postgres://env/profs", cfg.DB.DSN)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Fetch:    FetchConfig{TimeoutSeconds: 30},
			LLM:      LLMConfig{Provider: ProviderNone},
			Storage:  StorageConfig{Backend: BackendMemory},
			Server:   ServerConfig{Port: 8080},
			Headless: HeadlessConfig{Enabled: true, MaxParallel: 1},
		}
	}
	require.NoError(t, valid().Validate())

	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero fetch timeout", func(c *Config) { c.Fetch.TimeoutSeconds = 0 }},
		{"headless without slots", func(c *Config) { c.Headless.MaxParallel = 0 }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "openai" }},
		{"gemini without key", func(c *Config) { c.LLM.Provider = ProviderGemini }},
		{"ollama without url", func(c *Config) { c.LLM = LLMConfig{Provider: ProviderOllama, Model: "mistral"} }},
		{"embedding without key", func(c *Config) { c.Embedding.Enabled = true }},
		{"local without dir", func(c *Config) { c.Storage.Backend = BackendLocal }},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = BackendGCS }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }},
		{"topic without project", func(c *Config) { c.PubSub.TopicName = "runs" }},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}
