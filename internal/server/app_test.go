package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/professor-crawler/internal/config"
	"github.com/JakeFAU/professor-crawler/internal/router"
	"github.com/JakeFAU/professor-crawler/internal/runs"
)

const testCatalog = `{
  "University of Ottawa": {"Faculty of Law": "https://www.uottawa.ca/law/people"},
  "Unknown College": {"Faculty of Arts": "https://unknown.example/arts"}
}`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "universities.json")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o600))

	return config.Config{
		Directory: config.DirectoryConfig{Path: path},
		Fetch:     config.FetchConfig{UserAgent: "test", TimeoutSeconds: 1},
		LLM:       config.LLMConfig{Provider: config.ProviderNone},
		Storage:   config.StorageConfig{Backend: config.BackendLocal, BaseDir: filepath.Join(dir, "out")},
		Server:    config.ServerConfig{Port: 8080, QueueDepth: 4},
	}
}

func TestBuildMinimal(t *testing.T) {
	t.Parallel()

	app, err := Build(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	require.Equal(t, []string{"University of Ottawa", "Unknown College"}, app.Catalog().Names())
	require.NotNil(t, app.Logger())
	require.Nil(t, app.browser)
	require.Nil(t, app.fallback)
	require.Nil(t, app.store)
}

func TestBuildRejectsMissingCatalog(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Directory.Path = filepath.Join(t.TempDir(), "missing.json")
	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestCrawlRejectsBadRequests(t *testing.T) {
	t.Parallel()

	app, err := Build(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(app.Close)
	ctx := context.Background()

	_, err = app.Crawl(ctx, runs.Request{University: "Nowhere Polytechnic"})
	require.ErrorIs(t, err, runs.ErrUnknownUniversity)

	_, err = app.Crawl(ctx, runs.Request{University: "Unknown College"})
	require.ErrorIs(t, err, router.ErrUnsupportedUniversity)

	_, err = app.Crawl(ctx, runs.Request{University: "University of Ottawa", Persist: true})
	require.ErrorIs(t, err, runs.ErrPersistenceDisabled)
}

func TestOperationsWithoutDatabaseOrLLM(t *testing.T) {
	t.Parallel()

	app, err := Build(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(app.Close)
	ctx := context.Background()

	_, err = app.EmbedInterests(ctx, "University of Ottawa")
	require.ErrorIs(t, err, ErrNoDatabase)
	_, err = app.SyncUniversities(ctx)
	require.ErrorIs(t, err, ErrNoDatabase)
	_, err = app.StoredUniversities(ctx)
	require.ErrorIs(t, err, ErrNoDatabase)
	_, err = app.Professors(ctx, "")
	require.ErrorIs(t, err, ErrNoDatabase)
	_, err = app.ExtractMany(ctx, []string{"https://www.uottawa.ca/law/ada"})
	require.ErrorIs(t, err, ErrNoLLM)
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Server.Port = 0
	app, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, app.Serve(ctx))
}

func TestBuildWithProgress(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Progress = config.ProgressConfig{Enabled: true, LogEnabled: true}
	app, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)

	require.NotNil(t, app.hub)
	require.NotNil(t, app.tally)
	_, ok := app.tally.Snapshot("missing")
	require.False(t, ok)
	app.Close()
}
