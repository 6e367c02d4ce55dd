package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/config"
	"github.com/JakeFAU/professor-crawler/internal/logging"
	"github.com/JakeFAU/professor-crawler/internal/pipeline"
	"github.com/JakeFAU/professor-crawler/internal/professor"
	"github.com/JakeFAU/professor-crawler/internal/runs"
	"github.com/JakeFAU/professor-crawler/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use.
// Tests swap in a fake through newApp.
type App interface {
	Logger() *zap.Logger
	Catalog() *pipeline.Catalog
	Crawl(ctx context.Context, req runs.Request) (runs.Run, error)
	EmbedInterests(ctx context.Context, university string) (professor.BatchReport, error)
	SyncUniversities(ctx context.Context) (int, error)
	StoredUniversities(ctx context.Context) ([]professor.University, error)
	Professors(ctx context.Context, university string) ([]professor.StoredProfessor, error)
	ExtractMany(ctx context.Context, urls []string) (map[string][]string, error)
	Serve(ctx context.Context) error
	Close()
}

// newApp is the application factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return server.Build(ctx, cfg, logger)
}

// rootCmd owns the App built for the running command so it can be closed on
// every exit path. Cobra skips post-run hooks when RunE fails.
type rootCmd struct {
	*cobra.Command
	app App
}

func newRootCmd() *rootCmd {
	var cfgFile string
	root := &rootCmd{}
	root.Command = &cobra.Command{
		Use:   "profcrawler",
		Short: "Extracts professor research interests from university staff directories.",
		Long: `profcrawler walks the faculty and department directories configured for a
university, extracts each professor's name, email and research interests,
and can persist the results to Postgres with vector embeddings.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyFlagOverrides(cmd, &cfg)

			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			root.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd := root.Command
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML or JSON); PROFCRAWLER_* env vars override it")

	cmd.AddCommand(
		newCrawlCmd(),
		newEmbedCmd(),
		newUniversitiesCmd(),
		newProfessorsCmd(),
		newExtractCmd(),
		newServeCmd(),
	)
	return root
}

// execute runs the command tree and closes the App whether or not the
// command succeeded.
func (r *rootCmd) execute(ctx context.Context) error {
	defer r.close()
	return r.ExecuteContext(ctx)
}

func (r *rootCmd) close() {
	if r.app == nil {
		return
	}
	r.app.Close()
	_ = r.app.Logger().Sync()
	r.app = nil
}

// applyFlagOverrides lets command flags take precedence over loaded config.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if out, err := cmd.Flags().GetString("out"); err == nil && out != "" {
		cfg.Storage.Backend = config.BackendLocal
		cfg.Storage.BaseDir = out
	}
	if port, err := cmd.Flags().GetInt("port"); err == nil && port > 0 {
		cfg.Server.Port = port
	}
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().execute(context.Background()); err != nil {
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
