// Package cli provides the sercha-rag command line interface.
package cli

import (
	"context"
	"errors"
	"sync"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
	"github.com/custodia-labs/sercha-rag/internal/logger"
	"github.com/custodia-labs/sercha-rag/internal/ratelimit"
)

// version is set at build time.
var version = "dev"

// App is the wired application the commands operate on.
type App struct {
	Config    *domain.Config
	Ingestion driving.IngestionService
	Query     driving.QueryService
	Limiter   *ratelimit.Limiter

	// Scheduler runs background maintenance while a server is up.
	Scheduler *services.Scheduler
}

// Bootstrap wires the application from the config file at configPath.
// The returned cleanup closes every component.
type Bootstrap func(ctx context.Context, configPath string) (*App, func(), error)

// Options configures Execute.
type Options struct {
	Version string

	// Bootstrap builds the application on first use.
	Bootstrap Bootstrap

	// OpenConfig opens the config store at path ("" selects the default).
	OpenConfig func(path string) (driven.ConfigStore, error)

	// CheckProviders pings the configured model providers.
	CheckProviders func(cfg *domain.Config) error
}

var (
	configPath string
	verbose    bool

	bootstrap      Bootstrap
	openConfig     func(path string) (driven.ConfigStore, error)
	checkProviders func(cfg *domain.Config) error

	appOnce    sync.Once
	app        *App
	appErr     error
	appCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "sercha-rag",
	Short: "Hybrid retrieval over policy documents",
	Long: `sercha-rag ingests policy documents, indexes them for keyword and
semantic search, and answers questions grounded in the indexed text.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.sercha-rag/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command and closes the application afterwards.
func Execute(ctx context.Context, opts Options) error {
	if opts.Version != "" {
		version = opts.Version
	}
	bootstrap = opts.Bootstrap
	openConfig = opts.OpenConfig
	checkProviders = opts.CheckProviders

	defer func() {
		if appCleanup != nil {
			appCleanup()
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

// loadApp bootstraps the application once per process.
func loadApp(cmd *cobra.Command) (*App, error) {
	appOnce.Do(func() {
		if app != nil {
			return
		}
		if bootstrap == nil {
			appErr = errors.New("application not configured")
			return
		}
		app, appCleanup, appErr = bootstrap(cmd.Context(), configPath)
	})
	return app, appErr
}

// startMaintenance runs the scheduler until the command's context ends.
func startMaintenance(cmd *cobra.Command, a *App) {
	if a.Scheduler == nil {
		return
	}
	go func() {
		_ = a.Scheduler.Start(cmd.Context())
	}()
}

func queryService(cmd *cobra.Command) (driving.QueryService, error) {
	a, err := loadApp(cmd)
	if err != nil {
		return nil, err
	}
	if a.Query == nil {
		return nil, errors.New("query service not configured")
	}
	return a.Query, nil
}

func ingestionService(cmd *cobra.Command) (driving.IngestionService, error) {
	a, err := loadApp(cmd)
	if err != nil {
		return nil, err
	}
	if a.Ingestion == nil {
		return nil, errors.New("ingestion service not configured")
	}
	return a.Ingestion, nil
}
