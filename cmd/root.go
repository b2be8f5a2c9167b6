// Package cmd defines and implements the CLI commands for the flightfares
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/flight-fare-crawler/internal/app"
	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
	"github.com/JakeFAU/flight-fare-crawler/internal/config"
	"github.com/JakeFAU/flight-fare-crawler/internal/logging"
	"github.com/JakeFAU/flight-fare-crawler/internal/runner"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

const closeTimeout = 15 * time.Second

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Close(ctx context.Context)
	Logger() *zap.Logger
	RunBatch(ctx context.Context, req batch.Request, overrides batch.PolicyOverrides, opts runner.RunOptions) (runner.Outcome, error)
	Serve(ctx context.Context) error
}

// runtime is what PersistentPreRunE leaves in the command context.
type runtime struct {
	app App
	cfg config.Config
}

// newApp is the application factory. It's a variable so we can
// replace it with a fake factory in our tests.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command. The returned func
// closes the application once the command has finished, whether or not it
// failed.
func newRootCmd() (*cobra.Command, func()) {
	var cfgFile string
	state := &runtime{}

	cmd := &cobra.Command{
		Use:   "flightfares",
		Short: "Batch scraper for round-trip flight fares.",
		Long: `flightfares searches round-trip itineraries for a batch of destinations,
dates and cabins, ranks the results by how far each fare sits below its
typical price, and writes them to a file, GCS, or Postgres.

Run a single batch with "scrape" or start the HTTP service with "serve".`,
		SilenceUsage: true,

		// This hook runs BEFORE the subcommand's RunE and builds the
		// application from config.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotenv(""); err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			state.app, state.cfg = appInstance, cfg
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, state))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, /etc/flightfares, $HOME/.flightfares)")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newServeCmd())

	shutdown := func() {
		if state.app == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		state.app.Close(ctx)
		_ = state.app.Logger().Sync()
		state.app = nil
	}
	return cmd, shutdown
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(appKey).(*runtime)
	if !ok || rt == nil || rt.app == nil {
		return nil, errors.New("application not initialized")
	}
	return rt, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context; a running batch still finishes with every task accounted for.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, shutdown := newRootCmd()
	err := root.ExecuteContext(ctx)
	shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "flightfares: %v\n", err)
		stop()
		os.Exit(1)
	}
}
