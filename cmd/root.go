// Package cmd implements the nexus CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/nexus-search/internal/app"
	"github.com/JakeFAU/nexus-search/internal/config"
	"github.com/JakeFAU/nexus-search/internal/logging"
)

type appKeyType string

const appKey appKeyType = "app"

// newApp builds the service container. Tests swap it to inject loggers.
var newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
	logger, err := logging.NewWithLevel(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "nexus",
		Short: "A distributed crawler and keyword index.",
		Long: `nexus crawls pages from a seed URL through a shared work queue, indexes
each page's vocabulary by term frequency and answers keyword queries from
the shared index. Spiders, index workers and the query API can run as
separate processes or together with "nexus run".`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (NEXUS_* environment variables override it)")

	cmd.AddCommand(
		newSpiderCmd(),
		newWorkerCmd(),
		newSearchCmd(),
		newServeCmd(),
		newRunCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the CLI until it finishes or the process is signalled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger, lerr := logging.New(false)
		if lerr != nil {
			fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
			os.Exit(1)
		}
		stop()
		logger.Fatal("command execution failed", zap.Error(err))
	}
}

// isShutdown reports whether err only signals that the process is stopping.
func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
