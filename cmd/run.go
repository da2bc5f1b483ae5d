package cmd

import (
	"context"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	var seed string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a spider, index writers and the query API in one process",
		Long: `Starts the index writers and the HTTP API, then crawls from the seed URL.
Writers and API keep running after the crawl completes until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			logger := appInstance.Logger()
			cfg := appInstance.Config().Frontier
			if !cmd.Flags().Changed("seed") {
				seed = cfg.SeedURL
			}

			var wg sync.WaitGroup
			pool := appInstance.Dispatcher()
			wg.Add(1)
			go func() {
				defer wg.Done()
				pool.Run(ctx)
			}()

			if seed != "" {
				wg.Add(1)
				go func() {
					defer wg.Done()
					stats, err := appInstance.Frontier().Start(ctx, seed, cfg.MaxPages)
					if err != nil && !isShutdown(err) {
						logger.Error("spider stopped", zap.Error(err))
						return
					}
					logger.Info("spider finished",
						zap.Int("pages", stats.PagesCrawled),
						zap.Int("links_enqueued", stats.LinksEnqueued),
					)
				}()
			} else {
				logger.Info("no seed configured, serving existing index only")
			}

			err = serveHTTP(ctx, appInstance)
			cancel()
			wg.Wait()
			return err
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "seed URL (defaults to frontier.seed_url)")
	return cmd
}
