package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSpiderCmd() *cobra.Command {
	var (
		seed     string
		maxPages int
	)
	cmd := &cobra.Command{
		Use:   "spider",
		Short: "Crawl from a seed URL, feeding discovered links to the queue",
		Long: `Enqueues the seed URL, then claims URLs from the shared queue, fetches
them, enqueues unseen outbound links and stops after max-pages pages.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config().Frontier
			if !cmd.Flags().Changed("seed") {
				seed = cfg.SeedURL
			}
			if !cmd.Flags().Changed("max-pages") {
				maxPages = cfg.MaxPages
			}

			stats, err := appInstance.Frontier().Start(cmd.Context(), seed, maxPages)
			appInstance.Logger().Info("spider finished",
				zap.Int("pages", stats.PagesCrawled),
				zap.Int("links_enqueued", stats.LinksEnqueued),
				zap.Int("fetch_failures", stats.FetchFailures),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Crawled %d pages, enqueued %d links.\n", stats.PagesCrawled, stats.LinksEnqueued)
			if err != nil && !isShutdown(err) {
				return fmt.Errorf("spider: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "seed URL (defaults to frontier.seed_url)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "pages to crawl before stopping (defaults to frontier.max_pages)")
	return cmd
}
