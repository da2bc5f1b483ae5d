package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run index writers until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			pool := appInstance.Dispatcher()
			appInstance.Logger().Info("index writers started", zap.Int("writers", pool.Size()))
			pool.Run(cmd.Context())
			appInstance.Logger().Info("index writers stopped")
			return nil
		},
	}
}
