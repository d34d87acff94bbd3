package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoreg-cli/internal/monitoring"
	"github.com/xkilldash9x/autoreg-cli/internal/observability"
	"github.com/xkilldash9x/autoreg-cli/internal/provision"
	"github.com/xkilldash9x/autoreg-cli/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose account provisioning over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := a.cfg

			metrics := monitoring.NewMetrics(nil)
			attempter, err := newAttempter(cfg, logger, metrics)
			if err != nil {
				return fmt.Errorf("failed to initialize provisioning: %w", err)
			}
			repo, err := openStore(ctx, cfg.Store, logger)
			if err != nil {
				return fmt.Errorf("failed to open result store: %w", err)
			}
			if repo != nil {
				defer func() {
					if err := repo.Close(); err != nil {
						logger.Warn("Failed to close result store", zap.Error(err))
					}
				}()
			}

			srv := server.New(server.Dependencies{
				Config:      cfg.Server,
				Provisioner: provision.NewRunner(attempter, cfg.Provision, repo, logger),
				Repository:  repo,
				Metrics:     metrics,
				Logger:      logger,
			})
			return srv.ListenAndServe(ctx)
		},
	}

	serveCmd.Flags().String("addr", "", "listen address (default :3001)")
	_ = a.v.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	return serveCmd
}
