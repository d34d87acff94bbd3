package cmd

import (
	"fmt"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/autoreg-cli/internal/config"
	"github.com/xkilldash9x/autoreg-cli/internal/observability"
	"github.com/xkilldash9x/autoreg-cli/internal/provision"
	"github.com/xkilldash9x/autoreg-cli/internal/store"
)

// Overridable in tests.
var (
	newAttempter = func(cfg *config.Config, logger *zap.Logger, rec provision.Recorder) (provision.Attempter, error) {
		o, err := provision.NewFromConfig(cfg, logger, rec)
		if err != nil {
			return nil, err
		}
		return o, nil
	}
	openStore = store.Open
)

func newProvisionCmd(a *app) *cobra.Command {
	var (
		count   int
		noStore bool
	)

	provisionCmd := &cobra.Command{
		Use:   "provision",
		Short: "Create and confirm accounts, printing each result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := a.cfg
			if noStore {
				cfg.Store.Type = "none"
			}

			attempter, err := newAttempter(cfg, logger, nil)
			if err != nil {
				return fmt.Errorf("failed to initialize provisioning: %w", err)
			}
			repo, err := openStore(ctx, cfg.Store, logger)
			if err != nil {
				return fmt.Errorf("failed to open result store: %w", err)
			}
			if repo != nil {
				defer repo.Close()
			}

			runner := provision.NewRunner(attempter, cfg.Provision, repo, logger)
			results := make([]provision.Result, count)

			var g errgroup.Group
			for i := range results {
				g.Go(func() error {
					res, err := runner.Run(ctx)
					if err != nil {
						res = provision.Failed(err.Error())
					}
					results[i] = res
					return nil
				})
			}
			_ = g.Wait()

			var out interface{} = results
			if count == 1 {
				out = results[0]
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode results: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))

			failed := 0
			for _, r := range results {
				if !r.Success {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d provisioning attempts failed", failed, count)
			}
			return nil
		},
	}

	provisionCmd.Flags().IntVarP(&count, "count", "n", 1, "number of accounts to create")
	provisionCmd.Flags().BoolVar(&noStore, "no-store", false, "do not persist results")
	provisionCmd.Flags().Bool("headful", false, "show the browser window")
	provisionCmd.Flags().String("output-dir", "", "directory for result files")
	provisionCmd.Flags().String("url", "", "registration page to drive")

	_ = a.v.BindPFlag("store.output_dir", provisionCmd.Flags().Lookup("output-dir"))
	_ = a.v.BindPFlag("target.registration_url", provisionCmd.Flags().Lookup("url"))
	provisionCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("headful") {
			headful, _ := cmd.Flags().GetBool("headful")
			a.cfg.Browser.Headless = !headful
		}
		return nil
	}
	return provisionCmd
}
