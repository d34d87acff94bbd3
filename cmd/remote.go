package cmd

import (
	"fmt"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/autoreg-cli/internal/client"
	"github.com/xkilldash9x/autoreg-cli/internal/observability"
)

func newRemoteCmd(a *app) *cobra.Command {
	remoteCmd := &cobra.Command{
		Use:   "remote",
		Short: "Talk to a running autoreg service",
	}
	remoteCmd.PersistentFlags().String("url", "", "service base URL (default http://localhost:3001)")
	_ = a.v.BindPFlag("remote.base_url", remoteCmd.PersistentFlags().Lookup("url"))

	newClient := func() *client.Client {
		return client.NewFromConfig(a.cfg.Remote, observability.GetLogger())
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Check that the service is up and answers CORS probes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			out := cmd.OutOrStdout()
			if !c.CheckStatus(cmd.Context()) {
				return fmt.Errorf("service at %s is offline", c.BaseURL())
			}
			fmt.Fprintf(out, "Service at %s is online\n", c.BaseURL())
			if c.TestCORS(cmd.Context()) {
				fmt.Fprintln(out, "CORS is configured")
			} else {
				fmt.Fprintln(out, "CORS probe failed")
			}
			return nil
		},
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Ask the service to create and confirm one account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			errOut := cmd.ErrOrStderr()
			if !c.CheckStatus(cmd.Context()) {
				return fmt.Errorf("service at %s is offline", c.BaseURL())
			}

			fmt.Fprintln(errOut, "Creating account, this can take several minutes...")
			res := c.CreateAccount(cmd.Context())

			data, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			if !res.Success {
				return fmt.Errorf("account creation failed: %s", res.Error)
			}
			fmt.Fprintf(errOut, "Account %s created and confirmed\n", res.AccountInfo.Email)
			return nil
		},
	}

	remoteCmd.AddCommand(statusCmd, createCmd)
	return remoteCmd
}
