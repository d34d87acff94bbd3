package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoreg-cli/internal/extract"
	"github.com/xkilldash9x/autoreg-cli/internal/mailbox"
	"github.com/xkilldash9x/autoreg-cli/internal/observability"
)

const previewLength = 300

func newMailboxCmd(a *app) *cobra.Command {
	mailboxCmd := &cobra.Command{
		Use:   "mailbox",
		Short: "Work with disposable mailboxes directly",
	}

	var (
		attempts int
		interval time.Duration
	)
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Create a mailbox, wait for mail and show what arrives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			out := cmd.OutOrStdout()

			if !cmd.Flags().Changed("attempts") {
				attempts = a.cfg.Mailbox.PollAttempts
			}
			if !cmd.Flags().Changed("interval") {
				interval = a.cfg.Mailbox.PollInterval
			}

			c := mailbox.NewClientFromConfig(a.cfg.Mailbox, logger)
			session, err := c.CreateAccount(ctx)
			if err != nil {
				return fmt.Errorf("failed to create mailbox: %w", err)
			}
			fmt.Fprintf(out, "Mailbox: %s\n", session.Address())
			fmt.Fprintf(out, "Polling %d times every %s...\n", attempts, interval)

			messages, err := session.CheckInbox(ctx, attempts, interval)
			if err != nil {
				return fmt.Errorf("inbox polling stopped: %w", err)
			}
			if len(messages) == 0 {
				fmt.Fprintln(out, "No messages arrived.")
				return nil
			}

			for i := range messages {
				msg := &messages[i]
				detail, err := session.GetMessageDetails(ctx, msg.ID)
				if err != nil {
					logger.Warn("Could not fetch message", zap.String("id", msg.ID), zap.Error(err))
					continue
				}
				printMessage(out, msg, detail)
			}
			return nil
		},
	}
	watchCmd.Flags().IntVar(&attempts, "attempts", mailbox.DefaultPollAttempts, "number of inbox checks")
	watchCmd.Flags().DurationVar(&interval, "interval", mailbox.DefaultPollInterval, "delay between inbox checks")

	mailboxCmd.AddCommand(watchCmd)
	return mailboxCmd
}

func printMessage(w io.Writer, msg *mailbox.Message, detail []byte) {
	fmt.Fprintf(w, "\n== %s\n", msg.Subject)
	fmt.Fprintf(w, "From: %s\n", msg.From.Address)
	fmt.Fprintf(w, "Confirmation email: %t\n", extract.IsConfirmationEmail(msg))

	payload := extract.ParsePayload(detail)
	if body, ok := extract.ResolveBody(payload); ok {
		fmt.Fprintf(w, "Preview: %s\n", extract.TextPreview(body, previewLength))
		for _, href := range extract.Anchors(body) {
			fmt.Fprintf(w, "  link: %s\n", href)
		}
	}
	if link, ok := extract.ExtractConfirmationLink(payload); ok {
		fmt.Fprintf(w, "Confirmation link: %s\n", link)
	}
}
