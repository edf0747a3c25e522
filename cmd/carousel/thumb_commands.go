package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"carousel/internal/ipc"
)

func newThumbsCommand(ctx *commandContext) *cobra.Command {
	thumbsCmd := &cobra.Command{
		Use:   "thumbs",
		Short: "Inspect and manage thumbnail retries",
	}

	thumbsCmd.AddCommand(newThumbsListCommand(ctx))
	thumbsCmd.AddCommand(newThumbsRetryCommand(ctx))

	return thumbsCmd
}

func newThumbsListCommand(ctx *commandContext) *cobra.Command {
	var disabledOnly bool
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List thumbnail retry records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withReader(cmd.Context(), func(reader catalogReader) error {
				retries, err := reader.ThumbRetries(cmd.Context(), disabledOnly)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, retries)
				}
				stdout := cmd.OutOrStdout()
				if len(retries) == 0 {
					fmt.Fprintln(stdout, "No thumbnail retries recorded")
					return nil
				}
				rows := make([][]string, 0, len(retries))
				for _, retry := range retries {
					pending := "-"
					if retry.PendingJobID != "" {
						pending = retry.PendingJobID
					}
					rows = append(rows, []string{
						strconv.FormatInt(retry.MediaID, 10),
						strconv.Itoa(retry.Attempts),
						yesNo(retry.Disabled),
						truncate(pending, 36),
						truncate(formatOrDash(retry.Blockers), 40),
						formatAge(retry.UpdatedAt),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Media", "Attempts", "Disabled", "Pending Job", "Blockers", "Updated"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&disabledOnly, "disabled", false, "Show only records past their retry budget")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit records as JSON")
	return cmd
}

func newThumbsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <media-id>",
		Short: "Force-schedule a thumbnail job for one media row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mediaID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ThumbRetry(mediaID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Media %d: %s\n", mediaID, resp.Outcome)
				return nil
			})
		},
	}
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through the configured notifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.TestNotification(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
				return nil
			})
		},
	}
}
