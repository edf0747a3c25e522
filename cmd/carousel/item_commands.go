package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"carousel/internal/ipc"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	itemsCmd := &cobra.Command{
		Use:   "items",
		Short: "Inspect and manage individual import items",
	}

	itemsCmd.AddCommand(newItemsListCommand(ctx))
	itemsCmd.AddCommand(newItemsShowCommand(ctx))
	itemsCmd.AddCommand(newItemsRetryCommand(ctx))
	itemsCmd.AddCommand(newItemsSkipCommand(ctx))

	return itemsCmd
}

func newItemsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List import items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withReader(cmd.Context(), func(reader catalogReader) error {
				items, err := reader.Items(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, items)
				}
				stdout := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(stdout, "No items found")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						strconv.FormatInt(item.SessionID, 10),
						truncate(item.FileName, 40),
						formatBytes(item.ByteSize),
						formatStatusLabel(item.Status),
						strconv.Itoa(item.Attempts),
						formatAge(item.EnqueuedAt),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"ID", "Session", "File", "Size", "Status", "Attempts", "Enqueued"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by item status (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit items as JSON")
	return cmd
}

func newItemsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one item and its audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withReader(cmd.Context(), func(reader catalogReader) error {
				detail, err := reader.Item(cmd.Context(), id)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, detail)
				}

				stdout := cmd.OutOrStdout()
				item := detail.Item
				fmt.Fprintf(stdout, "Item %d (session %d)\n", item.ID, item.SessionID)
				fmt.Fprintf(stdout, "  File:     %s\n", formatOrDash(item.FileName))
				fmt.Fprintf(stdout, "  Source:   %s\n", formatOrDash(item.SourceRef))
				fmt.Fprintf(stdout, "  Size:     %s\n", formatBytes(item.ByteSize))
				fmt.Fprintf(stdout, "  Status:   %s\n", formatStatusLabel(item.Status))
				fmt.Fprintf(stdout, "  Attempts: %d\n", item.Attempts)
				fmt.Fprintf(stdout, "  Enqueued: %s\n", formatTime(item.EnqueuedAt))
				fmt.Fprintf(stdout, "  Started:  %s\n", formatOptionalTime(item.StartedAt))
				fmt.Fprintf(stdout, "  Finished: %s\n", formatOptionalTime(item.FinishedAt))
				if item.LockedBy != "" {
					fmt.Fprintf(stdout, "  Worker:   %s\n", item.LockedBy)
				}
				if item.MediaID != nil {
					fmt.Fprintf(stdout, "  Media:    %d\n", *item.MediaID)
				}
				if item.ErrorMessage != "" {
					fmt.Fprintf(stdout, "  Error:    %s\n", item.ErrorMessage)
				}

				if len(detail.Transitions) > 0 {
					fmt.Fprintln(stdout)
					fmt.Fprintln(stdout, "History:")
					for _, tr := range detail.Transitions {
						printTransition(stdout, tr)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit item detail as JSON")
	return cmd
}

func newItemsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Requeue one failed item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ItemRetry(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d requeued\n", id)
				return nil
			})
		},
	}
}

func newItemsSkipCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "skip <id>",
		Short: "Skip one waiting item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ItemSkip(id, reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d skipped\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit trail")
	return cmd
}

func printTransition(w io.Writer, tr ipc.Transition) {
	note := ""
	if tr.Reason != "" {
		note = "  " + tr.Reason
	}
	if tr.Forced {
		note += "  (forced)"
	}
	fmt.Fprintf(w, "  %s  %s -> %s%s\n", formatTime(tr.CreatedAt), tr.FromStatus, tr.ToStatus, note)
}
