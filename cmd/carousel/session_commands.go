package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"carousel/internal/ipc"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage import sessions",
	}

	sessionsCmd.AddCommand(newSessionsListCommand(ctx))
	sessionsCmd.AddCommand(newSessionsShowCommand(ctx))
	sessionsCmd.AddCommand(newSessionsAddCommand(ctx))
	sessionsCmd.AddCommand(newSessionsCancelCommand(ctx))
	sessionsCmd.AddCommand(newSessionsRetryCommand(ctx))
	sessionsCmd.AddCommand(newSessionsValidateCommand(ctx))

	return sessionsCmd
}

func newSessionsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List import sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withReader(cmd.Context(), func(reader catalogReader) error {
				sessions, err := reader.Sessions(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, sessions)
				}
				stdout := cmd.OutOrStdout()
				if len(sessions) == 0 {
					fmt.Fprintln(stdout, "No sessions found")
					return nil
				}
				rows := make([][]string, 0, len(sessions))
				for _, session := range sessions {
					rows = append(rows, []string{
						strconv.FormatInt(session.ID, 10),
						session.Provider,
						truncate(sessionLabel(session.Label, session.PickerSessionID), 40),
						formatStatusLabel(session.Status),
						fmt.Sprintf("%d/%d", session.Imported, session.Total),
						strconv.Itoa(session.Failed),
						formatAge(session.CreatedAt),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"ID", "Provider", "Label", "Status", "Imported", "Failed", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by session status (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit sessions as JSON")
	return cmd
}

func newSessionsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one session with its items and audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withReader(cmd.Context(), func(reader catalogReader) error {
				detail, err := reader.SessionDetail(cmd.Context(), id)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, detail)
				}

				stdout := cmd.OutOrStdout()
				session := detail.Session
				fmt.Fprintf(stdout, "Session %d (%s)\n", session.ID, session.Provider)
				fmt.Fprintf(stdout, "  Label:    %s\n", formatOrDash(sessionLabel(session.Label, session.PickerSessionID)))
				fmt.Fprintf(stdout, "  Status:   %s\n", formatStatusLabel(session.Status))
				fmt.Fprintf(stdout, "  Counts:   total %d, imported %d, dup %d, failed %d, expired %d, skipped %d\n",
					session.Total, session.Imported, session.Dup, session.Failed, session.Expired, session.Skipped)
				fmt.Fprintf(stdout, "  Created:  %s\n", formatTime(session.CreatedAt))
				fmt.Fprintf(stdout, "  Finished: %s\n", formatOptionalTime(session.FinishedAt))
				if session.ErrorMessage != "" {
					fmt.Fprintf(stdout, "  Error:    %s\n", session.ErrorMessage)
				}

				if len(detail.Items) > 0 {
					rows := make([][]string, 0, len(detail.Items))
					for _, item := range detail.Items {
						rows = append(rows, []string{
							strconv.FormatInt(item.ID, 10),
							truncate(item.FileName, 40),
							formatBytes(item.ByteSize),
							formatStatusLabel(item.Status),
							strconv.Itoa(item.Attempts),
							truncate(item.ErrorMessage, 40),
						})
					}
					fmt.Fprintln(stdout)
					fmt.Fprintln(stdout, renderTable(
						[]string{"ID", "File", "Size", "Status", "Attempts", "Error"},
						rows,
						[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
					))
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
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit session detail as JSON")
	return cmd
}

func newSessionsAddCommand(ctx *commandContext) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "add <picker-session-id>",
		Short: "Register a remote picker session for import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pickerSessionID := strings.TrimSpace(args[0])
			if pickerSessionID == "" {
				return fmt.Errorf("picker session id is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionAdd(pickerSessionID, label)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %d registered, awaiting expansion\n", resp.Session.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Human-readable session label")
	return cmd
}

func newSessionsCancelCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a session and skip its waiting items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.SessionCancel(id, reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %d canceled\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit trail")
	return cmd
}

func newSessionsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Re-open a failed session and requeue its failed items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionRetry(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %d re-opened, %d items requeued\n", id, resp.Requeued)
				return nil
			})
		},
	}
}

func newSessionsValidateCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "validate <id>",
		Short: "Cross-check a session's status against its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withReader(cmd.Context(), func(reader catalogReader) error {
				report, err := reader.ValidateSession(cmd.Context(), id)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, report)
				}
				stdout := cmd.OutOrStdout()
				if report.Consistent {
					fmt.Fprintf(stdout, "Session %d is consistent (%s)\n", id, formatStatusLabel(report.SessionStatus))
					return nil
				}
				fmt.Fprintf(stdout, "Session %d has %d issue(s):\n", id, len(report.Issues))
				for _, issue := range report.Issues {
					fmt.Fprintf(stdout, "  [%s] %s\n", issue.Code, issue.Detail)
				}
				for _, rec := range report.Recommendations {
					fmt.Fprintf(stdout, "  -> %s\n", rec)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the report as JSON")
	return cmd
}

func sessionLabel(label, pickerSessionID string) string {
	if strings.TrimSpace(label) != "" {
		return label
	}
	return pickerSessionID
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}
