package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue diagnostics",
	}
	queueCmd.AddCommand(newQueueHealthCommand(ctx))
	return queueCmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show queue counters and catalog database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withReader(cmd.Context(), func(reader catalogReader) error {
				health, err := reader.QueueHealth(cmd.Context())
				if err != nil {
					return err
				}
				db, err := reader.DatabaseHealth(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, map[string]any{
						"queue":    health,
						"database": db,
					})
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("Queue", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintf(stdout, "  Total %d, enqueued %d, running %d, failed %d, imported %d\n",
					health.Total, health.Enqueued, health.Running, health.Failed, health.Imported)
				if rows := buildStatsRows(health.ByStatus); len(rows) > 0 {
					fmt.Fprintln(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				}
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Database", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Path", statusInfo, db.DBPath, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Exists", statusKindFromPassed(db.DatabaseExists), yesNo(db.DatabaseExists), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Readable", statusKindFromPassed(db.DatabaseReadable), yesNo(db.DatabaseReadable), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Integrity", statusKindFromPassed(db.IntegrityCheck), yesNo(db.IntegrityCheck), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Schema", statusInfo, formatOrDash(db.SchemaVersion), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Rows", statusInfo, fmt.Sprintf("%d sessions, %d items", db.TotalSessions, db.TotalItems), colorize))
				if len(db.MissingTables) > 0 {
					fmt.Fprintln(stdout, renderStatusLine("Missing tables", statusError, strings.Join(db.MissingTables, ", "), colorize))
				}
				if strings.TrimSpace(db.Error) != "" {
					fmt.Fprintln(stdout, renderStatusLine("Error", statusError, db.Error, colorize))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit health data as JSON")
	return cmd
}
