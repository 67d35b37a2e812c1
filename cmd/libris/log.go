package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ersonp/libris/internal/application/handlers"
	"github.com/ersonp/libris/internal/domain/entities"
	"github.com/ersonp/libris/internal/domain/ports"
)

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Browse and revert the operations log",
	}

	cmd.AddCommand(
		newLogListCmd(),
		newLogShowCmd(),
		newLogRevertCmd(),
	)

	return cmd
}

func newLogListCmd() *cobra.Command {
	var (
		operation string
		kind      string
		actor     string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List log records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ports.LogFilter{
				EntityKind: kind,
				ActorID:    actor,
				Limit:      limit,
			}
			if operation != "" {
				op, err := entities.ParseOperation(operation)
				if err != nil {
					return err
				}
				filter.Operation = op
			}

			return withDeps(cmd, func(d *Deps) error {
				summaries, err := d.Logs.HandleList(cmd.Context(), filter)
				if err != nil {
					return fmt.Errorf("listing log records: %w", err)
				}

				out := cmd.OutOrStdout()
				if len(summaries) == 0 {
					fmt.Fprintln(out, "No log records found.")
					return nil
				}
				for _, s := range summaries {
					displaySummary(out, s)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&operation, "operation", "o", "", "Filter by operation (CREATE, UPDATE, ...)")
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Filter by object kind")
	cmd.Flags().StringVar(&actor, "by", "", "Filter by actor")
	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultLogLimit, "Maximum number of records to display")

	return cmd
}

func displaySummary(out io.Writer, s handlers.LogSummary) {
	marker := " "
	if s.RevertedBy != "" {
		marker = "R"
	}
	fmt.Fprintf(out, "%s %s  %s  %s\n", marker, s.ID, s.CreatedAt.Local().Format(time.DateTime), s.Summary)
	if s.ActorID != "" || s.Reason != "" {
		fmt.Fprintf(out, "    by %s", formatValue(s.ActorID))
		if s.Reason != "" {
			fmt.Fprintf(out, ": %s", s.Reason)
		}
		fmt.Fprintln(out)
	}
}

func newLogShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one log record in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(d *Deps) error {
				rec, err := d.Logs.HandleShow(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				displayRecord(cmd.OutOrStdout(), rec)
				return nil
			})
		},
	}
}

func displayRecord(out io.Writer, rec *entities.LogRecord) {
	s := handlers.Summarize(rec)
	fmt.Fprintf(out, "ID:        %s\n", rec.ID)
	fmt.Fprintf(out, "Time:      %s\n", rec.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "Operation: %s\n", rec.Operation)
	fmt.Fprintf(out, "Summary:   %s\n", s.Summary)
	fmt.Fprintf(out, "Actor:     %s\n", formatValue(rec.ActorID))
	if rec.Details.Reason != "" {
		fmt.Fprintf(out, "Reason:    %s\n", rec.Details.Reason)
	}
	if rec.HasSnapshot() {
		fmt.Fprintf(out, "Snapshot:  %s\n", rec.SnapshotRef)
	}
	if rec.IsReverted() {
		fmt.Fprintf(out, "Reverted:  by %s\n", rec.Details.RevertedBy)
	}

	if len(rec.Details.FieldChanges) > 0 {
		fmt.Fprintln(out, "Changes:")
		for _, name := range sortedKeys(rec.Details.FieldChanges) {
			c := rec.Details.FieldChanges[name]
			fmt.Fprintf(out, "  %s: %s -> %s\n", name, formatValue(c.Old), formatValue(c.New))
		}
	}
	if len(rec.Details.DeletedObject) > 0 {
		fmt.Fprintln(out, "Deleted state:")
		for _, name := range sortedKeys(rec.Details.DeletedObject) {
			fmt.Fprintf(out, "  %s: %s\n", name, formatValue(rec.Details.DeletedObject[name]))
		}
	}
	if len(rec.Details.ObjectsRepr) > 0 {
		fmt.Fprintf(out, "Objects (%d):\n", len(rec.Details.ObjectsRepr))
		for _, id := range sortedKeys(rec.Details.ObjectsRepr) {
			fmt.Fprintf(out, "  %s  %s\n", id, rec.Details.ObjectsRepr[id])
		}
	}
}

func newLogRevertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revert <id>",
		Short: "Undo the operation a log record documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(d *Deps) error {
				res, err := d.Logs.HandleRevert(cmd.Context(), args[0], d.Actor)
				if err != nil {
					var failed *handlers.RevertFailedError
					if errors.As(err, &failed) {
						d.Logger.Debug("revert failed", "record", args[0], "cause", failed.Err)
					}
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				return nil
			})
		},
	}
}
