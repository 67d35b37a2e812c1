package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create and restore database snapshots",
	}

	cmd.AddCommand(newBackupCreateCmd(), newBackupRestoreCmd())

	return cmd
}

func newBackupCreateCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Snapshot the inventory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(d *Deps) error {
				path, err := d.Backups.HandleCreate(cmd.Context(), reason)
				if err != nil {
					return fmt.Errorf("creating snapshot: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Snapshot: %s\n", path)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "manual", "Reason included in the file name")

	return cmd
}

func newBackupRestoreCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <path>",
		Short: "Replace the inventory with a snapshot",
		Long:  "Replaces every inventory collection with the snapshot's contents. The operations log is kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force && !confirmAction(cmd.InOrStdin(), cmd.OutOrStdout(), "Replace the whole inventory with "+args[0]+"?") {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
			return withDeps(cmd, func(d *Deps) error {
				if err := d.Backups.HandleRestore(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}
