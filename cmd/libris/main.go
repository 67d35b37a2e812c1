// Package main provides the entry point for the libris CLI application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version     = "0.1.0-dev"
	globalActor string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "libris",
		Short:         "Library inventory with an operations log and undo",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&globalActor, "actor", "", "Actor recorded on log records (default: $LIBRIS_ACTOR, config, or OS user)")

	rootCmd.AddCommand(
		newInitCmd(),
		newCreateCmd(),
		newUpdateCmd(),
		newDeleteCmd(),
		newListCmd(),
		newShowCmd(),
		newLogCmd(),
		newBackupCmd(),
	)

	return rootCmd
}
