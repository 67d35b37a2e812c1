package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/ersonp/libris/internal/application/handlers"
	"github.com/ersonp/libris/internal/domain/services"
	"github.com/ersonp/libris/internal/infrastructure/backup"
	"github.com/ersonp/libris/internal/infrastructure/config"
	"github.com/ersonp/libris/internal/infrastructure/logger"
	"github.com/ersonp/libris/internal/infrastructure/metrics"
	"github.com/ersonp/libris/internal/infrastructure/relationaldb/sqlite"
)

// Deps holds high-level dependencies for commands.
// Only handlers are exposed - services and repositories are internal.
type Deps struct {
	Config    *config.Config
	Logger    *slog.Logger
	Actor     string
	Inventory *handlers.InventoryHandler
	Logs      *handlers.LogHandler
	Backups   *handlers.BackupHandler
}

// withDeps loads config and builds dependencies, then calls the provided
// function. It handles cleanup and writes the metrics textfile afterwards.
func withDeps(cmd *cobra.Command, fn func(*Deps) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.New(cfg.Log, cmd.ErrOrStderr())
	m := metrics.New()

	repo, err := sqlite.NewRepository(cfg.SQLite)
	if err != nil {
		return fmt.Errorf("creating sqlite repository: %w", err)
	}
	defer repo.Close()

	// Ensure schema exists
	if err := repo.EnsureSchema(cmd.Context()); err != nil {
		return fmt.Errorf("ensuring sqlite schema: %w", err)
	}

	facility, err := backup.NewFacility(repo, cfg.Backup, log, m)
	if err != nil {
		return fmt.Errorf("creating snapshot facility: %w", err)
	}
	defer facility.Close()

	oplog := services.NewOperationLog(repo, log, m)
	reverter := services.NewReverter(repo, oplog, facility,
		services.RevertOptions{SnapshotEveryRevert: cfg.Revert.SnapshotEveryRevert}, log, m)

	deps := &Deps{
		Config:    cfg,
		Logger:    log,
		Actor:     resolveActor(cfg),
		Inventory: handlers.NewInventoryHandler(repo, oplog, facility, cfg.Backup.BulkDeleteThreshold),
		Logs:      handlers.NewLogHandler(repo, reverter),
		Backups:   handlers.NewBackupHandler(facility),
	}

	runErr := fn(deps)
	writeMetrics(cmd.Context(), log, m, cfg.Metrics.Textfile)
	return runErr
}

// writeMetrics exports metrics when a textfile is configured. Failures are
// only logged.
func writeMetrics(ctx context.Context, log *slog.Logger, m *metrics.Metrics, path string) {
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		log.WarnContext(ctx, "writing metrics textfile", "path", path, "error", err)
	}
}

// resolveActor picks the actor id: --actor, then LIBRIS_ACTOR or config,
// then the OS user.
func resolveActor(cfg *config.Config) string {
	if globalActor != "" {
		return globalActor
	}
	if cfg.Actor != "" {
		return cfg.Actor
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}
