// Package handlers contains application use case handlers.
package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/ersonp/libris/internal/infrastructure/config"
	"github.com/ersonp/libris/internal/infrastructure/relationaldb/sqlite"
)

// InitHandler handles workspace initialization.
type InitHandler struct{}

// NewInitHandler creates a new init handler.
func NewInitHandler() *InitHandler {
	return &InitHandler{}
}

// InitResult contains the result of initialization.
type InitResult struct {
	ConfigPath string
	DBPath     string
	BackupDir  string
}

// Handle writes the default config, creates the database schema and the
// backup directory.
func (h *InitHandler) Handle(ctx context.Context, basePath string) (*InitResult, error) {
	if config.Exists(basePath) {
		return nil, fmt.Errorf("libris already initialized in %s", basePath)
	}

	if err := config.WriteDefault(basePath); err != nil {
		return nil, fmt.Errorf("writing default config: %w", err)
	}

	cfg, err := config.Load(basePath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	repo, err := sqlite.NewRepository(cfg.SQLite)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Backup.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	return &InitResult{
		ConfigPath: config.ConfigFilePath(basePath),
		DBPath:     cfg.SQLite.Path,
		BackupDir:  cfg.Backup.Dir,
	}, nil
}
