package handlers

import (
	"context"
	"errors"

	"github.com/ersonp/libris/internal/domain/ports"
)

// BackupHandler handles manual snapshots.
type BackupHandler struct {
	snapshots ports.Snapshotter
}

// NewBackupHandler creates a new BackupHandler.
func NewBackupHandler(snapshots ports.Snapshotter) *BackupHandler {
	return &BackupHandler{snapshots: snapshots}
}

// HandleCreate takes a snapshot and returns its path.
func (h *BackupHandler) HandleCreate(ctx context.Context, reason string) (string, error) {
	if reason == "" {
		reason = "manual"
	}
	return h.snapshots.Create(ctx, reason)
}

// HandleRestore replaces the inventory with a snapshot's contents. The
// operations log is not touched.
func (h *BackupHandler) HandleRestore(ctx context.Context, path string) error {
	if path == "" {
		return errors.New("snapshot path is required")
	}
	return h.snapshots.Restore(ctx, path)
}
