package ports

import (
	"context"
	"strings"
)

// Snapshotter is the whole-database snapshot/restore facility.
type Snapshotter interface {
	// Create dumps the tracked collections to a new file and returns its path.
	Create(ctx context.Context, reason string) (string, error)

	// Restore replaces the tracked collections with the contents of a snapshot.
	Restore(ctx context.Context, path string) error
}

// BackupCorruptedError is returned when a snapshot file cannot be read,
// parsed or loaded.
type BackupCorruptedError struct {
	Path string
	Err  error
}

func (e *BackupCorruptedError) Error() string {
	return "backup " + e.Path + " is corrupted: " + e.Err.Error()
}

func (e *BackupCorruptedError) Unwrap() error { return e.Err }

// ReferentialIntegrityError is returned by a flush that could not empty
// some collections because rows elsewhere still reference them.
type ReferentialIntegrityError struct {
	Collections []string
}

func (e *ReferentialIntegrityError) Error() string {
	return "cannot flush collections due to an integrity error: " + strings.Join(e.Collections, ", ")
}

func (e *ReferentialIntegrityError) Unwrap() error { return ErrForeignKey }
