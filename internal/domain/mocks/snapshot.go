package mocks

import (
	"context"
	"fmt"

	"github.com/ersonp/libris/internal/domain/entities"
)

// Snapshotter is a mock implementation of ports.Snapshotter that keeps the
// entities of a RelationalDB in memory, keyed by a fake path. Log records
// are not part of a snapshot.
type Snapshotter struct {
	DB        *RelationalDB
	Snapshots map[string]map[string]map[string]entities.Reflectable

	CreateErr  error
	RestoreErr error

	// Call tracking
	Reasons      []string
	RestoredFrom []string
}

// NewSnapshotter creates a new mock Snapshotter over db.
func NewSnapshotter(db *RelationalDB) *Snapshotter {
	return &Snapshotter{
		DB:        db,
		Snapshots: make(map[string]map[string]map[string]entities.Reflectable),
	}
}

// Create stores a copy of the entities and returns its path.
func (m *Snapshotter) Create(_ context.Context, reason string) (string, error) {
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	m.Reasons = append(m.Reasons, reason)
	path := fmt.Sprintf("mem://%d__%s", len(m.Reasons), reason)
	m.Snapshots[path] = m.DB.state().entities
	return path, nil
}

// Restore replaces the entities with the snapshot stored under path.
func (m *Snapshotter) Restore(_ context.Context, path string) error {
	if m.RestoreErr != nil {
		return m.RestoreErr
	}
	snap, ok := m.Snapshots[path]
	if !ok {
		return fmt.Errorf("no snapshot at %s", path)
	}
	m.RestoredFrom = append(m.RestoredFrom, path)

	restored := make(map[string]map[string]entities.Reflectable, len(snap))
	for kind, bucket := range snap {
		cp := make(map[string]entities.Reflectable, len(bucket))
		for id, e := range bucket {
			cp[id] = Clone(e)
		}
		restored[kind] = cp
	}
	m.DB.Entities = restored
	return nil
}
