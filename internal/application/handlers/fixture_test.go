package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ersonp/libris/internal/domain/entities"
	"github.com/ersonp/libris/internal/domain/services"
	"github.com/ersonp/libris/internal/infrastructure/backup"
	"github.com/ersonp/libris/internal/infrastructure/config"
	"github.com/ersonp/libris/internal/infrastructure/relationaldb/sqlite"
)

type testApp struct {
	repo      *sqlite.Repository
	snapshots *backup.Facility
	inventory *InventoryHandler
	logs      *LogHandler
	backups   *BackupHandler
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo, err := sqlite.NewRepository(config.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.EnsureSchema(ctx))

	cfg := config.Default()
	cfg.Backup.Dir = t.TempDir()

	facility, err := backup.NewFacility(repo, cfg.Backup, logger, nil)
	require.NoError(t, err)
	t.Cleanup(func() { facility.Close() })

	oplog := services.NewOperationLog(repo, logger, nil)
	reverter := services.NewReverter(repo, oplog, facility, services.RevertOptions{}, logger, nil)

	return &testApp{
		repo:      repo,
		snapshots: facility,
		inventory: NewInventoryHandler(repo, oplog, facility, cfg.Backup.BulkDeleteThreshold),
		logs:      NewLogHandler(repo, reverter),
		backups:   NewBackupHandler(facility),
	}
}

// seedBook creates a subject and a book through the log and returns the book id.
func (a *testApp) seedBook(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	_, err := a.inventory.HandleCreate(ctx, entities.KindSubject, map[string]string{"id": "lit", "name": "Literature"}, "admin", "")
	require.NoError(t, err)
	_, err = a.inventory.HandleCreate(ctx, entities.KindBook, map[string]string{
		"id":      "ak",
		"name":    "Anna Karenina",
		"authors": "Tolstoy",
		"year":    "1878",
		"subject": "lit",
	}, "admin", "")
	require.NoError(t, err)
	return "ak"
}

// seedInstances creates n copies of book with barcodes 00000..n-1.
func (a *testApp) seedInstances(t *testing.T, book string, n int) []string {
	t.Helper()
	items := make([]entities.Reflectable, 0, n)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%05d", i)
		ids = append(ids, id)
		items = append(items, &entities.BookInstance{Barcode: id, BookID: book})
	}
	_, err := a.repo.BulkCreate(context.Background(), items)
	require.NoError(t, err)
	return ids
}
