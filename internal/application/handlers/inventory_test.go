package handlers

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/libris/internal/domain/entities"
	"github.com/ersonp/libris/internal/domain/ports"
	"github.com/ersonp/libris/internal/domain/services"
)

func TestInventoryHandler_CreateAndShow(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	id := app.seedBook(t)

	e, err := app.inventory.HandleShow(ctx, entities.KindBook, id)
	require.NoError(t, err)
	book := e.(*entities.Book)
	assert.Equal(t, "Tolstoy", book.Authors)
	require.NotNil(t, book.Year)
	assert.Equal(t, int64(1878), *book.Year)
	assert.Equal(t, "lit", book.SubjectID)

	n, err := app.repo.CountLogRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInventoryHandler_CreateGeneratesID(t *testing.T) {
	app := newTestApp(t)

	rec, err := app.inventory.HandleCreate(context.Background(), entities.KindSubject, map[string]string{"name": "History"}, "", "")
	require.NoError(t, err)
	require.Len(t, rec.AffectedIDs, 1)
	assert.NotEmpty(t, rec.AffectedIDs[0])
}

func TestInventoryHandler_CreateErrors(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		kind   string
		values map[string]string
		target error
	}{
		{"unknown kind", "periodical", map[string]string{"name": "x"}, entities.ErrUnknownKind},
		{"unknown field", entities.KindSubject, map[string]string{"colour": "red"}, entities.ErrUnknownField},
		{"dangling reference", entities.KindBook, map[string]string{"name": "x", "subject": "nope"}, ports.ErrForeignKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := app.inventory.HandleCreate(ctx, tt.kind, tt.values, "", "")
			require.ErrorIs(t, err, tt.target)
		})
	}

	n, err := app.repo.CountLogRecords(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInventoryHandler_CreateMany(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	book := app.seedBook(t)

	rec, err := app.inventory.HandleCreateMany(ctx, entities.KindInstance, 3, map[string]string{"book": book}, "admin", "delivery")
	require.NoError(t, err)
	assert.Equal(t, entities.OpBulkCreate, rec.Operation)
	assert.Len(t, rec.AffectedIDs, 3)

	n, err := app.repo.Count(ctx, entities.KindInstance)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = app.inventory.HandleCreateMany(ctx, entities.KindInstance, 0, nil, "", "")
	require.Error(t, err)
	_, err = app.inventory.HandleCreateMany(ctx, entities.KindInstance, 2, map[string]string{"id": "x"}, "", "")
	require.Error(t, err)
}

func TestInventoryHandler_Update(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	id := app.seedBook(t)

	rec, err := app.inventory.HandleUpdate(ctx, entities.KindBook, id, map[string]string{"authors": "L. Tolstoy", "name": "Anna Karenina"}, "admin", "")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, map[string]entities.FieldChange{
		"authors": {Old: "Tolstoy", New: "L. Tolstoy"},
	}, rec.Details.FieldChanges)

	// same values again: nothing to log
	rec, err = app.inventory.HandleUpdate(ctx, entities.KindBook, id, map[string]string{"authors": "L. Tolstoy"}, "admin", "")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// an empty value clears an optional field
	rec, err = app.inventory.HandleUpdate(ctx, entities.KindBook, id, map[string]string{"year": ""}, "admin", "")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, entities.FieldChange{Old: int64(1878), New: nil}, rec.Details.FieldChanges["year"])

	_, err = app.inventory.HandleUpdate(ctx, entities.KindBook, "missing", map[string]string{"name": "x"}, "", "")
	require.ErrorIs(t, err, services.ErrObjectNotFound)

	_, err = app.inventory.HandleUpdate(ctx, entities.KindBook, id, nil, "", "")
	require.Error(t, err)
}

func TestInventoryHandler_BulkUpdate(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	ids := app.seedInstances(t, app.seedBook(t), 3)

	rec, err := app.inventory.HandleBulkUpdate(ctx, entities.KindInstance, ids, map[string]string{"status": "1"}, "admin", "inventory check")
	require.NoError(t, err)
	assert.Equal(t, entities.OpBulkUpdate, rec.Operation)
	assert.Equal(t, []string{"status"}, rec.Details.ModifiedFields)
	assert.True(t, rec.HasSnapshot())

	for _, id := range ids {
		e, err := app.inventory.HandleShow(ctx, entities.KindInstance, id)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusWrittenOff, e.(*entities.BookInstance).Status)
	}
}

func TestInventoryHandler_Delete(t *testing.T) {
	t.Run("single id logs DELETE without snapshot", func(t *testing.T) {
		app := newTestApp(t)
		ctx := context.Background()
		ids := app.seedInstances(t, app.seedBook(t), 1)

		rec, err := app.inventory.HandleDelete(ctx, entities.KindInstance, ids, "admin", "")
		require.NoError(t, err)
		assert.Equal(t, entities.OpDelete, rec.Operation)
		assert.False(t, rec.HasSnapshot())
		assert.NotEmpty(t, rec.Details.DeletedObject)
	})

	t.Run("several ids log BULK_DELETE with snapshot", func(t *testing.T) {
		app := newTestApp(t)
		ctx := context.Background()
		ids := app.seedInstances(t, app.seedBook(t), 2)

		rec, err := app.inventory.HandleDelete(ctx, entities.KindInstance, ids, "admin", "")
		require.NoError(t, err)
		assert.Equal(t, entities.OpBulkDelete, rec.Operation)
		require.True(t, rec.HasSnapshot())
		assert.FileExists(t, rec.SnapshotRef)

		n, err := app.repo.Count(ctx, entities.KindInstance)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("protected subject", func(t *testing.T) {
		app := newTestApp(t)
		app.seedBook(t)

		_, err := app.inventory.HandleDelete(context.Background(), entities.KindSubject, []string{"lit"}, "admin", "")
		require.ErrorIs(t, err, ports.ErrForeignKey)

		n, err := app.repo.CountLogRecords(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n, "the DELETE record rolls back with the delete")
	})

	t.Run("no ids", func(t *testing.T) {
		app := newTestApp(t)
		_, err := app.inventory.HandleDelete(context.Background(), entities.KindInstance, nil, "", "")
		require.Error(t, err)
	})
}

func TestInventoryHandler_List(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	app.seedInstances(t, app.seedBook(t), 5)

	result, err := app.inventory.HandleList(ctx, entities.KindInstance, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Total)
	require.Len(t, result.Entities, 2)
	assert.Equal(t, "00001", result.Entities[0].ID())

	_, err = app.inventory.HandleList(ctx, "periodical", 10, 0)
	require.ErrorIs(t, err, entities.ErrUnknownKind)
}

func TestBackupHandler(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	app.seedBook(t)

	path, err := app.backups.HandleCreate(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, path, "__manual__")
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = app.inventory.HandleUpdate(ctx, entities.KindBook, "ak", map[string]string{"name": "War and Peace"}, "", "")
	require.NoError(t, err)

	require.NoError(t, app.backups.HandleRestore(ctx, path))
	e, err := app.inventory.HandleShow(ctx, entities.KindBook, "ak")
	require.NoError(t, err)
	assert.Equal(t, "Anna Karenina", e.(*entities.Book).Name)

	require.Error(t, app.backups.HandleRestore(ctx, ""))
}
