package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/libris/internal/domain/entities"
	"github.com/ersonp/libris/internal/domain/ports"
	"github.com/ersonp/libris/internal/infrastructure/config"
)

// setupTestRepo creates an in-memory SQLite repository for testing.
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(config.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	err = repo.EnsureSchema(context.Background())
	require.NoError(t, err)

	return repo
}

func int64Ptr(n int64) *int64 { return &n }

// seedLibrary stores a subject, a book and two of its copies.
func seedLibrary(t *testing.T, repo *Repository) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, &entities.Subject{SubjectID: "lit", Name: "Literature"}))
	require.NoError(t, repo.Save(ctx, &entities.Book{BookID: "b1", Name: "Anna Karenina", Authors: "Tolstoy", Year: int64Ptr(1878), SubjectID: "lit"}))
	require.NoError(t, repo.Save(ctx, &entities.BookInstance{Barcode: "0001", BookID: "b1"}))
	require.NoError(t, repo.Save(ctx, &entities.BookInstance{Barcode: "0002", BookID: "b1", RepresentsMultiple: true}))
}

func TestNewRepository(t *testing.T) {
	t.Run("success with memory database", func(t *testing.T) {
		repo, err := NewRepository(config.SQLiteConfig{Path: ":memory:"})
		require.NoError(t, err)
		defer repo.Close()
		assert.NotNil(t, repo)
	})

	t.Run("error with empty path", func(t *testing.T) {
		_, err := NewRepository(config.SQLiteConfig{Path: ""})
		require.Error(t, err)
	})
}

func TestRepository_EnsureSchema(t *testing.T) {
	repo := setupTestRepo(t)

	// Verify tables exist
	tables := []string{"subjects", "books", "book_instances", "readers", "reader_books", "log_records"}
	for _, table := range tables {
		var count int
		err := repo.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}
}

func TestRepository_EnsureSchema_Idempotent(t *testing.T) {
	repo := setupTestRepo(t)

	// Should not error when called again
	err := repo.EnsureSchema(context.Background())
	require.NoError(t, err)
}

func TestRepository_SaveAndLoad(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	seedLibrary(t, repo)

	t.Run("book", func(t *testing.T) {
		e, err := repo.Load(ctx, entities.KindBook, "b1")
		require.NoError(t, err)
		book := e.(*entities.Book)
		assert.Equal(t, "Anna Karenina", book.Name)
		assert.Equal(t, int64(1878), *book.Year)
		assert.Nil(t, book.ISBN)
		assert.Equal(t, "lit", book.SubjectID)
	})

	t.Run("instance", func(t *testing.T) {
		e, err := repo.Load(ctx, entities.KindInstance, "0002")
		require.NoError(t, err)
		inst := e.(*entities.BookInstance)
		assert.True(t, inst.RepresentsMultiple)
		assert.Equal(t, entities.StatusActive, inst.Status)
		assert.Equal(t, "b1", inst.BookID)
	})

	t.Run("reader with relation", func(t *testing.T) {
		reader := &entities.Reader{ReaderID: "r1", Role: entities.RoleTeacher, Name: "Ivanova", GroupNum: int64Ptr(11), GroupLetter: "a"}
		require.NoError(t, repo.Save(ctx, reader))
		require.NoError(t, repo.SetRelation(ctx, reader, "books", []string{"0002", "0001"}))

		e, err := repo.Load(ctx, entities.KindReader, "r1")
		require.NoError(t, err)
		loaded := e.(*entities.Reader)
		assert.Equal(t, entities.RoleTeacher, loaded.Role)
		assert.Equal(t, "11a", loaded.Group())
		assert.Equal(t, []string{"0001", "0002"}, loaded.Books)
	})

	t.Run("missing", func(t *testing.T) {
		e, err := repo.Load(ctx, entities.KindBook, "nope")
		require.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := repo.Load(ctx, "periodical", "p1")
		assert.ErrorIs(t, err, entities.ErrUnknownKind)
	})
}

func TestRepository_Save_UpsertKeepsDependents(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	seedLibrary(t, repo)

	require.NoError(t, repo.Save(ctx, &entities.Book{BookID: "b1", Name: "Anna Karenina", Authors: "L. Tolstoy", SubjectID: "lit"}))

	e, err := repo.Load(ctx, entities.KindBook, "b1")
	require.NoError(t, err)
	assert.Equal(t, "L. Tolstoy", e.(*entities.Book).Authors)
	assert.Nil(t, e.(*entities.Book).Year)

	count, err := repo.Count(ctx, entities.KindInstance)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "copies must survive an update of their book")
}

func TestRepository_Save_ForeignKey(t *testing.T) {
	repo := setupTestRepo(t)

	err := repo.Save(context.Background(), &entities.Book{BookID: "b1", Name: "Orphan", SubjectID: "missing"})
	assert.ErrorIs(t, err, ports.ErrForeignKey)
}

func TestRepository_SetRelation(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	seedLibrary(t, repo)
	reader := &entities.Reader{ReaderID: "r1", Role: entities.RoleStudent, Name: "Masha"}
	require.NoError(t, repo.Save(ctx, reader))

	require.NoError(t, repo.SetRelation(ctx, reader, "books", []string{"0001", "0002"}))
	require.NoError(t, repo.SetRelation(ctx, reader, "books", []string{"0002"}))

	e, err := repo.Load(ctx, entities.KindReader, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"0002"}, e.(*entities.Reader).Books)

	err = repo.SetRelation(ctx, reader, "books", []string{"0002", "9999"})
	assert.ErrorIs(t, err, ports.ErrForeignKey)

	// the failed replacement is rolled back as a whole
	e, err = repo.Load(ctx, entities.KindReader, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"0002"}, e.(*entities.Reader).Books)

	err = repo.SetRelation(ctx, reader, "name", nil)
	assert.ErrorIs(t, err, entities.ErrUnknownField)
}

func TestRepository_Delete(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	seedLibrary(t, repo)

	t.Run("missing", func(t *testing.T) {
		err := repo.Delete(ctx, entities.KindBook, "nope")
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("restricted", func(t *testing.T) {
		err := repo.Delete(ctx, entities.KindSubject, "lit")
		assert.ErrorIs(t, err, ports.ErrForeignKey)

		exists, err := repo.Exists(ctx, entities.KindSubject, "lit")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("cascades", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, entities.KindBook, "b1"))

		count, err := repo.Count(ctx, entities.KindInstance)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestRepository_List(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, repo.Save(ctx, &entities.Subject{SubjectID: id, Name: "subject " + id}))
	}

	all, err := repo.List(ctx, entities.KindSubject, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID())
	assert.Equal(t, "c", all[2].ID())

	page, err := repo.List(ctx, entities.KindSubject, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID())

	empty, err := repo.List(ctx, entities.KindReader, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRepository_BulkOperations(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	seedLibrary(t, repo)

	items := make([]entities.Reflectable, 0, 600)
	ids := make([]string, 0, 600)
	for i := 0; i < 600; i++ {
		id := fmt.Sprintf("B%04d", i)
		ids = append(ids, id)
		items = append(items, &entities.BookInstance{Barcode: id, BookID: "b1"})
	}

	n, err := repo.BulkCreate(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 600, n)

	loaded, err := repo.LoadMany(ctx, entities.KindInstance, ids)
	require.NoError(t, err)
	assert.Len(t, loaded, 600)

	for _, e := range items[:2] {
		require.NoError(t, e.SetField("status", entities.StatusWrittenOff))
	}
	n, err = repo.BulkUpdate(ctx, append(items[:2:2], &entities.BookInstance{Barcode: "ghost"}), []string{"status"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	e, err := repo.Load(ctx, entities.KindInstance, "B0001")
	require.NoError(t, err)
	assert.Equal(t, entities.StatusWrittenOff, e.(*entities.BookInstance).Status)

	_, err = repo.BulkUpdate(ctx, items[:1], []string{"pages"})
	assert.ErrorIs(t, err, entities.ErrUnknownField)

	n, err = repo.BulkDelete(ctx, entities.KindInstance, append(ids, "ghost"))
	require.NoError(t, err)
	assert.Equal(t, 600, n)

	count, err := repo.Count(ctx, entities.KindInstance)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRepository_BulkUpdate_Relations(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	seedLibrary(t, repo)
	reader := &entities.Reader{ReaderID: "r1", Role: entities.RoleStudent, Name: "Masha", Books: []string{}}
	_, err := repo.BulkCreate(ctx, []entities.Reflectable{reader})
	require.NoError(t, err)

	reader.Books = []string{"0001"}
	n, err := repo.BulkUpdate(ctx, []entities.Reflectable{reader}, []string{"books"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, err := repo.Load(ctx, entities.KindReader, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001"}, e.(*entities.Reader).Books)
}

func TestRepository_RunInTx(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	t.Run("rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.RunInTx(ctx, func(txCtx context.Context) error {
			require.NoError(t, repo.Save(txCtx, &entities.Subject{SubjectID: "s1", Name: "Literature"}))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		exists, err := repo.Exists(ctx, entities.KindSubject, "s1")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("nested joins outer", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.RunInTx(ctx, func(txCtx context.Context) error {
			err := repo.RunInTx(txCtx, func(inner context.Context) error {
				return repo.Save(inner, &entities.Subject{SubjectID: "s2", Name: "History"})
			})
			require.NoError(t, err)
			return boom
		})
		assert.ErrorIs(t, err, boom)

		exists, err := repo.Exists(ctx, entities.KindSubject, "s2")
		require.NoError(t, err)
		assert.False(t, exists, "inner work is rolled back with the outer transaction")
	})

	t.Run("commit", func(t *testing.T) {
		err := repo.RunInTx(ctx, func(txCtx context.Context) error {
			return repo.Save(txCtx, &entities.Subject{SubjectID: "s3", Name: "Physics"})
		})
		require.NoError(t, err)

		exists, err := repo.Exists(ctx, entities.KindSubject, "s3")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestRepository_LogRecords(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	records := []*entities.LogRecord{
		{
			ID: "rec-1", CreatedAt: base, Operation: entities.OpCreate, ActorID: "librarian",
			EntityKind: entities.KindBook, AffectedIDs: []string{"b1"},
			Details: entities.Details{ObjectRepr: "Anna Karenina — Tolstoy"},
		},
		{
			ID: "rec-2", CreatedAt: base.Add(time.Minute), Operation: entities.OpUpdate, ActorID: "librarian",
			EntityKind: entities.KindBook, AffectedIDs: []string{"b1"},
			Details: entities.Details{FieldChanges: map[string]entities.FieldChange{
				"authors": {Old: "Tolstoy", New: "L. Tolstoy"},
				"year":    {Old: nil, New: int64(1878)},
			}},
		},
		{
			ID: "rec-3", CreatedAt: base.Add(2 * time.Minute), Operation: entities.OpBulkDelete, ActorID: "admin",
			EntityKind: entities.KindInstance, AffectedIDs: []string{"0001", "0002"},
			Details:     entities.Details{ObjectsRepr: map[string]string{"0001": "#0001 · b1", "0002": "#0002 · b1"}},
			SnapshotRef: "/backups/2024/03/x.json.zst",
		},
	}
	for _, rec := range records {
		require.NoError(t, repo.CreateLogRecord(ctx, rec))
	}

	t.Run("find", func(t *testing.T) {
		rec, err := repo.FindLogRecord(ctx, "rec-2")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.True(t, base.Add(time.Minute).Equal(rec.CreatedAt))
		assert.Equal(t, entities.OpUpdate, rec.Operation)
		assert.Equal(t, []string{"b1"}, rec.AffectedIDs)
		assert.Equal(t, records[1].Details.FieldChanges, rec.Details.FieldChanges)
		assert.False(t, rec.IsReverted())

		missing, err := repo.FindLogRecord(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("list newest first", func(t *testing.T) {
		list, err := repo.ListLogRecords(ctx, ports.LogFilter{})
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "rec-3", list[0].ID)
		assert.Equal(t, "/backups/2024/03/x.json.zst", list[0].SnapshotRef)
		assert.Equal(t, "rec-1", list[2].ID)
	})

	t.Run("list filtered", func(t *testing.T) {
		list, err := repo.ListLogRecords(ctx, ports.LogFilter{EntityKind: entities.KindBook, Limit: 1})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "rec-2", list[0].ID)

		list, err = repo.ListLogRecords(ctx, ports.LogFilter{Operation: entities.OpBulkDelete})
		require.NoError(t, err)
		require.Len(t, list, 1)

		list, err = repo.ListLogRecords(ctx, ports.LogFilter{ActorID: "nobody"})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("count", func(t *testing.T) {
		count, err := repo.CountLogRecords(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("mark reverted once", func(t *testing.T) {
		require.NoError(t, repo.MarkReverted(ctx, "rec-2", "rec-9"))

		rec, err := repo.FindLogRecord(ctx, "rec-2")
		require.NoError(t, err)
		assert.Equal(t, "rec-9", rec.Details.RevertedBy)

		err = repo.MarkReverted(ctx, "rec-2", "rec-10")
		assert.ErrorIs(t, err, ports.ErrAlreadyMarked)

		rec, err = repo.FindLogRecord(ctx, "rec-2")
		require.NoError(t, err)
		assert.Equal(t, "rec-9", rec.Details.RevertedBy)

		err = repo.MarkReverted(ctx, "nope", "rec-10")
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})
}

func TestRepository_Collections(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	seedLibrary(t, repo)

	cols, err := repo.CollectionColumns(ctx, "book_instances")
	require.NoError(t, err)
	assert.Equal(t, []string{"barcode", "status", "notes", "book_id", "represents_multiple"}, cols)

	rows, err := repo.DumpCollection(ctx, "books")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Anna Karenina", rows[0]["name"])
	assert.Equal(t, int64(1878), rows[0]["year"])
	assert.Nil(t, rows[0]["isbn"])

	err = repo.DeleteCollection(ctx, "subjects")
	assert.ErrorIs(t, err, ports.ErrForeignKey)

	require.NoError(t, repo.DeleteCollection(ctx, "books"))
	require.NoError(t, repo.DeleteCollection(ctx, "subjects"))

	count, err := repo.Count(ctx, entities.KindInstance)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, repo.InsertRows(ctx, "subjects", []map[string]any{{"id": "lit", "name": "Literature"}}))
	require.NoError(t, repo.InsertRows(ctx, "books", rows))

	e, err := repo.Load(ctx, entities.KindBook, "b1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "Tolstoy", e.(*entities.Book).Authors)

	_, err = repo.DumpCollection(ctx, "log_records")
	assert.ErrorIs(t, err, errUnknownCollection)
}

func TestRepository_Path(t *testing.T) {
	repo := setupTestRepo(t)
	assert.Equal(t, ":memory:", repo.Path())
}
