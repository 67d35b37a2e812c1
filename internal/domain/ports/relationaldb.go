// Package ports defines the interfaces the domain consumes from infrastructure.
package ports

import (
	"context"
	"errors"

	"github.com/ersonp/libris/internal/domain/entities"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForeignKey is returned when a write or delete violates a foreign key.
	ErrForeignKey = errors.New("foreign key constraint failed")
	// ErrAlreadyMarked is returned when a log record's reverted-by marker is already set.
	ErrAlreadyMarked = errors.New("log record already marked as reverted")
)

// Transactor runs a sequence of store calls all-or-nothing. The context passed
// to fn carries the transaction; store calls made with it join the transaction.
// Nested calls join the outer transaction.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// EntityStore is the per-entity persistence the operations log works against.
type EntityStore interface {
	// Load returns the entity, or nil if it does not exist.
	Load(ctx context.Context, kind, id string) (entities.Reflectable, error)

	// LoadMany returns the entities that exist among ids, in no particular order.
	LoadMany(ctx context.Context, kind string, ids []string) ([]entities.Reflectable, error)

	// List returns entities of a kind ordered by id.
	List(ctx context.Context, kind string, limit, offset int) ([]entities.Reflectable, error)

	// Count returns the number of entities of a kind.
	Count(ctx context.Context, kind string) (int, error)

	// Exists reports whether an entity exists.
	Exists(ctx context.Context, kind, id string) (bool, error)

	// Save inserts or updates the scalar and to-one fields of an entity.
	// To-many fields are written with SetRelation.
	Save(ctx context.Context, entity entities.Reflectable) error

	// SetRelation replaces the whole related set of a to-many field.
	SetRelation(ctx context.Context, entity entities.Reflectable, field string, ids []string) error

	// Delete removes an entity. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, kind, id string) error

	// BulkCreate inserts all entities, including their to-many sets.
	BulkCreate(ctx context.Context, items []entities.Reflectable) (int, error)

	// BulkUpdate writes the named fields of every entity.
	BulkUpdate(ctx context.Context, items []entities.Reflectable, fields []string) (int, error)

	// BulkDelete removes the entities with the given ids that exist.
	BulkDelete(ctx context.Context, kind string, ids []string) (int, error)
}

// LogFilter narrows ListLogRecords. Zero values mean "any".
type LogFilter struct {
	Operation  entities.Operation
	EntityKind string
	ActorID    string
	Limit      int
}

// LogStore persists LogRecords. Records are append-only apart from MarkReverted.
type LogStore interface {
	CreateLogRecord(ctx context.Context, record *entities.LogRecord) error

	// FindLogRecord returns the record, or nil if it does not exist.
	FindLogRecord(ctx context.Context, id string) (*entities.LogRecord, error)

	// ListLogRecords returns records newest first.
	ListLogRecords(ctx context.Context, filter LogFilter) ([]entities.LogRecord, error)

	CountLogRecords(ctx context.Context) (int, error)

	// MarkReverted sets the reverted-by marker of a record exactly once.
	// Returns ErrAlreadyMarked if it is set, ErrNotFound if the record does not exist.
	MarkReverted(ctx context.Context, id, revertedBy string) error
}

// CollectionStore gives row-level access to whole collections (tables).
// The snapshot facility uses it to dump, flush and reload the database.
type CollectionStore interface {
	// CollectionColumns returns the column names of a collection.
	CollectionColumns(ctx context.Context, collection string) ([]string, error)

	// DumpCollection returns every row of a collection as column -> value.
	DumpCollection(ctx context.Context, collection string) ([]map[string]any, error)

	// InsertRows inserts rows into a collection.
	InsertRows(ctx context.Context, collection string, rows []map[string]any) error

	// DeleteCollection deletes every row of a collection.
	// Returns ErrForeignKey if other rows still reference them.
	DeleteCollection(ctx context.Context, collection string) error
}

// RelationalDB is the full persistence layer.
type RelationalDB interface {
	Transactor
	EntityStore
	LogStore
	CollectionStore

	// EnsureSchema creates the database schema if it doesn't exist.
	EnsureSchema(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
