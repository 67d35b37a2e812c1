package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ersonp/libris/internal/domain/entities"
	"github.com/ersonp/libris/internal/domain/ports"
	"github.com/ersonp/libris/internal/domain/services"
)

// InventoryHandler handles inventory mutations at the application layer.
// Every mutation goes through the operations log.
type InventoryHandler struct {
	store     ports.EntityStore
	oplog     *services.OperationLog
	snapshots ports.Snapshotter
	threshold int
}

// NewInventoryHandler creates a new InventoryHandler. Bulk operations over
// more than snapshotThreshold objects take a snapshot first, so they can be
// reverted. snapshots may be nil.
func NewInventoryHandler(
	store ports.EntityStore,
	oplog *services.OperationLog,
	snapshots ports.Snapshotter,
	snapshotThreshold int,
) *InventoryHandler {
	return &InventoryHandler{
		store:     store,
		oplog:     oplog,
		snapshots: snapshots,
		threshold: snapshotThreshold,
	}
}

// EntityListResult contains the result of listing entities.
type EntityListResult struct {
	Entities []entities.Reflectable `json:"entities"`
	Total    int                    `json:"total"`
}

// HandleList returns entities of a kind with pagination.
func (h *InventoryHandler) HandleList(ctx context.Context, kind string, limit, offset int) (*EntityListResult, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}

	list, err := h.store.List(ctx, kind, limit, offset)
	if err != nil {
		return nil, err
	}

	count, err := h.store.Count(ctx, kind)
	if err != nil {
		return nil, err
	}

	return &EntityListResult{
		Entities: list,
		Total:    count,
	}, nil
}

// HandleShow returns one entity.
func (h *InventoryHandler) HandleShow(ctx context.Context, kind, id string) (entities.Reflectable, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	e, err := h.store.Load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%s %s: %w", kind, id, services.ErrObjectNotFound)
	}
	return e, nil
}

// HandleCreate creates one entity from field values. The "id" key, when
// present, sets the entity id; otherwise one is generated.
func (h *InventoryHandler) HandleCreate(ctx context.Context, kind string, values map[string]string, actor, reason string) (*entities.LogRecord, error) {
	e, err := buildEntity(kind, values)
	if err != nil {
		return nil, err
	}
	return h.oplog.Create(ctx, e, actor, reason)
}

// HandleCreateMany creates count identical entities with generated ids and
// logs them as one batch.
func (h *InventoryHandler) HandleCreateMany(
	ctx context.Context,
	kind string,
	count int,
	values map[string]string,
	actor, reason string,
) (*entities.LogRecord, error) {
	if count < 1 {
		return nil, fmt.Errorf("count must be at least 1, got %d", count)
	}
	if _, ok := values["id"]; ok {
		return nil, errors.New("cannot set an id when creating several objects")
	}

	items := make([]entities.Reflectable, 0, count)
	for i := 0; i < count; i++ {
		e, err := buildEntity(kind, values)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return h.oplog.BulkCreate(ctx, items, actor, reason)
}

// HandleUpdate changes fields of one entity. A nil record means nothing changed.
func (h *InventoryHandler) HandleUpdate(ctx context.Context, kind, id string, values map[string]string, actor, reason string) (*entities.LogRecord, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errors.New("no fields to update")
	}
	return h.oplog.Update(ctx, kind, id, toChanges(values), actor, reason)
}

// HandleBulkUpdate applies the same field values to every listed entity.
func (h *InventoryHandler) HandleBulkUpdate(ctx context.Context, kind string, ids []string, values map[string]string, actor, reason string) (*entities.LogRecord, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errors.New("no fields to update")
	}

	snapshotRef, err := h.snapshotFor(ctx, "bulk-update-"+kind, len(ids))
	if err != nil {
		return nil, err
	}
	return h.oplog.BulkUpdate(ctx, kind, ids, toChanges(values), actor, reason, snapshotRef)
}

// HandleDelete deletes one or more entities. A single id is logged as
// DELETE, several as BULK_DELETE.
func (h *InventoryHandler) HandleDelete(ctx context.Context, kind string, ids []string, actor, reason string) (*entities.LogRecord, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	ids = entities.SortedIDs(ids)
	switch len(ids) {
	case 0:
		return nil, errors.New("no ids to delete")
	case 1:
		return h.oplog.Delete(ctx, kind, ids[0], actor, reason)
	}

	snapshotRef, err := h.snapshotFor(ctx, "bulk-delete-"+kind, len(ids))
	if err != nil {
		return nil, err
	}
	return h.oplog.BulkDelete(ctx, kind, ids, actor, reason, snapshotRef)
}

// snapshotFor takes a snapshot when a batch of n objects is over the threshold.
func (h *InventoryHandler) snapshotFor(ctx context.Context, reason string, n int) (string, error) {
	if h.snapshots == nil || n <= h.threshold {
		return "", nil
	}
	path, err := h.snapshots.Create(ctx, reason)
	if err != nil {
		return "", fmt.Errorf("creating snapshot: %w", err)
	}
	return path, nil
}

func checkKind(kind string) error {
	if !entities.IsKnownKind(kind) {
		return fmt.Errorf("%w: %q (known: %v)", entities.ErrUnknownKind, kind, entities.Kinds())
	}
	return nil
}

func buildEntity(kind string, values map[string]string) (entities.Reflectable, error) {
	e, err := entities.New(kind)
	if err != nil {
		return nil, err
	}
	for name, v := range values {
		if name == "id" {
			e.SetID(v)
			continue
		}
		if e.FieldKind(name) == entities.FieldUnknown {
			return nil, fmt.Errorf("%w: %s.%s", entities.ErrUnknownField, kind, name)
		}
		if err := e.SetField(name, v); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func toChanges(values map[string]string) map[string]any {
	changes := make(map[string]any, len(values))
	for k, v := range values {
		changes[k] = v
	}
	return changes
}
