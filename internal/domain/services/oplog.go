package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ersonp/libris/internal/domain/entities"
	"github.com/ersonp/libris/internal/domain/ports"
)

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

// OperationLog is the only writer of LogRecords. The Log* methods record an
// operation the caller performed; the other methods perform the mutation and
// record it inside one transaction.
type OperationLog struct {
	db       ports.RelationalDB
	logger   *slog.Logger
	recorder ports.Recorder
}

// NewOperationLog creates a new OperationLog.
func NewOperationLog(db ports.RelationalDB, logger *slog.Logger, recorder ports.Recorder) *OperationLog {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	return &OperationLog{
		db:       db,
		logger:   logger,
		recorder: recorder,
	}
}

// LogCreate records the creation of e.
func (l *OperationLog) LogCreate(ctx context.Context, e entities.Reflectable, actor, reason string) (*entities.LogRecord, error) {
	details := entities.Details{
		Reason:     reason,
		ObjectRepr: e.String(),
	}
	return l.write(ctx, l.newRecord(entities.OpCreate, e.Kind(), []string{e.ID()}, actor, details, ""))
}

// LogUpdate records the fields of submitted that differ from before. When
// nothing differs no record is written and nil is returned. before must be
// captured before e was modified.
func (l *OperationLog) LogUpdate(
	ctx context.Context,
	before, submitted map[string]any,
	e entities.Reflectable,
	actor, reason string,
) (*entities.LogRecord, error) {
	changes := Diff(before, submitted)
	if len(changes) == 0 {
		return nil, nil
	}
	details := entities.Details{
		Reason:       reason,
		ObjectRepr:   e.String(),
		FieldChanges: changes,
	}
	return l.write(ctx, l.newRecord(entities.OpUpdate, e.Kind(), []string{e.ID()}, actor, details, ""))
}

// LogDelete records the deletion of e, capturing its full state. It must be
// called before e is removed from storage.
func (l *OperationLog) LogDelete(ctx context.Context, e entities.Reflectable, actor, reason string) (*entities.LogRecord, error) {
	attrs, err := ToAttributeMap(e)
	if err != nil {
		return nil, err
	}
	details := entities.Details{
		Reason:        reason,
		ObjectRepr:    e.String(),
		DeletedObject: attrs,
	}
	return l.write(ctx, l.newRecord(entities.OpDelete, e.Kind(), []string{e.ID()}, actor, details, ""))
}

// LogBulkCreate records one batch of created objects.
func (l *OperationLog) LogBulkCreate(ctx context.Context, items []entities.Reflectable, actor, reason, snapshotRef string) (*entities.LogRecord, error) {
	return l.logBulk(ctx, entities.OpBulkCreate, items, nil, actor, reason, snapshotRef)
}

// LogBulkUpdate records one batch of updated objects and the fields touched.
func (l *OperationLog) LogBulkUpdate(
	ctx context.Context,
	items []entities.Reflectable,
	fields []string,
	actor, reason, snapshotRef string,
) (*entities.LogRecord, error) {
	return l.logBulk(ctx, entities.OpBulkUpdate, items, fields, actor, reason, snapshotRef)
}

// LogBulkDelete records one batch of deleted objects. Field-level state is not
// captured; snapshotRef is the only practical way back.
func (l *OperationLog) LogBulkDelete(ctx context.Context, items []entities.Reflectable, actor, reason, snapshotRef string) (*entities.LogRecord, error) {
	return l.logBulk(ctx, entities.OpBulkDelete, items, nil, actor, reason, snapshotRef)
}

// LogRevert records the reversion of original.
func (l *OperationLog) LogRevert(ctx context.Context, original *entities.LogRecord, snapshotRef, actor string) (*entities.LogRecord, error) {
	details := entities.Details{
		ObjectRepr:       original.String(),
		RevertFromBackup: original.HasSnapshot(),
	}
	return l.write(ctx, l.newRecord(entities.OpRevert, entities.KindLogRecord, []string{original.ID}, actor, details, snapshotRef))
}

func (l *OperationLog) logBulk(
	ctx context.Context,
	op entities.Operation,
	items []entities.Reflectable,
	fields []string,
	actor, reason, snapshotRef string,
) (*entities.LogRecord, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("logging %s: %w", op, ErrEmptyBatch)
	}

	ids := make([]string, 0, len(items))
	reprs := make(map[string]string, len(items))
	for _, e := range items {
		ids = append(ids, e.ID())
		reprs[e.ID()] = e.String()
	}

	details := entities.Details{
		Reason:      reason,
		ObjectsRepr: reprs,
	}
	if len(fields) > 0 {
		details.ModifiedFields = append([]string(nil), fields...)
		sort.Strings(details.ModifiedFields)
	}
	return l.write(ctx, l.newRecord(op, items[0].Kind(), ids, actor, details, snapshotRef))
}

func (l *OperationLog) newRecord(
	op entities.Operation,
	kind string,
	ids []string,
	actor string,
	details entities.Details,
	snapshotRef string,
) *entities.LogRecord {
	return &entities.LogRecord{
		ID:          uuid.NewString(),
		CreatedAt:   timeNow().UTC(),
		Operation:   op,
		ActorID:     actor,
		EntityKind:  kind,
		AffectedIDs: ids,
		Details:     details,
		SnapshotRef: snapshotRef,
	}
}

// write persists a record. A failed write fails the enclosing operation.
func (l *OperationLog) write(ctx context.Context, rec *entities.LogRecord) (*entities.LogRecord, error) {
	if err := l.db.CreateLogRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("writing %s log record: %w", rec.Operation, err)
	}
	l.recorder.LogRecorded(rec.Operation)
	l.logger.DebugContext(ctx, "log record written",
		"id", rec.ID,
		"operation", rec.Operation,
		"kind", rec.EntityKind,
		"objects", len(rec.AffectedIDs),
	)
	return rec, nil
}

// Create persists a new entity and records it. An empty id is generated.
func (l *OperationLog) Create(ctx context.Context, e entities.Reflectable, actor, reason string) (*entities.LogRecord, error) {
	if e.ID() == "" {
		e.SetID(uuid.NewString())
	}

	var rec *entities.LogRecord
	err := l.db.RunInTx(ctx, func(txCtx context.Context) error {
		exists, err := l.db.Exists(txCtx, e.Kind(), e.ID())
		if err != nil {
			return fmt.Errorf("checking %s %s: %w", e.Kind(), e.ID(), err)
		}
		if exists {
			return fmt.Errorf("%s %s: %w", e.Kind(), e.ID(), ErrObjectExists)
		}
		if err := persistNew(txCtx, l.db, e); err != nil {
			return err
		}
		rec, err = l.LogCreate(txCtx, e, actor, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Update applies changes to the stored entity and records the fields that
// actually changed. The prior state is captured inside the same transaction
// before anything is written. When no field changes nothing is saved, no
// record is written and (nil, nil) is returned.
func (l *OperationLog) Update(
	ctx context.Context,
	kind, id string,
	changes map[string]any,
	actor, reason string,
) (*entities.LogRecord, error) {
	var rec *entities.LogRecord
	err := l.db.RunInTx(ctx, func(txCtx context.Context) error {
		e, err := l.mustLoad(txCtx, kind, id)
		if err != nil {
			return err
		}
		before, err := ToAttributeMap(e)
		if err != nil {
			return err
		}

		for name, v := range changes {
			if e.FieldKind(name) == entities.FieldUnknown {
				return fmt.Errorf("%w: %s.%s", entities.ErrUnknownField, kind, name)
			}
			if err := e.SetField(name, v); err != nil {
				return err
			}
		}
		after, err := ToAttributeMap(e)
		if err != nil {
			return err
		}
		submitted := restrict(after, changes)

		rec, err = l.LogUpdate(txCtx, before, submitted, e, actor, reason)
		if err != nil || rec == nil {
			return err
		}

		changed := make(map[string]any, len(rec.Details.FieldChanges))
		for name := range rec.Details.FieldChanges {
			changed[name] = submitted[name]
		}
		return ApplyAttributes(txCtx, l.db, e, changed)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete records the entity's full state and then removes it.
func (l *OperationLog) Delete(ctx context.Context, kind, id, actor, reason string) (*entities.LogRecord, error) {
	var rec *entities.LogRecord
	err := l.db.RunInTx(ctx, func(txCtx context.Context) error {
		e, err := l.mustLoad(txCtx, kind, id)
		if err != nil {
			return err
		}
		rec, err = l.LogDelete(txCtx, e, actor, reason)
		if err != nil {
			return err
		}
		if err := l.db.Delete(txCtx, kind, id); err != nil {
			return fmt.Errorf("deleting %s %s: %w", kind, id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// BulkCreate inserts a batch and records it as one operation.
func (l *OperationLog) BulkCreate(ctx context.Context, items []entities.Reflectable, actor, reason string) (*entities.LogRecord, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	for _, e := range items {
		if e.ID() == "" {
			e.SetID(uuid.NewString())
		}
	}

	var rec *entities.LogRecord
	err := l.db.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := l.db.BulkCreate(txCtx, items); err != nil {
			return fmt.Errorf("bulk creating %s: %w", items[0].Kind(), err)
		}
		var err error
		rec, err = l.LogBulkCreate(txCtx, items, actor, reason, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// BulkUpdate applies the same changes to every listed entity and records the
// batch with the names of the fields touched.
func (l *OperationLog) BulkUpdate(
	ctx context.Context,
	kind string,
	ids []string,
	changes map[string]any,
	actor, reason, snapshotRef string,
) (*entities.LogRecord, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}
	fields := make([]string, 0, len(changes))
	for name := range changes {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var rec *entities.LogRecord
	err := l.db.RunInTx(ctx, func(txCtx context.Context) error {
		items, err := l.mustLoadMany(txCtx, kind, ids)
		if err != nil {
			return err
		}
		for _, e := range items {
			for _, name := range fields {
				if e.FieldKind(name) == entities.FieldUnknown {
					return fmt.Errorf("%w: %s.%s", entities.ErrUnknownField, kind, name)
				}
				if err := e.SetField(name, changes[name]); err != nil {
					return err
				}
			}
		}
		if _, err := l.db.BulkUpdate(txCtx, items, fields); err != nil {
			return fmt.Errorf("bulk updating %s: %w", kind, err)
		}
		rec, err = l.LogBulkUpdate(txCtx, items, fields, actor, reason, snapshotRef)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// BulkDelete records a batch and then removes it. Callers deleting more than
// a handful of objects should take a snapshot first and pass its path.
func (l *OperationLog) BulkDelete(ctx context.Context, kind string, ids []string, actor, reason, snapshotRef string) (*entities.LogRecord, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}

	var rec *entities.LogRecord
	err := l.db.RunInTx(ctx, func(txCtx context.Context) error {
		items, err := l.mustLoadMany(txCtx, kind, ids)
		if err != nil {
			return err
		}
		rec, err = l.LogBulkDelete(txCtx, items, actor, reason, snapshotRef)
		if err != nil {
			return err
		}
		if _, err := l.db.BulkDelete(txCtx, kind, ids); err != nil {
			return fmt.Errorf("bulk deleting %s: %w", kind, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (l *OperationLog) mustLoad(ctx context.Context, kind, id string) (entities.Reflectable, error) {
	e, err := l.db.Load(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("loading %s %s: %w", kind, id, err)
	}
	if e == nil {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrObjectNotFound)
	}
	return e, nil
}

func (l *OperationLog) mustLoadMany(ctx context.Context, kind string, ids []string) ([]entities.Reflectable, error) {
	items, err := l.db.LoadMany(ctx, kind, ids)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", kind, err)
	}
	if len(items) == len(ids) {
		return items, nil
	}

	found := make(map[string]bool, len(items))
	for _, e := range items {
		found[e.ID()] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, fmt.Errorf("%s %s: %w", kind, id, ErrObjectNotFound)
		}
	}
	return nil, fmt.Errorf("loading %s: duplicate ids", kind)
}
