package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ersonp/libris/internal/domain/entities"
	"github.com/ersonp/libris/internal/domain/ports"
)

// SnapshotReasonBeforeRevert labels the snapshot taken ahead of a restore.
const SnapshotReasonBeforeRevert = "before-revert"

// RevertOptions tunes the reversion engine.
type RevertOptions struct {
	// SnapshotEveryRevert also takes a before-revert snapshot for field-level
	// reversions, not only for snapshot restores.
	SnapshotEveryRevert bool
}

// Reversion is the outcome of a successful revert.
type Reversion struct {
	// Original is the record that was undone, with its reverted-by marker set.
	Original *entities.LogRecord
	// Record is the REVERT record written for it.
	Record *entities.LogRecord
}

// Reverter undoes logged operations, at most once per record.
type Reverter struct {
	db        ports.RelationalDB
	oplog     *OperationLog
	snapshots ports.Snapshotter
	opts      RevertOptions
	logger    *slog.Logger
	recorder  ports.Recorder
}

// NewReverter creates a new Reverter. snapshots may be nil, in which case
// records that carry a snapshot cannot be reverted.
func NewReverter(
	db ports.RelationalDB,
	oplog *OperationLog,
	snapshots ports.Snapshotter,
	opts RevertOptions,
	logger *slog.Logger,
	recorder ports.Recorder,
) *Reverter {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	return &Reverter{
		db:        db,
		oplog:     oplog,
		snapshots: snapshots,
		opts:      opts,
		logger:    logger,
		recorder:  recorder,
	}
}

// Revert undoes the operation recorded by the log record with the given id.
//
// The guard, the undo itself, the REVERT record and the reverted-by marker
// are written in one transaction: either all of them persist or none do.
// Domain failures are returned as-is; anything unexpected comes back as a
// *ReversionError.
func (r *Reverter) Revert(ctx context.Context, recordID, actor string) (*Reversion, error) {
	var (
		result *Reversion
		op     entities.Operation
	)
	err := r.db.RunInTx(ctx, func(txCtx context.Context) error {
		rec, err := r.db.FindLogRecord(txCtx, recordID)
		if err != nil {
			return fmt.Errorf("loading log record %s: %w", recordID, err)
		}
		if rec == nil {
			return fmt.Errorf("%s: %w", recordID, ErrLogRecordNotFound)
		}
		op = rec.Operation

		if rec.IsReverted() {
			return &AlreadyRevertedError{RevertedBy: rec.Details.RevertedBy}
		}

		snapshotRef, err := r.undo(txCtx, rec)
		if err != nil {
			return classify(rec.Operation, err)
		}

		revert, err := r.oplog.LogRevert(txCtx, rec, snapshotRef, actor)
		if err != nil {
			return err
		}
		if err := r.markReverted(txCtx, rec, revert.ID); err != nil {
			return err
		}

		result = &Reversion{Original: rec, Record: revert}
		return nil
	})

	outcome := outcomeOf(err)
	r.recorder.RevertFinished(op, outcome)
	if err != nil {
		r.logger.WarnContext(ctx, "revert failed", "record", recordID, "operation", op, "outcome", outcome, "error", err)
		return nil, err
	}
	r.logger.InfoContext(ctx, "reverted",
		"record", recordID,
		"operation", op,
		"revert_record", result.Record.ID,
		"from_backup", result.Record.Details.RevertFromBackup,
	)
	return result, nil
}

// undo applies the inverse of rec and returns the path of the snapshot taken
// on the way, if any.
func (r *Reverter) undo(ctx context.Context, rec *entities.LogRecord) (string, error) {
	if rec.HasSnapshot() {
		return r.restore(ctx, rec)
	}

	var snapshotRef string
	if r.opts.SnapshotEveryRevert && r.snapshots != nil {
		path, err := r.snapshots.Create(ctx, SnapshotReasonBeforeRevert)
		if err != nil {
			return "", fmt.Errorf("creating before-revert snapshot: %w", err)
		}
		snapshotRef = path
	}

	switch rec.Operation {
	case entities.OpCreate:
		return snapshotRef, r.undoCreate(ctx, rec)
	case entities.OpUpdate:
		return snapshotRef, r.undoUpdate(ctx, rec)
	case entities.OpDelete:
		return snapshotRef, r.undoDelete(ctx, rec)
	case entities.OpBulkCreate:
		return snapshotRef, r.undoBulkCreate(ctx, rec)
	case entities.OpBulkUpdate, entities.OpBulkDelete:
		return "", &ReversionError{Operation: rec.Operation, Err: errors.New("no snapshot was taken for this operation")}
	case entities.OpRevert:
		return "", &ReversionError{Operation: rec.Operation, Err: errors.New("a reversion cannot itself be reverted")}
	default:
		return "", &ReversionError{Operation: rec.Operation, Err: fmt.Errorf("unknown operation %q", rec.Operation)}
	}
}

// restore replaces the tracked collections with the record's snapshot,
// keeping a snapshot of the current state first.
func (r *Reverter) restore(ctx context.Context, rec *entities.LogRecord) (string, error) {
	if r.snapshots == nil {
		return "", errors.New("snapshot restore is not configured")
	}

	before, err := r.snapshots.Create(ctx, SnapshotReasonBeforeRevert)
	if err != nil {
		return "", fmt.Errorf("creating before-revert snapshot: %w", err)
	}

	if err := r.snapshots.Restore(ctx, rec.SnapshotRef); err != nil {
		return "", err
	}
	return before, nil
}

func (r *Reverter) undoCreate(ctx context.Context, rec *entities.LogRecord) error {
	id, err := singleID(rec)
	if err != nil {
		return err
	}
	if err := r.db.Delete(ctx, rec.EntityKind, id); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return fmt.Errorf("%s %s: %w", rec.EntityKind, id, ErrObjectAlreadyDeleted)
		}
		return fmt.Errorf("deleting %s %s: %w", rec.EntityKind, id, err)
	}
	return nil
}

func (r *Reverter) undoUpdate(ctx context.Context, rec *entities.LogRecord) error {
	id, err := singleID(rec)
	if err != nil {
		return err
	}
	e, err := r.db.Load(ctx, rec.EntityKind, id)
	if err != nil {
		return fmt.Errorf("loading %s %s: %w", rec.EntityKind, id, err)
	}
	if e == nil {
		return fmt.Errorf("%s %s: %w", rec.EntityKind, id, ErrObjectDoesNotExist)
	}

	old := make(map[string]any, len(rec.Details.FieldChanges))
	for name, change := range rec.Details.FieldChanges {
		old[name] = change.Old
	}
	return ApplyAttributes(ctx, r.db, e, old)
}

func (r *Reverter) undoDelete(ctx context.Context, rec *entities.LogRecord) error {
	id, err := singleID(rec)
	if err != nil {
		return err
	}
	if len(rec.Details.DeletedObject) == 0 {
		return errors.New("log record has no deleted object state")
	}

	e, err := entities.New(rec.EntityKind)
	if err != nil {
		return err
	}
	exists, err := r.db.Exists(ctx, rec.EntityKind, id)
	if err != nil {
		return fmt.Errorf("checking %s %s: %w", rec.EntityKind, id, err)
	}
	if exists {
		return fmt.Errorf("%s %s: %w", rec.EntityKind, id, ErrObjectExists)
	}

	e.SetID(id)
	return ApplyAttributes(ctx, r.db, e, rec.Details.DeletedObject)
}

// undoBulkCreate converges on "nothing was created": ids already gone are
// skipped.
func (r *Reverter) undoBulkCreate(ctx context.Context, rec *entities.LogRecord) error {
	if len(rec.AffectedIDs) == 0 {
		return nil
	}
	n, err := r.db.BulkDelete(ctx, rec.EntityKind, rec.AffectedIDs)
	if err != nil {
		return fmt.Errorf("bulk deleting %s: %w", rec.EntityKind, err)
	}
	if n < len(rec.AffectedIDs) {
		r.logger.DebugContext(ctx, "some created objects were already gone",
			"record", rec.ID, "deleted", n, "expected", len(rec.AffectedIDs))
	}
	return nil
}

// markReverted stamps the back-reference. Losing the compare-and-set to a
// concurrent revert surfaces as AlreadyReverted.
func (r *Reverter) markReverted(ctx context.Context, rec *entities.LogRecord, revertedBy string) error {
	err := r.db.MarkReverted(ctx, rec.ID, revertedBy)
	if err == nil {
		rec.Details.RevertedBy = revertedBy
		return nil
	}
	if !errors.Is(err, ports.ErrAlreadyMarked) {
		return fmt.Errorf("marking log record %s reverted: %w", rec.ID, err)
	}

	current, findErr := r.db.FindLogRecord(ctx, rec.ID)
	if findErr != nil || current == nil {
		return &AlreadyRevertedError{}
	}
	return &AlreadyRevertedError{RevertedBy: current.Details.RevertedBy}
}

func singleID(rec *entities.LogRecord) (string, error) {
	if len(rec.AffectedIDs) != 1 {
		return "", fmt.Errorf("expected one affected id, got %d", len(rec.AffectedIDs))
	}
	return rec.AffectedIDs[0], nil
}

// classify passes domain errors through and wraps everything else.
func classify(op entities.Operation, err error) error {
	var (
		reversion *ReversionError
		related   *RelatedObjectMissingError
		reverted  *AlreadyRevertedError
		corrupted *ports.BackupCorruptedError
		integrity *ports.ReferentialIntegrityError
	)
	switch {
	case errors.As(err, &reversion),
		errors.As(err, &related),
		errors.As(err, &reverted),
		errors.As(err, &corrupted),
		errors.As(err, &integrity),
		errors.Is(err, ErrObjectDoesNotExist),
		errors.Is(err, ErrObjectAlreadyDeleted):
		return err
	default:
		return &ReversionError{Operation: op, Err: err}
	}
}

// Revert outcomes reported to the metrics recorder.
const (
	OutcomeOK              = "ok"
	OutcomeAlreadyReverted = "already_reverted"
	OutcomeObjectMissing   = "object_missing"
	OutcomeRelatedMissing  = "related_missing"
	OutcomeBackupCorrupted = "backup_corrupted"
	OutcomeIntegrity       = "referential_integrity"
	OutcomeNotFound        = "not_found"
	OutcomeFailed          = "failed"
)

func outcomeOf(err error) string {
	var (
		related   *RelatedObjectMissingError
		reverted  *AlreadyRevertedError
		corrupted *ports.BackupCorruptedError
		integrity *ports.ReferentialIntegrityError
	)
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &reverted):
		return OutcomeAlreadyReverted
	case errors.Is(err, ErrObjectDoesNotExist), errors.Is(err, ErrObjectAlreadyDeleted):
		return OutcomeObjectMissing
	case errors.As(err, &related):
		return OutcomeRelatedMissing
	case errors.As(err, &corrupted):
		return OutcomeBackupCorrupted
	case errors.As(err, &integrity):
		return OutcomeIntegrity
	case errors.Is(err, ErrLogRecordNotFound):
		return OutcomeNotFound
	default:
		return OutcomeFailed
	}
}
