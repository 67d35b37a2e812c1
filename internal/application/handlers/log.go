package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ersonp/libris/internal/domain/entities"
	"github.com/ersonp/libris/internal/domain/ports"
	"github.com/ersonp/libris/internal/domain/services"
)

// LogHandler handles browsing and reverting the operations log.
type LogHandler struct {
	store    ports.LogStore
	reverter *services.Reverter
}

// NewLogHandler creates a new LogHandler.
func NewLogHandler(store ports.LogStore, reverter *services.Reverter) *LogHandler {
	return &LogHandler{
		store:    store,
		reverter: reverter,
	}
}

// LogSummary is one log record as shown to a user.
type LogSummary struct {
	ID         string             `json:"id"`
	CreatedAt  time.Time          `json:"created_at"`
	Operation  entities.Operation `json:"operation"`
	ActorID    string             `json:"actor_id,omitempty"`
	Summary    string             `json:"summary"`
	Fields     []string           `json:"fields,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Snapshot   bool               `json:"snapshot"`
	RevertedBy string             `json:"reverted_by,omitempty"`
}

// Summarize builds the user-facing summary of a record.
func Summarize(rec *entities.LogRecord) LogSummary {
	return LogSummary{
		ID:         rec.ID,
		CreatedAt:  rec.CreatedAt,
		Operation:  rec.Operation,
		ActorID:    rec.ActorID,
		Summary:    describe(rec),
		Fields:     changedFields(rec),
		Reason:     rec.Details.Reason,
		Snapshot:   rec.HasSnapshot(),
		RevertedBy: rec.Details.RevertedBy,
	}
}

// describe renders "<operation>: <object> (<fields>)".
func describe(rec *entities.LogRecord) string {
	s := rec.String()
	if fields := changedFields(rec); len(fields) > 0 {
		s += " (" + strings.Join(fields, ", ") + ")"
	}
	return s
}

func changedFields(rec *entities.LogRecord) []string {
	if len(rec.Details.ModifiedFields) > 0 {
		return rec.Details.ModifiedFields
	}
	if len(rec.Details.FieldChanges) == 0 {
		return nil
	}
	fields := make([]string, 0, len(rec.Details.FieldChanges))
	for name := range rec.Details.FieldChanges {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

// HandleList returns summaries of the records matching filter, newest first.
func (h *LogHandler) HandleList(ctx context.Context, filter ports.LogFilter) ([]LogSummary, error) {
	if filter.Operation != "" && !filter.Operation.IsValid() {
		return nil, fmt.Errorf("invalid operation %q", filter.Operation)
	}
	records, err := h.store.ListLogRecords(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := make([]LogSummary, 0, len(records))
	for i := range records {
		out = append(out, Summarize(&records[i]))
	}
	return out, nil
}

// HandleShow returns one record.
func (h *LogHandler) HandleShow(ctx context.Context, id string) (*entities.LogRecord, error) {
	rec, err := h.store.FindLogRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%s: %w", id, services.ErrLogRecordNotFound)
	}
	return rec, nil
}

// RevertResult describes a successful revert.
type RevertResult struct {
	// Message echoes what was undone.
	Message  string
	Original *entities.LogRecord
	Record   *entities.LogRecord
}

// RevertFailedError carries the message shown to the user for a failed
// revert. Err is the underlying cause.
type RevertFailedError struct {
	Message string
	Err     error
}

func (e *RevertFailedError) Error() string { return e.Message }

func (e *RevertFailedError) Unwrap() error { return e.Err }

// HandleRevert undoes a logged operation. Failures come back as
// *RevertFailedError with a message specific to the cause.
func (h *LogHandler) HandleRevert(ctx context.Context, id, actor string) (*RevertResult, error) {
	res, err := h.reverter.Revert(ctx, id, actor)
	if err != nil {
		return nil, &RevertFailedError{Message: h.failureMessage(ctx, err), Err: err}
	}
	return &RevertResult{
		Message:  "Reverted: " + describe(res.Original),
		Original: res.Original,
		Record:   res.Record,
	}, nil
}

const (
	msgContactAdmin = "Cannot revert this operation. Contact an administrator."
	msgCorrupted    = "Cannot revert this operation because its snapshot is corrupted. Contact an administrator."
	msgDoesNotExist = "Cannot change an object that has been deleted. Restore the object first (revert its deletion)."
	msgDeleted      = "Cannot delete an object that is already deleted."
	msgDanglingRef  = "Cannot revert this operation because a field references an object that no longer exists."
)

func (h *LogHandler) failureMessage(ctx context.Context, err error) string {
	var (
		related   *services.RelatedObjectMissingError
		reverted  *services.AlreadyRevertedError
		corrupted *ports.BackupCorruptedError
		integrity *ports.ReferentialIntegrityError
	)
	switch {
	case errors.As(err, &reverted):
		return h.alreadyRevertedMessage(ctx, reverted.RevertedBy)
	case errors.As(err, &related):
		return fmt.Sprintf("Cannot revert this operation because field %q references an object that no longer exists (id=%v).",
			related.Field, related.Value)
	case errors.Is(err, services.ErrObjectDoesNotExist):
		return msgDoesNotExist
	case errors.Is(err, services.ErrObjectAlreadyDeleted):
		return msgDeleted
	case errors.As(err, &corrupted):
		return msgCorrupted
	case errors.As(err, &integrity):
		return fmt.Sprintf("Cannot restore the snapshot: %s still referenced by other data. Contact an administrator.",
			strings.Join(integrity.Collections, ", "))
	case errors.Is(err, ports.ErrForeignKey):
		return msgDanglingRef
	case errors.Is(err, services.ErrLogRecordNotFound):
		return "Log record not found."
	default:
		return msgContactAdmin
	}
}

func (h *LogHandler) alreadyRevertedMessage(ctx context.Context, revertedBy string) string {
	when := ""
	if revertedBy != "" {
		if rec, err := h.store.FindLogRecord(ctx, revertedBy); err == nil && rec != nil {
			when = rec.CreatedAt.Local().Format(" on 02.01.2006 at 15:04")
		}
	}
	return fmt.Sprintf("This operation was already reverted%s. It cannot be reverted again.", when)
}
