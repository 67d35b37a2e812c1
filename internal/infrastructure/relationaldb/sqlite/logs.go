package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ersonp/libris/internal/domain/entities"
	"github.com/ersonp/libris/internal/domain/ports"
)

const logRecordColumns = `id, created_at, operation, actor_id, entity_kind, affected_ids, details, snapshot_ref, reverted_by`

// CreateLogRecord inserts a log record. The reverted-by marker lives in its
// own column and is not part of the stored details.
func (r *Repository) CreateLogRecord(ctx context.Context, record *entities.LogRecord) error {
	affected, err := json.Marshal(record.AffectedIDs)
	if err != nil {
		return fmt.Errorf("marshaling affected ids: %w", err)
	}
	details := record.Details
	details.RevertedBy = ""
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshaling details: %w", err)
	}

	query := `
		INSERT INTO log_records (` + logRecordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.conn(ctx).ExecContext(ctx, query,
		record.ID,
		record.CreatedAt.UTC(),
		string(record.Operation),
		nullString(record.ActorID),
		nullString(record.EntityKind),
		string(affected),
		string(payload),
		nullString(record.SnapshotRef),
		nullString(record.Details.RevertedBy),
	)
	if err != nil {
		return fmt.Errorf("saving log record: %w", err)
	}
	return nil
}

// FindLogRecord returns the record, or nil if it does not exist.
func (r *Repository) FindLogRecord(ctx context.Context, id string) (*entities.LogRecord, error) {
	query := `SELECT ` + logRecordColumns + ` FROM log_records WHERE id = ?`
	row := r.conn(ctx).QueryRowContext(ctx, query, id)

	rec, err := scanLogRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListLogRecords returns records newest first.
func (r *Repository) ListLogRecords(ctx context.Context, filter ports.LogFilter) ([]entities.LogRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Operation != "" {
		where = append(where, "operation = ?")
		args = append(args, string(filter.Operation))
	}
	if filter.EntityKind != "" {
		where = append(where, "entity_kind = ?")
		args = append(args, filter.EntityKind)
	}
	if filter.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, filter.ActorID)
	}

	query := `SELECT ` + logRecordColumns + ` FROM log_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	rows, err := r.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying log records: %w", err)
	}
	defer rows.Close()

	result := []entities.LogRecord{}
	for rows.Next() {
		rec, err := scanLogRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

// CountLogRecords returns the number of log records.
func (r *Repository) CountLogRecords(ctx context.Context) (int, error) {
	var count int
	if err := r.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM log_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting log records: %w", err)
	}
	return count, nil
}

// MarkReverted sets reverted_by only if it is still empty.
func (r *Repository) MarkReverted(ctx context.Context, id, revertedBy string) error {
	res, err := r.conn(ctx).ExecContext(ctx,
		`UPDATE log_records SET reverted_by = ? WHERE id = ? AND reverted_by IS NULL`,
		revertedBy, id,
	)
	if err != nil {
		return fmt.Errorf("marking log record reverted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking log record reverted: %w", err)
	}
	if n > 0 {
		return nil
	}

	var one int
	err = r.conn(ctx).QueryRowContext(ctx, `SELECT 1 FROM log_records WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return ports.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking log record: %w", err)
	}
	return ports.ErrAlreadyMarked
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLogRecord(s rowScanner) (*entities.LogRecord, error) {
	var (
		rec                                  entities.LogRecord
		op, affected, details                string
		actor, kind, snapshotRef, revertedBy sql.NullString
		createdAt                            time.Time
	)
	err := s.Scan(&rec.ID, &createdAt, &op, &actor, &kind, &affected, &details, &snapshotRef, &revertedBy)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning log record: %w", err)
	}

	rec.CreatedAt = createdAt.UTC()
	rec.Operation = entities.Operation(op)
	rec.ActorID = actor.String
	rec.EntityKind = kind.String
	rec.SnapshotRef = snapshotRef.String

	if err := json.Unmarshal([]byte(affected), &rec.AffectedIDs); err != nil {
		return nil, fmt.Errorf("decoding affected ids of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(details), &rec.Details); err != nil {
		return nil, fmt.Errorf("decoding details of %s: %w", rec.ID, err)
	}
	rec.Details.RevertedBy = revertedBy.String
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
