package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// errUnknownCollection is returned for collection names outside the schema.
var errUnknownCollection = errors.New("unknown collection")

// collections lists the tables the snapshot facility may dump and flush.
// log_records is not among them: restoring a snapshot never rewinds the log.
var collections = map[string]bool{
	"subjects":       true,
	"books":          true,
	"book_instances": true,
	"readers":        true,
	"reader_books":   true,
}

func checkCollection(name string) error {
	if !collections[name] {
		return fmt.Errorf("%w: %q", errUnknownCollection, name)
	}
	return nil
}

// CollectionColumns returns the column names of a collection in table order.
func (r *Repository) CollectionColumns(ctx context.Context, collection string) ([]string, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).QueryContext(ctx, fmt.Sprintf(`SELECT name FROM pragma_table_info('%s') ORDER BY cid`, collection))
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", collection, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning columns of %s: %w", collection, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// DumpCollection returns every row of a collection in insertion order.
func (r *Repository) DumpCollection(ctx context.Context, collection string) ([]map[string]any, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s ORDER BY rowid`, collection))
	if err != nil {
		return nil, fmt.Errorf("dumping %s: %w", collection, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("dumping %s: %w", collection, err)
	}

	result := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", collection, err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = normalizeScan(values[i])
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// InsertRows inserts rows into a collection. Columns not in a row take their
// default.
func (r *Repository) InsertRows(ctx context.Context, collection string, rows []map[string]any) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	return r.RunInTx(ctx, func(txCtx context.Context) error {
		for _, row := range rows {
			cols := make([]string, 0, len(row))
			for c := range row {
				cols = append(cols, c)
			}
			sort.Strings(cols)

			args := make([]any, len(cols))
			quoted := make([]string, len(cols))
			for i, c := range cols {
				args[i] = row[c]
				quoted[i] = `"` + strings.ReplaceAll(c, `"`, `""`) + `"`
			}
			query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, collection, strings.Join(quoted, ", "), placeholders(len(cols)))
			if _, err := r.conn(txCtx).ExecContext(txCtx, query, args...); err != nil {
				return fmt.Errorf("inserting into %s: %w", collection, mapError(err))
			}
		}
		return nil
	})
}

// DeleteCollection deletes every row of a collection. Returns an error
// wrapping ports.ErrForeignKey if other rows still reference them.
func (r *Repository) DeleteCollection(ctx context.Context, collection string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if _, err := r.conn(ctx).ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, collection)); err != nil {
		return fmt.Errorf("deleting %s: %w", collection, mapError(err))
	}
	return nil
}
