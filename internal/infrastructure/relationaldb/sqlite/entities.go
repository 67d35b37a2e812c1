package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ersonp/libris/internal/domain/entities"
	"github.com/ersonp/libris/internal/domain/ports"
)

// deleteChunk bounds the number of ids bound into one IN clause.
const deleteChunk = 500

// column maps an entity field onto a table column.
type column struct {
	field string
	name  string
}

// joinTable stores a to-many field.
type joinTable struct {
	table   string
	owner   string
	related string
}

// tableSpec maps an entity kind onto its table.
type tableSpec struct {
	table     string
	idColumn  string
	columns   []column
	relations map[string]joinTable
}

var tableSpecs = map[string]tableSpec{
	entities.KindSubject: {
		table:    "subjects",
		idColumn: "id",
		columns:  []column{{"name", "name"}},
	},
	entities.KindBook: {
		table:    "books",
		idColumn: "id",
		columns: []column{
			{"isbn", "isbn"},
			{"name", "name"},
			{"authors", "authors"},
			{"year", "year"},
			{"publisher", "publisher"},
			{"city", "city"},
			{"notes", "notes"},
			{"grade", "grade"},
			{"subject", "subject_id"},
		},
	},
	entities.KindInstance: {
		table:    "book_instances",
		idColumn: "barcode",
		columns: []column{
			{"status", "status"},
			{"notes", "notes"},
			{"book", "book_id"},
			{"represents_multiple", "represents_multiple"},
		},
	},
	entities.KindReader: {
		table:    "readers",
		idColumn: "id",
		columns: []column{
			{"role", "role"},
			{"name", "name"},
			{"notes", "notes"},
			{"group_num", "group_num"},
			{"group_letter", "group_letter"},
		},
		relations: map[string]joinTable{
			"books": {table: "reader_books", owner: "reader_id", related: "instance_id"},
		},
	},
}

func specFor(kind string) (tableSpec, error) {
	spec, ok := tableSpecs[kind]
	if !ok {
		return tableSpec{}, fmt.Errorf("%w: %q", entities.ErrUnknownKind, kind)
	}
	return spec, nil
}

func (s tableSpec) selectList() string {
	names := make([]string, 0, len(s.columns)+1)
	names = append(names, s.idColumn)
	for _, c := range s.columns {
		names = append(names, c.name)
	}
	return strings.Join(names, ", ")
}

func (s tableSpec) columnFor(field string) (string, bool) {
	for _, c := range s.columns {
		if c.field == field {
			return c.name, true
		}
	}
	return "", false
}

// Load returns the entity, or nil if it does not exist.
func (r *Repository) Load(ctx context.Context, kind, id string) (entities.Reflectable, error) {
	items, err := r.LoadMany(ctx, kind, []string{id})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// LoadMany returns the entities that exist among ids.
func (r *Repository) LoadMany(ctx context.Context, kind string, ids []string) ([]entities.Reflectable, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []entities.Reflectable{}, nil
	}

	result := make([]entities.Reflectable, 0, len(ids))
	for start := 0; start < len(ids); start += deleteChunk {
		end := min(start+deleteChunk, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s IN (%s)`,
			spec.selectList(), spec.table, spec.idColumn, placeholders(len(chunk)))

		items, err := r.queryEntities(ctx, kind, spec, query, args...)
		if err != nil {
			return nil, err
		}
		result = append(result, items...)
	}
	return result, nil
}

// List returns entities of a kind ordered by id. A non-positive limit means all.
func (r *Repository) List(ctx context.Context, kind string, limit, offset int) ([]entities.Reflectable, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s ASC LIMIT ? OFFSET ?`,
		spec.selectList(), spec.table, spec.idColumn)
	return r.queryEntities(ctx, kind, spec, query, limit, offset)
}

// Count returns the number of entities of a kind.
func (r *Repository) Count(ctx context.Context, kind string) (int, error) {
	spec, err := specFor(kind)
	if err != nil {
		return 0, err
	}
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, spec.table)
	if err := r.conn(ctx).QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting %s: %w", spec.table, err)
	}
	return count, nil
}

// Exists reports whether an entity exists.
func (r *Repository) Exists(ctx context.Context, kind, id string) (bool, error) {
	spec, err := specFor(kind)
	if err != nil {
		return false, err
	}
	var one int
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE %s = ?`, spec.table, spec.idColumn)
	err = r.conn(ctx).QueryRowContext(ctx, query, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", spec.table, err)
	}
	return true, nil
}

// Save inserts or updates the scalar and to-one columns of an entity.
// An upsert is used rather than INSERT OR REPLACE so that cascading
// foreign keys of existing rows are left alone.
func (r *Repository) Save(ctx context.Context, e entities.Reflectable) error {
	spec, err := specFor(e.Kind())
	if err != nil {
		return err
	}

	names := []string{spec.idColumn}
	args := []any{e.ID()}
	updates := make([]string, 0, len(spec.columns))
	for _, c := range spec.columns {
		v, err := e.Field(c.field)
		if err != nil {
			return err
		}
		names = append(names, c.name)
		args = append(args, v)
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", c.name, c.name))
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s`,
		spec.table, strings.Join(names, ", "), placeholders(len(names)), spec.idColumn, strings.Join(updates, ", "))
	if _, err := r.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("saving %s %s: %w", e.Kind(), e.ID(), mapError(err))
	}
	return nil
}

// SetRelation replaces the whole related set of a to-many field.
func (r *Repository) SetRelation(ctx context.Context, e entities.Reflectable, field string, ids []string) error {
	spec, err := specFor(e.Kind())
	if err != nil {
		return err
	}
	join, ok := spec.relations[field]
	if !ok {
		return fmt.Errorf("%w: %s.%s is not a to-many field", entities.ErrUnknownField, e.Kind(), field)
	}

	return r.RunInTx(ctx, func(txCtx context.Context) error {
		q := r.conn(txCtx)
		del := fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, join.table, join.owner)
		if _, err := q.ExecContext(txCtx, del, e.ID()); err != nil {
			return fmt.Errorf("clearing %s: %w", join.table, err)
		}
		ins := fmt.Sprintf(`INSERT OR IGNORE INTO %s (%s, %s) VALUES (?, ?)`, join.table, join.owner, join.related)
		for _, id := range ids {
			if _, err := q.ExecContext(txCtx, ins, e.ID(), id); err != nil {
				return fmt.Errorf("inserting into %s: %w", join.table, mapError(err))
			}
		}
		return nil
	})
}

// Delete removes an entity. Returns ports.ErrNotFound if it does not exist.
func (r *Repository) Delete(ctx context.Context, kind, id string) error {
	spec, err := specFor(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, spec.table, spec.idColumn)
	res, err := r.conn(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w", kind, id, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w", kind, id, err)
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// BulkCreate inserts all entities, including their to-many sets.
func (r *Repository) BulkCreate(ctx context.Context, items []entities.Reflectable) (int, error) {
	err := r.RunInTx(ctx, func(txCtx context.Context) error {
		for _, e := range items {
			if err := r.Save(txCtx, e); err != nil {
				return err
			}
			if err := r.saveRelations(txCtx, e, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// BulkUpdate writes the named fields of every entity. Returns the number of
// rows that existed.
func (r *Repository) BulkUpdate(ctx context.Context, items []entities.Reflectable, fields []string) (int, error) {
	var updated int
	err := r.RunInTx(ctx, func(txCtx context.Context) error {
		for _, e := range items {
			spec, err := specFor(e.Kind())
			if err != nil {
				return err
			}

			var (
				sets   []string
				args   []any
				toMany []string
			)
			for _, f := range fields {
				if _, ok := spec.relations[f]; ok {
					toMany = append(toMany, f)
					continue
				}
				col, ok := spec.columnFor(f)
				if !ok {
					return fmt.Errorf("%w: %s.%s", entities.ErrUnknownField, e.Kind(), f)
				}
				v, err := e.Field(f)
				if err != nil {
					return err
				}
				sets = append(sets, col+" = ?")
				args = append(args, v)
			}

			exists := true
			if len(sets) > 0 {
				query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = ?`, spec.table, strings.Join(sets, ", "), spec.idColumn)
				res, err := r.conn(txCtx).ExecContext(txCtx, query, append(args, e.ID())...)
				if err != nil {
					return fmt.Errorf("updating %s %s: %w", e.Kind(), e.ID(), mapError(err))
				}
				n, err := res.RowsAffected()
				if err != nil {
					return err
				}
				exists = n > 0
			} else if exists, err = r.Exists(txCtx, e.Kind(), e.ID()); err != nil {
				return err
			}
			if !exists {
				continue
			}

			if err := r.saveRelations(txCtx, e, toMany); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// BulkDelete removes the entities that exist among ids.
func (r *Repository) BulkDelete(ctx context.Context, kind string, ids []string) (int, error) {
	spec, err := specFor(kind)
	if err != nil {
		return 0, err
	}

	var deleted int
	err = r.RunInTx(ctx, func(txCtx context.Context) error {
		for start := 0; start < len(ids); start += deleteChunk {
			end := min(start+deleteChunk, len(ids))
			chunk := ids[start:end]

			args := make([]any, len(chunk))
			for i, id := range chunk {
				args[i] = id
			}
			query := fmt.Sprintf(`DELETE FROM %s WHERE %s IN (%s)`, spec.table, spec.idColumn, placeholders(len(chunk)))
			res, err := r.conn(txCtx).ExecContext(txCtx, query, args...)
			if err != nil {
				return fmt.Errorf("deleting %s: %w", spec.table, mapError(err))
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			deleted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// saveRelations writes the to-many sets of e. A nil fields list means all.
func (r *Repository) saveRelations(ctx context.Context, e entities.Reflectable, fields []string) error {
	spec, err := specFor(e.Kind())
	if err != nil {
		return err
	}
	if fields == nil {
		for name := range spec.relations {
			fields = append(fields, name)
		}
	}
	for _, name := range fields {
		v, err := e.Field(name)
		if err != nil {
			return err
		}
		ids, _ := entities.NormalizeValue(v).([]string)
		if err := r.SetRelation(ctx, e, name, ids); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) queryEntities(ctx context.Context, kind string, spec tableSpec, query string, args ...any) ([]entities.Reflectable, error) {
	rows, err := r.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", spec.table, err)
	}

	var result []entities.Reflectable
	for rows.Next() {
		values := make([]any, len(spec.columns)+1)
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning %s: %w", spec.table, err)
		}

		e, err := entities.New(kind)
		if err != nil {
			rows.Close()
			return nil, err
		}
		id, _ := normalizeScan(values[0]).(string)
		e.SetID(id)
		for i, c := range spec.columns {
			if err := e.SetField(c.field, normalizeScan(values[i+1])); err != nil {
				rows.Close()
				return nil, fmt.Errorf("loading %s %s: %w", kind, id, err)
			}
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// The single connection must be released before relations are queried.
	rows.Close()

	for _, e := range result {
		if err := r.loadRelations(ctx, spec, e); err != nil {
			return nil, err
		}
	}
	if result == nil {
		result = []entities.Reflectable{}
	}
	return result, nil
}

func (r *Repository) loadRelations(ctx context.Context, spec tableSpec, e entities.Reflectable) error {
	for field, join := range spec.relations {
		query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? ORDER BY %s`, join.related, join.table, join.owner, join.related)
		rows, err := r.conn(ctx).QueryContext(ctx, query, e.ID())
		if err != nil {
			return fmt.Errorf("querying %s: %w", join.table, err)
		}
		ids := []string{}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scanning %s: %w", join.table, err)
			}
			ids = append(ids, id)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}
		if err := e.SetField(field, ids); err != nil {
			return err
		}
	}
	return nil
}
