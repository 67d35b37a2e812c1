// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"
	"sort"

	"github.com/ersonp/libris/internal/domain/entities"
	"github.com/ersonp/libris/internal/domain/ports"
)

// RelationalDB is an in-memory implementation of ports.RelationalDB.
// RunInTx rolls the whole state back when fn fails.
type RelationalDB struct {
	Entities    map[string]map[string]entities.Reflectable
	Records     []*entities.LogRecord
	Collections map[string][]map[string]any

	// Err is returned by every call when set.
	Err error
	// CreateLogErr is returned by CreateLogRecord when set.
	CreateLogErr error
	// MarkErr is returned by MarkReverted when set.
	MarkErr error

	// Call tracking
	TxCount       int
	RollbackCount int

	inTx bool
}

// NewRelationalDB creates a new mock RelationalDB.
func NewRelationalDB() *RelationalDB {
	return &RelationalDB{
		Entities:    make(map[string]map[string]entities.Reflectable),
		Collections: make(map[string][]map[string]any),
	}
}

// EnsureSchema creates the database schema if it doesn't exist.
func (m *RelationalDB) EnsureSchema(_ context.Context) error {
	return m.Err
}

// Close closes the database connection.
func (m *RelationalDB) Close() error {
	return nil
}

// RunInTx runs fn and restores the previous state if it fails.
// Nested calls join the outer transaction.
func (m *RelationalDB) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if m.inTx {
		return fn(ctx)
	}

	m.TxCount++
	saved := m.state()
	m.inTx = true
	err := fn(ctx)
	m.inTx = false
	if err != nil {
		m.RollbackCount++
		m.restore(saved)
	}
	return err
}

// Put stores a copy of e, bypassing the log.
func (m *RelationalDB) Put(e entities.Reflectable) {
	m.bucket(e.Kind())[e.ID()] = Clone(e)
}

// Get returns a copy of the stored entity, or nil.
func (m *RelationalDB) Get(kind, id string) entities.Reflectable {
	e, ok := m.Entities[kind][id]
	if !ok {
		return nil
	}
	return Clone(e)
}

// Entity methods.

// Load returns a copy of the entity, or nil if it does not exist.
func (m *RelationalDB) Load(_ context.Context, kind, id string) (entities.Reflectable, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Get(kind, id), nil
}

// LoadMany returns copies of the entities that exist among ids.
func (m *RelationalDB) LoadMany(_ context.Context, kind string, ids []string) ([]entities.Reflectable, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	var out []entities.Reflectable
	for _, id := range ids {
		if e := m.Get(kind, id); e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// List returns entities of a kind ordered by id.
func (m *RelationalDB) List(_ context.Context, kind string, limit, offset int) ([]entities.Reflectable, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	ids := make([]string, 0, len(m.Entities[kind]))
	for id := range m.Entities[kind] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if offset > len(ids) {
		offset = len(ids)
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	out := make([]entities.Reflectable, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.Get(kind, id))
	}
	return out, nil
}

// Count returns the number of entities of a kind.
func (m *RelationalDB) Count(_ context.Context, kind string) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	return len(m.Entities[kind]), nil
}

// Exists reports whether an entity exists.
func (m *RelationalDB) Exists(_ context.Context, kind, id string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	_, ok := m.Entities[kind][id]
	return ok, nil
}

// Save stores the scalar and to-one fields of e. The stored to-many sets
// are kept.
func (m *RelationalDB) Save(_ context.Context, e entities.Reflectable) error {
	if m.Err != nil {
		return m.Err
	}
	saved := Clone(e)
	if prev, ok := m.Entities[e.Kind()][e.ID()]; ok {
		copyFields(saved, prev, entities.FieldToMany)
	} else {
		clearToMany(saved)
	}
	m.bucket(e.Kind())[e.ID()] = saved
	return nil
}

// SetRelation replaces a stored to-many set.
func (m *RelationalDB) SetRelation(_ context.Context, e entities.Reflectable, field string, ids []string) error {
	if m.Err != nil {
		return m.Err
	}
	stored, ok := m.Entities[e.Kind()][e.ID()]
	if !ok {
		return ports.ErrNotFound
	}
	return stored.SetField(field, append([]string(nil), ids...))
}

// Delete removes an entity.
func (m *RelationalDB) Delete(_ context.Context, kind, id string) error {
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.Entities[kind][id]; !ok {
		return ports.ErrNotFound
	}
	delete(m.Entities[kind], id)
	return nil
}

// BulkCreate stores all entities including their to-many sets.
func (m *RelationalDB) BulkCreate(_ context.Context, items []entities.Reflectable) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	for _, e := range items {
		m.Put(e)
	}
	return len(items), nil
}

// BulkUpdate writes the named fields of every entity.
func (m *RelationalDB) BulkUpdate(_ context.Context, items []entities.Reflectable, fields []string) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	n := 0
	for _, e := range items {
		stored, ok := m.Entities[e.Kind()][e.ID()]
		if !ok {
			continue
		}
		for _, name := range fields {
			v, err := e.Field(name)
			if err != nil {
				return n, err
			}
			if err := stored.SetField(name, v); err != nil {
				return n, err
			}
		}
		n++
	}
	return n, nil
}

// BulkDelete removes the entities that exist among ids.
func (m *RelationalDB) BulkDelete(_ context.Context, kind string, ids []string) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	n := 0
	for _, id := range ids {
		if _, ok := m.Entities[kind][id]; ok {
			delete(m.Entities[kind], id)
			n++
		}
	}
	return n, nil
}

// Log record methods.

// CreateLogRecord appends a copy of record.
func (m *RelationalDB) CreateLogRecord(_ context.Context, record *entities.LogRecord) error {
	if m.Err != nil {
		return m.Err
	}
	if m.CreateLogErr != nil {
		return m.CreateLogErr
	}
	m.Records = append(m.Records, cloneRecord(record))
	return nil
}

// FindLogRecord returns a copy of the record, or nil.
func (m *RelationalDB) FindLogRecord(_ context.Context, id string) (*entities.LogRecord, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	for _, r := range m.Records {
		if r.ID == id {
			return cloneRecord(r), nil
		}
	}
	return nil, nil
}

// ListLogRecords returns records newest first.
func (m *RelationalDB) ListLogRecords(_ context.Context, filter ports.LogFilter) ([]entities.LogRecord, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	var out []entities.LogRecord
	for i := len(m.Records) - 1; i >= 0; i-- {
		r := m.Records[i]
		if filter.Operation != "" && r.Operation != filter.Operation {
			continue
		}
		if filter.EntityKind != "" && r.EntityKind != filter.EntityKind {
			continue
		}
		if filter.ActorID != "" && r.ActorID != filter.ActorID {
			continue
		}
		out = append(out, *cloneRecord(r))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// CountLogRecords returns the number of records.
func (m *RelationalDB) CountLogRecords(_ context.Context) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	return len(m.Records), nil
}

// MarkReverted sets the reverted-by marker once.
func (m *RelationalDB) MarkReverted(_ context.Context, id, revertedBy string) error {
	if m.Err != nil {
		return m.Err
	}
	if m.MarkErr != nil {
		return m.MarkErr
	}
	for _, r := range m.Records {
		if r.ID != id {
			continue
		}
		if r.Details.RevertedBy != "" {
			return ports.ErrAlreadyMarked
		}
		r.Details.RevertedBy = revertedBy
		return nil
	}
	return ports.ErrNotFound
}

// Collection methods.

// CollectionColumns returns the keys of the first row, sorted.
func (m *RelationalDB) CollectionColumns(_ context.Context, collection string) ([]string, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	rows := m.Collections[collection]
	if len(rows) == 0 {
		return nil, nil
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols, nil
}

// DumpCollection returns copies of every row.
func (m *RelationalDB) DumpCollection(_ context.Context, collection string) ([]map[string]any, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return cloneRows(m.Collections[collection]), nil
}

// InsertRows appends copies of rows.
func (m *RelationalDB) InsertRows(_ context.Context, collection string, rows []map[string]any) error {
	if m.Err != nil {
		return m.Err
	}
	m.Collections[collection] = append(m.Collections[collection], cloneRows(rows)...)
	return nil
}

// DeleteCollection removes every row.
func (m *RelationalDB) DeleteCollection(_ context.Context, collection string) error {
	if m.Err != nil {
		return m.Err
	}
	delete(m.Collections, collection)
	return nil
}

// Clone returns a deep copy of e.
func Clone(e entities.Reflectable) entities.Reflectable {
	c, err := entities.New(e.Kind())
	if err != nil {
		panic(err)
	}
	c.SetID(e.ID())
	copyFields(c, e, entities.FieldUnknown)
	return c
}

// copyFields copies every field of src onto dst, or only fields of the given
// kind unless it is FieldUnknown.
func copyFields(dst, src entities.Reflectable, only entities.FieldKind) {
	for _, name := range src.FieldNames() {
		if only != entities.FieldUnknown && src.FieldKind(name) != only {
			continue
		}
		v, err := src.Field(name)
		if err != nil {
			panic(err)
		}
		if err := dst.SetField(name, v); err != nil {
			panic(err)
		}
	}
}

func clearToMany(e entities.Reflectable) {
	for _, name := range e.FieldNames() {
		if e.FieldKind(name) == entities.FieldToMany {
			_ = e.SetField(name, []string{})
		}
	}
}

func (m *RelationalDB) bucket(kind string) map[string]entities.Reflectable {
	b, ok := m.Entities[kind]
	if !ok {
		b = make(map[string]entities.Reflectable)
		m.Entities[kind] = b
	}
	return b
}

type dbState struct {
	entities    map[string]map[string]entities.Reflectable
	records     []*entities.LogRecord
	collections map[string][]map[string]any
}

func (m *RelationalDB) state() dbState {
	s := dbState{
		entities:    make(map[string]map[string]entities.Reflectable, len(m.Entities)),
		records:     make([]*entities.LogRecord, 0, len(m.Records)),
		collections: make(map[string][]map[string]any, len(m.Collections)),
	}
	for kind, bucket := range m.Entities {
		cp := make(map[string]entities.Reflectable, len(bucket))
		for id, e := range bucket {
			cp[id] = Clone(e)
		}
		s.entities[kind] = cp
	}
	for _, r := range m.Records {
		s.records = append(s.records, cloneRecord(r))
	}
	for name, rows := range m.Collections {
		s.collections[name] = cloneRows(rows)
	}
	return s
}

func (m *RelationalDB) restore(s dbState) {
	m.Entities = s.entities
	m.Records = s.records
	m.Collections = s.collections
}

func cloneRecord(r *entities.LogRecord) *entities.LogRecord {
	c := *r
	c.AffectedIDs = append([]string(nil), r.AffectedIDs...)
	c.Details.ModifiedFields = append([]string(nil), r.Details.ModifiedFields...)
	if r.Details.FieldChanges != nil {
		c.Details.FieldChanges = make(map[string]entities.FieldChange, len(r.Details.FieldChanges))
		for k, v := range r.Details.FieldChanges {
			c.Details.FieldChanges[k] = v
		}
	}
	if r.Details.DeletedObject != nil {
		c.Details.DeletedObject = make(map[string]any, len(r.Details.DeletedObject))
		for k, v := range r.Details.DeletedObject {
			c.Details.DeletedObject[k] = v
		}
	}
	if r.Details.ObjectsRepr != nil {
		c.Details.ObjectsRepr = make(map[string]string, len(r.Details.ObjectsRepr))
		for k, v := range r.Details.ObjectsRepr {
			c.Details.ObjectsRepr[k] = v
		}
	}
	return &c
}

func cloneRows(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		cp := make(map[string]any, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}
