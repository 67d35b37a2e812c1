package entities

import (
	"errors"
	"fmt"
	"sort"
)

// FieldKind classifies a persisted field by how it relates to other entities.
type FieldKind int

const (
	// FieldUnknown is returned for names the entity does not define.
	FieldUnknown FieldKind = iota
	// FieldScalar is a plain column value.
	FieldScalar
	// FieldToOne is a foreign key or one-to-one link, valued by the related id.
	FieldToOne
	// FieldToMany is a many-to-many or reverse one-to-many link,
	// valued by a sorted list of related ids.
	FieldToMany
)

// String returns the kind name.
func (k FieldKind) String() string {
	switch k {
	case FieldScalar:
		return "scalar"
	case FieldToOne:
		return "to-one"
	case FieldToMany:
		return "to-many"
	default:
		return "unknown"
	}
}

// Entity kinds known to the registry.
const (
	KindSubject   = "subject"
	KindBook      = "book"
	KindInstance  = "instance"
	KindReader    = "reader"
	KindLogRecord = "logrecord"
)

var (
	// ErrUnknownKind is returned when a kind has no registered entity type.
	ErrUnknownKind = errors.New("unknown entity kind")
	// ErrUnknownField is returned when a field name is not defined on an entity.
	ErrUnknownField = errors.New("unknown field")
)

// Reflectable is implemented by every persisted entity type. The operations
// log and the reversion engine only ever see entities through it.
type Reflectable interface {
	Kind() string
	ID() string
	SetID(id string)
	FieldNames() []string
	FieldKind(name string) FieldKind
	// RelatedKind returns the kind a relation field points at, or "" for scalars.
	RelatedKind(name string) string
	Field(name string) (any, error)
	SetField(name string, value any) error
	// String returns a human-readable label.
	String() string
}

var constructors = map[string]func() Reflectable{
	KindSubject:  func() Reflectable { return &Subject{} },
	KindBook:     func() Reflectable { return &Book{} },
	KindInstance: func() Reflectable { return &BookInstance{} },
	KindReader:   func() Reflectable { return &Reader{Role: RoleStudent, Books: []string{}} },
}

// New returns an empty entity of the given kind.
func New(kind string) (Reflectable, error) {
	ctor, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return ctor(), nil
}

// Kinds returns all registered entity kinds, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(constructors))
	for k := range constructors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// IsKnownKind reports whether kind has a registered entity type.
func IsKnownKind(kind string) bool {
	_, ok := constructors[kind]
	return ok
}

// field describes one persisted field of T.
type field[T any] struct {
	name    string
	kind    FieldKind
	related string
	get     func(*T) any
	set     func(*T, any) error
}

// schema is the ordered field table shared by all instances of T.
type schema[T any] struct {
	kind   string
	fields []field[T]
	index  map[string]int
	names  []string
}

func newSchema[T any](kind string, fields ...field[T]) *schema[T] {
	s := &schema[T]{
		kind:   kind,
		fields: fields,
		index:  make(map[string]int, len(fields)),
		names:  make([]string, 0, len(fields)),
	}
	for i, f := range fields {
		s.index[f.name] = i
		s.names = append(s.names, f.name)
	}
	return s
}

func (s *schema[T]) fieldNames() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func (s *schema[T]) lookup(name string) (*field[T], bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return &s.fields[i], true
}

func (s *schema[T]) fieldKind(name string) FieldKind {
	if f, ok := s.lookup(name); ok {
		return f.kind
	}
	return FieldUnknown
}

func (s *schema[T]) relatedKind(name string) string {
	if f, ok := s.lookup(name); ok {
		return f.related
	}
	return ""
}

func (s *schema[T]) get(e *T, name string) (any, error) {
	f, ok := s.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, s.kind, name)
	}
	return f.get(e), nil
}

func (s *schema[T]) set(e *T, name string, value any) error {
	f, ok := s.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, s.kind, name)
	}
	if err := f.set(e, value); err != nil {
		return fmt.Errorf("setting %s.%s: %w", s.kind, name, err)
	}
	return nil
}
