package entities

import "fmt"

// Copy statuses.
const (
	StatusActive     int64 = 0
	StatusWrittenOff int64 = 1
)

// BookInstance is a physical copy of a Book, identified by its barcode.
type BookInstance struct {
	Barcode            string `json:"barcode"`
	Status             int64  `json:"status"`
	Notes              string `json:"notes,omitempty"`
	BookID             string `json:"book"`
	RepresentsMultiple bool   `json:"represents_multiple"`
}

var instanceSchema = newSchema(KindInstance,
	field[BookInstance]{
		name: "status",
		kind: FieldScalar,
		get:  func(i *BookInstance) any { return i.Status },
		set: func(i *BookInstance, v any) error {
			n, err := asInt64(v)
			if err != nil {
				return err
			}
			if n != StatusActive && n != StatusWrittenOff {
				return fmt.Errorf("invalid status %d", n)
			}
			i.Status = n
			return nil
		},
	},
	field[BookInstance]{
		name: "notes",
		kind: FieldScalar,
		get:  func(i *BookInstance) any { return i.Notes },
		set: func(i *BookInstance, v any) (err error) {
			i.Notes, err = asString(v)
			return err
		},
	},
	field[BookInstance]{
		name:    "book",
		kind:    FieldToOne,
		related: KindBook,
		get:     func(i *BookInstance) any { return optionalID(i.BookID) },
		set: func(i *BookInstance, v any) (err error) {
			i.BookID, err = asString(v)
			return err
		},
	},
	field[BookInstance]{
		name: "represents_multiple",
		kind: FieldScalar,
		get:  func(i *BookInstance) any { return i.RepresentsMultiple },
		set: func(i *BookInstance, v any) (err error) {
			i.RepresentsMultiple, err = asBool(v)
			return err
		},
	},
)

func (i *BookInstance) Kind() string                      { return KindInstance }
func (i *BookInstance) ID() string                        { return i.Barcode }
func (i *BookInstance) SetID(id string)                   { i.Barcode = id }
func (i *BookInstance) FieldNames() []string              { return instanceSchema.fieldNames() }
func (i *BookInstance) FieldKind(name string) FieldKind   { return instanceSchema.fieldKind(name) }
func (i *BookInstance) RelatedKind(name string) string    { return instanceSchema.relatedKind(name) }
func (i *BookInstance) Field(name string) (any, error)    { return instanceSchema.get(i, name) }
func (i *BookInstance) SetField(name string, v any) error { return instanceSchema.set(i, name, v) }

func (i *BookInstance) String() string {
	return fmt.Sprintf("#%s · %s", i.Barcode, i.BookID)
}
