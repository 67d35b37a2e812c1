package entities

import "fmt"

// maxBookLabel is the rune length after which a book label is truncated.
const maxBookLabel = 70

// Book is a catalog record. Many physical copies (BookInstance) may refer to it.
type Book struct {
	BookID    string `json:"id"`
	ISBN      *int64 `json:"isbn,omitempty"`
	Name      string `json:"name"`
	Authors   string `json:"authors"`
	Year      *int64 `json:"year,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	City      string `json:"city,omitempty"`
	Notes     string `json:"notes,omitempty"`
	Grade     string `json:"grade,omitempty"`
	SubjectID string `json:"subject,omitempty"`
}

var bookSchema = newSchema(KindBook,
	field[Book]{
		name: "isbn",
		kind: FieldScalar,
		get:  func(b *Book) any { return optionalInt(b.ISBN) },
		set: func(b *Book, v any) (err error) {
			b.ISBN, err = asNullInt64(v)
			return err
		},
	},
	field[Book]{
		name: "name",
		kind: FieldScalar,
		get:  func(b *Book) any { return b.Name },
		set: func(b *Book, v any) (err error) {
			b.Name, err = asString(v)
			return err
		},
	},
	field[Book]{
		name: "authors",
		kind: FieldScalar,
		get:  func(b *Book) any { return b.Authors },
		set: func(b *Book, v any) (err error) {
			b.Authors, err = asString(v)
			return err
		},
	},
	field[Book]{
		name: "year",
		kind: FieldScalar,
		get:  func(b *Book) any { return optionalInt(b.Year) },
		set: func(b *Book, v any) (err error) {
			b.Year, err = asNullInt64(v)
			return err
		},
	},
	field[Book]{
		name: "publisher",
		kind: FieldScalar,
		get:  func(b *Book) any { return b.Publisher },
		set: func(b *Book, v any) (err error) {
			b.Publisher, err = asString(v)
			return err
		},
	},
	field[Book]{
		name: "city",
		kind: FieldScalar,
		get:  func(b *Book) any { return b.City },
		set: func(b *Book, v any) (err error) {
			b.City, err = asString(v)
			return err
		},
	},
	field[Book]{
		name: "notes",
		kind: FieldScalar,
		get:  func(b *Book) any { return b.Notes },
		set: func(b *Book, v any) (err error) {
			b.Notes, err = asString(v)
			return err
		},
	},
	field[Book]{
		name: "grade",
		kind: FieldScalar,
		get:  func(b *Book) any { return b.Grade },
		set: func(b *Book, v any) (err error) {
			b.Grade, err = asString(v)
			return err
		},
	},
	field[Book]{
		name:    "subject",
		kind:    FieldToOne,
		related: KindSubject,
		get:     func(b *Book) any { return optionalID(b.SubjectID) },
		set: func(b *Book, v any) (err error) {
			b.SubjectID, err = asString(v)
			return err
		},
	},
)

func (b *Book) Kind() string                      { return KindBook }
func (b *Book) ID() string                        { return b.BookID }
func (b *Book) SetID(id string)                   { b.BookID = id }
func (b *Book) FieldNames() []string              { return bookSchema.fieldNames() }
func (b *Book) FieldKind(name string) FieldKind   { return bookSchema.fieldKind(name) }
func (b *Book) RelatedKind(name string) string    { return bookSchema.relatedKind(name) }
func (b *Book) Field(name string) (any, error)    { return bookSchema.get(b, name) }
func (b *Book) SetField(name string, v any) error { return bookSchema.set(b, name, v) }

// String returns "<name> — <authors>", truncated for long titles.
func (b *Book) String() string {
	label := fmt.Sprintf("%s — %s", b.Name, b.Authors)
	runes := []rune(label)
	if len(runes) > maxBookLabel {
		return string(runes[:maxBookLabel]) + "..."
	}
	return label
}
