package entities

import (
	"fmt"
	"strconv"
)

// Reader roles.
const (
	RoleTeacher = "TE"
	RoleStudent = "ST"
	RoleOther   = "OTH"
)

// Reader is a library patron. Books holds the barcodes of the copies the
// reader currently has.
type Reader struct {
	ReaderID    string   `json:"id"`
	Role        string   `json:"role"`
	Name        string   `json:"name"`
	Notes       string   `json:"notes,omitempty"`
	GroupNum    *int64   `json:"group_num,omitempty"`
	GroupLetter string   `json:"group_letter,omitempty"`
	Books       []string `json:"books"`
}

var readerSchema = newSchema(KindReader,
	field[Reader]{
		name: "role",
		kind: FieldScalar,
		get:  func(r *Reader) any { return r.Role },
		set: func(r *Reader, v any) error {
			role, err := asString(v)
			if err != nil {
				return err
			}
			switch role {
			case "":
				role = RoleStudent
			case RoleTeacher, RoleStudent, RoleOther:
			default:
				return fmt.Errorf("invalid role %q", role)
			}
			r.Role = role
			return nil
		},
	},
	field[Reader]{
		name: "name",
		kind: FieldScalar,
		get:  func(r *Reader) any { return r.Name },
		set: func(r *Reader, v any) (err error) {
			r.Name, err = asString(v)
			return err
		},
	},
	field[Reader]{
		name: "notes",
		kind: FieldScalar,
		get:  func(r *Reader) any { return r.Notes },
		set: func(r *Reader, v any) (err error) {
			r.Notes, err = asString(v)
			return err
		},
	},
	field[Reader]{
		name: "group_num",
		kind: FieldScalar,
		get:  func(r *Reader) any { return optionalInt(r.GroupNum) },
		set: func(r *Reader, v any) (err error) {
			r.GroupNum, err = asNullInt64(v)
			return err
		},
	},
	field[Reader]{
		name: "group_letter",
		kind: FieldScalar,
		get:  func(r *Reader) any { return r.GroupLetter },
		set: func(r *Reader, v any) (err error) {
			r.GroupLetter, err = asString(v)
			return err
		},
	},
	field[Reader]{
		name:    "books",
		kind:    FieldToMany,
		related: KindInstance,
		get: func(r *Reader) any {
			return SortedIDs(r.Books)
		},
		set: func(r *Reader, v any) (err error) {
			r.Books, err = asIDs(v)
			return err
		},
	},
)

func (r *Reader) Kind() string                      { return KindReader }
func (r *Reader) ID() string                        { return r.ReaderID }
func (r *Reader) SetID(id string)                   { r.ReaderID = id }
func (r *Reader) FieldNames() []string              { return readerSchema.fieldNames() }
func (r *Reader) FieldKind(name string) FieldKind   { return readerSchema.fieldKind(name) }
func (r *Reader) RelatedKind(name string) string    { return readerSchema.relatedKind(name) }
func (r *Reader) Field(name string) (any, error)    { return readerSchema.get(r, name) }
func (r *Reader) SetField(name string, v any) error { return readerSchema.set(r, name, v) }

// Group returns the class, e.g. "11a", or "" when unknown.
func (r *Reader) Group() string {
	if r.GroupNum == nil {
		return r.GroupLetter
	}
	return strconv.FormatInt(*r.GroupNum, 10) + r.GroupLetter
}

func (r *Reader) String() string {
	if g := r.Group(); g != "" {
		return fmt.Sprintf("%s (%s)", r.Name, g)
	}
	return r.Name
}
