package entities

// Subject is a school subject books are filed under, e.g. "mathematics".
type Subject struct {
	SubjectID string `json:"id"`
	Name      string `json:"name"`
}

var subjectSchema = newSchema(KindSubject,
	field[Subject]{
		name: "name",
		kind: FieldScalar,
		get:  func(s *Subject) any { return s.Name },
		set: func(s *Subject, v any) (err error) {
			s.Name, err = asString(v)
			return err
		},
	},
)

func (s *Subject) Kind() string                      { return KindSubject }
func (s *Subject) ID() string                        { return s.SubjectID }
func (s *Subject) SetID(id string)                   { s.SubjectID = id }
func (s *Subject) FieldNames() []string              { return subjectSchema.fieldNames() }
func (s *Subject) FieldKind(name string) FieldKind   { return subjectSchema.fieldKind(name) }
func (s *Subject) RelatedKind(name string) string    { return subjectSchema.relatedKind(name) }
func (s *Subject) Field(name string) (any, error)    { return subjectSchema.get(s, name) }
func (s *Subject) SetField(name string, v any) error { return subjectSchema.set(s, name, v) }
func (s *Subject) String() string                    { return s.Name }
