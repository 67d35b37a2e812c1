package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/libris/internal/domain/entities"
)

func int64Ptr(n int64) *int64 { return &n }

func TestToAttributeMap_Book(t *testing.T) {
	book := &entities.Book{
		BookID:    "b1",
		ISBN:      int64Ptr(9780140449174),
		Name:      "Anna Karenina",
		Authors:   "Tolstoy",
		SubjectID: "literature",
	}

	attrs, err := ToAttributeMap(book)
	require.NoError(t, err)

	assert.Equal(t, int64(9780140449174), attrs["isbn"])
	assert.Equal(t, "Anna Karenina", attrs["name"])
	assert.Equal(t, "literature", attrs["subject"])
	assert.Nil(t, attrs["year"])
	assert.NotContains(t, attrs, "id")
	assert.Len(t, attrs, len(book.FieldNames()))
}

func TestToAttributeMap_Deterministic(t *testing.T) {
	reader := &entities.Reader{ReaderID: "r1", Name: "Masha", Books: []string{"3", "1", "2"}}

	first, err := ToAttributeMap(reader)
	require.NoError(t, err)
	second, err := ToAttributeMap(reader)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestToAttributeMap_ToManyOrderInsensitive(t *testing.T) {
	a := &entities.Reader{ReaderID: "r1", Name: "Masha", Books: []string{"3", "1", "2"}}
	b := &entities.Reader{ReaderID: "r1", Name: "Masha", Books: []string{"1", "2", "3"}}

	attrsA, err := ToAttributeMap(a)
	require.NoError(t, err)
	attrsB, err := ToAttributeMap(b)
	require.NoError(t, err)

	assert.Equal(t, attrsA, attrsB)
	assert.Equal(t, []string{"1", "2", "3"}, attrsA["books"])
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name   string
		before map[string]any
		after  map[string]any
		want   map[string]entities.FieldChange
	}{
		{
			name:   "identical maps",
			before: map[string]any{"name": "Anna Karenina", "year": int64(1878)},
			after:  map[string]any{"name": "Anna Karenina", "year": int64(1878)},
			want:   map[string]entities.FieldChange{},
		},
		{
			name:   "changed scalar",
			before: map[string]any{"authors": "Tolstoy"},
			after:  map[string]any{"authors": "L. Tolstoy"},
			want: map[string]entities.FieldChange{
				"authors": {Old: "Tolstoy", New: "L. Tolstoy"},
			},
		},
		{
			name:   "key only in before is ignored",
			before: map[string]any{"authors": "Tolstoy", "city": "Moscow"},
			after:  map[string]any{"authors": "Tolstoy"},
			want:   map[string]entities.FieldChange{},
		},
		{
			name:   "key only in after is ignored",
			before: map[string]any{"authors": "Tolstoy"},
			after:  map[string]any{"authors": "Tolstoy", "city": "Moscow"},
			want:   map[string]entities.FieldChange{},
		},
		{
			name:   "json number equals int64",
			before: map[string]any{"year": int64(1878)},
			after:  map[string]any{"year": float64(1878)},
			want:   map[string]entities.FieldChange{},
		},
		{
			name:   "reordered to-many is not a change",
			before: map[string]any{"books": []string{"1", "2", "3"}},
			after:  map[string]any{"books": []any{"3", "1", "2"}},
			want:   map[string]entities.FieldChange{},
		},
		{
			name:   "set to null",
			before: map[string]any{"year": int64(1878)},
			after:  map[string]any{"year": nil},
			want: map[string]entities.FieldChange{
				"year": {Old: int64(1878), New: nil},
			},
		},
		{
			name:   "to-many membership change",
			before: map[string]any{"books": []string{"1", "2"}},
			after:  map[string]any{"books": []string{"2", "3"}},
			want: map[string]entities.FieldChange{
				"books": {Old: []string{"1", "2"}, New: []string{"2", "3"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Diff(tt.before, tt.after))
		})
	}
}

func TestDiff_UnchangedMapIsEmpty(t *testing.T) {
	items := []entities.Reflectable{
		&entities.Subject{SubjectID: "s1", Name: "Literature"},
		&entities.Book{BookID: "b1", Name: "War and Peace", Year: int64Ptr(1869)},
		&entities.BookInstance{Barcode: "0001", BookID: "b1", RepresentsMultiple: true},
		&entities.Reader{ReaderID: "r1", Role: entities.RoleTeacher, Books: []string{"0002", "0001"}},
	}

	for _, e := range items {
		t.Run(e.Kind(), func(t *testing.T) {
			attrs, err := ToAttributeMap(e)
			require.NoError(t, err)
			assert.Empty(t, Diff(attrs, attrs))
		})
	}
}
