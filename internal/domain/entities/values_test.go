package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortedIDs(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, SortedIDs([]string{"3", " 1", "2", "", "3"}))
	assert.Equal(t, []string{}, SortedIDs(nil))
}

func TestNormalizeValue(t *testing.T) {
	n := int64(7)
	tests := []struct {
		name     string
		input    any
		expected any
	}{
		{name: "int", input: 7, expected: int64(7)},
		{name: "int32", input: int32(7), expected: int64(7)},
		{name: "whole float", input: float64(7), expected: int64(7)},
		{name: "fractional float", input: 7.5, expected: 7.5},
		{name: "pointer", input: &n, expected: int64(7)},
		{name: "nil pointer", input: (*int64)(nil), expected: nil},
		{name: "bytes", input: []byte("abc"), expected: "abc"},
		{name: "string slice", input: []string{"b", "a"}, expected: []string{"a", "b"}},
		{name: "any slice", input: []any{"b", float64(1)}, expected: []string{"1", "b"}},
		{name: "string", input: "abc", expected: "abc"},
		{name: "nil", input: nil, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeValue(tt.input))
		})
	}
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, ValuesEqual(int64(1878), float64(1878)))
	assert.True(t, ValuesEqual([]string{"2", "1"}, []any{"1", "2"}))
	assert.False(t, ValuesEqual("1878", int64(1878)))
	assert.False(t, ValuesEqual(nil, ""))
}

func TestCoercion(t *testing.T) {
	t.Run("int64", func(t *testing.T) {
		n, err := asInt64(" 42 ")
		assert.NoError(t, err)
		assert.Equal(t, int64(42), n)

		_, err = asInt64(4.2)
		assert.Error(t, err)

		_, err = asInt64("forty")
		assert.Error(t, err)
	})

	t.Run("nullable int64", func(t *testing.T) {
		p, err := asNullInt64("")
		assert.NoError(t, err)
		assert.Nil(t, p)

		p, err = asNullInt64(float64(1999))
		assert.NoError(t, err)
		assert.Equal(t, int64(1999), *p)
	})

	t.Run("bool", func(t *testing.T) {
		b, err := asBool("true")
		assert.NoError(t, err)
		assert.True(t, b)

		b, err = asBool(int64(0))
		assert.NoError(t, err)
		assert.False(t, b)

		_, err = asBool("maybe")
		assert.Error(t, err)
	})

	t.Run("ids", func(t *testing.T) {
		ids, err := asIDs("3,1,,2")
		assert.NoError(t, err)
		assert.Equal(t, []string{"1", "2", "3"}, ids)

		_, err = asIDs(42)
		assert.Error(t, err)
	})
}
