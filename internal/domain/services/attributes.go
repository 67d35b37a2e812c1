package services

import (
	"fmt"

	"github.com/ersonp/libris/internal/domain/entities"
)

// ToAttributeMap returns the persisted state of an entity as field -> value.
// To-one relations are valued by the related id and to-many relations by the
// sorted list of related ids, so two calls on an unchanged entity are equal.
func ToAttributeMap(e entities.Reflectable) (map[string]any, error) {
	names := e.FieldNames()
	attrs := make(map[string]any, len(names))
	for _, name := range names {
		v, err := e.Field(name)
		if err != nil {
			return nil, fmt.Errorf("reading %s.%s: %w", e.Kind(), name, err)
		}
		attrs[name] = entities.NormalizeValue(v)
	}
	return attrs, nil
}

// Diff returns the fields present in both maps whose values differ.
// Keys present in only one map are never reported.
func Diff(before, after map[string]any) map[string]entities.FieldChange {
	changes := make(map[string]entities.FieldChange)
	for name, old := range before {
		cur, ok := after[name]
		if !ok {
			continue
		}
		if entities.ValuesEqual(old, cur) {
			continue
		}
		changes[name] = entities.FieldChange{
			Old: entities.NormalizeValue(old),
			New: entities.NormalizeValue(cur),
		}
	}
	return changes
}

// restrict returns the entries of attrs whose keys are in keys.
func restrict(attrs map[string]any, keys map[string]any) map[string]any {
	out := make(map[string]any, len(keys))
	for k := range keys {
		if v, ok := attrs[k]; ok {
			out[k] = v
		}
	}
	return out
}
