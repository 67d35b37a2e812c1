package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/ersonp/libris/internal/domain/entities"
	"github.com/ersonp/libris/internal/domain/ports"
)

// ApplyAttributes assigns data to e and persists it. Scalars and to-one
// fields are set first and the entity is saved; to-many fields need a
// persisted id, so their related sets are replaced afterwards.
func ApplyAttributes(ctx context.Context, store ports.EntityStore, e entities.Reflectable, data map[string]any) error {
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	var deferred []string
	for _, name := range names {
		switch e.FieldKind(name) {
		case entities.FieldToMany:
			deferred = append(deferred, name)
		case entities.FieldUnknown:
			return fmt.Errorf("%w: %s.%s", entities.ErrUnknownField, e.Kind(), name)
		default:
			if err := e.SetField(name, data[name]); err != nil {
				return err
			}
		}
	}

	if err := store.Save(ctx, e); err != nil {
		return fmt.Errorf("saving %s %s: %w", e.Kind(), e.ID(), err)
	}

	for _, name := range deferred {
		if err := e.SetField(name, data[name]); err != nil {
			return err
		}
		if err := replaceRelation(ctx, store, e, name); err != nil {
			return err
		}
	}
	return nil
}

// persistNew saves a freshly built entity together with its to-many sets.
func persistNew(ctx context.Context, store ports.EntityStore, e entities.Reflectable) error {
	if err := store.Save(ctx, e); err != nil {
		return fmt.Errorf("saving %s %s: %w", e.Kind(), e.ID(), err)
	}
	for _, name := range e.FieldNames() {
		if e.FieldKind(name) != entities.FieldToMany {
			continue
		}
		if err := replaceRelation(ctx, store, e, name); err != nil {
			return err
		}
	}
	return nil
}

func replaceRelation(ctx context.Context, store ports.EntityStore, e entities.Reflectable, name string) error {
	v, err := e.Field(name)
	if err != nil {
		return err
	}
	ids, _ := entities.NormalizeValue(v).([]string)

	related := e.RelatedKind(name)
	for _, id := range ids {
		ok, err := store.Exists(ctx, related, id)
		if err != nil {
			return fmt.Errorf("checking %s %s: %w", related, id, err)
		}
		if !ok {
			return &RelatedObjectMissingError{Field: name, Value: id}
		}
	}

	if err := store.SetRelation(ctx, e, name, ids); err != nil {
		return fmt.Errorf("setting %s.%s: %w", e.Kind(), name, err)
	}
	return nil
}
