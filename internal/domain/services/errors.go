package services

import (
	"errors"
	"fmt"

	"github.com/ersonp/libris/internal/domain/entities"
)

var (
	// ErrReversion is the generic "cannot undo" failure.
	ErrReversion = errors.New("operation cannot be reverted")

	// ErrObjectDoesNotExist is returned when undoing an update on an object
	// that was deleted afterwards. Restore the object first.
	ErrObjectDoesNotExist = errors.New("object does not exist")

	// ErrObjectAlreadyDeleted is returned when undoing a create whose object
	// is already gone.
	ErrObjectAlreadyDeleted = errors.New("object is already deleted")

	// ErrLogRecordNotFound is returned when a log record id is unknown.
	ErrLogRecordNotFound = errors.New("log record not found")

	// ErrObjectNotFound is returned when a mutation targets a missing object.
	ErrObjectNotFound = errors.New("object not found")

	// ErrObjectExists is returned when creating an object whose id is taken.
	ErrObjectExists = errors.New("object already exists")

	// ErrEmptyBatch is returned by bulk operations called without objects.
	ErrEmptyBatch = errors.New("bulk operation needs at least one object")
)

// AlreadyRevertedError is returned when a log record was already undone.
type AlreadyRevertedError struct {
	RevertedBy string
}

func (e *AlreadyRevertedError) Error() string {
	return fmt.Sprintf("log record already reverted by %s", e.RevertedBy)
}

// RelatedObjectMissingError is returned when a to-many field being restored
// references an object that no longer exists.
type RelatedObjectMissingError struct {
	Field string
	Value any
}

func (e *RelatedObjectMissingError) Error() string {
	return fmt.Sprintf("field %q references a missing object (id=%v)", e.Field, e.Value)
}

// ReversionError wraps any unexpected failure during a reversion.
type ReversionError struct {
	Operation entities.Operation
	Err       error
}

func (e *ReversionError) Error() string {
	return fmt.Sprintf("cannot revert %s: %v", e.Operation, e.Err)
}

func (e *ReversionError) Unwrap() error { return e.Err }

// Is makes every ReversionError match ErrReversion.
func (e *ReversionError) Is(target error) bool { return target == ErrReversion }
