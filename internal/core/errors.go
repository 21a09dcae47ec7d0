package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNoFieldsSpecified = fmt.Errorf("%w: no fields to update", ErrValidation)
	ErrNotFound          = errors.New("expense not found")
	ErrReadOnly          = errors.New("database is read-only")
	ErrStorage           = errors.New("storage error")
)

// Kind is the stable name of an error class, suitable for callers that
// branch on outcomes.
type Kind string

const (
	KindNone              Kind = ""
	KindValidation        Kind = "validation_error"
	KindNoFieldsSpecified Kind = "no_fields_specified"
	KindNotFound          Kind = "not_found"
	KindReadOnly          Kind = "read_only"
	KindStorage           Kind = "storage_error"
)

// KindOf classifies err. Errors outside the taxonomy are storage errors.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNoFieldsSpecified):
		return KindNoFieldsSpecified
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrReadOnly):
		return KindReadOnly
	default:
		return KindStorage
	}
}

// NotFoundError reports an id-addressed operation on a missing record.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Expense ID %d not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
