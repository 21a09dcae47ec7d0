package storage

import (
	"errors"
	"fmt"
	"strings"

	"ledger/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// classify maps a driver error onto the core taxonomy. Errors that already
// carry a taxonomy sentinel pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrValidation) ||
		errors.Is(err, core.ErrNotFound) ||
		errors.Is(err, core.ErrReadOnly) ||
		errors.Is(err, core.ErrStorage) {
		return err
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		// Extended codes keep the primary code in the low byte.
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_READONLY:
			return fmt.Errorf("%s: %w: %w", op, core.ErrReadOnly, err)
		case sqlite3.SQLITE_CONSTRAINT:
			return fmt.Errorf("%s: %w: %w", op, core.ErrValidation, err)
		}
	}

	if strings.Contains(strings.ToLower(err.Error()), "readonly") {
		return fmt.Errorf("%s: %w: %w", op, core.ErrReadOnly, err)
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrStorage, err)
}
