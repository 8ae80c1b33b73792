package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField    = errors.New("missing_field")
	ErrInvalidDate     = errors.New("invalid_date")
	ErrInvalidDecimal  = errors.New("invalid_decimal")
	ErrResolveConflict = errors.New("resolve_conflict")
	ErrInvalidRunID    = errors.New("invalid_run_id")
	ErrMissingColumns  = errors.New("missing_columns")
)

// RowError marks a record that was skipped. It never aborts an import.
type RowError struct {
	Line  int
	Field string
	Err   error
}

func (e *RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("row %d: %s: %v", e.Line, e.Field, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// IsRowError reports whether err only concerns a single record.
func IsRowError(err error) bool {
	var rowErr *RowError
	return errors.As(err, &rowErr)
}
