package database

import (
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrNotFound is returned when an id or email does not resolve to a record
var ErrNotFound = errors.New("not found")

// ValidationError reports caller-supplied data that violates a required-field
// or type constraint. Nothing is written when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// PermissionDeniedError is returned by UpdatePass when the record has left
// the editable status.
type PermissionDeniedError struct {
	ID     int64
	Status Status
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("pass %d has status %q and can no longer be edited", e.ID, e.Status)
}

// PersistenceError wraps a backend failure
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ErrIntegrity marks a stored record whose submitter or coordinate row is missing
var ErrIntegrity = errors.New("data integrity violation")

// IsValidation reports whether err is a *ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPermissionDenied reports whether err is a *PermissionDeniedError
func IsPermissionDenied(err error) bool {
	var pe *PermissionDeniedError
	return errors.As(err, &pe)
}

// IsPersistence reports whether err is a *PersistenceError
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// persistence wraps err unless it already carries a caller-facing kind
func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || IsValidation(err) || IsPermissionDenied(err) || IsPersistence(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// primary code only when extended result codes are off
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}
