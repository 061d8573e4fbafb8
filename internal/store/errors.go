package store

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = errors.New("conflict")

const uniqueViolation = "23505"

// ConflictError names the unique constraint a write violated. It matches
// ErrConflict under errors.Is.
type ConflictError struct {
	Constraint string
	Err        error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConflict, e.Constraint)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// ConflictOn builds the error repositories return for a violation of constraint.
func ConflictOn(constraint string, cause error) error {
	return &ConflictError{Constraint: constraint, Err: cause}
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ConflictOn(pqErr.Constraint, err)
	}
	return err
}

// IsConflictOn reports whether err is a uniqueness violation of the named constraint.
func IsConflictOn(err error, constraint string) bool {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict.Constraint == constraint
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation && pqErr.Constraint == constraint
	}
	return false
}
