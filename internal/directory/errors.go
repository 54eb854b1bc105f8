package directory

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError reports a lookup for an entity that does not exist.
type NotFoundError struct {
	Kind string // "user", "group", "gid"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q does not exist", e.Kind, e.Name)
}

// AlreadyExistsError reports an attempt to claim a name or numeric id that
// is already taken.
type AlreadyExistsError struct {
	Kind string // "user", "group", "uid", "gid"
	Name string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Name)
}

// ConflictError reports a request whose parts contradict each other or the
// current directory state.
type ConflictError struct {
	Key      string
	Expected string
	Actual   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: expected %s, found %s", e.Key, e.Expected, e.Actual)
}

// ValidationError reports referenced entities that do not exist. Missing
// lists every offender, not just the first.
type ValidationError struct {
	Kind    string // "user" or "group"
	Missing []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) == 1 {
		return fmt.Sprintf("%s %q does not exist", e.Kind, e.Missing[0])
	}
	return fmt.Sprintf("%ss do not exist: %s", e.Kind, strings.Join(e.Missing, ", "))
}

// RangeExhaustedError reports an id range with no free values left.
type RangeExhaustedError struct {
	Kind  string // "uid" or "gid"
	Range IDRange
}

func (e *RangeExhaustedError) Error() string {
	return fmt.Sprintf("no free %s in range [%d, %d)", e.Kind, e.Range.Min, e.Range.Max)
}

// UnsupportedError reports a modification the engine refuses to perform.
type UnsupportedError struct {
	Field  string
	Reason string
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("changing %s is not supported: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("changing %s is not supported", e.Field)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsAlreadyExists reports whether err is an AlreadyExistsError.
func IsAlreadyExists(err error) bool {
	var e *AlreadyExistsError
	return errors.As(err, &e)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsUnsupported reports whether err is an UnsupportedError.
func IsUnsupported(err error) bool {
	var e *UnsupportedError
	return errors.As(err, &e)
}
