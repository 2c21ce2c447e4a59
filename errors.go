package linkql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/linkql/dialect/sql/sqlgraph"
)

var (
	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("linkql: row not found")
	// ErrNotSingular is matched by every NotSingularError.
	ErrNotSingular = errors.New("linkql: row not singular")
	// ErrTxStarted is returned by Tx.Client().Tx.
	ErrTxStarted = errors.New("linkql: cannot start a transaction within a transaction")
	// ErrEmptyUpdate is returned by an update with neither assignments nor
	// links.
	ErrEmptyUpdate = errors.New("linkql: update has no assignments")
	// ErrUnusedInput is reported for request input that no collection
	// member or registered link consumes.
	ErrUnusedInput = errors.New("unused input")
)

// as reports whether err has an error of type T in its tree.
func as[T error](err error) bool {
	var target T
	return err != nil && errors.As(err, &target)
}

// NotFoundError is returned when an operation on one row matches none.
type NotFoundError struct {
	label string
	id    any
}

func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("linkql: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("linkql: %s not found", e.label)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(err error) bool { return err == ErrNotFound }

// Label returns the collection label.
func (e *NotFoundError) Label() string { return e.label }

// ID returns the searched id, or nil.
func (e *NotFoundError) ID() any { return e.id }

// NewNotFoundError returns a NotFoundError for the collection label.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a NotFoundError carrying the searched id.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	return as[*NotFoundError](err) || errors.Is(err, ErrNotFound)
}

// NotSingularError is returned when an operation on one row matches
// several.
type NotSingularError struct {
	label string
	count int
}

func (e *NotSingularError) Error() string {
	return fmt.Sprintf("linkql: %s not singular (got %d results, expected 1)", e.label, e.count)
}

// Is makes errors.Is(err, ErrNotSingular) hold.
func (e *NotSingularError) Is(err error) bool { return err == ErrNotSingular }

// Count returns the number of matched rows.
func (e *NotSingularError) Count() int { return e.count }

// NewNotSingularError returns a NotSingularError with the matched count.
func NewNotSingularError(label string, count int) *NotSingularError {
	return &NotSingularError{label: label, count: count}
}

// IsNotSingular reports whether err is or wraps a NotSingularError.
func IsNotSingular(err error) bool {
	return as[*NotSingularError](err) || errors.Is(err, ErrNotSingular)
}

// ConstraintError is a constraint violation reported by the database.
type ConstraintError struct {
	Kind sqlgraph.ConstraintKind
	wrap error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("linkql: %s constraint failed: %v", e.Kind, e.wrap)
}

func (e *ConstraintError) Unwrap() error { return e.wrap }

// IsConstraintError reports whether err wraps a ConstraintError.
func IsConstraintError(err error) bool { return as[*ConstraintError](err) }

func asConstraintError(err error) error {
	if k := sqlgraph.Constraint(err); k != sqlgraph.NoConstraint {
		return &ConstraintError{Kind: k, wrap: err}
	}
	return err
}

// ValidationError reports invalid input: a member, a link key or a
// request.
type ValidationError struct {
	Name string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("linkql: invalid input %q: %s", e.Name, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError returns a ValidationError for the named input.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool { return as[*ValidationError](err) }

// RollbackError is returned when rolling back after a failure fails too.
// Both errors are in its tree.
type RollbackError struct {
	Err      error
	Rollback error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("linkql: %v: rollback failed: %v", e.Err, e.Rollback)
}

func (e *RollbackError) Unwrap() []error { return []error{e.Err, e.Rollback} }

// AggregateError collects the errors of independent parts of a request,
// such as the links of a link set.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "linkql: no errors"
	case 1:
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("linkql: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// NewAggregateError drops the nil errors. It returns nil for none, the
// error itself for one and an AggregateError otherwise.
func NewAggregateError(errs ...error) error {
	var kept []error
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &AggregateError{Errors: kept}
}

// QueryError is a failed read of a collection. Op names the phase, for
// example "select all" or "sub-op".
type QueryError struct {
	Collection string
	Op         string
	Err        error
}

func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("linkql: querying %s (%s): %v", e.Collection, e.Op, e.Err)
	}
	return fmt.Sprintf("linkql: querying %s: %v", e.Collection, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// NewQueryError returns a QueryError.
func NewQueryError(collection, op string, err error) *QueryError {
	return &QueryError{Collection: collection, Op: op, Err: err}
}

// IsQueryError reports whether err wraps a QueryError.
func IsQueryError(err error) bool { return as[*QueryError](err) }

// MutationError is a failed insert, update or delete statement.
type MutationError struct {
	Collection string
	Op         string
	Err        error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("linkql: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// NewMutationError returns a MutationError. Constraint violations are
// wrapped in a ConstraintError.
func NewMutationError(collection, op string, err error) *MutationError {
	return &MutationError{Collection: collection, Op: op, Err: asConstraintError(err)}
}

// IsMutationError reports whether err wraps a MutationError.
func IsMutationError(err error) bool { return as[*MutationError](err) }
