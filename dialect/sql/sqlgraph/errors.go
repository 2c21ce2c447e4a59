// Package sqlgraph classifies errors returned by the database drivers
// linkql runs against.
package sqlgraph

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// ConstraintKind is the kind of a violated database constraint.
type ConstraintKind uint8

// Constraint kinds.
const (
	NoConstraint ConstraintKind = iota
	UniqueConstraint
	ForeignKeyConstraint
	CheckConstraint
	NotNullConstraint
)

// String returns the name of the constraint kind.
func (k ConstraintKind) String() string {
	switch k {
	case UniqueConstraint:
		return "unique"
	case ForeignKeyConstraint:
		return "foreign key"
	case CheckConstraint:
		return "check"
	case NotNullConstraint:
		return "not null"
	default:
		return "none"
	}
}

// sqlStateError is implemented by drivers reporting SQLSTATE codes (pgx).
type sqlStateError interface {
	SQLState() string
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlBadNull                = 1048
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// messages lists the fragments identifying each constraint kind in error
// messages of drivers without typed errors.
var messages = []struct {
	kind  ConstraintKind
	parts []string
}{
	{UniqueConstraint, []string{"UNIQUE constraint failed", "violates unique constraint", "Error 1062"}},
	{ForeignKeyConstraint, []string{"FOREIGN KEY constraint failed", "violates foreign key constraint", "Error 1451", "Error 1452"}},
	{CheckConstraint, []string{"CHECK constraint failed", "violates check constraint", "Error 3819"}},
	{NotNullConstraint, []string{"NOT NULL constraint failed", "violates not-null constraint", "Error 1048"}},
}

// Constraint returns the kind of constraint the error reports, or
// NoConstraint.
func Constraint(err error) ConstraintKind {
	if err == nil {
		return NoConstraint
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgKind(string(pqErr.Code))
	}
	var stateErr sqlStateError
	if errors.As(err, &stateErr) {
		if k := pgKind(stateErr.SQLState()); k != NoConstraint {
			return k
		}
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return mysqlKind(myErr.Number)
	}
	// SQLite drivers only report constraint failures in the message.
	msg := err.Error()
	for _, m := range messages {
		for _, part := range m.parts {
			if strings.Contains(msg, part) {
				return m.kind
			}
		}
	}
	return NoConstraint
}

func pgKind(code string) ConstraintKind {
	switch code {
	case pgUniqueViolation:
		return UniqueConstraint
	case pgForeignKeyViolation:
		return ForeignKeyConstraint
	case pgCheckViolation:
		return CheckConstraint
	case pgNotNullViolation:
		return NotNullConstraint
	}
	return NoConstraint
}

func mysqlKind(number uint16) ConstraintKind {
	switch number {
	case mysqlBadNull:
		return NotNullConstraint
	case mysqlDuplicateEntry:
		return UniqueConstraint
	case mysqlForeignKeyParent, mysqlForeignKeyChild:
		return ForeignKeyConstraint
	case mysqlCheckConstraintViolate:
		return CheckConstraint
	}
	return NoConstraint
}

// IsConstraintError reports whether err is any constraint violation.
func IsConstraintError(err error) bool { return Constraint(err) != NoConstraint }

// IsUniqueConstraintError reports whether err is a unique violation.
func IsUniqueConstraintError(err error) bool { return Constraint(err) == UniqueConstraint }

// IsForeignKeyConstraintError reports whether err is a foreign key violation.
func IsForeignKeyConstraintError(err error) bool { return Constraint(err) == ForeignKeyConstraint }

// IsCheckConstraintError reports whether err is a check violation.
func IsCheckConstraintError(err error) bool { return Constraint(err) == CheckConstraint }
