package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// IsUniqueViolation reports a unique constraint failure. An empty constraint
// matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	return pgCode(err, codeUniqueViolation, constraint)
}

// IsForeignKeyViolation reports a foreign key failure. An empty constraint
// matches any foreign key violation.
func IsForeignKeyViolation(err error, constraint string) bool {
	return pgCode(err, codeForeignKeyViolation, constraint)
}

func pgCode(err error, code, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != code {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
