package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether the provided error references a unique
// constraint violation on Postgres or sqlite. When constraintName is provided,
// the helper looks for the constraint text in the error message. sqlite never
// reports index names, so its violations match any constraintName.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}
	var pgErr *pgconn.PgError
	isPG := errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
	if !isPG && !strings.Contains(msg, "duplicate key value") {
		return false
	}
	if constraintName != "" {
		if isPG && pgErr.ConstraintName == constraintName {
			return true
		}
		return strings.Contains(msg, constraintName)
	}
	return true
}
