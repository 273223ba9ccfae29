// Package repositories implements the data access layer (repository pattern) for Chatdeck.
// Each repository type encapsulates all database queries for a domain entity.
// Handlers never issue SQL directly; all database access goes through this layer, which makes query logic testable in isolation and prevents accidental cross-domain data access.
package repositories

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a lookup matches no rows. Callers branch on
	// it with errors.Is rather than comparing against sql.ErrNoRows, keeping
	// database/sql out of the handler layer.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert or update violates a unique
	// constraint, e.g. registering an email twice or re-adding the same
	// provider key.
	ErrDuplicate = errors.New("record already exists")
)

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
