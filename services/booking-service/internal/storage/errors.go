package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write is rejected by a uniqueness or
	// exclusion constraint.
	ErrConflict = errors.New("conflict")
)

const (
	codeExclusionViolation = "23P01"
	codeUniqueViolation    = "23505"
)

// IsConflict reports whether err is an exclusion or unique violation.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeExclusionViolation || pgErr.Code == codeUniqueViolation
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrNotFound)
}
