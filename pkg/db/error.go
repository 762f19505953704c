package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	msg := err.Error()
	// MySQL 1062
	if strings.Contains(msg, "Error 1062") {
		return true
	}
	// SQLite 2067
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}

	return strings.Contains(msg, "duplicate key value violates unique constraint")
}

// IsDuplicateKeyOn reports whether err is a unique violation of constraint.
// SQLite reports the violated columns instead of the index name, so columns
// are matched against the message when given.
func IsDuplicateKeyOn(err error, constraint string, columns ...string) bool {
	if !IsDuplicateKeyErr(err) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName == constraint
	}

	msg := err.Error()
	if strings.Contains(msg, constraint) {
		return true
	}
	if len(columns) == 0 {
		return false
	}
	for _, col := range columns {
		if !strings.Contains(msg, col) {
			return false
		}
	}
	return true
}
