package db

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// QuotaViolationMessage is raised by the score-ceiling triggers on questions
// and quizzes of every dialect.
const QuotaViolationMessage = "quiz total score exceeded"

// IsQuotaViolation reports whether err was raised by a quiz score trigger.
func IsQuotaViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// raise_exception
		return pgErr.Code == "P0001" && strings.Contains(pgErr.Message, QuotaViolationMessage)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		// ER_SIGNAL_EXCEPTION
		return myErr.Number == 1644 && strings.Contains(myErr.Message, QuotaViolationMessage)
	}
	// sqlite surfaces RAISE(ABORT, ...) as a plain error string
	return strings.Contains(err.Error(), QuotaViolationMessage)
}

// IsUniqueViolation reports whether err is a unique-constraint failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
