package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField extracts the column from "Key (email)=(x) already exists.".
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// MapDBError turns driver errors into AppErrors. Unrecognized errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "Request timed out. Please try again.")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "Request was canceled.")
	case errors.Is(err, pgx.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "Resource not found")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		e := Wrap(pgErr, ErrCodeConflict, "This value already exists. Please choose a different one.")
		e.Field = violatedField(pgErr)
		return e
	case pgerrcode.ForeignKeyViolation:
		e := Wrap(pgErr, ErrCodeForeignKey, "Referenced account does not exist.")
		e.Field = violatedField(pgErr)
		return e
	case pgerrcode.CheckViolation:
		e := Wrap(pgErr, ErrCodeValidation, checkMessage(pgErr.ConstraintName))
		e.Field = constraintField(pgErr.ConstraintName)
		return e
	case pgerrcode.NotNullViolation:
		e := Wrap(pgErr, ErrCodeValidation, "A required field is missing.")
		e.Field = pgErr.ColumnName
		return e
	default:
		return Wrap(pgErr, ErrCodeInternal, "A database error occurred. Please try again.")
	}
}

func violatedField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		return m[1]
	}
	return constraintField(pgErr.ConstraintName)
}

// constraintField derives the column from names like "books_min_role_check" or
// "identities_email_key", which follow <table>_<column>_<suffix>.
func constraintField(name string) string {
	for _, table := range []string{"identities", "profiles", "archive_entries", "books", "gallery_items"} {
		rest, ok := strings.CutPrefix(name, table+"_")
		if !ok {
			continue
		}
		for _, suffix := range []string{"_key", "_check", "_fkey", "_lower", "_idx"} {
			if col, ok := strings.CutSuffix(rest, suffix); ok {
				return col
			}
		}
		return rest
	}
	return ""
}

func checkMessage(constraint string) string {
	switch constraintField(constraint) {
	case "min_role", "role":
		return "Role must be one of: user, admin."
	case "email":
		return "Email must be lower case."
	default:
		return "A value failed validation."
	}
}
