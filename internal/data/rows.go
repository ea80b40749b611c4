package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/institute-web/internal/data/pgxutil"
)

// queryAll runs q and collects every row into T by column name.
func queryAll[T any](ctx context.Context, db *sql.DB, q string, args ...any) ([]*T, error) {
	var rowsOut []T
	if err := pgxutil.WithConn(ctx, db, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[T])
		return err
	}); err != nil {
		return nil, err
	}
	res := make([]*T, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// queryOne runs q and collects exactly one row; absent rows yield notFound.
func queryOne[T any](ctx context.Context, db *sql.DB, notFound error, q string, args ...any) (*T, error) {
	var out T
	err := pgxutil.WithConn(ctx, db, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, err
	}
	return &out, nil
}

// deleteByID removes a row by primary key and reports whether it existed.
func deleteByID(ctx context.Context, db *sql.DB, table, id string) (bool, error) {
	var affected int64
	err := pgxutil.WithConn(ctx, db, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, "DELETE FROM "+table+" WHERE id = $1", id)
		if err != nil {
			return err
		}
		affected = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return affected > 0, nil
}

// setClause accumulates "col = $n" assignments for partial updates.
type setClause struct {
	parts []string
	args  []any
}

func (s *setClause) add(col string, v any) {
	s.args = append(s.args, v)
	s.parts = append(s.parts, fmt.Sprintf("%s = $%d", col, len(s.args)))
}

// addNullable sets col from an optional string; blank values become NULL.
func (s *setClause) addNullable(col string, v *string) {
	if v == nil {
		return
	}
	if strings.TrimSpace(*v) == "" {
		s.parts = append(s.parts, col+" = NULL")
		return
	}
	s.add(col, strings.TrimSpace(*v))
}

func (s *setClause) empty() bool { return len(s.parts) == 0 }

// updateQuery renders "UPDATE table SET ... WHERE id = $n RETURNING cols" with id as last arg.
func (s *setClause) updateQuery(table, id, returning string) (string, []any) {
	args := append(append([]any(nil), s.args...), id)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING %s",
		table, strings.Join(s.parts, ", "), len(args), returning)
	return q, args
}

// clock reads now, falling back to the wall clock, and normalizes to UTC.
func clock(now func() time.Time) time.Time {
	if now == nil {
		return time.Now().UTC()
	}
	return now().UTC()
}
