// Package errors turns errors into low-cardinality labels for metrics and logs.
package errors

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	apperrors "github.com/target/institute-web/internal/errors"
)

// Classed is implemented by errors that name their own class, such as the auth
// service's credential and session sentinels.
type Classed interface {
	ErrorClass() string
}

// Classify returns a fixed label for err: its own class, its AppError code, or the
// infrastructure it came from. Anything else is "other".
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var classed Classed
	var appErr *apperrors.AppError
	var pgErr *pgconn.PgError
	var netErr net.Error
	switch {
	case errors.As(err, &classed):
		return classed.ErrorClass()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &appErr):
		return string(appErr.Code)
	case errors.As(err, &pgErr):
		return "database"
	case errors.Is(err, redis.Nil):
		return "cache_miss"
	case errors.As(err, &netErr):
		return "network"
	default:
		return "other"
	}
}
