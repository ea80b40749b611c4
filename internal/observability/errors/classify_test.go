package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	apperrors "github.com/target/institute-web/internal/errors"
)

type sessionErr struct{}

func (sessionErr) Error() string      { return "no session" }
func (sessionErr) ErrorClass() string { return "no_session" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "self classed", err: fmt.Errorf("refresh: %w", sessionErr{}), want: "no_session"},
		{name: "deadline", err: fmt.Errorf("lookup: %w", context.DeadlineExceeded), want: "timeout"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "app error", err: apperrors.NotFound("profile"), want: "not_found"},
		{name: "postgres", err: &pgconn.PgError{Code: "57P01"}, want: "database"},
		{name: "redis miss", err: fmt.Errorf("get session: %w", redis.Nil), want: "cache_miss"},
		{name: "network", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, want: "network"},
		{name: "plain", err: errors.New("boom"), want: "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
