package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/wishroom/internal/store"
)

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "reserved code",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "room_codes_pkey"},
			want: store.ErrCodeCollision,
		},
		{
			name: "room code",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "rooms_code_key"},
			want: store.ErrCodeCollision,
		},
		{
			name: "membership",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "memberships_pkey"},
			want: store.ErrAlreadyMember,
		},
		{
			name: "deadlock",
			err:  &pgconn.PgError{Code: pgerrcode.DeadlockDetected},
			want: store.ErrUnavailable,
		},
		{
			name: "check",
			err:  &pgconn.PgError{Code: pgerrcode.CheckViolation, ConstraintName: "rooms_code_format"},
			want: store.ErrInvalidInput,
		},
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: store.ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, mapPostgresError(tt.err), tt.want)
		})
	}

	t.Run("nil", func(t *testing.T) {
		require.NoError(t, mapPostgresError(nil))
	})

	t.Run("unknown errors pass through", func(t *testing.T) {
		err := errors.New("boom")
		require.Equal(t, err, mapPostgresError(err))
	})
}
