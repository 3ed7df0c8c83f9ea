package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/wishroom/internal/store"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
		code string
	}{
		{store.ErrRoomFull, KindQuotaExceeded, "ROOM_FULL"},
		{fmt.Errorf("join: %w", store.ErrAlreadyMember), KindConflict, "ALREADY_MEMBER"},
		{store.ErrNotRoomCreator, KindForbidden, "NOT_ROOM_CREATOR"},
		{store.ErrWishNotFound, KindNotFound, "WISH_NOT_FOUND"},
		{fmt.Errorf("%w: pool closed", store.ErrUnavailable), KindUnavailable, "UNAVAILABLE"},
		{context.DeadlineExceeded, KindUnavailable, "UNAVAILABLE"},
		{errors.New("boom"), KindInternal, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			err := classify(tt.err)

			var e *Error
			require.ErrorAs(t, err, &e)
			require.Equal(t, tt.kind, e.Kind)
			require.Equal(t, tt.code, e.Code)
			require.ErrorIs(t, err, tt.err)
		})
	}

	require.NoError(t, classify(nil))

	already := classify(store.ErrRoomFull)
	require.Same(t, already, classify(already))
	require.Equal(t, KindInternal, KindOf(errors.New("plain")))
}
