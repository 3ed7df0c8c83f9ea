package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfeidau/wishroom/internal/store"
)

// Kind is the category of an engine error.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindQuotaExceeded
	KindForbidden
	KindUnavailable
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindForbidden:
		return "forbidden"
	case KindUnavailable:
		return "unavailable"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "internal"
	}
}

// Error is returned by every Engine operation that fails. Err is the
// underlying cause and usually one of the store sentinel errors, so callers
// can match the specific condition with errors.Is.
type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the category of err. Errors that did not come from the
// engine are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var classifications = []struct {
	target error
	kind   Kind
	code   string
}{
	{store.ErrInvalidInput, KindInvalidInput, "INVALID_INPUT"},
	{store.ErrAccountNotFound, KindNotFound, "ACCOUNT_NOT_FOUND"},
	{store.ErrRoomNotFound, KindNotFound, "ROOM_NOT_FOUND"},
	{store.ErrWishNotFound, KindNotFound, "WISH_NOT_FOUND"},
	{store.ErrRoomFull, KindQuotaExceeded, "ROOM_FULL"},
	{store.ErrRoomLimitReached, KindQuotaExceeded, "ROOM_LIMIT_REACHED"},
	{store.ErrWishLimitReached, KindQuotaExceeded, "WISH_LIMIT_REACHED"},
	{store.ErrAlreadyMember, KindConflict, "ALREADY_MEMBER"},
	{store.ErrRoomInactive, KindConflict, "ROOM_INACTIVE"},
	{store.ErrCodeCollision, KindConflict, "CODE_COLLISION"},
	{store.ErrCodeSpaceExhausted, KindConflict, "CODE_SPACE_EXHAUSTED"},
	{store.ErrNotAMember, KindForbidden, "NOT_A_MEMBER"},
	{store.ErrCreatorCannotLeave, KindForbidden, "CREATOR_CANNOT_LEAVE"},
	{store.ErrNotWishOwner, KindForbidden, "NOT_OWNER"},
	{store.ErrNotRoomCreator, KindForbidden, "NOT_ROOM_CREATOR"},
	{store.ErrUnavailable, KindUnavailable, "UNAVAILABLE"},
	{context.DeadlineExceeded, KindUnavailable, "UNAVAILABLE"},
	{context.Canceled, KindUnavailable, "UNAVAILABLE"},
}

// classify wraps err in an *Error with its kind. Nil stays nil and errors
// that are already classified are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	for _, c := range classifications {
		if errors.Is(err, c.target) {
			return &Error{Kind: c.kind, Code: c.code, Err: err}
		}
	}

	return &Error{Kind: KindInternal, Code: "INTERNAL", Err: err}
}

func invalidInput(msg string) error {
	return &Error{Kind: KindInvalidInput, Code: "INVALID_INPUT", Err: fmt.Errorf("%w: %s", store.ErrInvalidInput, msg)}
}
