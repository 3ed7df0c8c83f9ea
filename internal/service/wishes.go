package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/wolfeidau/wishroom/internal/models"
)

// AddWish records a wish for a member of the room.
func (e *Engine) AddWish(ctx context.Context, roomID uuid.UUID, externalID int64, text string) (*models.Wish, error) {
	return call(ctx, e, "add_wish", func(ctx context.Context) (*models.Wish, error) {
		if err := validateExternalID(externalID); err != nil {
			return nil, err
		}
		text, err := e.cleanWishText(text)
		if err != nil {
			return nil, err
		}

		w, err := e.store.AddWish(ctx, roomID, externalID, text)
		if err != nil {
			return nil, err
		}

		e.metrics.WishesAddedTotal.Add(ctx, 1)
		return w, nil
	})
}

// EditWish replaces the text of the caller's wish. The delivered flag is kept.
func (e *Engine) EditWish(ctx context.Context, wishID uuid.UUID, externalID int64, text string) (*models.Wish, error) {
	return call(ctx, e, "edit_wish", func(ctx context.Context) (*models.Wish, error) {
		if err := validateExternalID(externalID); err != nil {
			return nil, err
		}
		text, err := e.cleanWishText(text)
		if err != nil {
			return nil, err
		}
		return e.store.EditWish(ctx, wishID, externalID, text)
	})
}

// DeleteWish removes the caller's wish.
func (e *Engine) DeleteWish(ctx context.Context, wishID uuid.UUID, externalID int64) error {
	return exec(ctx, e, "delete_wish", func(ctx context.Context) error {
		if err := validateExternalID(externalID); err != nil {
			return err
		}
		return e.store.DeleteWish(ctx, wishID, externalID)
	})
}

// ListWishes returns the caller's wishes in the room.
func (e *Engine) ListWishes(ctx context.Context, roomID uuid.UUID, externalID int64) ([]*models.Wish, error) {
	return call(ctx, e, "list_wishes", func(ctx context.Context) ([]*models.Wish, error) {
		if err := validateExternalID(externalID); err != nil {
			return nil, err
		}
		return e.store.ListWishes(ctx, roomID, externalID)
	})
}

// ListRoomWishes returns every wish in the room.
func (e *Engine) ListRoomWishes(ctx context.Context, roomID uuid.UUID) ([]*models.Wish, error) {
	return call(ctx, e, "list_room_wishes", func(ctx context.Context) ([]*models.Wish, error) {
		return e.store.ListRoomWishes(ctx, roomID)
	})
}

func (e *Engine) cleanWishText(text string) (string, error) {
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	if n == 0 || n > e.policy.MaxWishLength {
		return "", invalidInput(fmt.Sprintf("wish must be between 1 and %d characters", e.policy.MaxWishLength))
	}
	return text, nil
}
