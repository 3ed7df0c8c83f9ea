package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/wolfeidau/wishroom/internal/models"
)

// AccountInput describes an account as reported by the chat front-end.
type AccountInput struct {
	ExternalID int64  `json:"external_id"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	IsPremium  bool   `json:"is_premium"`
}

// UpsertAccount creates the account or refreshes its display fields.
func (e *Engine) UpsertAccount(ctx context.Context, in AccountInput) (*models.Account, error) {
	return call(ctx, e, "upsert_account", func(ctx context.Context) (*models.Account, error) {
		if err := validateExternalID(in.ExternalID); err != nil {
			return nil, err
		}

		return e.store.UpsertAccount(ctx, &models.Account{
			ExternalID: in.ExternalID,
			Username:   strings.TrimSpace(in.Username),
			FirstName:  strings.TrimSpace(in.FirstName),
			LastName:   strings.TrimSpace(in.LastName),
			IsPremium:  in.IsPremium,
		})
	})
}

// GetAccount returns the account with the given external id.
func (e *Engine) GetAccount(ctx context.Context, externalID int64) (*models.Account, error) {
	return call(ctx, e, "get_account", func(ctx context.Context) (*models.Account, error) {
		if err := validateExternalID(externalID); err != nil {
			return nil, err
		}
		return e.store.GetAccount(ctx, externalID)
	})
}

// SwitchRoom sets the account's current room. The account must be a member.
func (e *Engine) SwitchRoom(ctx context.Context, externalID int64, roomID uuid.UUID) (*models.Account, error) {
	return call(ctx, e, "switch_room", func(ctx context.Context) (*models.Account, error) {
		if err := validateExternalID(externalID); err != nil {
			return nil, err
		}
		return e.store.SetCurrentRoom(ctx, externalID, roomID)
	})
}

// ListRooms returns every room the account created or joined.
func (e *Engine) ListRooms(ctx context.Context, externalID int64) ([]*models.RoomSnapshot, error) {
	return call(ctx, e, "list_rooms", func(ctx context.Context) ([]*models.RoomSnapshot, error) {
		if err := validateExternalID(externalID); err != nil {
			return nil, err
		}
		return e.store.ListRoomsFor(ctx, externalID)
	})
}

// CountRoomsFor returns how many distinct rooms the account created or joined.
func (e *Engine) CountRoomsFor(ctx context.Context, externalID int64) (int, error) {
	return call(ctx, e, "count_rooms", func(ctx context.Context) (int, error) {
		if err := validateExternalID(externalID); err != nil {
			return 0, err
		}
		return e.store.CountRooms(ctx, externalID)
	})
}

func validateExternalID(externalID int64) error {
	if externalID <= 0 {
		return invalidInput("external id must be positive")
	}
	return nil
}
