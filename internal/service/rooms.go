package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/wishroom/internal/models"
	"github.com/wolfeidau/wishroom/internal/roomcode"
	"github.com/wolfeidau/wishroom/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CreateRoomInput describes a new room.
type CreateRoomInput struct {
	OwnerExternalID int64       `json:"owner_external_id"`
	Tier            models.Tier `json:"tier"`
	// Name defaults to "Room <code>" when empty.
	Name string `json:"name"`
}

// CreateRoom creates a room owned by the given account. The owner becomes
// the first member and the room becomes the owner's current room.
func (e *Engine) CreateRoom(ctx context.Context, in CreateRoomInput) (*models.Room, error) {
	return call(ctx, e, "create_room", func(ctx context.Context) (*models.Room, error) {
		if err := validateExternalID(in.OwnerExternalID); err != nil {
			return nil, err
		}

		tier := in.Tier
		if tier == "" {
			tier = models.TierFree
		}
		limits, err := e.policy.Limits(tier)
		if err != nil {
			return nil, invalidInput(err.Error())
		}

		name := strings.TrimSpace(in.Name)
		if utf8.RuneCountInString(name) > e.policy.MaxRoomNameLength {
			return nil, invalidInput(fmt.Sprintf("room name must be at most %d characters", e.policy.MaxRoomNameLength))
		}

		params := store.CreateRoomParams{
			Owner:              &models.Account{ExternalID: in.OwnerExternalID},
			Tier:               tier,
			Limits:             limits,
			MaxRoomsPerAccount: e.policy.MaxRoomsPerAccount,
		}

		for attempt := 1; attempt <= e.policy.CodeAttempts; attempt++ {
			code, err := e.codes.Next()
			if err != nil {
				return nil, fmt.Errorf("failed to generate room code: %w", err)
			}

			params.Code = code
			params.Name = name
			if params.Name == "" {
				params.Name = "Room " + code
			}

			room, err := e.store.CreateRoom(ctx, params)
			if errors.Is(err, store.ErrCodeCollision) {
				e.metrics.CodeCollisionsTotal.Add(ctx, 1)
				zerolog.Ctx(ctx).Debug().Str("code", code).Int("attempt", attempt).Msg("room code collision")
				continue
			}
			if err != nil {
				return nil, err
			}

			e.metrics.RoomsCreatedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", string(tier))))
			zerolog.Ctx(ctx).Info().
				Str("room_id", room.RoomID.String()).
				Str("code", room.Code).
				Int64("owner", in.OwnerExternalID).
				Msg("room created")
			return room, nil
		}

		return nil, fmt.Errorf("%w after %d attempts", store.ErrCodeSpaceExhausted, e.policy.CodeAttempts)
	})
}

// GetRoom returns a room with its live counts.
func (e *Engine) GetRoom(ctx context.Context, roomID uuid.UUID) (*models.RoomSnapshot, error) {
	return call(ctx, e, "get_room", func(ctx context.Context) (*models.RoomSnapshot, error) {
		return e.store.GetRoom(ctx, roomID)
	})
}

// GetRoomByCode looks a room up by its join code, ignoring case and
// surrounding whitespace.
func (e *Engine) GetRoomByCode(ctx context.Context, code string) (*models.RoomSnapshot, error) {
	return call(ctx, e, "get_room_by_code", func(ctx context.Context) (*models.RoomSnapshot, error) {
		normalized, err := normalizeCode(code)
		if err != nil {
			return nil, err
		}
		return e.store.GetRoomByCode(ctx, normalized)
	})
}

// DeleteRoom deletes a room with all of its memberships and wishes. Only the
// creator may delete a room; anyone else gets false and ErrNotRoomCreator.
func (e *Engine) DeleteRoom(ctx context.Context, roomID uuid.UUID, requesterExternalID int64) (bool, error) {
	return call(ctx, e, "delete_room", func(ctx context.Context) (bool, error) {
		if err := validateExternalID(requesterExternalID); err != nil {
			return false, err
		}
		if err := e.store.DeleteRoom(ctx, roomID, requesterExternalID); err != nil {
			return false, err
		}

		e.metrics.RoomsDeletedTotal.Add(ctx, 1)
		zerolog.Ctx(ctx).Info().Str("room_id", roomID.String()).Int64("requester", requesterExternalID).Msg("room deleted")
		return true, nil
	})
}

// TouchActivity records activity in the room.
func (e *Engine) TouchActivity(ctx context.Context, roomID uuid.UUID) error {
	return exec(ctx, e, "touch_activity", func(ctx context.Context) error {
		return e.store.TouchActivity(ctx, roomID)
	})
}

// SetTier changes the room's tier and limits. Members and wishes above a
// lowered limit are kept but no new ones are accepted until the counts drop
// below it.
func (e *Engine) SetTier(ctx context.Context, roomID uuid.UUID, tier models.Tier) (*models.RoomSnapshot, error) {
	return call(ctx, e, "set_tier", func(ctx context.Context) (*models.RoomSnapshot, error) {
		if _, err := models.ParseTier(string(tier)); err != nil {
			return nil, invalidInput(err.Error())
		}
		limits, err := e.policy.Limits(tier)
		if err != nil {
			return nil, invalidInput(err.Error())
		}

		snap, err := e.store.SetTier(ctx, roomID, tier, limits)
		if err != nil {
			return nil, err
		}

		e.metrics.TierChangesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", string(tier))))
		return snap, nil
	})
}

// SetRoomActive enables or disables a room. Only the creator may do this.
func (e *Engine) SetRoomActive(ctx context.Context, roomID uuid.UUID, requesterExternalID int64, active bool) (*models.RoomSnapshot, error) {
	return call(ctx, e, "set_room_active", func(ctx context.Context) (*models.RoomSnapshot, error) {
		if err := validateExternalID(requesterExternalID); err != nil {
			return nil, err
		}
		return e.store.SetRoomActive(ctx, roomID, requesterExternalID, active)
	})
}

func normalizeCode(code string) (string, error) {
	normalized, err := roomcode.Normalize(code)
	if err != nil {
		return "", invalidInput(err.Error())
	}
	return normalized, nil
}
