package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/wishroom/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// JoinRoom adds the account to the room.
func (e *Engine) JoinRoom(ctx context.Context, roomID uuid.UUID, externalID int64) (*models.Membership, error) {
	return call(ctx, e, "join_room", func(ctx context.Context) (*models.Membership, error) {
		return e.join(ctx, roomID, externalID)
	})
}

// JoinRoomByCode resolves the code and joins the room, returning the room
// as seen after the join.
func (e *Engine) JoinRoomByCode(ctx context.Context, externalID int64, code string) (*models.RoomSnapshot, error) {
	return call(ctx, e, "join_room_by_code", func(ctx context.Context) (*models.RoomSnapshot, error) {
		normalized, err := normalizeCode(code)
		if err != nil {
			return nil, err
		}

		room, err := e.store.GetRoomByCode(ctx, normalized)
		if err != nil {
			return nil, err
		}

		if _, err := e.join(ctx, room.RoomID, externalID); err != nil {
			return nil, err
		}

		return e.store.GetRoom(ctx, room.RoomID)
	})
}

func (e *Engine) join(ctx context.Context, roomID uuid.UUID, externalID int64) (*models.Membership, error) {
	if err := validateExternalID(externalID); err != nil {
		return nil, err
	}

	m, err := e.store.JoinRoom(ctx, roomID, &models.Account{ExternalID: externalID}, e.policy.MaxRoomsPerAccount)

	outcome := "ok"
	if err != nil {
		outcome = KindOf(classify(err)).String()
	}
	e.metrics.JoinsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("room_id", roomID.String()).Int64("external_id", externalID).Msg("joined room")
	return m, nil
}

// LeaveRoom removes the account from the room. The creator cannot leave.
func (e *Engine) LeaveRoom(ctx context.Context, roomID uuid.UUID, externalID int64) error {
	return exec(ctx, e, "leave_room", func(ctx context.Context) error {
		if err := validateExternalID(externalID); err != nil {
			return err
		}
		return e.store.LeaveRoom(ctx, roomID, externalID)
	})
}

// ListMembers returns the room's members ordered by join time.
func (e *Engine) ListMembers(ctx context.Context, roomID uuid.UUID) ([]*models.Member, error) {
	return call(ctx, e, "list_members", func(ctx context.Context) ([]*models.Member, error) {
		return e.store.ListMembers(ctx, roomID)
	})
}
