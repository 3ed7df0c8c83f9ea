package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/wishroom/internal/models"
	"github.com/wolfeidau/wishroom/internal/store"
)

const roomColumns = `r.room_id, r.code, r.name, r.owner_account_id, r.is_active, r.tier,
	r.max_participants, r.max_wishes_per_member, r.created_at, r.last_activity_at`

const snapshotColumns = roomColumns + `,
	(SELECT count(*) FROM memberships m WHERE m.room_id = r.room_id),
	(SELECT count(*) FROM wishes w WHERE w.room_id = r.room_id)`

func roomFields(r *models.Room) []any {
	return []any{
		&r.RoomID,
		&r.Code,
		&r.Name,
		&r.OwnerAccountID,
		&r.IsActive,
		&r.Tier,
		&r.MaxParticipants,
		&r.MaxWishesPerMember,
		&r.CreatedAt,
		&r.LastActivityAt,
	}
}

func scanRoom(row pgx.Row) (*models.Room, error) {
	var r models.Room
	if err := row.Scan(roomFields(&r)...); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanSnapshot(row pgx.Row) (*models.RoomSnapshot, error) {
	var snap models.RoomSnapshot
	dest := append(roomFields(&snap.Room), &snap.ParticipantCount, &snap.WishCount)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &snap, nil
}

// lockRoomTx loads the room row with FOR UPDATE. This is the lock every
// quota-checked mutation of the room's memberships and wishes serializes on.
func lockRoomTx(ctx context.Context, tx pgx.Tx, roomID uuid.UUID) (*models.Room, error) {
	room, err := scanRoom(tx.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms r WHERE r.room_id = $1 FOR UPDATE`, roomID))
	if noRows(err) {
		return nil, store.ErrRoomNotFound
	}
	return room, err
}

func touchRoomTx(ctx context.Context, tx pgx.Tx, roomID uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE rooms SET last_activity_at = now() WHERE room_id = $1`, roomID)
	return err
}

func snapshotTx(ctx context.Context, tx pgx.Tx, roomID uuid.UUID) (*models.RoomSnapshot, error) {
	return scanSnapshot(tx.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM rooms r WHERE r.room_id = $1`, roomID))
}

// CreateRoom reserves the code, inserts the room and the owner's membership
// in one transaction. The owner row is locked before the room count is read.
func (s *Store) CreateRoom(ctx context.Context, params store.CreateRoomParams) (*models.Room, error) {
	room, err := inTx(ctx, s, readWrite, func(tx pgx.Tx) (*models.Room, error) {
		owner, err := ensureAccountTx(ctx, tx, params.Owner)
		if err != nil {
			return nil, err
		}

		count, err := countRoomsTx(ctx, tx, owner.AccountID)
		if err != nil {
			return nil, err
		}
		if count >= params.MaxRoomsPerAccount {
			return nil, store.ErrRoomLimitReached
		}

		tag, err := tx.Exec(ctx, `INSERT INTO room_codes (code) VALUES ($1) ON CONFLICT (code) DO NOTHING`, params.Code)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			return nil, store.ErrCodeCollision
		}

		room, err := scanRoom(tx.QueryRow(ctx, `
			INSERT INTO rooms AS r (room_id, code, name, owner_account_id, tier, max_participants, max_wishes_per_member)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+roomColumns,
			uuid.Must(uuid.NewV7()),
			params.Code,
			params.Name,
			owner.AccountID,
			params.Tier,
			params.Limits.MaxParticipants,
			params.Limits.MaxWishesPerMember,
		))
		if err != nil {
			return nil, err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO memberships (room_id, account_id, joined_at) VALUES ($1, $2, $3)`,
			room.RoomID, owner.AccountID, room.CreatedAt); err != nil {
			return nil, err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET current_room_id = $2, updated_at = now() WHERE account_id = $1`,
			owner.AccountID, room.RoomID); err != nil {
			return nil, err
		}

		return room, nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("room_id", room.RoomID.String()).Str("code", room.Code).Msg("Created room")
	return room, nil
}

// GetRoom retrieves a room snapshot by id.
func (s *Store) GetRoom(ctx context.Context, roomID uuid.UUID) (*models.RoomSnapshot, error) {
	snap, err := scanSnapshot(s.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM rooms r WHERE r.room_id = $1`, roomID))
	if err != nil {
		if noRows(err) {
			return nil, store.ErrRoomNotFound
		}
		return nil, mapPostgresError(err)
	}
	return snap, nil
}

// GetRoomByCode retrieves a room snapshot by normalized code.
func (s *Store) GetRoomByCode(ctx context.Context, code string) (*models.RoomSnapshot, error) {
	snap, err := scanSnapshot(s.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM rooms r WHERE r.code = $1`, code))
	if err != nil {
		if noRows(err) {
			return nil, store.ErrRoomNotFound
		}
		return nil, mapPostgresError(err)
	}
	return snap, nil
}

// DeleteRoom deletes the room; memberships, wishes and deliveries cascade
// and current room pointers are cleared by the foreign key.
func (s *Store) DeleteRoom(ctx context.Context, roomID uuid.UUID, requesterExternalID int64) error {
	_, err := inTx(ctx, s, readWrite, func(tx pgx.Tx) (struct{}, error) {
		room, err := lockRoomTx(ctx, tx, roomID)
		if err != nil {
			return struct{}{}, err
		}
		if err := requireOwnerTx(ctx, tx, room, requesterExternalID); err != nil {
			return struct{}{}, err
		}

		_, err = tx.Exec(ctx, `DELETE FROM rooms WHERE room_id = $1`, roomID)
		return struct{}{}, err
	})
	if err != nil {
		return err
	}

	log.Debug().Str("room_id", roomID.String()).Msg("Deleted room")
	return nil
}

// SetTier updates tier and limits under the room lock. Rows above the new
// limits are kept.
func (s *Store) SetTier(ctx context.Context, roomID uuid.UUID, tier models.Tier, limits models.TierLimits) (*models.RoomSnapshot, error) {
	return inTx(ctx, s, readWrite, func(tx pgx.Tx) (*models.RoomSnapshot, error) {
		if _, err := lockRoomTx(ctx, tx, roomID); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE rooms
			SET tier = $2, max_participants = $3, max_wishes_per_member = $4, last_activity_at = now()
			WHERE room_id = $1`,
			roomID, tier, limits.MaxParticipants, limits.MaxWishesPerMember); err != nil {
			return nil, err
		}
		return snapshotTx(ctx, tx, roomID)
	})
}

// SetRoomActive toggles the active flag for the room creator.
func (s *Store) SetRoomActive(ctx context.Context, roomID uuid.UUID, requesterExternalID int64, active bool) (*models.RoomSnapshot, error) {
	return inTx(ctx, s, readWrite, func(tx pgx.Tx) (*models.RoomSnapshot, error) {
		room, err := lockRoomTx(ctx, tx, roomID)
		if err != nil {
			return nil, err
		}
		if err := requireOwnerTx(ctx, tx, room, requesterExternalID); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE rooms SET is_active = $2, last_activity_at = now() WHERE room_id = $1`, roomID, active); err != nil {
			return nil, err
		}
		return snapshotTx(ctx, tx, roomID)
	})
}

// TouchActivity bumps the room's last activity timestamp.
func (s *Store) TouchActivity(ctx context.Context, roomID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE rooms SET last_activity_at = now() WHERE room_id = $1`, roomID)
	if err != nil {
		return mapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrRoomNotFound
	}
	return nil
}

// ListActiveRooms returns active rooms, oldest first.
func (s *Store) ListActiveRooms(ctx context.Context) ([]*models.Room, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms r WHERE r.is_active ORDER BY r.created_at`)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	rooms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Room, error) {
		return scanRoom(row)
	})
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return rooms, nil
}

func requireOwnerTx(ctx context.Context, tx pgx.Tx, room *models.Room, externalID int64) error {
	var ownerExternalID int64
	if err := tx.QueryRow(ctx,
		`SELECT external_id FROM accounts WHERE account_id = $1`, room.OwnerAccountID).Scan(&ownerExternalID); err != nil {
		return err
	}
	if ownerExternalID != externalID {
		return store.ErrNotRoomCreator
	}
	return nil
}
