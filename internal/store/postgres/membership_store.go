package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/wishroom/internal/models"
	"github.com/wolfeidau/wishroom/internal/store"
)

// JoinRoom adds the account to the room. The room row is locked first, then
// the account row, and every count is re-read under those locks.
func (s *Store) JoinRoom(ctx context.Context, roomID uuid.UUID, account *models.Account, maxRoomsPerAccount int) (*models.Membership, error) {
	m, err := inTx(ctx, s, readWrite, func(tx pgx.Tx) (*models.Membership, error) {
		room, err := lockRoomTx(ctx, tx, roomID)
		if err != nil {
			return nil, err
		}
		if !room.IsActive {
			return nil, store.ErrRoomInactive
		}

		acc, err := ensureAccountTx(ctx, tx, account)
		if err != nil {
			return nil, err
		}

		var (
			isMember     bool
			participants int
		)
		if err := tx.QueryRow(ctx, `
			SELECT
				EXISTS (SELECT 1 FROM memberships WHERE room_id = $1 AND account_id = $2),
				(SELECT count(*) FROM memberships WHERE room_id = $1)`,
			roomID, acc.AccountID).Scan(&isMember, &participants); err != nil {
			return nil, err
		}
		if isMember {
			return nil, store.ErrAlreadyMember
		}
		if participants >= room.MaxParticipants {
			return nil, store.ErrRoomFull
		}

		rooms, err := countRoomsTx(ctx, tx, acc.AccountID)
		if err != nil {
			return nil, err
		}
		if rooms >= maxRoomsPerAccount {
			return nil, store.ErrRoomLimitReached
		}

		m := &models.Membership{RoomID: roomID, AccountID: acc.AccountID}
		if err := tx.QueryRow(ctx,
			`INSERT INTO memberships (room_id, account_id) VALUES ($1, $2) RETURNING joined_at`,
			roomID, acc.AccountID).Scan(&m.JoinedAt); err != nil {
			return nil, err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET current_room_id = $2, updated_at = now() WHERE account_id = $1`,
			acc.AccountID, roomID); err != nil {
			return nil, err
		}

		return m, touchRoomTx(ctx, tx, roomID)
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("room_id", roomID.String()).Int64("external_id", account.ExternalID).Msg("Joined room")
	return m, nil
}

// LeaveRoom removes a non-creator member.
func (s *Store) LeaveRoom(ctx context.Context, roomID uuid.UUID, externalID int64) error {
	_, err := inTx(ctx, s, readWrite, func(tx pgx.Tx) (struct{}, error) {
		room, err := lockRoomTx(ctx, tx, roomID)
		if err != nil {
			return struct{}{}, err
		}

		var accountID uuid.UUID
		err = tx.QueryRow(ctx,
			`SELECT account_id FROM accounts WHERE external_id = $1 FOR UPDATE`, externalID).Scan(&accountID)
		if noRows(err) {
			return struct{}{}, store.ErrNotAMember
		}
		if err != nil {
			return struct{}{}, err
		}
		if accountID == room.OwnerAccountID {
			return struct{}{}, store.ErrCreatorCannotLeave
		}

		tag, err := tx.Exec(ctx, `DELETE FROM memberships WHERE room_id = $1 AND account_id = $2`, roomID, accountID)
		if err != nil {
			return struct{}{}, err
		}
		if tag.RowsAffected() == 0 {
			return struct{}{}, store.ErrNotAMember
		}

		if _, err := tx.Exec(ctx, `
			UPDATE accounts SET current_room_id = NULL, updated_at = now()
			WHERE account_id = $1 AND current_room_id = $2`, accountID, roomID); err != nil {
			return struct{}{}, err
		}

		return struct{}{}, touchRoomTx(ctx, tx, roomID)
	})
	return err
}

// ListMembers returns the room's members ordered by join time.
func (s *Store) ListMembers(ctx context.Context, roomID uuid.UUID) ([]*models.Member, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT a.account_id, a.external_id, a.username, a.first_name, a.last_name,
			a.account_id = r.owner_account_id, m.joined_at
		FROM memberships m
		JOIN accounts a ON a.account_id = m.account_id
		JOIN rooms r ON r.room_id = m.room_id
		WHERE m.room_id = $1
		ORDER BY m.joined_at, a.account_id`, roomID)
	if err != nil {
		return nil, mapPostgresError(err)
	}

	members, err := pgx.CollectRows(rows, scanMember)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return members, nil
}

func scanMember(row pgx.CollectableRow) (*models.Member, error) {
	var m models.Member
	err := row.Scan(
		&m.AccountID,
		&m.ExternalID,
		&m.Username,
		&m.FirstName,
		&m.LastName,
		&m.IsCreator,
		&m.JoinedAt,
	)
	return &m, err
}
