package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/wishroom/internal/models"
	"github.com/wolfeidau/wishroom/internal/store"
)

const wishColumns = `w.wish_id, w.room_id, w.account_id, w.text, w.delivered, w.created_at, w.updated_at`

func scanWish(row pgx.Row) (*models.Wish, error) {
	var w models.Wish
	err := row.Scan(
		&w.WishID,
		&w.RoomID,
		&w.AccountID,
		&w.Text,
		&w.Delivered,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// AddWish inserts a wish under the room lock, enforcing the per-member quota.
func (s *Store) AddWish(ctx context.Context, roomID uuid.UUID, externalID int64, text string) (*models.Wish, error) {
	wish, err := inTx(ctx, s, readWrite, func(tx pgx.Tx) (*models.Wish, error) {
		room, err := lockRoomTx(ctx, tx, roomID)
		if err != nil {
			return nil, err
		}

		var accountID uuid.UUID
		err = tx.QueryRow(ctx, `
			SELECT a.account_id FROM accounts a
			JOIN memberships m ON m.account_id = a.account_id AND m.room_id = $1
			WHERE a.external_id = $2`, roomID, externalID).Scan(&accountID)
		if noRows(err) {
			return nil, store.ErrNotAMember
		}
		if err != nil {
			return nil, err
		}

		var count int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM wishes WHERE room_id = $1 AND account_id = $2`,
			roomID, accountID).Scan(&count); err != nil {
			return nil, err
		}
		if count >= room.MaxWishesPerMember {
			return nil, store.ErrWishLimitReached
		}

		wish, err := scanWish(tx.QueryRow(ctx, `
			INSERT INTO wishes AS w (wish_id, room_id, account_id, text)
			VALUES ($1, $2, $3, $4)
			RETURNING `+wishColumns,
			uuid.Must(uuid.NewV7()), roomID, accountID, text))
		if err != nil {
			return nil, err
		}

		return wish, touchRoomTx(ctx, tx, roomID)
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("wish_id", wish.WishID.String()).Str("room_id", roomID.String()).Msg("Added wish")
	return wish, nil
}

// EditWish replaces the text of a wish owned by the account. The delivered
// flag is left unchanged.
func (s *Store) EditWish(ctx context.Context, wishID uuid.UUID, externalID int64, text string) (*models.Wish, error) {
	return inTx(ctx, s, readWrite, func(tx pgx.Tx) (*models.Wish, error) {
		if err := requireWishOwnerTx(ctx, tx, wishID, externalID); err != nil {
			return nil, err
		}

		wish, err := scanWish(tx.QueryRow(ctx, `
			UPDATE wishes AS w SET text = $2, updated_at = now()
			WHERE w.wish_id = $1
			RETURNING `+wishColumns, wishID, text))
		if err != nil {
			return nil, err
		}

		return wish, touchRoomTx(ctx, tx, wish.RoomID)
	})
}

// DeleteWish removes a wish owned by the account.
func (s *Store) DeleteWish(ctx context.Context, wishID uuid.UUID, externalID int64) error {
	_, err := inTx(ctx, s, readWrite, func(tx pgx.Tx) (struct{}, error) {
		if err := requireWishOwnerTx(ctx, tx, wishID, externalID); err != nil {
			return struct{}{}, err
		}

		var roomID uuid.UUID
		if err := tx.QueryRow(ctx,
			`DELETE FROM wishes WHERE wish_id = $1 RETURNING room_id`, wishID).Scan(&roomID); err != nil {
			return struct{}{}, err
		}

		return struct{}{}, touchRoomTx(ctx, tx, roomID)
	})
	return err
}

// ListWishes returns the account's wishes in a room, oldest first.
func (s *Store) ListWishes(ctx context.Context, roomID uuid.UUID, externalID int64) ([]*models.Wish, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	return s.queryWishes(ctx, `
		SELECT `+wishColumns+` FROM wishes w
		JOIN accounts a ON a.account_id = w.account_id
		WHERE w.room_id = $1 AND a.external_id = $2
		ORDER BY w.created_at, w.wish_id`, roomID, externalID)
}

// ListRoomWishes returns every wish in a room, oldest first.
func (s *Store) ListRoomWishes(ctx context.Context, roomID uuid.UUID) ([]*models.Wish, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	return s.queryWishes(ctx, `
		SELECT `+wishColumns+` FROM wishes w
		WHERE w.room_id = $1
		ORDER BY w.created_at, w.wish_id`, roomID)
}

func (s *Store) queryWishes(ctx context.Context, sql string, args ...any) ([]*models.Wish, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	wishes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Wish, error) {
		return scanWish(row)
	})
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return wishes, nil
}

// requireWishOwnerTx locks the wish row and checks ownership.
func requireWishOwnerTx(ctx context.Context, tx pgx.Tx, wishID uuid.UUID, externalID int64) error {
	var ownerExternalID int64
	err := tx.QueryRow(ctx, `
		SELECT a.external_id FROM wishes w
		JOIN accounts a ON a.account_id = w.account_id
		WHERE w.wish_id = $1
		FOR UPDATE OF w`, wishID).Scan(&ownerExternalID)
	if noRows(err) {
		return store.ErrWishNotFound
	}
	if err != nil {
		return err
	}
	if ownerExternalID != externalID {
		return store.ErrNotWishOwner
	}
	return nil
}
