package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfeidau/wishroom/internal/models"
	"github.com/wolfeidau/wishroom/internal/store"
)

// readSnapshot gives the scheduler one consistent view of a room.
var readSnapshot = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// LoadRoomDelivery reads the room, its members, wishes and delivered pairs
// from a single repeatable read snapshot.
func (s *Store) LoadRoomDelivery(ctx context.Context, roomID uuid.UUID) (*models.RoomDeliveryState, error) {
	return inTx(ctx, s, readSnapshot, func(tx pgx.Tx) (*models.RoomDeliveryState, error) {
		room, err := scanRoom(tx.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms r WHERE r.room_id = $1`, roomID))
		if noRows(err) {
			return nil, store.ErrRoomNotFound
		}
		if err != nil {
			return nil, err
		}

		rows, err := tx.Query(ctx, `
			SELECT a.account_id, a.external_id, a.username, a.first_name, a.last_name,
				a.account_id = $2, m.joined_at
			FROM memberships m
			JOIN accounts a ON a.account_id = m.account_id
			WHERE m.room_id = $1
			ORDER BY m.joined_at, a.account_id`, roomID, room.OwnerAccountID)
		if err != nil {
			return nil, err
		}
		members, err := pgx.CollectRows(rows, scanMember)
		if err != nil {
			return nil, err
		}

		rows, err = tx.Query(ctx, `
			SELECT `+wishColumns+` FROM wishes w
			WHERE w.room_id = $1
			ORDER BY w.created_at, w.wish_id`, roomID)
		if err != nil {
			return nil, err
		}
		wishes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Wish, error) {
			return scanWish(row)
		})
		if err != nil {
			return nil, err
		}

		rows, err = tx.Query(ctx, `
			SELECT d.wish_id, d.recipient_account_id
			FROM wish_deliveries d
			JOIN wishes w ON w.wish_id = d.wish_id
			WHERE w.room_id = $1`, roomID)
		if err != nil {
			return nil, err
		}
		keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.DeliveryKey, error) {
			var k models.DeliveryKey
			err := row.Scan(&k.WishID, &k.RecipientID)
			return k, err
		})
		if err != nil {
			return nil, err
		}

		delivered := make(map[models.DeliveryKey]bool, len(keys))
		for _, k := range keys {
			delivered[k] = true
		}

		return &models.RoomDeliveryState{
			Room:      room,
			Members:   members,
			Wishes:    wishes,
			Delivered: delivered,
		}, nil
	})
}

// RecordDeliveries stores (wish, recipient) pairs and flags the wishes as
// delivered. Wishes deleted since planning are skipped.
func (s *Store) RecordDeliveries(ctx context.Context, recipientAccountID uuid.UUID, wishIDs []uuid.UUID, at time.Time) error {
	if len(wishIDs) == 0 {
		return nil
	}

	_, err := inTx(ctx, s, readWrite, func(tx pgx.Tx) (struct{}, error) {
		if _, err := tx.Exec(ctx, `
			INSERT INTO wish_deliveries (wish_id, recipient_account_id, delivered_at)
			SELECT w.wish_id, $2, $3 FROM wishes w WHERE w.wish_id = ANY($1::uuid[])
			ON CONFLICT (wish_id, recipient_account_id) DO NOTHING`,
			wishIDs, recipientAccountID, at.UTC()); err != nil {
			return struct{}{}, err
		}

		_, err := tx.Exec(ctx,
			`UPDATE wishes SET delivered = true WHERE wish_id = ANY($1::uuid[]) AND NOT delivered`, wishIDs)
		return struct{}{}, err
	})
	return err
}
