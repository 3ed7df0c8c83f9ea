package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/wishroom/internal/models"
	"github.com/wolfeidau/wishroom/internal/store"
)

const accountColumns = `account_id, external_id, username, first_name, last_name,
	is_admin, is_premium, current_room_id, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.AccountID,
		&a.ExternalID,
		&a.Username,
		&a.FirstName,
		&a.LastName,
		&a.IsAdmin,
		&a.IsPremium,
		&a.CurrentRoomID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertAccount creates the account or refreshes its display fields.
func (s *Store) UpsertAccount(ctx context.Context, account *models.Account) (*models.Account, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (account_id, external_id, username, first_name, last_name, is_admin, is_premium)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (external_id) DO UPDATE SET
			username   = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name  = EXCLUDED.last_name,
			is_premium = EXCLUDED.is_premium,
			updated_at = now()
		RETURNING `+accountColumns,
		uuid.Must(uuid.NewV7()),
		account.ExternalID,
		account.Username,
		account.FirstName,
		account.LastName,
		account.IsAdmin,
		account.IsPremium,
	)

	acc, err := scanAccount(row)
	if err != nil {
		return nil, mapPostgresError(err)
	}

	log.Debug().Int64("external_id", acc.ExternalID).Str("account_id", acc.AccountID.String()).Msg("Upserted account")
	return acc, nil
}

// GetAccount retrieves an account by external id.
func (s *Store) GetAccount(ctx context.Context, externalID int64) (*models.Account, error) {
	acc, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE external_id = $1`, externalID))
	if err != nil {
		if noRows(err) {
			return nil, store.ErrAccountNotFound
		}
		return nil, mapPostgresError(err)
	}
	return acc, nil
}

// SetCurrentRoom points the account at a room it is a member of. The room
// row is locked before the account row like every other room mutation.
func (s *Store) SetCurrentRoom(ctx context.Context, externalID int64, roomID uuid.UUID) (*models.Account, error) {
	return inTx(ctx, s, readWrite, func(tx pgx.Tx) (*models.Account, error) {
		if _, err := lockRoomTx(ctx, tx, roomID); err != nil {
			return nil, err
		}

		acc, err := scanAccount(tx.QueryRow(ctx, `
			UPDATE accounts a SET current_room_id = $2, updated_at = now()
			WHERE a.external_id = $1
			  AND EXISTS (SELECT 1 FROM memberships m WHERE m.room_id = $2 AND m.account_id = a.account_id)
			RETURNING `+accountColumns, externalID, roomID))
		if err == nil {
			return acc, nil
		}
		if !noRows(err) {
			return nil, err
		}

		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM accounts WHERE external_id = $1)`, externalID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, store.ErrAccountNotFound
		}
		return nil, store.ErrNotAMember
	})
}

// CountRooms returns the number of distinct rooms the account created or joined.
func (s *Store) CountRooms(ctx context.Context, externalID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT m.room_id FROM memberships m
			JOIN accounts a ON a.account_id = m.account_id
			WHERE a.external_id = $1
			UNION
			SELECT r.room_id FROM rooms r
			JOIN accounts a ON a.account_id = r.owner_account_id
			WHERE a.external_id = $1
		) owned_or_joined`, externalID).Scan(&count)
	if err != nil {
		return 0, mapPostgresError(err)
	}
	return count, nil
}

// ListRoomsFor returns the rooms the account participates in, oldest first.
func (s *Store) ListRoomsFor(ctx context.Context, externalID int64) ([]*models.RoomSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM rooms r
		WHERE r.room_id IN (
			SELECT m.room_id FROM memberships m
			JOIN accounts a ON a.account_id = m.account_id
			WHERE a.external_id = $1
			UNION
			SELECT o.room_id FROM rooms o
			JOIN accounts a ON a.account_id = o.owner_account_id
			WHERE a.external_id = $1
		)
		ORDER BY r.created_at`, externalID)
	if err != nil {
		return nil, mapPostgresError(err)
	}

	rooms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.RoomSnapshot, error) {
		return scanSnapshot(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan rooms: %w", mapPostgresError(err))
	}
	return rooms, nil
}

// ensureAccountTx creates the account if it is missing, then locks its row.
// Existing display fields are left untouched.
func ensureAccountTx(ctx context.Context, tx pgx.Tx, account *models.Account) (*models.Account, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO accounts (account_id, external_id, username, first_name, last_name, is_premium)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (external_id) DO NOTHING`,
		uuid.Must(uuid.NewV7()),
		account.ExternalID,
		account.Username,
		account.FirstName,
		account.LastName,
		account.IsPremium,
	)
	if err != nil {
		return nil, err
	}

	return scanAccount(tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE external_id = $1 FOR UPDATE`, account.ExternalID))
}

// countRoomsTx counts rooms owned or joined by an account id.
func countRoomsTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int, error) {
	var count int
	err := tx.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT room_id FROM memberships WHERE account_id = $1
			UNION
			SELECT room_id FROM rooms WHERE owner_account_id = $1
		) owned_or_joined`, accountID).Scan(&count)
	return count, err
}
