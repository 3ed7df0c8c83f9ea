package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/wolfeidau/wishroom/internal/models"
	"github.com/wolfeidau/wishroom/internal/store"
)

// UpsertAccount creates or updates an account keyed by external id.
func (s *Store) UpsertAccount(ctx context.Context, account *models.Account) (*models.Account, error) {
	unlock := s.accountLocks.Lock(account.ExternalID)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	return cloneAccount(s.upsertAccountLocked(account)), nil
}

// GetAccount retrieves an account by external id.
func (s *Store) GetAccount(ctx context.Context, externalID int64) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accountByExternalLocked(externalID)
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return cloneAccount(acc), nil
}

// SetCurrentRoom points the account at a room it belongs to.
func (s *Store) SetCurrentRoom(ctx context.Context, externalID int64, roomID uuid.UUID) (*models.Account, error) {
	unlockRoom := s.roomLocks.Lock(roomID)
	defer unlockRoom()
	unlockAccount := s.accountLocks.Lock(externalID)
	defer unlockAccount()

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accountByExternalLocked(externalID)
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	if _, ok := s.rooms[roomID]; !ok {
		return nil, store.ErrRoomNotFound
	}
	if _, ok := s.memberships[roomID][acc.AccountID]; !ok {
		return nil, store.ErrNotAMember
	}

	id := roomID
	acc.CurrentRoomID = &id
	acc.UpdatedAt = s.timestamp()

	return cloneAccount(acc), nil
}

// CountRooms returns the number of distinct rooms the account created or joined.
func (s *Store) CountRooms(ctx context.Context, externalID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accountByExternalLocked(externalID)
	if !ok {
		return 0, nil
	}
	return len(s.roomIDsForLocked(acc.AccountID)), nil
}

// ListRoomsFor returns the rooms the account participates in, oldest first.
func (s *Store) ListRoomsFor(ctx context.Context, externalID int64) ([]*models.RoomSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accountByExternalLocked(externalID)
	if !ok {
		return []*models.RoomSnapshot{}, nil
	}

	rooms := make([]*models.RoomSnapshot, 0)
	for roomID := range s.roomIDsForLocked(acc.AccountID) {
		rooms = append(rooms, s.snapshotLocked(s.rooms[roomID]))
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})

	return rooms, nil
}
