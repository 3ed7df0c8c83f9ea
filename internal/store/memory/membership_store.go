package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/wolfeidau/wishroom/internal/models"
	"github.com/wolfeidau/wishroom/internal/store"
)

// JoinRoom adds an account to a room. The room lock is taken before the
// account lock so concurrent joins for the same room serialize.
func (s *Store) JoinRoom(ctx context.Context, roomID uuid.UUID, account *models.Account, maxRoomsPerAccount int) (*models.Membership, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlockRoom := s.roomLocks.Lock(roomID)
	defer unlockRoom()
	unlockAccount := s.accountLocks.Lock(account.ExternalID)
	defer unlockAccount()

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, store.ErrRoomNotFound
	}
	if !room.IsActive {
		return nil, store.ErrRoomInactive
	}

	members := s.memberships[roomID]
	existing, exists := s.accountByExternalLocked(account.ExternalID)
	if exists {
		if _, ok := members[existing.AccountID]; ok {
			return nil, store.ErrAlreadyMember
		}
	}
	if len(members) >= room.MaxParticipants {
		return nil, store.ErrRoomFull
	}
	if exists && len(s.roomIDsForLocked(existing.AccountID)) >= maxRoomsPerAccount {
		return nil, store.ErrRoomLimitReached
	}

	acc := s.ensureAccountLocked(account)
	now := s.timestamp()

	m := &models.Membership{
		RoomID:    roomID,
		AccountID: acc.AccountID,
		JoinedAt:  now,
	}
	members[acc.AccountID] = m

	id := roomID
	acc.CurrentRoomID = &id
	room.LastActivityAt = now

	clone := *m
	return &clone, nil
}

// LeaveRoom removes a non-creator member from a room.
func (s *Store) LeaveRoom(ctx context.Context, roomID uuid.UUID, externalID int64) error {
	unlockRoom := s.roomLocks.Lock(roomID)
	defer unlockRoom()
	unlockAccount := s.accountLocks.Lock(externalID)
	defer unlockAccount()

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return store.ErrRoomNotFound
	}
	acc, ok := s.accountByExternalLocked(externalID)
	if !ok {
		return store.ErrNotAMember
	}
	if room.OwnerAccountID == acc.AccountID {
		return store.ErrCreatorCannotLeave
	}
	if _, ok := s.memberships[roomID][acc.AccountID]; !ok {
		return store.ErrNotAMember
	}

	delete(s.memberships[roomID], acc.AccountID)
	if acc.CurrentRoomID != nil && *acc.CurrentRoomID == roomID {
		acc.CurrentRoomID = nil
	}
	room.LastActivityAt = s.timestamp()

	return nil
}

// ListMembers returns members ordered by join time.
func (s *Store) ListMembers(ctx context.Context, roomID uuid.UUID) ([]*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.rooms[roomID]; !ok {
		return nil, store.ErrRoomNotFound
	}
	return s.membersLocked(roomID), nil
}

func (s *Store) membersLocked(roomID uuid.UUID) []*models.Member {
	room := s.rooms[roomID]

	members := make([]*models.Member, 0, len(s.memberships[roomID]))
	for accountID, m := range s.memberships[roomID] {
		acc := s.accounts[accountID]
		members = append(members, &models.Member{
			AccountSummary: acc.Summary(),
			IsCreator:      room.OwnerAccountID == accountID,
			JoinedAt:       m.JoinedAt,
		})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].AccountID.String() < members[j].AccountID.String()
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members
}
