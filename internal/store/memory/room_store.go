package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/wolfeidau/wishroom/internal/models"
	"github.com/wolfeidau/wishroom/internal/store"
)

// CreateRoom inserts a room and the creator's membership atomically.
func (s *Store) CreateRoom(ctx context.Context, params store.CreateRoomParams) (*models.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock := s.accountLocks.Lock(params.Owner.ExternalID)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usedCodes[params.Code]; taken {
		return nil, store.ErrCodeCollision
	}

	if existing, ok := s.accountByExternalLocked(params.Owner.ExternalID); ok {
		if len(s.roomIDsForLocked(existing.AccountID)) >= params.MaxRoomsPerAccount {
			return nil, store.ErrRoomLimitReached
		}
	}
	owner := s.ensureAccountLocked(params.Owner)

	now := s.timestamp()
	room := &models.Room{
		RoomID:             uuid.Must(uuid.NewV7()),
		Code:               params.Code,
		Name:               params.Name,
		OwnerAccountID:     owner.AccountID,
		IsActive:           true,
		Tier:               params.Tier,
		MaxParticipants:    params.Limits.MaxParticipants,
		MaxWishesPerMember: params.Limits.MaxWishesPerMember,
		CreatedAt:          now,
		LastActivityAt:     now,
	}

	s.rooms[room.RoomID] = room
	s.roomsByCode[room.Code] = room.RoomID
	s.usedCodes[room.Code] = struct{}{}
	s.memberships[room.RoomID] = map[uuid.UUID]*models.Membership{
		owner.AccountID: {
			RoomID:    room.RoomID,
			AccountID: owner.AccountID,
			IsCreator: true,
			JoinedAt:  now,
		},
	}

	id := room.RoomID
	owner.CurrentRoomID = &id
	owner.UpdatedAt = now

	clone := *room
	return &clone, nil
}

// GetRoom retrieves a room snapshot by id.
func (s *Store) GetRoom(ctx context.Context, roomID uuid.UUID) (*models.RoomSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, store.ErrRoomNotFound
	}
	return s.snapshotLocked(room), nil
}

// GetRoomByCode retrieves a room snapshot by normalized code.
func (s *Store) GetRoomByCode(ctx context.Context, code string) (*models.RoomSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roomID, ok := s.roomsByCode[code]
	if !ok {
		return nil, store.ErrRoomNotFound
	}
	return s.snapshotLocked(s.rooms[roomID]), nil
}

// DeleteRoom removes the room with its memberships, wishes and deliveries.
// The code stays reserved.
func (s *Store) DeleteRoom(ctx context.Context, roomID uuid.UUID, requesterExternalID int64) error {
	unlock := s.roomLocks.Lock(roomID)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return store.ErrRoomNotFound
	}
	if !s.isOwnerLocked(room, requesterExternalID) {
		return store.ErrNotRoomCreator
	}

	for id, w := range s.wishes {
		if w.RoomID == roomID {
			delete(s.wishes, id)
			for key := range s.deliveries {
				if key.WishID == id {
					delete(s.deliveries, key)
				}
			}
		}
	}
	for accountID := range s.memberships[roomID] {
		if acc, ok := s.accounts[accountID]; ok && acc.CurrentRoomID != nil && *acc.CurrentRoomID == roomID {
			acc.CurrentRoomID = nil
		}
	}
	delete(s.memberships, roomID)
	delete(s.roomsByCode, room.Code)
	delete(s.rooms, roomID)

	return nil
}

// SetTier updates a room's tier and limits.
func (s *Store) SetTier(ctx context.Context, roomID uuid.UUID, tier models.Tier, limits models.TierLimits) (*models.RoomSnapshot, error) {
	unlock := s.roomLocks.Lock(roomID)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, store.ErrRoomNotFound
	}
	room.Tier = tier
	room.MaxParticipants = limits.MaxParticipants
	room.MaxWishesPerMember = limits.MaxWishesPerMember
	room.LastActivityAt = s.timestamp()

	return s.snapshotLocked(room), nil
}

// SetRoomActive toggles the active flag. Only the creator may do this.
func (s *Store) SetRoomActive(ctx context.Context, roomID uuid.UUID, requesterExternalID int64, active bool) (*models.RoomSnapshot, error) {
	unlock := s.roomLocks.Lock(roomID)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, store.ErrRoomNotFound
	}
	if !s.isOwnerLocked(room, requesterExternalID) {
		return nil, store.ErrNotRoomCreator
	}
	room.IsActive = active
	room.LastActivityAt = s.timestamp()

	return s.snapshotLocked(room), nil
}

// TouchActivity bumps the room's last activity timestamp.
func (s *Store) TouchActivity(ctx context.Context, roomID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return store.ErrRoomNotFound
	}
	room.LastActivityAt = s.timestamp()
	return nil
}

// ListActiveRooms returns active rooms, oldest first.
func (s *Store) ListActiveRooms(ctx context.Context) ([]*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]*models.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		if !room.IsActive {
			continue
		}
		clone := *room
		rooms = append(rooms, &clone)
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (s *Store) isOwnerLocked(room *models.Room, externalID int64) bool {
	acc, ok := s.accountByExternalLocked(externalID)
	return ok && acc.AccountID == room.OwnerAccountID
}
