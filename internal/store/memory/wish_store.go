package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/wolfeidau/wishroom/internal/models"
	"github.com/wolfeidau/wishroom/internal/store"
)

// AddWish inserts a wish under the room lock, enforcing the per-member quota.
func (s *Store) AddWish(ctx context.Context, roomID uuid.UUID, externalID int64, text string) (*models.Wish, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock := s.roomLocks.Lock(roomID)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, store.ErrRoomNotFound
	}
	acc, ok := s.accountByExternalLocked(externalID)
	if !ok {
		return nil, store.ErrNotAMember
	}
	if _, ok := s.memberships[roomID][acc.AccountID]; !ok {
		return nil, store.ErrNotAMember
	}

	count := 0
	for _, w := range s.wishes {
		if w.RoomID == roomID && w.AccountID == acc.AccountID {
			count++
		}
	}
	if count >= room.MaxWishesPerMember {
		return nil, store.ErrWishLimitReached
	}

	now := s.timestamp()
	w := &models.Wish{
		WishID:    uuid.Must(uuid.NewV7()),
		RoomID:    roomID,
		AccountID: acc.AccountID,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.wishes[w.WishID] = w
	room.LastActivityAt = now

	return cloneWish(w), nil
}

// EditWish replaces the text of a wish owned by the account.
func (s *Store) EditWish(ctx context.Context, wishID uuid.UUID, externalID int64, text string) (*models.Wish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.ownedWishLocked(wishID, externalID)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	w.Text = text
	w.UpdatedAt = now
	if room, ok := s.rooms[w.RoomID]; ok {
		room.LastActivityAt = now
	}

	return cloneWish(w), nil
}

// DeleteWish removes a wish owned by the account.
func (s *Store) DeleteWish(ctx context.Context, wishID uuid.UUID, externalID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.ownedWishLocked(wishID, externalID)
	if err != nil {
		return err
	}

	delete(s.wishes, wishID)
	for key := range s.deliveries {
		if key.WishID == wishID {
			delete(s.deliveries, key)
		}
	}
	if room, ok := s.rooms[w.RoomID]; ok {
		room.LastActivityAt = s.timestamp()
	}

	return nil
}

// ListWishes returns the account's wishes in a room, oldest first.
func (s *Store) ListWishes(ctx context.Context, roomID uuid.UUID, externalID int64) ([]*models.Wish, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.rooms[roomID]; !ok {
		return nil, store.ErrRoomNotFound
	}
	acc, ok := s.accountByExternalLocked(externalID)
	if !ok {
		return []*models.Wish{}, nil
	}

	return s.wishesLocked(func(w *models.Wish) bool {
		return w.RoomID == roomID && w.AccountID == acc.AccountID
	}), nil
}

// ListRoomWishes returns every wish in a room, oldest first.
func (s *Store) ListRoomWishes(ctx context.Context, roomID uuid.UUID) ([]*models.Wish, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.rooms[roomID]; !ok {
		return nil, store.ErrRoomNotFound
	}

	return s.wishesLocked(func(w *models.Wish) bool {
		return w.RoomID == roomID
	}), nil
}

func (s *Store) ownedWishLocked(wishID uuid.UUID, externalID int64) (*models.Wish, error) {
	w, ok := s.wishes[wishID]
	if !ok {
		return nil, store.ErrWishNotFound
	}
	acc, ok := s.accountByExternalLocked(externalID)
	if !ok || acc.AccountID != w.AccountID {
		return nil, store.ErrNotWishOwner
	}
	return w, nil
}

func (s *Store) wishesLocked(match func(*models.Wish) bool) []*models.Wish {
	wishes := make([]*models.Wish, 0)
	for _, w := range s.wishes {
		if match(w) {
			wishes = append(wishes, cloneWish(w))
		}
	}
	sort.Slice(wishes, func(i, j int) bool {
		return wishes[i].WishID.String() < wishes[j].WishID.String()
	})
	return wishes
}
