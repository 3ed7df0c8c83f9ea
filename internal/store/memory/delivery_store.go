package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/wishroom/internal/models"
	"github.com/wolfeidau/wishroom/internal/store"
)

// LoadRoomDelivery returns a consistent view of one room for delivery planning.
func (s *Store) LoadRoomDelivery(ctx context.Context, roomID uuid.UUID) (*models.RoomDeliveryState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, store.ErrRoomNotFound
	}

	state := &models.RoomDeliveryState{
		Room:      new(models.Room),
		Members:   s.membersLocked(roomID),
		Wishes:    s.wishesLocked(func(w *models.Wish) bool { return w.RoomID == roomID }),
		Delivered: make(map[models.DeliveryKey]bool),
	}
	*state.Room = *room

	for _, w := range state.Wishes {
		for key := range s.deliveries {
			if key.WishID == w.WishID {
				state.Delivered[key] = true
			}
		}
	}

	return state, nil
}

// RecordDeliveries marks wishes as delivered to the recipient. Wishes deleted
// since planning are skipped.
func (s *Store) RecordDeliveries(ctx context.Context, recipientAccountID uuid.UUID, wishIDs []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range wishIDs {
		w, ok := s.wishes[id]
		if !ok {
			continue
		}
		key := models.DeliveryKey{WishID: id, RecipientID: recipientAccountID}
		if _, exists := s.deliveries[key]; !exists {
			s.deliveries[key] = at.UTC()
		}
		w.Delivered = true
	}

	return nil
}
