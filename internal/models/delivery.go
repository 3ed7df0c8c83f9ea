package models

import (
	"github.com/google/uuid"
)

// DeliveryKey identifies a wish delivered to a recipient.
type DeliveryKey struct {
	WishID      uuid.UUID
	RecipientID uuid.UUID
}

// RoomDeliveryState is everything the scheduler needs to plan one room.
type RoomDeliveryState struct {
	Room      *Room
	Members   []*Member
	Wishes    []*Wish
	Delivered map[DeliveryKey]bool
}

// Message is one outbound delivery to a single recipient.
type Message struct {
	RoomID              uuid.UUID   `json:"room_id"`
	RoomCode            string      `json:"room_code"`
	RecipientAccountID  uuid.UUID   `json:"recipient_account_id"`
	RecipientExternalID int64       `json:"recipient_external_id"`
	Text                string      `json:"text"`
	WishIDs             []uuid.UUID `json:"wish_ids"`
}
