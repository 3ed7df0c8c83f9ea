package models

import (
	"time"

	"github.com/google/uuid"
)

// Wish is a free-text item an account records within a room.
type Wish struct {
	WishID    uuid.UUID `json:"wish_id"` // UUIDv7
	RoomID    uuid.UUID `json:"room_id"`
	AccountID uuid.UUID `json:"account_id"`
	Text      string    `json:"text"`

	// Delivered is true once the wish reached at least one recipient.
	Delivered bool `json:"delivered"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
