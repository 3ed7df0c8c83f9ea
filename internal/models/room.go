package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tier determines the capacity limits of a room.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// ParseTier validates a tier name.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFree, TierPro:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

// TierLimits holds the limits a tier grants to a room.
type TierLimits struct {
	MaxParticipants    int `yaml:"max_participants" json:"max_participants"`
	MaxWishesPerMember int `yaml:"max_wishes_per_member" json:"max_wishes_per_member"`
}

// Room is a bounded group identified by a short join code.
type Room struct {
	RoomID         uuid.UUID `json:"room_id"` // UUIDv7
	Code           string    `json:"code"`    // 6 chars, [A-Z0-9], never reused
	Name           string    `json:"name"`
	OwnerAccountID uuid.UUID `json:"owner_account_id"`
	IsActive       bool      `json:"is_active"`
	Tier           Tier      `json:"tier"`

	MaxParticipants    int `json:"max_participants"`
	MaxWishesPerMember int `json:"max_wishes_per_member"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// RoomSnapshot is a room with counts computed at read time.
type RoomSnapshot struct {
	Room
	ParticipantCount int `json:"participant_count"`
	WishCount        int `json:"wish_count"`
}

// IsFull reports whether the room accepts no further members.
func (s *RoomSnapshot) IsFull() bool {
	return s.ParticipantCount >= s.MaxParticipants
}

// Membership records that an account participates in a room.
type Membership struct {
	RoomID    uuid.UUID `json:"room_id"`
	AccountID uuid.UUID `json:"account_id"`
	IsCreator bool      `json:"is_creator"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Member is a membership joined with the member's account details.
type Member struct {
	AccountSummary
	IsCreator bool      `json:"is_creator"`
	JoinedAt  time.Time `json:"joined_at"`
}
