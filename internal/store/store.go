package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/wishroom/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrAccountNotFound = errors.New("account not found")

	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomInactive       = errors.New("room is not active")
	ErrRoomFull           = errors.New("room is full")
	ErrRoomLimitReached   = errors.New("account room limit reached")
	ErrNotRoomCreator     = errors.New("only the room creator may do this")
	ErrCodeCollision      = errors.New("room code already in use")
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique room code")

	ErrAlreadyMember      = errors.New("account is already a member of the room")
	ErrNotAMember         = errors.New("account is not a member of the room")
	ErrCreatorCannotLeave = errors.New("room creator cannot leave the room")

	ErrWishNotFound     = errors.New("wish not found")
	ErrNotWishOwner     = errors.New("wish belongs to another account")
	ErrWishLimitReached = errors.New("wish limit reached for this room")

	// ErrUnavailable marks transient failures such as lost connections or
	// exhausted retries.
	ErrUnavailable = errors.New("store unavailable")
)

// AccountStore defines the interface for account storage operations.
type AccountStore interface {
	// UpsertAccount creates the account if absent, otherwise updates the
	// display fields and premium flag.
	UpsertAccount(ctx context.Context, account *models.Account) (*models.Account, error)

	// GetAccount retrieves an account by its external id.
	// Returns ErrAccountNotFound if the account doesn't exist.
	GetAccount(ctx context.Context, externalID int64) (*models.Account, error)

	// SetCurrentRoom points the account at one of its rooms.
	// Returns ErrNotAMember if the account is not a member of the room.
	SetCurrentRoom(ctx context.Context, externalID int64, roomID uuid.UUID) (*models.Account, error)

	// CountRooms returns the number of rooms the account created or joined,
	// counting each room once.
	CountRooms(ctx context.Context, externalID int64) (int, error)

	// ListRoomsFor returns the rooms the account participates in.
	ListRoomsFor(ctx context.Context, externalID int64) ([]*models.RoomSnapshot, error)
}

// CreateRoomParams carries everything needed to create a room and the
// creator's membership in one transaction.
type CreateRoomParams struct {
	Owner              *models.Account // upserted by external id
	Code               string
	Name               string
	Tier               models.Tier
	Limits             models.TierLimits
	MaxRoomsPerAccount int
}

// RoomStore defines the interface for room storage operations.
type RoomStore interface {
	// CreateRoom inserts the room and the owner's membership atomically.
	// Returns ErrRoomLimitReached when the owner is at the room cap and
	// ErrCodeCollision when the code is taken.
	CreateRoom(ctx context.Context, params CreateRoomParams) (*models.Room, error)

	// GetRoom retrieves a room with live counts.
	// Returns ErrRoomNotFound if the room doesn't exist.
	GetRoom(ctx context.Context, roomID uuid.UUID) (*models.RoomSnapshot, error)

	// GetRoomByCode retrieves a room by its normalized code.
	GetRoomByCode(ctx context.Context, code string) (*models.RoomSnapshot, error)

	// DeleteRoom removes the room and everything it owns.
	// Returns ErrNotRoomCreator unless the requester created the room.
	DeleteRoom(ctx context.Context, roomID uuid.UUID, requesterExternalID int64) error

	// SetTier updates the tier and its limits. Existing members and wishes
	// above the new limits are kept.
	SetTier(ctx context.Context, roomID uuid.UUID, tier models.Tier, limits models.TierLimits) (*models.RoomSnapshot, error)

	// SetRoomActive toggles whether the room accepts members and deliveries.
	SetRoomActive(ctx context.Context, roomID uuid.UUID, requesterExternalID int64, active bool) (*models.RoomSnapshot, error)

	// TouchActivity bumps the room's last activity timestamp.
	TouchActivity(ctx context.Context, roomID uuid.UUID) error

	// ListActiveRooms returns every active room.
	ListActiveRooms(ctx context.Context) ([]*models.Room, error)
}

// MembershipStore defines the interface for membership storage operations.
type MembershipStore interface {
	// JoinRoom adds the account to the room, enforcing capacity and the
	// per-account room cap under the room lock.
	JoinRoom(ctx context.Context, roomID uuid.UUID, account *models.Account, maxRoomsPerAccount int) (*models.Membership, error)

	// LeaveRoom removes the account from the room.
	// Returns ErrCreatorCannotLeave for the room creator.
	LeaveRoom(ctx context.Context, roomID uuid.UUID, externalID int64) error

	// ListMembers returns the room's members ordered by join time.
	ListMembers(ctx context.Context, roomID uuid.UUID) ([]*models.Member, error)
}

// WishStore defines the interface for wish storage operations.
type WishStore interface {
	// AddWish inserts a wish for a member, enforcing the room's per-member quota.
	AddWish(ctx context.Context, roomID uuid.UUID, externalID int64, text string) (*models.Wish, error)

	// EditWish replaces the text of a wish owned by the account.
	EditWish(ctx context.Context, wishID uuid.UUID, externalID int64, text string) (*models.Wish, error)

	// DeleteWish removes a wish owned by the account.
	DeleteWish(ctx context.Context, wishID uuid.UUID, externalID int64) error

	// ListWishes returns the account's wishes in a room.
	ListWishes(ctx context.Context, roomID uuid.UUID, externalID int64) ([]*models.Wish, error)

	// ListRoomWishes returns all wishes in a room.
	ListRoomWishes(ctx context.Context, roomID uuid.UUID) ([]*models.Wish, error)
}

// DeliveryStore defines the interface used by the delivery scheduler.
type DeliveryStore interface {
	// LoadRoomDelivery returns the members, wishes and delivered pairs of a room.
	LoadRoomDelivery(ctx context.Context, roomID uuid.UUID) (*models.RoomDeliveryState, error)

	// RecordDeliveries marks the wishes as delivered to the recipient.
	// Recording an existing pair is a no-op.
	RecordDeliveries(ctx context.Context, recipientAccountID uuid.UUID, wishIDs []uuid.UUID, at time.Time) error
}

// JobLock provides mutual exclusion for periodic jobs across replicas.
type JobLock interface {
	// TryAcquire attempts to take the named lock without blocking. When
	// acquired is true the caller must call release.
	TryAcquire(ctx context.Context, name string) (release func(context.Context) error, acquired bool, err error)
}

// Store aggregates every storage interface used by the engine.
type Store interface {
	AccountStore
	RoomStore
	MembershipStore
	WishStore
	DeliveryStore
}
