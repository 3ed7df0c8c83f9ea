package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/wishroom/internal/models"
	"github.com/wolfeidau/wishroom/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store using in-memory storage.
// This implementation is for development and testing - data is lost on restart.
//
// Mutating operations serialize on a per-room mutex and then a per-account
// mutex, mirroring the row locks taken by the PostgreSQL store. The map
// mutex is only held while reading or writing the maps themselves.
type Store struct {
	roomLocks    *keyedMutex[uuid.UUID]
	accountLocks *keyedMutex[int64]

	mu sync.RWMutex

	accounts           map[uuid.UUID]*models.Account
	accountsByExternal map[int64]uuid.UUID
	rooms              map[uuid.UUID]*models.Room
	roomsByCode        map[string]uuid.UUID
	usedCodes          map[string]struct{}
	memberships        map[uuid.UUID]map[uuid.UUID]*models.Membership // room_id -> account_id -> membership
	wishes             map[uuid.UUID]*models.Wish
	deliveries         map[models.DeliveryKey]time.Time

	now func() time.Time
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		roomLocks:          newKeyedMutex[uuid.UUID](),
		accountLocks:       newKeyedMutex[int64](),
		accounts:           make(map[uuid.UUID]*models.Account),
		accountsByExternal: make(map[int64]uuid.UUID),
		rooms:              make(map[uuid.UUID]*models.Room),
		roomsByCode:        make(map[string]uuid.UUID),
		usedCodes:          make(map[string]struct{}),
		memberships:        make(map[uuid.UUID]map[uuid.UUID]*models.Membership),
		wishes:             make(map[uuid.UUID]*models.Wish),
		deliveries:         make(map[models.DeliveryKey]time.Time),
		now:                time.Now,
	}
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// accountByExternalLocked returns the stored account pointer. Caller holds s.mu.
func (s *Store) accountByExternalLocked(externalID int64) (*models.Account, bool) {
	id, ok := s.accountsByExternal[externalID]
	if !ok {
		return nil, false
	}
	return s.accounts[id], true
}

// upsertAccountLocked inserts or updates an account. Caller holds s.mu for writing.
func (s *Store) upsertAccountLocked(in *models.Account) *models.Account {
	if existing, ok := s.accountByExternalLocked(in.ExternalID); ok {
		existing.Username = in.Username
		existing.FirstName = in.FirstName
		existing.LastName = in.LastName
		existing.IsPremium = in.IsPremium
		existing.UpdatedAt = s.timestamp()
		return existing
	}
	return s.insertAccountLocked(in)
}

// ensureAccountLocked returns the existing account for in.ExternalID without
// touching its fields, or inserts in when there is none.
func (s *Store) ensureAccountLocked(in *models.Account) *models.Account {
	if existing, ok := s.accountByExternalLocked(in.ExternalID); ok {
		return existing
	}
	return s.insertAccountLocked(in)
}

func (s *Store) insertAccountLocked(in *models.Account) *models.Account {
	now := s.timestamp()

	acc := &models.Account{
		AccountID:  uuid.Must(uuid.NewV7()),
		ExternalID: in.ExternalID,
		Username:   in.Username,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		IsAdmin:    in.IsAdmin,
		IsPremium:  in.IsPremium,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.accounts[acc.AccountID] = acc
	s.accountsByExternal[acc.ExternalID] = acc.AccountID
	return acc
}

// roomIDsForLocked returns the rooms an account owns or joined. Caller holds s.mu.
func (s *Store) roomIDsForLocked(accountID uuid.UUID) map[uuid.UUID]struct{} {
	ids := make(map[uuid.UUID]struct{})
	for roomID, members := range s.memberships {
		if _, ok := members[accountID]; ok {
			ids[roomID] = struct{}{}
		}
	}
	for roomID, room := range s.rooms {
		if room.OwnerAccountID == accountID {
			ids[roomID] = struct{}{}
		}
	}
	return ids
}

// snapshotLocked builds a detached snapshot. Caller holds s.mu.
func (s *Store) snapshotLocked(room *models.Room) *models.RoomSnapshot {
	snap := &models.RoomSnapshot{
		Room:             *room,
		ParticipantCount: len(s.memberships[room.RoomID]),
	}
	for _, w := range s.wishes {
		if w.RoomID == room.RoomID {
			snap.WishCount++
		}
	}
	return snap
}

func cloneAccount(a *models.Account) *models.Account {
	clone := *a
	if a.CurrentRoomID != nil {
		id := *a.CurrentRoomID
		clone.CurrentRoomID = &id
	}
	return &clone
}

func cloneWish(w *models.Wish) *models.Wish {
	clone := *w
	return &clone
}

// keyedMutex hands out one mutex per key and frees it when unused.
type keyedMutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex[K comparable]() *keyedMutex[K] {
	return &keyedMutex[K]{locks: make(map[K]*refMutex)}
}

// Lock blocks until the key is held and returns the unlock function.
func (k *keyedMutex[K]) Lock(key K) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()

	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
