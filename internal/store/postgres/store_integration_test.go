//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/wishroom/internal/models"
	"github.com/wolfeidau/wishroom/internal/store"
)

var freeLimits = models.TierLimits{MaxParticipants: 5, MaxWishesPerMember: 1}

func setupPostgresContainer(t *testing.T, ctx context.Context) (*Store, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := NewPool(ctx, &PoolConfig{
		ConnString: fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxConns:   60,
	})
	require.NoError(t, err)

	require.NoError(t, RunMigrations(ctx, pool))
	// Running twice must be a no-op.
	require.NoError(t, RunMigrations(ctx, pool))

	s, err := NewStore(pool, &StoreConfig{MaxTxAttempts: 10})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	cleanup := func() {
		_ = s.Stop()
		_ = container.Terminate(ctx)
	}

	return s, cleanup
}

func createRoom(t *testing.T, s *Store, owner int64, code string) *models.Room {
	t.Helper()
	room, err := s.CreateRoom(context.Background(), store.CreateRoomParams{
		Owner:              &models.Account{ExternalID: owner},
		Code:               code,
		Name:               "Room " + code,
		Tier:               models.TierFree,
		Limits:             freeLimits,
		MaxRoomsPerAccount: 3,
	})
	require.NoError(t, err)
	return room
}

func TestIntegration_Accounts(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	first, err := s.UpsertAccount(ctx, &models.Account{ExternalID: 1001, Username: "santa"})
	require.NoError(t, err)

	second, err := s.UpsertAccount(ctx, &models.Account{ExternalID: 1001, Username: "claus", FirstName: "Nick"})
	require.NoError(t, err)
	require.Equal(t, first.AccountID, second.AccountID)
	require.Equal(t, "claus", second.Username)
	require.Equal(t, "Nick", second.FirstName)

	var count int
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT count(*) FROM accounts WHERE external_id = 1001`).Scan(&count))
	require.Equal(t, 1, count)

	_, err = s.GetAccount(ctx, 404)
	require.ErrorIs(t, err, store.ErrAccountNotFound)

	_, err = s.UpsertAccount(ctx, &models.Account{ExternalID: -1})
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestIntegration_RoomLifecycle(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	room := createRoom(t, s, 1, "ABC123")

	t.Run("lookup by code", func(t *testing.T) {
		snap, err := s.GetRoomByCode(ctx, "ABC123")
		require.NoError(t, err)
		require.Equal(t, room.RoomID, snap.RoomID)
		require.Equal(t, 1, snap.ParticipantCount)
	})

	t.Run("creator membership exists", func(t *testing.T) {
		members, err := s.ListMembers(ctx, room.RoomID)
		require.NoError(t, err)
		require.Len(t, members, 1)
		require.True(t, members[0].IsCreator)
	})

	t.Run("duplicate code", func(t *testing.T) {
		_, err := s.CreateRoom(ctx, store.CreateRoomParams{
			Owner: &models.Account{ExternalID: 2}, Code: "ABC123", Tier: models.TierFree, Limits: freeLimits, MaxRoomsPerAccount: 3,
		})
		require.ErrorIs(t, err, store.ErrCodeCollision)
	})

	t.Run("rooms table rejects a duplicate code", func(t *testing.T) {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO rooms (room_id, code, owner_account_id, max_participants, max_wishes_per_member)
			VALUES ($1, $2, $3, 5, 1)`, uuid.Must(uuid.NewV7()), "ABC123", room.OwnerAccountID)
		require.ErrorIs(t, mapPostgresError(err), store.ErrCodeCollision)

		var indexed bool
		require.NoError(t, s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM pg_indexes WHERE tablename = 'rooms' AND indexname = 'rooms_code_key')`,
		).Scan(&indexed))
		require.True(t, indexed)
	})

	t.Run("join, wishes and leave", func(t *testing.T) {
		for id := int64(2); id <= 5; id++ {
			_, err := s.JoinRoom(ctx, room.RoomID, &models.Account{ExternalID: id}, 3)
			require.NoError(t, err)
		}
		_, err := s.JoinRoom(ctx, room.RoomID, &models.Account{ExternalID: 6}, 3)
		require.ErrorIs(t, err, store.ErrRoomFull)
		_, err = s.JoinRoom(ctx, room.RoomID, &models.Account{ExternalID: 2}, 3)
		require.ErrorIs(t, err, store.ErrAlreadyMember)

		w, err := s.AddWish(ctx, room.RoomID, 2, "a scarf")
		require.NoError(t, err)
		_, err = s.AddWish(ctx, room.RoomID, 2, "gloves")
		require.ErrorIs(t, err, store.ErrWishLimitReached)

		_, err = s.EditWish(ctx, w.WishID, 3, "stolen")
		require.ErrorIs(t, err, store.ErrNotWishOwner)

		require.ErrorIs(t, s.LeaveRoom(ctx, room.RoomID, 1), store.ErrCreatorCannotLeave)
		require.NoError(t, s.LeaveRoom(ctx, room.RoomID, 5))
		require.ErrorIs(t, s.LeaveRoom(ctx, room.RoomID, 5), store.ErrNotAMember)
	})

	t.Run("switch current room", func(t *testing.T) {
		acc, err := s.SetCurrentRoom(ctx, 2, room.RoomID)
		require.NoError(t, err)
		require.Equal(t, room.RoomID, *acc.CurrentRoomID)

		_, err = s.SetCurrentRoom(ctx, 5, room.RoomID)
		require.ErrorIs(t, err, store.ErrNotAMember)
	})

	t.Run("delete cascades", func(t *testing.T) {
		require.ErrorIs(t, s.DeleteRoom(ctx, room.RoomID, 2), store.ErrNotRoomCreator)
		require.NoError(t, s.DeleteRoom(ctx, room.RoomID, 1))

		_, err := s.GetRoom(ctx, room.RoomID)
		require.ErrorIs(t, err, store.ErrRoomNotFound)
		_, err = s.ListWishes(ctx, room.RoomID, 2)
		require.ErrorIs(t, err, store.ErrRoomNotFound)

		var orphans int
		require.NoError(t, s.pool.QueryRow(ctx, `
			SELECT (SELECT count(*) FROM memberships WHERE room_id = $1) +
			       (SELECT count(*) FROM wishes WHERE room_id = $1)`, room.RoomID).Scan(&orphans))
		require.Zero(t, orphans)

		acc, err := s.GetAccount(ctx, 2)
		require.NoError(t, err)
		require.Nil(t, acc.CurrentRoomID)
	})

	t.Run("code is not reused", func(t *testing.T) {
		_, err := s.CreateRoom(ctx, store.CreateRoomParams{
			Owner: &models.Account{ExternalID: 1}, Code: "ABC123", Tier: models.TierFree, Limits: freeLimits, MaxRoomsPerAccount: 3,
		})
		require.ErrorIs(t, err, store.ErrCodeCollision)
	})
}

func TestIntegration_ConcurrentJoins(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	room := createRoom(t, s, 1, "RACE01")

	const joiners = 30
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for i := range joiners {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := s.JoinRoom(ctx, room.RoomID, &models.Account{ExternalID: id}, 3)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, store.ErrRoomFull):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(100 + i))
	}
	wg.Wait()

	require.Equal(t, 4, ok)
	require.Equal(t, joiners-4, full)

	snap, err := s.GetRoom(ctx, room.RoomID)
	require.NoError(t, err)
	require.Equal(t, 5, snap.ParticipantCount)
}

func TestIntegration_SwitchRoomRacesJoin(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	room := createRoom(t, s, 1, "SWAP01")
	_, err := s.JoinRoom(ctx, room.RoomID, &models.Account{ExternalID: 2}, 3)
	require.NoError(t, err)

	const rounds = 25
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for range rounds {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := s.SetCurrentRoom(ctx, 2, room.RoomID); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			_, err := s.JoinRoom(ctx, room.RoomID, &models.Account{ExternalID: 2}, 3)
			if !errors.Is(err, store.ErrAlreadyMember) {
				errs <- fmt.Errorf("join: %w", err)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	acc, err := s.GetAccount(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, room.RoomID, *acc.CurrentRoomID)

	t.Run("unknown account", func(t *testing.T) {
		_, err := s.SetCurrentRoom(ctx, 999, room.RoomID)
		require.ErrorIs(t, err, store.ErrAccountNotFound)
	})

	t.Run("unknown room", func(t *testing.T) {
		_, err := s.SetCurrentRoom(ctx, 2, uuid.Must(uuid.NewV7()))
		require.ErrorIs(t, err, store.ErrRoomNotFound)
	})
}

func TestIntegration_ConcurrentRoomCap(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	var rooms []*models.Room
	for i := range 5 {
		rooms = append(rooms, createRoom(t, s, int64(10+i), fmt.Sprintf("CAP00%d", i)))
	}

	var wg sync.WaitGroup
	for _, r := range rooms {
		wg.Add(1)
		go func(roomID uuid.UUID) {
			defer wg.Done()
			_, _ = s.JoinRoom(ctx, roomID, &models.Account{ExternalID: 900}, 3)
		}(r.RoomID)
	}
	for i := range 3 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.CreateRoom(ctx, store.CreateRoomParams{
				Owner: &models.Account{ExternalID: 900}, Code: fmt.Sprintf("OWN00%d", i),
				Tier: models.TierFree, Limits: freeLimits, MaxRoomsPerAccount: 3,
			})
		}(i)
	}
	wg.Wait()

	count, err := s.CountRooms(ctx, 900)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestIntegration_ConcurrentWishes(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	room := createRoom(t, s, 1, "WISH01")
	_, err := s.SetTier(ctx, room.RoomID, models.TierPro, models.TierLimits{MaxParticipants: 10, MaxWishesPerMember: 5})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.AddWish(ctx, room.RoomID, 1, fmt.Sprintf("wish %d", i))
		}(i)
	}
	wg.Wait()

	wishes, err := s.ListWishes(ctx, room.RoomID, 1)
	require.NoError(t, err)
	require.Len(t, wishes, 5)
}

func TestIntegration_Deliveries(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	room := createRoom(t, s, 1, "DELIV1")
	_, err := s.JoinRoom(ctx, room.RoomID, &models.Account{ExternalID: 2}, 3)
	require.NoError(t, err)
	w, err := s.AddWish(ctx, room.RoomID, 2, "a book")
	require.NoError(t, err)

	owner, err := s.GetAccount(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, s.RecordDeliveries(ctx, owner.AccountID, []uuid.UUID{w.WishID}, time.Now()))
	require.NoError(t, s.RecordDeliveries(ctx, owner.AccountID, []uuid.UUID{w.WishID, uuid.Must(uuid.NewV7())}, time.Now()))

	state, err := s.LoadRoomDelivery(ctx, room.RoomID)
	require.NoError(t, err)
	require.Len(t, state.Members, 2)
	require.Len(t, state.Wishes, 1)
	require.True(t, state.Wishes[0].Delivered)
	require.True(t, state.Delivered[models.DeliveryKey{WishID: w.WishID, RecipientID: owner.AccountID}])
	require.Len(t, state.Delivered, 1)

	rooms, err := s.ListActiveRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	_, err = s.SetRoomActive(ctx, room.RoomID, 1, false)
	require.NoError(t, err)
	rooms, err = s.ListActiveRooms(ctx)
	require.NoError(t, err)
	require.Empty(t, rooms)
}

func TestIntegration_JobLock(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	lock := NewJobLock(s.pool)

	release, ok, err := lock.TryAcquire(ctx, "delivery")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = lock.TryAcquire(ctx, "delivery")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, release(ctx))

	release, ok, err = lock.TryAcquire(ctx, "delivery")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, release(ctx))
}
