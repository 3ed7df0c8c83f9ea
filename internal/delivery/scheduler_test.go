package delivery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/wishroom/internal/models"
	"github.com/wolfeidau/wishroom/internal/store"
	"github.com/wolfeidau/wishroom/internal/store/memory"
)

type recorder struct {
	mu       sync.Mutex
	messages map[int64][]*models.Message
	fail     map[int64]bool
}

func newRecorder() *recorder {
	return &recorder{messages: map[int64][]*models.Message{}, fail: map[int64]bool{}}
}

func (r *recorder) Dispatch(ctx context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fail[msg.RecipientExternalID] {
		return errors.New("recipient blocked the bot")
	}
	r.messages[msg.RecipientExternalID] = append(r.messages[msg.RecipientExternalID], msg)
	return nil
}

func (r *recorder) setFail(externalID int64, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[externalID] = fail
}

func (r *recorder) received(externalID int64) []*models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Message(nil), r.messages[externalID]...)
}

type fixture struct {
	store *memory.Store
	room  *models.Room
	wish  map[string]uuid.UUID
}

// newFixture creates a room owned by Ann with Bob and an unnamed third member.
// Ann wished for a sled and Bob for skates.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.NewStore()

	room, err := s.CreateRoom(ctx, store.CreateRoomParams{
		Owner:              &models.Account{ExternalID: 1, FirstName: "Ann"},
		Code:               "FAM001",
		Name:               "Family",
		Tier:               models.TierFree,
		Limits:             models.TierLimits{MaxParticipants: 5, MaxWishesPerMember: 1},
		MaxRoomsPerAccount: 3,
	})
	require.NoError(t, err)

	_, err = s.JoinRoom(ctx, room.RoomID, &models.Account{ExternalID: 2, FirstName: "Bob"}, 3)
	require.NoError(t, err)
	_, err = s.JoinRoom(ctx, room.RoomID, &models.Account{ExternalID: 3}, 3)
	require.NoError(t, err)

	f := &fixture{store: s, room: room, wish: map[string]uuid.UUID{}}
	f.addWish(t, 1, "sled")
	f.addWish(t, 2, "skates")
	return f
}

func (f *fixture) addWish(t *testing.T, externalID int64, text string) {
	t.Helper()
	w, err := f.store.AddWish(context.Background(), f.room.RoomID, externalID, text)
	require.NoError(t, err)
	f.wish[text] = w.WishID
}

func newTestScheduler(t *testing.T, src Source, lock store.JobLock, d Dispatcher) *Scheduler {
	t.Helper()
	s, err := NewScheduler(src, lock, d, Config{})
	require.NoError(t, err)
	return s
}

func TestScheduler_RunOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := newRecorder()
	s := newTestScheduler(t, f.store, memory.NewJobLock(), rec)

	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Rooms)
	require.Equal(t, 3, report.Messages)
	require.Equal(t, 4, report.WishesDelivered)
	require.Zero(t, report.Failures)

	t.Run("recipients never get their own wishes", func(t *testing.T) {
		ann := rec.received(1)
		require.Len(t, ann, 1)
		require.Equal(t, []uuid.UUID{f.wish["skates"]}, ann[0].WishIDs)
		require.Contains(t, ann[0].Text, "🎅 Bob wants for New Year: skates")
		require.NotContains(t, ann[0].Text, "sled")

		bob := rec.received(2)
		require.Len(t, bob, 1)
		require.Equal(t, []uuid.UUID{f.wish["sled"]}, bob[0].WishIDs)

		third := rec.received(3)
		require.Len(t, third, 1)
		require.ElementsMatch(t, []uuid.UUID{f.wish["sled"], f.wish["skates"]}, third[0].WishIDs)
		require.True(t, strings.HasPrefix(third[0].Text, "🎄 Family (FAM001)"))
	})

	t.Run("wishes are marked delivered", func(t *testing.T) {
		wishes, err := f.store.ListRoomWishes(ctx, f.room.RoomID)
		require.NoError(t, err)
		for _, w := range wishes {
			require.True(t, w.Delivered)
		}
	})

	t.Run("no redelivery", func(t *testing.T) {
		report, err := s.RunOnce(ctx)
		require.NoError(t, err)
		require.Zero(t, report.Messages)
		require.Len(t, rec.received(1), 1)
	})

	t.Run("new wish goes only to the others", func(t *testing.T) {
		f.addWish(t, 3, "book")

		report, err := s.RunOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, report.Messages)
		require.Len(t, rec.received(1), 2)
		require.Len(t, rec.received(2), 2)
		require.Len(t, rec.received(3), 1)
	})
}

func TestScheduler_RecipientFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := newRecorder()
	rec.setFail(2, true)
	s := newTestScheduler(t, f.store, memory.NewJobLock(), rec)

	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Messages)
	require.Equal(t, 1, report.Failures)
	require.Empty(t, rec.received(2))
	require.Len(t, rec.received(1), 1)
	require.Len(t, rec.received(3), 1)

	rec.setFail(2, false)

	report, err = s.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Messages)
	require.Len(t, rec.received(2), 1)
	require.Equal(t, []uuid.UUID{f.wish["sled"]}, rec.received(2)[0].WishIDs)
	require.Len(t, rec.received(1), 1)
}

func TestScheduler_SkipsInactiveRooms(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.store.SetRoomActive(ctx, f.room.RoomID, 1, false)
	require.NoError(t, err)

	rec := newRecorder()
	s := newTestScheduler(t, f.store, memory.NewJobLock(), rec)

	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Rooms)
	require.Zero(t, report.Messages)
}

type failingSource struct {
	*memory.Store
	broken uuid.UUID
}

func (f failingSource) LoadRoomDelivery(ctx context.Context, roomID uuid.UUID) (*models.RoomDeliveryState, error) {
	if roomID == f.broken {
		return nil, store.ErrUnavailable
	}
	return f.Store.LoadRoomDelivery(ctx, roomID)
}

func TestScheduler_RoomFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	other, err := f.store.CreateRoom(ctx, store.CreateRoomParams{
		Owner:              &models.Account{ExternalID: 10},
		Code:               "OTHER1",
		Name:               "Other",
		Tier:               models.TierFree,
		Limits:             models.TierLimits{MaxParticipants: 5, MaxWishesPerMember: 1},
		MaxRoomsPerAccount: 3,
	})
	require.NoError(t, err)

	rec := newRecorder()
	s := newTestScheduler(t, failingSource{Store: f.store, broken: other.RoomID}, memory.NewJobLock(), rec)

	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Rooms)
	require.Equal(t, 1, report.RoomErrors)
	require.Equal(t, 3, report.Messages)
}

// stallingDispatcher blocks messages for one recipient until the context ends.
type stallingDispatcher struct {
	*recorder
	stalled int64
}

func (d stallingDispatcher) Dispatch(ctx context.Context, msg *models.Message) error {
	if msg.RecipientExternalID == d.stalled {
		<-ctx.Done()
		return ctx.Err()
	}
	return d.recorder.Dispatch(ctx, msg)
}

func TestScheduler_SlowRoomDoesNotStallOthers(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	newRoom := func(owner, member int64, code string) *models.Room {
		room, err := s.CreateRoom(ctx, store.CreateRoomParams{
			Owner:              &models.Account{ExternalID: owner},
			Code:               code,
			Name:               code,
			Tier:               models.TierFree,
			Limits:             models.TierLimits{MaxParticipants: 5, MaxWishesPerMember: 1},
			MaxRoomsPerAccount: 3,
		})
		require.NoError(t, err)
		_, err = s.JoinRoom(ctx, room.RoomID, &models.Account{ExternalID: member}, 3)
		require.NoError(t, err)
		return room
	}

	slow := newRoom(10, 11, "SLOW01")
	_, err := s.AddWish(ctx, slow.RoomID, 11, "coal")
	require.NoError(t, err)

	fast := newRoom(1, 2, "FAST01")
	_, err = s.AddWish(ctx, fast.RoomID, 1, "sled")
	require.NoError(t, err)
	_, err = s.AddWish(ctx, fast.RoomID, 2, "skates")
	require.NoError(t, err)

	rec := newRecorder()
	scheduler, err := NewScheduler(s, memory.NewJobLock(), stallingDispatcher{recorder: rec, stalled: 10}, Config{
		Concurrency: 1,
		RoomTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	start := time.Now()
	report, err := scheduler.RunOnce(ctx)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second)

	require.Equal(t, 2, report.Rooms)
	require.Equal(t, 2, report.Messages)
	require.Equal(t, 1, report.Failures)
	require.Len(t, rec.received(1), 1)
	require.Len(t, rec.received(2), 1)

	state, err := s.LoadRoomDelivery(ctx, slow.RoomID)
	require.NoError(t, err)
	require.Empty(t, state.Delivered)
}

func TestScheduler_SingleFlight(t *testing.T) {
	ctx := context.Background()

	t.Run("lock held elsewhere", func(t *testing.T) {
		f := newFixture(t)
		lock := memory.NewJobLock()
		rec := newRecorder()
		s := newTestScheduler(t, f.store, lock, rec)

		release, acquired, err := lock.TryAcquire(ctx, lockName)
		require.NoError(t, err)
		require.True(t, acquired)

		_, err = s.RunOnce(ctx)
		require.ErrorIs(t, err, ErrRunInProgress)
		require.Empty(t, rec.received(1))

		require.NoError(t, release(ctx))

		report, err := s.RunOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, 3, report.Messages)
	})

	t.Run("overlapping runs in process", func(t *testing.T) {
		f := newFixture(t)
		entered := make(chan struct{})
		unblock := make(chan struct{})
		var once sync.Once

		d := DispatcherFunc(func(ctx context.Context, msg *models.Message) error {
			once.Do(func() { close(entered) })
			<-unblock
			return nil
		})
		s := newTestScheduler(t, f.store, memory.NewJobLock(), d)

		done := make(chan error, 1)
		go func() {
			_, err := s.RunOnce(ctx)
			done <- err
		}()

		<-entered
		_, err := s.RunOnce(ctx)
		require.ErrorIs(t, err, ErrRunInProgress)

		close(unblock)
		require.NoError(t, <-done)
	})
}

func TestScheduler_StartStop(t *testing.T) {
	f := newFixture(t)
	rec := newRecorder()

	s, err := NewScheduler(f.store, memory.NewJobLock(), rec, Config{Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		return len(rec.received(3)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestScheduler_NextRun(t *testing.T) {
	msk := time.FixedZone("MSK", 3*60*60)

	tests := []struct {
		name string
		cfg  Config
		now  time.Time
		want time.Time
	}{
		{
			name: "later today",
			cfg:  Config{Hour: 18},
			now:  time.Date(2025, 12, 31, 15, 0, 0, 0, time.UTC),
			want: time.Date(2025, 12, 31, 18, 0, 0, 0, time.UTC),
		},
		{
			name: "midnight rolls to next day",
			cfg:  Config{Hour: 0},
			now:  time.Date(2025, 12, 31, 15, 0, 0, 0, time.UTC),
			want: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly on the hour schedules tomorrow",
			cfg:  Config{Hour: 0},
			now:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "location",
			cfg:  Config{Hour: 0, Location: msk},
			now:  time.Date(2025, 12, 31, 20, 30, 0, 0, time.UTC),
			want: time.Date(2025, 12, 31, 21, 0, 0, 0, time.UTC),
		},
		{
			name: "interval",
			cfg:  Config{Interval: time.Hour},
			now:  time.Date(2025, 12, 31, 20, 30, 0, 0, time.UTC),
			want: time.Date(2025, 12, 31, 21, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScheduler(nil, nil, nil, tt.cfg)
			require.NoError(t, err)
			require.True(t, tt.want.Equal(s.nextRun(tt.now)), "got %s", s.nextRun(tt.now))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	_, err := NewScheduler(nil, nil, nil, Config{Hour: 24})
	require.Error(t, err)

	_, err = NewScheduler(nil, nil, nil, Config{Interval: -time.Second})
	require.Error(t, err)
}
