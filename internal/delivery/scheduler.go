package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/wishroom/internal/models"
	"github.com/wolfeidau/wishroom/internal/store"
	"github.com/wolfeidau/wishroom/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// ErrRunInProgress is returned by RunOnce when another run holds the lock.
var ErrRunInProgress = errors.New("delivery run already in progress")

const lockName = "wish-delivery"

// Source is the storage the scheduler reads rooms from and records
// deliveries to.
type Source interface {
	ListActiveRooms(ctx context.Context) ([]*models.Room, error)
	store.DeliveryStore
}

// Config holds scheduler configuration.
type Config struct {
	// Hour of the day (0-23) in Location when the daily run starts.
	Hour     int
	Location *time.Location

	// Interval replaces the daily schedule with a fixed period when set.
	Interval time.Duration

	Concurrency int
	RoomTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	if c.RoomTimeout == 0 {
		c.RoomTimeout = 30 * time.Second
	}
}

// Validate checks the scheduler configuration.
func (c *Config) Validate() error {
	if c.Hour < 0 || c.Hour > 23 {
		return fmt.Errorf("delivery hour must be between 0 and 23, got %d", c.Hour)
	}
	if c.Interval < 0 {
		return fmt.Errorf("delivery interval must not be negative")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("delivery concurrency must be at least 1")
	}
	if c.RoomTimeout <= 0 {
		return fmt.Errorf("room timeout must be positive")
	}
	return nil
}

// RunReport summarizes one delivery run.
type RunReport struct {
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	Rooms           int           `json:"rooms"`
	RoomErrors      int           `json:"room_errors"`
	Messages        int           `json:"messages"`
	Failures        int           `json:"failures"`
	WishesDelivered int           `json:"wishes_delivered"`
}

// Scheduler periodically delivers pending wishes to room members.
type Scheduler struct {
	source     Source
	lock       store.JobLock
	dispatcher Dispatcher
	cfg        Config
	metrics    *telemetry.Metrics
	now        func() time.Time

	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. Call Start to run it on its schedule or
// RunOnce to deliver immediately.
func NewScheduler(source Source, lock store.JobLock, dispatcher Dispatcher, cfg Config) (*Scheduler, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Scheduler{
		source:     source,
		lock:       lock,
		dispatcher: dispatcher,
		cfg:        cfg,
		metrics:    telemetry.GetMetrics(),
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}, nil
}

// Start runs deliveries on the configured schedule until Stop is called or
// ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop stops the schedule and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		now := s.now()
		next := s.nextRun(now)
		log.Info().Time("next_run", next).Msg("delivery scheduled")

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		report, err := s.RunOnce(ctx)
		switch {
		case errors.Is(err, ErrRunInProgress):
			log.Info().Msg("delivery run skipped, another run holds the lock")
		case err != nil:
			log.Error().Err(err).Msg("delivery run failed")
		default:
			log.Info().
				Int("rooms", report.Rooms).
				Int("messages", report.Messages).
				Int("failures", report.Failures).
				Int("room_errors", report.RoomErrors).
				Dur("duration", report.Duration).
				Msg("delivery run complete")
		}
	}
}

// nextRun returns the next scheduled time strictly after now.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	if s.cfg.Interval > 0 {
		return now.Add(s.cfg.Interval)
	}

	local := now.In(s.cfg.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.cfg.Hour, 0, 0, 0, s.cfg.Location)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.cfg.Hour, 0, 0, 0, s.cfg.Location)
	}
	return next
}

// RunOnce delivers every pending wish in every active room. Only one run is
// active at a time across the process and across replicas sharing the lock.
// Failures in a room or for a recipient are logged and counted, and the next
// run retries them.
func (s *Scheduler) RunOnce(ctx context.Context) (*RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	release, acquired, err := s.lock.TryAcquire(ctx, lockName)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire delivery lock: %w", err)
	}
	if !acquired {
		return nil, ErrRunInProgress
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			log.Warn().Err(err).Msg("failed to release delivery lock")
		}
	}()

	report := &RunReport{StartedAt: s.now()}

	rooms, err := s.source.ListActiveRooms(ctx)
	if err != nil {
		s.metrics.DeliveryRunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	report.Rooms = len(rooms)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, room := range rooms {
		g.Go(func() error {
			res, err := s.deliverRoom(gctx, room)

			mu.Lock()
			defer mu.Unlock()
			report.Messages += res.messages
			report.Failures += res.failures
			report.WishesDelivered += res.wishes
			if err != nil {
				report.RoomErrors++
				s.metrics.DeliveryRoomErrorsTotal.Add(ctx, 1)
				log.Error().Err(err).Str("room_id", room.RoomID.String()).Msg("room delivery failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = s.now().Sub(report.StartedAt)
	s.metrics.DeliveryRunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
	s.metrics.DeliveryRunDuration.Record(ctx, float64(report.Duration.Milliseconds()))

	return report, nil
}

type roomResult struct {
	messages int
	failures int
	wishes   int
}

func (s *Scheduler) deliverRoom(ctx context.Context, room *models.Room) (roomResult, error) {
	var res roomResult

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RoomTimeout)
	defer cancel()

	state, err := s.source.LoadRoomDelivery(ctx, room.RoomID)
	if errors.Is(err, store.ErrRoomNotFound) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("failed to load room: %w", err)
	}
	if !state.Room.IsActive {
		return res, nil
	}

	for _, d := range Plan(state) {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		msg := d.Message(state.Room)
		logger := log.With().
			Str("room_id", room.RoomID.String()).
			Int64("recipient", msg.RecipientExternalID).
			Logger()

		if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
			res.failures++
			s.metrics.DeliveryFailuresTotal.Add(ctx, 1)
			logger.Warn().Err(err).Msg("failed to dispatch wishes")
			continue
		}

		if err := s.source.RecordDeliveries(ctx, d.Recipient.AccountID, msg.WishIDs, s.now()); err != nil {
			res.failures++
			s.metrics.DeliveryFailuresTotal.Add(ctx, 1)
			logger.Error().Err(err).Msg("dispatched wishes but failed to record delivery")
			continue
		}

		res.messages++
		res.wishes += len(msg.WishIDs)
		s.metrics.DeliveryMessagesTotal.Add(ctx, 1)
	}

	return res, nil
}
