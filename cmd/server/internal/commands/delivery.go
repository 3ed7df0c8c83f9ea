package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/wishroom/internal/delivery"
	"github.com/wolfeidau/wishroom/internal/logger"
	"github.com/wolfeidau/wishroom/internal/store"
)

// DeliveryFlags configures the wish delivery scheduler and its dispatcher.
type DeliveryFlags struct {
	Hour        int           `help:"hour of the day (0-23) when wishes are delivered" default:"0" env:"WISHROOM_DELIVERY_HOUR"`
	Location    string        `help:"IANA time zone for the delivery hour" default:"UTC" env:"WISHROOM_DELIVERY_LOCATION"`
	Interval    time.Duration `help:"deliver on a fixed interval instead of daily" default:"0s" env:"WISHROOM_DELIVERY_INTERVAL"`
	Concurrency int           `help:"rooms processed concurrently" default:"4" env:"WISHROOM_DELIVERY_CONCURRENCY"`
	RoomTimeout time.Duration `help:"deadline for delivering a single room" default:"30s" env:"WISHROOM_DELIVERY_ROOM_TIMEOUT"`

	Dispatcher     string        `help:"where messages are sent (log or webhook)" default:"log" env:"WISHROOM_DELIVERY_DISPATCHER" enum:"log,webhook"`
	WebhookURL     string        `help:"URL receiving one JSON message per recipient" env:"WISHROOM_DELIVERY_WEBHOOK_URL"`
	WebhookToken   string        `help:"bearer token sent to the webhook" env:"WISHROOM_DELIVERY_WEBHOOK_TOKEN"`
	WebhookTimeout time.Duration `help:"timeout of a single webhook request" default:"10s" env:"WISHROOM_DELIVERY_WEBHOOK_TIMEOUT"`
}

func (f *DeliveryFlags) dispatcher(log zerolog.Logger) (delivery.Dispatcher, error) {
	switch f.Dispatcher {
	case "webhook":
		d, err := delivery.NewWebhookDispatcher(delivery.WebhookConfig{
			URL:     f.WebhookURL,
			Token:   f.WebhookToken,
			Timeout: f.WebhookTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create webhook dispatcher: %w", err)
		}
		return d, nil
	default:
		return delivery.NewLogDispatcher(log), nil
	}
}

func (f *DeliveryFlags) scheduler(log zerolog.Logger, source delivery.Source, lock store.JobLock) (*delivery.Scheduler, error) {
	loc, err := time.LoadLocation(f.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid delivery location %q: %w", f.Location, err)
	}

	d, err := f.dispatcher(log)
	if err != nil {
		return nil, err
	}

	return delivery.NewScheduler(source, lock, d, delivery.Config{
		Hour:        f.Hour,
		Location:    loc,
		Interval:    f.Interval,
		Concurrency: f.Concurrency,
		RoomTimeout: f.RoomTimeout,
	})
}

// DeliverCmd runs a single delivery pass, for cron style deployments.
type DeliverCmd struct {
	Tracing bool `help:"enable tracing" default:"false" env:"WISHROOM_TRACING"`

	Backend  BackendFlags  `embed:""`
	Delivery DeliveryFlags `embed:"" prefix:"delivery-"`
}

func (c *DeliverCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Dev)
	ctx = log.WithContext(ctx)

	shutdown := setupTelemetry(ctx, log, c.Tracing, "wishroom-deliver", globals.Version)
	defer shutdown()

	b, err := openBackend(ctx, log, &c.Backend, false)
	if err != nil {
		return err
	}
	defer b.Close()

	scheduler, err := c.Delivery.scheduler(log, b.store, b.lock)
	if err != nil {
		return err
	}

	report, err := scheduler.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("delivery run failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
