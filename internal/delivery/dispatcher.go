package delivery

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/wishroom/internal/models"
)

// Dispatcher sends a rendered message to its recipient.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *models.Message) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, msg *models.Message) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg *models.Message) error {
	return f(ctx, msg)
}

// LogDispatcher writes messages to a logger instead of sending them.
type LogDispatcher struct {
	logger zerolog.Logger
}

// NewLogDispatcher creates a dispatcher that logs every message at info level.
func NewLogDispatcher(logger zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, msg *models.Message) error {
	d.logger.Info().
		Str("room_id", msg.RoomID.String()).
		Str("room_code", msg.RoomCode).
		Int64("recipient", msg.RecipientExternalID).
		Int("wishes", len(msg.WishIDs)).
		Str("text", msg.Text).
		Msg("wish delivery")
	return nil
}
