package telegram

import (
	"context"
	"time"

	"mova-bot/pkg/mova"
)

const (
	// DriverType is the "type" value that selects this driver in config.
	DriverType = "telegram"
	// DriverPlatform is stamped on every event and sink this driver creates.
	DriverPlatform mova.Platform = mova.PlatformTelegram
)

// UpdateHandler receives updates from an UpdateSource.
type UpdateHandler func(ctx context.Context, update Update) error

// UpdateSource delivers updates until ctx ends or the connection fails.
type UpdateSource interface {
	Consume(ctx context.Context, handler UpdateHandler) error
}

type UpdateType string

const (
	UpdateTypeMessage  UpdateType = "message"
	UpdateTypeCallback UpdateType = "callback"
)

// The update parts are the neutral shapes already; the aliases keep the
// mapper readable.
type (
	ChatRef         = mova.Conversation
	ActorRef        = mova.Actor
	MessagePayload  = mova.Message
	CallbackPayload = mova.Callback
)

// Update is one accepted Telegram update, mapped but not yet validated as an
// event. Message or Callback is set according to Type.
type Update struct {
	ID         string
	Type       UpdateType
	OccurredAt time.Time
	Chat       ChatRef
	Actor      ActorRef
	Message    *MessagePayload
	Callback   *CallbackPayload
	Metadata   map[string]string
}
