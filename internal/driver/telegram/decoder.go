package telegram

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"mova-bot/pkg/mova"
)

// Decoder turns an Update into a validated event.
type Decoder interface {
	Decode(ctx context.Context, update Update) (*mova.Event, error)
}

// DefaultDecoder copies updates into events. It stamps the platform but
// leaves Source.ID to the driver.
type DefaultDecoder struct {
	now func() time.Time
}

func NewDefaultDecoder() DefaultDecoder {
	return DefaultDecoder{now: time.Now}
}

func (d DefaultDecoder) Decode(_ context.Context, update Update) (*mova.Event, error) {
	event := &mova.Event{
		ID:           update.ID,
		OccurredAt:   update.OccurredAt,
		Source:       mova.EventSource{Platform: DriverPlatform},
		Conversation: update.Chat,
		Actor:        update.Actor,
		Metadata:     maps.Clone(update.Metadata),
	}
	if event.OccurredAt.IsZero() && d.now != nil {
		event.OccurredAt = d.now().UTC()
	}

	var err error
	switch update.Type {
	case UpdateTypeMessage:
		event.Kind = mova.EventKindMessageCreated
		event.Message, err = clonePayload(update.Message)
	case UpdateTypeCallback:
		event.Kind = mova.EventKindCallbackReceived
		event.Callback, err = clonePayload(update.Callback)
		if err == nil && event.Callback.QueryID == "" {
			err = errors.New("callback without query id")
		}
	default:
		err = errors.New("unsupported update type")
	}
	if err == nil {
		err = event.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s update %q: %w", update.Type, update.ID, err)
	}

	return event, nil
}

// clonePayload detaches the event from the update it came from.
func clonePayload[T any](payload *T) (*T, error) {
	if payload == nil {
		return nil, errors.New("missing payload")
	}
	clone := *payload

	return &clone, nil
}
