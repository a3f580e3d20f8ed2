package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/tg"
)

const defaultUpdateQueueSize = 1024

// gotdUpdate is one update split out of a gotd updates container, carrying
// the container's entities and date.
type gotdUpdate struct {
	update   tg.UpdateClass
	date     time.Time
	entities gotdEntities
	// origin is the TL type the update arrived as, before short forms were
	// expanded.
	origin string
}

// UpdateQueue is the gotd client's update handler. It splits containers into
// single updates and buffers them until the bot source reads them. Handle
// blocks while the buffer is full.
type UpdateQueue struct {
	updates chan gotdUpdate
}

// NewUpdateQueue creates a queue holding up to size updates.
func NewUpdateQueue(size int) *UpdateQueue {
	if size <= 0 {
		size = defaultUpdateQueueSize
	}

	return &UpdateQueue{updates: make(chan gotdUpdate, size)}
}

// Handle implements gotd's telegram.UpdateHandler.
func (q *UpdateQueue) Handle(ctx context.Context, container tg.UpdatesClass) error {
	updates, err := splitGotdUpdates(container)
	if err != nil {
		return fmt.Errorf("queue gotd updates: %w", err)
	}

	for _, update := range updates {
		select {
		case q.updates <- update:
		case <-ctx.Done():
			return fmt.Errorf("queue gotd update %s: %w", update.origin, ctx.Err())
		}
	}

	return nil
}

// Updates returns the receive side of the queue.
func (q *UpdateQueue) Updates() <-chan gotdUpdate {
	return q.updates
}

// splitGotdUpdates flattens a container. State-only containers yield nothing.
func splitGotdUpdates(container tg.UpdatesClass) ([]gotdUpdate, error) {
	switch typed := container.(type) {
	case nil:
		return nil, fmt.Errorf("nil updates container")
	case *tg.Updates:
		return splitBatch(typed.Updates, typed.Date, newGotdEntities(typed.Users, typed.Chats)), nil
	case *tg.UpdatesCombined:
		return splitBatch(typed.Updates, typed.Date, newGotdEntities(typed.Users, typed.Chats)), nil
	case *tg.UpdateShort:
		return []gotdUpdate{{update: typed.Update, date: unixUTC(typed.Date), origin: typed.Update.TypeName()}}, nil
	case *tg.UpdateShortMessage:
		message := &tg.Message{
			ID:      typed.ID,
			Out:     typed.Out,
			PeerID:  &tg.PeerUser{UserID: typed.UserID},
			Date:    typed.Date,
			Message: typed.Message,
		}
		message.SetFromID(&tg.PeerUser{UserID: typed.UserID})
		if reply, ok := typed.GetReplyTo(); ok {
			message.SetReplyTo(reply)
		}
		return []gotdUpdate{expandShort(message, typed.Pts, typed.PtsCount, typed.TypeName())}, nil
	case *tg.UpdateShortChatMessage:
		message := &tg.Message{
			ID:      typed.ID,
			Out:     typed.Out,
			PeerID:  &tg.PeerChat{ChatID: typed.ChatID},
			Date:    typed.Date,
			Message: typed.Message,
		}
		message.SetFromID(&tg.PeerUser{UserID: typed.FromID})
		if reply, ok := typed.GetReplyTo(); ok {
			message.SetReplyTo(reply)
		}
		return []gotdUpdate{expandShort(message, typed.Pts, typed.PtsCount, typed.TypeName())}, nil
	case *tg.UpdatesTooLong, *tg.UpdateShortSentMessage:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported updates container %s", container.TypeName())
	}
}

func splitBatch(updates []tg.UpdateClass, date int, entities gotdEntities) []gotdUpdate {
	occurredAt := unixUTC(date)
	split := make([]gotdUpdate, 0, len(updates))
	for _, update := range updates {
		if update == nil {
			continue
		}
		split = append(split, gotdUpdate{
			update:   update,
			date:     occurredAt,
			entities: entities,
			origin:   update.TypeName(),
		})
	}

	return split
}

// expandShort rewrites a short message form into the UpdateNewMessage the
// mapper understands.
func expandShort(message *tg.Message, pts, ptsCount int, origin string) gotdUpdate {
	return gotdUpdate{
		update: &tg.UpdateNewMessage{Message: message, Pts: pts, PtsCount: ptsCount},
		date:   unixUTC(message.Date),
		origin: origin,
	}
}

func unixUTC(seconds int) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}

	return time.Unix(int64(seconds), 0).UTC()
}
