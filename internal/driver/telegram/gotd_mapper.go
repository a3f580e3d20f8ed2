package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/tg"
)

// updateMapper turns gotd updates into driver Updates. It accepts incoming
// text messages and callback queries that carry data; everything else is
// skipped. Every update it sees feeds the peer cache.
type updateMapper struct {
	peers *PeerCache
	now   func() time.Time
}

func newUpdateMapper(peers *PeerCache) updateMapper {
	return updateMapper{peers: peers, now: time.Now}
}

// Map reports ok=false for updates the bot does not handle.
func (m updateMapper) Map(ctx context.Context, raw gotdUpdate) (Update, bool, error) {
	if err := ctx.Err(); err != nil {
		return Update{}, false, fmt.Errorf("map gotd update: %w", err)
	}
	if raw.update == nil {
		return Update{}, false, fmt.Errorf("map gotd update: empty update")
	}
	m.peers.rememberEntities(raw.entities)

	switch typed := raw.update.(type) {
	case *tg.UpdateNewMessage:
		return m.message(typed.Message, raw)
	case *tg.UpdateNewChannelMessage:
		return m.message(typed.Message, raw)
	case *tg.UpdateBotCallbackQuery:
		return m.callback(typed, raw)
	default:
		return Update{}, false, nil
	}
}

func (m updateMapper) message(class tg.MessageClass, raw gotdUpdate) (Update, bool, error) {
	message, ok := class.(*tg.Message)
	if !ok || message.Out {
		return Update{}, false, nil
	}

	chat := raw.entities.conversation(message.PeerID)
	from := message.FromID
	if from == nil {
		from = message.PeerID
	}
	m.peers.RememberConversation(chat, raw.entities.inputPeer(message.PeerID))

	payload := &MessagePayload{ID: strconv.Itoa(message.ID), Text: message.Message}
	if header, ok := message.ReplyTo.(*tg.MessageReplyHeader); ok {
		if replyID, ok := header.GetReplyToMsgID(); ok {
			payload.ReplyToID = strconv.Itoa(replyID)
		}
	}

	return Update{
		ID:         composeUpdateID(UpdateTypeMessage, chat.ID, payload.ID),
		Type:       UpdateTypeMessage,
		OccurredAt: m.firstKnown(unixUTC(message.Date), raw.date),
		Chat:       chat,
		Actor:      raw.entities.author(from),
		Message:    payload,
		Metadata:   originMetadata(raw),
	}, true, nil
}

func (m updateMapper) callback(query *tg.UpdateBotCallbackQuery, raw gotdUpdate) (Update, bool, error) {
	data, ok := query.GetData()
	if !ok {
		return Update{}, false, nil
	}

	chat := raw.entities.conversation(query.Peer)
	m.peers.RememberConversation(chat, raw.entities.inputPeer(query.Peer))
	queryID := strconv.FormatInt(query.QueryID, 10)

	return Update{
		ID:         composeUpdateID(UpdateTypeCallback, chat.ID, queryID),
		Type:       UpdateTypeCallback,
		OccurredAt: m.firstKnown(raw.date),
		Chat:       chat,
		Actor:      raw.entities.user(query.UserID),
		Callback: &CallbackPayload{
			QueryID:   queryID,
			MessageID: strconv.Itoa(query.MsgID),
			Data:      string(data),
		},
		Metadata: originMetadata(raw),
	}, true, nil
}

// firstKnown returns the first non-zero time, or the current time.
func (m updateMapper) firstKnown(candidates ...time.Time) time.Time {
	for _, candidate := range candidates {
		if !candidate.IsZero() {
			return candidate
		}
	}

	return m.now().UTC()
}

// composeUpdateID builds "tg:<type>[:<chat>][:<part>...]", skipping empty parts.
func composeUpdateID(updateType UpdateType, chatID string, parts ...string) string {
	var id strings.Builder
	id.WriteString("tg:")
	id.WriteString(string(updateType))
	for _, part := range append([]string{chatID}, parts...) {
		if part == "" {
			continue
		}
		id.WriteByte(':')
		id.WriteString(part)
	}

	return id.String()
}

func originMetadata(raw gotdUpdate) map[string]string {
	if raw.origin == "" {
		return nil
	}

	return map[string]string{"gotd_update": raw.origin}
}
