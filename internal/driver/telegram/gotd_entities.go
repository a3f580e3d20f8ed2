package telegram

import (
	"iter"
	"strconv"
	"strings"

	"mova-bot/pkg/mova"

	"github.com/gotd/td/tg"
)

const unknownID = "unknown"

// gotdChat is what the bot learns about a group or channel from the entities
// attached to an update.
type gotdChat struct {
	title string
	kind  mova.ConversationType
	peer  tg.InputPeerClass
}

// gotdEntities indexes the users and chats delivered with one updates
// container. The zero value is an empty index.
type gotdEntities struct {
	users map[int64]*tg.User
	chats map[int64]gotdChat
}

func newGotdEntities(users []tg.UserClass, chats []tg.ChatClass) gotdEntities {
	entities := gotdEntities{
		users: make(map[int64]*tg.User, len(users)),
		chats: make(map[int64]gotdChat, len(chats)),
	}
	for _, user := range users {
		if full, ok := user.(*tg.User); ok && full != nil {
			entities.users[full.ID] = full
		}
	}
	for _, chat := range chats {
		if id, described, ok := describeGotdChat(chat); ok {
			entities.chats[id] = described
		}
	}

	return entities
}

func describeGotdChat(chat tg.ChatClass) (int64, gotdChat, bool) {
	switch typed := chat.(type) {
	case *tg.Chat:
		return typed.ID, gotdChat{
			title: typed.Title,
			kind:  mova.ConversationTypeGroup,
			peer:  &tg.InputPeerChat{ChatID: typed.ID},
		}, true
	case *tg.ChatForbidden:
		return typed.ID, gotdChat{
			title: typed.Title,
			kind:  mova.ConversationTypeGroup,
			peer:  &tg.InputPeerChat{ChatID: typed.ID},
		}, true
	case *tg.Channel:
		return typed.ID, gotdChat{
			title: typed.Title,
			kind:  channelKind(typed.Megagroup),
			peer:  &tg.InputPeerChannel{ChannelID: typed.ID, AccessHash: typed.AccessHash},
		}, true
	case *tg.ChannelForbidden:
		return typed.ID, gotdChat{
			title: typed.Title,
			kind:  channelKind(typed.Megagroup),
			peer:  &tg.InputPeerChannel{ChannelID: typed.ID, AccessHash: typed.AccessHash},
		}, true
	default:
		return 0, gotdChat{}, false
	}
}

// channelKind maps supergroups to groups; only broadcasts are channels.
func channelKind(megagroup bool) mova.ConversationType {
	if megagroup {
		return mova.ConversationTypeGroup
	}

	return mova.ConversationTypeChannel
}

// conversation describes the chat a peer points at. Private chats are keyed
// by the user ID.
func (e gotdEntities) conversation(peer tg.PeerClass) ChatRef {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		user := e.user(typed.UserID)
		return ChatRef{ID: user.ID, Type: mova.ConversationTypePrivate, Title: user.DisplayName}
	case *tg.PeerChat:
		return e.chat(typed.ChatID, mova.ConversationTypeGroup)
	case *tg.PeerChannel:
		return e.chat(typed.ChannelID, mova.ConversationTypeChannel)
	default:
		return ChatRef{ID: unknownID, Type: mova.ConversationTypePrivate}
	}
}

func (e gotdEntities) chat(id int64, fallback mova.ConversationType) ChatRef {
	ref := ChatRef{ID: strconv.FormatInt(id, 10), Type: fallback}
	if known, ok := e.chats[id]; ok {
		ref.Type = known.kind
		ref.Title = known.title
	}

	return ref
}

// author describes who sent a message. Anonymous group admins and channel
// posts are attributed to the chat itself.
func (e gotdEntities) author(peer tg.PeerClass) ActorRef {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		return e.user(typed.UserID)
	case *tg.PeerChat:
		return ActorRef{ID: strconv.FormatInt(typed.ChatID, 10), DisplayName: e.chats[typed.ChatID].title}
	case *tg.PeerChannel:
		return ActorRef{ID: strconv.FormatInt(typed.ChannelID, 10), DisplayName: e.chats[typed.ChannelID].title}
	default:
		return ActorRef{ID: unknownID}
	}
}

func (e gotdEntities) user(userID int64) ActorRef {
	if userID == 0 {
		return ActorRef{ID: unknownID}
	}
	ref := ActorRef{ID: strconv.FormatInt(userID, 10)}
	user, ok := e.users[userID]
	if !ok {
		return ref
	}

	ref.Username = user.Username
	ref.IsBot = user.Bot
	ref.DisplayName = strings.TrimSpace(user.FirstName + " " + user.LastName)
	if ref.DisplayName == "" {
		ref.DisplayName = ref.Username
	}
	if ref.DisplayName == "" {
		ref.DisplayName = ref.ID
	}

	return ref
}

// inputPeer returns the addressable form of peer, or nil when the entities
// lack the access hash a channel needs.
func (e gotdEntities) inputPeer(peer tg.PeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		if user, ok := e.users[typed.UserID]; ok {
			return user.AsInputPeer()
		}
	case *tg.PeerChat:
		if typed.ChatID != 0 {
			return &tg.InputPeerChat{ChatID: typed.ChatID}
		}
	case *tg.PeerChannel:
		if known, ok := e.chats[typed.ChannelID]; ok {
			return cloneInputPeer(known.peer)
		}
	}

	return nil
}

// peers yields every conversation the entities make addressable.
func (e gotdEntities) peers() iter.Seq2[ChatRef, tg.InputPeerClass] {
	return func(yield func(ChatRef, tg.InputPeerClass) bool) {
		for id, user := range e.users {
			chat := ChatRef{ID: strconv.FormatInt(id, 10), Type: mova.ConversationTypePrivate}
			if !yield(chat, user.AsInputPeer()) {
				return
			}
		}
		for id, known := range e.chats {
			chat := ChatRef{ID: strconv.FormatInt(id, 10), Type: known.kind, Title: known.title}
			if !yield(chat, known.peer) {
				return
			}
		}
	}
}
