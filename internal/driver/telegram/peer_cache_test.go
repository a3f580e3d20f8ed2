package telegram

import (
	"fmt"
	"testing"

	"mova-bot/pkg/mova"

	"github.com/gotd/td/tg"
)

func TestPeerCacheRememberEntitiesAndResolve(t *testing.T) {
	t.Parallel()

	user := &tg.User{ID: 7}
	user.SetAccessHash(77)
	megagroup := &tg.Channel{ID: 20, Title: "Learners", Megagroup: true}
	megagroup.SetAccessHash(2020)
	broadcast := &tg.Channel{ID: 30, Title: "Daily rule"}
	broadcast.SetAccessHash(3030)

	cache := NewPeerCache()
	cache.rememberEntities(newGotdEntities(
		[]tg.UserClass{user},
		[]tg.ChatClass{&tg.Chat{ID: 10, Title: "Study group"}, megagroup, broadcast},
	))
	if got := cache.Len(); got != 4 {
		t.Fatalf("len = %d, want 4", got)
	}

	tests := []struct {
		name         string
		conversation mova.Conversation
		wantPeer     string
		wantErr      bool
	}{
		{
			name:         "cached private user keeps access hash",
			conversation: mova.Conversation{ID: "7", Type: mova.ConversationTypePrivate},
			wantPeer:     "user:7:77",
		},
		{
			name:         "cached basic group",
			conversation: mova.Conversation{ID: "10", Type: mova.ConversationTypeGroup},
			wantPeer:     "chat:10",
		},
		{
			name:         "megagroup resolves as group",
			conversation: mova.Conversation{ID: "20", Type: mova.ConversationTypeGroup},
			wantPeer:     "channel:20:2020",
		},
		{
			name:         "broadcast channel",
			conversation: mova.Conversation{ID: "30", Type: mova.ConversationTypeChannel},
			wantPeer:     "channel:30:3030",
		},
		{
			name:         "unseen private user falls back to bare peer",
			conversation: mova.Conversation{ID: "999", Type: mova.ConversationTypePrivate},
			wantPeer:     "user:999:0",
		},
		{
			name:         "unseen group falls back to basic chat",
			conversation: mova.Conversation{ID: "998", Type: mova.ConversationTypeGroup},
			wantPeer:     "chat:998",
		},
		{
			name:         "unseen channel is an error",
			conversation: mova.Conversation{ID: "997", Type: mova.ConversationTypeChannel},
			wantErr:      true,
		},
		{
			name:         "non numeric private id is an error",
			conversation: mova.Conversation{ID: "olena", Type: mova.ConversationTypePrivate},
			wantErr:      true,
		},
		{
			name:         "missing type is an error",
			conversation: mova.Conversation{ID: "7"},
			wantErr:      true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			peer, err := cache.Resolve(testCase.conversation)
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := describePeer(peer); got != testCase.wantPeer {
				t.Fatalf("peer = %s, want %s", got, testCase.wantPeer)
			}
		})
	}
}

func TestPeerCacheRememberConversation(t *testing.T) {
	t.Parallel()

	cache := NewPeerCache()
	cache.RememberConversation(
		ChatRef{ID: "55", Type: mova.ConversationTypeGroup},
		&tg.InputPeerChannel{ChannelID: 55, AccessHash: 555},
	)
	cache.RememberConversation(ChatRef{ID: "", Type: mova.ConversationTypeGroup}, &tg.InputPeerChat{ChatID: 1})
	cache.RememberConversation(ChatRef{ID: "56", Type: mova.ConversationTypeGroup}, nil)

	if got := cache.Len(); got != 1 {
		t.Fatalf("len = %d, want 1", got)
	}

	peer, err := cache.Resolve(mova.Conversation{ID: "55", Type: mova.ConversationTypeGroup})
	if err != nil {
		t.Fatalf("resolve group peer failed: %v", err)
	}
	if got := describePeer(peer); got != "channel:55:555" {
		t.Fatalf("peer = %s, want channel:55:555", got)
	}
}

func TestPeerCacheResolveReturnsCopies(t *testing.T) {
	t.Parallel()

	cache := NewPeerCache()
	cache.RememberConversation(
		ChatRef{ID: "5", Type: mova.ConversationTypePrivate},
		&tg.InputPeerUser{UserID: 5, AccessHash: 50},
	)

	first, err := cache.Resolve(mova.Conversation{ID: "5", Type: mova.ConversationTypePrivate})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	first.(*tg.InputPeerUser).AccessHash = 1

	second, err := cache.Resolve(mova.Conversation{ID: "5", Type: mova.ConversationTypePrivate})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got := describePeer(second); got != "user:5:50" {
		t.Fatalf("peer = %s, want user:5:50", got)
	}
}

func TestPeerCacheNilReceiver(t *testing.T) {
	t.Parallel()

	var cache *PeerCache
	cache.rememberEntities(gotdEntities{})
	cache.RememberConversation(ChatRef{ID: "1", Type: mova.ConversationTypePrivate}, &tg.InputPeerUser{UserID: 1})
	if _, err := cache.Resolve(mova.Conversation{ID: "1", Type: mova.ConversationTypePrivate}); err == nil {
		t.Fatal("expected error from nil cache")
	}
	if got := cache.Len(); got != 0 {
		t.Fatalf("len = %d, want 0", got)
	}
}

func describePeer(peer tg.InputPeerClass) string {
	switch typed := peer.(type) {
	case *tg.InputPeerUser:
		return fmt.Sprintf("user:%d:%d", typed.UserID, typed.AccessHash)
	case *tg.InputPeerChat:
		return fmt.Sprintf("chat:%d", typed.ChatID)
	case *tg.InputPeerChannel:
		return fmt.Sprintf("channel:%d:%d", typed.ChannelID, typed.AccessHash)
	default:
		return fmt.Sprintf("%T", peer)
	}
}
