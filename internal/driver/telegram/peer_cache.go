package telegram

import (
	"fmt"
	"strconv"
	"sync"

	"mova-bot/pkg/mova"

	"github.com/gotd/td/tg"
)

type peerKey struct {
	kind mova.ConversationType
	id   string
}

// PeerCache maps neutral conversations back to the Telegram input peers the
// outbound dispatcher needs. It learns from every inbound update. All methods
// are safe on a nil cache; lookups on it fail.
type PeerCache struct {
	mu    sync.RWMutex
	peers map[peerKey]tg.InputPeerClass
}

// NewPeerCache creates an empty cache.
func NewPeerCache() *PeerCache {
	return &PeerCache{peers: make(map[peerKey]tg.InputPeerClass)}
}

func (c *PeerCache) rememberEntities(entities gotdEntities) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for chat, peer := range entities.peers() {
		if peer != nil {
			c.peers[peerKey{kind: chat.Type, id: chat.ID}] = cloneInputPeer(peer)
		}
	}
}

// RememberConversation records peer for chat. Empty IDs and nil peers are
// ignored.
func (c *PeerCache) RememberConversation(chat ChatRef, peer tg.InputPeerClass) {
	if c == nil || peer == nil || chat.ID == "" {
		return
	}

	c.mu.Lock()
	c.peers[peerKey{kind: chat.Type, id: chat.ID}] = cloneInputPeer(peer)
	c.mu.Unlock()
}

// Len reports how many conversations have a known peer.
func (c *PeerCache) Len() int {
	if c == nil {
		return 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.peers)
}

// Resolve returns a private copy of the peer for conversation. Users and basic
// groups the cache has not seen still resolve from their numeric ID, since
// neither needs an access hash when addressed by a bot. Channels must have
// been seen.
func (c *PeerCache) Resolve(conversation mova.Conversation) (tg.InputPeerClass, error) {
	if c == nil {
		return nil, fmt.Errorf("resolve peer: nil cache")
	}
	if conversation.ID == "" || conversation.Type == "" {
		return nil, fmt.Errorf("resolve peer: conversation needs id and type")
	}

	c.mu.RLock()
	peer, ok := c.peers[peerKey{kind: conversation.Type, id: conversation.ID}]
	c.mu.RUnlock()
	if ok {
		return cloneInputPeer(peer), nil
	}

	id, err := strconv.ParseInt(conversation.ID, 10, 64)
	if err == nil {
		switch conversation.Type {
		case mova.ConversationTypePrivate:
			return &tg.InputPeerUser{UserID: id}, nil
		case mova.ConversationTypeGroup:
			return &tg.InputPeerChat{ChatID: id}, nil
		}
	}

	return nil, fmt.Errorf("resolve peer: %s conversation %s not seen", conversation.Type, conversation.ID)
}

func cloneInputPeer(peer tg.InputPeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.InputPeerUser:
		clone := *typed
		return &clone
	case *tg.InputPeerChat:
		clone := *typed
		return &clone
	case *tg.InputPeerChannel:
		clone := *typed
		return &clone
	default:
		return peer
	}
}
