package catalogue

import (
	"context"
	"sync"
	"time"

	"mova-bot/pkg/mova"
)

// DefaultIdleTimeout is how long an untouched page is kept.
const DefaultIdleTimeout = 24 * time.Hour

// ConversationKey identifies one conversation across drivers.
type ConversationKey struct {
	Platform       mova.Platform
	ConversationID string
}

// ConversationKeyFromEvent derives the navigation key for an inbound event.
func ConversationKeyFromEvent(event *mova.Event) ConversationKey {
	return ConversationKey{
		Platform:       event.Source.Platform,
		ConversationID: event.Conversation.ID,
	}
}

type page struct {
	items   []mova.Example
	touched time.Time
}

// NavigationStore remembers the last page of examples per conversation.
//
// Pages are replaced wholesale by SetPage. A page idle for longer than the
// idle timeout resolves as absent and is removed by Sweep.
type NavigationStore struct {
	mu          sync.RWMutex
	pages       map[ConversationKey]page
	idleTimeout time.Duration
	now         func() time.Time
}

// NewNavigationStore creates an empty store. A non-positive idleTimeout
// selects DefaultIdleTimeout.
func NewNavigationStore(idleTimeout time.Duration) *NavigationStore {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	return &NavigationStore{
		pages:       make(map[ConversationKey]page),
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// SetPage replaces the page for key with a copy of items.
func (s *NavigationStore) SetPage(key ConversationKey, items []mova.Example) {
	stored := make([]mova.Example, len(items))
	copy(stored, items)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[key] = page{items: stored, touched: s.now()}
}

// Resolve returns the item at index on the page for key. It reports false
// when there is no live page or index is outside [0, len).
func (s *NavigationStore) Resolve(key ConversationKey, index int) (mova.Example, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.pages[key]
	if !exists {
		return mova.Example{}, false
	}
	if now.Sub(current.touched) > s.idleTimeout {
		delete(s.pages, key)
		return mova.Example{}, false
	}
	if index < 0 || index >= len(current.items) {
		return mova.Example{}, false
	}
	current.touched = now
	s.pages[key] = current

	return current.items[index], true
}

// Len reports how many conversations currently hold a page.
func (s *NavigationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.pages)
}

// Sweep removes pages idle for longer than the idle timeout and returns how
// many were removed.
func (s *NavigationStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, current := range s.pages {
		if now.Sub(current.touched) > s.idleTimeout {
			delete(s.pages, key)
			removed++
		}
	}

	return removed
}

// Run sweeps every interval until ctx is done.
func (s *NavigationStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
