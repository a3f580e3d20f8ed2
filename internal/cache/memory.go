package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryBackend is an in-process Backend for single-instance deployments.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get implements Backend.
func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	entry, exists := b.entries[key]
	b.mu.RUnlock()
	if !exists || !b.now().Before(entry.expiresAt) {
		return nil, ErrMiss
	}

	return append([]byte(nil), entry.payload...), nil
}

// Set implements Backend.
func (b *MemoryBackend) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = memoryEntry{
		payload:   append([]byte(nil), payload...),
		expiresAt: b.now().Add(ttl),
	}

	return nil
}

var _ Backend = (*MemoryBackend)(nil)
