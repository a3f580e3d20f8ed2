package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mova-bot/pkg/mova"
)

// ErrMiss is returned by a Backend when a key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Backend is a string-keyed byte store with per-key expiry.
type Backend interface {
	// Get returns the payload stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores payload under key for ttl. Last writer wins.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// Store applies the never-fail read and best-effort write policy to a Backend.
type Store struct {
	backend Backend
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for degraded-path reports.
func WithLogger(logger *slog.Logger) Option {
	return func(store *Store) {
		if logger != nil {
			store.logger = logger
		}
	}
}

// NewStore wraps backend.
func NewStore(backend Backend, options ...Option) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("new cache store: nil backend")
	}

	store := &Store{
		backend: backend,
		logger:  slog.Default(),
	}
	for _, option := range options {
		option(store)
	}
	store.logger = store.logger.With("component", "cache")

	return store, nil
}

// Get returns the payload under key. Any backend fault is logged and reported
// as a miss so callers fall through to the source of truth.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	payload, err := s.backend.Get(ctx, key)
	switch {
	case err == nil:
		return payload, true
	case errors.Is(err, ErrMiss):
		return nil, false
	default:
		s.logger.WarnContext(ctx, "cache read failed, treating as miss",
			"key", key,
			"kind", mova.ContentErrorCacheUnavailable,
			"error", err,
		)
		return nil, false
	}
}

// Set stores payload under key. Failures are logged and swallowed. Nothing is
// written when ctx is already done.
func (s *Store) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if err := ctx.Err(); err != nil {
		s.logger.DebugContext(ctx, "cache write skipped", "key", key, "error", err)
		return
	}
	if err := s.backend.Set(ctx, key, payload, ttl); err != nil {
		s.logger.WarnContext(ctx, "cache write failed",
			"key", key,
			"kind", mova.ContentErrorCacheUnavailable,
			"error", err,
		)
	}
}

// Load reads key and decodes it as JSON into T. A payload that does not decode
// is logged and reported as a miss.
func Load[T any](ctx context.Context, store *Store, key string) (T, bool) {
	var value T

	payload, found := store.Get(ctx, key)
	if !found {
		return value, false
	}
	if err := json.Unmarshal(payload, &value); err != nil {
		store.logger.WarnContext(ctx, "cached payload undecodable, treating as miss",
			"key", key,
			"kind", mova.ContentErrorDeserialization,
			"error", err,
		)
		var zero T
		return zero, false
	}

	return value, true
}

// Save encodes value as JSON and stores it under key for ttl.
func Save[T any](ctx context.Context, store *Store, key string, value T, ttl time.Duration) {
	payload, err := json.Marshal(value)
	if err != nil {
		store.logger.WarnContext(ctx, "cache encode failed", "key", key, "error", err)
		return
	}
	store.Set(ctx, key, payload, ttl)
}
