package catalogue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mova-bot/internal/cache"
	"mova-bot/pkg/mova"
)

const (
	// KeyCategories is the cache key for the full category collection.
	KeyCategories = "categories"
	// KeyExamples is the cache key for the full example collection.
	KeyExamples = "examples"

	// DefaultTTL bounds how long a cached collection is served before re-fetching.
	DefaultTTL = 30 * time.Minute
	// DefaultFetchTimeout bounds one shared upstream fetch.
	DefaultFetchTimeout = 15 * time.Second
)

// Source is the upstream of record for the catalogue.
type Source interface {
	FetchCategories(ctx context.Context) ([]mova.Category, error)
	FetchExamples(ctx context.Context) ([]mova.Example, error)
}

// Repository reads collections cache-aside. Concurrent misses for one key
// share a single upstream fetch. The shared fetch is detached from its
// callers: it runs until it finishes, its own timeout fires, or every caller
// waiting on it has gone.
type Repository struct {
	store        *cache.Store
	source       Source
	ttl          time.Duration
	fetchTimeout time.Duration
	logger       *slog.Logger
	flight       singleflight.Group

	mu       sync.Mutex
	inflight map[string]*sharedFetch
	waiterID uint64
}

// sharedFetch is the context of one in-flight fetch and the callers still
// waiting for it.
type sharedFetch struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters map[uint64]context.Context
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) RepositoryOption {
	return func(repository *Repository) {
		if ttl > 0 {
			repository.ttl = ttl
		}
	}
}

// WithFetchTimeout overrides DefaultFetchTimeout.
func WithFetchTimeout(timeout time.Duration) RepositoryOption {
	return func(repository *Repository) {
		if timeout > 0 {
			repository.fetchTimeout = timeout
		}
	}
}

// WithRepositoryLogger sets the repository logger.
func WithRepositoryLogger(logger *slog.Logger) RepositoryOption {
	return func(repository *Repository) {
		if logger != nil {
			repository.logger = logger
		}
	}
}

// NewRepository creates a repository over store and source.
func NewRepository(store *cache.Store, source Source, options ...RepositoryOption) (*Repository, error) {
	if store == nil {
		return nil, fmt.Errorf("new repository: nil cache store")
	}
	if source == nil {
		return nil, fmt.Errorf("new repository: nil source")
	}

	repository := &Repository{
		store:        store,
		source:       source,
		ttl:          DefaultTTL,
		fetchTimeout: DefaultFetchTimeout,
		logger:       slog.Default(),
		inflight:     make(map[string]*sharedFetch),
	}
	for _, option := range options {
		option(repository)
	}
	repository.logger = repository.logger.With("component", "catalogue.repository")

	return repository, nil
}

// Categories returns every category, from cache when possible.
func (r *Repository) Categories(ctx context.Context) ([]mova.Category, error) {
	categories, err := readThrough(ctx, r, KeyCategories, r.source.FetchCategories)
	if err != nil {
		return nil, fmt.Errorf("get categories: %w", err)
	}

	return categories, nil
}

// Examples returns every example, from cache when possible.
func (r *Repository) Examples(ctx context.Context) ([]mova.Example, error) {
	examples, err := readThrough(ctx, r, KeyExamples, r.source.FetchExamples)
	if err != nil {
		return nil, fmt.Errorf("get examples: %w", err)
	}

	return examples, nil
}

// readThrough returns the cached collection under key, or fetches it, stores
// it for the repository TTL and returns it. A caller that gives up only stops
// waiting; the fetch goes on for the others. The write is skipped when no
// caller is left by the time the fetch returns.
func readThrough[T any](
	ctx context.Context,
	r *Repository,
	key string,
	fetch func(context.Context) ([]T, error),
) ([]T, error) {
	if cached, found := cache.Load[[]T](ctx, r.store, key); found {
		return cached, nil
	}

	shared, waiter := r.join(ctx, key)
	defer r.leave(key, shared, waiter)

	resultCh := r.flight.DoChan(key, func() (any, error) {
		fresh, err := fetch(shared.ctx)
		wanted := r.finish(key, shared)
		if err != nil {
			return nil, err
		}
		if wanted && shared.ctx.Err() == nil {
			cache.Save(shared.ctx, r.store, key, fresh, r.ttl)
		}

		return fresh, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultCh:
		if result.Err != nil {
			return nil, result.Err
		}
		if result.Shared {
			r.logger.DebugContext(ctx, "shared upstream fetch", "key", key)
		}
		fresh := result.Val.([]T)
		collection := make([]T, len(fresh))
		copy(collection, fresh)

		return collection, nil
	}
}

// join registers ctx as a waiter on the fetch for key, starting a new fetch
// context when none is in flight.
func (r *Repository) join(ctx context.Context, key string) (*sharedFetch, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	shared, found := r.inflight[key]
	if !found {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		shared = &sharedFetch{ctx: fetchCtx, cancel: cancel, waiters: make(map[uint64]context.Context)}
		r.inflight[key] = shared
	}
	r.waiterID++
	shared.waiters[r.waiterID] = ctx

	return shared, r.waiterID
}

// leave drops a waiter. The last one out cancels the fetch.
func (r *Repository) leave(key string, shared *sharedFetch, waiter uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(shared.waiters, waiter)
	if len(shared.waiters) > 0 {
		return
	}
	shared.cancel()
	if r.inflight[key] == shared {
		delete(r.inflight, key)
	}
}

// finish retires shared so later misses start a fresh fetch, and reports
// whether any waiter still wants the result.
func (r *Repository) finish(key string, shared *sharedFetch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inflight[key] == shared {
		delete(r.inflight, key)
	}
	for _, waiter := range shared.waiters {
		if waiter.Err() == nil {
			return true
		}
	}

	return false
}
