package catalogue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mova-bot/internal/cache"
	"mova-bot/pkg/mova"
)

var (
	fixtureCategories = []mova.Category{{ID: 1, Title: "Grammar"}, {ID: 2, Title: "Vocabulary"}}
	fixtureExamples   = []mova.Example{
		{ID: 1, Title: "Rule A", Content: "<p>x</p>", Image: "img/a.png", CategoryID: 1},
		{ID: 2, Title: "Word B", Content: "<p>y</p>", Image: "img/b.png", CategoryID: 2},
	}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sourceStub serves fixed collections and counts fetches. Like the HTTP
// client, it fails as unavailable once its context is done.
type sourceStub struct {
	categories []mova.Category
	examples   []mova.Example
	err        error

	categoryFetches atomic.Int32
	exampleFetches  atomic.Int32
	beforeReturn    func(ctx context.Context)
}

func (s *sourceStub) FetchCategories(ctx context.Context) ([]mova.Category, error) {
	s.categoryFetches.Add(1)
	if s.beforeReturn != nil {
		s.beforeReturn(ctx)
	}
	if s.err != nil {
		return nil, s.err
	}
	if err := ctx.Err(); err != nil {
		return nil, &mova.ContentError{Kind: mova.ContentErrorSourceUnavailable, Op: "fetch", Err: err}
	}

	return append([]mova.Category{}, s.categories...), nil
}

func (s *sourceStub) FetchExamples(ctx context.Context) ([]mova.Example, error) {
	s.exampleFetches.Add(1)
	if s.beforeReturn != nil {
		s.beforeReturn(ctx)
	}
	if s.err != nil {
		return nil, s.err
	}
	if err := ctx.Err(); err != nil {
		return nil, &mova.ContentError{Kind: mova.ContentErrorSourceUnavailable, Op: "fetch", Err: err}
	}

	return append([]mova.Example{}, s.examples...), nil
}

// recordingBackend wraps a MemoryBackend with fault injection and counters.
type recordingBackend struct {
	inner *cache.MemoryBackend

	mu     sync.Mutex
	getErr error
	gets   int
	sets   int
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{inner: cache.NewMemoryBackend()}
}

func (b *recordingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	b.gets++
	getErr := b.getErr
	b.mu.Unlock()
	if getErr != nil {
		return nil, getErr
	}

	return b.inner.Get(ctx, key)
}

func (b *recordingBackend) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	b.mu.Lock()
	b.sets++
	b.mu.Unlock()

	return b.inner.Set(ctx, key, payload, ttl)
}

func (b *recordingBackend) counts() (gets int, sets int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.gets, b.sets
}

func (b *recordingBackend) has(key string) bool {
	_, err := b.inner.Get(context.Background(), key)
	return err == nil
}

func newTestRepository(t *testing.T, backend cache.Backend, source Source, options ...RepositoryOption) *Repository {
	t.Helper()

	store, err := cache.NewStore(backend, cache.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	options = append([]RepositoryOption{WithRepositoryLogger(discardLogger())}, options...)
	repository, err := NewRepository(store, source, options...)
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}

	return repository
}

var errUpstreamDown = &mova.ContentError{
	Kind: mova.ContentErrorSourceUnavailable,
	Op:   "fetch",
	Err:  errors.New("unexpected status 502"),
}
