package catalogue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mova-bot/pkg/mova"
)

func TestRepositoryCacheAside(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	source := &sourceStub{categories: fixtureCategories, examples: fixtureExamples}
	repository := newTestRepository(t, backend, source)
	ctx := context.Background()

	fresh, err := repository.Categories(ctx)
	if err != nil {
		t.Fatalf("Categories() fresh error = %v", err)
	}
	cached, err := repository.Categories(ctx)
	if err != nil {
		t.Fatalf("Categories() cached error = %v", err)
	}
	if diff := cmp.Diff(fresh, cached); diff != "" {
		t.Fatalf("cached categories differ from fresh (-fresh +cached):\n%s", diff)
	}
	if diff := cmp.Diff(fixtureCategories, cached); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
	if got := source.categoryFetches.Load(); got != 1 {
		t.Fatalf("category fetches = %d, want 1", got)
	}

	freshExamples, err := repository.Examples(ctx)
	if err != nil {
		t.Fatalf("Examples() fresh error = %v", err)
	}
	cachedExamples, err := repository.Examples(ctx)
	if err != nil {
		t.Fatalf("Examples() cached error = %v", err)
	}
	if diff := cmp.Diff(freshExamples, cachedExamples); diff != "" {
		t.Fatalf("cached examples differ from fresh (-fresh +cached):\n%s", diff)
	}
	if got := source.exampleFetches.Load(); got != 1 {
		t.Fatalf("example fetches = %d, want 1", got)
	}
	if !backend.has(KeyCategories) || !backend.has(KeyExamples) {
		t.Fatal("expected both collections cached")
	}
}

func TestRepositoryCacheReadErrorFallsThroughToFetch(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	backend.getErr = errors.New("dial tcp 127.0.0.1:6379: connection refused")
	source := &sourceStub{categories: fixtureCategories}
	repository := newTestRepository(t, backend, source)

	categories, err := repository.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories() error = %v, want nil", err)
	}
	if diff := cmp.Diff(fixtureCategories, categories); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
}

func TestRepositoryCorruptPayloadIsRefetched(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	if err := backend.inner.Set(context.Background(), KeyExamples, []byte(`{"schema":2}`), time.Hour); err != nil {
		t.Fatalf("seed corrupt payload: %v", err)
	}
	source := &sourceStub{examples: fixtureExamples}
	repository := newTestRepository(t, backend, source)

	examples, err := repository.Examples(context.Background())
	if err != nil {
		t.Fatalf("Examples() error = %v", err)
	}
	if diff := cmp.Diff(fixtureExamples, examples); diff != "" {
		t.Fatalf("examples mismatch (-want +got):\n%s", diff)
	}
	if _, err := repository.Examples(context.Background()); err != nil {
		t.Fatalf("Examples() second error = %v", err)
	}
	if got := source.exampleFetches.Load(); got != 1 {
		t.Fatalf("example fetches = %d, want 1 after overwrite", got)
	}
}

func TestRepositoryEmptyCollectionIsCached(t *testing.T) {
	t.Parallel()

	source := &sourceStub{examples: []mova.Example{}}
	repository := newTestRepository(t, newRecordingBackend(), source)

	for i := 0; i < 2; i++ {
		examples, err := repository.Examples(context.Background())
		if err != nil {
			t.Fatalf("Examples() error = %v", err)
		}
		if len(examples) != 0 {
			t.Fatalf("len(examples) = %d, want 0", len(examples))
		}
	}
	if got := source.exampleFetches.Load(); got != 1 {
		t.Fatalf("example fetches = %d, want 1", got)
	}
}

func TestRepositorySourceUnavailableWithEmptyCache(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	repository := newTestRepository(t, backend, &sourceStub{err: errUpstreamDown})

	_, err := repository.Categories(context.Background())
	if !errors.Is(err, mova.ErrSourceUnavailable) {
		t.Fatalf("Categories() error = %v, want ErrSourceUnavailable", err)
	}
	if _, sets := backend.counts(); sets != 0 {
		t.Fatalf("cache sets = %d, want 0", sets)
	}
}

func TestRepositorySkipsCacheWriteAfterCancellation(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := &sourceStub{
		categories: fixtureCategories,
		beforeReturn: func(context.Context) {
			cancel()
		},
	}
	repository := newTestRepository(t, backend, source)

	if _, err := repository.Categories(ctx); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Categories() error = %v, want nil or context.Canceled", err)
	}
	if backend.has(KeyCategories) {
		t.Fatal("categories cached after cancellation")
	}
	if _, sets := backend.counts(); sets != 0 {
		t.Fatalf("cache sets = %d, want 0", sets)
	}
}

func TestRepositoryCollapsesConcurrentMisses(t *testing.T) {
	t.Parallel()

	const callers = 8

	backend := newRecordingBackend()
	source := &sourceStub{examples: fixtureExamples}
	source.beforeReturn = func(context.Context) {
		eventuallyTrue(t, 2*time.Second, func() bool {
			gets, _ := backend.counts()
			return gets >= callers
		})
		time.Sleep(50 * time.Millisecond)
	}
	repository := newTestRepository(t, backend, source)

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			examples, err := repository.Examples(context.Background())
			if err == nil && len(examples) != len(fixtureExamples) {
				err = errors.New("short example list")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Examples() error = %v", err)
		}
	}
	if got := source.exampleFetches.Load(); got != 1 {
		t.Fatalf("example fetches = %d, want 1", got)
	}
}

func TestRepositoryCallerCancellationDoesNotFailOtherWaiters(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	source := &sourceStub{examples: fixtureExamples}
	source.beforeReturn = func(ctx context.Context) {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
	}
	repository := newTestRepository(t, backend, source)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	firstErr := make(chan error, 1)
	go func() {
		_, err := repository.Examples(firstCtx)
		firstErr <- err
	}()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}

	type examplesResult struct {
		examples []mova.Example
		err      error
	}
	second := make(chan examplesResult, 1)
	go func() {
		examples, err := repository.Examples(context.Background())
		second <- examplesResult{examples: examples, err: err}
	}()
	eventuallyTrue(t, 2*time.Second, func() bool {
		gets, _ := backend.counts()
		return gets >= 2
	})
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled caller error = %v, want context.Canceled", err)
	}
	close(release)

	select {
	case got := <-second:
		if got.err != nil {
			t.Fatalf("live caller error = %v, want nil", got.err)
		}
		if diff := cmp.Diff(fixtureExamples, got.examples); diff != "" {
			t.Fatalf("examples mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live caller never got a result")
	}
	if !backend.has(KeyExamples) {
		t.Fatal("examples fetched for a live caller were not cached")
	}
}

func TestRepositoryCancelsFetchOnceEveryCallerLeaves(t *testing.T) {
	t.Parallel()

	backend := newRecordingBackend()
	started := make(chan struct{}, 1)
	abandoned := make(chan struct{})
	source := &sourceStub{categories: fixtureCategories}
	source.beforeReturn = func(ctx context.Context) {
		started <- struct{}{}
		select {
		case <-ctx.Done():
			close(abandoned)
		case <-time.After(5 * time.Second):
		}
	}
	repository := newTestRepository(t, backend, source, WithFetchTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := repository.Categories(ctx)
		result <- err
	}()
	<-started
	cancel()

	if err := <-result; !errors.Is(err, context.Canceled) {
		t.Fatalf("Categories() error = %v, want context.Canceled", err)
	}
	select {
	case <-abandoned:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch kept running with no caller left")
	}
	time.Sleep(20 * time.Millisecond)
	if _, sets := backend.counts(); sets != 0 {
		t.Fatalf("cache sets = %d, want 0", sets)
	}
}

func TestNewRepositoryValidatesArguments(t *testing.T) {
	t.Parallel()

	if _, err := NewRepository(nil, &sourceStub{}); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func eventuallyTrue(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Error("condition not met before timeout")
}
