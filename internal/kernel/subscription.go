package kernel

import (
	"context"
	"fmt"
	"hash/fnv"
	"slices"
	"sync"
	"sync/atomic"

	"mova-bot/pkg/mova"
)

// subscription is one consumer on the bus. An unordered subscription has one
// queue shared by all workers. An ordered one gives every worker its own
// queue and routes each conversation to a fixed queue. Workers exit when ctx
// is canceled; the queue channels are never closed.
type subscription struct {
	id       int64
	interest mova.InterestSet
	spec     mova.SubscriptionSpec
	handler  mova.EventHandler
	bus      *EventBus

	queues   []chan *mova.Event
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  atomic.Bool
	finished chan struct{}

	delivered atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

func newSubscription(
	id int64,
	interest mova.InterestSet,
	spec mova.SubscriptionSpec,
	handler mova.EventHandler,
	bus *EventBus,
) *subscription {
	interest.Kinds = slices.Clone(interest.Kinds)
	interest.CommandNames = slices.Clone(interest.CommandNames)
	interest.CallbackPrefixes = slices.Clone(interest.CallbackPrefixes)
	interest.Sources = slices.Clone(interest.Sources)

	shards := 1
	if spec.Ordered {
		shards = spec.Workers
	}
	queues := make([]chan *mova.Event, shards)
	for i := range queues {
		queues[i] = make(chan *mova.Event, spec.Buffer)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		id:       id,
		interest: interest,
		spec:     spec,
		handler:  handler,
		bus:      bus,
		queues:   queues,
		ctx:      ctx,
		cancel:   cancel,
		finished: make(chan struct{}),
	}

	var workers sync.WaitGroup
	for worker := range spec.Workers {
		workers.Go(func() { sub.work(worker) })
	}
	go func() {
		workers.Wait()
		close(sub.finished)
	}()

	return sub
}

// Name implements mova.Subscription.
func (s *subscription) Name() string {
	return s.spec.Name
}

// Close implements mova.Subscription.
func (s *subscription) Close(ctx context.Context) error {
	return s.bus.remove(ctx, s.id)
}

func (s *subscription) stats() SubscriptionStats {
	var queued, capacity int
	for _, queue := range s.queues {
		queued += len(queue)
		capacity += cap(queue)
	}

	return SubscriptionStats{
		Name:      s.spec.Name,
		Queued:    queued,
		Capacity:  capacity,
		Delivered: s.delivered.Load(),
		Dropped:   s.dropped.Load(),
		Failed:    s.failed.Load(),
	}
}

func (s *subscription) enqueue(ctx context.Context, event *mova.Event) error {
	if s.stopped.Load() {
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, mova.ErrSubscriptionClosed)
	}

	queue := s.queueFor(event)
	if offer(queue, event) {
		return nil
	}

	switch s.spec.Backpressure {
	case mova.BackpressureBlock:
		select {
		case queue <- event:
			return nil
		case <-s.ctx.Done():
			return fmt.Errorf("enqueue %s: %w", s.spec.Name, mova.ErrSubscriptionClosed)
		case <-ctx.Done():
			return fmt.Errorf("enqueue %s: %w", s.spec.Name, ctx.Err())
		}
	case mova.BackpressureDropOldest:
		select {
		case <-queue:
			s.dropped.Add(1)
		default:
		}
		if offer(queue, event) {
			return nil
		}
	}

	// Drop-newest, or drop-oldest losing the race for the freed slot.
	s.dropped.Add(1)

	return fmt.Errorf("enqueue %s: %w", s.spec.Name, mova.ErrEventDropped)
}

// queueFor picks the queue for event. Ordered subscriptions hash the source
// and conversation so one conversation always lands on the same worker.
func (s *subscription) queueFor(event *mova.Event) chan *mova.Event {
	if len(s.queues) == 1 {
		return s.queues[0]
	}

	hash := fnv.New32a()
	hash.Write([]byte(event.Source.ID))
	hash.Write([]byte{0})
	hash.Write([]byte(event.Conversation.ID))

	return s.queues[hash.Sum32()%uint32(len(s.queues))]
}

func offer(queue chan *mova.Event, event *mova.Event) bool {
	select {
	case queue <- event:
		return true
	default:
		return false
	}
}

func (s *subscription) work(worker int) {
	scope := fmt.Sprintf("subscription %s worker %d", s.spec.Name, worker)
	queue := s.queues[worker%len(s.queues)]
	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-queue:
			if err := s.deliver(scope, event); err != nil {
				s.failed.Add(1)
				s.bus.onError(s.ctx, s.spec.Name, err)
				continue
			}
			s.delivered.Add(1)
		}
	}
}

func (s *subscription) deliver(scope string, event *mova.Event) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.spec.HandlerTimeout)
	defer cancel()

	err := runSafely(scope, func() error { return s.handler(ctx, event) })
	if err != nil {
		return fmt.Errorf("handle event %s: %w", event.ID, err)
	}

	return nil
}

// stop cancels the workers and waits for the in-flight handler calls to
// return, or for ctx to expire.
func (s *subscription) stop(ctx context.Context) error {
	if s.stopped.CompareAndSwap(false, true) {
		s.cancel()
	}

	select {
	case <-s.finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop subscription %s: %w", s.spec.Name, ctx.Err())
	}
}
