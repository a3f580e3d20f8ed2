package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"mova-bot/pkg/mova"
)

// BusDefaults fills the SubscriptionSpec fields a subscriber leaves at zero.
type BusDefaults struct {
	Buffer         int
	Workers        int
	HandlerTimeout time.Duration
}

// AsyncErrorFunc receives failures that happen away from the caller: dropped
// events and handler errors. scope names the subscription.
type AsyncErrorFunc func(ctx context.Context, scope string, err error)

// EventBus fans events out to subscriptions. Each subscription has its own
// bounded queue and workers, so one slow module cannot stall another.
type EventBus struct {
	defaults BusDefaults
	onError  AsyncErrorFunc

	mu     sync.RWMutex
	seq    int64
	closed bool
	subs   map[int64]*subscription
}

// SubscriptionStats is a point-in-time view of one subscription queue.
type SubscriptionStats struct {
	Name      string `json:"name"`
	Queued    int    `json:"queued"`
	Capacity  int    `json:"capacity"`
	Delivered int64  `json:"delivered"`
	Dropped   int64  `json:"dropped"`
	Failed    int64  `json:"failed"`
}

// NewEventBus creates an empty bus. onError may be nil.
func NewEventBus(defaults BusDefaults, onError AsyncErrorFunc) *EventBus {
	defaults.Buffer = max(defaults.Buffer, 1)
	defaults.Workers = max(defaults.Workers, 1)
	if defaults.HandlerTimeout <= 0 {
		defaults.HandlerTimeout = defaultHandlerTimeout
	}
	if onError == nil {
		onError = func(context.Context, string, error) {}
	}

	return &EventBus{
		defaults: defaults,
		onError:  onError,
		subs:     make(map[int64]*subscription),
	}
}

// Publish enqueues event on every subscription whose interest matches.
// Drops and closed subscriptions are reported through the async error hook;
// only blocking enqueues that fail on ctx surface as an error here.
func (b *EventBus) Publish(ctx context.Context, event *mova.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("publish event %s: bus closed", event.Kind)
	}
	targets := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.interest.Matches(event) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	var failures []error
	for _, sub := range targets {
		err := sub.enqueue(ctx, event)
		switch {
		case err == nil:
		case errors.Is(err, mova.ErrEventDropped), errors.Is(err, mova.ErrSubscriptionClosed):
			b.onError(ctx, sub.spec.Name, err)
		default:
			failures = append(failures, err)
		}
	}
	if err := errors.Join(failures...); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Kind, err)
	}

	return nil
}

// Subscribe starts a consumer for events matching interest.
func (b *EventBus) Subscribe(
	ctx context.Context,
	interest mova.InterestSet,
	spec mova.SubscriptionSpec,
	handler mova.EventHandler,
) (mova.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", spec.Name, err)
	}
	if handler == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", spec.Name)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", spec.Name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("subscribe %s: bus closed", spec.Name)
	}

	b.seq++
	id := b.seq
	sub := newSubscription(id, interest, b.withDefaults(spec, id), handler, b)
	b.subs[id] = sub

	return sub, nil
}

// Stats reports every live subscription ordered by name.
func (b *EventBus) Stats() []SubscriptionStats {
	b.mu.RLock()
	stats := make([]SubscriptionStats, 0, len(b.subs))
	for _, sub := range b.subs {
		stats = append(stats, sub.stats())
	}
	b.mu.RUnlock()

	slices.SortFunc(stats, func(a, b SubscriptionStats) int { return strings.Compare(a.Name, b.Name) })

	return stats
}

// Close stops every subscription and waits for in-flight handlers until ctx
// expires. Later Publish and Subscribe calls fail.
func (b *EventBus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[int64]*subscription)
	b.mu.Unlock()

	var failures []error
	for _, sub := range subs {
		if err := sub.stop(ctx); err != nil {
			failures = append(failures, err)
		}
	}
	if err := errors.Join(failures...); err != nil {
		return fmt.Errorf("close event bus: %w", err)
	}

	return nil
}

func (b *EventBus) withDefaults(spec mova.SubscriptionSpec, id int64) mova.SubscriptionSpec {
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("subscription-%d", id)
	}
	if spec.Buffer == 0 {
		spec.Buffer = b.defaults.Buffer
	}
	if spec.Workers == 0 {
		spec.Workers = b.defaults.Workers
	}
	if spec.HandlerTimeout == 0 {
		spec.HandlerTimeout = b.defaults.HandlerTimeout
	}
	if spec.Backpressure == "" {
		spec.Backpressure = mova.BackpressureDropNewest
	}

	return spec
}

func (b *EventBus) remove(ctx context.Context, id int64) error {
	b.mu.Lock()
	sub, found := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()

	if !found {
		return nil
	}

	return sub.stop(ctx)
}
