package mova

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BackpressurePolicy decides what a full subscription queue does with the
// next event.
type BackpressurePolicy string

const (
	BackpressureDropNewest BackpressurePolicy = "drop_newest"
	BackpressureDropOldest BackpressurePolicy = "drop_oldest"
	// BackpressureBlock makes Publish wait for room, bounded by its context.
	BackpressureBlock BackpressurePolicy = "block"
)

// SubscriptionSpec tunes one subscription. Zero fields fall back to the bus
// defaults; an empty Backpressure means drop newest.
type SubscriptionSpec struct {
	Name           string
	Buffer         int
	Workers        int
	HandlerTimeout time.Duration
	Backpressure   BackpressurePolicy
	// Ordered keeps publish order within each conversation. Events of one
	// conversation always go to the same worker; other conversations run on
	// the remaining workers meanwhile.
	Ordered bool
}

// Validate lists every problem with the spec in one ErrInvalidSubscription.
func (s SubscriptionSpec) Validate() error {
	var problems []string
	if s.Buffer < 0 {
		problems = append(problems, fmt.Sprintf("buffer %d", s.Buffer))
	}
	if s.Workers < 0 {
		problems = append(problems, fmt.Sprintf("workers %d", s.Workers))
	}
	if s.HandlerTimeout < 0 {
		problems = append(problems, "handler timeout "+s.HandlerTimeout.String())
	}
	switch s.Backpressure {
	case "", BackpressureDropNewest, BackpressureDropOldest, BackpressureBlock:
	default:
		problems = append(problems, fmt.Sprintf("backpressure %q", s.Backpressure))
	}

	if len(problems) == 0 {
		return nil
	}

	return fmt.Errorf("%w %q: %s", ErrInvalidSubscription, s.Name, strings.Join(problems, "; "))
}

// Subscription is a live registration on the bus.
type Subscription interface {
	Name() string
	// Close stops delivery and waits for in-flight handlers, bounded by ctx.
	// Closing twice is a no-op.
	Close(ctx context.Context) error
}

// EventBus fans published events out to matching subscriptions.
type EventBus interface {
	EventSink
	Subscribe(ctx context.Context, interest InterestSet, spec SubscriptionSpec, handler EventHandler) (Subscription, error)
	Close(ctx context.Context) error
}
