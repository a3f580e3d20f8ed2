package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"mova-bot/pkg/mova"
)

// moduleRecord is the kernel's bookkeeping for one registered module.
type moduleRecord struct {
	name         string
	module       mova.Module
	spec         mova.ModuleSpec
	capabilities []mova.Capability

	mu   sync.Mutex
	subs []mova.Subscription
}

func (m *moduleRecord) track(subscription mova.Subscription) {
	m.mu.Lock()
	m.subs = append(m.subs, subscription)
	m.mu.Unlock()
}

// closeSubscriptions closes and forgets every tracked subscription.
func (m *moduleRecord) closeSubscriptions(ctx context.Context) error {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()

	errs := make([]error, 0, len(subs))
	for _, subscription := range subs {
		if err := subscription.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close subscription %s: %w", subscription.Name(), err))
		}
	}

	return errors.Join(errs...)
}

// moduleRuntime is the mova.ModuleRuntime handed to one module. Subscriptions
// made through it must be covered by the module's declared capabilities.
type moduleRuntime struct {
	record   *moduleRecord
	services mova.ServiceRegistry
	bus      mova.EventBus
}

// Services implements mova.ModuleRuntime.
func (r *moduleRuntime) Services() mova.ServiceRegistry {
	return r.services
}

// Subscribe implements mova.ModuleRuntime.
func (r *moduleRuntime) Subscribe(
	ctx context.Context,
	interest mova.InterestSet,
	spec mova.SubscriptionSpec,
	handler mova.EventHandler,
) (mova.Subscription, error) {
	name := r.record.name
	if spec.Name == "" {
		spec.Name = name + "-subscription"
	}
	covered := slices.ContainsFunc(r.record.capabilities, func(capability mova.Capability) bool {
		return capability.Interest.Allows(interest)
	})
	if !covered {
		return nil, fmt.Errorf("module %s subscribe %s: %w: interest not covered by declared capabilities",
			name, spec.Name, mova.ErrInvalidSubscription)
	}

	subscription, err := r.bus.Subscribe(ctx, interest, spec, handler)
	if err != nil {
		return nil, fmt.Errorf("module %s subscribe %s: %w", name, spec.Name, err)
	}
	r.record.track(subscription)

	return subscription, nil
}
