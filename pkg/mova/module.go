package mova

import "context"

type EventHandler func(ctx context.Context, event *Event) error

// EventSink is where drivers publish. The kernel's bus implements it.
type EventSink interface {
	Publish(ctx context.Context, event *Event) error
}

// ModuleRuntime is what a module sees of the kernel while it registers.
// Subscriptions made through it are closed when the module is dropped.
type ModuleRuntime interface {
	Services() ServiceRegistry
	Subscribe(ctx context.Context, interest InterestSet, spec SubscriptionSpec, handler EventHandler) (Subscription, error)
}

// ModuleHandler subscribes Handler to the events Capability.Interest
// selects.
type ModuleHandler struct {
	Capability   Capability
	Subscription SubscriptionSpec
	Handler      EventHandler
}

// ModuleSpec is a module's static declaration. The kernel subscribes the
// handlers once OnRegister succeeds and claims the commands for the module.
type ModuleSpec struct {
	Handlers []ModuleHandler
	Commands []CommandSpec
	// AdditionalCapabilities cover subscriptions the module makes itself
	// through ModuleRuntime.
	AdditionalCapabilities []Capability
}

// Capabilities lists handler capabilities first, then the additional ones.
func (s ModuleSpec) Capabilities() []Capability {
	capabilities := make([]Capability, len(s.Handlers), len(s.Handlers)+len(s.AdditionalCapabilities))
	for i, handler := range s.Handlers {
		capabilities[i] = handler.Capability
	}

	return append(capabilities, s.AdditionalCapabilities...)
}

// Module is a unit of bot behavior. Handlers may run concurrently; an
// Ordered subscription serializes them per conversation.
type Module interface {
	Name() string
	Spec() ModuleSpec
	OnStart(ctx context.Context) error
	// OnShutdown runs in reverse registration order after drivers stop.
	OnShutdown(ctx context.Context) error
}

// ModuleRegistrar is an optional Module hook for resolving services before
// any handler is subscribed.
type ModuleRegistrar interface {
	OnRegister(ctx context.Context, runtime ModuleRuntime) error
}

// Driver connects one platform account to the kernel.
type Driver interface {
	Name() string
	// Start publishes events until ctx ends, returning nil then. Any other
	// return is fatal for the kernel.
	Start(ctx context.Context, sink EventSink) error
	Shutdown(ctx context.Context) error
}
