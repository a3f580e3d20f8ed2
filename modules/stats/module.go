// Package stats counts one click per recognized command.
package stats

import (
	"context"
	"fmt"
	"log/slog"

	"mova-bot/pkg/mova"
)

// Counter increments a named click counter, reporting whether it exists.
type Counter interface {
	Increment(ctx context.Context, name string) (bool, error)
}

// DefaultCommands are the commands whose clicks are counted.
var DefaultCommands = []string{"start", "categories", "dailyrule"}

// Option configures the module.
type Option func(*Module)

// WithCommands replaces the counted command names.
func WithCommands(names ...string) Option {
	return func(module *Module) {
		if len(names) > 0 {
			module.commands = append([]string(nil), names...)
		}
	}
}

// WithLogger sets the module logger.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// Module records command clicks into a Counter.
type Module struct {
	counter  Counter
	commands []string
	logger   *slog.Logger
}

// New creates a click counting module.
func New(counter Counter, options ...Option) (*Module, error) {
	if counter == nil {
		return nil, fmt.Errorf("new stats module: nil counter")
	}

	module := &Module{
		counter:  counter,
		commands: append([]string(nil), DefaultCommands...),
		logger:   slog.Default(),
	}
	for _, option := range options {
		option(module)
	}

	return module, nil
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "stats"
}

// Spec subscribes to the counted commands without registering any.
func (m *Module) Spec() mova.ModuleSpec {
	return mova.ModuleSpec{
		Handlers: []mova.ModuleHandler{
			{
				Capability: mova.Capability{
					Name:        "stats-click-counter",
					Description: "counts command clicks",
					Interest: mova.InterestSet{
						Kinds:        []mova.EventKind{mova.EventKindCommandReceived},
						CommandNames: append([]string(nil), m.commands...),
					},
				},
				Subscription: mova.SubscriptionSpec{
					Name:         "stats-commands",
					Backpressure: mova.BackpressureDropOldest,
				},
				Handler: m.handleCommand,
			},
		},
	}
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func (m *Module) handleCommand(ctx context.Context, event *mova.Event) error {
	if event == nil || event.Command == nil {
		return nil
	}

	found, err := m.counter.Increment(ctx, event.Command.Name)
	if err != nil {
		return fmt.Errorf("stats count /%s: %w", event.Command.Name, err)
	}
	if !found {
		m.logger.DebugContext(ctx, "no click counter for command",
			"module", m.Name(),
			"command", event.Command.Name,
		)
	}

	return nil
}

var _ mova.Module = (*Module)(nil)
