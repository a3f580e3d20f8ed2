package kernel

import (
	"context"
	"fmt"
	"sort"

	"mova-bot/pkg/mova"
)

type commandRegistration struct {
	moduleName string
	spec       mova.CommandSpec
}

// registerModuleCommands registers module-owned commands atomically: either
// every command is added or none is.
func (k *Kernel) registerModuleCommands(moduleName string, commands []mova.CommandSpec) error {
	if len(commands) == 0 {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	for _, command := range commands {
		name := mova.NormalizeCommandName(command.Name)
		if existing, exists := k.commands[name]; exists {
			return fmt.Errorf(
				"register command /%s for module %s: already registered by module %s",
				name,
				moduleName,
				existing.moduleName,
			)
		}
	}
	for _, command := range commands {
		name := mova.NormalizeCommandName(command.Name)
		k.commands[name] = commandRegistration{
			moduleName: moduleName,
			spec:       mova.CommandSpec{Name: name, Description: command.Description},
		}
	}

	return nil
}

func (k *Kernel) unregisterModuleCommands(moduleName string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for name, registration := range k.commands {
		if registration.moduleName == moduleName {
			delete(k.commands, name)
		}
	}
}

func (k *Kernel) commandRegistered(name string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()

	_, exists := k.commands[mova.NormalizeCommandName(name)]

	return exists
}

// newDriverEventSink wraps the bus so registered commands are derived from messages.
func (k *Kernel) newDriverEventSink() mova.EventSink {
	return &commandDerivingSink{
		base:       k.bus,
		registered: k.commandRegistered,
	}
}

// commandDerivingSink publishes source events and derives command events.
type commandDerivingSink struct {
	base       mova.EventSink
	registered func(name string) bool
}

// Publish forwards one source event and, when its text invokes a registered
// command, publishes one derived command.received event after it.
func (s *commandDerivingSink) Publish(ctx context.Context, event *mova.Event) error {
	if event == nil {
		return fmt.Errorf("publish command deriving sink: nil event")
	}
	if err := s.base.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish source event %s: %w", event.Kind, err)
	}
	if event.Kind != mova.EventKindMessageCreated || event.Message == nil {
		return nil
	}

	candidate, matched := mova.ParseCommandCandidate(event.Message.Text)
	if !matched || !s.registered(candidate.Name) {
		return nil
	}
	invocation, err := candidate.Bind(event)
	if err != nil {
		return fmt.Errorf("derive command %s: %w", candidate.Name, err)
	}

	if err := s.base.Publish(ctx, derivedCommandEvent(event, invocation)); err != nil {
		return fmt.Errorf("publish derived command %s: %w", invocation.Name, err)
	}

	return nil
}

func derivedCommandEvent(source *mova.Event, invocation mova.CommandInvocation) *mova.Event {
	message := *source.Message
	derived := &mova.Event{
		ID:           source.ID + "#command",
		Kind:         mova.EventKindCommandReceived,
		OccurredAt:   source.OccurredAt,
		Source:       source.Source,
		Conversation: source.Conversation,
		Actor:        source.Actor,
		Message:      &message,
		Command:      &invocation,
	}
	if len(source.Metadata) > 0 {
		derived.Metadata = make(map[string]string, len(source.Metadata))
		for key, value := range source.Metadata {
			derived.Metadata[key] = value
		}
	}

	return derived
}

// commandCatalog exposes kernel command registrations through the service registry.
type commandCatalog struct {
	kernel *Kernel
}

// ListCommands returns all registered commands sorted by name.
func (c *commandCatalog) ListCommands(ctx context.Context) ([]mova.RegisteredCommand, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}

	c.kernel.mu.RLock()
	commands := make([]mova.RegisteredCommand, 0, len(c.kernel.commands))
	for _, registration := range c.kernel.commands {
		commands = append(commands, mova.RegisteredCommand{
			ModuleName: registration.moduleName,
			Command:    registration.spec,
		})
	}
	c.kernel.mu.RUnlock()

	sort.Slice(commands, func(i, j int) bool {
		return commands[i].Command.Name < commands[j].Command.Name
	})

	return commands, nil
}

var _ mova.CommandCatalog = (*commandCatalog)(nil)
