// Package welcome greets users on /start and lists commands on /help.
package welcome

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"mova-bot/pkg/mova"
)

const (
	startCommandName = "start"
	helpCommandName  = "help"

	greeting = "Hello! I am a bot that will help you learn Ukrainian.\nChoose a category to get started."
)

// Module replies to /start and /help with the registered command list.
type Module struct {
	dispatcher     mova.SinkDispatcher
	commandCatalog mova.CommandCatalog
}

// New creates a welcome module.
func New() *Module {
	return &Module{}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "welcome"
}

// Spec declares interest in /start and /help command events.
func (m *Module) Spec() mova.ModuleSpec {
	return mova.ModuleSpec{
		Handlers: []mova.ModuleHandler{
			{
				Capability: mova.Capability{
					Name:        "welcome-command-handler",
					Description: "greets users and lists commands",
					Interest: mova.InterestSet{
						Kinds:        []mova.EventKind{mova.EventKindCommandReceived},
						CommandNames: []string{startCommandName, helpCommandName},
					},
					RequiredServices: []string{
						mova.ServiceSinkDispatcher,
						mova.ServiceCommandCatalog,
					},
				},
				Subscription: mova.SubscriptionSpec{Name: "welcome-commands"},
				Handler:      m.handleCommand,
			},
		},
		Commands: []mova.CommandSpec{
			{Name: startCommandName, Description: "start using the bot"},
			{Name: helpCommandName, Description: "show all available commands"},
		},
	}
}

// OnRegister resolves dependencies required by this module.
func (m *Module) OnRegister(_ context.Context, runtime mova.ModuleRuntime) error {
	dispatcher, err := mova.ResolveAs[mova.SinkDispatcher](runtime.Services(), mova.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("welcome resolve outbound dispatcher: %w", err)
	}
	commandCatalog, err := mova.ResolveAs[mova.CommandCatalog](runtime.Services(), mova.ServiceCommandCatalog)
	if err != nil {
		return fmt.Errorf("welcome resolve command catalog: %w", err)
	}

	m.dispatcher = dispatcher
	m.commandCatalog = commandCatalog

	return nil
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
	if event == nil || event.Command == nil || event.Kind != mova.EventKindCommandReceived {
		return nil
	}
	name := event.Command.Name
	if name != startCommandName && name != helpCommandName {
		return nil
	}
	if m.dispatcher == nil || m.commandCatalog == nil {
		return fmt.Errorf("welcome handle /%s: module not registered", name)
	}

	commands, err := m.commandCatalog.ListCommands(ctx)
	if err != nil {
		return fmt.Errorf("welcome list commands: %w", err)
	}

	var body string
	if name == startCommandName {
		body = greeting + "\n" + renderCommands(commands, startCommandName, helpCommandName)
	} else {
		body = "Available commands:\n" + renderCommands(commands)
	}

	target, err := mova.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("welcome derive outbound target: %w", err)
	}
	request := mova.SendMessageRequest{Target: target, Text: strings.TrimRight(body, "\n")}
	if event.Message != nil {
		request.ReplyToMessageID = event.Message.ID
	}
	if _, err := m.dispatcher.SendMessage(ctx, request); err != nil {
		return fmt.Errorf("welcome send /%s reply: %w", name, err)
	}

	return nil
}

// renderCommands lists commands as "/name - description" lines sorted by
// name, leaving out the excluded names.
func renderCommands(commands []mova.RegisteredCommand, exclude ...string) string {
	sorted := append([]mova.RegisteredCommand(nil), commands...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Command.Name < sorted[j].Command.Name
	})

	lines := make([]string, 0, len(sorted))
	for _, command := range sorted {
		name := mova.NormalizeCommandName(command.Command.Name)
		if containsName(exclude, name) {
			continue
		}
		line := mova.CommandPrefix + name
		if description := strings.TrimSpace(command.Command.Description); description != "" {
			line += " - " + description
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "(none)"
	}

	return strings.Join(lines, "\n")
}

func containsName(names []string, target string) bool {
	for _, name := range names {
		if name == target {
			return true
		}
	}

	return false
}

var (
	_ mova.Module          = (*Module)(nil)
	_ mova.ModuleRegistrar = (*Module)(nil)
)
