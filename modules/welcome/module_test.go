package welcome

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"mova-bot/pkg/mova"
)

func TestModuleHandleCommand(t *testing.T) {
	t.Parallel()

	registered := []mova.RegisteredCommand{
		{ModuleName: "catalogue", Command: mova.CommandSpec{Name: "dailyrule", Description: "show the rule of the day"}},
		{ModuleName: "welcome", Command: mova.CommandSpec{Name: "help", Description: "show all available commands"}},
		{ModuleName: "catalogue", Command: mova.CommandSpec{Name: "categories", Description: "browse rule categories"}},
		{ModuleName: "welcome", Command: mova.CommandSpec{Name: "start", Description: "start using the bot"}},
	}

	tests := []struct {
		name       string
		event      *mova.Event
		commands   []mova.RegisteredCommand
		catalogErr error
		sendErr    error
		wantErr    bool
		wantSent   bool
		wantText   string
	}{
		{
			name:     "start greets and lists browsing commands",
			event:    newCommandEvent("start"),
			commands: registered,
			wantSent: true,
			wantText: "Hello! I am a bot that will help you learn Ukrainian.\n" +
				"Choose a category to get started.\n" +
				"/categories - browse rule categories\n" +
				"/dailyrule - show the rule of the day",
		},
		{
			name:     "help lists every command",
			event:    newCommandEvent("help"),
			commands: registered,
			wantSent: true,
			wantText: "Available commands:\n" +
				"/categories - browse rule categories\n" +
				"/dailyrule - show the rule of the day\n" +
				"/help - show all available commands\n" +
				"/start - start using the bot",
		},
		{
			name:     "help with empty catalog",
			event:    newCommandEvent("help"),
			wantSent: true,
			wantText: "Available commands:\n(none)",
		},
		{
			name:  "other command ignored",
			event: newCommandEvent("categories"),
		},
		{
			name:  "missing command payload ignored",
			event: &mova.Event{Kind: mova.EventKindCommandReceived},
		},
		{
			name:       "catalog error",
			event:      newCommandEvent("help"),
			catalogErr: errors.New("catalog failure"),
			wantErr:    true,
		},
		{
			name:     "send error",
			event:    newCommandEvent("start"),
			commands: registered,
			sendErr:  errors.New("dispatcher failure"),
			wantErr:  true,
			wantSent: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			module := New()
			dispatcher := &captureDispatcher{sendErr: testCase.sendErr}
			module.dispatcher = dispatcher
			module.commandCatalog = &captureCommandCatalog{commands: testCase.commands, err: testCase.catalogErr}

			err := module.handleCommand(context.Background(), testCase.event)
			if testCase.wantErr != (err != nil) {
				t.Fatalf("error = %v, wantErr %v", err, testCase.wantErr)
			}

			sent := dispatcher.calls.Load() > 0
			if sent != testCase.wantSent {
				t.Fatalf("sent = %v, want %v", sent, testCase.wantSent)
			}
			if !sent || testCase.wantErr {
				return
			}
			if dispatcher.lastRequest.Text != testCase.wantText {
				t.Fatalf("text = %q, want %q", dispatcher.lastRequest.Text, testCase.wantText)
			}
			if dispatcher.lastRequest.ReplyToMessageID != "msg-1" {
				t.Fatalf("reply_to = %q, want msg-1", dispatcher.lastRequest.ReplyToMessageID)
			}
			if dispatcher.lastRequest.Target.Sink == nil || dispatcher.lastRequest.Target.Sink.ID != "tg-main" {
				t.Fatalf("target sink = %+v, want tg-main", dispatcher.lastRequest.Target.Sink)
			}
		})
	}
}

func TestModuleOnRegister(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		services         map[string]any
		wantErrSubstring string
	}{
		{
			name: "resolve dependencies succeeds",
			services: map[string]any{
				mova.ServiceSinkDispatcher: &captureDispatcher{},
				mova.ServiceCommandCatalog: &captureCommandCatalog{},
			},
		},
		{
			name: "missing outbound dispatcher fails",
			services: map[string]any{
				mova.ServiceCommandCatalog: &captureCommandCatalog{},
			},
			wantErrSubstring: "welcome resolve outbound dispatcher",
		},
		{
			name: "missing command catalog fails",
			services: map[string]any{
				mova.ServiceSinkDispatcher: &captureDispatcher{},
			},
			wantErrSubstring: "welcome resolve command catalog",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			module := New()
			err := module.OnRegister(context.Background(), moduleRuntimeStub{
				registry: serviceRegistryStub{values: testCase.services},
			})
			if testCase.wantErrSubstring == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), testCase.wantErrSubstring) {
				t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSubstring)
			}
		})
	}
}

func TestModuleSpecDeclaresCommands(t *testing.T) {
	t.Parallel()

	spec := New().Spec()
	if len(spec.Handlers) != 1 {
		t.Fatalf("handler count = %d, want 1", len(spec.Handlers))
	}
	interest := spec.Handlers[0].Capability.Interest
	if len(interest.CommandNames) != 2 {
		t.Fatalf("command names = %v, want start and help", interest.CommandNames)
	}
	if !interest.Matches(newCommandEvent("start")) {
		t.Fatal("interest does not match /start")
	}
	if interest.Matches(newCommandEvent("categories")) {
		t.Fatal("interest matches /categories")
	}
}

func newCommandEvent(name string) *mova.Event {
	return &mova.Event{
		ID:         "event-1",
		Kind:       mova.EventKindCommandReceived,
		OccurredAt: time.Unix(1, 0).UTC(),
		Source: mova.EventSource{
			Platform: mova.PlatformTelegram,
			ID:       "tg-main",
		},
		Conversation: mova.Conversation{
			ID:   "42",
			Type: mova.ConversationTypePrivate,
		},
		Message: &mova.Message{ID: "msg-1", Text: "/" + name},
		Command: &mova.CommandInvocation{
			Name:          name,
			SourceEventID: "source-event-1",
			RawInput:      "/" + name,
		},
	}
}

type captureDispatcher struct {
	calls       atomic.Int64
	sendErr     error
	lastRequest mova.SendMessageRequest
}

func (d *captureDispatcher) SendMessage(_ context.Context, request mova.SendMessageRequest) (*mova.OutboundMessage, error) {
	d.calls.Add(1)
	d.lastRequest = request
	if d.sendErr != nil {
		return nil, d.sendErr
	}

	return &mova.OutboundMessage{ID: "sent-1", Target: request.Target}, nil
}

func (*captureDispatcher) SendPhoto(context.Context, mova.SendPhotoRequest) (*mova.OutboundMessage, error) {
	return nil, mova.ErrOutboundUnsupported
}

func (*captureDispatcher) AnswerCallback(context.Context, mova.AnswerCallbackRequest) error {
	return nil
}

func (*captureDispatcher) ClearKeyboard(context.Context, mova.ClearKeyboardRequest) error {
	return nil
}

type captureCommandCatalog struct {
	commands []mova.RegisteredCommand
	err      error
}

func (c *captureCommandCatalog) ListCommands(context.Context) ([]mova.RegisteredCommand, error) {
	if c.err != nil {
		return nil, c.err
	}

	return append([]mova.RegisteredCommand(nil), c.commands...), nil
}

type moduleRuntimeStub struct {
	registry mova.ServiceRegistry
}

func (r moduleRuntimeStub) Services() mova.ServiceRegistry {
	return r.registry
}

func (moduleRuntimeStub) Subscribe(
	context.Context,
	mova.InterestSet,
	mova.SubscriptionSpec,
	mova.EventHandler,
) (mova.Subscription, error) {
	return nil, errors.New("not implemented")
}

type serviceRegistryStub struct {
	values map[string]any
}

func (serviceRegistryStub) Register(string, any) error {
	return errors.New("not implemented")
}

func (s serviceRegistryStub) Resolve(name string) (any, error) {
	value, ok := s.values[name]
	if !ok {
		return nil, mova.ErrServiceNotFound
	}

	return value, nil
}
