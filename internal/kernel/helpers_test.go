package kernel

import (
	"context"
	"sync"
	"testing"
	"time"

	"mova-bot/pkg/mova"
)

func newTestEvent(id string, kind mova.EventKind) *mova.Event {
	event := &mova.Event{
		ID:           id,
		Kind:         kind,
		OccurredAt:   time.Unix(1700000000, 0),
		Source:       mova.EventSource{Platform: mova.PlatformTelegram, ID: "tg-test"},
		Conversation: mova.Conversation{ID: "100", Type: mova.ConversationTypePrivate},
		Actor:        mova.Actor{ID: "7"},
	}
	switch kind {
	case mova.EventKindMessageCreated:
		event.Message = &mova.Message{ID: id, Text: "hello"}
	case mova.EventKindCommandReceived:
		event.Command = &mova.CommandInvocation{Name: "start", SourceEventID: id}
	case mova.EventKindCallbackReceived:
		event.Callback = &mova.Callback{QueryID: "q-" + id, Data: "category_1"}
	}

	return event
}

func eventually(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

type stubModule struct {
	name     string
	spec     mova.ModuleSpec
	register func(ctx context.Context, runtime mova.ModuleRuntime) error

	mu       sync.Mutex
	started  int
	shutdown int
}

func (m *stubModule) Name() string {
	return m.name
}

func (m *stubModule) Spec() mova.ModuleSpec {
	return m.spec
}

func (m *stubModule) OnRegister(ctx context.Context, runtime mova.ModuleRuntime) error {
	if m.register == nil {
		return nil
	}

	return m.register(ctx, runtime)
}

func (m *stubModule) OnStart(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++

	return nil
}

func (m *stubModule) OnShutdown(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown++

	return nil
}

func (m *stubModule) counts() (started int, shutdown int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.started, m.shutdown
}

// stubDriver publishes a fixed set of events and then blocks until canceled.
type stubDriver struct {
	name   string
	events []*mova.Event
	err    error
}

func (d *stubDriver) Name() string {
	return d.name
}

func (d *stubDriver) Start(ctx context.Context, sink mova.EventSink) error {
	for _, event := range d.events {
		if err := sink.Publish(ctx, event); err != nil {
			return err
		}
	}
	if d.err != nil {
		return d.err
	}
	<-ctx.Done()

	return ctx.Err()
}

func (d *stubDriver) Shutdown(context.Context) error {
	return nil
}
