package mova

import (
	"fmt"
	"time"
)

// EventKind selects the payload an Event carries.
type EventKind string

const (
	EventKindMessageCreated EventKind = "message.created"
	// EventKindCommandReceived is derived by the kernel, never published by a
	// driver: it follows a message.created whose text names a registered
	// command.
	EventKindCommandReceived  EventKind = "command.received"
	EventKindCallbackReceived EventKind = "callback.received"
)

// Platform names a messaging network.
type Platform string

const PlatformTelegram Platform = "telegram"

// ConversationType is the kind of chat an event happened in. Telegram
// supergroups count as groups.
type ConversationType string

const (
	ConversationTypePrivate ConversationType = "private"
	ConversationTypeGroup   ConversationType = "group"
	ConversationTypeChannel ConversationType = "channel"
)

// EventSource names the driver instance that produced an event.
type EventSource struct {
	Platform Platform
	ID       string
}

// Event is what drivers publish and modules receive. Exactly one of
// Message, Callback or Command is expected, chosen by Kind; command events
// keep the originating Message as well.
type Event struct {
	ID           string
	Kind         EventKind
	OccurredAt   time.Time
	Source       EventSource
	Conversation Conversation
	Actor        Actor
	Message      *Message
	Callback     *Callback
	Command      *CommandInvocation
	// Metadata is free-form driver context, such as the raw update type.
	Metadata map[string]string
}

// Conversation is where an event happened. Replies go back to it.
type Conversation struct {
	ID    string
	Type  ConversationType
	Title string
}

// Actor is the account behind an event.
type Actor struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
}

// Message is inbound text.
type Message struct {
	ID        string
	ReplyToID string
	Text      string
}

// Callback is an inline keyboard press.
type Callback struct {
	// QueryID must be answered, or the client shows a spinner on the button.
	QueryID   string
	MessageID string
	Data      string
}

// Validate reports the first missing envelope field or payload as
// ErrInvalidEvent.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}

	for _, field := range []struct {
		name    string
		missing bool
	}{
		{"id", e.ID == ""},
		{"kind", e.Kind == ""},
		{"occurred_at", e.OccurredAt.IsZero()},
		{"conversation id", e.Conversation.ID == ""},
	} {
		if field.missing {
			return fmt.Errorf("%w: missing %s", ErrInvalidEvent, field.name)
		}
	}

	var hasPayload bool
	switch e.Kind {
	case EventKindMessageCreated:
		hasPayload = e.Message != nil
	case EventKindCommandReceived:
		hasPayload = e.Command != nil
	case EventKindCallbackReceived:
		hasPayload = e.Callback != nil
	default:
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidEvent, e.Kind)
	}
	if !hasPayload {
		return fmt.Errorf("%w: %s without its payload", ErrInvalidEvent, e.Kind)
	}

	return nil
}
