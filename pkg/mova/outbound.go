package mova

import (
	"context"
	"fmt"
)

// SinkDispatcher sends neutral outbound operations to one sink adapter.
//
// Implementations enforce platform-specific constraints while preserving these
// request semantics.
type SinkDispatcher interface {
	// SendMessage publishes a new text message, optionally with reply markup.
	SendMessage(ctx context.Context, request SendMessageRequest) (*OutboundMessage, error)
	// SendPhoto publishes a photo fetched by the platform from a public URL.
	SendPhoto(ctx context.Context, request SendPhotoRequest) (*OutboundMessage, error)
	// AnswerCallback acknowledges an inline button press.
	AnswerCallback(ctx context.Context, request AnswerCallbackRequest) error
	// ClearKeyboard removes the inline keyboard from an existing message.
	ClearKeyboard(ctx context.Context, request ClearKeyboardRequest) error
}

// OutboundTarget identifies where an outbound operation should be delivered.
type OutboundTarget struct {
	// Conversation identifies the destination conversation.
	Conversation Conversation
	// Sink selects the driver instance; nil lets the dispatcher choose.
	Sink *EventSource
}

// Validate checks target identity fields used for outbound routing.
func (t OutboundTarget) Validate() error {
	if t.Conversation.ID == "" {
		return fmt.Errorf("%w: missing conversation id", ErrInvalidOutboundRequest)
	}
	if t.Conversation.Type == "" {
		return fmt.Errorf("%w: missing conversation type", ErrInvalidOutboundRequest)
	}
	if t.Sink != nil && t.Sink.Platform == "" && t.Sink.ID == "" {
		return fmt.Errorf("%w: missing sink identity", ErrInvalidOutboundRequest)
	}

	return nil
}

// OutboundTargetFromEvent derives a reply destination from an inbound event.
func OutboundTargetFromEvent(event *Event) (OutboundTarget, error) {
	if event == nil {
		return OutboundTarget{}, fmt.Errorf("%w: nil event", ErrInvalidOutboundRequest)
	}
	target := OutboundTarget{
		Conversation: event.Conversation,
	}
	if event.Source.Platform != "" || event.Source.ID != "" {
		source := event.Source
		target.Sink = &source
	}
	if err := target.Validate(); err != nil {
		return OutboundTarget{}, fmt.Errorf("derive target from event %s: %w", event.Kind, err)
	}

	return target, nil
}

// OutboundMessage identifies a message successfully emitted by the dispatcher.
type OutboundMessage struct {
	// ID is the destination-platform message identifier.
	ID string
	// Target is the destination where this message was delivered.
	Target OutboundTarget
}

// InlineButton is one selectable option rendered under a message.
type InlineButton struct {
	// Text is the visible label.
	Text string
	// Data is returned in the callback when the button is pressed.
	Data string
}

// ReplyMarkup decorates an outbound message with interaction controls.
type ReplyMarkup struct {
	// InlineKeyboard lists button rows.
	InlineKeyboard [][]InlineButton
	// ForceReply asks the client to open a reply to this message.
	ForceReply bool
}

// Validate checks that the markup selects exactly one control kind.
func (m *ReplyMarkup) Validate() error {
	if m == nil {
		return nil
	}
	if len(m.InlineKeyboard) > 0 && m.ForceReply {
		return fmt.Errorf("%w: inline keyboard and force reply are exclusive", ErrInvalidOutboundRequest)
	}
	for rowIndex, row := range m.InlineKeyboard {
		if len(row) == 0 {
			return fmt.Errorf("%w: empty keyboard row %d", ErrInvalidOutboundRequest, rowIndex)
		}
		for buttonIndex, button := range row {
			if button.Text == "" || button.Data == "" {
				return fmt.Errorf(
					"%w: keyboard button %d/%d requires text and data",
					ErrInvalidOutboundRequest,
					rowIndex,
					buttonIndex,
				)
			}
		}
	}

	return nil
}

// SendMessageRequest describes a new outbound text message.
type SendMessageRequest struct {
	Target           OutboundTarget
	Text             string
	ReplyToMessageID string
	Markup           *ReplyMarkup
}

// Validate checks the request envelope before dispatch.
func (r SendMessageRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate send message target: %w", err)
	}
	if r.Text == "" {
		return fmt.Errorf("%w: missing message text", ErrInvalidOutboundRequest)
	}
	if err := r.Markup.Validate(); err != nil {
		return fmt.Errorf("validate send message markup: %w", err)
	}

	return nil
}

// SendPhotoRequest describes a photo message with an optional caption.
type SendPhotoRequest struct {
	Target           OutboundTarget
	URL              string
	Caption          string
	ReplyToMessageID string
}

// Validate checks the request envelope before dispatch.
func (r SendPhotoRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate send photo target: %w", err)
	}
	if r.URL == "" {
		return fmt.Errorf("%w: missing photo url", ErrInvalidOutboundRequest)
	}

	return nil
}

// AnswerCallbackRequest acknowledges a callback query.
type AnswerCallbackRequest struct {
	Target  OutboundTarget
	QueryID string
	// Text is an optional toast shown to the user.
	Text string
}

// Validate checks the request envelope before dispatch.
func (r AnswerCallbackRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate answer callback target: %w", err)
	}
	if r.QueryID == "" {
		return fmt.Errorf("%w: missing callback query id", ErrInvalidOutboundRequest)
	}

	return nil
}

// ClearKeyboardRequest removes reply markup from one message.
type ClearKeyboardRequest struct {
	Target    OutboundTarget
	MessageID string
}

// Validate checks the request envelope before dispatch.
func (r ClearKeyboardRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate clear keyboard target: %w", err)
	}
	if r.MessageID == "" {
		return fmt.Errorf("%w: missing message id", ErrInvalidOutboundRequest)
	}

	return nil
}
