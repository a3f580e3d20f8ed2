package driver

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"mova-bot/pkg/mova"
)

type sink struct {
	source     mova.EventSource
	dispatcher mova.SinkDispatcher
}

// CompositeSinkDispatcher picks the driver-level dispatcher for each outbound
// request. A target without a sink reference goes to the only configured sink.
type CompositeSinkDispatcher struct {
	sinks []sink
}

// NewCompositeSinkDispatcher collects the runtimes that can send. Runtimes
// without a dispatcher are inbound only and are skipped.
func NewCompositeSinkDispatcher(runtimes []Runtime) (*CompositeSinkDispatcher, error) {
	var sinks []sink
	for _, runtime := range runtimes {
		if runtime.SinkDispatcher == nil {
			continue
		}
		id := runtime.Source.ID
		if id == "" {
			return nil, fmt.Errorf("new composite sink dispatcher: missing sink id")
		}
		if slices.ContainsFunc(sinks, func(existing sink) bool { return existing.source.ID == id }) {
			return nil, fmt.Errorf("new composite sink dispatcher: duplicate sink id %s", id)
		}
		sinks = append(sinks, sink{
			source:     mova.EventSource{Platform: runtime.Source.Platform, ID: id},
			dispatcher: runtime.SinkDispatcher,
		})
	}
	slices.SortFunc(sinks, func(a, b sink) int { return strings.Compare(a.source.ID, b.source.ID) })

	return &CompositeSinkDispatcher{sinks: sinks}, nil
}

// SendMessage implements mova.SinkDispatcher.
func (d *CompositeSinkDispatcher) SendMessage(ctx context.Context, request mova.SendMessageRequest) (*mova.OutboundMessage, error) {
	dispatcher, err := d.pick(request.Target)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	return dispatcher.SendMessage(ctx, request)
}

// SendPhoto implements mova.SinkDispatcher.
func (d *CompositeSinkDispatcher) SendPhoto(ctx context.Context, request mova.SendPhotoRequest) (*mova.OutboundMessage, error) {
	dispatcher, err := d.pick(request.Target)
	if err != nil {
		return nil, fmt.Errorf("send photo: %w", err)
	}

	return dispatcher.SendPhoto(ctx, request)
}

// AnswerCallback implements mova.SinkDispatcher.
func (d *CompositeSinkDispatcher) AnswerCallback(ctx context.Context, request mova.AnswerCallbackRequest) error {
	dispatcher, err := d.pick(request.Target)
	if err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}

	return dispatcher.AnswerCallback(ctx, request)
}

// ClearKeyboard implements mova.SinkDispatcher.
func (d *CompositeSinkDispatcher) ClearKeyboard(ctx context.Context, request mova.ClearKeyboardRequest) error {
	dispatcher, err := d.pick(request.Target)
	if err != nil {
		return fmt.Errorf("clear keyboard: %w", err)
	}

	return dispatcher.ClearKeyboard(ctx, request)
}

// ListSinks returns the configured sinks ordered by ID.
func (d *CompositeSinkDispatcher) ListSinks(ctx context.Context) ([]mova.EventSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list sinks: %w", err)
	}

	sources := make([]mova.EventSource, 0, len(d.sinks))
	for _, configured := range d.sinks {
		sources = append(sources, configured.source)
	}

	return sources, nil
}

// pick resolves target.Sink by ID first, then by platform when the platform
// has exactly one sink. Dispatcher errors are returned unwrapped.
func (d *CompositeSinkDispatcher) pick(target mova.OutboundTarget) (mova.SinkDispatcher, error) {
	if d == nil || len(d.sinks) == 0 {
		return nil, fmt.Errorf("%w: no sinks configured", mova.ErrOutboundUnsupported)
	}

	ref := target.Sink
	switch {
	case ref == nil && len(d.sinks) == 1:
		return d.sinks[0].dispatcher, nil
	case ref == nil:
		return nil, fmt.Errorf("%w: missing target sink", mova.ErrOutboundUnsupported)
	case ref.ID != "":
		for _, configured := range d.sinks {
			if configured.source.ID != ref.ID {
				continue
			}
			if ref.Platform != "" && ref.Platform != configured.source.Platform {
				return nil, fmt.Errorf("%w: sink %s serves %s, not %s",
					mova.ErrOutboundUnsupported, ref.ID, configured.source.Platform, ref.Platform)
			}
			return configured.dispatcher, nil
		}
		return nil, fmt.Errorf("%w: sink %s not found", mova.ErrOutboundUnsupported, ref.ID)
	case ref.Platform != "":
		var matched []sink
		for _, configured := range d.sinks {
			if configured.source.Platform == ref.Platform {
				matched = append(matched, configured)
			}
		}
		if len(matched) != 1 {
			return nil, fmt.Errorf("%w: %d sinks for platform %s", mova.ErrOutboundUnsupported, len(matched), ref.Platform)
		}
		return matched[0].dispatcher, nil
	default:
		return nil, fmt.Errorf("%w: empty sink reference", mova.ErrOutboundUnsupported)
	}
}
