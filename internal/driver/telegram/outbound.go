package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"mova-bot/pkg/mova"

	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
)

const defaultOutboundTimeout = 3 * time.Second

type outboundConfig struct {
	rpcTimeout time.Duration
	logger     *slog.Logger
	sink       mova.EventSource
}

// OutboundOption configures a SinkDispatcher.
type OutboundOption func(*outboundConfig)

// WithOutboundTimeout bounds each Telegram call.
func WithOutboundTimeout(timeout time.Duration) OutboundOption {
	return func(cfg *outboundConfig) {
		if timeout > 0 {
			cfg.rpcTimeout = timeout
		}
	}
}

// WithOutboundLogger enables debug logs for delivered operations.
func WithOutboundLogger(logger *slog.Logger) OutboundOption {
	return func(cfg *outboundConfig) {
		cfg.logger = logger
	}
}

// WithSinkRef names the sink in returned errors.
func WithSinkRef(ref mova.EventSource) OutboundOption {
	return func(cfg *outboundConfig) {
		cfg.sink = ref
		if cfg.sink.Platform == "" {
			cfg.sink.Platform = DriverPlatform
		}
	}
}

// SinkDispatcher is the Telegram mova.SinkDispatcher. Conversations are
// turned into peers through the PeerCache the inbound side fills.
type SinkDispatcher struct {
	cfg   outboundConfig
	peers *PeerCache
	rpc   outboundRPC
}

// NewOutboundDispatcher sends through client, which must be running before
// the first call.
func NewOutboundDispatcher(
	client *gotdtelegram.Client,
	peers *PeerCache,
	options ...OutboundOption,
) (*SinkDispatcher, error) {
	if client == nil {
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil client")
	}

	return newOutboundDispatcherWithRPC(newGotdOutboundRPC(client), peers, options...)
}

func newOutboundDispatcherWithRPC(rpc outboundRPC, peers *PeerCache, options ...OutboundOption) (*SinkDispatcher, error) {
	switch {
	case rpc == nil:
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil rpc")
	case peers == nil:
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil peer cache")
	}

	cfg := outboundConfig{
		rpcTimeout: defaultOutboundTimeout,
		sink:       mova.EventSource{Platform: DriverPlatform},
	}
	for _, option := range options {
		option(&cfg)
	}

	return &SinkDispatcher{cfg: cfg, peers: peers, rpc: rpc}, nil
}

// SendMessage sends text with optional markup.
func (d *SinkDispatcher) SendMessage(ctx context.Context, request mova.SendMessageRequest) (*mova.OutboundMessage, error) {
	op := mova.OutboundOperationSendMessage
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	peer, replyTo, err := d.prepareSend(request.Target, request.ReplyToMessageID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var id int
	err = d.invoke(ctx, op, func(ctx context.Context) (err error) {
		id, err = d.rpc.SendText(ctx, peer, textMessage{
			text:    request.Text,
			replyTo: replyTo,
			markup:  mapReplyMarkup(request.Markup),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s to %s: %w", op, request.Target.Conversation.ID, err)
	}
	d.logDelivered(ctx, op, request.Target, "message_id", id, "reply_to", request.ReplyToMessageID)

	return &mova.OutboundMessage{ID: strconv.Itoa(id), Target: request.Target}, nil
}

// SendPhoto sends a photo Telegram downloads from request.URL. Long captions
// are cut to the caption limit.
func (d *SinkDispatcher) SendPhoto(ctx context.Context, request mova.SendPhotoRequest) (*mova.OutboundMessage, error) {
	op := mova.OutboundOperationSendPhoto
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	peer, replyTo, err := d.prepareSend(request.Target, request.ReplyToMessageID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var id int
	err = d.invoke(ctx, op, func(ctx context.Context) (err error) {
		id, err = d.rpc.SendPhoto(ctx, peer, photoMessage{
			url:     request.URL,
			caption: truncateUTF16(request.Caption, maxCaptionLength),
			replyTo: replyTo,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s to %s: %w", op, request.Target.Conversation.ID, err)
	}
	d.logDelivered(ctx, op, request.Target, "message_id", id, "url", request.URL)

	return &mova.OutboundMessage{ID: strconv.Itoa(id), Target: request.Target}, nil
}

// AnswerCallback stops the button spinner, showing Text as a toast if set.
func (d *SinkDispatcher) AnswerCallback(ctx context.Context, request mova.AnswerCallbackRequest) error {
	op := mova.OutboundOperationAnswerCallback
	if err := request.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := d.checkPlatform(request.Target); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	queryID, err := strconv.ParseInt(strings.TrimSpace(request.QueryID), 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w: query id %q", op, mova.ErrInvalidOutboundRequest, request.QueryID)
	}

	if err := d.invoke(ctx, op, func(ctx context.Context) error {
		return d.rpc.AnswerCallback(ctx, queryID, request.Text)
	}); err != nil {
		return fmt.Errorf("%s %s: %w", op, request.QueryID, err)
	}
	d.logDelivered(ctx, op, request.Target, "query_id", request.QueryID)

	return nil
}

// ClearKeyboard strips the inline keyboard from a sent message. A message
// that has no keyboard left counts as cleared.
func (d *SinkDispatcher) ClearKeyboard(ctx context.Context, request mova.ClearKeyboardRequest) error {
	op := mova.OutboundOperationClearKeyboard
	if err := request.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	peer, err := d.resolvePeer(request.Target)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	messageID, err := parseMessageID(request.MessageID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	alreadyCleared := false
	err = d.invoke(ctx, op, func(ctx context.Context) error {
		err := d.rpc.ClearKeyboard(ctx, peer, messageID)
		if isMessageNotModified(err) {
			alreadyCleared = true
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%s on %s: %w", op, request.MessageID, err)
	}
	d.logDelivered(ctx, op, request.Target, "message_id", request.MessageID, "already_cleared", alreadyCleared)

	return nil
}

// invoke runs call under the RPC timeout and classifies its failure.
func (d *SinkDispatcher) invoke(ctx context.Context, op mova.OutboundOperation, call func(ctx context.Context) error) error {
	if d.cfg.rpcTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.rpcTimeout)
		defer cancel()
	}

	return mapTelegramOutboundError(op, d.cfg.sink, call(ctx))
}

func (d *SinkDispatcher) prepareSend(target mova.OutboundTarget, replyToID string) (tg.InputPeerClass, int, error) {
	peer, err := d.resolvePeer(target)
	if err != nil {
		return nil, 0, err
	}
	if strings.TrimSpace(replyToID) == "" {
		return peer, 0, nil
	}
	replyTo, err := parseMessageID(replyToID)
	if err != nil {
		return nil, 0, fmt.Errorf("reply to: %w", err)
	}

	return peer, replyTo, nil
}

func (d *SinkDispatcher) checkPlatform(target mova.OutboundTarget) error {
	if target.Sink != nil && target.Sink.Platform != "" && target.Sink.Platform != DriverPlatform {
		return fmt.Errorf("%w: platform %s", mova.ErrOutboundUnsupported, target.Sink.Platform)
	}

	return nil
}

func (d *SinkDispatcher) resolvePeer(target mova.OutboundTarget) (tg.InputPeerClass, error) {
	if err := d.checkPlatform(target); err != nil {
		return nil, err
	}

	return d.peers.Resolve(target.Conversation)
}

func (d *SinkDispatcher) logDelivered(
	ctx context.Context,
	op mova.OutboundOperation,
	target mova.OutboundTarget,
	attrs ...any,
) {
	if d.cfg.logger == nil {
		return
	}

	d.cfg.logger.DebugContext(ctx, "telegram outbound delivered", append([]any{
		"operation", op,
		"conversation", target.Conversation.ID,
		"conversation_type", target.Conversation.Type,
	}, attrs...)...)
}

func parseMessageID(raw string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%w: message id %q", mova.ErrInvalidOutboundRequest, raw)
	}

	return value, nil
}
