package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"mova-bot/pkg/mova"

	gotdtelegram "github.com/gotd/td/telegram"
)

// Account is one bot login: its inbound driver and outbound sink, sharing a
// gotd client and a peer cache.
type Account struct {
	Ref    mova.EventSource
	Driver *Driver
	Sink   *SinkDispatcher
}

// NewAccount builds the account named name from its raw JSON config block.
// Empty credentials are filled from TELEGRAM_* environment variables. The
// client connects when the driver starts.
func NewAccount(name string, rawConfig []byte, logger *slog.Logger) (*Account, error) {
	cfg, err := parseBotConfig(rawConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("telegram account %s config: %w", name, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "telegram", "account", name)

	storage, err := openSessionFile(cfg.sessionFile)
	if err != nil {
		return nil, fmt.Errorf("telegram account %s: %w", name, err)
	}

	queue := NewUpdateQueue(cfg.updateBuffer)
	client := gotdtelegram.NewClient(cfg.credentials.AppID, cfg.credentials.AppHash, gotdtelegram.Options{
		UpdateHandler:  queue,
		SessionStorage: storage,
	})
	session := botSession{
		client:      client,
		token:       cfg.credentials.BotToken,
		authTimeout: cfg.authTimeout,
		sessionFile: storage.Path,
		logger:      logger,
	}
	peers := NewPeerCache()
	ref := mova.EventSource{Platform: DriverPlatform, ID: name}

	source, err := newBotSource(session, queue, newUpdateMapper(peers))
	if err != nil {
		return nil, fmt.Errorf("telegram account %s: %w", name, err)
	}
	inbound, err := NewDriver(source, NewDefaultDecoder(),
		WithName(name),
		WithPublishTimeout(cfg.publishTimeout),
		WithDriverLogger(logger),
		WithErrorHandler(func(ctx context.Context, err error) {
			logger.WarnContext(ctx, "telegram update dropped", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("telegram account %s: %w", name, err)
	}
	outbound, err := NewOutboundDispatcher(client, peers,
		WithOutboundTimeout(cfg.publishTimeout),
		WithOutboundLogger(logger),
		WithSinkRef(ref),
	)
	if err != nil {
		return nil, fmt.Errorf("telegram account %s: %w", name, err)
	}

	return &Account{Ref: ref, Driver: inbound, Sink: outbound}, nil
}
