package driver

import (
	"context"
	"log/slog"

	"mova-bot/internal/driver/telegram"
)

// NewBuiltinRegistry knows the Telegram bot driver.
func NewBuiltinRegistry() (*Registry, error) {
	return NewRegistry([]Descriptor{{
		Type:     telegram.DriverType,
		Platform: telegram.DriverPlatform,
		Builder: func(_ context.Context, definition Definition, logger *slog.Logger) (Runtime, error) {
			account, err := telegram.NewAccount(definition.Name, definition.Config, logger)
			if err != nil {
				return Runtime{}, err
			}

			return Runtime{Source: account.Ref, Driver: account.Driver, SinkDispatcher: account.Sink}, nil
		},
	}})
}
