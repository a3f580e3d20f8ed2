package kernel

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mova-bot/pkg/mova"
)

const (
	defaultModuleHookTimeout = 5 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultHandlerTimeout    = 15 * time.Second
)

type config struct {
	hookTimeout     time.Duration
	shutdownTimeout time.Duration
	bus             BusDefaults
	logger          *slog.Logger
	// onAsyncError stays nil unless set explicitly; New then logs through
	// logger.
	onAsyncError AsyncErrorFunc
}

// Option configures a Kernel.
type Option func(*config)

func newConfig(options []Option) config {
	cfg := config{
		hookTimeout:     defaultModuleHookTimeout,
		shutdownTimeout: defaultShutdownTimeout,
		bus:             BusDefaults{Buffer: 256, Workers: 1, HandlerTimeout: defaultHandlerTimeout},
		logger:          slog.Default(),
	}
	for _, option := range options {
		option(&cfg)
	}
	if cfg.onAsyncError == nil {
		cfg.onAsyncError = asyncErrorLogger(cfg.logger)
	}

	return cfg
}

// asyncErrorLogger reports failures that have no caller to return to.
func asyncErrorLogger(logger *slog.Logger) AsyncErrorFunc {
	return func(ctx context.Context, scope string, err error) {
		attrs := []any{"scope", scope, "error", err}

		var recovered *panicError
		if errors.As(err, &recovered) {
			attrs = append(attrs, "stack", string(recovered.stack))
		}
		outboundErr, isOutbound := mova.AsOutboundError(err)
		if isOutbound {
			attrs = append(attrs, "outbound_operation", outboundErr.Operation, "outbound_kind", outboundErr.Kind)
			if outboundErr.Type != "" {
				attrs = append(attrs, "rpc_type", outboundErr.Type)
			}
			if outboundErr.RetryAfter > 0 {
				attrs = append(attrs, "retry_after", outboundErr.RetryAfter)
			}
		}

		logger.Log(ctx, asyncErrorLevel(err, outboundErr), "kernel async error", attrs...)
	}
}

// asyncErrorLevel demotes expected failures to warnings: flood waits, users
// who blocked the bot and handler timeouts.
func asyncErrorLevel(err error, outboundErr *mova.OutboundError) slog.Level {
	if errors.Is(err, context.DeadlineExceeded) {
		return slog.LevelWarn
	}
	if outboundErr == nil {
		return slog.LevelError
	}

	switch outboundErr.Kind {
	case mova.OutboundErrorKindRateLimited, mova.OutboundErrorKindPermanent:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// WithModuleHookTimeout bounds each OnRegister, OnStart and OnShutdown call.
func WithModuleHookTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		if timeout > 0 {
			cfg.hookTimeout = timeout
		}
	}
}

// WithShutdownTimeout bounds the whole shutdown sequence.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		if timeout > 0 {
			cfg.shutdownTimeout = timeout
		}
	}
}

// WithBusDefaults sets the queue depth, worker count and handler timeout for
// subscriptions that leave them zero. Non-positive fields keep the kernel
// defaults.
func WithBusDefaults(defaults BusDefaults) Option {
	return func(cfg *config) {
		if defaults.Buffer > 0 {
			cfg.bus.Buffer = defaults.Buffer
		}
		if defaults.Workers > 0 {
			cfg.bus.Workers = defaults.Workers
		}
		if defaults.HandlerTimeout > 0 {
			cfg.bus.HandlerTimeout = defaults.HandlerTimeout
		}
	}
}

// WithLogger sets the kernel logger. Async errors go to it unless
// WithAsyncErrorHandler is also given.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithAsyncErrorHandler replaces async error logging.
func WithAsyncErrorHandler(handler AsyncErrorFunc) Option {
	return func(cfg *config) {
		if handler != nil {
			cfg.onAsyncError = handler
		}
	}
}
