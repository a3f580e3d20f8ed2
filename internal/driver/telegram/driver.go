package telegram

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"mova-bot/pkg/mova"
)

const defaultPublishTimeout = 2 * time.Second

type driverConfig struct {
	name           string
	publishTimeout time.Duration
	report         func(context.Context, error)
	logger         *slog.Logger
}

// DriverOption configures a Driver.
type DriverOption func(*driverConfig)

// WithName sets the source ID stamped on every event.
func WithName(name string) DriverOption {
	return func(cfg *driverConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// WithPublishTimeout caps the wait on the kernel sink per event.
func WithPublishTimeout(timeout time.Duration) DriverOption {
	return func(cfg *driverConfig) {
		if timeout > 0 {
			cfg.publishTimeout = timeout
		}
	}
}

// WithErrorHandler is called for every update the driver drops.
func WithErrorHandler(handler func(context.Context, error)) DriverOption {
	return func(cfg *driverConfig) {
		if handler != nil {
			cfg.report = handler
		}
	}
}

// WithDriverLogger sets the driver logger.
func WithDriverLogger(logger *slog.Logger) DriverOption {
	return func(cfg *driverConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// DriverStats counts update outcomes since the driver was created.
type DriverStats struct {
	Published int64 `json:"published"`
	// Skipped counts updates authored by bots.
	Skipped int64 `json:"skipped"`
	// Failed counts updates that could not be decoded or published.
	Failed int64 `json:"failed"`
}

type updateCounters struct {
	published, skipped, failed atomic.Int64
}

func (c *updateCounters) snapshot() DriverStats {
	return DriverStats{
		Published: c.published.Load(),
		Skipped:   c.skipped.Load(),
		Failed:    c.failed.Load(),
	}
}

// Driver publishes bot updates as mova events. A bad update is counted and
// reported, never fatal.
type Driver struct {
	cfg      driverConfig
	source   UpdateSource
	decoder  Decoder
	counters updateCounters
}

// NewDriver creates a Telegram driver reading from source.
func NewDriver(source UpdateSource, decoder Decoder, options ...DriverOption) (*Driver, error) {
	switch {
	case source == nil:
		return nil, fmt.Errorf("new telegram driver: nil source")
	case decoder == nil:
		return nil, fmt.Errorf("new telegram driver: nil decoder")
	}

	cfg := driverConfig{name: DriverType, publishTimeout: defaultPublishTimeout}
	for _, option := range options {
		option(&cfg)
	}
	cfg.logger = cmp.Or(cfg.logger, slog.Default())
	if cfg.report == nil {
		cfg.report = func(context.Context, error) {}
	}

	return &Driver{cfg: cfg, source: source, decoder: decoder}, nil
}

// Name returns the driver instance name.
func (d *Driver) Name() string {
	return d.cfg.name
}

// Stats returns a snapshot of the update counters.
func (d *Driver) Stats() DriverStats {
	return d.counters.snapshot()
}

// Start blocks until the source stops. Cancellation is a clean stop.
func (d *Driver) Start(ctx context.Context, sink mova.EventSink) error {
	if sink == nil {
		return fmt.Errorf("start telegram driver: nil sink")
	}

	err := d.source.Consume(ctx, func(ctx context.Context, update Update) error {
		return d.forward(ctx, update, sink)
	})
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil
	default:
		return fmt.Errorf("start telegram driver %s: %w", d.cfg.name, err)
	}
}

// forward decodes and publishes update. It only fails once ctx is done.
func (d *Driver) forward(ctx context.Context, update Update, sink mova.EventSink) error {
	if update.Actor.IsBot {
		d.counters.skipped.Add(1)
		d.cfg.logger.DebugContext(ctx, "telegram update from bot skipped",
			"update_id", update.ID,
			"actor_id", update.Actor.ID,
		)
		return nil
	}

	event, err := d.decode(ctx, update)
	if err != nil {
		d.drop(ctx, err)
		return nil
	}
	event.Source.Platform = cmp.Or(event.Source.Platform, DriverPlatform)
	event.Source.ID = cmp.Or(event.Source.ID, d.cfg.name)

	publishCtx, cancel := context.WithTimeout(ctx, d.cfg.publishTimeout)
	err = sink.Publish(publishCtx, event)
	cancel()
	switch {
	case err == nil:
		d.counters.published.Add(1)
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("publish %s: %w", update.ID, err)
	default:
		d.drop(ctx, fmt.Errorf("publish %s: %w", update.ID, err))
		return nil
	}
}

func (d *Driver) drop(ctx context.Context, err error) {
	d.counters.failed.Add(1)
	d.cfg.report(ctx, err)
}

func (d *Driver) decode(ctx context.Context, update Update) (event *mova.Event, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			event, err = nil, fmt.Errorf("decode %s: panic: %v", update.ID, recovered)
		}
	}()

	event, err = d.decoder.Decode(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", update.ID, err)
	}

	return event, nil
}

// Shutdown logs the update counters. The gotd session ends with Start.
func (d *Driver) Shutdown(ctx context.Context) error {
	stats := d.Stats()
	d.cfg.logger.InfoContext(ctx, "telegram driver stopped",
		"driver", d.cfg.name,
		"published", stats.Published,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)

	return nil
}
