package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"mova-bot/pkg/mova"

	"golang.org/x/sync/errgroup"
)

// Run starts modules, then drivers, and blocks until ctx ends or a driver
// fails. Everything is shut down before Run returns. Cancellation of ctx is a
// clean exit and yields nil.
func (k *Kernel) Run(ctx context.Context) error {
	if !k.running.TryLock() {
		return fmt.Errorf("kernel run: already running")
	}
	defer k.running.Unlock()

	modules, drivers := k.snapshot()
	k.cfg.logger.InfoContext(ctx, "kernel starting",
		"modules", len(modules),
		"drivers", len(drivers),
		"services", k.services.Names(),
	)

	if err := k.startModules(ctx, modules); err != nil {
		return errors.Join(err, k.shutdown(ctx, modules, drivers))
	}

	runCtx, stopDrivers := context.WithCancel(ctx)
	defer stopDrivers()

	group, groupCtx := errgroup.WithContext(runCtx)
	sink := k.newDriverEventSink()
	for _, driver := range drivers {
		group.Go(func() error {
			err := runSafely("driver "+driver.Name()+" Start", func() error {
				return driver.Start(groupCtx, sink)
			})
			if err == nil || isContextCancellation(err) {
				return nil
			}
			return fmt.Errorf("run driver %s: %w", driver.Name(), err)
		})
	}

	// groupCtx ends when ctx does or when the first driver fails. A driver
	// returning nil does not end it.
	<-groupCtx.Done()
	runErr := context.Cause(groupCtx)
	stopDrivers()
	k.awaitDrivers(group)

	if isContextCancellation(runErr) {
		runErr = nil
	}

	return errors.Join(runErr, k.shutdown(ctx, modules, drivers))
}

func (k *Kernel) startModules(ctx context.Context, modules []*moduleRecord) error {
	for _, record := range modules {
		hookCtx, cancel := context.WithTimeout(ctx, k.cfg.hookTimeout)
		err := runSafely("module "+record.name+" OnStart", func() error {
			return record.module.OnStart(hookCtx)
		})
		cancel()
		if err != nil {
			return fmt.Errorf("start module %s: %w", record.name, err)
		}
	}

	return nil
}

// awaitDrivers waits for Start calls to return, at most the shutdown timeout.
func (k *Kernel) awaitDrivers(group *errgroup.Group) {
	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(k.cfg.shutdownTimeout):
		k.cfg.logger.Warn("drivers did not stop before shutdown timeout", "timeout", k.cfg.shutdownTimeout)
	}
}

// shutdown stops drivers, then modules, in reverse registration order, and
// finally closes the bus. It gets its own deadline so it still runs after ctx
// is canceled.
func (k *Kernel) shutdown(ctx context.Context, modules []*moduleRecord, drivers []mova.Driver) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.shutdownTimeout)
	defer cancel()

	var errs []error
	for _, driver := range slices.Backward(drivers) {
		errs = append(errs, runSafely("driver "+driver.Name()+" Shutdown", func() error {
			return driver.Shutdown(shutdownCtx)
		}))
	}
	for _, record := range slices.Backward(modules) {
		if err := record.closeSubscriptions(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("module %s subscriptions: %w", record.name, err))
		}
		hookCtx, hookCancel := context.WithTimeout(shutdownCtx, k.cfg.hookTimeout)
		errs = append(errs, runSafely("module "+record.name+" OnShutdown", func() error {
			return record.module.OnShutdown(hookCtx)
		}))
		hookCancel()
	}
	errs = append(errs, k.bus.Close(shutdownCtx))

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("kernel shutdown: %w", err)
	}
	k.cfg.logger.InfoContext(shutdownCtx, "kernel stopped")

	return nil
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
