package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"mova-bot/internal/admin"
	"mova-bot/internal/cache"
	"mova-bot/internal/catalogue"
	"mova-bot/internal/driver"
	"mova-bot/internal/kernel"
	clickstats "mova-bot/internal/stats"
	"mova-bot/internal/upstream"
	cataloguemodule "mova-bot/modules/catalogue"
	statsmodule "mova-bot/modules/stats"
	"mova-bot/modules/welcome"
	"mova-bot/pkg/mova"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// contentRuntime is the catalogue engine together with what it owns.
type contentRuntime struct {
	engine     *catalogue.Engine
	navigation *catalogue.NavigationStore
	closeCache func() error
}

func run(ctx context.Context) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		return fmt.Errorf("new builtin driver registry: %w", err)
	}

	cfg, err := loadConfig(registry, nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.logLevel}))
	slog.SetDefault(logger)

	content, err := buildContentRuntime(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := content.closeCache(); err != nil {
			logger.Warn("close cache backend failed", "error", err)
		}
	}()

	counters, err := clickstats.Open(ctx, cfg.statsPath)
	if err != nil {
		return fmt.Errorf("open click counters: %w", err)
	}
	defer func() {
		if err := counters.Close(); err != nil {
			logger.Warn("close click counters failed", "error", err)
		}
	}()

	kernelRuntime := buildKernelRuntime(logger, cfg)

	drivers, sinkDispatcher, err := buildDriverRuntime(ctx, logger, cfg, registry)
	if err != nil {
		return err
	}
	if err := registerRuntimeDrivers(kernelRuntime, drivers); err != nil {
		return err
	}
	if err := registerRuntimeServices(kernelRuntime, sinkDispatcher); err != nil {
		return err
	}
	if err := registerRuntimeModules(ctx, kernelRuntime, logger, cfg, content, counters); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := kernelRuntime.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("run kernel: %w", err)
		}
		return nil
	})
	if cfg.adminListen != "" {
		server, err := admin.NewServer(cfg.adminListen, counters,
			admin.WithLogger(logger),
			admin.WithSubscriptions(kernelRuntime.EventBus()),
			admin.WithSinks(sinkDispatcher),
			admin.WithShutdownTimeout(cfg.shutdownTimeout),
		)
		if err != nil {
			return fmt.Errorf("new admin server: %w", err)
		}
		group.Go(func() error {
			if err := server.Run(groupCtx); err != nil {
				return fmt.Errorf("run admin server: %w", err)
			}
			return nil
		})
	}

	return group.Wait()
}

func buildContentRuntime(ctx context.Context, logger *slog.Logger, cfg appConfig) (contentRuntime, error) {
	backend, closeCache, err := buildCacheBackend(ctx, logger, cfg)
	if err != nil {
		return contentRuntime{}, err
	}
	fail := func(err error) (contentRuntime, error) {
		_ = closeCache()
		return contentRuntime{}, err
	}

	store, err := cache.NewStore(backend, cache.WithLogger(logger))
	if err != nil {
		return fail(fmt.Errorf("new cache store: %w", err))
	}
	client, err := upstream.New(cfg.contentBaseURL,
		upstream.WithTimeout(cfg.contentTimeout),
		upstream.WithLogger(logger),
	)
	if err != nil {
		return fail(fmt.Errorf("new upstream client: %w", err))
	}
	repository, err := catalogue.NewRepository(store, client,
		catalogue.WithTTL(cfg.cacheTTL),
		catalogue.WithFetchTimeout(cfg.contentTimeout),
		catalogue.WithRepositoryLogger(logger),
	)
	if err != nil {
		return fail(fmt.Errorf("new content repository: %w", err))
	}

	navigation := catalogue.NewNavigationStore(cfg.idleTimeout)
	engine, err := catalogue.NewEngine(repository, navigation,
		catalogue.WithLocation(cfg.location),
		catalogue.WithEngineLogger(logger),
	)
	if err != nil {
		return fail(fmt.Errorf("new catalogue engine: %w", err))
	}

	return contentRuntime{engine: engine, navigation: navigation, closeCache: closeCache}, nil
}

// buildCacheBackend selects Redis when an address is configured and the
// in-process map otherwise. An unreachable Redis is logged, not fatal,
// because cache faults degrade to upstream fetches.
func buildCacheBackend(ctx context.Context, logger *slog.Logger, cfg appConfig) (cache.Backend, func() error, error) {
	if cfg.redisAddr == "" {
		logger.Info("using in-memory content cache")
		return cache.NewMemoryBackend(), func() error { return nil }, nil
	}

	backend, err := cache.NewRedisBackend(cache.RedisConfig{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
		Prefix:   cfg.redisPrefix,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("new redis cache backend: %w", err)
	}
	if err := backend.Ping(ctx); err != nil {
		logger.Warn("redis cache unreachable at startup", "addr", cfg.redisAddr, "error", err)
	} else {
		logger.Info("using redis content cache", "addr", cfg.redisAddr, "db", cfg.redisDB)
	}

	return backend, backend.Close, nil
}

func buildKernelRuntime(logger *slog.Logger, cfg appConfig) *kernel.Kernel {
	return kernel.New(
		kernel.WithLogger(logger),
		kernel.WithModuleHookTimeout(cfg.moduleHookTimeout),
		kernel.WithShutdownTimeout(cfg.shutdownTimeout),
		kernel.WithBusDefaults(kernel.BusDefaults{
			Buffer:         cfg.subscriptionBuffer,
			Workers:        cfg.subscriptionWorkers,
			HandlerTimeout: cfg.handlerTimeout,
		}),
	)
}

func buildDriverRuntime(
	ctx context.Context,
	logger *slog.Logger,
	cfg appConfig,
	registry *driver.Registry,
) ([]mova.Driver, *driver.CompositeSinkDispatcher, error) {
	if registry == nil {
		return nil, nil, fmt.Errorf("build drivers: nil driver registry")
	}

	runtimes, err := registry.BuildEnabled(ctx, cfg.drivers, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build drivers: %w", err)
	}

	drivers := make([]mova.Driver, 0, len(runtimes))
	for _, runtime := range runtimes {
		drivers = append(drivers, runtime.Driver)
	}

	dispatcher, err := driver.NewCompositeSinkDispatcher(runtimes)
	if err != nil {
		return nil, nil, fmt.Errorf("build sink dispatcher: %w", err)
	}

	return drivers, dispatcher, nil
}

func registerRuntimeServices(kernelRuntime *kernel.Kernel, sinkDispatcher mova.SinkDispatcher) error {
	if sinkDispatcher == nil {
		return fmt.Errorf("register sink dispatcher service: nil dispatcher")
	}
	if err := kernelRuntime.RegisterService(mova.ServiceSinkDispatcher, sinkDispatcher); err != nil {
		return fmt.Errorf("register sink dispatcher service: %w", err)
	}

	return nil
}

func registerRuntimeModules(
	ctx context.Context,
	kernelRuntime *kernel.Kernel,
	logger *slog.Logger,
	cfg appConfig,
	content contentRuntime,
	counters statsmodule.Counter,
) error {
	if err := kernelRuntime.RegisterModule(ctx, welcome.New()); err != nil {
		return fmt.Errorf("register welcome module: %w", err)
	}

	catalogueModule, err := cataloguemodule.New(content.engine,
		cataloguemodule.WithImageBaseURL(cfg.contentBaseURL),
		cataloguemodule.WithJanitor(content.navigation, cfg.sweepInterval),
		cataloguemodule.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("new catalogue module: %w", err)
	}
	if err := kernelRuntime.RegisterModule(ctx, catalogueModule); err != nil {
		return fmt.Errorf("register catalogue module: %w", err)
	}

	statsModule, err := statsmodule.New(counters, statsmodule.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("new stats module: %w", err)
	}
	if err := kernelRuntime.RegisterModule(ctx, statsModule); err != nil {
		return fmt.Errorf("register stats module: %w", err)
	}

	return nil
}

func registerRuntimeDrivers(kernelRuntime *kernel.Kernel, drivers []mova.Driver) error {
	for _, runtimeDriver := range drivers {
		if err := kernelRuntime.RegisterDriver(runtimeDriver); err != nil {
			return fmt.Errorf("register driver %s: %w", runtimeDriver.Name(), err)
		}
	}

	return nil
}
