package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"mova-bot/internal/catalogue"
	"mova-bot/internal/driver"
	"mova-bot/internal/upstream"

	"github.com/caarlos0/env/v11"
)

const (
	envConfigFile             = "MOVA_CONFIG_FILE"
	defaultConfigFilePath     = "config/bot.json"
	alternateConfigFilePath   = "bin/config/bot.json"
	defaultModuleHookTimeout  = 5 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultHandlerTimeout     = 15 * time.Second
	defaultSubscriptionBuffer = 256
	defaultSubscriptionWorker = 1
	defaultContentTimeout     = 10 * time.Second
	defaultCacheTTL           = 30 * time.Minute
	defaultTimezone           = "Europe/Kyiv"
	defaultSweepInterval      = 10 * time.Minute
	defaultStatsPath          = "data/stats.db"
	defaultRedisPrefix        = "mova:"
)

type appConfig struct {
	logLevel slog.Level

	moduleHookTimeout   time.Duration
	shutdownTimeout     time.Duration
	handlerTimeout      time.Duration
	subscriptionBuffer  int
	subscriptionWorkers int

	drivers []driver.Definition

	redisAddr     string
	redisPassword string
	redisDB       int
	redisPrefix   string

	contentBaseURL string
	contentTimeout time.Duration
	cacheTTL       time.Duration
	location       *time.Location

	idleTimeout   time.Duration
	sweepInterval time.Duration

	statsPath   string
	adminListen string
}

type fileConfig struct {
	LogLevel   string               `json:"log_level"`
	Kernel     fileKernelConfig     `json:"kernel"`
	Drivers    []fileDriverEntry    `json:"drivers"`
	Redis      fileRedisConfig      `json:"redis"`
	Content    fileContentConfig    `json:"content"`
	Navigation fileNavigationConfig `json:"navigation"`
	Stats      fileStatsConfig      `json:"stats"`
	Admin      fileAdminConfig      `json:"admin"`
}

type fileKernelConfig struct {
	ModuleHookTimeout   string `json:"module_hook_timeout"`
	ShutdownTimeout     string `json:"shutdown_timeout"`
	HandlerTimeout      string `json:"handler_timeout"`
	SubscriptionBuffer  *int   `json:"subscription_buffer"`
	SubscriptionWorkers *int   `json:"subscription_workers"`
}

type fileDriverEntry struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Enabled *bool           `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

type fileRedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       *int   `json:"db"`
	Prefix   string `json:"prefix"`
}

type fileContentConfig struct {
	BaseURL  string `json:"base_url"`
	Timeout  string `json:"timeout"`
	CacheTTL string `json:"cache_ttl"`
	Timezone string `json:"timezone"`
}

type fileNavigationConfig struct {
	IdleTimeout   string `json:"idle_timeout"`
	SweepInterval string `json:"sweep_interval"`
}

type fileStatsConfig struct {
	Path string `json:"path"`
}

type fileAdminConfig struct {
	Listen string `json:"listen"`
}

// envOverrides replaces file values when the variable is set.
type envOverrides struct {
	LogLevel       string `env:"MOVA_LOG_LEVEL"`
	RedisAddr      string `env:"MOVA_REDIS_ADDR"`
	RedisPassword  string `env:"MOVA_REDIS_PASSWORD"`
	RedisDB        *int   `env:"MOVA_REDIS_DB"`
	StatsPath      string `env:"MOVA_STATS_PATH"`
	AdminListen    string `env:"MOVA_ADMIN_LISTEN"`
	ContentBaseURL string `env:"MOVA_CONTENT_BASE_URL"`
}

// loadConfig reads the config file and applies env overrides. A nil
// environment reads the process environment.
func loadConfig(registry *driver.Registry, environment map[string]string) (appConfig, error) {
	cfg, err := defaultAppConfig()
	if err != nil {
		return appConfig{}, err
	}
	configFile, err := resolveConfigFilePath()
	if err != nil {
		return appConfig{}, err
	}

	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}
	if err := applyEnvOverrides(&cfg, environment); err != nil {
		return appConfig{}, err
	}
	if err := validateAppConfig(&cfg, registry); err != nil {
		return appConfig{}, fmt.Errorf("validate config file %s: %w", configFile, err)
	}

	return cfg, nil
}

func resolveConfigFilePath() (string, error) {
	if configFile := strings.TrimSpace(os.Getenv(envConfigFile)); configFile != "" {
		return configFile, nil
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf(
		"config file not found; create %s or %s, or set %s",
		defaultConfigFilePath,
		alternateConfigFilePath,
		envConfigFile,
	)
}

func defaultAppConfig() (appConfig, error) {
	location, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return appConfig{}, fmt.Errorf("load default timezone: %w", err)
	}

	return appConfig{
		logLevel: slog.LevelInfo,

		moduleHookTimeout:   defaultModuleHookTimeout,
		shutdownTimeout:     defaultShutdownTimeout,
		handlerTimeout:      defaultHandlerTimeout,
		subscriptionBuffer:  defaultSubscriptionBuffer,
		subscriptionWorkers: defaultSubscriptionWorker,

		drivers: make([]driver.Definition, 0),

		redisPrefix: defaultRedisPrefix,

		contentBaseURL: upstream.DefaultBaseURL,
		contentTimeout: defaultContentTimeout,
		cacheTTL:       defaultCacheTTL,
		location:       location,

		idleTimeout:   catalogue.DefaultIdleTimeout,
		sweepInterval: defaultSweepInterval,

		statsPath: defaultStatsPath,
	}, nil
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	durations := []struct {
		field  string
		raw    string
		target *time.Duration
	}{
		{field: "kernel.module_hook_timeout", raw: parsed.Kernel.ModuleHookTimeout, target: &cfg.moduleHookTimeout},
		{field: "kernel.shutdown_timeout", raw: parsed.Kernel.ShutdownTimeout, target: &cfg.shutdownTimeout},
		{field: "kernel.handler_timeout", raw: parsed.Kernel.HandlerTimeout, target: &cfg.handlerTimeout},
		{field: "content.timeout", raw: parsed.Content.Timeout, target: &cfg.contentTimeout},
		{field: "content.cache_ttl", raw: parsed.Content.CacheTTL, target: &cfg.cacheTTL},
		{field: "navigation.idle_timeout", raw: parsed.Navigation.IdleTimeout, target: &cfg.idleTimeout},
		{field: "navigation.sweep_interval", raw: parsed.Navigation.SweepInterval, target: &cfg.sweepInterval},
	}
	for _, duration := range durations {
		if err := parseDuration(duration.field, duration.raw, duration.target); err != nil {
			return err
		}
	}

	if parsed.Kernel.SubscriptionBuffer != nil {
		if *parsed.Kernel.SubscriptionBuffer <= 0 {
			return fmt.Errorf("parse kernel.subscription_buffer: must be > 0")
		}
		cfg.subscriptionBuffer = *parsed.Kernel.SubscriptionBuffer
	}
	if parsed.Kernel.SubscriptionWorkers != nil {
		if *parsed.Kernel.SubscriptionWorkers <= 0 {
			return fmt.Errorf("parse kernel.subscription_workers: must be > 0")
		}
		cfg.subscriptionWorkers = *parsed.Kernel.SubscriptionWorkers
	}

	cfg.drivers = make([]driver.Definition, 0, len(parsed.Drivers))
	for index, entry := range parsed.Drivers {
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		if len(entry.Config) == 0 {
			return fmt.Errorf("parse drivers[%d].config: required", index)
		}
		cfg.drivers = append(cfg.drivers, driver.Definition{
			Name:    strings.TrimSpace(entry.Name),
			Type:    strings.TrimSpace(entry.Type),
			Enabled: enabled,
			Config:  append([]byte(nil), entry.Config...),
		})
	}

	cfg.redisAddr = strings.TrimSpace(parsed.Redis.Addr)
	cfg.redisPassword = parsed.Redis.Password
	if parsed.Redis.DB != nil {
		cfg.redisDB = *parsed.Redis.DB
	}
	if prefix := strings.TrimSpace(parsed.Redis.Prefix); prefix != "" {
		cfg.redisPrefix = prefix
	}

	if baseURL := strings.TrimSpace(parsed.Content.BaseURL); baseURL != "" {
		cfg.contentBaseURL = baseURL
	}
	if timezone := strings.TrimSpace(parsed.Content.Timezone); timezone != "" {
		location, err := time.LoadLocation(timezone)
		if err != nil {
			return fmt.Errorf("parse content.timezone: %w", err)
		}
		cfg.location = location
	}

	if statsPath := strings.TrimSpace(parsed.Stats.Path); statsPath != "" {
		cfg.statsPath = statsPath
	}
	cfg.adminListen = strings.TrimSpace(parsed.Admin.Listen)

	return nil
}

func applyEnvOverrides(cfg *appConfig, environment map[string]string) error {
	if cfg == nil {
		return fmt.Errorf("apply env overrides: nil config")
	}

	overrides, err := env.ParseAsWithOptions[envOverrides](env.Options{Environment: environment})
	if err != nil {
		return fmt.Errorf("parse env overrides: %w", err)
	}

	if rawLevel := strings.TrimSpace(overrides.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse MOVA_LOG_LEVEL: %w", err)
		}
		cfg.logLevel = level
	}
	if addr := strings.TrimSpace(overrides.RedisAddr); addr != "" {
		cfg.redisAddr = addr
	}
	if overrides.RedisPassword != "" {
		cfg.redisPassword = overrides.RedisPassword
	}
	if overrides.RedisDB != nil {
		cfg.redisDB = *overrides.RedisDB
	}
	if statsPath := strings.TrimSpace(overrides.StatsPath); statsPath != "" {
		cfg.statsPath = statsPath
	}
	if listen := strings.TrimSpace(overrides.AdminListen); listen != "" {
		cfg.adminListen = listen
	}
	if baseURL := strings.TrimSpace(overrides.ContentBaseURL); baseURL != "" {
		cfg.contentBaseURL = baseURL
	}

	return nil
}

func validateAppConfig(cfg *appConfig, registry *driver.Registry) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if registry == nil {
		return fmt.Errorf("nil driver registry")
	}

	enabled := 0
	seen := make(map[string]struct{}, len(cfg.drivers))
	for _, definition := range cfg.drivers {
		if definition.Name == "" {
			return fmt.Errorf("drivers[].name is required")
		}
		if definition.Type == "" {
			return fmt.Errorf("drivers[%s].type is required", definition.Name)
		}
		if _, exists := seen[definition.Name]; exists {
			return fmt.Errorf("drivers[%s]: duplicate name", definition.Name)
		}
		seen[definition.Name] = struct{}{}
		if !definition.Enabled {
			continue
		}
		if _, err := registry.PlatformForType(definition.Type); err != nil {
			return fmt.Errorf("drivers[%s].type: %w", definition.Name, err)
		}
		enabled++
	}
	if enabled == 0 {
		return fmt.Errorf("at least one enabled driver is required")
	}
	if cfg.redisDB < 0 {
		return fmt.Errorf("redis.db must be >= 0")
	}
	if cfg.statsPath == "" {
		return fmt.Errorf("stats.path is required")
	}

	return nil
}

func parseDuration(field string, raw string, target *time.Duration) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", field, err)
	}
	if value <= 0 {
		return fmt.Errorf("parse %s: must be > 0", field)
	}
	*target = value

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}
