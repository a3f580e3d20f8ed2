package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mova-bot/internal/cache"
	"mova-bot/internal/catalogue"
	"mova-bot/internal/driver"
	"mova-bot/pkg/mova"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
)

const testDriversJSON = `"drivers":[{
	"name":"tg-main",
	"type":"telegram",
	"config":{"app_id":1,"app_hash":"hash","bot_token":"1:token"}
}]`

func writeConfigFile(t *testing.T, path string, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func newTestRegistry(t *testing.T) *driver.Registry {
	t.Helper()

	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		t.Fatalf("new builtin registry failed: %v", err)
	}

	return registry
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    slog.Level
		wantErr bool
	}{
		{name: "debug", input: "debug", want: slog.LevelDebug},
		{name: "info", input: "info", want: slog.LevelInfo},
		{name: "warn", input: "warn", want: slog.LevelWarn},
		{name: "warning", input: " WARNING ", want: slog.LevelWarn},
		{name: "error", input: "error", want: slog.LevelError},
		{name: "invalid", input: "trace", wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			got, err := parseLogLevel(testCase.input)
			if testCase.wantErr != (err != nil) {
				t.Fatalf("error = %v, wantErr %v", err, testCase.wantErr)
			}
			if testCase.wantErr {
				return
			}
			if got != testCase.want {
				t.Fatalf("level = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("loads all supported fields from config file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "bot.json")
		writeConfigFile(t, configPath, `{
			"log_level":"warn",
			"kernel":{
				"module_hook_timeout":"7s",
				"shutdown_timeout":"15s",
				"handler_timeout":"20s",
				"subscription_buffer":64,
				"subscription_workers":5
			},
			`+testDriversJSON+`,
			"redis":{"addr":"localhost:6379","password":"pw","db":2,"prefix":"test:"},
			"content":{
				"base_url":"https://content.example",
				"timeout":"3s",
				"cache_ttl":"1h",
				"timezone":"UTC"
			},
			"navigation":{"idle_timeout":"2h","sweep_interval":"5m"},
			"stats":{"path":"state/clicks.db"},
			"admin":{"listen":"127.0.0.1:9090"}
		}`)
		t.Setenv(envConfigFile, configPath)

		cfg, err := loadConfig(newTestRegistry(t), map[string]string{})
		if err != nil {
			t.Fatalf("load config failed: %v", err)
		}

		if cfg.logLevel != slog.LevelWarn {
			t.Fatalf("log level = %v, want %v", cfg.logLevel, slog.LevelWarn)
		}
		durations := map[string][2]time.Duration{
			"module hook timeout": {cfg.moduleHookTimeout, 7 * time.Second},
			"shutdown timeout":    {cfg.shutdownTimeout, 15 * time.Second},
			"handler timeout":     {cfg.handlerTimeout, 20 * time.Second},
			"content timeout":     {cfg.contentTimeout, 3 * time.Second},
			"cache ttl":           {cfg.cacheTTL, time.Hour},
			"idle timeout":        {cfg.idleTimeout, 2 * time.Hour},
			"sweep interval":      {cfg.sweepInterval, 5 * time.Minute},
		}
		for name, pair := range durations {
			if pair[0] != pair[1] {
				t.Fatalf("%s = %s, want %s", name, pair[0], pair[1])
			}
		}
		if cfg.subscriptionBuffer != 64 || cfg.subscriptionWorkers != 5 {
			t.Fatalf("subscription buffer/workers = %d/%d, want 64/5", cfg.subscriptionBuffer, cfg.subscriptionWorkers)
		}
		if len(cfg.drivers) != 1 || cfg.drivers[0].Name != "tg-main" || !cfg.drivers[0].Enabled {
			t.Fatalf("drivers = %+v, want enabled tg-main", cfg.drivers)
		}
		if cfg.redisAddr != "localhost:6379" || cfg.redisPassword != "pw" || cfg.redisDB != 2 || cfg.redisPrefix != "test:" {
			t.Fatalf("redis = %q/%q/%d/%q", cfg.redisAddr, cfg.redisPassword, cfg.redisDB, cfg.redisPrefix)
		}
		if cfg.contentBaseURL != "https://content.example" {
			t.Fatalf("content base url = %q", cfg.contentBaseURL)
		}
		if cfg.location.String() != "UTC" {
			t.Fatalf("location = %s, want UTC", cfg.location)
		}
		if cfg.statsPath != "state/clicks.db" {
			t.Fatalf("stats path = %q, want state/clicks.db", cfg.statsPath)
		}
		if cfg.adminListen != "127.0.0.1:9090" {
			t.Fatalf("admin listen = %q, want 127.0.0.1:9090", cfg.adminListen)
		}
	})

	t.Run("defaults apply when sections are omitted", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "bot.json")
		writeConfigFile(t, configPath, `{`+testDriversJSON+`}`)
		t.Setenv(envConfigFile, configPath)

		cfg, err := loadConfig(newTestRegistry(t), map[string]string{})
		if err != nil {
			t.Fatalf("load config failed: %v", err)
		}
		if cfg.redisAddr != "" {
			t.Fatalf("redis addr = %q, want empty", cfg.redisAddr)
		}
		if cfg.cacheTTL != defaultCacheTTL {
			t.Fatalf("cache ttl = %s, want %s", cfg.cacheTTL, defaultCacheTTL)
		}
		if cfg.idleTimeout != catalogue.DefaultIdleTimeout {
			t.Fatalf("idle timeout = %s, want %s", cfg.idleTimeout, catalogue.DefaultIdleTimeout)
		}
		if cfg.location.String() != defaultTimezone {
			t.Fatalf("location = %s, want %s", cfg.location, defaultTimezone)
		}
		if cfg.statsPath != defaultStatsPath || cfg.adminListen != "" {
			t.Fatalf("stats path/admin = %q/%q", cfg.statsPath, cfg.adminListen)
		}
		if cfg.subscriptionWorkers != 1 {
			t.Fatalf("subscription workers = %d, want 1", cfg.subscriptionWorkers)
		}
	})

	t.Run("env overrides replace file values", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "bot.json")
		writeConfigFile(t, configPath, `{
			"log_level":"info",
			`+testDriversJSON+`,
			"redis":{"addr":"file:6379","db":1},
			"stats":{"path":"file.db"}
		}`)
		t.Setenv(envConfigFile, configPath)

		cfg, err := loadConfig(newTestRegistry(t), map[string]string{
			"MOVA_LOG_LEVEL":        "debug",
			"MOVA_REDIS_ADDR":       "env:6379",
			"MOVA_REDIS_PASSWORD":   "secret",
			"MOVA_REDIS_DB":         "0",
			"MOVA_STATS_PATH":       "env.db",
			"MOVA_ADMIN_LISTEN":     ":8081",
			"MOVA_CONTENT_BASE_URL": "http://localhost:8000",
		})
		if err != nil {
			t.Fatalf("load config failed: %v", err)
		}

		got := []any{cfg.logLevel, cfg.redisAddr, cfg.redisPassword, cfg.redisDB, cfg.statsPath, cfg.adminListen, cfg.contentBaseURL}
		want := []any{slog.LevelDebug, "env:6379", "secret", 0, "env.db", ":8081", "http://localhost:8000"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("overrides mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("loads fallback path bin/config/bot.json when no explicit path is set", func(t *testing.T) {
		workDir := t.TempDir()
		configPath := filepath.Join(workDir, "bin", "config", "bot.json")
		writeConfigFile(t, configPath, `{"log_level":"error",`+testDriversJSON+`}`)

		currentDir, err := os.Getwd()
		if err != nil {
			t.Fatalf("get working directory: %v", err)
		}
		if err := os.Chdir(workDir); err != nil {
			t.Fatalf("chdir to temp work dir: %v", err)
		}
		t.Cleanup(func() {
			if err := os.Chdir(currentDir); err != nil {
				t.Fatalf("restore working directory: %v", err)
			}
		})
		t.Setenv(envConfigFile, "")

		cfg, err := loadConfig(newTestRegistry(t), map[string]string{})
		if err != nil {
			t.Fatalf("load config failed: %v", err)
		}
		if cfg.logLevel != slog.LevelError {
			t.Fatalf("log level = %v, want %v", cfg.logLevel, slog.LevelError)
		}
	})

	t.Run("invalid config values fail", func(t *testing.T) {
		tests := []struct {
			name       string
			fileJSON   string
			env        map[string]string
			wantErrSub string
		}{
			{
				name:       "invalid log level",
				fileJSON:   `{"log_level":"trace",` + testDriversJSON + `}`,
				wantErrSub: "parse log_level",
			},
			{
				name:       "invalid kernel timeout",
				fileJSON:   `{"kernel":{"module_hook_timeout":"bad"},` + testDriversJSON + `}`,
				wantErrSub: "parse kernel.module_hook_timeout",
			},
			{
				name:       "non-positive cache ttl",
				fileJSON:   `{"content":{"cache_ttl":"0s"},` + testDriversJSON + `}`,
				wantErrSub: "parse content.cache_ttl: must be > 0",
			},
			{
				name:       "unknown timezone",
				fileJSON:   `{"content":{"timezone":"Mars/Olympus"},` + testDriversJSON + `}`,
				wantErrSub: "parse content.timezone",
			},
			{
				name:       "non-positive kernel buffer",
				fileJSON:   `{"kernel":{"subscription_buffer":0},` + testDriversJSON + `}`,
				wantErrSub: "parse kernel.subscription_buffer",
			},
			{
				name:       "driver config missing",
				fileJSON:   `{"drivers":[{"name":"tg-main","type":"telegram"}]}`,
				wantErrSub: "parse drivers[0].config: required",
			},
			{
				name:       "unknown driver type",
				fileJSON:   `{"drivers":[{"name":"dc","type":"discord","config":{}}]}`,
				wantErrSub: "drivers[dc].type",
			},
			{
				name:       "no enabled drivers",
				fileJSON:   `{"drivers":[{"name":"tg-main","type":"telegram","enabled":false,"config":{}}]}`,
				wantErrSub: "at least one enabled driver is required",
			},
			{
				name:       "negative redis db",
				fileJSON:   `{"redis":{"db":-1},` + testDriversJSON + `}`,
				wantErrSub: "redis.db must be >= 0",
			},
			{
				name:       "invalid env log level",
				fileJSON:   `{` + testDriversJSON + `}`,
				env:        map[string]string{"MOVA_LOG_LEVEL": "loud"},
				wantErrSub: "parse MOVA_LOG_LEVEL",
			},
			{
				name:       "non-numeric env redis db",
				fileJSON:   `{` + testDriversJSON + `}`,
				env:        map[string]string{"MOVA_REDIS_DB": "first"},
				wantErrSub: "parse env overrides",
			},
		}

		for _, testCase := range tests {
			testCase := testCase
			t.Run(testCase.name, func(t *testing.T) {
				configPath := filepath.Join(t.TempDir(), "bot.json")
				writeConfigFile(t, configPath, testCase.fileJSON)
				t.Setenv(envConfigFile, configPath)

				environment := testCase.env
				if environment == nil {
					environment = map[string]string{}
				}
				_, err := loadConfig(newTestRegistry(t), environment)
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), testCase.wantErrSub) {
					t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSub)
				}
			})
		}
	})

	t.Run("missing explicit config file fails", func(t *testing.T) {
		t.Setenv(envConfigFile, filepath.Join(t.TempDir(), "missing.json"))
		if _, err := loadConfig(newTestRegistry(t), map[string]string{}); err == nil {
			t.Fatal("expected error for missing config file")
		}
	})
}

func TestBuildCacheBackend(t *testing.T) {
	t.Run("memory backend without redis address", func(t *testing.T) {
		cfg, err := defaultAppConfig()
		if err != nil {
			t.Fatalf("default config failed: %v", err)
		}

		backend, closeBackend, err := buildCacheBackend(context.Background(), discardLogger(), cfg)
		if err != nil {
			t.Fatalf("build cache backend failed: %v", err)
		}
		defer func() { _ = closeBackend() }()

		if _, ok := backend.(*cache.MemoryBackend); !ok {
			t.Fatalf("backend = %T, want *cache.MemoryBackend", backend)
		}
	})

	t.Run("redis backend with address", func(t *testing.T) {
		server := miniredis.RunT(t)
		cfg, err := defaultAppConfig()
		if err != nil {
			t.Fatalf("default config failed: %v", err)
		}
		cfg.redisAddr = server.Addr()

		backend, closeBackend, err := buildCacheBackend(context.Background(), discardLogger(), cfg)
		if err != nil {
			t.Fatalf("build cache backend failed: %v", err)
		}
		defer func() { _ = closeBackend() }()

		if _, ok := backend.(*cache.RedisBackend); !ok {
			t.Fatalf("backend = %T, want *cache.RedisBackend", backend)
		}
		if err := backend.Set(context.Background(), "categories", []byte("[]"), time.Minute); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		if !server.Exists(defaultRedisPrefix + "categories") {
			t.Fatalf("key %q not stored in redis", defaultRedisPrefix+"categories")
		}
	})
}

func TestBuildContentRuntimeServesCategories(t *testing.T) {
	upstreamServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("route") {
		case "categories":
			_ = json.NewEncoder(w).Encode([]mova.Category{{ID: 1, Title: "Grammar"}, {ID: 2, Title: "Vocabulary"}})
		case "examples":
			_ = json.NewEncoder(w).Encode([]mova.Example{})
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstreamServer.Close()

	cfg, err := defaultAppConfig()
	if err != nil {
		t.Fatalf("default config failed: %v", err)
	}
	cfg.contentBaseURL = upstreamServer.URL

	content, err := buildContentRuntime(context.Background(), discardLogger(), cfg)
	if err != nil {
		t.Fatalf("build content runtime failed: %v", err)
	}
	defer func() { _ = content.closeCache() }()

	outcome, err := content.engine.RequestCategories(context.Background())
	if err != nil {
		t.Fatalf("request categories failed: %v", err)
	}
	want := catalogue.Outcome{
		Kind: catalogue.OutcomeCategoryList,
		Choices: []catalogue.Choice{
			{Label: "Grammar", Value: catalogue.CategoryCallbackData(1)},
			{Label: "Vocabulary", Value: catalogue.CategoryCallbackData(2)},
		},
	}
	if diff := cmp.Diff(want, outcome); diff != "" {
		t.Fatalf("outcome mismatch (-want +got):\n%s", diff)
	}

	daily, err := content.engine.DailyRule(context.Background())
	if err != nil {
		t.Fatalf("daily rule failed: %v", err)
	}
	if daily.Kind != catalogue.OutcomeNoExamples {
		t.Fatalf("daily kind = %s, want %s", daily.Kind, catalogue.OutcomeNoExamples)
	}
}
